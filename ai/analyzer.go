package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/clipforge/config"
	"github.com/BaSui01/clipforge/types"
)

// ChatCompleter 是分析器依赖的聊天客户端切面，便于测试替换。
type ChatCompleter interface {
	CompleteText(ctx context.Context, system, user string, temperature float32, maxTokens int) (string, error)
}

// 各路分析的采样参数。
const (
	brollTemperature    = 0.7
	brollMaxTokens      = 1500
	maxBRollSuggestions = 7

	memeTemperature = 0.8
	memeMaxTokens   = 1200

	enhanceTemperature = 0.6
	enhanceMaxTokens   = 800
)

const (
	brollSystemPrompt   = "You are an expert video editor specializing in B-roll selection."
	memeSystemPrompt    = "You are an expert in viral video content and meme creation."
	enhanceSystemPrompt = "You are a professional video editor and content strategist."
)

// 模型回复常带解释性文字，从中抠出第一段 JSON。
var (
	jsonArrayRe  = regexp.MustCompile(`(?s)\[.*\]`)
	jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)
)

// Analyzer 用 GPT 分析视频内容：B-roll 插入点、梗时刻、剪辑建议。
// 上游失败时各路分析独立降级，不让任务失败。
type Analyzer struct {
	client ChatCompleter
	logger *zap.Logger
	budget *promptBudget
}

// NewAnalyzer creates a content analyzer on top of the given chat client.
func NewAnalyzer(client ChatCompleter, cfg config.OpenAIConfig, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4"
	}
	limit := cfg.MaxPromptTokens
	if limit <= 0 {
		limit = 6000
	}
	return &Analyzer{
		client: client,
		logger: logger.With(zap.String("component", "analyzer")),
		budget: newPromptBudget(model, limit, logger),
	}
}

// AnalyzeRequest 选择要执行的分析项。
type AnalyzeRequest struct {
	Transcript *types.Transcript
	Video      *types.VideoInfo

	BRoll        bool
	MemeMoments  bool
	Enhancements bool
}

// AnalyzeAll 并发执行勾选的分析项并合并结果。各项内部已降级，
// 只有上下文取消会让整体返回错误。
func (a *Analyzer) AnalyzeAll(ctx context.Context, req AnalyzeRequest) (*types.AnalysisResult, error) {
	result := &types.AnalysisResult{}
	g, gctx := errgroup.WithContext(ctx)

	if req.BRoll {
		g.Go(func() error {
			suggestions, err := a.SuggestBRoll(gctx, req.Transcript, req.Video)
			if err != nil {
				return err
			}
			result.BRoll = suggestions
			return nil
		})
	}
	if req.MemeMoments {
		g.Go(func() error {
			moments, err := a.DetectMemeMoments(gctx, req.Transcript)
			if err != nil {
				return err
			}
			result.MemeMoments = moments
			return nil
		})
	}
	if req.Enhancements {
		g.Go(func() error {
			enhancements, err := a.SuggestEnhancements(gctx, req.Transcript, req.Video)
			if err != nil {
				return err
			}
			result.Enhancements = enhancements
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// SuggestBRoll 在转写文本中寻找 B-roll 插入点，至多返回 7 条。
// 上游失败降级为空列表。
func (a *Analyzer) SuggestBRoll(ctx context.Context, transcript *types.Transcript, video *types.VideoInfo) ([]types.BRollSuggestion, error) {
	if transcript == nil || strings.TrimSpace(transcript.Text) == "" {
		return nil, nil
	}

	prompt := a.buildBRollPrompt(transcript.Text, durationSeconds(transcript, video))
	reply, err := a.client.CompleteText(ctx, brollSystemPrompt, prompt, brollTemperature, brollMaxTokens)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.logger.Warn("b-roll analysis failed", zap.Error(err))
		return nil, nil
	}

	suggestions := parseBRollSuggestions(reply)
	a.logger.Info("generated b-roll suggestions", zap.Int("count", len(suggestions)))
	return suggestions, nil
}

// DetectMemeMoments 检测适合加特效的梗时刻。上游失败时退回关键词扫描。
func (a *Analyzer) DetectMemeMoments(ctx context.Context, transcript *types.Transcript) ([]types.MemeMoment, error) {
	if transcript == nil || len(transcript.Segments) == 0 {
		return nil, nil
	}

	prompt := a.buildMemePrompt(transcript.Segments)
	reply, err := a.client.CompleteText(ctx, memeSystemPrompt, prompt, memeTemperature, memeMaxTokens)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.logger.Warn("meme detection failed, falling back to keyword scan", zap.Error(err))
		return KeywordMemeMoments(transcript.Segments), nil
	}

	moments := parseMemeMoments(reply)
	a.logger.Info("detected meme moments", zap.Int("count", len(moments)))
	return moments, nil
}

// SuggestEnhancements 生成整体剪辑建议。上游失败或回复不可解析时
// 返回静态通用建议。
func (a *Analyzer) SuggestEnhancements(ctx context.Context, transcript *types.Transcript, video *types.VideoInfo) (*types.EnhancementSuggestions, error) {
	text := ""
	if transcript != nil {
		text = transcript.Text
	}

	prompt := a.buildEnhancementPrompt(text, video)
	reply, err := a.client.CompleteText(ctx, enhanceSystemPrompt, prompt, enhanceTemperature, enhanceMaxTokens)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.logger.Warn("enhancement analysis failed, using static suggestions", zap.Error(err))
		return StaticEnhancements(), nil
	}

	return parseEnhancements(reply), nil
}

func (a *Analyzer) buildBRollPrompt(transcript string, duration float64) string {
	return fmt.Sprintf(`Analyze this video transcript and suggest B-roll opportunities:

Transcript: "%s"
Video Duration: %.1f seconds

For each B-roll suggestion, provide:
1. Timestamp (in seconds from start)
2. Duration (how long the B-roll should last)
3. Description of what B-roll footage would enhance the content
4. Confidence score (0.0-1.0)
5. Category (product, location, concept, demonstration, etc.)

Focus on moments where:
- Concepts need visual explanation
- Products or locations are mentioned
- Technical demonstrations occur
- Emotional moments could be enhanced

Format your response as JSON array with this structure:
[
    {
        "timestamp": 15.5,
        "duration": 3.0,
        "description": "Show close-up of product features",
        "confidence": 0.8,
        "category": "product"
    }
]

Provide 3-7 suggestions maximum.`, a.budget.Truncate(transcript), duration)
}

func (a *Analyzer) buildMemePrompt(segments []types.TranscriptSegment) string {
	var b strings.Builder
	for i, seg := range segments {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%.1fs: %s", seg.Start.Seconds(), seg.Text)
	}

	return fmt.Sprintf(`Analyze these video segments for meme-worthy moments:

%s

Identify moments that would be enhanced by meme effects like:
- Zoom effects for emphasis
- Reaction emojis
- Sound effects
- Slow motion
- Text overlays
- Awkward pause emphasis

For each meme moment, provide:
1. Timestamp (exact time in seconds)
2. Meme type (reaction, punchline, awkward, emphasis, surprise)
3. Original text at that moment
4. Suggested effects (zoom, emoji, sound, slowmo, text)
5. Confidence score (0.0-1.0)

Format as JSON array:
[
    {
        "timestamp": 42.3,
        "meme_type": "emphasis",
        "text": "wait, what?",
        "suggested_effects": ["zoom", "emoji_shocked", "sound_record_scratch"],
        "confidence": 0.9
    }
]

Focus on genuine moments that would be funny or engaging.`, a.budget.Truncate(b.String()))
}

func (a *Analyzer) buildEnhancementPrompt(transcript string, video *types.VideoInfo) string {
	var duration, fps float64
	if video != nil {
		duration = video.Duration.Seconds()
		fps = video.FPS
	}

	return fmt.Sprintf(`Analyze this video content and suggest enhancements:

Transcript: "%s"
Video Info: Duration %.1fs, %.1f fps

Suggest improvements in these categories:
1. Pacing (speed up/slow down sections)
2. Audio (background music, sound effects)
3. Visual (color grading, filters, transitions)
4. Engagement (hooks, call-to-actions, interactive elements)
5. Accessibility (caption styling, audio descriptions)

Format as JSON object:
{
    "pacing": ["Speed up intro by 20%%", "Add pause after key points"],
    "audio": ["Add upbeat background music", "Enhance voice clarity"],
    "visual": ["Increase contrast for better visibility"],
    "engagement": ["Add hook in first 3 seconds"],
    "accessibility": ["Use larger caption font", "Add audio descriptions"]
}

Provide 2-4 actionable suggestions per category.`, a.budget.Truncate(transcript), duration, fps)
}

// durationSeconds 优先取探测到的视频时长，缺省退回转写时长。
func durationSeconds(transcript *types.Transcript, video *types.VideoInfo) float64 {
	if video != nil && video.Duration > 0 {
		return video.Duration.Seconds()
	}
	if transcript != nil {
		return transcript.Duration.Seconds()
	}
	return 0
}

// parseBRollSuggestions 从回复中抠出首个 JSON 数组并解析。
// 缺失字段按产品默认值补齐，结果裁剪到上限。
func parseBRollSuggestions(reply string) []types.BRollSuggestion {
	raw := jsonArrayRe.FindString(reply)
	if raw == "" {
		return nil
	}

	var items []struct {
		Timestamp   float64  `json:"timestamp"`
		Duration    *float64 `json:"duration"`
		Description string   `json:"description"`
		Confidence  *float64 `json:"confidence"`
		Category    string   `json:"category"`
	}
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil
	}

	out := make([]types.BRollSuggestion, 0, len(items))
	for _, item := range items {
		s := types.BRollSuggestion{
			Timestamp:   item.Timestamp,
			Duration:    3.0,
			Description: item.Description,
			Confidence:  0.5,
			Category:    "general",
		}
		if item.Duration != nil {
			s.Duration = *item.Duration
		}
		if item.Confidence != nil {
			s.Confidence = *item.Confidence
		}
		if item.Category != "" {
			s.Category = item.Category
		}
		out = append(out, s)
	}
	if len(out) > maxBRollSuggestions {
		out = out[:maxBRollSuggestions]
	}
	return out
}

// parseMemeMoments 从回复中抠出首个 JSON 数组并解析。
func parseMemeMoments(reply string) []types.MemeMoment {
	raw := jsonArrayRe.FindString(reply)
	if raw == "" {
		return nil
	}

	var items []struct {
		Timestamp  float64  `json:"timestamp"`
		MemeType   string   `json:"meme_type"`
		Text       string   `json:"text"`
		Effects    []string `json:"suggested_effects"`
		Confidence *float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil
	}

	out := make([]types.MemeMoment, 0, len(items))
	for _, item := range items {
		m := types.MemeMoment{
			Timestamp:  item.Timestamp,
			Type:       types.MemeType(item.MemeType),
			Text:       item.Text,
			Effects:    item.Effects,
			Confidence: 0.5,
		}
		if m.Type == "" {
			m.Type = "general"
		}
		if item.Confidence != nil {
			m.Confidence = *item.Confidence
		}
		out = append(out, m)
	}
	return out
}

// parseEnhancements 解析 JSON 对象形式的建议，失败时退回静态建议。
func parseEnhancements(reply string) *types.EnhancementSuggestions {
	raw := jsonObjectRe.FindString(reply)
	if raw == "" {
		return StaticEnhancements()
	}
	var out types.EnhancementSuggestions
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return StaticEnhancements()
	}
	return &out
}

// memeKeywords 按检测优先级排列。用切片保序，map 迭代顺序不稳定。
var memeKeywords = []struct {
	memeType types.MemeType
	words    []string
}{
	{types.MemeReaction, []string{"wow", "oh no", "wait", "what", "seriously", "really"}},
	{types.MemeEmphasis, []string{"exactly", "definitely", "absolutely", "totally", "completely"}},
	{types.MemeAwkward, []string{"um", "uh", "well", "so", "anyway"}},
	{types.MemeSurprise, []string{"surprise", "unexpected", "sudden", "shock", "amazing"}},
}

// KeywordMemeMoments 是无 API 时的关键词降级检测。每个分段每种类型
// 至多命中一次，命中即给固定置信度与 zoom+emoji 组合。
func KeywordMemeMoments(segments []types.TranscriptSegment) []types.MemeMoment {
	var moments []types.MemeMoment
	for _, seg := range segments {
		text := strings.ToLower(seg.Text)
		for _, kw := range memeKeywords {
			for _, word := range kw.words {
				if strings.Contains(text, word) {
					moments = append(moments, types.MemeMoment{
						Timestamp:  seg.Start.Seconds(),
						Type:       kw.memeType,
						Text:       seg.Text,
						Effects:    []string{types.EffectZoom, types.EffectEmoji},
						Confidence: 0.6,
					})
					break
				}
			}
		}
	}
	return moments
}

// StaticEnhancements 返回无 API 时的通用剪辑建议。
func StaticEnhancements() *types.EnhancementSuggestions {
	return &types.EnhancementSuggestions{
		Pacing:        []string{"Review pacing for slow sections", "Add dynamic cuts"},
		Audio:         []string{"Consider background music", "Enhance audio clarity"},
		Visual:        []string{"Improve lighting consistency", "Add transitions"},
		Engagement:    []string{"Add compelling intro", "Include call-to-action"},
		Accessibility: []string{"Ensure readable captions", "Consider audio descriptions"},
	}
}
