package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/clipforge/ai"
	"github.com/BaSui01/clipforge/config"
	"github.com/BaSui01/clipforge/media"
	"github.com/BaSui01/clipforge/storage"
	"github.com/BaSui01/clipforge/types"
)

// ============================================================
// 🔌 依赖接口，按消费方定义，生产实现在 media / ai / storage
// ============================================================

// MediaProcessor 探测、抽音轨和压字幕
type MediaProcessor interface {
	Probe(ctx context.Context, path string) (*types.VideoInfo, error)
	ExtractAudio(ctx context.Context, videoPath, audioPath string) error
	BurnCaptions(ctx context.Context, req media.BurnRequest) (string, error)
}

// EffectsEngine 把梗时刻渲染进成片
type EffectsEngine interface {
	Apply(ctx context.Context, videoPath string, moments []types.MemeMoment, workDir string) (string, error)
}

// Exporter 把工作区产物落到输出目录
type Exporter interface {
	Export(srcPath string) (string, error)
}

// Transcriber 语音转写
type Transcriber interface {
	Model() string
	TranscribeFile(ctx context.Context, path string) (*types.Transcript, error)
}

// Analyzer AI 内容分析
type Analyzer interface {
	AnalyzeAll(ctx context.Context, req ai.AnalyzeRequest) (*types.AnalysisResult, error)
}

// TranscriptCache 转写结果缓存，*storage.TranscriptionCache 实现
type TranscriptCache interface {
	Get(ctx context.Context, fileHash, model string) (*storage.CachedTranscript, error)
	Put(ctx context.Context, fileHash, filename, model string, transcript *types.Transcript, captions []types.Caption) error
}

// HistoryStore 处理历史与统计，*storage.Repository 实现
type HistoryStore interface {
	AddProcessingRecord(ctx context.Context, record *storage.ProcessingRecord) error
	AddTimeSaved(ctx context.Context, seconds float64) error
}

// DedupLocker 同一视频的并发去重锁，*cache.Manager 实现
type DedupLocker interface {
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
}

// Deps 流水线外部依赖。Processor、Effects、Exporter、Whisper、
// Analyzer 必填，Cache、History、Dedup 可为 nil（功能降级）。
type Deps struct {
	Processor MediaProcessor
	Effects   EffectsEngine
	Exporter  Exporter
	Whisper   Transcriber
	Analyzer  Analyzer

	Cache   TranscriptCache
	History HistoryStore
	Dedup   DedupLocker

	CaptionOpts config.CaptionConfig
	TempDir     string
}

func (d Deps) validate() error {
	if d.Processor == nil {
		return fmt.Errorf("pipeline: media processor is required")
	}
	if d.Effects == nil {
		return fmt.Errorf("pipeline: effects engine is required")
	}
	if d.Exporter == nil {
		return fmt.Errorf("pipeline: exporter is required")
	}
	if d.Whisper == nil {
		return fmt.Errorf("pipeline: transcriber is required")
	}
	if d.Analyzer == nil {
		return fmt.Errorf("pipeline: analyzer is required")
	}
	return nil
}

// ============================================================
// 🎬 阶段构建
// ============================================================

// buildStages 按任务选项组装阶段序列。探测和导出恒定存在，
// 中间阶段由勾选的功能决定。
func (m *Manager) buildStages(opts Options) []Stage {
	failFast := ErrorPolicy{Strategy: ErrorStrategyFailFast}
	retry := ErrorPolicy{
		Strategy:   ErrorStrategyRetry,
		MaxRetries: m.cfg.StageRetries,
		RetryDelay: m.cfg.StageRetryDelay,
	}
	skip := ErrorPolicy{Strategy: ErrorStrategySkip}

	stages := []Stage{
		{name: StageProbe, policy: failFast, run: m.runProbe},
	}

	if opts.needsTranscript() {
		stages = append(stages,
			Stage{name: StageExtractAudio, policy: retry, run: m.runExtractAudio},
			Stage{name: StageTranscribe, policy: retry, run: m.runTranscribe},
		)
	}
	if opts.AutoCaptions {
		stages = append(stages, Stage{name: StageCaptions, policy: failFast, run: m.runCaptions})
	}
	if opts.BRoll || opts.MemeMode {
		stages = append(stages, Stage{name: StageAnalyze, policy: skip, run: m.runAnalyze})
	}
	if opts.AutoCaptions {
		stages = append(stages, Stage{name: StageBurnCaptions, policy: failFast, run: m.runBurnCaptions})
	}
	if opts.MemeMode {
		stages = append(stages, Stage{name: StageEffects, policy: failFast, run: m.runEffects})
	}

	stages = append(stages, Stage{name: StageExport, policy: failFast, run: m.runExport})
	return stages
}

func (m *Manager) runProbe(ctx context.Context, st *State) error {
	info, err := m.deps.Processor.Probe(ctx, st.Job.SourcePath)
	if err != nil {
		return err
	}
	st.Video = info
	st.notify(fmt.Sprintf("%dx%d, %.1fs @ %.2f fps",
		info.Width, info.Height, info.Duration.Seconds(), info.FPS))
	return nil
}

func (m *Manager) runExtractAudio(ctx context.Context, st *State) error {
	audioPath := filepath.Join(st.WorkDir, "audio.wav")
	if err := m.deps.Processor.ExtractAudio(ctx, st.Job.SourcePath, audioPath); err != nil {
		return err
	}
	st.AudioPath = audioPath
	return nil
}

// runTranscribe 先查缓存（Redis 优先，DB 兜底），未命中才调用
// Whisper。缓存命中按视频时长记一笔节省的处理时间。
func (m *Manager) runTranscribe(ctx context.Context, st *State) error {
	model := string(st.Job.Options.WhisperModel)

	if m.deps.Cache != nil && st.Job.FileHash != "" {
		cached, err := m.deps.Cache.Get(ctx, st.Job.FileHash, model)
		if err != nil {
			m.logger.Warn("transcription cache lookup failed",
				zap.String("job_id", st.Job.ID), zap.Error(err))
		}
		if cached != nil && cached.Transcript != nil {
			st.Transcript = cached.Transcript
			st.Captions = cached.Captions
			if len(st.Captions) == 0 {
				st.Captions = types.CaptionsFromTranscript(cached.Transcript)
			}
			st.CacheHit = true
			st.notify("transcription served from cache")

			if m.deps.History != nil && st.Video != nil {
				if err := m.deps.History.AddTimeSaved(ctx, st.Video.Duration.Seconds()); err != nil {
					m.logger.Warn("failed to record time saved",
						zap.String("job_id", st.Job.ID), zap.Error(err))
				}
			}
			return nil
		}
	}

	transcript, err := m.deps.Whisper.TranscribeFile(ctx, st.AudioPath)
	if err != nil {
		return err
	}
	st.Transcript = transcript
	st.Captions = types.CaptionsFromTranscript(transcript)
	st.notify(fmt.Sprintf("transcribed %d segments", len(transcript.Segments)))

	if m.deps.Cache != nil && st.Job.FileHash != "" {
		if err := m.deps.Cache.Put(ctx, st.Job.FileHash, st.Job.Filename, model, transcript, st.Captions); err != nil {
			m.logger.Warn("failed to cache transcription",
				zap.String("job_id", st.Job.ID), zap.Error(err))
		}
	}
	return nil
}

func (m *Manager) runCaptions(ctx context.Context, st *State) error {
	if len(st.Captions) == 0 && st.Transcript != nil {
		st.Captions = types.CaptionsFromTranscript(st.Transcript)
	}
	if len(st.Captions) == 0 {
		return types.NewError(types.ErrTranscriptionFailed, "no speech segments to caption")
	}
	st.notify(fmt.Sprintf("prepared %d caption cues", len(st.Captions)))
	return nil
}

func (m *Manager) runAnalyze(ctx context.Context, st *State) error {
	opts := st.Job.Options
	result, err := m.deps.Analyzer.AnalyzeAll(ctx, ai.AnalyzeRequest{
		Transcript:   st.Transcript,
		Video:        st.Video,
		BRoll:        opts.BRoll,
		MemeMoments:  opts.MemeMode,
		Enhancements: opts.BRoll || opts.MemeMode,
	})
	if err != nil {
		return err
	}
	st.Analysis = result
	st.notify(fmt.Sprintf("%d b-roll suggestions, %d meme moments",
		len(result.BRoll), len(result.MemeMoments)))
	return nil
}

func (m *Manager) runBurnCaptions(ctx context.Context, st *State) error {
	out, err := m.deps.Processor.BurnCaptions(ctx, media.BurnRequest{
		VideoPath: st.CurrentCut,
		Captions:  st.Captions,
		Style:     st.Job.Options.CaptionStyle,
		StyleOpts: m.deps.CaptionOpts,
		WorkDir:   st.WorkDir,
	})
	if err != nil {
		return err
	}
	st.CurrentCut = out
	return nil
}

func (m *Manager) runEffects(ctx context.Context, st *State) error {
	var moments []types.MemeMoment
	if st.Analysis != nil {
		moments = st.Analysis.MemeMoments
	}
	if len(moments) == 0 {
		st.notify("no meme moments detected, skipping effects")
		return nil
	}
	out, err := m.deps.Effects.Apply(ctx, st.CurrentCut, moments, st.WorkDir)
	if err != nil {
		return err
	}
	st.CurrentCut = out
	return nil
}

func (m *Manager) runExport(ctx context.Context, st *State) error {
	out, err := m.deps.Exporter.Export(st.CurrentCut)
	if err != nil {
		return err
	}
	st.ResultPath = out
	st.notify(fmt.Sprintf("exported to %s", filepath.Base(out)))
	return nil
}
