package media

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/clipforge/internal/pool"
	"github.com/BaSui01/clipforge/types"
)

// Effect timing constants. Windows are short on purpose; meme cuts read
// as punches, not scenes.
const (
	zoomFactor     = 1.3
	zoomDuration   = 0.5
	emojiDuration  = 1.0
	slowmoFactor   = 0.5
	slowmoDuration = 2.0
	textDuration   = 1.5
)

// Effects applies meme-style edits (zoom punches, emoji overlays, sound
// stingers, slow motion, text cards) to a video, one detected moment at
// a time, chaining intermediate files in the job work dir.
type Effects struct {
	proc       *Processor
	assets     *AssetLibrary
	maxMoments int
	logger     *zap.Logger
}

// NewEffects creates an effects engine. maxMoments caps how many detected
// moments get effects per video; zero or negative means no cap.
func NewEffects(proc *Processor, assets *AssetLibrary, maxMoments int, logger *zap.Logger) *Effects {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Effects{
		proc:       proc,
		assets:     assets,
		maxMoments: maxMoments,
		logger:     logger,
	}
}

// Apply runs each moment's suggested effects in order. A failing effect
// logs a warning and keeps the previous intermediate video, so one bad
// filter never sinks the whole job. Returns the final video path, which
// is the input path when nothing applied.
func (e *Effects) Apply(ctx context.Context, videoPath string, moments []types.MemeMoment, workDir string) (string, error) {
	if len(moments) == 0 {
		e.logger.Info("no meme effects to apply")
		return videoPath, nil
	}
	if e.maxMoments > 0 && len(moments) > e.maxMoments {
		e.logger.Info("capping meme moments",
			zap.Int("detected", len(moments)),
			zap.Int("cap", e.maxMoments),
		)
		moments = moments[:e.maxMoments]
	}

	current := videoPath
	step := 0
	for _, moment := range moments {
		if err := ctx.Err(); err != nil {
			return current, err
		}
		e.logger.Info("applying meme effects",
			zap.String("type", string(moment.Type)),
			zap.Float64("timestamp", moment.Timestamp),
			zap.Strings("effects", moment.Effects),
		)

		for _, effect := range moment.Effects {
			next, err := e.applyOne(ctx, current, moment, effect, workDir, step)
			if err != nil {
				e.logger.Warn("effect failed, keeping previous cut",
					zap.String("effect", effect),
					zap.Float64("timestamp", moment.Timestamp),
					zap.Error(err),
				)
				continue
			}
			current = next
			step++
		}
	}
	return current, nil
}

func (e *Effects) applyOne(ctx context.Context, in string, moment types.MemeMoment, effect, workDir string, step int) (string, error) {
	out := filepath.Join(workDir, fmt.Sprintf("effect_%02d.mp4", step))
	switch {
	case effect == types.EffectZoom:
		return out, e.applyZoom(ctx, in, out, moment.Timestamp)
	case strings.HasPrefix(effect, types.EffectEmoji):
		return out, e.applyEmoji(ctx, in, out, moment.Timestamp, effect)
	case strings.HasPrefix(effect, types.EffectSound):
		return out, e.applySound(ctx, in, out, moment.Timestamp, effect)
	case effect == types.EffectSlowmo:
		return out, e.applySlowmo(ctx, in, out, moment.Timestamp)
	case effect == types.EffectText:
		return out, e.applyText(ctx, in, out, moment)
	default:
		return "", fmt.Errorf("unknown effect %q", effect)
	}
}

func (e *Effects) applyZoom(ctx context.Context, in, out string, ts float64) (err error) {
	start := time.Now()
	defer func() { e.proc.record("effect_zoom", start, err) }()
	return e.runFilterComplex(ctx, []string{in}, out,
		ZoomFilter(ts),
		"-map", "[vout]", "-map", "0:a?", "-c:v", "libx264", "-c:a", "copy")
}

func (e *Effects) applyEmoji(ctx context.Context, in, out string, ts float64, effect string) (err error) {
	start := time.Now()
	defer func() { e.proc.record("effect_emoji", start, err) }()

	emojiPath, ok := e.assets.EmojiPath(effect)
	if !ok {
		return fmt.Errorf("emoji asset not found: %s", effect)
	}
	return e.runFilterComplex(ctx, []string{in, emojiPath}, out,
		EmojiOverlayFilter(ts),
		"-map", "[vout]", "-map", "0:a?", "-c:v", "libx264", "-c:a", "copy")
}

func (e *Effects) applySound(ctx context.Context, in, out string, ts float64, effect string) (err error) {
	start := time.Now()
	defer func() { e.proc.record("effect_sound", start, err) }()

	soundPath, ok := e.assets.SoundPath(effect)
	if !ok {
		return fmt.Errorf("sound asset not found: %s", effect)
	}
	return e.runFilterComplex(ctx, []string{in, soundPath}, out,
		SoundMixFilter(ts),
		"-map", "0:v", "-map", "[aout]", "-c:v", "copy")
}

func (e *Effects) applySlowmo(ctx context.Context, in, out string, ts float64) (err error) {
	start := time.Now()
	defer func() { e.proc.record("effect_slowmo", start, err) }()
	return e.runVideoFilter(ctx, in, out, SlowmoFilter(ts))
}

func (e *Effects) applyText(ctx context.Context, in, out string, moment types.MemeMoment) (err error) {
	start := time.Now()
	defer func() { e.proc.record("effect_text", start, err) }()
	return e.runVideoFilter(ctx, in, out, TextOverlayFilter(MemeText(moment), moment.Timestamp))
}

// SpeedUp changes playback speed for the whole video (video and audio).
func (e *Effects) SpeedUp(ctx context.Context, in, out string, factor float64) (err error) {
	start := time.Now()
	defer func() { e.proc.record("effect_speed", start, err) }()

	if factor < 0.5 || factor > 2.0 {
		// atempo only accepts 0.5..2.0 per pass
		return fmt.Errorf("speed factor %v out of range [0.5, 2.0]", factor)
	}

	ctx, cancel := e.proc.withTimeout(ctx)
	defer cancel()

	args := pool.GlobalStringSlice.Get()
	defer func() { pool.GlobalStringSlice.Put(args) }()
	args = append(args,
		"-y",
		"-i", in,
		"-vf", fmt.Sprintf("setpts=PTS/%s", fseconds(factor)),
		"-af", fmt.Sprintf("atempo=%s", fseconds(factor)),
		"-c:v", "libx264",
		"-c:a", "aac",
		out,
	)
	_, err = e.proc.exec.Execute(ctx, e.proc.cfg.BinaryPath, args...)
	return err
}

// EnhanceColors boosts saturation and brightness for a punchier look.
func (e *Effects) EnhanceColors(ctx context.Context, in, out string, saturation, brightness float64) (err error) {
	start := time.Now()
	defer func() { e.proc.record("effect_color", start, err) }()
	return e.runVideoFilter(ctx, in, out, ColorEnhanceFilter(saturation, brightness))
}

// Concat joins clips into one compilation, re-encoding to a common format.
func (e *Effects) Concat(ctx context.Context, inputs []string, out string) (err error) {
	start := time.Now()
	defer func() { e.proc.record("effect_concat", start, err) }()

	if len(inputs) < 2 {
		return fmt.Errorf("concat needs at least 2 inputs, got %d", len(inputs))
	}
	return e.runFilterComplex(ctx, inputs, out,
		ConcatFilter(len(inputs)),
		"-map", "[vout]", "-map", "[aout]", "-c:v", "libx264", "-c:a", "aac")
}

func (e *Effects) runVideoFilter(ctx context.Context, in, out, filter string) error {
	ctx, cancel := e.proc.withTimeout(ctx)
	defer cancel()

	args := pool.GlobalStringSlice.Get()
	defer func() { pool.GlobalStringSlice.Put(args) }()
	args = append(args,
		"-y",
		"-i", in,
		"-vf", filter,
		"-c:v", "libx264",
		"-c:a", "copy",
		out,
	)
	_, err := e.proc.exec.Execute(ctx, e.proc.cfg.BinaryPath, args...)
	return err
}

func (e *Effects) runFilterComplex(ctx context.Context, inputs []string, out, filter string, tail ...string) error {
	ctx, cancel := e.proc.withTimeout(ctx)
	defer cancel()

	args := pool.GlobalStringSlice.Get()
	defer func() { pool.GlobalStringSlice.Put(args) }()
	args = append(args, "-y")
	for _, in := range inputs {
		args = append(args, "-i", in)
	}
	args = append(args, "-filter_complex", filter)
	args = append(args, tail...)
	args = append(args, out)

	_, err := e.proc.exec.Execute(ctx, e.proc.cfg.BinaryPath, args...)
	return err
}

// ZoomFilter builds a 30% punch-in over a half-second window: scaled and
// centre-cropped copy overlaid on the original only inside the window.
func ZoomFilter(ts float64) string {
	f := fseconds(zoomFactor)
	return fmt.Sprintf(
		"[0:v]scale=iw*%s:ih*%s,crop=iw/%s:ih/%s:(iw-ow)/2:(ih-oh)/2[zoomed];"+
			"[0:v][zoomed]overlay=enable='between(t,%s,%s)'[vout]",
		f, f, f, f, fseconds(ts), fseconds(ts+zoomDuration))
}

// EmojiOverlayFilter scales the emoji input to 100x100 and pins it
// top-right for one second.
func EmojiOverlayFilter(ts float64) string {
	return fmt.Sprintf(
		"[1:v]scale=100:100[emoji];[0:v][emoji]overlay=W-110:10:enable='between(t,%s,%s)'[vout]",
		fseconds(ts), fseconds(ts+emojiDuration))
}

// SoundMixFilter delays the stinger to the moment and mixes it over the
// original track.
func SoundMixFilter(ts float64) string {
	delayMS := int64(ts * 1000)
	return fmt.Sprintf("[1:a]adelay=%d|%d[delayed];[0:a][delayed]amix=inputs=2[aout]",
		delayMS, delayMS)
}

// SlowmoFilter halves playback speed inside a two-second window.
func SlowmoFilter(ts float64) string {
	return fmt.Sprintf("setpts=if(between(t,%s,%s),PTS/%s,PTS)",
		fseconds(ts), fseconds(ts+slowmoDuration), fseconds(slowmoFactor))
}

// TextOverlayFilter draws a centred caption card near the bottom edge.
func TextOverlayFilter(text string, ts float64) string {
	return fmt.Sprintf(
		"drawtext=text='%s':x=(w-text_w)/2:y=h-100:fontsize=36:fontcolor=white:bordercolor=black:borderw=2:enable='between(t,%s,%s)'",
		sanitizeDrawText(text), fseconds(ts), fseconds(ts+textDuration))
}

// ColorEnhanceFilter boosts saturation and shifts brightness. The eq
// filter takes brightness as an additive offset, hence the minus one.
func ColorEnhanceFilter(saturation, brightness float64) string {
	return fmt.Sprintf("eq=saturation=%s:brightness=%s",
		fseconds(saturation), fseconds(brightness-1))
}

// ConcatFilter joins n synchronized video+audio inputs.
func ConcatFilter(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "[%d:v][%d:a]", i, i)
	}
	fmt.Fprintf(&b, "concat=n=%d:v=1:a=1[vout][aout]", n)
	return b.String()
}

// sanitizeDrawText strips quotes and escapes colons so arbitrary text
// cannot break out of the drawtext argument.
func sanitizeDrawText(text string) string {
	text = strings.ReplaceAll(text, "'", "")
	text = strings.ReplaceAll(text, `"`, "")
	text = strings.ReplaceAll(text, `\`, "")
	text = strings.ReplaceAll(text, ":", `\:`)
	return text
}

// fseconds formats a float for a filter expression, rounded to
// millisecond precision to avoid binary float tails.
func fseconds(v float64) string {
	return strconv.FormatFloat(math.Round(v*1000)/1000, 'f', -1, 64)
}

// memeTexts maps each moment type to its caption candidates.
var memeTexts = map[types.MemeType][]string{
	types.MemeReaction: {"BRUH", "WAIT WHAT?", "NO WAY", "OMG"},
	types.MemeEmphasis: {"EXACTLY!", "THIS!", "FACTS", "TRUTH"},
	types.MemeAwkward:  {"...", "AWKWARD", "UH OH", "YIKES"},
	types.MemeSurprise: {"PLOT TWIST", "SURPRISE!", "WHOA", "UNEXPECTED"},
}

// MemeText picks the overlay caption for a moment: transcript cues first
// ("wait" and "oh" have dedicated cards), then the type's default.
func MemeText(moment types.MemeMoment) string {
	lower := strings.ToLower(moment.Text)
	if strings.Contains(lower, "wait") {
		return "WAIT WHAT?"
	}
	if strings.Contains(lower, "oh") {
		return "OH NO"
	}
	if texts, ok := memeTexts[moment.Type]; ok {
		return texts[0]
	}
	return "WOW"
}
