package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/clipforge/config"
	"github.com/BaSui01/clipforge/internal/pool"
	"github.com/BaSui01/clipforge/types"
)

// FormatTimestamp renders a duration in SRT form HH:MM:SS,mmm.
// Negative durations clamp to zero.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	hours := ms / 3_600_000
	ms -= hours * 3_600_000
	minutes := ms / 60_000
	ms -= minutes * 60_000
	seconds := ms / 1_000
	ms -= seconds * 1_000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, ms)
}

// ParseTimestamp parses an SRT timestamp HH:MM:SS,mmm.
func ParseTimestamp(s string) (time.Duration, error) {
	clock, millis, found := strings.Cut(strings.TrimSpace(s), ",")
	if !found {
		return 0, fmt.Errorf("invalid srt timestamp %q: missing millisecond separator", s)
	}
	parts := strings.Split(clock, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid srt timestamp %q: want HH:MM:SS,mmm", s)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid srt hours %q: %w", parts[0], err)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid srt minutes %q: %w", parts[1], err)
	}
	seconds, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0, fmt.Errorf("invalid srt seconds %q: %w", parts[2], err)
	}
	ms, err := strconv.Atoi(millis)
	if err != nil {
		return 0, fmt.Errorf("invalid srt milliseconds %q: %w", millis, err)
	}
	if minutes > 59 || seconds > 59 || ms > 999 || hours < 0 || minutes < 0 || seconds < 0 || ms < 0 {
		return 0, fmt.Errorf("srt timestamp %q out of range", s)
	}
	total := time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second +
		time.Duration(ms)*time.Millisecond
	return total, nil
}

// RenderSRT renders captions as an SRT document: 1-based index,
// "start --> end" line, caption text, blank separator.
func RenderSRT(captions []types.Caption) []byte {
	buf := pool.ByteBufferPool.Get()
	defer pool.ByteBufferPool.Put(buf)

	for i, caption := range captions {
		buf.WriteString(strconv.Itoa(i + 1))
		buf.WriteByte('\n')
		buf.WriteString(FormatTimestamp(caption.Start))
		buf.WriteString(" --> ")
		buf.WriteString(FormatTimestamp(caption.End))
		buf.WriteByte('\n')
		buf.WriteString(caption.Text)
		buf.WriteString("\n\n")
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out
}

// WriteSRTFile renders captions and writes them to path.
func WriteSRTFile(path string, captions []types.Caption) error {
	if err := os.WriteFile(path, RenderSRT(captions), 0o644); err != nil {
		return fmt.Errorf("write srt %s: %w", path, err)
	}
	return nil
}

// BurnRequest describes one caption burn pass.
type BurnRequest struct {
	// VideoPath is the input video. Converted to an absolute path.
	VideoPath string
	// Captions to render. Must be non-empty.
	Captions []types.Caption
	// Style selects the force_style preset.
	Style types.CaptionStyle
	// StyleOpts supplies font size/colour for standard and custom styles.
	StyleOpts config.CaptionConfig
	// WorkDir is the job work directory. The SRT is written here and
	// ffmpeg runs from here so the subtitles filter sees a relative path.
	WorkDir string
}

// BurnCaptions renders captions to an SRT in the work dir and burns them
// into the video. Returns the path of the captioned output file.
//
// ffmpeg 在 WorkDir 内执行，字幕滤镜只引用相对文件名，避开滤镜参数里
// 路径冒号/盘符的转义问题。
func (p *Processor) BurnCaptions(ctx context.Context, req BurnRequest) (outPath string, err error) {
	start := time.Now()
	defer func() { p.record("burn_captions", start, err) }()

	if len(req.Captions) == 0 {
		return "", types.NewError(types.ErrInvalidRequest, "no captions to burn").
			WithComponent("media")
	}

	srtPath := filepath.Join(req.WorkDir, "captions.srt")
	if err = WriteSRTFile(srtPath, req.Captions); err != nil {
		return "", types.WrapError(types.ErrFFmpegFailed, "write subtitle file", err).
			WithComponent("media")
	}

	absVideo, err := filepath.Abs(req.VideoPath)
	if err != nil {
		return "", types.WrapError(types.ErrInvalidRequest, "resolve video path", err).
			WithComponent("media")
	}
	outPath = filepath.Join(req.WorkDir, "captioned.mp4")

	filter := fmt.Sprintf("subtitles=%s:force_style='%s'",
		filepath.Base(srtPath), forceStyle(req.Style, req.StyleOpts))

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	args := pool.GlobalStringSlice.Get()
	defer func() { pool.GlobalStringSlice.Put(args) }()
	args = append(args,
		"-y",
		"-i", absVideo,
		"-vf", filter,
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		"-c:a", "aac",
		outPath,
	)

	if _, err = p.exec.ExecuteInDir(ctx, req.WorkDir, p.cfg.BinaryPath, args...); err != nil {
		return "", types.WrapError(types.ErrFFmpegFailed, "burn captions", err).
			WithComponent("media")
	}

	p.logger.Info("captions burned",
		zap.String("video", req.VideoPath),
		zap.String("style", string(req.Style)),
		zap.Int("captions", len(req.Captions)),
	)
	return outPath, nil
}

// forceStyle maps a caption style preset to libass force_style parameters.
func forceStyle(style types.CaptionStyle, opts config.CaptionConfig) string {
	switch style {
	case types.CaptionStyleTikTok:
		return "FontSize=32,Bold=1,PrimaryColour=&HFFFFFF,OutlineColour=&H000000,Outline=2"
	case types.CaptionStyleYouTube:
		return "FontSize=28,PrimaryColour=&HFFFFFF,BackColour=&H80000000"
	case types.CaptionStyleCustom, types.CaptionStyleStandard:
		fallthrough
	default:
		size := opts.FontSize
		if size <= 0 {
			size = 24
		}
		return fmt.Sprintf("FontSize=%d,PrimaryColour=&H%s", size, assColor(opts.FontColor))
	}
}

// assColor converts "#RRGGBB" or a common colour name to the BGR hex
// form libass expects.
func assColor(color string) string {
	color = strings.TrimSpace(strings.ToLower(color))
	switch color {
	case "", "white":
		return "FFFFFF"
	case "black":
		return "000000"
	case "red":
		return "0000FF"
	case "green":
		return "00FF00"
	case "blue":
		return "FF0000"
	case "yellow":
		return "00FFFF"
	}
	hex := strings.TrimPrefix(color, "#")
	if len(hex) != 6 {
		return "FFFFFF"
	}
	for _, c := range hex {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "FFFFFF"
		}
	}
	// RRGGBB -> BBGGRR
	return strings.ToUpper(hex[4:6] + hex[2:4] + hex[0:2])
}
