package media

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/clipforge/config"
	"github.com/BaSui01/clipforge/internal/pool"
	"github.com/BaSui01/clipforge/types"
)

// MetricsRecorder receives timing for every ffmpeg/ffprobe invocation.
type MetricsRecorder interface {
	RecordFFmpeg(operation, status string, duration time.Duration)
}

// Processor 封装对 ffmpeg/ffprobe 的调用：探测、抽音轨、烧字幕、导出。
// 所有调用都带配置超时，stderr 会折叠进返回错误。
type Processor struct {
	cfg     config.FFmpegConfig
	exec    Executor
	logger  *zap.Logger
	metrics MetricsRecorder
}

// NewProcessor creates a Processor. A nil exec falls back to the real
// shell-out executor, a nil logger to a noop one.
func NewProcessor(cfg config.FFmpegConfig, exec Executor, logger *zap.Logger) *Processor {
	if exec == nil {
		exec = NewExecutor()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BinaryPath == "" {
		cfg.BinaryPath = "ffmpeg"
	}
	if cfg.ProbePath == "" {
		cfg.ProbePath = "ffprobe"
	}
	return &Processor{
		cfg:    cfg,
		exec:   exec,
		logger: logger,
	}
}

// SetMetrics attaches an invocation recorder. Call before first use.
func (p *Processor) SetMetrics(m MetricsRecorder) {
	p.metrics = m
}

func (p *Processor) record(operation string, start time.Time, err error) {
	if p.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	p.metrics.RecordFFmpeg(operation, status, time.Since(start))
}

// withTimeout applies the configured per-invocation timeout.
func (p *Processor) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, p.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

// Version runs `ffmpeg -version` and returns the first output line.
// Used as a startup preflight so a missing binary fails fast.
func (p *Processor) Version(ctx context.Context) (string, error) {
	if _, err := p.exec.LookPath(p.cfg.BinaryPath); err != nil {
		return "", types.WrapError(types.ErrFFmpegMissing,
			fmt.Sprintf("ffmpeg not found at %q", p.cfg.BinaryPath), err).
			WithComponent("media")
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	out, err := p.exec.Execute(ctx, p.cfg.BinaryPath, "-version")
	if err != nil {
		return "", types.WrapError(types.ErrFFmpegMissing, "ffmpeg -version failed", err).
			WithComponent("media")
	}
	line, _, _ := strings.Cut(out, "\n")
	return strings.TrimSpace(line), nil
}

// ffprobe JSON output, -show_format -show_streams subset we care about.
type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
	Format  ffprobeFormat   `json:"format"`
}

type ffprobeStream struct {
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	NbFrames     string `json:"nb_frames"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
	Size     string `json:"size"`
}

// Probe inspects a video file and returns its basic properties.
func (p *Processor) Probe(ctx context.Context, path string) (info *types.VideoInfo, err error) {
	start := time.Now()
	defer func() { p.record("probe", start, err) }()

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	out, err := p.exec.Execute(ctx, p.cfg.ProbePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		return nil, types.WrapError(types.ErrFFprobeFailed,
			fmt.Sprintf("probe %s", path), err).WithComponent("media")
	}

	var probed ffprobeOutput
	if err = json.Unmarshal([]byte(out), &probed); err != nil {
		return nil, types.WrapError(types.ErrFFprobeFailed, "parse ffprobe output", err).
			WithComponent("media")
	}

	info = &types.VideoInfo{Path: path}
	for _, stream := range probed.Streams {
		if stream.CodecType != "video" {
			continue
		}
		info.Width = stream.Width
		info.Height = stream.Height
		rate := stream.RFrameRate
		if rate == "" || rate == "0/0" {
			rate = stream.AvgFrameRate
		}
		info.FPS = parseRational(rate)
		if stream.NbFrames != "" {
			info.Frames, _ = strconv.ParseInt(stream.NbFrames, 10, 64)
		}
		break
	}

	if probed.Format.Duration != "" {
		seconds, perr := strconv.ParseFloat(probed.Format.Duration, 64)
		if perr == nil {
			info.Duration = time.Duration(seconds * float64(time.Second))
		}
	}
	if probed.Format.Size != "" {
		info.Size, _ = strconv.ParseInt(probed.Format.Size, 10, 64)
	}

	// Some containers omit nb_frames; derive it from duration and fps.
	if info.Frames == 0 && info.FPS > 0 && info.Duration > 0 {
		info.Frames = int64(info.Duration.Seconds() * info.FPS)
	}

	if info.Width == 0 || info.Height == 0 {
		return nil, types.NewError(types.ErrFFprobeFailed,
			fmt.Sprintf("no video stream found in %s", path)).WithComponent("media")
	}

	p.logger.Info("video probed",
		zap.String("path", path),
		zap.Int("width", info.Width),
		zap.Int("height", info.Height),
		zap.Float64("fps", info.FPS),
		zap.Duration("duration", info.Duration),
	)
	return info, nil
}

// parseRational converts an ffprobe frame rate like "30000/1001" to a float.
func parseRational(s string) float64 {
	if s == "" {
		return 0
	}
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// ExtractAudio pulls the audio track as 16 kHz mono PCM WAV, the input
// format Whisper expects.
func (p *Processor) ExtractAudio(ctx context.Context, videoPath, audioPath string) (err error) {
	start := time.Now()
	defer func() { p.record("extract_audio", start, err) }()

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	args := pool.GlobalStringSlice.Get()
	defer func() { pool.GlobalStringSlice.Put(args) }()
	args = append(args,
		"-i", videoPath,
		"-vn",
		"-ar", "16000",
		"-ac", "1",
		"-c:a", "pcm_s16le",
		"-threads", "0",
		"-y",
		audioPath,
	)

	if _, err = p.exec.Execute(ctx, p.cfg.BinaryPath, args...); err != nil {
		return types.WrapError(types.ErrFFmpegFailed,
			fmt.Sprintf("extract audio from %s", videoPath), err).WithComponent("media")
	}

	p.logger.Info("audio extracted",
		zap.String("video", videoPath),
		zap.String("audio", audioPath),
	)
	return nil
}
