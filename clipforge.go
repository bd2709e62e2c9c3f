// Package clipforge provides a top-level convenience entry point for
// processing videos with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/clipforge"
//
//	res, err := clipforge.Process(ctx, "talk.mp4", clipforge.WithCaptions())
//	res, err := clipforge.Process(ctx, "talk.mp4", clipforge.WithMemeMode(), clipforge.WithBRoll())
//
// For repeated use, build an [Editor] once and feed it multiple videos:
//
//	ed, err := clipforge.New(clipforge.WithCaptions(), clipforge.WithAPIKey(key))
//	if err != nil { ... }
//	defer ed.Close()
//	res, err := ed.Process(ctx, "talk.mp4")
//
// The facade runs the full FFmpeg pipeline without the HTTP server,
// database or Redis. Configuration comes from the environment (and an
// optional .env file) unless overridden via [WithConfig].
package clipforge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/clipforge/ai"
	"github.com/BaSui01/clipforge/config"
	"github.com/BaSui01/clipforge/media"
	"github.com/BaSui01/clipforge/pipeline"
	"github.com/BaSui01/clipforge/types"
)

// Result is the outcome of a processed video.
type Result = pipeline.JobResult

// Option configures the editor created by [New].
type Option func(*options)

type options struct {
	cfg    *config.Config
	logger *zap.Logger
	apiKey string

	captions bool
	memeMode bool
	broll    bool
	model    types.WhisperModel
	style    types.CaptionStyle
	language string
}

// WithConfig uses a pre-built configuration instead of loading from the
// environment.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets a custom zap logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithAPIKey overrides the OpenAI API key. Defaults to the OPENAI_API_KEY
// environment variable.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithCaptions enables automatic caption generation and burn-in.
func WithCaptions() Option {
	return func(o *options) { o.captions = true }
}

// WithMemeMode enables meme overlays at detected peak moments.
func WithMemeMode() Option {
	return func(o *options) { o.memeMode = true }
}

// WithBRoll enables B-roll suggestion analysis.
func WithBRoll() Option {
	return func(o *options) { o.broll = true }
}

// WithWhisperModel sets the Whisper model size used for transcription.
func WithWhisperModel(model types.WhisperModel) Option {
	return func(o *options) { o.model = model }
}

// WithCaptionStyle sets the caption rendering preset.
func WithCaptionStyle(style types.CaptionStyle) Option {
	return func(o *options) { o.style = style }
}

// WithLanguage pins the transcription language (ISO-639-1 code).
// Defaults to Whisper auto-detection.
func WithLanguage(lang string) Option {
	return func(o *options) { o.language = lang }
}

// Editor runs the video pipeline in-process. Safe for concurrent use;
// the number of videos processed in parallel follows the pipeline
// worker configuration.
type Editor struct {
	cfg     *config.Config
	opts    pipeline.Options
	manager *pipeline.Manager
	logger  *zap.Logger
}

// New assembles an [Editor] with minimal configuration. It fails fast
// when ffmpeg is missing or when an AI feature is requested without an
// OpenAI API key.
func New(opts ...Option) (*Editor, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	cfg := o.cfg
	if cfg == nil {
		var err error
		cfg, err = config.NewLoader().Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	if o.apiKey != "" {
		cfg.OpenAI.APIKey = o.apiKey
	}

	wantsAI := o.captions || o.memeMode || o.broll
	if wantsAI && cfg.OpenAI.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required for captions, meme mode and b-roll: set OPENAI_API_KEY or use WithAPIKey")
	}

	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := cfg.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("create directories: %w", err)
	}

	processor := media.NewProcessor(cfg.FFmpeg, media.NewExecutor(), logger)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	_, err := processor.Version(ctx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not available: %w", err)
	}

	assets := media.NewAssetLibrary(cfg.Storage.AssetsDir, logger)
	if err := assets.EnsurePlaceholders(); err != nil {
		logger.Warn("failed to prepare effect assets", zap.Error(err))
	}

	client := ai.NewClient(cfg.OpenAI, logger)
	deps := pipeline.Deps{
		Processor:   processor,
		Effects:     media.NewEffects(processor, assets, cfg.Pipeline.MaxMemeMoments, logger),
		Exporter:    media.NewExporter(cfg.Storage.OutputDir, logger),
		Whisper:     ai.NewWhisper(cfg.OpenAI, cfg.Whisper, logger),
		Analyzer:    ai.NewAnalyzer(client, cfg.OpenAI, logger),
		CaptionOpts: cfg.Captions,
		TempDir:     cfg.Storage.TempDir,
	}

	manager, err := pipeline.NewManager(cfg.Pipeline, deps, logger)
	if err != nil {
		return nil, fmt.Errorf("create pipeline: %w", err)
	}

	return &Editor{
		cfg: cfg,
		opts: pipeline.Options{
			AutoCaptions: o.captions,
			MemeMode:     o.memeMode,
			BRoll:        o.broll,
			WhisperModel: o.model,
			CaptionStyle: o.style,
			Language:     o.language,
		},
		manager: manager,
		logger:  logger,
	}, nil
}

// Process runs the full pipeline on a video file and blocks until it
// finishes. The context cancels in-flight FFmpeg and API work.
func (e *Editor) Process(ctx context.Context, path string) (*Result, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("video not found: %w", err)
	}

	job, err := e.manager.Submit(ctx, path, filepath.Base(path), e.opts)
	if err != nil {
		return nil, err
	}

	sub, err := e.manager.Subscribe(job.ID)
	if err != nil {
		return nil, err
	}
	defer sub.Close()

	if snap, err := e.manager.Job(job.ID); err == nil && snap.Status.Terminal() {
		return resultOf(snap)
	}

	for {
		ev, err := sub.Receive(ctx)
		if err != nil {
			break
		}
		if ev.Status.Terminal() {
			break
		}
	}

	final, err := e.manager.Job(job.ID)
	if err != nil {
		return nil, err
	}
	return resultOf(final)
}

// Close drains in-flight jobs and releases pipeline resources.
func (e *Editor) Close() {
	e.manager.Close()
}

func resultOf(job *pipeline.Job) (*Result, error) {
	if job.Status == pipeline.StatusCompleted && job.Result != nil {
		return job.Result, nil
	}
	if job.Error != "" {
		return nil, fmt.Errorf("processing failed: %s", job.Error)
	}
	return nil, fmt.Errorf("processing ended without a result (status %s)", job.Status)
}

// Process is a one-shot helper: it builds an [Editor], processes a
// single video and tears the editor down again.
func Process(ctx context.Context, path string, opts ...Option) (*Result, error) {
	ed, err := New(opts...)
	if err != nil {
		return nil, err
	}
	defer ed.Close()
	return ed.Process(ctx, path)
}
