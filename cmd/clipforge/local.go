package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/clipforge/ai"
	"github.com/BaSui01/clipforge/config"
	"github.com/BaSui01/clipforge/internal/cache"
	"github.com/BaSui01/clipforge/internal/database"
	"github.com/BaSui01/clipforge/internal/migration"
	"github.com/BaSui01/clipforge/media"
	"github.com/BaSui01/clipforge/pipeline"
	"github.com/BaSui01/clipforge/storage"
)

// =============================================================================
// 本地模式装配（process / watch 共享）
// =============================================================================

// localStack 是 process/watch 子命令使用的无 HTTP 组件集。
// 数据库与 Redis 均为可选：连不上只降级（无历史入账、无转写缓存），
// 批处理的核心产物是导出文件，不因记账失败而中断。
type localStack struct {
	cfg    *config.Config
	logger *zap.Logger

	dbPool     *database.PoolManager
	redisCache *cache.Manager
	repo       *storage.Repository

	pipeline *pipeline.Manager
}

// newLocalStack 按依赖顺序装配本地处理栈。ffmpeg 缺失直接失败。
func newLocalStack(cfg *config.Config, logger *zap.Logger, workers int) (*localStack, error) {
	if err := cfg.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	s := &localStack{cfg: cfg, logger: logger}

	// ffmpeg 预检
	processor := media.NewProcessor(cfg.FFmpeg, media.NewExecutor(), logger)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	version, err := processor.Version(ctx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg preflight failed: %w", err)
	}
	logger.Info("FFmpeg detected", zap.String("version", version))

	// 存储为可选项
	deps := pipeline.Deps{
		Processor:   processor,
		Exporter:    media.NewExporter(cfg.Storage.OutputDir, logger),
		CaptionOpts: cfg.Captions,
		TempDir:     cfg.Storage.TempDir,
	}

	assets := media.NewAssetLibrary(cfg.Storage.AssetsDir, logger)
	if err := assets.EnsurePlaceholders(); err != nil {
		logger.Warn("failed to prepare effect assets", zap.Error(err))
	}
	deps.Effects = media.NewEffects(processor, assets, cfg.Pipeline.MaxMemeMoments, logger)

	if cfg.OpenAI.APIKey == "" {
		logger.Warn("OpenAI API key not configured, transcription and analysis will fail")
	}
	client := ai.NewClient(cfg.OpenAI, logger)
	whisper := ai.NewWhisper(cfg.OpenAI, cfg.Whisper, logger)
	deps.Whisper = whisper
	deps.Analyzer = ai.NewAnalyzer(client, cfg.OpenAI, logger)

	s.initOptionalStorage(&deps)

	pipelineCfg := cfg.Pipeline
	if workers > 0 {
		pipelineCfg.Workers = workers
	}
	manager, err := pipeline.NewManager(pipelineCfg, deps, logger)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create pipeline manager: %w", err)
	}
	s.pipeline = manager

	return s, nil
}

// initOptionalStorage 尝试接上数据库与 Redis，失败只告警。
// serve 模式下数据库不可用是致命的；批处理模式下退化为纯本地流程。
func (s *localStack) initOptionalStorage(deps *pipeline.Deps) {
	if s.cfg.Database.AutoMigrate {
		if err := s.migrateUp(); err != nil {
			s.logger.Warn("auto-migration failed, continuing without history", zap.Error(err))
			return
		}
	}

	db, err := openDatabase(s.cfg.Database, s.logger)
	if err != nil {
		s.logger.Warn("database not available, continuing without history", zap.Error(err))
		return
	}

	poolCfg := database.DefaultPoolConfig()
	poolCfg.MaxIdleConns = s.cfg.Database.MaxIdleConns
	poolCfg.MaxOpenConns = s.cfg.Database.MaxOpenConns
	poolCfg.ConnMaxLifetime = s.cfg.Database.ConnMaxLifetime

	pool, err := database.NewPoolManager(db, poolCfg, s.logger)
	if err != nil {
		s.logger.Warn("database pool not available, continuing without history", zap.Error(err))
		return
	}
	s.dbPool = pool

	repo, err := storage.NewRepository(pool, s.logger)
	if err != nil {
		s.logger.Warn("repository not available, continuing without history", zap.Error(err))
		return
	}
	s.repo = repo
	deps.History = repo

	if s.cfg.Redis.Enabled {
		redisCache, err := cache.NewManager(cache.Config{
			Addr:         s.cfg.Redis.Addr,
			Password:     s.cfg.Redis.Password,
			DB:           s.cfg.Redis.DB,
			DefaultTTL:   s.cfg.Storage.CacheTTL,
			PoolSize:     s.cfg.Redis.PoolSize,
			MinIdleConns: s.cfg.Redis.MinIdleConns,
		}, s.logger)
		if err != nil {
			s.logger.Warn("Redis not available, transcription cache degrades to database only", zap.Error(err))
		} else {
			s.redisCache = redisCache
			deps.Dedup = redisCache
		}
	}

	transcriptionCache, err := storage.NewTranscriptionCache(repo, s.redisCache, s.cfg.Storage.CacheTTL, s.logger)
	if err != nil {
		s.logger.Warn("transcription cache not available", zap.Error(err))
		return
	}
	deps.Cache = transcriptionCache
}

func (s *localStack) migrateUp() error {
	migrator, err := migration.NewMigratorFromDatabaseConfig(s.cfg.Database)
	if err != nil {
		return err
	}
	defer migrator.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	return migrator.Up(ctx)
}

// Close 排空在途任务并释放连接
func (s *localStack) Close() {
	if s.pipeline != nil {
		s.pipeline.Close()
	}
	if s.redisCache != nil {
		if err := s.redisCache.Close(); err != nil {
			s.logger.Warn("Redis shutdown error", zap.Error(err))
		}
	}
	if s.dbPool != nil {
		if err := s.dbPool.Close(); err != nil {
			s.logger.Warn("Database shutdown error", zap.Error(err))
		}
	}
}

// run 提交一个视频并阻塞到终态。onEvent 非空时对每条进度事件回调
// （process 模式打到控制台，watch 模式走结构化日志则传 nil）。
func (s *localStack) run(ctx context.Context, path string, opts pipeline.Options, onEvent func(pipeline.Event)) (*pipeline.Job, error) {
	job, err := s.pipeline.Submit(ctx, path, filepath.Base(path), opts)
	if err != nil {
		return nil, err
	}

	sub, err := s.pipeline.Subscribe(job.ID)
	if err != nil {
		return nil, err
	}
	defer sub.Close()

	// 订阅后快照一次，避免在首条事件前任务已经结束
	if snap, err := s.pipeline.Job(job.ID); err == nil && snap.Status.Terminal() {
		return snap, nil
	}

	for {
		ev, err := sub.Receive(ctx)
		if err != nil {
			break
		}
		if onEvent != nil {
			onEvent(ev)
		}
		if ev.Status.Terminal() {
			break
		}
	}

	return s.pipeline.Job(job.ID)
}

// isVideoFile 报告路径是否带受支持的视频扩展名，与上传白名单一致。
func isVideoFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".avi", ".mov", ".mkv", ".webm":
		return true
	}
	return false
}
