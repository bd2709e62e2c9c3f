package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/clipforge/ai"
	"github.com/BaSui01/clipforge/api/handlers"
	"github.com/BaSui01/clipforge/config"
	"github.com/BaSui01/clipforge/internal/cache"
	"github.com/BaSui01/clipforge/internal/database"
	"github.com/BaSui01/clipforge/internal/metrics"
	"github.com/BaSui01/clipforge/internal/migration"
	"github.com/BaSui01/clipforge/internal/server"
	"github.com/BaSui01/clipforge/internal/telemetry"
	"github.com/BaSui01/clipforge/media"
	"github.com/BaSui01/clipforge/pipeline"
	"github.com/BaSui01/clipforge/storage"
	"github.com/BaSui01/clipforge/web"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 ClipForge 的主服务器，按依赖顺序装配所有组件。
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 指标收集器
	metricsCollector *metrics.Collector

	// 遥测
	otelProviders *telemetry.Providers

	// 基础设施
	dbPool     *database.PoolManager
	redisCache *cache.Manager

	// 持久层
	repo               *storage.Repository
	transcriptionCache *storage.TranscriptionCache

	// 媒体与 AI
	processor *media.Processor
	whisper   *ai.Whisper

	// 流水线
	pipeline *pipeline.Manager

	// 后台 goroutine 生命周期（限流清理、缓存清扫）
	backgroundCtx    context.Context
	backgroundCancel context.CancelFunc

	wg sync.WaitGroup
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger) *Server {
	return &Server{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 按依赖顺序启动所有服务
func (s *Server) Start() error {
	s.backgroundCtx, s.backgroundCancel = context.WithCancel(context.Background())

	// 1. 遥测（失败只告警，不阻断启动）
	otelProviders, err := telemetry.Init(s.cfg.Telemetry, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	s.otelProviders = otelProviders

	// 2. 指标收集器
	s.metricsCollector = metrics.NewCollector("clipforge", s.logger)

	// 3. 工作目录
	if err := s.cfg.EnsureDirs(); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	// 4. 数据库（迁移 → 连接池 → 仓储 → 转写缓存）
	if err := s.initStorage(); err != nil {
		return fmt.Errorf("failed to init storage: %w", err)
	}

	// 5. 媒体与 AI 组件 + 流水线
	if err := s.initPipeline(); err != nil {
		return fmt.Errorf("failed to init pipeline: %w", err)
	}

	// 6. HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 7. Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// 8. 转写缓存后台清扫
	s.startCacheJanitor()

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("database", s.cfg.Database.Driver),
		zap.Bool("redis", s.redisCache != nil),
	)

	return nil
}

// =============================================================================
// 🗄️ 存储初始化
// =============================================================================

// initStorage 建立数据库连接池、仓储与转写缓存。
// Redis 不可用时告警降级，转写缓存退化为纯数据库路径。
func (s *Server) initStorage() error {
	// 自动迁移：启动前把 schema 推到最新
	if s.cfg.Database.AutoMigrate {
		if err := s.runAutoMigrations(); err != nil {
			return fmt.Errorf("auto-migration failed: %w", err)
		}
	}

	db, err := openDatabase(s.cfg.Database, s.logger)
	if err != nil {
		return err
	}

	poolCfg := database.DefaultPoolConfig()
	poolCfg.MaxIdleConns = s.cfg.Database.MaxIdleConns
	poolCfg.MaxOpenConns = s.cfg.Database.MaxOpenConns
	poolCfg.ConnMaxLifetime = s.cfg.Database.ConnMaxLifetime

	pool, err := database.NewPoolManager(db, poolCfg, s.logger)
	if err != nil {
		return fmt.Errorf("failed to create pool manager: %w", err)
	}
	pool.SetMetrics(s.metricsCollector)
	s.dbPool = pool

	// Redis 可选：连不上只降级
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
		}
	}

	repo, err := storage.NewRepository(pool, s.logger)
	if err != nil {
		return fmt.Errorf("failed to create repository: %w", err)
	}
	repo.SetMetrics(s.metricsCollector)
	s.repo = repo

	transcriptionCache, err := storage.NewTranscriptionCache(repo, s.redisCache, s.cfg.Storage.CacheTTL, s.logger)
	if err != nil {
		return fmt.Errorf("failed to create transcription cache: %w", err)
	}
	transcriptionCache.SetMetrics(s.metricsCollector)
	s.transcriptionCache = transcriptionCache

	return nil
}

// runAutoMigrations 把数据库 schema 迁移到最新版本
func (s *Server) runAutoMigrations() error {
	migrator, err := migration.NewMigratorFromDatabaseConfig(s.cfg.Database)
	if err != nil {
		return err
	}
	defer migrator.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := migrator.Up(ctx); err != nil {
		return err
	}

	s.logger.Info("Database migrations applied")
	return nil
}

// =============================================================================
// 🎬 流水线初始化
// =============================================================================

// initPipeline 装配媒体处理、AI 与调度器。ffmpeg 缺失直接失败，
// OpenAI Key 缺失时转写与分析会在运行时报错，这里只告警。
func (s *Server) initPipeline() error {
	// ffmpeg 预检：没有 ffmpeg 服务没有存在意义
	processor := media.NewProcessor(s.cfg.FFmpeg, media.NewExecutor(), s.logger)
	processor.SetMetrics(s.metricsCollector)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	version, err := processor.Version(ctx)
	if err != nil {
		return fmt.Errorf("ffmpeg preflight failed: %w", err)
	}
	s.logger.Info("FFmpeg detected", zap.String("version", version))
	s.processor = processor

	// 特效素材库：占位素材生成失败只降级（特效跳过缺失素材）
	assets := media.NewAssetLibrary(s.cfg.Storage.AssetsDir, s.logger)
	if err := assets.EnsurePlaceholders(); err != nil {
		s.logger.Warn("failed to prepare effect assets", zap.Error(err))
	}

	effects := media.NewEffects(processor, assets, s.cfg.Pipeline.MaxMemeMoments, s.logger)
	exporter := media.NewExporter(s.cfg.Storage.OutputDir, s.logger)

	// AI 客户端
	if s.cfg.OpenAI.APIKey == "" {
		s.logger.Warn("OpenAI API key not configured, transcription and analysis will fail")
	}
	client := ai.NewClient(s.cfg.OpenAI, s.logger)
	client.SetMetrics(s.metricsCollector)

	whisper := ai.NewWhisper(s.cfg.OpenAI, s.cfg.Whisper, s.logger)
	whisper.SetMetrics(s.metricsCollector)
	s.whisper = whisper

	analyzer := ai.NewAnalyzer(client, s.cfg.OpenAI, s.logger)

	deps := pipeline.Deps{
		Processor:   processor,
		Effects:     effects,
		Exporter:    exporter,
		Whisper:     whisper,
		Analyzer:    analyzer,
		Cache:       s.transcriptionCache,
		History:     s.repo,
		CaptionOpts: s.cfg.Captions,
		TempDir:     s.cfg.Storage.TempDir,
	}
	// 接口字段不能塞 typed nil
	if s.redisCache != nil {
		deps.Dedup = s.redisCache
	}

	manager, err := pipeline.NewManager(s.cfg.Pipeline, deps, s.logger)
	if err != nil {
		return fmt.Errorf("failed to create pipeline manager: %w", err)
	}
	manager.SetMetrics(s.metricsCollector)
	s.pipeline = manager

	return nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 装配 Handler、路由与中间件链并启动监听
func (s *Server) startHTTPServer() error {
	signer, err := handlers.NewDownloadSigner(s.cfg.Auth.DownloadSecret, s.cfg.Auth.DownloadTokenTTL)
	if err != nil {
		return fmt.Errorf("failed to create download signer: %w", err)
	}
	if s.cfg.Auth.DownloadSecret == "" {
		s.logger.Warn("download secret not configured, tokens invalidate on restart")
	}

	// 健康检查
	healthHandler := handlers.NewHealthHandler(s.logger)
	healthHandler.RegisterCheck(handlers.NewDatabaseHealthCheck("database", s.dbPool.Ping))
	if s.redisCache != nil {
		healthHandler.RegisterCheck(handlers.NewRedisHealthCheck("redis", s.redisCache.Ping))
	}
	healthHandler.RegisterCheck(handlers.NewFFmpegHealthCheck("ffmpeg", func(ctx context.Context) error {
		_, err := s.processor.Version(ctx)
		return err
	}))

	// 业务 Handler
	uploadHandler := handlers.NewUploadHandler(s.pipeline, s.cfg.Storage, s.logger)
	uploadHandler.SetMetrics(s.metricsCollector)
	jobsHandler := handlers.NewJobsHandler(s.pipeline, signer, s.logger)
	eventsHandler := handlers.NewEventsHandler(s.pipeline, s.logger)
	downloadHandler := handlers.NewDownloadHandler(s.pipeline, signer, s.logger)
	historyHandler := handlers.NewHistoryHandler(s.repo, s.logger)

	// 内嵌控制台
	home, err := web.NewHandler(web.Config{
		Version:  Version,
		Storage:  s.cfg.Storage,
		Whisper:  s.cfg.Whisper,
		Captions: s.cfg.Captions,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("failed to create web handler: %w", err)
	}

	mux := handlers.NewRouter(handlers.RouterConfig{
		Upload:    uploadHandler,
		Jobs:      jobsHandler,
		Events:    eventsHandler,
		Download:  downloadHandler,
		History:   historyHandler,
		Health:    healthHandler,
		Home:      home,
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	})

	// ========================================
	// 构建中间件链
	// ========================================
	skipAuthPaths := []string{"/", "/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}
	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		OTelTracing(),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(s.backgroundCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
	}
	// API Key 未配置视为单机部署，不挂认证
	if len(s.cfg.Auth.APIKeys) > 0 {
		middlewares = append(middlewares, APIKeyAuth(s.cfg.Auth.APIKeys, skipAuthPaths, s.logger))
	}
	handler := Chain(mux, middlewares...)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🧹 后台清扫
// =============================================================================

// startCacheJanitor 周期清理过期的数据库转写缓存条目。
// Redis 条目随 TTL 自动过期，这里只管数据库侧。
func (s *Server) startCacheJanitor() {
	maxAge := s.cfg.Storage.CacheMaxAge
	if maxAge <= 0 {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(12 * time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-s.backgroundCtx.Done():
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(s.backgroundCtx, time.Minute)
				removed, err := s.repo.CleanupCache(ctx, maxAge)
				cancel()
				if err != nil {
					s.logger.Warn("transcription cache cleanup failed", zap.Error(err))
					continue
				}
				if removed > 0 {
					s.logger.Info("transcription cache cleaned",
						zap.Int64("removed", removed),
						zap.Duration("max_age", maxAge),
					)
				}
			}
		}
	}()
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	// 使用 httpManager 的 WaitForShutdown（它会监听信号）
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}

	// 执行清理
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务。顺序：先停入口，再排空在途任务，
// 最后释放存储连接。
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	// 1. 关闭 HTTP 服务器（不再接收新任务）
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 2. 排空流水线在途任务
	if s.pipeline != nil {
		s.pipeline.Close()
	}

	// 3. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 4. 停止后台 goroutine（限流清理、缓存清扫）
	if s.backgroundCancel != nil {
		s.backgroundCancel()
	}
	s.wg.Wait()

	// 5. 释放存储连接
	if s.redisCache != nil {
		if err := s.redisCache.Close(); err != nil {
			s.logger.Error("Redis shutdown error", zap.Error(err))
		}
	}
	if s.dbPool != nil {
		if err := s.dbPool.Close(); err != nil {
			s.logger.Error("Database shutdown error", zap.Error(err))
		}
	}

	// 6. 遥测收尾
	if s.otelProviders != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := s.otelProviders.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
		cancel()
	}

	s.logger.Info("Graceful shutdown completed")
}
