// =============================================================================
// ClipForge 主入口
// =============================================================================
// 完整服务入口点，包含 HTTP 服务、处理流水线、健康检查、Prometheus 指标
//
// 使用方法:
//
//	clipforge serve                        # 启动服务
//	clipforge serve --config config.yaml   # 指定配置文件
//	clipforge process video.mp4            # 命令行处理单个视频
//	clipforge watch ./incoming             # 监听目录自动处理
//	clipforge version                      # 显示版本信息
//	clipforge health                       # 健康检查
//	clipforge migrate up                   # 运行数据库迁移
//	clipforge migrate down                 # 回滚最后一次迁移
//	clipforge migrate status               # 查看迁移状态
// =============================================================================

// @title ClipForge API
// @version 1.0.0
// @description ClipForge is an AI-assisted video editing service: automatic captions via Whisper, GPT content analysis, and Meme Mode effects on top of FFmpeg.
// @description
// @description ## Features
// @description - Video upload and asynchronous processing jobs
// @description - Whisper transcription with content-hash caching
// @description - Caption burn-in with style presets (Standard, TikTok, YouTube, Custom)
// @description - Meme Mode effects and GPT-suggested B-roll
// @description - Progress streaming via WebSocket (SSE fallback)
// @description - Processing history, statistics, and preferences

// @contact.name ClipForge Team
// @contact.url https://github.com/BaSui01/clipforge

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8501
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @description API key for authentication

package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/clipforge/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "process":
		runProcess(os.Args[2:])
	case "watch":
		runWatch(os.Args[2:])
	case "migrate":
		runMigrate(os.Args[2:])
	case "version":
		printVersion()
	case "health":
		runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) {
	// 解析命令行参数
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	port := fs.Int("port", 0, "Override HTTP port")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	if *port > 0 {
		cfg.Server.HTTPPort = *port
	}

	// 初始化日志
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting ClipForge",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	// 创建服务器并启动
	server := NewServer(cfg, *configPath, logger)
	if err := server.Start(); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}

	// 等待关闭信号
	server.WaitForShutdown()

	logger.Info("ClipForge stopped")
}

// loadConfig 加载并校验配置，Supabase 映射在校验前完成。
func loadConfig(configPath string) *config.Config {
	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	applySupabase(cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	return cfg
}

// applySupabase 把 Supabase 配置折叠进数据库配置。
// Supabase 本质是托管 Postgres，URL 直接作为连接串使用；
// 已显式配置 DATABASE_URL 时不覆盖。
func applySupabase(cfg *config.Config) {
	if cfg.Supabase.URL == "" || cfg.Database.URL != "" {
		return
	}
	cfg.Database.Driver = "postgres"
	cfg.Database.URL = cfg.Supabase.URL
	if cfg.Supabase.Key != "" && cfg.Database.Password == "" {
		cfg.Database.Password = cfg.Supabase.Key
	}
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8501", "Server address")
	fs.Parse(args)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: status %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("OK")
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("ClipForge %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`ClipForge - AI Video Editor

Usage:
  clipforge <command> [options]

Commands:
  serve     Start the ClipForge server
  process   Process a single video from the command line
  watch     Watch a directory and process new videos
  migrate   Database migration commands
  version   Show version information
  health    Check server health
  help      Show this help message

Options for 'serve':
  --config <path>   Path to configuration file (YAML)
  --port <port>     Override HTTP port

Options for 'process':
  --config <path>       Path to configuration file (YAML)
  --captions            Burn in auto captions (default true)
  --meme                Apply Meme Mode effects
  --broll               Request B-roll suggestions
  --model <size>        Whisper model: tiny, base, small, medium, large
  --style <name>        Caption style: standard, tiktok, youtube, custom
  --language <code>     Language hint (ISO-639-1)

Options for 'watch':
  --config <path>       Path to configuration file (YAML)
  --concurrency <n>     Max videos processed in parallel (default 2)
  plus all 'process' options, applied to every detected video

Migration subcommands:
  migrate up        Apply all pending migrations
  migrate down      Rollback the last migration
  migrate status    Show migration status
  migrate version   Show current migration version
  migrate goto <v>  Migrate to a specific version
  migrate force <v> Force set migration version
  migrate reset     Rollback all migrations

Examples:
  clipforge serve
  clipforge serve --config /etc/clipforge/config.yaml
  clipforge process demo.mp4 --meme --style tiktok
  clipforge watch ./incoming --concurrency 2
  clipforge migrate up
  clipforge health --addr http://localhost:8501
  clipforge version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	// 解析日志级别
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	// 配置编码器
	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	// 输出路径：LOG_DIR 配置后追加文件输出
	outputPaths := cfg.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = []string{"stdout"}
	}
	if cfg.Dir != "" {
		outputPaths = append(outputPaths, filepath.Join(cfg.Dir, "clipforge.log"))
	}

	// 构建配置
	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         cfg.Format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	} else {
		zapConfig.Encoding = "json"
	}

	// 构建 logger
	logger, err := zapConfig.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}

	return logger
}

// openDatabase 根据配置打开数据库连接
func openDatabase(dbCfg config.DatabaseConfig, logger *zap.Logger) (*gorm.DB, error) {
	if dbCfg.Driver == "" {
		return nil, fmt.Errorf("database driver not configured")
	}

	var dialector gorm.Dialector
	switch dbCfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(dbCfg.DSN())
	case "postgres":
		dialector = postgres.Open(dbCfg.DSN())
	case "mysql":
		dialector = mysql.Open(dbCfg.DSN())
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: sqlite, postgres, mysql)", dbCfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	logger.Info("Database connected", zap.String("driver", dbCfg.Driver))
	return db, nil
}
