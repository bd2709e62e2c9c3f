// =============================================================================
// 📦 ClipForge 配置加载器
// =============================================================================
// 统一配置加载，支持 .env + YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("CLIPFORGE").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量（含裸名兼容别名）
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 ClipForge 的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// OpenAI GPT 内容分析配置
	OpenAI OpenAIConfig `yaml:"openai" env:"OPENAI"`

	// Whisper 语音识别配置
	Whisper WhisperConfig `yaml:"whisper" env:"WHISPER"`

	// FFmpeg 视频处理配置
	FFmpeg FFmpegConfig `yaml:"ffmpeg" env:"FFMPEG"`

	// Pipeline 处理流水线配置
	Pipeline PipelineConfig `yaml:"pipeline" env:"PIPELINE"`

	// Captions 字幕渲染配置
	Captions CaptionConfig `yaml:"captions" env:"CAPTIONS"`

	// Storage 文件存储配置
	Storage StorageConfig `yaml:"storage" env:"STORAGE"`

	// Database 数据库配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Redis 缓存配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Supabase 云端 Postgres 配置（可选）
	Supabase SupabaseConfig `yaml:"supabase" env:"SUPABASE"`

	// Auth 鉴权配置
	Auth AuthConfig `yaml:"auth" env:"AUTH"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时（上传大文件需要较长时间）
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每 IP 限流速率
	RateLimitRPS int `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 限流突发容量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// 跨域白名单（空表示仅同源，不放行跨域请求）
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
}

// OpenAIConfig GPT 内容分析配置
type OpenAIConfig struct {
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 分析模型
	Model string `yaml:"model" env:"MODEL"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 最大重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 提示词 Token 预算（转写文本超出时截断）
	MaxPromptTokens int `yaml:"max_prompt_tokens" env:"MAX_PROMPT_TOKENS"`
}

// WhisperConfig 语音识别配置
type WhisperConfig struct {
	// 模型规格: tiny, base, small, medium, large
	Model string `yaml:"model" env:"MODEL"`
	// 推理设备（仅记录，API 转写不使用）
	Device string `yaml:"device" env:"DEVICE"`
	// 语言提示（ISO-639-1，可空）
	Language string `yaml:"language" env:"LANGUAGE"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// FFmpegConfig 视频处理配置
type FFmpegConfig struct {
	// ffmpeg 可执行文件路径
	BinaryPath string `yaml:"binary_path" env:"BINARY_PATH"`
	// ffprobe 可执行文件路径
	ProbePath string `yaml:"probe_path" env:"PROBE_PATH"`
	// 单次调用超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// PipelineConfig 处理流水线配置
type PipelineConfig struct {
	// 并发 worker 数
	Workers int `yaml:"workers" env:"WORKERS"`
	// 任务队列容量
	QueueSize int `yaml:"queue_size" env:"QUEUE_SIZE"`
	// 单任务总超时
	JobTimeout time.Duration `yaml:"job_timeout" env:"JOB_TIMEOUT"`
	// 阶段失败重试次数
	StageRetries int `yaml:"stage_retries" env:"STAGE_RETRIES"`
	// 阶段重试间隔
	StageRetryDelay time.Duration `yaml:"stage_retry_delay" env:"STAGE_RETRY_DELAY"`
	// 每个视频最多应用的梗时刻数
	MaxMemeMoments int `yaml:"max_meme_moments" env:"MAX_MEME_MOMENTS"`
}

// CaptionConfig 字幕渲染配置
type CaptionConfig struct {
	// 默认样式: standard, tiktok, youtube, custom
	DefaultStyle string `yaml:"default_style" env:"DEFAULT_STYLE"`
	// 自定义样式字号
	FontSize int `yaml:"font_size" env:"FONT_SIZE"`
	// 自定义样式字体颜色
	FontColor string `yaml:"font_color" env:"FONT_COLOR"`
	// 自定义样式背景颜色
	BackgroundColor string `yaml:"background_color" env:"BACKGROUND_COLOR"`
	// 自定义样式位置: bottom, top, center
	Position string `yaml:"position" env:"POSITION"`
}

// StorageConfig 文件存储配置
type StorageConfig struct {
	// 临时工作目录
	TempDir string `yaml:"temp_dir" env:"TEMP_DIR"`
	// 成品输出目录
	OutputDir string `yaml:"output_dir" env:"OUTPUT_DIR"`
	// 特效素材目录（emojis/ 与 sounds/ 子目录）
	AssetsDir string `yaml:"assets_dir" env:"ASSETS_DIR"`
	// 上传大小上限（MB）
	MaxFileSizeMB int `yaml:"max_file_size_mb" env:"MAX_FILE_SIZE_MB"`
	// 转写缓存 Redis TTL
	CacheTTL time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
	// 转写缓存落库最长保留时间
	CacheMaxAge time.Duration `yaml:"cache_max_age" env:"CACHE_MAX_AGE"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: sqlite, postgres, mysql
	Driver string `yaml:"driver" env:"DRIVER"`
	// 完整连接串（优先于分字段，映射 DATABASE_URL）
	URL string `yaml:"url" env:"URL"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名（sqlite 时为文件路径）
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	// 启动时自动执行迁移
	AutoMigrate bool `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 是否启用（关闭时转写缓存仅落库）
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// SupabaseConfig 云端 Postgres 配置（可选，等价于 driver=postgres + URL）
type SupabaseConfig struct {
	// 项目 URL
	URL string `yaml:"url" env:"URL"`
	// 服务密钥
	Key string `yaml:"key" env:"KEY"`
}

// AuthConfig 鉴权配置
type AuthConfig struct {
	// API Key 列表（为空时不启用 API 鉴权）
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
	// 下载令牌签名密钥（为空时启动随机生成）
	DownloadSecret string `yaml:"download_secret" env:"DOWNLOAD_SECRET"`
	// 下载令牌有效期
	DownloadTokenTTL time.Duration `yaml:"download_token_ttl" env:"DOWNLOAD_TOKEN_TTL"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 日志文件目录（非空时追加文件输出）
	Dir string `yaml:"dir" env:"DIR"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	dotenvPath string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "CLIPFORGE",
		dotenvPath: ".env",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithDotenvPath 设置 .env 文件路径
func (l *Loader) WithDotenvPath(path string) *Loader {
	l.dotenvPath = path
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量（.env 先注入进程环境）
func (l *Loader) Load() (*Config, error) {
	// 1. .env 注入（文件不存在时忽略；已存在的环境变量不被覆盖）
	if l.dotenvPath != "" {
		if _, err := os.Stat(l.dotenvPath); err == nil {
			if err := godotenv.Load(l.dotenvPath); err != nil {
				return nil, fmt.Errorf("failed to load dotenv file: %w", err)
			}
		}
	}

	// 2. 从默认值开始
	cfg := DefaultConfig()

	// 3. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 4. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 5. 裸名兼容别名（OPENAI_API_KEY、OUTPUT_DIR 等历史部署变量）
	applyLegacyEnv(cfg)

	// 6. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		// 获取环境变量值
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		// 设置字段值
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔄 裸名兼容别名
// =============================================================================

// applyLegacyEnv 读取历史部署使用的裸环境变量名。
// 带 CLIPFORGE_ 前缀的变量优先，裸名只在对应字段仍为默认时不覆盖已有显式设置。
func applyLegacyEnv(cfg *Config) {
	setIfPresent := func(key string, apply func(string)) {
		if v := os.Getenv(key); v != "" {
			apply(v)
		}
	}

	setIfPresent("OPENAI_API_KEY", func(v string) {
		if cfg.OpenAI.APIKey == "" {
			cfg.OpenAI.APIKey = v
		}
	})
	setIfPresent("DATABASE_URL", func(v string) {
		if cfg.Database.URL == "" {
			cfg.Database.URL = v
		}
	})
	setIfPresent("SUPABASE_URL", func(v string) {
		if cfg.Supabase.URL == "" {
			cfg.Supabase.URL = v
		}
	})
	setIfPresent("SUPABASE_KEY", func(v string) {
		if cfg.Supabase.Key == "" {
			cfg.Supabase.Key = v
		}
	})
	setIfPresent("WHISPER_MODEL", func(v string) { cfg.Whisper.Model = v })
	setIfPresent("WHISPER_DEVICE", func(v string) { cfg.Whisper.Device = v })
	setIfPresent("FFMPEG_PATH", func(v string) { cfg.FFmpeg.BinaryPath = v })
	setIfPresent("TEMP_DIR", func(v string) { cfg.Storage.TempDir = v })
	setIfPresent("OUTPUT_DIR", func(v string) { cfg.Storage.OutputDir = v })
	setIfPresent("MAX_FILE_SIZE_MB", func(v string) {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Storage.MaxFileSizeMB = n
		}
	})
	setIfPresent("CAPTION_FONT_SIZE", func(v string) {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Captions.FontSize = n
		}
	})
	setIfPresent("CAPTION_FONT_COLOR", func(v string) { cfg.Captions.FontColor = v })
	setIfPresent("CAPTION_BACKGROUND_COLOR", func(v string) { cfg.Captions.BackgroundColor = v })
	setIfPresent("CAPTION_POSITION", func(v string) { cfg.Captions.Position = v })
	setIfPresent("LOG_LEVEL", func(v string) { cfg.Log.Level = v })
	setIfPresent("LOG_DIR", func(v string) { cfg.Log.Dir = v })
	setIfPresent("DEBUG", func(v string) {
		if b, err := strconv.ParseBool(v); err == nil && b {
			cfg.Log.Level = "debug"
			cfg.Log.Format = "console"
		}
	})
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Pipeline.Workers <= 0 {
		errs = append(errs, "pipeline workers must be positive")
	}
	if c.Storage.MaxFileSizeMB <= 0 {
		errs = append(errs, "max_file_size_mb must be positive")
	}
	if m := c.Whisper.Model; m != "tiny" && m != "base" && m != "small" && m != "medium" && m != "large" {
		errs = append(errs, fmt.Sprintf("unknown whisper model %q", m))
	}
	switch c.Captions.DefaultStyle {
	case "standard", "tiktok", "youtube", "custom":
	default:
		errs = append(errs, fmt.Sprintf("unknown caption style %q", c.Captions.DefaultStyle))
	}
	switch c.Database.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("unknown database driver %q", c.Database.Driver))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// EnsureDirs 创建运行所需目录（temp / output / logs）
func (c *Config) EnsureDirs() error {
	dirs := []string{c.Storage.TempDir, c.Storage.OutputDir}
	if c.Log.Dir != "" {
		dirs = append(dirs, c.Log.Dir)
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// MaxFileSizeBytes 返回上传大小上限（字节）
func (c *StorageConfig) MaxFileSizeBytes() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
