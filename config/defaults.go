// =============================================================================
// 📦 ClipForge 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		OpenAI:    DefaultOpenAIConfig(),
		Whisper:   DefaultWhisperConfig(),
		FFmpeg:    DefaultFFmpegConfig(),
		Pipeline:  DefaultPipelineConfig(),
		Captions:  DefaultCaptionConfig(),
		Storage:   DefaultStorageConfig(),
		Database:  DefaultDatabaseConfig(),
		Redis:     DefaultRedisConfig(),
		Auth:      DefaultAuthConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:           8501,
		MetricsPort:        9091,
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       10 * time.Minute,
		ShutdownTimeout:    15 * time.Second,
		RateLimitRPS:       100,
		RateLimitBurst:     200,
		CORSAllowedOrigins: nil,
	}
}

// DefaultOpenAIConfig 返回默认 OpenAI 配置
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		APIKey:          "",
		BaseURL:         "https://api.openai.com",
		Model:           "gpt-4",
		Timeout:         2 * time.Minute,
		MaxRetries:      3,
		MaxPromptTokens: 6000,
	}
}

// DefaultWhisperConfig 返回默认 Whisper 配置
func DefaultWhisperConfig() WhisperConfig {
	return WhisperConfig{
		Model:    "base",
		Device:   "cpu",
		Language: "",
		Timeout:  5 * time.Minute,
	}
}

// DefaultFFmpegConfig 返回默认 FFmpeg 配置
func DefaultFFmpegConfig() FFmpegConfig {
	return FFmpegConfig{
		BinaryPath: "ffmpeg",
		ProbePath:  "ffprobe",
		Timeout:    30 * time.Minute,
	}
}

// DefaultPipelineConfig 返回默认流水线配置
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Workers:         2,
		QueueSize:       16,
		JobTimeout:      time.Hour,
		StageRetries:    2,
		StageRetryDelay: 3 * time.Second,
		MaxMemeMoments:  5,
	}
}

// DefaultCaptionConfig 返回默认字幕配置
func DefaultCaptionConfig() CaptionConfig {
	return CaptionConfig{
		DefaultStyle:    "standard",
		FontSize:        24,
		FontColor:       "white",
		BackgroundColor: "black",
		Position:        "bottom",
	}
}

// DefaultStorageConfig 返回默认存储配置
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		TempDir:       "./temp",
		OutputDir:     "./output",
		AssetsDir:     "./assets",
		MaxFileSizeMB: 500,
		CacheTTL:      24 * time.Hour,
		CacheMaxAge:   30 * 24 * time.Hour,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Name:            "./clipforge.db",
		Host:            "localhost",
		Port:            5432,
		User:            "clipforge",
		Password:        "",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		AutoMigrate:     true,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:      false,
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultAuthConfig 返回默认鉴权配置
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		APIKeys:          nil,
		DownloadSecret:   "",
		DownloadTokenTTL: 24 * time.Hour,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       "info",
		Format:      "json",
		OutputPaths: []string{"stdout"},
		Dir:         "",
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "clipforge",
		SampleRate:   0.1,
	}
}
