package storage

import (
	"time"

	"github.com/BaSui01/clipforge/types"
)

// 处理历史记录状态
const (
	StatusCompleted = "completed" // 处理成功
	StatusError     = "error"     // 处理失败或被取消
)

// ProcessingRecord 一次视频处理的历史记录，对应 processing_history 表。
type ProcessingRecord struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Filename       string    `gorm:"size:512;not null" json:"filename"`       // 原始文件名
	FileSize       int64     `json:"file_size"`                               // 字节
	Duration       float64   `json:"duration"`                                // 视频时长（秒）
	ProcessingTime float64   `json:"processing_time"`                         // 处理耗时（秒）
	FeaturesUsed   []string  `gorm:"serializer:json" json:"features_used"`    // 本次启用的功能
	Status         string    `gorm:"size:32;default:completed" json:"status"` // completed / error
	CreatedAt      time.Time `json:"created_at"`
}

// TableName 指定表名
func (ProcessingRecord) TableName() string {
	return "processing_history"
}

// TranscriptionEntry 转写缓存条目，对应 transcription_cache 表。
// (file_hash, model_used) 唯一，同一文件可按不同 Whisper 模型分别缓存。
type TranscriptionEntry struct {
	ID             int64             `gorm:"primaryKey;autoIncrement" json:"id"`
	FileHash       string            `gorm:"size:64;not null;uniqueIndex:uq_transcription_hash_model" json:"file_hash"` // 文件内容 SHA-256
	Filename       string            `gorm:"size:512;not null" json:"filename"`
	ModelUsed      string            `gorm:"size:32;not null;uniqueIndex:uq_transcription_hash_model" json:"model_used"`
	TranscriptData *types.Transcript `gorm:"serializer:json" json:"transcript,omitempty"`
	CaptionsData   []types.Caption   `gorm:"serializer:json" json:"captions,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// TableName 指定表名
func (TranscriptionEntry) TableName() string {
	return "transcription_cache"
}

// UserPreference 用户偏好键值对，对应 user_preferences 表。
type UserPreference struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Key       string    `gorm:"size:255;not null;uniqueIndex" json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 指定表名
func (UserPreference) TableName() string {
	return "user_preferences"
}

// AppStatistics 全局累计统计，单行表，对应 app_statistics 表。
type AppStatistics struct {
	ID                  int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	VideosProcessed     int64          `gorm:"default:0" json:"videos_processed"`      // 已处理视频数
	TotalProcessingTime float64        `gorm:"default:0" json:"total_processing_time"` // 累计处理耗时（秒）
	TotalTimeSaved      float64        `gorm:"default:0" json:"total_time_saved"`      // 缓存命中节省的耗时（秒）
	FeaturesUsage       map[string]int `gorm:"serializer:json" json:"features_usage"`  // 各功能累计使用次数
	LastUpdated         time.Time      `json:"last_updated"`
}

// TableName 指定表名
func (AppStatistics) TableName() string {
	return "app_statistics"
}
