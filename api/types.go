package api

import (
	"time"

	"github.com/BaSui01/clipforge/pipeline"
	"github.com/BaSui01/clipforge/storage"
)

// =============================================================================
// 任务类型
// =============================================================================

// SubmitJobRequest 以服务器本地路径提交处理任务，batch/watch 模式的 HTTP 对等入口。
// @Description 服务器本地路径任务提交请求
type SubmitJobRequest struct {
	// 服务器上的视频文件路径
	Path string `json:"path" example:"/data/videos/demo.mp4" binding:"required"`
	// 功能开关与参数
	Options pipeline.Options `json:"options"`
}

// JobView 任务视图，任务完成后附带签名下载链接。
// @Description 任务状态视图
type JobView struct {
	pipeline.Job
	// 结果下载链接（含短期签名令牌，仅完成后出现）
	DownloadURL string `json:"download_url,omitempty" example:"/api/v1/jobs/01a/download?token=eyJ..."`
}

// JobListView 任务列表视图。
// @Description 任务列表
type JobListView struct {
	// 按创建时间倒序的任务
	Jobs []JobView `json:"jobs"`
	// 任务总数
	Count int `json:"count" example:"3"`
}

// =============================================================================
// 历史与统计类型
// =============================================================================

// HistoryView 处理历史视图。
// @Description 处理历史记录列表
type HistoryView struct {
	// 按时间倒序的历史记录
	Records []storage.ProcessingRecord `json:"records"`
	// 返回的记录数
	Count int `json:"count" example:"20"`
}

// StatsView 全局累计统计视图。
// @Description 全局累计统计
type StatsView struct {
	// 已处理视频数
	VideosProcessed int64 `json:"videos_processed" example:"42"`
	// 累计处理耗时（秒）
	TotalProcessingTime float64 `json:"total_processing_time" example:"3600.5"`
	// 平均单视频处理耗时（秒）
	AverageProcessingTime float64 `json:"average_processing_time" example:"85.7"`
	// 转写缓存命中节省的耗时（秒）
	TotalTimeSaved float64 `json:"total_time_saved" example:"820"`
	// 各功能累计使用次数
	FeaturesUsage map[string]int `json:"features_usage"`
	// 最近更新时间
	LastUpdated time.Time `json:"last_updated"`
}

// =============================================================================
// 偏好类型
// =============================================================================

// PreferenceRequest 偏好写入请求。
// @Description 用户偏好写入请求
type PreferenceRequest struct {
	// 偏好值
	Value string `json:"value" example:"tiktok" binding:"required"`
}

// PreferenceView 单条偏好视图。
// @Description 用户偏好
type PreferenceView struct {
	// 偏好键
	Key string `json:"key" example:"default_caption_style"`
	// 偏好值
	Value string `json:"value" example:"tiktok"`
}
