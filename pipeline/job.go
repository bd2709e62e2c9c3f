package pipeline

import (
	"fmt"
	"time"

	"github.com/BaSui01/clipforge/types"
)

// Status 任务生命周期状态
type Status string

const (
	StatusReady      Status = "ready"      // 已入队，等待 worker
	StatusProcessing Status = "processing" // 流水线执行中
	StatusCompleted  Status = "completed"  // 成品已导出
	StatusError      Status = "error"      // 失败、超时或被取消
)

// Terminal 报告状态是否为终态
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// 处理历史 features_used 取值
const (
	FeatureAutoCaptions = "auto_captions"
	FeatureMemeMode     = "meme_mode"
	FeatureBRoll        = "broll"
)

// Options 单个任务的功能开关与参数
type Options struct {
	AutoCaptions bool               `json:"auto_captions"`
	MemeMode     bool               `json:"meme_mode"`
	BRoll        bool               `json:"broll"`
	WhisperModel types.WhisperModel `json:"whisper_model,omitempty"`
	CaptionStyle types.CaptionStyle `json:"caption_style,omitempty"`
	Language     string             `json:"language,omitempty"`
}

// normalized 填充默认值并校验取值
func (o Options) normalized(defaultModel types.WhisperModel, defaultStyle types.CaptionStyle) (Options, error) {
	if o.WhisperModel == "" {
		o.WhisperModel = defaultModel
	}
	if !o.WhisperModel.Valid() {
		return o, types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("unknown whisper model %q", o.WhisperModel)).WithHTTPStatus(400)
	}
	if o.CaptionStyle == "" {
		o.CaptionStyle = defaultStyle
	}
	if !o.CaptionStyle.Valid() {
		return o, types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("unknown caption style %q", o.CaptionStyle)).WithHTTPStatus(400)
	}
	return o, nil
}

// needsTranscript 报告是否有功能依赖转写结果
func (o Options) needsTranscript() bool {
	return o.AutoCaptions || o.MemeMode || o.BRoll
}

// features 返回写入处理历史的功能列表
func (o Options) features() []string {
	var fs []string
	if o.AutoCaptions {
		fs = append(fs, FeatureAutoCaptions)
	}
	if o.MemeMode {
		fs = append(fs, FeatureMemeMode)
	}
	if o.BRoll {
		fs = append(fs, FeatureBRoll)
	}
	return fs
}

// Progress 当前所处阶段
type Progress struct {
	Stage   string  `json:"stage"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// JobResult 任务完成后的产物
type JobResult struct {
	OutputPath     string                `json:"output_path"`
	Analysis       *types.AnalysisResult `json:"analysis,omitempty"`
	CacheHit       bool                  `json:"cache_hit"`
	ProcessingTime float64               `json:"processing_time"` // 秒
}

// Job 一次视频处理任务。Manager 返回的是副本，可安全序列化。
type Job struct {
	ID         string     `json:"id"`
	SourcePath string     `json:"-"`
	Filename   string     `json:"filename"`
	FileHash   string     `json:"-"`
	FileSize   int64      `json:"file_size,omitempty"`
	Options    Options    `json:"options"`
	Status     Status     `json:"status"`
	Progress   Progress   `json:"progress"`
	Recent     []Progress `json:"recent,omitempty"` // 最近 5 条活动
	ResultPath string     `json:"-"`
	Result     *JobResult `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  time.Time  `json:"started_at,omitzero"`
	FinishedAt time.Time  `json:"finished_at,omitzero"`

	cancelled bool
}

// clone 深拷贝，Recent 切片独立
func (j *Job) clone() Job {
	out := *j
	if len(j.Recent) > 0 {
		out.Recent = make([]Progress, len(j.Recent))
		copy(out.Recent, j.Recent)
	}
	return out
}

// Event 广播给订阅者的进度事件
type Event struct {
	JobID     string    `json:"job_id"`
	Stage     string    `json:"stage"`
	Percent   float64   `json:"percent"`
	Message   string    `json:"message"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
