package pipeline

import (
	"context"
	"time"

	"github.com/BaSui01/clipforge/types"
)

// 阶段名，同时作为指标与进度事件的标签
const (
	StageProbe        = "probe"
	StageExtractAudio = "extract_audio"
	StageTranscribe   = "transcribe"
	StageCaptions     = "captions"
	StageAnalyze      = "analyze"
	StageBurnCaptions = "burn_captions"
	StageEffects      = "effects"
	StageExport       = "export"
)

// ErrorStrategy 阶段失败时的处理策略
type ErrorStrategy string

const (
	// ErrorStrategyFailFast 立即终止整个任务
	ErrorStrategyFailFast ErrorStrategy = "fail_fast"
	// ErrorStrategySkip 记录错误后继续后续阶段
	ErrorStrategySkip ErrorStrategy = "skip"
	// ErrorStrategyRetry 按配置重试，重试耗尽后终止
	ErrorStrategyRetry ErrorStrategy = "retry"
)

// ErrorPolicy 单个阶段的失败策略。零值等价于 fail_fast。
type ErrorPolicy struct {
	Strategy   ErrorStrategy
	MaxRetries int
	RetryDelay time.Duration
}

// Stage 流水线中的一个步骤
type Stage struct {
	name   string
	policy ErrorPolicy
	run    func(ctx context.Context, st *State) error
}

// Name 返回阶段名
func (s Stage) Name() string { return s.name }

// Policy 返回失败策略
func (s Stage) Policy() ErrorPolicy { return s.policy }

// State 单个任务在各阶段之间传递的工作区
type State struct {
	Job     Job
	WorkDir string

	Video      *types.VideoInfo
	AudioPath  string
	Transcript *types.Transcript
	Captions   []types.Caption
	Analysis   *types.AnalysisResult
	CurrentCut string // 最近一次渲染产物，初始为源文件
	ResultPath string
	CacheHit   bool

	notifyFn func(message string)
}

// notify 在当前阶段进度下推送一条细粒度消息
func (st *State) notify(message string) {
	if st.notifyFn != nil {
		st.notifyFn(message)
	}
}
