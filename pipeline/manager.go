package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/clipforge/config"
	"github.com/BaSui01/clipforge/internal/pool"
	"github.com/BaSui01/clipforge/storage"
	"github.com/BaSui01/clipforge/types"
)

const (
	// 活动日志只保留最近 5 条，web 端原样展示
	recentEvents = 5
	// 终态任务在内存中的保留时长，超过后由清理循环回收
	finishedJobRetention = time.Hour
	janitorInterval      = 10 * time.Minute
	// 生命周期事件（排队、开始、完成、失败）使用的阶段名
	stageLifecycle = "job"
	// 去重锁键前缀，值为持锁任务的 ID
	dedupKeyPrefix = "clipforge:processing:"
)

// MetricsRecorder 流水线指标上报接口
type MetricsRecorder interface {
	RecordJob(status string, duration time.Duration)
	SetActiveJobs(n int)
	SetQueueDepth(n int)
	RecordStage(stage, status string, duration time.Duration)
	RecordStageRetry(stage string)
}

// Manager 视频处理流水线调度器。任务提交后由有界 worker 池
// 异步执行，进度通过 Broadcaster 扇出。
type Manager struct {
	cfg    config.PipelineConfig
	deps   Deps
	logger *zap.Logger

	broadcaster *Broadcaster
	workers     *pool.GoroutinePool

	mu      sync.RWMutex
	jobs    map[string]*Job
	cancels map[string]context.CancelFunc
	closed  bool

	metrics MetricsRecorder
	active  atomic.Int64
	done    chan struct{}
}

// NewManager 创建流水线调度器并启动后台清理循环
func NewManager(cfg config.PipelineConfig, deps Deps, logger *zap.Logger) (*Manager, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = time.Hour
	}

	log := logger.With(zap.String("component", "pipeline"))

	m := &Manager{
		cfg:         cfg,
		deps:        deps,
		logger:      log,
		broadcaster: NewBroadcaster(logger),
		jobs:        make(map[string]*Job),
		cancels:     make(map[string]context.CancelFunc),
		done:        make(chan struct{}),
	}
	m.workers = pool.NewGoroutinePool(pool.GoroutinePoolConfig{
		MaxWorkers:  cfg.Workers,
		QueueSize:   cfg.QueueSize,
		IdleTimeout: 5 * time.Minute,
		PanicHandler: func(r any) {
			log.Error("job panicked", zap.Any("panic", r))
		},
	})

	go m.janitorLoop()

	log.Info("pipeline manager started",
		zap.Int("workers", cfg.Workers),
		zap.Int("queue_size", cfg.QueueSize),
		zap.Duration("job_timeout", cfg.JobTimeout))
	return m, nil
}

// SetMetrics 注入指标采集器
func (m *Manager) SetMetrics(rec MetricsRecorder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = rec
}

func (m *Manager) recorder() MetricsRecorder {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metrics
}

// Submit 校验并入队一个处理任务。返回的 Job 是提交时刻的快照。
func (m *Manager) Submit(ctx context.Context, sourcePath, filename string, opts Options) (*Job, error) {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, types.NewError(types.ErrInternal, "pipeline is shutting down").WithHTTPStatus(503)
	}

	defaultStyle := types.CaptionStyle(m.deps.CaptionOpts.DefaultStyle)
	if !defaultStyle.Valid() {
		defaultStyle = types.CaptionStyleStandard
	}
	normOpts, err := opts.normalized(types.WhisperModel(m.deps.Whisper.Model()), defaultStyle)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(sourcePath)
	if err != nil {
		return nil, types.WrapError(types.ErrNotFound, "source video not accessible", err).WithHTTPStatus(404)
	}

	fileHash, err := storage.FileHash(sourcePath)
	if err != nil {
		return nil, types.WrapError(types.ErrStorageFailed, "failed to hash source video", err)
	}

	jobID := uuid.NewString()

	// 同一内容的视频同一时间只处理一份
	if m.deps.Dedup != nil {
		ok, err := m.deps.Dedup.SetNX(ctx, dedupKeyPrefix+fileHash, jobID, m.cfg.JobTimeout+time.Minute)
		if err != nil {
			m.logger.Warn("dedup lock unavailable", zap.String("job_id", jobID), zap.Error(err))
		} else if !ok {
			return nil, types.NewError(types.ErrInvalidRequest, "this video is already being processed").WithHTTPStatus(409)
		}
	}

	job := &Job{
		ID:         jobID,
		SourcePath: sourcePath,
		Filename:   filename,
		FileHash:   fileHash,
		FileSize:   info.Size(),
		Options:    normOpts,
		Status:     StatusReady,
		CreatedAt:  time.Now(),
	}

	jobCtx, cancel := context.WithTimeout(context.Background(), m.cfg.JobTimeout)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		m.releaseDedup(fileHash)
		return nil, types.NewError(types.ErrInternal, "pipeline is shutting down").WithHTTPStatus(503)
	}
	m.jobs[jobID] = job
	m.cancels[jobID] = cancel
	m.mu.Unlock()

	m.publishLifecycle(job, "queued", 0, "")

	err = m.workers.Submit(jobCtx, func(taskCtx context.Context) error {
		m.runJob(taskCtx, jobID)
		return nil
	})
	if err != nil {
		m.mu.Lock()
		delete(m.jobs, jobID)
		delete(m.cancels, jobID)
		m.mu.Unlock()
		cancel()
		m.releaseDedup(fileHash)

		if errors.Is(err, pool.ErrPoolFull) {
			return nil, types.NewError(types.ErrRateLimited, "processing queue is full, try again later").WithHTTPStatus(429)
		}
		return nil, types.WrapError(types.ErrInternal, "failed to enqueue job", err).WithHTTPStatus(503)
	}

	if rec := m.recorder(); rec != nil {
		rec.SetQueueDepth(m.workers.Stats().Queued)
	}

	m.logger.Info("job queued",
		zap.String("job_id", jobID),
		zap.String("filename", filename),
		zap.Strings("features", normOpts.features()),
		zap.String("whisper_model", string(normOpts.WhisperModel)))

	m.mu.RLock()
	snapshot := job.clone()
	m.mu.RUnlock()
	return &snapshot, nil
}

// Job 返回任务快照
func (m *Manager) Job(jobID string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, types.NewError(types.ErrJobNotFound, "job not found").WithHTTPStatus(404)
	}
	snapshot := job.clone()
	return &snapshot, nil
}

// Jobs 返回全部任务快照，按创建时间倒序
func (m *Manager) Jobs() []*Job {
	m.mu.RLock()
	out := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		snapshot := job.clone()
		out = append(out, &snapshot)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Cancel 请求取消一个未结束的任务。取消的任务以 error 终态收尾。
func (m *Manager) Cancel(jobID string) error {
	m.mu.Lock()
	job, ok := m.jobs[jobID]
	if !ok {
		m.mu.Unlock()
		return types.NewError(types.ErrJobNotFound, "job not found").WithHTTPStatus(404)
	}
	if job.Status.Terminal() {
		m.mu.Unlock()
		return types.NewError(types.ErrInvalidRequest, "job already finished").WithHTTPStatus(409)
	}
	job.cancelled = true
	cancel := m.cancels[jobID]
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.logger.Info("job cancel requested", zap.String("job_id", jobID))
	return nil
}

// Subscribe 订阅任务的进度事件。历史回放由调用方先读 Job 快照。
func (m *Manager) Subscribe(jobID string) (*Subscriber, error) {
	m.mu.RLock()
	_, ok := m.jobs[jobID]
	m.mu.RUnlock()
	if !ok {
		return nil, types.NewError(types.ErrJobNotFound, "job not found").WithHTTPStatus(404)
	}
	return m.broadcaster.Subscribe(jobID), nil
}

// ManagerStats 调度器运行快照
type ManagerStats struct {
	Jobs    int `json:"jobs"`
	Active  int `json:"active"`
	Queued  int `json:"queued"`
	Workers int `json:"workers"`
}

// Stats 返回当前调度状态
func (m *Manager) Stats() ManagerStats {
	m.mu.RLock()
	total := len(m.jobs)
	m.mu.RUnlock()

	ps := m.workers.Stats()
	return ManagerStats{
		Jobs:    total,
		Active:  ps.Active,
		Queued:  ps.Queued,
		Workers: ps.Workers,
	}
}

// Close 停止接收新任务，等待在途任务完成后关闭广播器
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	close(m.done)
	m.workers.Close()
	m.broadcaster.Close()
	m.logger.Info("pipeline manager stopped")
}

// ============================================================
// ⚙️ 任务执行
// ============================================================

func (m *Manager) runJob(ctx context.Context, jobID string) {
	m.mu.RLock()
	job, ok := m.jobs[jobID]
	if !ok {
		m.mu.RUnlock()
		return
	}
	sourcePath := job.SourcePath
	snapshot := job.clone()
	m.mu.RUnlock()

	// 排队期间被取消或超时
	if ctx.Err() != nil {
		m.failJob(jobID, ctx.Err())
		return
	}

	m.mu.Lock()
	job.Status = StatusProcessing
	job.StartedAt = time.Now()
	m.mu.Unlock()

	rec := m.recorder()
	if rec != nil {
		rec.SetActiveJobs(int(m.active.Add(1)))
		rec.SetQueueDepth(m.workers.Stats().Queued)
	}
	defer func() {
		if rec != nil {
			rec.SetActiveJobs(int(m.active.Add(-1)))
		}
	}()

	m.publishLifecycle(job, "processing started", 0, "")

	if m.deps.TempDir != "" {
		if err := os.MkdirAll(m.deps.TempDir, 0o755); err != nil {
			m.failJob(jobID, fmt.Errorf("failed to prepare temp dir: %w", err))
			return
		}
	}
	workDir, err := os.MkdirTemp(m.deps.TempDir, "clipforge-job-*")
	if err != nil {
		m.failJob(jobID, fmt.Errorf("failed to create work dir: %w", err))
		return
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			m.logger.Warn("failed to clean work dir",
				zap.String("job_id", jobID), zap.String("work_dir", workDir), zap.Error(err))
		}
	}()

	st := &State{
		Job:        snapshot,
		WorkDir:    workDir,
		CurrentCut: sourcePath,
	}

	stages := m.buildStages(st.Job.Options)
	for i, stage := range stages {
		percent := float64(i) / float64(len(stages)) * 100
		name := stage.name
		st.notifyFn = func(message string) {
			m.setProgress(jobID, name, percent, message)
		}
		m.setProgress(jobID, name, percent, "started")

		if err := m.runStage(ctx, stage, st); err != nil {
			m.failJob(jobID, err)
			return
		}
	}

	m.completeJob(jobID, st)
}

// runStage 按阶段策略执行：fail_fast 一次失败即终止，retry 重试
// 耗尽后终止，skip 失败后继续。上下文取消优先于所有策略。
func (m *Manager) runStage(ctx context.Context, stage Stage, st *State) error {
	rec := m.recorder()

	maxAttempts := 1
	if stage.policy.Strategy == ErrorStrategyRetry && stage.policy.MaxRetries > 0 {
		maxAttempts = stage.policy.MaxRetries + 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if rec != nil {
				rec.RecordStageRetry(stage.name)
			}
			m.logger.Warn("retrying stage",
				zap.String("job_id", st.Job.ID),
				zap.String("stage", stage.name),
				zap.Int("attempt", attempt+1),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return fmt.Errorf("stage %s: %w", stage.name, ctx.Err())
			case <-time.After(stage.policy.RetryDelay):
			}
		}

		start := time.Now()
		err := stage.run(ctx, st)
		elapsed := time.Since(start)

		if err == nil {
			if rec != nil {
				rec.RecordStage(stage.name, "success", elapsed)
			}
			m.logger.Debug("stage completed",
				zap.String("job_id", st.Job.ID),
				zap.String("stage", stage.name),
				zap.Duration("elapsed", elapsed))
			return nil
		}

		if rec != nil {
			rec.RecordStage(stage.name, "error", elapsed)
		}
		lastErr = err

		// 取消压过一切策略，skip 也不挽救一个已取消的任务
		if ctx.Err() != nil {
			return fmt.Errorf("stage %s: %w", stage.name, ctx.Err())
		}
	}

	if stage.policy.Strategy == ErrorStrategySkip {
		m.logger.Warn("stage failed, continuing",
			zap.String("job_id", st.Job.ID),
			zap.String("stage", stage.name),
			zap.Error(lastErr))
		st.notify("failed, continuing without it")
		return nil
	}
	return fmt.Errorf("stage %s failed: %w", stage.name, lastErr)
}

// completeJob 先做收尾记账（指标、历史、去重锁），最后才把状态置为
// 终态。外部一旦观察到终态，所有副作用都已落地。
func (m *Manager) completeJob(jobID string, st *State) {
	now := time.Now()

	m.mu.RLock()
	job, ok := m.jobs[jobID]
	if !ok {
		m.mu.RUnlock()
		return
	}
	startedAt := job.StartedAt
	fileHash := job.FileHash
	m.mu.RUnlock()

	duration := now.Sub(startedAt)
	processingTime := duration.Seconds()

	if rec := m.recorder(); rec != nil {
		rec.RecordJob("completed", duration)
	}
	m.recordHistory(job, st, storage.StatusCompleted, processingTime)
	m.releaseDedup(fileHash)
	m.dropCancel(jobID)

	m.mu.Lock()
	job.Status = StatusCompleted
	job.FinishedAt = now
	job.ResultPath = st.ResultPath
	job.Result = &JobResult{
		OutputPath:     st.ResultPath,
		Analysis:       st.Analysis,
		CacheHit:       st.CacheHit,
		ProcessingTime: processingTime,
	}
	job.Progress = Progress{Stage: stageLifecycle, Percent: 100, Message: "completed"}
	m.mu.Unlock()

	m.publishLifecycle(job, "completed", 100, "")
	m.logger.Info("job completed",
		zap.String("job_id", jobID),
		zap.String("result", st.ResultPath),
		zap.Bool("cache_hit", st.CacheHit),
		zap.Duration("elapsed", duration))
}

// failJob 与 completeJob 同序：记账在前，终态提交在后。
func (m *Manager) failJob(jobID string, cause error) {
	now := time.Now()

	m.mu.Lock()
	job, ok := m.jobs[jobID]
	if !ok {
		m.mu.Unlock()
		return
	}

	cancelled := job.cancelled || errors.Is(cause, context.Canceled)
	message := ""
	switch {
	case cancelled:
		message = "processing cancelled"
	case errors.Is(cause, context.DeadlineExceeded):
		message = fmt.Sprintf("processing timed out after %s", m.cfg.JobTimeout)
	default:
		message = cause.Error()
	}

	var duration time.Duration
	var processingTime float64
	if !job.StartedAt.IsZero() {
		duration = now.Sub(job.StartedAt)
		processingTime = duration.Seconds()
	}
	fileHash := job.FileHash
	percent := job.Progress.Percent
	m.mu.Unlock()

	status := "error"
	if cancelled {
		status = "cancelled"
	}
	if rec := m.recorder(); rec != nil {
		rec.RecordJob(status, duration)
	}
	m.recordHistory(job, nil, storage.StatusError, processingTime)
	m.releaseDedup(fileHash)
	m.dropCancel(jobID)

	m.mu.Lock()
	job.Status = StatusError
	job.Error = message
	job.FinishedAt = now
	job.Progress = Progress{Stage: stageLifecycle, Percent: percent, Message: message}
	m.mu.Unlock()

	m.publishLifecycle(job, message, percent, message)
	m.logger.Error("job failed",
		zap.String("job_id", jobID),
		zap.String("status", status),
		zap.Duration("elapsed", duration),
		zap.Error(cause))
}

// ============================================================
// 🔔 进度与收尾
// ============================================================

// setProgress 更新任务进度并广播。Recent 只留最近 5 条。
func (m *Manager) setProgress(jobID, stage string, percent float64, message string) {
	m.mu.Lock()
	job, ok := m.jobs[jobID]
	if !ok {
		m.mu.Unlock()
		return
	}
	job.Progress = Progress{Stage: stage, Percent: percent, Message: message}
	job.Recent = append(job.Recent, job.Progress)
	if len(job.Recent) > recentEvents {
		job.Recent = job.Recent[len(job.Recent)-recentEvents:]
	}
	status := job.Status
	m.mu.Unlock()

	m.broadcaster.Publish(Event{
		JobID:     jobID,
		Stage:     stage,
		Percent:   percent,
		Message:   message,
		Status:    status,
		Timestamp: time.Now(),
	})
}

// publishLifecycle 记录并广播一条生命周期事件
func (m *Manager) publishLifecycle(job *Job, message string, percent float64, errMsg string) {
	m.mu.Lock()
	job.Progress = Progress{Stage: stageLifecycle, Percent: percent, Message: message}
	job.Recent = append(job.Recent, job.Progress)
	if len(job.Recent) > recentEvents {
		job.Recent = job.Recent[len(job.Recent)-recentEvents:]
	}
	status := job.Status
	jobID := job.ID
	m.mu.Unlock()

	m.broadcaster.Publish(Event{
		JobID:     jobID,
		Stage:     stageLifecycle,
		Percent:   percent,
		Message:   message,
		Status:    status,
		Error:     errMsg,
		Timestamp: time.Now(),
	})
}

// recordHistory 写处理历史，失败只告警不影响任务结果
func (m *Manager) recordHistory(job *Job, st *State, status string, processingTime float64) {
	if m.deps.History == nil {
		return
	}

	var videoSeconds float64
	if st != nil && st.Video != nil {
		videoSeconds = st.Video.Duration.Seconds()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	record := &storage.ProcessingRecord{
		Filename:       job.Filename,
		FileSize:       job.FileSize,
		Duration:       videoSeconds,
		ProcessingTime: processingTime,
		FeaturesUsed:   job.Options.features(),
		Status:         status,
	}
	if err := m.deps.History.AddProcessingRecord(ctx, record); err != nil {
		m.logger.Warn("failed to record processing history",
			zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (m *Manager) releaseDedup(fileHash string) {
	if m.deps.Dedup == nil || fileHash == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.deps.Dedup.Delete(ctx, dedupKeyPrefix+fileHash); err != nil {
		m.logger.Warn("failed to release dedup lock", zap.Error(err))
	}
}

func (m *Manager) dropCancel(jobID string) {
	m.mu.Lock()
	cancel := m.cancels[jobID]
	delete(m.cancels, jobID)
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// ============================================================
// 🧹 终态任务清理
// ============================================================

func (m *Manager) janitorLoop() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Manager) sweep() {
	cutoff := time.Now().Add(-finishedJobRetention)

	m.mu.Lock()
	removed := 0
	for id, job := range m.jobs {
		if job.Status.Terminal() && !job.FinishedAt.IsZero() && job.FinishedAt.Before(cutoff) {
			delete(m.jobs, id)
			delete(m.cancels, id)
			removed++
		}
	}
	m.mu.Unlock()

	if removed > 0 {
		m.logger.Debug("swept finished jobs", zap.Int("removed", removed))
	}
}
