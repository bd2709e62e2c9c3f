package handlers

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/BaSui01/clipforge/api"
	"github.com/BaSui01/clipforge/pipeline"
	"github.com/BaSui01/clipforge/types"
	"go.uber.org/zap"
)

// JobService 任务服务接口，生产实现为 pipeline.Manager。
type JobService interface {
	Submit(ctx context.Context, sourcePath, filename string, opts pipeline.Options) (*pipeline.Job, error)
	Job(jobID string) (*pipeline.Job, error)
	Jobs() []*pipeline.Job
	Cancel(jobID string) error
	Subscribe(jobID string) (*pipeline.Subscriber, error)
}

// =============================================================================
// 🎬 任务 Handler
// =============================================================================

// JobsHandler 处理任务提交、查询、列表与取消。
type JobsHandler struct {
	jobs   JobService
	signer *DownloadSigner
	logger *zap.Logger
}

// NewJobsHandler 创建任务处理器
func NewJobsHandler(jobs JobService, signer *DownloadSigner, logger *zap.Logger) *JobsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobsHandler{
		jobs:   jobs,
		signer: signer,
		logger: logger.With(zap.String("component", "jobs_handler")),
	}
}

// HandleSubmit 处理 POST /api/v1/jobs
// @Summary 提交处理任务
// @Description 以服务器本地路径提交处理任务，batch/watch 模式的 HTTP 对等入口
// @Tags 任务
// @Accept json
// @Produce json
// @Param request body api.SubmitJobRequest true "任务提交请求"
// @Success 202 {object} Response{data=api.JobView} "任务已入队"
// @Failure 400 {object} Response "无效请求"
// @Failure 404 {object} Response "源文件不存在"
// @Failure 409 {object} Response "相同内容正在处理"
// @Failure 429 {object} Response "处理队列已满"
// @Security ApiKeyAuth
// @Router /v1/jobs [post]
func (h *JobsHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.SubmitJobRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	req.Path = strings.TrimSpace(req.Path)
	if req.Path == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "path is required", h.logger)
		return
	}

	job, err := h.jobs.Submit(r.Context(), req.Path, filepath.Base(req.Path), req.Options)
	if err != nil {
		writeJobError(w, err, h.logger)
		return
	}

	h.logger.Info("job submitted",
		zap.String("job_id", job.ID),
		zap.String("path", req.Path),
	)

	WriteJSON(w, http.StatusAccepted, Response{
		Success:   true,
		Data:      h.view(job),
		Timestamp: time.Now(),
		RequestID: requestIDOf(w),
	})
}

// HandleList 处理 GET /api/v1/jobs
// @Summary 任务列表
// @Description 返回按创建时间倒序的全部任务
// @Tags 任务
// @Produce json
// @Success 200 {object} Response{data=api.JobListView} "任务列表"
// @Security ApiKeyAuth
// @Router /v1/jobs [get]
func (h *JobsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	jobs := h.jobs.Jobs()

	views := make([]api.JobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, h.view(job))
	}

	WriteSuccess(w, api.JobListView{Jobs: views, Count: len(views)})
}

// HandleGet 处理 GET /api/v1/jobs/{id}
// @Summary 任务详情
// @Description 返回单个任务的状态、进度与结果
// @Tags 任务
// @Produce json
// @Param id path string true "任务 ID"
// @Success 200 {object} Response{data=api.JobView} "任务详情"
// @Failure 404 {object} Response "任务不存在"
// @Security ApiKeyAuth
// @Router /v1/jobs/{id} [get]
func (h *JobsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.Job(r.PathValue("id"))
	if err != nil {
		writeJobError(w, err, h.logger)
		return
	}

	WriteSuccess(w, h.view(job))
}

// HandleCancel 处理 DELETE /api/v1/jobs/{id}
// @Summary 取消任务
// @Description 取消排队或处理中的任务，终态任务返回 409
// @Tags 任务
// @Produce json
// @Param id path string true "任务 ID"
// @Success 200 {object} Response{data=api.JobView} "取消已发起"
// @Failure 404 {object} Response "任务不存在"
// @Failure 409 {object} Response "任务已结束"
// @Security ApiKeyAuth
// @Router /v1/jobs/{id} [delete]
func (h *JobsHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.jobs.Cancel(id); err != nil {
		writeJobError(w, err, h.logger)
		return
	}

	h.logger.Info("job cancellation requested", zap.String("job_id", id))

	job, err := h.jobs.Job(id)
	if err != nil {
		writeJobError(w, err, h.logger)
		return
	}
	WriteSuccess(w, h.view(job))
}

// view 构造任务视图，完成的任务附带签名下载链接。
func (h *JobsHandler) view(job *pipeline.Job) api.JobView {
	v := api.JobView{Job: *job}
	if h.signer == nil || job.Status != pipeline.StatusCompleted || job.Result == nil {
		return v
	}
	url, err := h.signer.DownloadURL(job.ID)
	if err != nil {
		h.logger.Warn("failed to mint download token", zap.String("job_id", job.ID), zap.Error(err))
		return v
	}
	v.DownloadURL = url
	return v
}

// writeJobError 将流水线错误写为统一响应，非结构化错误归为 500。
func writeJobError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var apiErr *types.Error
	if errors.As(err, &apiErr) {
		WriteError(w, apiErr, logger)
		return
	}
	WriteError(w, types.WrapError(types.ErrInternal, "request failed", err), logger)
}
