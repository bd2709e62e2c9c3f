package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BaSui01/clipforge/api"
	"github.com/BaSui01/clipforge/config"
	"github.com/BaSui01/clipforge/pipeline"
	"github.com/BaSui01/clipforge/types"
	"go.uber.org/zap"
)

// allowedVideoExtensions 上传白名单，与前端 accept 列表保持一致。
var allowedVideoExtensions = map[string]struct{}{
	".mp4":  {},
	".avi":  {},
	".mov":  {},
	".mkv":  {},
	".webm": {},
}

// formOverheadBytes multipart 边界与表单字段的额外预算。
const formOverheadBytes = 1 << 20

// multipartMemoryBytes 内存中保留的表单数据上限，超出部分落盘。
const multipartMemoryBytes = 32 << 20

// UploadMetrics 上传指标钩子。
type UploadMetrics interface {
	RecordUpload(status string, size int64)
}

// =============================================================================
// 📤 上传 Handler
// =============================================================================

// UploadHandler 处理 multipart 视频上传并创建处理任务。
type UploadHandler struct {
	jobs    JobService
	cfg     config.StorageConfig
	logger  *zap.Logger
	metrics UploadMetrics
}

// NewUploadHandler 创建上传处理器
func NewUploadHandler(jobs JobService, cfg config.StorageConfig, logger *zap.Logger) *UploadHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UploadHandler{
		jobs:   jobs,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "upload_handler")),
	}
}

// SetMetrics 注入上传指标钩子。
func (h *UploadHandler) SetMetrics(m UploadMetrics) {
	h.metrics = m
}

func (h *UploadHandler) recordUpload(status string, size int64) {
	if h.metrics != nil {
		h.metrics.RecordUpload(status, size)
	}
}

// HandleUpload 处理 POST /api/v1/upload
// @Summary 上传视频
// @Description 接收 multipart 视频文件，校验扩展名与大小后落盘并创建处理任务
// @Tags 任务
// @Accept multipart/form-data
// @Produce json
// @Param video formData file true "视频文件（mp4/avi/mov/mkv/webm）"
// @Param auto_captions formData boolean false "自动字幕"
// @Param meme_mode formData boolean false "梗模式特效"
// @Param broll formData boolean false "B-roll 建议"
// @Param whisper_model formData string false "Whisper 模型（tiny/base/small/medium/large）"
// @Param caption_style formData string false "字幕样式（standard/tiktok/youtube/custom）"
// @Param language formData string false "语言提示（ISO-639-1，空为自动检测）"
// @Success 202 {object} Response{data=api.JobView} "任务已入队"
// @Failure 400 {object} Response "无效请求"
// @Failure 413 {object} Response "文件超出大小上限"
// @Failure 415 {object} Response "不支持的视频格式"
// @Failure 429 {object} Response "处理队列已满"
// @Security ApiKeyAuth
// @Router /v1/upload [post]
func (h *UploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(h.cfg.MaxFileSizeMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+formOverheadBytes)

	if err := r.ParseMultipartForm(multipartMemoryBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.recordUpload("rejected", 0)
			WriteError(w, types.NewError(types.ErrFileTooLarge,
				fmt.Sprintf("upload exceeds the %d MB limit", h.cfg.MaxFileSizeMB)), h.logger)
			return
		}
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "malformed multipart form", h.logger)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("video")
	if err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, `multipart field "video" is required`, h.logger)
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if _, ok := allowedVideoExtensions[ext]; !ok {
		h.recordUpload("rejected", 0)
		WriteError(w, types.NewError(types.ErrUnsupportedFormat,
			fmt.Sprintf("unsupported video format %q", ext)), h.logger)
		return
	}

	opts := optionsFromForm(r)

	path, written, err := h.storeUpload(file, ext)
	if err != nil {
		h.recordUpload("error", 0)
		WriteError(w, types.WrapError(types.ErrStorageFailed, "failed to store upload", err), h.logger)
		return
	}

	job, err := h.jobs.Submit(r.Context(), path, header.Filename, opts)
	if err != nil {
		_ = os.Remove(path)
		h.recordUpload("rejected", written)
		writeJobError(w, err, h.logger)
		return
	}
	h.recordUpload("completed", written)

	// 任务终态后回收上传临时文件
	go h.reapSource(job.ID, path)

	h.logger.Info("video uploaded",
		zap.String("job_id", job.ID),
		zap.String("filename", header.Filename),
		zap.Int64("size", written),
	)

	WriteJSON(w, http.StatusAccepted, Response{
		Success:   true,
		Data:      api.JobView{Job: *job},
		Timestamp: time.Now(),
		RequestID: requestIDOf(w),
	})
}

// storeUpload 将上传内容写入临时目录，返回落盘路径与字节数。
func (h *UploadHandler) storeUpload(src io.Reader, ext string) (string, int64, error) {
	uploadDir := filepath.Join(h.cfg.TempDir, "uploads")
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create upload dir: %w", err)
	}

	dst, err := os.CreateTemp(uploadDir, "upload-*"+ext)
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}

	written, err := io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(dst.Name())
		return "", 0, fmt.Errorf("write upload: %w", err)
	}
	return dst.Name(), written, nil
}

// reapSource 等待任务终态后删除上传的临时源文件。
// 订阅先于快照检查，终态事件与先完成的任务都不会漏掉。
func (h *UploadHandler) reapSource(jobID, path string) {
	sub, err := h.jobs.Subscribe(jobID)
	if err != nil {
		h.removeSource(jobID, path)
		return
	}
	defer sub.Close()

	if job, err := h.jobs.Job(jobID); err != nil || job.Status.Terminal() {
		h.removeSource(jobID, path)
		return
	}

	for {
		ev, err := sub.Receive(context.Background())
		if err != nil || ev.Status.Terminal() {
			break
		}
	}
	h.removeSource(jobID, path)
}

func (h *UploadHandler) removeSource(jobID, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		h.logger.Warn("failed to remove uploaded source",
			zap.String("job_id", jobID),
			zap.String("path", path),
			zap.Error(err),
		)
		return
	}
	h.logger.Debug("uploaded source removed", zap.String("job_id", jobID))
}

// optionsFromForm 从表单字段解析功能开关，缺省值由流水线补齐。
func optionsFromForm(r *http.Request) pipeline.Options {
	return pipeline.Options{
		AutoCaptions: parseFormBool(r.FormValue("auto_captions")),
		MemeMode:     parseFormBool(r.FormValue("meme_mode")),
		BRoll:        parseFormBool(r.FormValue("broll")),
		WhisperModel: types.WhisperModel(strings.TrimSpace(r.FormValue("whisper_model"))),
		CaptionStyle: types.CaptionStyle(strings.TrimSpace(r.FormValue("caption_style"))),
		Language:     strings.TrimSpace(r.FormValue("language")),
	}
}

// parseFormBool 宽松解析表单布尔值，HTML checkbox 提交 "on"。
func parseFormBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	default:
		return false
	}
}
