package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/clipforge/pipeline"
	"github.com/BaSui01/clipforge/types"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// =============================================================================
// 📡 进度推送 Handler
// =============================================================================

// EventsHandler 推送任务进度事件，WebSocket 优先，
// Accept: text/event-stream 时回退 SSE。
type EventsHandler struct {
	jobs   JobService
	logger *zap.Logger
}

// NewEventsHandler 创建进度推送处理器
func NewEventsHandler(jobs JobService, logger *zap.Logger) *EventsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventsHandler{
		jobs:   jobs,
		logger: logger.With(zap.String("component", "events_handler")),
	}
}

// HandleEvents 处理 GET /api/v1/jobs/{id}/events
// @Summary 任务进度流
// @Description 推送任务进度事件。默认升级为 WebSocket；Accept 为 text/event-stream 时走 SSE。首条事件为当前状态快照，终态事件后正常关闭。
// @Tags 任务
// @Produce json
// @Param id path string true "任务 ID"
// @Success 101 {string} string "WebSocket 升级"
// @Success 200 {string} string "SSE 流"
// @Failure 404 {object} Response "任务不存在"
// @Security ApiKeyAuth
// @Router /v1/jobs/{id}/events [get]
func (h *EventsHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	// 先订阅再取快照，快照之后的事件不会漏掉
	sub, err := h.jobs.Subscribe(id)
	if err != nil {
		writeJobError(w, err, h.logger)
		return
	}
	defer sub.Close()

	snap, err := h.jobs.Job(id)
	if err != nil {
		writeJobError(w, err, h.logger)
		return
	}

	if wantsSSE(r) {
		h.serveSSE(w, r, snap, sub)
		return
	}
	h.serveWebSocket(w, r, snap, sub)
}

// wantsSSE 判断客户端是否要求 SSE 回退。
func wantsSSE(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// snapshotEvent 将任务当前状态合成为首条事件。
func snapshotEvent(job *pipeline.Job) pipeline.Event {
	return pipeline.Event{
		JobID:     job.ID,
		Stage:     job.Progress.Stage,
		Percent:   job.Progress.Percent,
		Message:   job.Progress.Message,
		Status:    job.Status,
		Error:     job.Error,
		Timestamp: time.Now(),
	}
}

func (h *EventsHandler) serveWebSocket(w http.ResponseWriter, r *http.Request, snap *pipeline.Job, sub *pipeline.Subscriber) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket accept failed", zap.String("job_id", snap.ID), zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream aborted")

	// 只写不读，CloseRead 在后台处理控制帧并在断开时取消 ctx
	ctx := conn.CloseRead(r.Context())

	if err := writeEventWS(ctx, conn, snapshotEvent(snap)); err != nil {
		return
	}
	if snap.Status.Terminal() {
		_ = conn.Close(websocket.StatusNormalClosure, "job finished")
		return
	}

	for {
		ev, err := sub.Receive(ctx)
		if err != nil {
			// 客户端断开或服务关闭
			return
		}
		if err := writeEventWS(ctx, conn, ev); err != nil {
			return
		}
		if ev.Status.Terminal() {
			_ = conn.Close(websocket.StatusNormalClosure, "job finished")
			return
		}
	}
}

func writeEventWS(ctx context.Context, conn *websocket.Conn, ev pipeline.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

func (h *EventsHandler) serveSSE(w http.ResponseWriter, r *http.Request, snap *pipeline.Job, sub *pipeline.Subscriber) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // 禁用 nginx 缓冲

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, types.NewError(types.ErrInternal, "streaming not supported"), h.logger)
		return
	}

	if err := writeEventSSE(w, flusher, snapshotEvent(snap)); err != nil {
		return
	}
	if snap.Status.Terminal() {
		return
	}

	ctx := r.Context()
	for {
		ev, err := sub.Receive(ctx)
		if err != nil {
			return
		}
		if err := writeEventSSE(w, flusher, ev); err != nil {
			return
		}
		if ev.Status.Terminal() {
			return
		}
	}
}

func writeEventSSE(w http.ResponseWriter, flusher http.Flusher, ev pipeline.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	if _, err := w.Write([]byte("\n\n")); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
