package handlers

import (
	"net/http"
	"strconv"

	"github.com/BaSui01/clipforge/api"
	"github.com/BaSui01/clipforge/storage"
	"github.com/BaSui01/clipforge/types"
	"go.uber.org/zap"
)

// maxPreferenceKeyLen 与 user_preferences.key 列宽一致。
const maxPreferenceKeyLen = 255

// =============================================================================
// 📜 历史与统计 Handler
// =============================================================================

// HistoryHandler 处理历史记录、累计统计与用户偏好。
type HistoryHandler struct {
	repo   *storage.Repository
	logger *zap.Logger
}

// NewHistoryHandler 创建历史统计处理器
func NewHistoryHandler(repo *storage.Repository, logger *zap.Logger) *HistoryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryHandler{
		repo:   repo,
		logger: logger.With(zap.String("component", "history_handler")),
	}
}

// HandleHistory 处理 GET /api/v1/history
// @Summary 处理历史
// @Description 返回按时间倒序的处理历史记录
// @Tags 历史
// @Produce json
// @Param limit query int false "返回条数上限，缺省且封顶 50"
// @Success 200 {object} Response{data=api.HistoryView} "历史记录"
// @Failure 400 {object} Response "无效请求"
// @Security ApiKeyAuth
// @Router /v1/history [get]
func (h *HistoryHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "limit must be a non-negative integer", h.logger)
			return
		}
		limit = n
	}

	records, err := h.repo.History(r.Context(), limit)
	if err != nil {
		WriteError(w, types.WrapError(types.ErrStorageFailed, "failed to load history", err), h.logger)
		return
	}
	if records == nil {
		records = []storage.ProcessingRecord{}
	}

	WriteSuccess(w, api.HistoryView{Records: records, Count: len(records)})
}

// HandleStats 处理 GET /api/v1/stats
// @Summary 累计统计
// @Description 返回全局累计统计与平均处理耗时
// @Tags 历史
// @Produce json
// @Success 200 {object} Response{data=api.StatsView} "累计统计"
// @Security ApiKeyAuth
// @Router /v1/stats [get]
func (h *HistoryHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.repo.Statistics(r.Context())
	if err != nil {
		WriteError(w, types.WrapError(types.ErrStorageFailed, "failed to load statistics", err), h.logger)
		return
	}

	view := api.StatsView{
		VideosProcessed:     stats.VideosProcessed,
		TotalProcessingTime: stats.TotalProcessingTime,
		TotalTimeSaved:      stats.TotalTimeSaved,
		FeaturesUsage:       stats.FeaturesUsage,
		LastUpdated:         stats.LastUpdated,
	}
	if view.FeaturesUsage == nil {
		view.FeaturesUsage = map[string]int{}
	}
	if stats.VideosProcessed > 0 {
		view.AverageProcessingTime = stats.TotalProcessingTime / float64(stats.VideosProcessed)
	}

	WriteSuccess(w, view)
}

// HandlePreferenceGet 处理 GET /api/v1/preferences/{key}
// @Summary 读取偏好
// @Description 返回单条用户偏好，未设置时返回 default 查询参数的值
// @Tags 偏好
// @Produce json
// @Param key path string true "偏好键"
// @Param default query string false "未设置时的回退值"
// @Success 200 {object} Response{data=api.PreferenceView} "偏好"
// @Failure 400 {object} Response "无效请求"
// @Security ApiKeyAuth
// @Router /v1/preferences/{key} [get]
func (h *HistoryHandler) HandlePreferenceGet(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if !validPreferenceKey(key) {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "invalid preference key", h.logger)
		return
	}

	value, err := h.repo.Preference(r.Context(), key, r.URL.Query().Get("default"))
	if err != nil {
		WriteError(w, types.WrapError(types.ErrStorageFailed, "failed to load preference", err), h.logger)
		return
	}

	WriteSuccess(w, api.PreferenceView{Key: key, Value: value})
}

// HandlePreferenceSet 处理 PUT /api/v1/preferences/{key}
// @Summary 写入偏好
// @Description 新建或覆盖单条用户偏好
// @Tags 偏好
// @Accept json
// @Produce json
// @Param key path string true "偏好键"
// @Param request body api.PreferenceRequest true "偏好值"
// @Success 200 {object} Response{data=api.PreferenceView} "写入后的偏好"
// @Failure 400 {object} Response "无效请求"
// @Security ApiKeyAuth
// @Router /v1/preferences/{key} [put]
func (h *HistoryHandler) HandlePreferenceSet(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if !validPreferenceKey(key) {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "invalid preference key", h.logger)
		return
	}

	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.PreferenceRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if err := h.repo.SetPreference(r.Context(), key, req.Value); err != nil {
		WriteError(w, types.WrapError(types.ErrStorageFailed, "failed to save preference", err), h.logger)
		return
	}

	h.logger.Info("preference updated", zap.String("key", key))

	WriteSuccess(w, api.PreferenceView{Key: key, Value: req.Value})
}

func validPreferenceKey(key string) bool {
	return key != "" && len(key) <= maxPreferenceKeyLen
}
