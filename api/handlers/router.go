package handlers

import "net/http"

// RouterConfig 路由装配参数。
// Home 为嵌入式网页 Handler，nil 时不挂载首页。
type RouterConfig struct {
	Upload   *UploadHandler
	Jobs     *JobsHandler
	Events   *EventsHandler
	Download *DownloadHandler
	History  *HistoryHandler
	Health   *HealthHandler
	Home     http.Handler

	Version   string
	BuildTime string
	GitCommit string
}

// NewRouter 装配应用路由（Go 1.22+ 方法路由）。
// 中间件链由 cmd/clipforge 在外层套接，/metrics 走独立监听。
func NewRouter(cfg RouterConfig) *http.ServeMux {
	mux := http.NewServeMux()

	// 健康与版本
	mux.HandleFunc("GET /health", cfg.Health.HandleHealth)
	mux.HandleFunc("GET /healthz", cfg.Health.HandleHealthz)
	mux.HandleFunc("GET /ready", cfg.Health.HandleReady)
	mux.HandleFunc("GET /readyz", cfg.Health.HandleReady)
	mux.HandleFunc("GET /version", cfg.Health.HandleVersion(cfg.Version, cfg.BuildTime, cfg.GitCommit))

	// 任务
	mux.HandleFunc("POST /api/v1/upload", cfg.Upload.HandleUpload)
	mux.HandleFunc("POST /api/v1/jobs", cfg.Jobs.HandleSubmit)
	mux.HandleFunc("GET /api/v1/jobs", cfg.Jobs.HandleList)
	mux.HandleFunc("GET /api/v1/jobs/{id}", cfg.Jobs.HandleGet)
	mux.HandleFunc("DELETE /api/v1/jobs/{id}", cfg.Jobs.HandleCancel)
	mux.HandleFunc("GET /api/v1/jobs/{id}/events", cfg.Events.HandleEvents)
	mux.HandleFunc("GET /api/v1/jobs/{id}/download", cfg.Download.HandleDownload)

	// 历史、统计与偏好
	mux.HandleFunc("GET /api/v1/history", cfg.History.HandleHistory)
	mux.HandleFunc("GET /api/v1/stats", cfg.History.HandleStats)
	mux.HandleFunc("GET /api/v1/preferences/{key}", cfg.History.HandlePreferenceGet)
	mux.HandleFunc("PUT /api/v1/preferences/{key}", cfg.History.HandlePreferenceSet)

	// 首页
	if cfg.Home != nil {
		mux.Handle("GET /{$}", cfg.Home)
	}

	return mux
}
