package web

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/clipforge/config"
	"github.com/BaSui01/clipforge/types"
)

//go:embed templates/*.html
var templateFS embed.FS

// acceptedFormats 与上传白名单保持一致，渲染进 <input accept>。
var acceptedFormats = []string{".mp4", ".avi", ".mov", ".mkv", ".webm"}

// modelOption Whisper 模型下拉项。
type modelOption struct {
	Value types.WhisperModel
	Label string
}

// styleOption 字幕风格下拉项。
type styleOption struct {
	Value types.CaptionStyle
	Label string
}

// pageData 渲染主页所需的全部数据，启动时构造一次。
type pageData struct {
	Version       string
	MaxFileSizeMB int
	AcceptFormats string
	WhisperModels []modelOption
	DefaultModel  types.WhisperModel
	CaptionStyles []styleOption
	DefaultStyle  types.CaptionStyle
}

// Config 控制台页面配置。
type Config struct {
	// Version 页脚展示的版本号
	Version string
	// Storage 用于读取上传大小限制
	Storage config.StorageConfig
	// Whisper 用于读取默认模型
	Whisper config.WhisperConfig
	// Captions 用于读取默认字幕风格
	Captions config.CaptionConfig
}

// =============================================================================
// 🖥️ 控制台页面 Handler
// =============================================================================

// Handler 渲染单页控制台。页面本身不含任何服务端状态，
// 上传、进度与历史全部走 /api/v1 接口。
type Handler struct {
	tmpl   *template.Template
	data   pageData
	logger *zap.Logger
}

// NewHandler 解析内嵌模板并构造页面数据。
func NewHandler(cfg Config, logger *zap.Logger) (*Handler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	data := pageData{
		Version:       cfg.Version,
		MaxFileSizeMB: cfg.Storage.MaxFileSizeMB,
		AcceptFormats: strings.Join(acceptedFormats, ","),
		WhisperModels: []modelOption{
			{Value: types.WhisperTiny, Label: "tiny — 最快，精度最低"},
			{Value: types.WhisperBase, Label: "base — 速度与精度平衡"},
			{Value: types.WhisperSmall, Label: "small — 精度更高"},
			{Value: types.WhisperMedium, Label: "medium — 高精度，较慢"},
			{Value: types.WhisperLarge, Label: "large — 最高精度，最慢"},
		},
		DefaultModel: types.WhisperModel(cfg.Whisper.Model),
		CaptionStyles: []styleOption{
			{Value: types.CaptionStyleStandard, Label: "Standard"},
			{Value: types.CaptionStyleTikTok, Label: "TikTok"},
			{Value: types.CaptionStyleYouTube, Label: "YouTube"},
			{Value: types.CaptionStyleCustom, Label: "Custom"},
		},
		DefaultStyle: types.CaptionStyle(cfg.Captions.DefaultStyle),
	}
	if !data.DefaultModel.Valid() {
		data.DefaultModel = types.WhisperBase
	}
	if !data.DefaultStyle.Valid() {
		data.DefaultStyle = types.CaptionStyleStandard
	}

	return &Handler{
		tmpl:   tmpl,
		data:   data,
		logger: logger.With(zap.String("component", "web")),
	}, nil
}

// ServeHTTP 渲染控制台主页。
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 先渲染到缓冲区，模板错误时还能返回干净的 500。
	var buf bytes.Buffer
	if err := h.tmpl.ExecuteTemplate(&buf, "index.html", h.data); err != nil {
		h.logger.Error("render home page", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}
