package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/clipforge/config"
	"github.com/BaSui01/clipforge/internal/tlsutil"
	"github.com/BaSui01/clipforge/types"
)

const (
	transcriptionsEndpoint  = "/v1/audio/transcriptions"
	transcriptionsOperation = "transcriptions"

	// whisperAPIModel 是 API 侧唯一可用的模型名。配置里的规格
	// (tiny/base/...) 仅记录在结果里，用作缓存键的一部分。
	whisperAPIModel = "whisper-1"
)

// whisperSegment 是 verbose_json 响应中的单个分段。
type whisperSegment struct {
	ID               int     `json:"id"`
	Start            float64 `json:"start"`
	End              float64 `json:"end"`
	Text             string  `json:"text"`
	AvgLogprob       float64 `json:"avg_logprob"`
	CompressionRatio float64 `json:"compression_ratio"`
	NoSpeechProb     float64 `json:"no_speech_prob"`
}

// whisperResponse 是 verbose_json 格式的转写响应。
type whisperResponse struct {
	Task     string           `json:"task"`
	Language string           `json:"language"`
	Duration float64          `json:"duration"`
	Text     string           `json:"text"`
	Segments []whisperSegment `json:"segments"`
}

// Whisper 调用 OpenAI 音频转写接口，把 verbose_json 分段映射为
// 统一的 Transcript。
type Whisper struct {
	cfg     config.WhisperConfig
	apiKey  string
	baseURL string
	http    *http.Client
	logger  *zap.Logger
	metrics MetricsRecorder
}

// NewWhisper creates a transcription client. The API key and base URL are
// shared with the chat client config.
func NewWhisper(openAI config.OpenAIConfig, cfg config.WhisperConfig, logger *zap.Logger) *Whisper {
	baseURL := openAI.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "base"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Whisper{
		cfg:     cfg,
		apiKey:  openAI.APIKey,
		baseURL: baseURL,
		http:    tlsutil.UploadHTTPClient(timeout),
		logger:  logger.With(zap.String("component", "whisper")),
	}
}

// SetMetrics 挂接指标采集器。
func (w *Whisper) SetMetrics(m MetricsRecorder) { w.metrics = m }

// Model returns the requested model size, used for transcription cache keys.
func (w *Whisper) Model() string { return w.cfg.Model }

// TranscribeFile 打开音频文件并转写。
func (w *Whisper) TranscribeFile(ctx context.Context, path string) (*types.Transcript, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, types.WrapError(types.ErrTranscriptionFailed, "open audio file", err).
			WithComponent("whisper")
	}
	defer f.Close()
	return w.Transcribe(ctx, f, filepath.Base(path))
}

// Transcribe 上传音频流并返回转写结果。multipart 字段与 OpenAI 接口
// 对齐：file、model、可选 language、response_format=verbose_json。
func (w *Whisper) Transcribe(ctx context.Context, audio io.Reader, filename string) (t *types.Transcript, err error) {
	if strings.TrimSpace(w.apiKey) == "" {
		return nil, types.NewError(types.ErrAPIKeyMissing, "OPENAI_API_KEY is not set").
			WithHTTPStatus(http.StatusUnauthorized).WithComponent("whisper")
	}

	start := time.Now()
	defer func() { w.record(start, err) }()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return nil, types.WrapError(types.ErrTranscriptionFailed, "read audio stream", err).
			WithComponent("whisper")
	}
	fields := []struct{ name, value string }{
		{"model", whisperAPIModel},
		{"response_format", "verbose_json"},
		{"timestamp_granularities[]", "segment"},
	}
	if lang := strings.TrimSpace(w.cfg.Language); lang != "" {
		fields = append(fields, struct{ name, value string }{"language", lang})
	}
	for _, f := range fields {
		if err := writer.WriteField(f.name, f.value); err != nil {
			return nil, fmt.Errorf("write form field %s: %w", f.name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	url := strings.TrimRight(w.baseURL, "/") + transcriptionsEndpoint
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+w.apiKey)
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	httpResp, err := w.http.Do(httpReq)
	if err != nil {
		return nil, types.WrapError(types.ErrUpstreamError, "whisper request failed", err).
			WithHTTPStatus(http.StatusBadGateway).WithRetryable(true).WithComponent("whisper")
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		return nil, mapHTTPError(httpResp.StatusCode, readErrorMessage(httpResp.Body), "whisper")
	}

	var wr whisperResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&wr); err != nil {
		return nil, types.WrapError(types.ErrTranscriptionFailed, "decode whisper response", err).
			WithComponent("whisper")
	}

	out := &types.Transcript{
		Text:     strings.TrimSpace(wr.Text),
		Language: wr.Language,
		Duration: secondsToDuration(wr.Duration),
		Model:    w.cfg.Model,
		Segments: make([]types.TranscriptSegment, 0, len(wr.Segments)),
	}
	for _, seg := range wr.Segments {
		out.Segments = append(out.Segments, types.TranscriptSegment{
			ID:         seg.ID,
			Start:      secondsToDuration(seg.Start),
			End:        secondsToDuration(seg.End),
			Text:       strings.TrimSpace(seg.Text),
			Confidence: seg.AvgLogprob,
		})
	}

	w.logger.Info("transcription complete",
		zap.String("language", out.Language),
		zap.Duration("audio_duration", out.Duration),
		zap.Int("segments", len(out.Segments)))
	return out, nil
}

func (w *Whisper) record(start time.Time, err error) {
	if w.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	w.metrics.RecordOpenAIRequest(transcriptionsOperation, whisperAPIModel, status, time.Since(start), 0, 0)
}

// secondsToDuration 把 API 的浮点秒转为 time.Duration。
func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
