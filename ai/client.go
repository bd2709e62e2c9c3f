package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/clipforge/config"
	"github.com/BaSui01/clipforge/internal/tlsutil"
	"github.com/BaSui01/clipforge/types"
)

const (
	defaultBaseURL = "https://api.openai.com"
	chatEndpoint   = "/v1/chat/completions"

	// chatOperation 是聊天补全调用的指标标签。
	chatOperation = "chat_completions"
)

// Message roles on the chat completions wire.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// ChatMessage 表示一条对话消息。
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest 表示一次聊天补全请求。Model 为空时使用配置的分析模型。
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float32       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// ChatChoice 表示响应中的单个候选。
type ChatChoice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason"`
	Message      ChatMessage `json:"message"`
}

// ChatUsage 表示 token 用量。
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse 表示聊天补全响应。
type ChatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Created int64        `json:"created,omitempty"`
	Choices []ChatChoice `json:"choices"`
	Usage   *ChatUsage   `json:"usage,omitempty"`
}

// MetricsRecorder receives timing and token usage for every upstream call.
type MetricsRecorder interface {
	RecordOpenAIRequest(endpoint, model, status string, duration time.Duration, promptTokens, completionTokens int)
}

// Client 是手写的 OpenAI 聊天补全客户端。429 与 5xx 按指数退避重试，
// 其余错误立即返回。
type Client struct {
	cfg     config.OpenAIConfig
	http    *http.Client
	logger  *zap.Logger
	metrics MetricsRecorder

	retryInitialDelay time.Duration
	retryMaxDelay     time.Duration
}

// NewClient creates a chat client from the OpenAI config. Zero values fall
// back to the production defaults (api.openai.com, gpt-4, 2m timeout).
func NewClient(cfg config.OpenAIConfig, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:               cfg,
		http:              tlsutil.SecureHTTPClient(cfg.Timeout),
		logger:            logger.With(zap.String("component", "openai_client")),
		retryInitialDelay: time.Second,
		retryMaxDelay:     30 * time.Second,
	}
}

// SetMetrics 挂接指标采集器。
func (c *Client) SetMetrics(m MetricsRecorder) { c.metrics = m }

// Model returns the configured analysis model.
func (c *Client) Model() string { return c.cfg.Model }

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}

// Complete 执行一次聊天补全，对可重试错误做最多 MaxRetries 次退避重试。
func (c *Client) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, types.NewError(types.ErrAPIKeyMissing, "OPENAI_API_KEY is not set").
			WithHTTPStatus(http.StatusUnauthorized).WithComponent("openai")
	}
	if req.Model == "" {
		req.Model = c.cfg.Model
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt)
			c.logger.Warn("retrying chat completion",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := c.doChat(ctx, req.Model, payload)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !types.IsRetryable(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("chat completion failed after %d retries: %w", c.cfg.MaxRetries, lastErr)
}

// CompleteText 以 system+user 两条消息发起补全，返回首个候选的正文。
func (c *Client) CompleteText(ctx context.Context, system, user string, temperature float32, maxTokens int) (string, error) {
	resp, err := c.Complete(ctx, ChatRequest{
		Messages: []ChatMessage{
			{Role: RoleSystem, Content: system},
			{Role: RoleUser, Content: user},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// doChat performs a single HTTP round trip.
func (c *Client) doChat(ctx context.Context, model string, payload []byte) (resp *ChatResponse, err error) {
	start := time.Now()
	defer func() { c.record(chatOperation, model, start, resp, err) }()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(chatEndpoint), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, types.WrapError(types.ErrUpstreamError, "openai request failed", err).
			WithHTTPStatus(http.StatusBadGateway).WithRetryable(true).WithComponent("openai")
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		return nil, mapHTTPError(httpResp.StatusCode, readErrorMessage(httpResp.Body), "openai")
	}

	var out ChatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&out); err != nil {
		return nil, types.WrapError(types.ErrUpstreamError, "decode chat response", err).
			WithHTTPStatus(http.StatusBadGateway).WithRetryable(true).WithComponent("openai")
	}
	if len(out.Choices) == 0 {
		return nil, types.NewError(types.ErrUpstreamError, "chat response has no choices").
			WithHTTPStatus(http.StatusBadGateway).WithComponent("openai")
	}
	return &out, nil
}

func (c *Client) record(endpoint, model string, start time.Time, resp *ChatResponse, err error) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	var promptTokens, completionTokens int
	if resp != nil && resp.Usage != nil {
		promptTokens = resp.Usage.PromptTokens
		completionTokens = resp.Usage.CompletionTokens
	}
	c.metrics.RecordOpenAIRequest(endpoint, model, status, time.Since(start), promptTokens, completionTokens)
}

func (c *Client) backoff(attempt int) time.Duration {
	delay := float64(c.retryInitialDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}
	return time.Duration(delay)
}

// readErrorMessage 读取错误响应体，优先解析 OpenAI 的错误 JSON，
// 解析失败时退回原始文本。
func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 8<<10))
	if err != nil {
		return "failed to read error response"
	}

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		if errResp.Error.Type != "" {
			return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
		}
		return errResp.Error.Message
	}
	return strings.TrimSpace(string(data))
}

// mapHTTPError 将上游 HTTP 状态码映射到统一错误码，并标记可重试性。
func mapHTTPError(status int, msg, component string) *types.Error {
	var e *types.Error
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		e = types.NewError(types.ErrUnauthorized, msg)
	case http.StatusNotFound:
		e = types.NewError(types.ErrNotFound, msg)
	case http.StatusTooManyRequests:
		e = types.NewError(types.ErrRateLimited, msg).WithRetryable(true)
	case http.StatusBadRequest:
		e = types.NewError(types.ErrInvalidRequest, msg)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		e = types.NewError(types.ErrUpstreamTimeout, msg).WithRetryable(true)
	default:
		e = types.NewError(types.ErrUpstreamError, msg).WithRetryable(status >= 500)
	}
	return e.WithHTTPStatus(status).WithComponent(component)
}
