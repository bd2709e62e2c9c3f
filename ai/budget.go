package ai

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// promptBudget 把长转写截断到 token 预算内，避免撑爆模型上下文。
// tiktoken 编码数据首次使用时才加载，加载失败退回字符估算。
type promptBudget struct {
	model  string
	limit  int
	logger *zap.Logger

	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error
}

func newPromptBudget(model string, limit int, logger *zap.Logger) *promptBudget {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &promptBudget{model: model, limit: limit, logger: logger}
}

func (b *promptBudget) init() error {
	b.once.Do(func() {
		enc, err := tiktoken.EncodingForModel(b.model)
		if err != nil {
			enc, err = tiktoken.GetEncoding("cl100k_base")
		}
		if err != nil {
			b.initErr = fmt.Errorf("init tiktoken encoding: %w", err)
			return
		}
		b.enc = enc
	})
	return b.initErr
}

// Truncate 返回截断到预算内的文本，预算内的输入原样返回。
func (b *promptBudget) Truncate(text string) string {
	if b.limit <= 0 || text == "" {
		return text
	}
	if err := b.init(); err != nil {
		b.logger.Warn("tiktoken unavailable, falling back to character estimate",
			zap.Error(err))
		return truncateByEstimate(text, b.limit)
	}

	tokens := b.enc.Encode(text, nil, nil)
	if len(tokens) <= b.limit {
		return text
	}
	b.logger.Warn("transcript exceeds prompt budget, truncating",
		zap.Int("tokens", len(tokens)),
		zap.Int("limit", b.limit))
	return b.enc.Decode(tokens[:b.limit])
}

// truncateByEstimate 按每 token 约 4 字节估算截断，落在 rune 边界上。
func truncateByEstimate(text string, limit int) string {
	cut := limit * 4
	if len(text) <= cut {
		return text
	}
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
