package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/clipforge/internal/cache"
	"github.com/BaSui01/clipforge/types"
)

// 转写缓存的 Redis 键前缀
const transcriptionKeyPrefix = "clipforge:transcription:"

// 缓存指标的 cache_type 标签，按层分别统计命中率
const (
	cacheTypeRedis    = "transcription_redis"
	cacheTypeDatabase = "transcription_db"
)

// 未配置 TTL 时 Redis 条目的默认过期时间
const defaultEntryTTL = 24 * time.Hour

// CacheMetricsRecorder 缓存命中率上报接口
type CacheMetricsRecorder interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

// CachedTranscript 转写缓存的领域视图，Redis 与数据库两层共用。
type CachedTranscript struct {
	FileHash   string            `json:"file_hash"`
	Filename   string            `json:"filename"`
	Model      string            `json:"model"`
	Transcript *types.Transcript `json:"transcript,omitempty"`
	Captions   []types.Caption   `json:"captions,omitempty"`
	CachedAt   time.Time         `json:"cached_at"`
}

// TranscriptionCache 两级转写缓存：Redis 快路径加数据库持久层。
// redis 为 nil 时退化为纯数据库缓存，行为不变。
type TranscriptionCache struct {
	repo    *Repository
	redis   *cache.Manager
	ttl     time.Duration
	logger  *zap.Logger
	mu      sync.RWMutex
	metrics CacheMetricsRecorder
}

// NewTranscriptionCache 创建两级转写缓存。ttl 控制 Redis 条目过期，非正值取默认 24h。
func NewTranscriptionCache(repo *Repository, redisCache *cache.Manager, ttl time.Duration, logger *zap.Logger) (*TranscriptionCache, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultEntryTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TranscriptionCache{
		repo:   repo,
		redis:  redisCache,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "transcription_cache")),
	}, nil
}

// SetMetrics 设置指标上报器
func (tc *TranscriptionCache) SetMetrics(m CacheMetricsRecorder) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.metrics = m
}

// Get 依次查 Redis 与数据库，数据库命中时回填 Redis。两层都未命中返回 (nil, nil)。
func (tc *TranscriptionCache) Get(ctx context.Context, fileHash, model string) (*CachedTranscript, error) {
	key := transcriptionKey(fileHash, model)

	if tc.redis != nil {
		var cached CachedTranscript
		err := tc.redis.GetJSON(ctx, key, &cached)
		if err == nil {
			tc.recordHit(cacheTypeRedis)
			return &cached, nil
		}
		tc.recordMiss(cacheTypeRedis)
		if !cache.IsCacheMiss(err) {
			tc.logger.Warn("redis transcription lookup failed",
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}

	entry, err := tc.repo.CachedTranscription(ctx, fileHash, model)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		tc.recordMiss(cacheTypeDatabase)
		return nil, nil
	}
	tc.recordHit(cacheTypeDatabase)

	cached := &CachedTranscript{
		FileHash:   entry.FileHash,
		Filename:   entry.Filename,
		Model:      entry.ModelUsed,
		Transcript: entry.TranscriptData,
		Captions:   entry.CaptionsData,
		CachedAt:   entry.CreatedAt,
	}
	tc.backfill(ctx, key, cached)
	return cached, nil
}

// Put 先落库再写 Redis。数据库失败即整体失败，Redis 失败仅记录日志。
func (tc *TranscriptionCache) Put(ctx context.Context, fileHash, filename, model string, transcript *types.Transcript, captions []types.Caption) error {
	entry := &TranscriptionEntry{
		FileHash:       fileHash,
		Filename:       filename,
		ModelUsed:      model,
		TranscriptData: transcript,
		CaptionsData:   captions,
	}
	if err := tc.repo.CacheTranscription(ctx, entry); err != nil {
		return err
	}

	tc.backfill(ctx, transcriptionKey(fileHash, model), &CachedTranscript{
		FileHash:   fileHash,
		Filename:   filename,
		Model:      model,
		Transcript: transcript,
		Captions:   captions,
		CachedAt:   entry.CreatedAt,
	})
	return nil
}

// Cleanup 清理数据库中超过保留期的条目，Redis 条目随 TTL 自行过期。
func (tc *TranscriptionCache) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	return tc.repo.CleanupCache(ctx, olderThan)
}

// backfill 尽力写入 Redis，失败不向上传播
func (tc *TranscriptionCache) backfill(ctx context.Context, key string, cached *CachedTranscript) {
	if tc.redis == nil {
		return
	}
	if err := tc.redis.SetJSON(ctx, key, cached, tc.ttl); err != nil {
		tc.logger.Warn("redis transcription write failed",
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

func (tc *TranscriptionCache) recordHit(cacheType string) {
	tc.mu.RLock()
	m := tc.metrics
	tc.mu.RUnlock()

	if m != nil {
		m.RecordCacheHit(cacheType)
	}
}

func (tc *TranscriptionCache) recordMiss(cacheType string) {
	tc.mu.RLock()
	m := tc.metrics
	tc.mu.RUnlock()

	if m != nil {
		m.RecordCacheMiss(cacheType)
	}
}

func transcriptionKey(fileHash, model string) string {
	return transcriptionKeyPrefix + fileHash + ":" + model
}
