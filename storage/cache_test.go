package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/clipforge/internal/cache"
	"github.com/BaSui01/clipforge/types"
)

// =============================================================================
// 🧪 TranscriptionCache 测试
// =============================================================================

func setupTestCache(t *testing.T) (*TranscriptionCache, *miniredis.Miniredis) {
	t.Helper()

	repo := setupTestRepository(t)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	redisCache, err := cache.NewManager(cache.Config{
		Addr:       mr.Addr(),
		DefaultTTL: time.Minute,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisCache.Close() })

	tc, err := NewTranscriptionCache(repo, redisCache, time.Hour, zaptest.NewLogger(t))
	require.NoError(t, err)
	return tc, mr
}

func TestNewTranscriptionCache_RequiresRepository(t *testing.T) {
	_, err := NewTranscriptionCache(nil, nil, 0, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repository cannot be nil")
}

func TestTranscriptionCache_MissThenPutThenRedisHit(t *testing.T) {
	tc, mr := setupTestCache(t)
	metrics := newFakeCacheMetrics()
	tc.SetMetrics(metrics)
	ctx := context.Background()

	got, err := tc.Get(ctx, "hash1", "base")
	require.NoError(t, err)
	assert.Nil(t, got)

	hits, misses := metrics.snapshot()
	assert.Empty(t, hits)
	assert.Equal(t, 1, misses[cacheTypeRedis])
	assert.Equal(t, 1, misses[cacheTypeDatabase])

	transcript := &types.Transcript{Text: "cached words", Model: "base", Duration: 2 * time.Second}
	captions := []types.Caption{{Start: 0, End: 2 * time.Second, Text: "cached words"}}
	require.NoError(t, tc.Put(ctx, "hash1", "demo.mp4", "base", transcript, captions))
	assert.True(t, mr.Exists("clipforge:transcription:hash1:base"))

	got, err = tc.Get(ctx, "hash1", "base")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "hash1", got.FileHash)
	assert.Equal(t, "demo.mp4", got.Filename)
	assert.Equal(t, "base", got.Model)
	require.NotNil(t, got.Transcript)
	assert.Equal(t, "cached words", got.Transcript.Text)
	require.Len(t, got.Captions, 1)
	assert.False(t, got.CachedAt.IsZero())

	hits, _ = metrics.snapshot()
	assert.Equal(t, 1, hits[cacheTypeRedis])
	assert.Zero(t, hits[cacheTypeDatabase])
}

func TestTranscriptionCache_DatabaseFallbackBackfillsRedis(t *testing.T) {
	tc, mr := setupTestCache(t)
	metrics := newFakeCacheMetrics()
	tc.SetMetrics(metrics)
	ctx := context.Background()

	transcript := &types.Transcript{Text: "durable words", Model: "small"}
	require.NoError(t, tc.Put(ctx, "hash2", "talk.mov", "small", transcript, nil))

	// 清空 Redis，强制回落数据库
	mr.FlushAll()
	key := "clipforge:transcription:hash2:small"
	assert.False(t, mr.Exists(key))

	got, err := tc.Get(ctx, "hash2", "small")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "durable words", got.Transcript.Text)

	hits, misses := metrics.snapshot()
	assert.Equal(t, 1, misses[cacheTypeRedis])
	assert.Equal(t, 1, hits[cacheTypeDatabase])
	assert.True(t, mr.Exists(key))

	// 回填后再次查询走 Redis
	got, err = tc.Get(ctx, "hash2", "small")
	require.NoError(t, err)
	require.NotNil(t, got)

	hits, _ = metrics.snapshot()
	assert.Equal(t, 1, hits[cacheTypeRedis])
}

func TestTranscriptionCache_WithoutRedis(t *testing.T) {
	repo := setupTestRepository(t)
	tc, err := NewTranscriptionCache(repo, nil, 0, zaptest.NewLogger(t))
	require.NoError(t, err)

	metrics := newFakeCacheMetrics()
	tc.SetMetrics(metrics)
	ctx := context.Background()

	got, err := tc.Get(ctx, "hash3", "base")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, tc.Put(ctx, "hash3", "solo.mp4", "base", &types.Transcript{Text: "db only"}, nil))

	got, err = tc.Get(ctx, "hash3", "base")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "db only", got.Transcript.Text)

	hits, misses := metrics.snapshot()
	assert.Equal(t, 1, hits[cacheTypeDatabase])
	assert.Equal(t, 1, misses[cacheTypeDatabase])
	assert.Zero(t, hits[cacheTypeRedis])
	assert.Zero(t, misses[cacheTypeRedis])
}

func TestTranscriptionCache_Cleanup(t *testing.T) {
	tc, _ := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, tc.Put(ctx, "oldhash", "old.mp4", "base", &types.Transcript{Text: "old"}, nil))

	old := time.Now().Add(-40 * 24 * time.Hour)
	require.NoError(t, tc.repo.pool.DB().Model(&TranscriptionEntry{}).
		Where(map[string]interface{}{"file_hash": "oldhash"}).
		Update("created_at", old).Error)

	removed, err := tc.Cleanup(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

// =============================================================================
// 🔧 测试辅助
// =============================================================================

type fakeCacheMetrics struct {
	mu     sync.Mutex
	hits   map[string]int
	misses map[string]int
}

func newFakeCacheMetrics() *fakeCacheMetrics {
	return &fakeCacheMetrics{
		hits:   map[string]int{},
		misses: map[string]int{},
	}
}

func (f *fakeCacheMetrics) RecordCacheHit(cacheType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits[cacheType]++
}

func (f *fakeCacheMetrics) RecordCacheMiss(cacheType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.misses[cacheType]++
}

func (f *fakeCacheMetrics) snapshot() (hits, misses map[string]int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	hits = make(map[string]int, len(f.hits))
	for k, v := range f.hits {
		hits[k] = v
	}
	misses = make(map[string]int, len(f.misses))
	for k, v := range f.misses {
		misses[k] = v
	}
	return hits, misses
}
