package metrics

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.httpRequestDuration)
	assert.NotNil(t, collector.jobsTotal)
	assert.NotNil(t, collector.stageExecutionsTotal)
	assert.NotNil(t, collector.ffmpegInvocationsTotal)
	assert.NotNil(t, collector.openaiRequestsTotal)
	assert.NotNil(t, collector.openaiTokensUsed)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	// 记录请求
	collector.RecordHTTPRequest("GET", "/test", 200, 100*time.Millisecond, 1024, 2048)

	// 验证指标
	count := testutil.CollectAndCount(collector.httpRequestsTotal)
	assert.Greater(t, count, 0)

	// 再记录一次相同的请求
	collector.RecordHTTPRequest("GET", "/test", 200, 50*time.Millisecond, 512, 1024)

	// 验证计数增加
	newCount := testutil.CollectAndCount(collector.httpRequestsTotal)
	assert.GreaterOrEqual(t, newCount, count)
}

func TestCollector_RecordJob(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	// 记录任务完成
	collector.RecordJob("completed", 90*time.Second)
	collector.RecordJob("error", 5*time.Second)

	// 验证指标
	count := testutil.CollectAndCount(collector.jobsTotal)
	assert.Greater(t, count, 0)

	durationCount := testutil.CollectAndCount(collector.jobDuration)
	assert.Greater(t, durationCount, 0)
}

func TestCollector_RecordStage(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	// 记录阶段执行
	collector.RecordStage("transcribe", "success", 30*time.Second)
	collector.RecordStageRetry("transcribe")

	// 验证指标
	count := testutil.CollectAndCount(collector.stageExecutionsTotal)
	assert.Greater(t, count, 0)

	retryCount := testutil.CollectAndCount(collector.stageRetriesTotal)
	assert.Greater(t, retryCount, 0)
}

func TestCollector_RecordFFmpeg(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	// 记录 ffmpeg 调用
	collector.RecordFFmpeg("extract_audio", "success", 2*time.Second)
	collector.RecordFFmpeg("probe", "error", 100*time.Millisecond)

	// 验证指标
	count := testutil.CollectAndCount(collector.ffmpegInvocationsTotal)
	assert.Greater(t, count, 0)

	durationCount := testutil.CollectAndCount(collector.ffmpegDuration)
	assert.Greater(t, durationCount, 0)
}

func TestCollector_RecordOpenAIRequest(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	// 记录 OpenAI 请求
	collector.RecordOpenAIRequest(
		"chat",
		"gpt-4",
		"success",
		500*time.Millisecond,
		100, // prompt tokens
		50,  // completion tokens
	)

	// 验证指标
	count := testutil.CollectAndCount(collector.openaiRequestsTotal)
	assert.Greater(t, count, 0)

	tokensCount := testutil.CollectAndCount(collector.openaiTokensUsed)
	assert.Greater(t, tokensCount, 0)
}

func TestCollector_RecordUpload(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	// 记录上传
	collector.RecordUpload("accepted", 10<<20)
	collector.RecordUpload("rejected", 0)

	// 验证指标
	count := testutil.CollectAndCount(collector.uploadsTotal)
	assert.Greater(t, count, 0)
}

func TestCollector_RecordCacheOperation(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	// 记录缓存命中
	collector.RecordCacheHit("transcription")

	// 记录缓存未命中
	collector.RecordCacheMiss("transcription")

	// 验证指标
	hitCount := testutil.CollectAndCount(collector.cacheHits)
	assert.Greater(t, hitCount, 0)

	missCount := testutil.CollectAndCount(collector.cacheMisses)
	assert.Greater(t, missCount, 0)
}

func TestCollector_RecordDatabaseQuery(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	// 记录数据库查询
	collector.RecordDBQuery("sqlite", "SELECT", 20*time.Millisecond)

	// 验证指标
	count := testutil.CollectAndCount(collector.dbQueryDuration)
	assert.Greater(t, count, 0)
}

func TestCollector_UpdateConnectionPool(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	// 更新连接池状态
	collector.RecordDBConnections("postgres", 10, 5)

	// 验证指标
	openCount := testutil.CollectAndCount(collector.dbConnectionsOpen)
	assert.Greater(t, openCount, 0)

	idleCount := testutil.CollectAndCount(collector.dbConnectionsIdle)
	assert.Greater(t, idleCount, 0)
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	// 并发记录多个指标
	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(id int) {
			collector.RecordHTTPRequest("GET", "/test", 200, 100*time.Millisecond, 1024, 2048)
			collector.RecordOpenAIRequest("chat", "gpt-4", "success", 500*time.Millisecond, 100, 50)
			collector.RecordStage("transcribe", "success", time.Second)
			collector.RecordCacheHit("transcription")
			done <- true
		}(i)
	}

	// 等待所有 goroutine 完成
	for i := 0; i < 10; i++ {
		<-done
	}

	// 验证指标被正确记录
	httpCount := testutil.CollectAndCount(collector.httpRequestsTotal)
	assert.Greater(t, httpCount, 0)

	openaiCount := testutil.CollectAndCount(collector.openaiRequestsTotal)
	assert.Greater(t, openaiCount, 0)

	cacheCount := testutil.CollectAndCount(collector.cacheHits)
	assert.Greater(t, cacheCount, 0)
}

func TestCollector_MetricsRegistration(t *testing.T) {
	logger := zap.NewNop()

	// 创建自定义 registry
	registry := prometheus.NewRegistry()

	// 创建 collector（会自动注册到默认 registry）
	collector := NewCollector(nextTestNamespace(), logger)

	// 手动注册到自定义 registry
	registry.MustRegister(collector.httpRequestsTotal)
	registry.MustRegister(collector.httpRequestDuration)

	// 记录一些数据
	collector.RecordHTTPRequest("GET", "/test", 200, 100*time.Millisecond, 0, 0)

	// 验证可以从自定义 registry 收集指标
	count := testutil.CollectAndCount(collector.httpRequestsTotal)
	assert.Greater(t, count, 0)
}

func TestStatusCode(t *testing.T) {
	cases := map[int]string{
		200: "2xx",
		204: "2xx",
		301: "3xx",
		404: "4xx",
		500: "5xx",
		100: "unknown",
	}
	for code, want := range cases {
		assert.Equal(t, want, statusCode(code))
	}
}
