package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoroutinePool_SubmitWait(t *testing.T) {
	p := NewGoroutinePool(GoroutinePoolConfig{
		MaxWorkers:  2,
		QueueSize:   4,
		IdleTimeout: time.Second,
	})
	defer p.Close()

	var ran atomic.Bool
	err := p.SubmitWait(context.Background(), func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})

	require.NoError(t, err)
	assert.True(t, ran.Load())

	stats := p.Stats()
	assert.Equal(t, int64(1), stats.Submitted)
	assert.Equal(t, int64(1), stats.Completed)
}

func TestGoroutinePool_SubmitWaitError(t *testing.T) {
	p := NewGoroutinePool(GoroutinePoolConfig{
		MaxWorkers:  1,
		QueueSize:   1,
		IdleTimeout: time.Second,
	})
	defer p.Close()

	wantErr := errors.New("stage failed")
	err := p.SubmitWait(context.Background(), func(ctx context.Context) error {
		return wantErr
	})

	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, int64(1), p.Stats().Failed)
}

func TestGoroutinePool_PanicRecovery(t *testing.T) {
	var recovered atomic.Bool
	p := NewGoroutinePool(GoroutinePoolConfig{
		MaxWorkers:  1,
		QueueSize:   1,
		IdleTimeout: time.Second,
		PanicHandler: func(v any) {
			recovered.Store(true)
		},
	})
	defer p.Close()

	err := p.SubmitWait(context.Background(), func(ctx context.Context) error {
		panic("boom")
	})

	assert.Error(t, err)
	assert.True(t, recovered.Load())
}

func TestGoroutinePool_Closed(t *testing.T) {
	p := NewGoroutinePool(GoroutinePoolConfig{
		MaxWorkers:  1,
		QueueSize:   1,
		IdleTimeout: time.Second,
	})
	p.Close()

	err := p.Submit(context.Background(), func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestGoroutinePool_ConcurrentSubmit(t *testing.T) {
	p := NewGoroutinePool(GoroutinePoolConfig{
		MaxWorkers:  4,
		QueueSize:   64,
		IdleTimeout: time.Second,
	})
	defer p.Close()

	var count atomic.Int64
	done := make(chan struct{})
	for i := 0; i < 20; i++ {
		go func() {
			_ = p.SubmitWait(context.Background(), func(ctx context.Context) error {
				count.Add(1)
				return nil
			})
			done <- struct{}{}
		}()
	}

	for i := 0; i < 20; i++ {
		<-done
	}

	assert.Equal(t, int64(20), count.Load())
}

func TestByteBufferPool(t *testing.T) {
	buf := ByteBufferPool.Get()
	buf.WriteString("1\n00:00:01,000 --> 00:00:02,000\nhello\n")
	assert.Positive(t, buf.Len())

	ByteBufferPool.Put(buf)

	buf2 := ByteBufferPool.Get()
	assert.Zero(t, buf2.Len())
	ByteBufferPool.Put(buf2)
}
