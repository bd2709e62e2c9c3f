package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/clipforge/internal/channel"
)

func TestBroadcaster_FanOut(t *testing.T) {
	b := NewBroadcaster(zaptest.NewLogger(t))
	defer b.Close()

	first := b.Subscribe("job-a")
	second := b.Subscribe("job-a")
	other := b.Subscribe("job-b")

	b.Publish(Event{JobID: "job-a", Stage: StageProbe, Percent: 12.5, Message: "started", Status: StatusProcessing})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for _, sub := range []*Subscriber{first, second} {
		ev, err := sub.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, "job-a", ev.JobID)
		assert.Equal(t, StageProbe, ev.Stage)
		assert.Equal(t, 12.5, ev.Percent)
		assert.Equal(t, StatusProcessing, ev.Status)
	}

	_, ok := other.ch.TryReceive()
	assert.False(t, ok, "subscriber of another job must not receive the event")
}

func TestBroadcaster_PublishWithoutSubscribers(t *testing.T) {
	b := NewBroadcaster(zaptest.NewLogger(t))
	defer b.Close()

	// 没有订阅者时发布不报错也不阻塞
	b.Publish(Event{JobID: "nobody-listens", Stage: StageExport})
}

func TestBroadcaster_SubscriberClose(t *testing.T) {
	b := NewBroadcaster(zaptest.NewLogger(t))
	defer b.Close()

	sub := b.Subscribe("job-a")
	require.Equal(t, 1, b.SubscriberCount("job-a"))

	sub.Close()
	sub.Close() // 幂等
	assert.Equal(t, 0, b.SubscriberCount("job-a"))

	b.Publish(Event{JobID: "job-a", Stage: StageProbe})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := sub.Receive(ctx)
	assert.ErrorIs(t, err, channel.ErrClosed)
}

func TestBroadcaster_DropsWhenSubscriberLags(t *testing.T) {
	b := NewBroadcaster(zaptest.NewLogger(t))
	defer b.Close()

	sub := b.Subscribe("job-a")

	// 订阅者不消费，超出缓冲的事件被丢弃而不是阻塞发布方
	total := subscriberChannelConfig.InitialSize + 5
	for i := 0; i < total; i++ {
		b.Publish(Event{JobID: "job-a", Stage: StageTranscribe, Message: fmt.Sprintf("tick %d", i)})
	}

	assert.Equal(t, subscriberChannelConfig.InitialSize, sub.ch.Len())

	// 留下的是最早的事件，后来的被丢
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := sub.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tick 0", ev.Message)
}

func TestBroadcaster_CloseShutsDownSubscribers(t *testing.T) {
	b := NewBroadcaster(zaptest.NewLogger(t))
	sub := b.Subscribe("job-a")

	b.Close()
	b.Close() // 幂等

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscriber not shut down after broadcaster close")
	}

	// 关闭后的发布与订阅都安全降级
	b.Publish(Event{JobID: "job-a", Stage: StageProbe})

	late := b.Subscribe("job-a")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := late.Receive(ctx)
	assert.ErrorIs(t, err, channel.ErrClosed)
}

func TestSubscriber_ReceiveHonoursContext(t *testing.T) {
	b := NewBroadcaster(zaptest.NewLogger(t))
	defer b.Close()

	sub := b.Subscribe("job-a")
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := sub.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
