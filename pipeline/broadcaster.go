package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/clipforge/internal/channel"
)

// 订阅者缓冲參数。进度事件量不大，但浏览器端消费可能抖动，
// 用可调缓冲吸收峰值而不是阻塞流水线。
var subscriberChannelConfig = channel.TunableConfig{
	InitialSize:  16,
	MinSize:      8,
	MaxSize:      256,
	GrowFactor:   2.0,
	ShrinkFactor: 0.5,
	SampleWindow: 5 * time.Second,
}

// Broadcaster 将任务进度事件扇出给任意数量的订阅者。
// 发布永不阻塞：跟不上的订阅者丢最新事件并触发缓冲扩容。
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscriber]struct{}
	closed bool
	logger *zap.Logger
}

// NewBroadcaster 创建事件广播器
func NewBroadcaster(logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		subs:   make(map[string]map[*Subscriber]struct{}),
		logger: logger.With(zap.String("component", "broadcaster")),
	}
}

// Subscribe 订阅某个任务的进度事件
func (b *Broadcaster) Subscribe(jobID string) *Subscriber {
	sub := &Subscriber{
		jobID: jobID,
		ch:    channel.NewTunableChannel[Event](subscriberChannelConfig),
		b:     b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.ch.Close()
		return sub
	}
	set, ok := b.subs[jobID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		b.subs[jobID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Publish 向某任务的所有订阅者投递一条事件
func (b *Broadcaster) Publish(ev Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	targets := make([]*Subscriber, 0, len(b.subs[ev.JobID]))
	for sub := range b.subs[ev.JobID] {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		if !sub.ch.TrySend(ev) {
			b.logger.Debug("subscriber buffer full, event dropped",
				zap.String("job_id", ev.JobID),
				zap.String("stage", ev.Stage))
		}
		sub.ch.Tune()
	}
}

// SubscriberCount 返回某任务当前的订阅者数量
func (b *Broadcaster) SubscriberCount(jobID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[jobID])
}

// Close 关闭广播器和所有订阅者通道
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, set := range b.subs {
		for sub := range set {
			sub.ch.Close()
		}
	}
	b.subs = make(map[string]map[*Subscriber]struct{})
}

func (b *Broadcaster) remove(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subs[sub.jobID]
	if !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(b.subs, sub.jobID)
	}
}

// Subscriber 单个进度事件订阅者
type Subscriber struct {
	jobID string
	ch    *channel.TunableChannel[Event]
	b     *Broadcaster
	once  sync.Once
}

// JobID 返回订阅的任务 ID
func (s *Subscriber) JobID() string { return s.jobID }

// Events 返回事件通道。通道不会被 close，配合 Done 使用。
func (s *Subscriber) Events() <-chan Event { return s.ch.Chan() }

// Done 订阅者关闭后该通道被 close
func (s *Subscriber) Done() <-chan struct{} { return s.ch.Done() }

// Receive 阻塞等待下一条事件，订阅关闭后返回 channel.ErrClosed
func (s *Subscriber) Receive(ctx context.Context) (Event, error) {
	return s.ch.Receive(ctx)
}

// Close 取消订阅，可重复调用
func (s *Subscriber) Close() {
	s.once.Do(func() {
		s.b.remove(s)
		s.ch.Close()
	})
}
