// Package broadcast fans published messages out to the streaming writers
// subscribed to a topic.
package broadcast

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"example.com/chunkcast/internal/logger"
	"example.com/chunkcast/internal/metrics"
	"example.com/chunkcast/internal/streamwriter"
)

// Subscription is one writer attached to a topic. All writes and closes on
// the writer go through the subscription so they never interleave.
type Subscription struct {
	ID        string
	Topic     string
	Transport string

	mu      sync.Mutex
	writer  *streamwriter.Writer
	rc      *streamwriter.ResponseContext
	removed atomic.Bool
}

// Deliver writes msg to the subscriber.
func (s *Subscription) Deliver(msg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writer.WriteBytes(s.rc, msg)
}

// Close closes the writer with the given reason.
func (s *Subscription) Close(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writer.CloseWithReason(s.rc, reason)
}

// CloseIdle closes the writer on behalf of the idle reaper.
func (s *Subscription) CloseIdle() error {
	return s.Close(streamwriter.CloseIdle)
}

func (s *Subscription) LastTick() time.Time { return s.writer.LastTick() }

func (s *Subscription) IsClosed() bool { return s.writer.IsClosed() }

// Broadcaster is a topic hub.
type Broadcaster struct {
	log     *logger.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	topics map[string]map[string]*Subscription
	closed bool
}

func New(log *logger.Logger, m *metrics.Metrics) *Broadcaster {
	if log == nil {
		log = logger.NewNop()
	}
	return &Broadcaster{
		log:     log,
		metrics: m,
		topics:  make(map[string]map[string]*Subscription),
	}
}

// Subscribe attaches w to topic. rc is the response context every delivery
// is written with. After Close, the writer is closed immediately and the
// returned subscription is already removed.
func (b *Broadcaster) Subscribe(topic string, w *streamwriter.Writer, rc *streamwriter.ResponseContext) *Subscription {
	sub := &Subscription{
		ID:     uuid.NewString(),
		Topic:  topic,
		writer: w,
		rc:     rc,
	}
	if rc != nil && rc.Request != nil {
		sub.ID = rc.Request.ID
		sub.Transport = rc.Request.Transport
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.removed.Store(true)
		_ = sub.Close(streamwriter.CloseShutdown)
		return sub
	}
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[string]*Subscription)
		b.topics[topic] = subs
	}
	subs[sub.ID] = sub
	b.mu.Unlock()

	b.metrics.SubscriberAdded(sub.Transport)
	b.log.Debug("Subscriber added", logger.LogFields{"topic": topic, "subscription": sub.ID, "transport": sub.Transport})
	return sub
}

// Unsubscribe detaches sub. It does not close the writer and is safe to call
// more than once, including from a writer's completion hook.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	if sub == nil || !sub.removed.CompareAndSwap(false, true) {
		return
	}
	b.mu.Lock()
	if subs, ok := b.topics[sub.Topic]; ok {
		delete(subs, sub.ID)
		if len(subs) == 0 {
			delete(b.topics, sub.Topic)
		}
	}
	b.mu.Unlock()

	b.metrics.SubscriberRemoved(sub.Transport)
	b.log.Debug("Subscriber removed", logger.LogFields{"topic": sub.Topic, "subscription": sub.ID})
}

// Broadcast writes msg to every subscriber of topic and returns how many
// accepted it. Subscribers whose write fails are closed and dropped, as are
// subscribers whose writer closed itself after the delivery (long-polling).
func (b *Broadcaster) Broadcast(ctx context.Context, topic string, msg []byte) int {
	subs := b.snapshot(topic)
	delivered := 0
	for _, sub := range subs {
		if ctx.Err() != nil {
			break
		}
		if sub.IsClosed() {
			b.Unsubscribe(sub)
			continue
		}
		if err := sub.Deliver(msg); err != nil {
			b.metrics.Delivery(false)
			b.log.Warn("Dropping subscriber after failed delivery", logger.LogFields{
				"topic":        topic,
				"subscription": sub.ID,
				"error":        err.Error(),
			})
			_ = sub.Close(streamwriter.CloseExplicit)
			b.Unsubscribe(sub)
			continue
		}
		b.metrics.Delivery(true)
		delivered++
		if sub.IsClosed() {
			b.Unsubscribe(sub)
		}
	}
	b.log.Debug("Broadcast", logger.LogFields{"topic": topic, "subscribers": len(subs), "delivered": delivered})
	return delivered
}

func (b *Broadcaster) snapshot(topic string) []*Subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	subs := make([]*Subscription, 0, len(b.topics[topic]))
	for _, s := range b.topics[topic] {
		subs = append(subs, s)
	}
	return subs
}

// Topics returns the topics that have at least one subscriber, sorted.
func (b *Broadcaster) Topics() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	topics := make([]string, 0, len(b.topics))
	for t := range b.topics {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// Subscribers returns the number of subscribers of topic.
func (b *Broadcaster) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// Close closes every subscribed writer and rejects later subscriptions.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	var all []*Subscription
	for _, subs := range b.topics {
		for _, s := range subs {
			all = append(all, s)
		}
	}
	b.mu.Unlock()

	for _, s := range all {
		if err := s.Close(streamwriter.CloseShutdown); err != nil {
			b.log.Warn("Error closing subscriber", logger.LogFields{"subscription": s.ID, "error": err.Error()})
		}
		b.Unsubscribe(s)
	}
	b.log.Info("Broadcaster closed", logger.LogFields{"subscribers": len(all)})
}
