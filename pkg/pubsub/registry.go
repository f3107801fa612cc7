// Package pubsub is the in-process subscription registry: a set of live
// subscriber channels keyed by topic.
package pubsub

import (
	"context"
	"errors"
	"sync"

	"github.com/alim08/cryptobook/pkg/logger"
	"github.com/alim08/cryptobook/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrClosed is returned by Subscribe after the registry has shut down.
var ErrClosed = errors.New("subscription registry closed")

// DefaultBuffer is the per-subscriber queue length used when none is given.
const DefaultBuffer = 16

// Registry fans published payloads out to every open subscription of a
// topic. Events published while a topic has no subscribers are discarded.
//
// Publish and close both run under mu, so a subscription that has been
// removed can never be sent to, and publishes reach each subscriber in the
// order they were made.
type Registry struct {
	mu     sync.Mutex
	topics map[string]map[string]*Subscription
	buffer int
	closed bool
}

// NewRegistry creates a registry whose subscribers queue up to buffer
// undelivered events before being evicted.
func NewRegistry(buffer int) *Registry {
	if buffer < 1 {
		buffer = DefaultBuffer
	}
	return &Registry{
		topics: make(map[string]map[string]*Subscription),
		buffer: buffer,
	}
}

// Subscribe opens a subscription that receives events published to topic
// from now on. It is closed when ctx is done, when Close is called on it, or
// when the registry shuts down.
func (r *Registry) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	sub := &Subscription{
		id:    uuid.NewString(),
		topic: topic,
		ch:    make(chan interface{}, r.buffer),
		done:  make(chan struct{}),
		reg:   r,
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	subs, ok := r.topics[topic]
	if !ok {
		subs = make(map[string]*Subscription)
		r.topics[topic] = subs
	}
	subs[sub.id] = sub
	r.mu.Unlock()

	metrics.ActiveSubscriptions.WithLabelValues(topic).Inc()
	logger.Log.Debug("subscription opened", zap.String("topic", topic), zap.String("subscription", sub.id))

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

// Publish hands payload to every open subscription of topic and returns how
// many received it. A subscriber whose queue is full is evicted instead of
// blocking the publisher.
func (r *Registry) Publish(topic string, payload interface{}) int {
	metrics.EventsPublished.WithLabelValues(topic).Inc()

	r.mu.Lock()
	defer r.mu.Unlock()

	delivered := 0
	for _, sub := range r.topics[topic] {
		select {
		case sub.ch <- payload:
			delivered++
		default:
			metrics.EventsDropped.WithLabelValues(topic).Inc()
			logger.Log.Warn("evicting slow subscriber",
				zap.String("topic", topic),
				zap.String("subscription", sub.id),
				zap.Int("buffer", cap(sub.ch)))
			r.removeLocked(sub)
		}
	}
	if delivered > 0 {
		metrics.EventsDelivered.WithLabelValues(topic).Add(float64(delivered))
	}
	return delivered
}

// Count returns the number of open subscriptions on topic.
func (r *Registry) Count(topic string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.topics[topic])
}

// Close ends every subscription and rejects new ones.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for _, subs := range r.topics {
		for _, sub := range subs {
			r.removeLocked(sub)
		}
	}
}

func (r *Registry) remove(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(sub)
}

// removeLocked deregisters sub and closes its channel. Safe to call twice.
func (r *Registry) removeLocked(sub *Subscription) {
	subs, ok := r.topics[sub.topic]
	if !ok {
		return
	}
	if _, ok := subs[sub.id]; !ok {
		return
	}
	delete(subs, sub.id)
	if len(subs) == 0 {
		delete(r.topics, sub.topic)
	}
	close(sub.ch)
	close(sub.done)
	metrics.ActiveSubscriptions.WithLabelValues(sub.topic).Dec()
	logger.Log.Debug("subscription closed", zap.String("topic", sub.topic), zap.String("subscription", sub.id))
}
