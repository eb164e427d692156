// Package changefeed fans row level change notifications out to subscribers.
package changefeed

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/sanLimbu/todo-sync/internal"
)

// Source produces change notifications until ctx is done.
type Source interface {
	Listen(ctx context.Context, fn func(internal.Change)) error
}

// Hub delivers every published Change to all current subscribers. Delivery never blocks the publisher,
// a subscriber whose buffer is full misses the event.
type Hub struct {
	logger *zap.Logger
	buffer int

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

type subscriber struct {
	ch   chan internal.Change
	once sync.Once
}

// NewHub instantiates the Hub, buffer is the per subscriber channel capacity.
func NewHub(logger *zap.Logger, buffer int) *Hub {
	if buffer < 1 {
		buffer = 1
	}

	return &Hub{
		logger: logger,
		buffer: buffer,
		subs:   make(map[*subscriber]struct{}),
	}
}

// Subscribe registers a new subscriber. The returned function unsubscribes and closes the channel, it is
// safe to call more than once.
func (h *Hub) Subscribe() (<-chan internal.Change, func()) {
	sub := &subscriber{ch: make(chan internal.Change, h.buffer)}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}

	h.subs[sub] = struct{}{}

	return sub.ch, func() { h.remove(sub) }
}

// Publish delivers change to every subscriber.
func (h *Hub) Publish(change internal.Change) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs {
		select {
		case sub.ch <- change:
		default:
			h.logger.Debug("Subscriber buffer full, dropping change", zap.String("id", change.ID))
		}
	}
}

// Len returns the number of current subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.subs)
}

// Close unsubscribes everybody, later subscriptions receive a closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true

	for sub := range h.subs {
		delete(h.subs, sub)
		sub.once.Do(func() { close(sub.ch) })
	}
}

// Run publishes everything src produces, hooks are called before publishing. It blocks until ctx is done
// or src fails.
func (h *Hub) Run(ctx context.Context, src Source, hooks ...func(context.Context, internal.Change)) error {
	return src.Listen(ctx, func(change internal.Change) {
		for _, hook := range hooks {
			hook(ctx, change)
		}

		h.Publish(change)
	})
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
	}

	sub.once.Do(func() { close(sub.ch) })
}
