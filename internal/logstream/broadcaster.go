// Package logstream fans textual log lines out to every connected live
// stream. Publishing never blocks: each subscriber gets its own bounded
// queue and a slow consumer loses its oldest lines, not the publisher.
package logstream

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulsewatch/pulsewatch/internal/models"
)

// DefaultBufferSize is the per-subscriber queue depth when the
// configuration does not say otherwise.
const DefaultBufferSize = 64

// Subscription is one live consumer of the log stream. Lines published
// before Subscribe are never replayed.
type Subscription struct {
	ID    string
	Lines <-chan models.LogLine

	ch chan models.LogLine
}

// Broadcaster owns the subscriber set.
type Broadcaster struct {
	mu      sync.Mutex
	subs    map[string]*Subscription
	bufSize int
	logger  *zap.Logger
}

// New creates a broadcaster with the given per-subscriber buffer size.
func New(bufSize int, logger *zap.Logger) *Broadcaster {
	if bufSize < 1 {
		bufSize = DefaultBufferSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		subs:    make(map[string]*Subscription),
		bufSize: bufSize,
		logger:  logger,
	}
}

// Subscribe registers a new consumer and returns its handle.
func (b *Broadcaster) Subscribe() *Subscription {
	ch := make(chan models.LogLine, b.bufSize)
	sub := &Subscription{
		ID:    uuid.NewString(),
		Lines: ch,
		ch:    ch,
	}

	b.mu.Lock()
	b.subs[sub.ID] = sub
	b.mu.Unlock()

	b.logger.Debug("log subscriber added", zap.String("id", sub.ID))
	return sub
}

// Unsubscribe removes a consumer and closes its channel. Safe to call
// more than once.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	_, ok := b.subs[sub.ID]
	if ok {
		delete(b.subs, sub.ID)
	}
	b.mu.Unlock()

	if ok {
		close(sub.ch)
		b.logger.Debug("log subscriber removed", zap.String("id", sub.ID))
	}
}

// Publish delivers a line to every subscriber. A full queue drops its
// oldest line to make room so scan progress is never back-pressured.
func (b *Broadcaster) Publish(message string) {
	line := models.LogLine{
		Timestamp: time.Now().UTC(),
		Message:   message,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		select {
		case sub.ch <- line:
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- line:
			default:
			}
		}
	}
}

// Printf formats and publishes a line.
func (b *Broadcaster) Printf(format string, args ...any) {
	b.Publish(fmt.Sprintf(format, args...))
}

// SubscriberCount reports how many consumers are currently attached.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
