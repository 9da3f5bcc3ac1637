// Package feed turns the ticket change outbox into pull-based streams.
package feed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"qms/virtual-queue/internal/observability"
	"qms/virtual-queue/internal/store"
)

const (
	DefaultBatchSize    = 100
	DefaultPollInterval = time.Second
)

type OutboxSource interface {
	ListOutboxEvents(ctx context.Context, after store.OutboxOffset, limit int) ([]store.OutboxEvent, error)
}

// Tail reads outbox events past a moving offset. Overlapping Poll calls do
// not stack up: a Poll that finds another one in flight returns nothing.
type Tail struct {
	source    OutboxSource
	batchSize int

	running int32
	mu      sync.Mutex
	offset  store.OutboxOffset
}

// InitialOffset is the offset before any event.
func InitialOffset() store.OutboxOffset {
	return store.OutboxOffset{LastEventTime: time.Unix(0, 0).UTC()}
}

func NewTail(source OutboxSource, offset store.OutboxOffset, batchSize int) *Tail {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Tail{source: source, offset: offset, batchSize: batchSize}
}

func (t *Tail) Offset() store.OutboxOffset {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.offset
}

// Poll returns the next batch and advances the offset past it.
func (t *Tail) Poll(ctx context.Context) ([]store.OutboxEvent, error) {
	if !atomic.CompareAndSwapInt32(&t.running, 0, 1) {
		return nil, nil
	}
	defer atomic.StoreInt32(&t.running, 0)

	offset := t.Offset()
	events, err := t.source.ListOutboxEvents(ctx, offset, t.batchSize)
	if err != nil {
		return nil, err
	}
	if len(events) > 0 {
		last := events[len(events)-1]
		t.mu.Lock()
		t.offset = store.OutboxOffset{LastEventTime: last.CreatedAt, LastEventID: last.EventID}
		t.mu.Unlock()
	}
	return events, nil
}

// SkipExisting moves the offset past everything already in the outbox.
func (t *Tail) SkipExisting(ctx context.Context) error {
	for {
		events, err := t.Poll(ctx)
		if err != nil {
			return err
		}
		if len(events) < t.batchSize {
			return nil
		}
	}
}

// Run polls every interval until ctx is done and hands non-empty batches to
// handle. Poll errors are logged and retried on the next tick.
func (t *Tail) Run(ctx context.Context, interval time.Duration, handle func([]store.OutboxEvent)) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	logger := observability.LoggerFromContext(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		events, err := t.Poll(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Error().Err(err).Msg("poll outbox")
			}
			continue
		}
		if len(events) > 0 {
			handle(events)
		}
	}
}
