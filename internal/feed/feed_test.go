package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"qms/virtual-queue/internal/models"
	"qms/virtual-queue/internal/stats"
	"qms/virtual-queue/internal/store"
	"qms/virtual-queue/internal/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func create(t *testing.T, s *memory.Store, id string, at time.Time) {
	t.Helper()
	_, err := s.CreateTicket(context.Background(), store.CreateTicketInput{
		TicketID:   id,
		UserID:     "u-" + id,
		LocationID: "L1",
		Service:    "Deposit",
		CreatedAt:  at,
	})
	require.NoError(t, err)
}

func TestTailPollAdvances(t *testing.T) {
	s := memory.New()
	create(t, s, "T1", base)
	create(t, s, "T2", base.Add(time.Minute))
	create(t, s, "T3", base.Add(2*time.Minute))

	tail := NewTail(s, InitialOffset(), 2)
	ctx := context.Background()

	first, err := tail.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, store.OutboxOffset{LastEventTime: first[1].CreatedAt, LastEventID: first[1].EventID}, tail.Offset())

	second, err := tail.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, second, 1)

	third, err := tail.Poll(ctx)
	require.NoError(t, err)
	assert.Empty(t, third)
}

func TestTailSkipExisting(t *testing.T) {
	s := memory.New()
	for i, id := range []string{"T1", "T2", "T3", "T4", "T5"} {
		create(t, s, id, base.Add(time.Duration(i)*time.Minute))
	}
	tail := NewTail(s, InitialOffset(), 2)
	require.NoError(t, tail.SkipExisting(context.Background()))

	events, err := tail.Poll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, events)

	create(t, s, "T6", base.Add(time.Hour))
	events, err = tail.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, store.EventTicketCreated, events[0].Type)
}

type blockingSource struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSource) ListOutboxEvents(ctx context.Context, after store.OutboxOffset, limit int) ([]store.OutboxEvent, error) {
	close(b.entered)
	<-b.release
	return []store.OutboxEvent{{EventID: "1", CreatedAt: base}}, nil
}

func TestTailPollIsSingleFlight(t *testing.T) {
	source := &blockingSource{entered: make(chan struct{}), release: make(chan struct{})}
	tail := NewTail(source, InitialOffset(), 0)

	done := make(chan []store.OutboxEvent)
	go func() {
		events, _ := tail.Poll(context.Background())
		done <- events
	}()
	<-source.entered

	events, err := tail.Poll(context.Background())
	require.NoError(t, err)
	assert.Nil(t, events)

	close(source.release)
	assert.Len(t, <-done, 1)
}

func TestTailRun(t *testing.T) {
	s := memory.New()
	tail := NewTail(s, InitialOffset(), 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	batches := make(chan []store.OutboxEvent, 4)
	go tail.Run(ctx, 5*time.Millisecond, func(events []store.OutboxEvent) { batches <- events })

	create(t, s, "T1", base)
	select {
	case events := <-batches:
		require.Len(t, events, 1)
		assert.Equal(t, "L1", events[0].LocationID)
	case <-time.After(2 * time.Second):
		t.Fatal("no batch delivered")
	}
}

func TestPoller(t *testing.T) {
	s := memory.New()
	create(t, s, "T1", base)
	create(t, s, "T2", base.Add(time.Minute))

	poller := NewPoller(s, s, PollerConfig{
		Interval: 5 * time.Millisecond,
		Now:      func() time.Time { return base.Add(time.Hour) },
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	t.Run("first snapshot is immediate", func(t *testing.T) {
		tickets, err := poller.Next(ctx)
		require.NoError(t, err)
		assert.Len(t, tickets, 2)
	})

	t.Run("next waits for a change", func(t *testing.T) {
		got := make(chan []models.Ticket, 1)
		go func() {
			tickets, err := poller.Next(ctx)
			if err == nil {
				got <- tickets
			}
		}()

		select {
		case <-got:
			t.Fatal("snapshot without a change")
		case <-time.After(30 * time.Millisecond):
		}

		_, err := s.CallNext(ctx, store.TransitionInput{LocationID: "L1", ActorID: "ops@example.com", OccurredAt: base.Add(2 * time.Minute)})
		require.NoError(t, err)

		select {
		case tickets := <-got:
			require.Len(t, tickets, 2)
			assert.Equal(t, models.StatusServing, tickets[0].Status)
		case <-ctx.Done():
			t.Fatal("no snapshot after change")
		}
	})

	t.Run("close ends the stream", func(t *testing.T) {
		require.NoError(t, poller.Close())
		require.NoError(t, poller.Close())
		_, err := poller.Next(ctx)
		assert.True(t, errors.Is(err, stats.ErrClosed))
	})
}

func TestPollerFeedsWatch(t *testing.T) {
	s := memory.New()
	create(t, s, "T1", base)
	poller := NewPoller(s, s, PollerConfig{Interval: 5 * time.Millisecond, Now: func() time.Time { return base }})

	var snapshots []stats.Snapshot
	err := stats.Watch(context.Background(), poller, stats.Options{}, func() time.Time { return base }, func(snapshot stats.Snapshot) error {
		snapshots = append(snapshots, snapshot)
		return poller.Close()
	})
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Equal(t, 1, snapshots[0].Counts.Waiting)
}
