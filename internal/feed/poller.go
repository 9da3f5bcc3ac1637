package feed

import (
	"context"
	"sync"
	"time"

	"qms/virtual-queue/internal/models"
	"qms/virtual-queue/internal/stats"
)

type TicketSource interface {
	ListTicketsSince(ctx context.Context, since time.Time) ([]models.Ticket, error)
}

type PollerConfig struct {
	Interval  time.Duration
	BatchSize int
	Stats     stats.Options
	Now       func() time.Time
}

// Poller is a stats.Subscription backed by the outbox. The first Next
// returns the current tickets right away. Each later Next blocks until at
// least one ticket change has been committed, then returns a fresh snapshot
// of every ticket in the stats window.
type Poller struct {
	tickets TicketSource
	tail    *Tail
	cfg     PollerConfig

	mu      sync.Mutex
	started bool

	done      chan struct{}
	closeOnce sync.Once
}

func NewPoller(tickets TicketSource, outbox OutboxSource, cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Poller{
		tickets: tickets,
		tail:    NewTail(outbox, InitialOffset(), cfg.BatchSize),
		cfg:     cfg,
		done:    make(chan struct{}),
	}
}

func (p *Poller) Next(ctx context.Context) ([]models.Ticket, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed() {
		return nil, stats.ErrClosed
	}
	if !p.started {
		if err := p.tail.SkipExisting(ctx); err != nil {
			return nil, err
		}
		p.started = true
		return p.snapshot(ctx)
	}

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return nil, stats.ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		events, err := p.tail.Poll(ctx)
		if err != nil {
			return nil, err
		}
		if len(events) == 0 {
			continue
		}
		// Coalesce a burst of changes into one snapshot.
		if err := p.tail.SkipExisting(ctx); err != nil {
			return nil, err
		}
		return p.snapshot(ctx)
	}
}

func (p *Poller) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	return nil
}

func (p *Poller) closed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *Poller) snapshot(ctx context.Context) ([]models.Ticket, error) {
	since := stats.WindowStart(p.cfg.Now(), p.cfg.Stats)
	return p.tickets.ListTicketsSince(ctx, since)
}
