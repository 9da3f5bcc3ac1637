package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

var ErrDispatcherClosed = errors.New("dispatcher closed")

// AsyncDispatcher runs notices through a Worker on a small pool of
// goroutines. Dispatch never waits for delivery.
type AsyncDispatcher struct {
	worker *Worker
	jobs   chan Notice
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewAsyncDispatcher(worker *Worker, workers, buffer int) *AsyncDispatcher {
	if workers <= 0 {
		workers = 2
	}
	if buffer <= 0 {
		buffer = 64
	}
	d := &AsyncDispatcher{worker: worker, jobs: make(chan Notice, buffer)}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
	return d
}

func (d *AsyncDispatcher) run() {
	defer d.wg.Done()
	for notice := range d.jobs {
		if err := d.worker.Handle(context.Background(), notice); err != nil {
			log.Error().Err(err).Str("ticket_id", notice.TicketID).Msg("record notification outcome")
		}
	}
}

// Dispatch queues the notice. A full buffer drops it with a log line rather
// than blocking the caller.
func (d *AsyncDispatcher) Dispatch(ctx context.Context, notice Notice) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.jobs <- notice:
		return nil
	default:
		log.Warn().Str("ticket_id", notice.TicketID).Str("kind", notice.Kind).Msg("notification buffer full, dropped")
		return nil
	}
}

// Close stops accepting notices and waits for queued ones to finish.
func (d *AsyncDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()
	d.wg.Wait()
}
