// Package stats folds ticket snapshots into dashboard aggregates.
package stats

import (
	"context"
	"errors"
	"math"
	"time"

	"qms/virtual-queue/internal/models"
)

const DefaultWindowDays = 7

var ErrClosed = errors.New("subscription closed")

// Subscription is a lazy, never-ending sequence of full ticket snapshots.
// Once closed it cannot be restarted: Next returns ErrClosed forever.
type Subscription interface {
	Next(ctx context.Context) ([]models.Ticket, error)
	Close() error
}

type Counts struct {
	Waiting   int `json:"waiting"`
	Serving   int `json:"serving"`
	Completed int `json:"completed"`
	NoShow    int `json:"no_show"`
	Cancelled int `json:"cancelled"`
	Total     int `json:"total"`
}

type Day struct {
	Date           string `json:"date"`
	Tickets        int    `json:"tickets"`
	Completed      int    `json:"completed"`
	AvgWaitMinutes int    `json:"avg_wait_minutes"`
}

type Snapshot struct {
	GeneratedAt    time.Time `json:"generated_at"`
	WindowDays     int       `json:"window_days"`
	Counts         Counts    `json:"counts"`
	Daily          []Day     `json:"daily"`
	AvgWaitMinutes int       `json:"avg_wait_minutes"`
	CompletedToday int       `json:"completed_today"`
}

type Options struct {
	WindowDays int
	Location   *time.Location
}

func (o Options) withDefaults() Options {
	if o.WindowDays <= 0 {
		o.WindowDays = DefaultWindowDays
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	return o
}

// WindowStart is the first instant covered by the daily series ending at now.
func WindowStart(now time.Time, opts Options) time.Time {
	opts = opts.withDefaults()
	local := now.In(opts.Location)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, opts.Location)
	return today.AddDate(0, 0, -(opts.WindowDays - 1))
}

// Aggregate recomputes every figure from scratch over tickets.
func Aggregate(tickets []models.Ticket, now time.Time, opts Options) Snapshot {
	opts = opts.withDefaults()
	start := WindowStart(now, opts)
	todayKey := now.In(opts.Location).Format("2006-01-02")

	snapshot := Snapshot{
		GeneratedAt: now,
		WindowDays:  opts.WindowDays,
		Daily:       make([]Day, opts.WindowDays),
	}
	index := make(map[string]int, opts.WindowDays)
	for i := 0; i < opts.WindowDays; i++ {
		key := start.AddDate(0, 0, i).Format("2006-01-02")
		snapshot.Daily[i] = Day{Date: key}
		index[key] = i
	}

	waitSums := make([]float64, opts.WindowDays)
	var totalWait float64
	var totalCompleted int

	for _, ticket := range tickets {
		snapshot.Counts.Total++
		switch ticket.Status {
		case models.StatusWaiting, models.StatusInProgress:
			snapshot.Counts.Waiting++
		case models.StatusServing:
			snapshot.Counts.Serving++
		case models.StatusCompleted:
			snapshot.Counts.Completed++
		case models.StatusNoShow:
			snapshot.Counts.NoShow++
		case models.StatusCancelled:
			snapshot.Counts.Cancelled++
		}

		completed := ticket.Status == models.StatusCompleted && ticket.CompletedAt != nil
		var wait float64
		if completed {
			wait = ticket.CompletedAt.Sub(ticket.CreatedAt).Minutes()
			totalWait += wait
			totalCompleted++
			if ticket.CompletedAt.In(opts.Location).Format("2006-01-02") == todayKey {
				snapshot.CompletedToday++
			}
		}

		i, ok := index[ticket.CreatedAt.In(opts.Location).Format("2006-01-02")]
		if !ok {
			continue
		}
		snapshot.Daily[i].Tickets++
		if completed {
			snapshot.Daily[i].Completed++
			waitSums[i] += wait
		}
	}

	for i := range snapshot.Daily {
		if snapshot.Daily[i].Completed > 0 {
			snapshot.Daily[i].AvgWaitMinutes = int(math.Round(waitSums[i] / float64(snapshot.Daily[i].Completed)))
		}
	}
	if totalCompleted > 0 {
		snapshot.AvgWaitMinutes = int(math.Round(totalWait / float64(totalCompleted)))
	}
	return snapshot
}

// Watch recomputes a Snapshot for every ticket snapshot the subscription
// yields and hands it to emit. It returns nil when ctx is cancelled or the
// subscription is closed, and emit's error otherwise.
func Watch(ctx context.Context, sub Subscription, opts Options, now func() time.Time, emit func(Snapshot) error) error {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	for {
		tickets, err := sub.Next(ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := emit(Aggregate(tickets, now(), opts)); err != nil {
			return err
		}
	}
}
