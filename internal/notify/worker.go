package notify

import (
	"context"
	"time"

	"qms/virtual-queue/internal/observability"
	"qms/virtual-queue/internal/store"
)

// Worker renders and sends one notice, then records the outcome on the ticket.
type Worker struct {
	provider Provider
	recorder Recorder
	branding Branding
	timeout  time.Duration
	now      func() time.Time
}

func NewWorker(provider Provider, recorder Recorder, branding Branding, timeout time.Duration) *Worker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Worker{
		provider: provider,
		recorder: recorder,
		branding: branding,
		timeout:  timeout,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Handle sends the notice. The returned error only reports a failure to
// record the outcome; send failures are recorded, not returned.
func (w *Worker) Handle(ctx context.Context, notice Notice) error {
	logger := observability.LoggerFromContext(ctx).With().
		Str("ticket_id", notice.TicketID).
		Str("kind", notice.Kind).
		Logger()

	if notice.ToEmail == "" {
		logger.Warn().Msg("no recipient email, notification skipped")
		return nil
	}

	outcome := store.NotificationOutcome{TicketID: notice.TicketID, Kind: notice.Kind}
	message, err := Render(notice, w.branding)
	if err == nil {
		sendCtx, cancel := context.WithTimeout(ctx, w.timeout)
		err = w.provider.Send(sendCtx, message)
		cancel()
	}
	outcome.SentAt = w.now()
	if err != nil {
		outcome.Err = err.Error()
		logger.Error().Err(err).Msg("notification send failed")
	} else {
		logger.Info().Str("to", notice.ToEmail).Msg("notification sent")
	}

	if w.recorder == nil {
		return nil
	}
	return w.recorder.RecordNotification(ctx, outcome)
}
