package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"qms/virtual-queue/internal/observability"

	"github.com/nats-io/nats.go/jetstream"
)

const (
	StreamName     = "vqueue_notifications"
	SubjectPrefix  = "notify.email."
	EmailWildcard  = "notify.email.>"
	ConsumerName   = "consumer:email"
	nakRetryDelay  = time.Second
	streamMaxBytes = 5 * 1024 * 1024
)

// Publisher is the part of jetstream.JetStream used to enqueue notices.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

type JetStreamDispatcher struct {
	publisher Publisher
}

func NewJetStreamDispatcher(publisher Publisher) *JetStreamDispatcher {
	return &JetStreamDispatcher{publisher: publisher}
}

func Subject(kind string) string {
	return SubjectPrefix + kind
}

func (d *JetStreamDispatcher) Dispatch(ctx context.Context, notice Notice) error {
	data, err := json.Marshal(notice)
	if err != nil {
		return err
	}
	_, err = d.publisher.Publish(ctx, Subject(notice.Kind), data)
	return err
}

// EnsureStream creates or updates the work-queue stream carrying notices.
func EnsureStream(ctx context.Context, js jetstream.JetStream) (jetstream.Stream, error) {
	return js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Retention: jetstream.WorkQueuePolicy,
		Subjects:  []string{EmailWildcard},
		MaxBytes:  streamMaxBytes,
	})
}

type ConsumerConfig struct {
	MaxDeliver int
	AckWait    time.Duration
}

// Consume delivers every notice on the stream to the worker until ctx is
// cancelled. Failed records are redelivered after a short delay; undecodable
// messages are terminated.
func Consume(ctx context.Context, stream jetstream.Stream, cfg ConsumerConfig, worker *Worker) error {
	if cfg.MaxDeliver <= 0 {
		cfg.MaxDeliver = 5
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = 30 * time.Second
	}
	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       ConsumerName,
		FilterSubject: EmailWildcard,
		MaxDeliver:    cfg.MaxDeliver,
		AckWait:       cfg.AckWait,
	})
	if err != nil {
		return err
	}

	iter, err := cons.Messages()
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		iter.Stop()
	}()

	logger := observability.LoggerFromContext(ctx)
	logger.Info().Str("stream", StreamName).Msg("notification consumer started")
	for {
		msg, err := iter.Next()
		if err != nil {
			if errors.Is(err, jetstream.ErrMsgIteratorClosed) {
				logger.Info().Msg("notification consumer stopped")
				return nil
			}
			logger.Error().Err(err).Msg("fetch notification message")
			continue
		}
		handleMessage(ctx, msg, worker)
	}
}

func handleMessage(ctx context.Context, msg jetstream.Msg, worker *Worker) {
	logger := observability.LoggerFromContext(ctx).With().Str("subject", msg.Subject()).Logger()

	var notice Notice
	if err := json.Unmarshal(msg.Data(), &notice); err != nil {
		logger.Error().Err(err).Str("payload", string(msg.Data())).Msg("decode notice")
		if err := msg.Term(); err != nil {
			logger.Error().Err(err).Msg("terminate message")
		}
		return
	}
	if err := worker.Handle(ctx, notice); err != nil {
		logger.Error().Err(err).Str("ticket_id", notice.TicketID).Msg("handle notice")
		if err := msg.NakWithDelay(nakRetryDelay); err != nil {
			logger.Error().Err(err).Msg("nak message")
		}
		return
	}
	if err := msg.Ack(); err != nil {
		logger.Error().Err(err).Str("ticket_id", notice.TicketID).Msg("ack message")
	}
}
