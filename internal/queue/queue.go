// Package queue holds the ticket lifecycle: joining a location's queue,
// serving, completing and leaving, plus the read models built on top of it.
package queue

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"qms/virtual-queue/internal/models"
	"qms/virtual-queue/internal/notify"
	"qms/virtual-queue/internal/observability"
	"qms/virtual-queue/internal/store"

	"github.com/oklog/ulid/v2"
)

const (
	defaultServiceMinutes = 5
	defaultHistoryLimit   = 20
)

var (
	ErrValidation = errors.New("invalid request")
	ErrForbidden  = errors.New("forbidden")
)

// Actor is whoever performs an operation. It replaces any notion of a
// process-wide "current user".
type Actor struct {
	UID   string
	Email string
	Name  string
	Admin bool
}

// Label is what gets stored in served_by / completed_by.
func (a Actor) Label() string {
	if a.Email != "" {
		return a.Email
	}
	return a.UID
}

type Options struct {
	ServiceMinutes int
	HistoryLimit   int
	Now            func() time.Time
}

type Service struct {
	tickets    store.TicketStore
	locations  store.LocationStore
	profiles   store.ProfileStore
	dispatcher notify.Dispatcher
	opts       Options
}

func NewService(tickets store.TicketStore, locations store.LocationStore, profiles store.ProfileStore, dispatcher notify.Dispatcher, opts Options) *Service {
	if opts.ServiceMinutes <= 0 {
		opts.ServiceMinutes = defaultServiceMinutes
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaultHistoryLimit
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		tickets:    tickets,
		locations:  locations,
		profiles:   profiles,
		dispatcher: dispatcher,
		opts:       opts,
	}
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewTicketID returns "T" followed by a ULID for at.
func NewTicketID(at time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return "T" + ulid.MustNew(ulid.Timestamp(at), entropy).String()
}

type JoinInput struct {
	LocationID string
	Service    string
}

// Join puts the actor in the location's queue for a service.
func (s *Service) Join(ctx context.Context, actor Actor, input JoinInput) (models.Ticket, error) {
	input.LocationID = strings.TrimSpace(input.LocationID)
	input.Service = strings.TrimSpace(input.Service)
	if input.LocationID == "" {
		return models.Ticket{}, fmt.Errorf("%w: location is required", ErrValidation)
	}
	if input.Service == "" {
		return models.Ticket{}, fmt.Errorf("%w: service is required", ErrValidation)
	}
	if actor.UID == "" {
		return models.Ticket{}, fmt.Errorf("%w: actor is required", ErrValidation)
	}

	location, err := s.locations.GetLocation(ctx, input.LocationID)
	if err != nil {
		return models.Ticket{}, err
	}
	if !location.OffersService(input.Service) {
		return models.Ticket{}, fmt.Errorf("%w: %q is not offered at %s", ErrValidation, input.Service, location.Name)
	}

	now := s.opts.Now()
	profile, _, err := s.profiles.EnsureProfile(ctx, store.EnsureProfileInput{
		UID:   actor.UID,
		Email: actor.Email,
		Name:  actor.Name,
		At:    now,
	})
	if err != nil {
		return models.Ticket{}, fmt.Errorf("load profile: %w", err)
	}
	email := profile.Email
	if email == "" {
		email = actor.Email
	}

	ticket, err := s.tickets.CreateTicket(ctx, store.CreateTicketInput{
		TicketID:       NewTicketID(now),
		UserID:         actor.UID,
		CustomerEmail:  email,
		CustomerName:   profile.Name,
		LocationID:     location.LocationID,
		LocationName:   location.Name,
		Service:        input.Service,
		ServiceMinutes: s.opts.ServiceMinutes,
		CreatedAt:      now,
	})
	if err != nil {
		return models.Ticket{}, err
	}

	logger := observability.LoggerFromContext(ctx)
	if ticket.IsFirstQueue && !profile.FirstQueueCompleted {
		if err := s.profiles.MarkFirstQueueCompleted(ctx, actor.UID); err != nil {
			logger.Warn().Err(err).Str("uid", actor.UID).Msg("mark first queue completed")
		}
	}
	s.dispatch(ctx, notify.JoinedQueue(ticket))

	logger.Info().
		Str("ticket_id", ticket.TicketID).
		Str("location_id", ticket.LocationID).
		Int("position", ticket.Position).
		Msg("ticket created")
	return ticket, nil
}

// Serve moves a specific waiting ticket into the location's serving slot.
func (s *Service) Serve(ctx context.Context, actor Actor, ticketID string) (models.Ticket, error) {
	if !actor.Admin {
		return models.Ticket{}, ErrForbidden
	}
	if strings.TrimSpace(ticketID) == "" {
		return models.Ticket{}, fmt.Errorf("%w: ticket is required", ErrValidation)
	}
	return s.tickets.ServeTicket(ctx, store.TransitionInput{
		TicketID:   ticketID,
		ActorID:    actor.Label(),
		OccurredAt: s.opts.Now(),
	})
}

// CallNext serves the oldest waiting ticket at a location.
func (s *Service) CallNext(ctx context.Context, actor Actor, locationID string) (models.Ticket, error) {
	if !actor.Admin {
		return models.Ticket{}, ErrForbidden
	}
	if strings.TrimSpace(locationID) == "" {
		return models.Ticket{}, fmt.Errorf("%w: location is required", ErrValidation)
	}
	return s.tickets.CallNext(ctx, store.TransitionInput{
		LocationID: locationID,
		ActorID:    actor.Label(),
		OccurredAt: s.opts.Now(),
	})
}

// CompleteCurrent completes the location's serving ticket. ticketID is
// optional; when set it must name that ticket.
func (s *Service) CompleteCurrent(ctx context.Context, actor Actor, locationID, ticketID string) (models.Ticket, error) {
	if !actor.Admin {
		return models.Ticket{}, ErrForbidden
	}
	if strings.TrimSpace(locationID) == "" {
		return models.Ticket{}, fmt.Errorf("%w: location is required", ErrValidation)
	}
	ticket, err := s.tickets.CompleteServing(ctx, store.TransitionInput{
		TicketID:   ticketID,
		LocationID: locationID,
		ActorID:    actor.Label(),
		OccurredAt: s.opts.Now(),
	})
	if err != nil {
		return models.Ticket{}, err
	}
	s.dispatch(ctx, notify.ServiceCompleted(ticket))
	return ticket, nil
}

// MarkNoShow closes the location's serving ticket without a notification.
func (s *Service) MarkNoShow(ctx context.Context, actor Actor, locationID, ticketID string) (models.Ticket, error) {
	if !actor.Admin {
		return models.Ticket{}, ErrForbidden
	}
	if strings.TrimSpace(locationID) == "" {
		return models.Ticket{}, fmt.Errorf("%w: location is required", ErrValidation)
	}
	return s.tickets.NoShowServing(ctx, store.TransitionInput{
		TicketID:   ticketID,
		LocationID: locationID,
		ActorID:    actor.Label(),
		OccurredAt: s.opts.Now(),
	})
}

// Leave cancels one of the actor's own waiting tickets.
func (s *Service) Leave(ctx context.Context, actor Actor, ticketID string) (models.Ticket, error) {
	if strings.TrimSpace(ticketID) == "" {
		return models.Ticket{}, fmt.Errorf("%w: ticket is required", ErrValidation)
	}
	return s.tickets.CancelTicket(ctx, store.TransitionInput{
		TicketID:   ticketID,
		ActorID:    actor.UID,
		OccurredAt: s.opts.Now(),
	})
}

func (s *Service) dispatch(ctx context.Context, notice notify.Notice) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Dispatch(ctx, notice); err != nil {
		observability.LoggerFromContext(ctx).Error().Err(err).
			Str("ticket_id", notice.TicketID).
			Str("kind", notice.Kind).
			Msg("dispatch notification")
	}
}
