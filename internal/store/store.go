package store

import (
	"context"
	"encoding/json"
	"time"

	"qms/virtual-queue/internal/models"
)

type CreateTicketInput struct {
	TicketID      string
	UserID        string
	CustomerEmail string
	CustomerName  string
	LocationID    string
	LocationName  string
	Service       string
	// ServiceMinutes is the fixed time budget per ticket ahead in the queue.
	ServiceMinutes int
	// CreatedAt is a lower bound. Stores stamp the final value while holding
	// the location's lock so that creation order matches position order.
	CreatedAt time.Time
}

// NextCreatedAt returns the creation time for a ticket joining a location
// whose newest ticket was created at latest. Times are kept to microseconds
// and strictly increase per location.
func NextCreatedAt(requested, latest time.Time) time.Time {
	at := requested.UTC().Truncate(time.Microsecond)
	if !latest.IsZero() && !at.After(latest) {
		at = latest.UTC().Truncate(time.Microsecond).Add(time.Microsecond)
	}
	return at
}

// TransitionInput names the ticket (or, for complete and no-show, the
// location whose serving ticket is meant) and the actor performing it.
type TransitionInput struct {
	TicketID   string
	LocationID string
	ActorID    string
	OccurredAt time.Time
}

type NotificationOutcome struct {
	TicketID string
	Kind     string
	SentAt   time.Time
	Err      string
}

type OutboxEvent struct {
	EventID    string          `json:"event_id"`
	LocationID string          `json:"location_id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
}

// OutboxOffset is the position of the last consumed event. Events are ordered
// by (created_at, event_id).
type OutboxOffset struct {
	LastEventTime time.Time
	LastEventID   string
}

func (o OutboxOffset) Before(event OutboxEvent) bool {
	if event.CreatedAt.After(o.LastEventTime) {
		return true
	}
	return event.CreatedAt.Equal(o.LastEventTime) && event.EventID > o.LastEventID
}

type TicketStore interface {
	// CreateTicket assigns position, estimated wait and the first-queue flag
	// and inserts the ticket in one serialized step per location.
	CreateTicket(ctx context.Context, input CreateTicketInput) (models.Ticket, error)
	GetTicket(ctx context.Context, ticketID string) (models.Ticket, error)
	ListWaiting(ctx context.Context, locationID string) ([]models.Ticket, error)
	CountQueued(ctx context.Context, locationID string) (int, error)
	GetServing(ctx context.Context, locationID string) (models.Ticket, bool, error)
	ServeTicket(ctx context.Context, input TransitionInput) (models.Ticket, error)
	CallNext(ctx context.Context, input TransitionInput) (models.Ticket, error)
	CompleteServing(ctx context.Context, input TransitionInput) (models.Ticket, error)
	NoShowServing(ctx context.Context, input TransitionInput) (models.Ticket, error)
	CancelTicket(ctx context.Context, input TransitionInput) (models.Ticket, error)
	ListUserTickets(ctx context.Context, userID string, statuses []string, limit int) ([]models.Ticket, error)
	ListTicketsSince(ctx context.Context, since time.Time) ([]models.Ticket, error)
	RecordNotification(ctx context.Context, outcome NotificationOutcome) error
	ListOutboxEvents(ctx context.Context, after OutboxOffset, limit int) ([]OutboxEvent, error)
	ListTicketEvents(ctx context.Context, ticketID string) ([]TicketEvent, error)
}

type LocationStore interface {
	ListLocations(ctx context.Context) ([]models.Location, error)
	GetLocation(ctx context.Context, locationID string) (models.Location, error)
}

type EnsureProfileInput struct {
	UID   string
	Email string
	Name  string
	At    time.Time
}

type ProfileStore interface {
	GetProfile(ctx context.Context, uid string) (models.Profile, error)
	// EnsureProfile returns the stored profile, creating it with defaults when
	// absent. The bool reports whether it was created.
	EnsureProfile(ctx context.Context, input EnsureProfileInput) (models.Profile, bool, error)
	TouchLastLogin(ctx context.Context, uid string, at time.Time) error
	MarkFirstQueueCompleted(ctx context.Context, uid string) error
}

type Account struct {
	UID          string
	Email        string
	PasswordHash string
	Provider     string
	Subject      string
	CreatedAt    time.Time
}

type AccountStore interface {
	CreateAccount(ctx context.Context, account Account) (Account, error)
	FindAccountByEmail(ctx context.Context, email string) (Account, error)
	// LinkFederated returns the account mapped to provider/subject, creating
	// or linking one by email when there is none.
	LinkFederated(ctx context.Context, account Account) (Account, bool, error)
}
