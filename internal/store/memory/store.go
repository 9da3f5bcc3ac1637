// Package memory is a process-local implementation of the store interfaces,
// used by the dev command and by tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"qms/virtual-queue/internal/models"
	"qms/virtual-queue/internal/store"
)

const defaultServiceMinutes = 5

type Store struct {
	mu        sync.Mutex
	tickets   map[string]models.Ticket
	locations map[string]models.Location
	order     []string
	profiles  map[string]models.Profile
	accounts  map[string]store.Account
	federated map[string]string
	outbox    []store.OutboxEvent
	events    map[string][]store.TicketEvent
	seq       int64
	lastEvent time.Time
}

func New() *Store {
	return &Store{
		tickets:   make(map[string]models.Ticket),
		locations: make(map[string]models.Location),
		profiles:  make(map[string]models.Profile),
		accounts:  make(map[string]store.Account),
		federated: make(map[string]string),
		events:    make(map[string][]store.TicketEvent),
	}
}

func (s *Store) CreateTicket(ctx context.Context, input store.CreateTicketInput) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tickets[input.TicketID]; exists {
		return models.Ticket{}, store.ErrDuplicateTicket
	}
	minutes := input.ServiceMinutes
	if minutes <= 0 {
		minutes = defaultServiceMinutes
	}
	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	queued := 0
	prior := 0
	var latest time.Time
	for _, ticket := range s.tickets {
		if ticket.LocationID == input.LocationID {
			if contains(models.QueuedStatuses, ticket.Status) {
				queued++
			}
			if ticket.CreatedAt.After(latest) {
				latest = ticket.CreatedAt
			}
		}
		if ticket.UserID == input.UserID {
			prior++
		}
	}
	createdAt = store.NextCreatedAt(createdAt, latest)

	ticket := models.Ticket{
		TicketID:      input.TicketID,
		UserID:        input.UserID,
		CustomerEmail: input.CustomerEmail,
		CustomerName:  input.CustomerName,
		LocationID:    input.LocationID,
		LocationName:  input.LocationName,
		Service:       input.Service,
		Status:        models.StatusWaiting,
		Position:      queued + 1,
		EstimatedWait: queued * minutes,
		IsFirstQueue:  prior == 0,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
	s.tickets[ticket.TicketID] = ticket
	if err := s.record(ticket, store.EventTicketCreated, createdAt); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) GetTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[ticketID]
	if !ok {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	return ticket, nil
}

func (s *Store) ListWaiting(ctx context.Context, locationID string) ([]models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiting(locationID), nil
}

func (s *Store) CountQueued(ctx context.Context, locationID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, ticket := range s.tickets {
		if ticket.LocationID == locationID && contains(models.QueuedStatuses, ticket.Status) {
			count++
		}
	}
	return count, nil
}

func (s *Store) GetServing(ctx context.Context, locationID string) (models.Ticket, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.serving(locationID)
	return ticket, ok, nil
}

func (s *Store) ServeTicket(ctx context.Context, input store.TransitionInput) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket, ok := s.tickets[input.TicketID]
	if !ok || (input.LocationID != "" && ticket.LocationID != input.LocationID) {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	if !store.ValidTransition(store.ActionServe, ticket.Status) {
		return models.Ticket{}, store.ErrInvalidState
	}
	if _, busy := s.serving(ticket.LocationID); busy {
		return models.Ticket{}, store.ErrServingSlotTaken
	}
	return s.apply(ticket, store.ActionServe, input)
}

func (s *Store) CallNext(ctx context.Context, input store.TransitionInput) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	waiting := s.waiting(input.LocationID)
	if len(waiting) == 0 {
		return models.Ticket{}, store.ErrNoWaiting
	}
	if _, busy := s.serving(input.LocationID); busy {
		return models.Ticket{}, store.ErrServingSlotTaken
	}
	return s.apply(waiting[0], store.ActionServe, input)
}

func (s *Store) CompleteServing(ctx context.Context, input store.TransitionInput) (models.Ticket, error) {
	return s.finishServing(input, store.ActionComplete)
}

func (s *Store) NoShowServing(ctx context.Context, input store.TransitionInput) (models.Ticket, error) {
	return s.finishServing(input, store.ActionNoShow)
}

func (s *Store) finishServing(input store.TransitionInput, action string) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.serving(input.LocationID)
	if input.TicketID != "" && (!ok || current.TicketID != input.TicketID) {
		if _, exists := s.tickets[input.TicketID]; !exists {
			return models.Ticket{}, store.ErrTicketNotFound
		}
		return models.Ticket{}, store.ErrInvalidState
	}
	if !ok {
		return models.Ticket{}, store.ErrNoServing
	}
	return s.apply(current, action, input)
}

func (s *Store) CancelTicket(ctx context.Context, input store.TransitionInput) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket, ok := s.tickets[input.TicketID]
	if !ok {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	if ticket.UserID != input.ActorID {
		return models.Ticket{}, store.ErrNotTicketOwner
	}
	if !store.ValidTransition(store.ActionCancel, ticket.Status) {
		return models.Ticket{}, store.ErrInvalidState
	}
	return s.apply(ticket, store.ActionCancel, input)
}

func (s *Store) ListUserTickets(ctx context.Context, userID string, statuses []string, limit int) ([]models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []models.Ticket
	for _, ticket := range s.tickets {
		if ticket.UserID != userID {
			continue
		}
		if len(statuses) > 0 && !contains(statuses, ticket.Status) {
			continue
		}
		result = append(result, ticket)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].TicketID > result[j].TicketID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ListTicketsSince(ctx context.Context, since time.Time) ([]models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []models.Ticket
	for _, ticket := range s.tickets {
		if ticket.CreatedAt.Before(since) {
			continue
		}
		result = append(result, ticket)
	}
	sortFIFO(result)
	return result, nil
}

func (s *Store) RecordNotification(ctx context.Context, outcome store.NotificationOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket, ok := s.tickets[outcome.TicketID]
	if !ok {
		return store.ErrTicketNotFound
	}
	if err := store.ApplyNotification(&ticket, outcome); err != nil {
		return err
	}
	s.tickets[ticket.TicketID] = ticket
	return nil
}

func (s *Store) ListOutboxEvents(ctx context.Context, after store.OutboxOffset, limit int) ([]store.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []store.OutboxEvent
	for _, event := range s.outbox {
		if !after.Before(event) {
			continue
		}
		result = append(result, event)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *Store) ListTicketEvents(ctx context.Context, ticketID string) ([]store.TicketEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events, ok := s.events[ticketID]
	if !ok {
		return nil, store.ErrTicketNotFound
	}
	return append([]store.TicketEvent(nil), events...), nil
}

func (s *Store) apply(ticket models.Ticket, action string, input store.TransitionInput) (models.Ticket, error) {
	status, ok := store.TargetStatus(action)
	if !ok {
		return models.Ticket{}, store.ErrInvalidState
	}
	at := input.OccurredAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	if at.Before(ticket.UpdatedAt) {
		at = ticket.UpdatedAt
	}

	ticket.Status = status
	ticket.UpdatedAt = at
	switch action {
	case store.ActionServe:
		ticket.ServedAt = &at
		ticket.ServedBy = input.ActorID
	case store.ActionComplete, store.ActionNoShow:
		ticket.CompletedAt = &at
		ticket.CompletedBy = input.ActorID
	case store.ActionCancel:
		ticket.CompletedAt = &at
	}
	s.tickets[ticket.TicketID] = ticket
	if err := s.record(ticket, store.EventType(action), at); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

// record appends the outbox and audit entries for a change. Outbox times
// never go backwards so that offset readers do not skip events.
func (s *Store) record(ticket models.Ticket, eventType string, at time.Time) error {
	payload, err := json.Marshal(store.NewEventPayload(ticket))
	if err != nil {
		return err
	}
	if at.Before(s.lastEvent) {
		at = s.lastEvent
	}
	s.lastEvent = at
	s.seq++
	s.outbox = append(s.outbox, store.OutboxEvent{
		EventID:    fmt.Sprintf("%020d", s.seq),
		LocationID: ticket.LocationID,
		Type:       eventType,
		Payload:    payload,
		CreatedAt:  at,
	})

	trail := s.events[ticket.TicketID]
	var last *store.TicketEvent
	if len(trail) > 0 {
		last = &trail[len(trail)-1]
	}
	s.events[ticket.TicketID] = append(trail, store.NextTicketEvent(last, ticket.TicketID, eventType, payload, at))
	return nil
}

func (s *Store) waiting(locationID string) []models.Ticket {
	var result []models.Ticket
	for _, ticket := range s.tickets {
		if ticket.LocationID == locationID && ticket.Status == models.StatusWaiting {
			result = append(result, ticket)
		}
	}
	sortFIFO(result)
	return result
}

func (s *Store) serving(locationID string) (models.Ticket, bool) {
	for _, ticket := range s.tickets {
		if ticket.LocationID == locationID && ticket.Status == models.StatusServing {
			return ticket, true
		}
	}
	return models.Ticket{}, false
}

func sortFIFO(tickets []models.Ticket) {
	sort.Slice(tickets, func(i, j int) bool {
		if tickets[i].CreatedAt.Equal(tickets[j].CreatedAt) {
			return tickets[i].TicketID < tickets[j].TicketID
		}
		return tickets[i].CreatedAt.Before(tickets[j].CreatedAt)
	})
}

func contains(values []string, value string) bool {
	for _, item := range values {
		if item == value {
			return true
		}
	}
	return false
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
