package queue

import (
	"context"
	"fmt"
	"strings"

	"qms/virtual-queue/internal/models"
	"qms/virtual-queue/internal/store"
)

// RankedTicket pairs a waiting ticket with its current place in line.
// Position is the value assigned at join time and never changes; LiveRank
// is recomputed on every read.
type RankedTicket struct {
	models.Ticket
	LiveRank int `json:"live_rank"`
}

type QueueView struct {
	LocationID    string         `json:"location_id"`
	Waiting       []RankedTicket `json:"waiting"`
	Serving       *models.Ticket `json:"serving"`
	WaitingCount  int            `json:"waiting_count"`
	EstimatedWait int            `json:"estimated_wait"`
}

type QueueInfo struct {
	LocationID    string `json:"location_id"`
	PeopleAhead   int    `json:"people_ahead"`
	EstimatedWait int    `json:"estimated_wait"`
}

type MyTickets struct {
	Active  []models.Ticket `json:"active"`
	History []models.Ticket `json:"history"`
}

type Trail struct {
	TicketID string              `json:"ticket_id"`
	Events   []store.TicketEvent `json:"events"`
	Verified bool                `json:"verified"`
	BrokenAt int                 `json:"broken_at,omitempty"`
	Replayed models.Ticket       `json:"replayed"`
}

// GetTicket returns a ticket to its owner or to an admin.
func (s *Service) GetTicket(ctx context.Context, actor Actor, ticketID string) (models.Ticket, error) {
	if strings.TrimSpace(ticketID) == "" {
		return models.Ticket{}, fmt.Errorf("%w: ticket is required", ErrValidation)
	}
	ticket, err := s.tickets.GetTicket(ctx, ticketID)
	if err != nil {
		return models.Ticket{}, err
	}
	if ticket.UserID != actor.UID && !actor.Admin {
		return models.Ticket{}, ErrForbidden
	}
	return ticket, nil
}

func (s *Service) QueueView(ctx context.Context, locationID string) (QueueView, error) {
	if _, err := s.locations.GetLocation(ctx, locationID); err != nil {
		return QueueView{}, err
	}
	waiting, err := s.tickets.ListWaiting(ctx, locationID)
	if err != nil {
		return QueueView{}, err
	}
	queued, err := s.tickets.CountQueued(ctx, locationID)
	if err != nil {
		return QueueView{}, err
	}
	view := QueueView{
		LocationID:    locationID,
		Waiting:       make([]RankedTicket, 0, len(waiting)),
		WaitingCount:  len(waiting),
		EstimatedWait: queued * s.opts.ServiceMinutes,
	}
	for i, ticket := range waiting {
		view.Waiting = append(view.Waiting, RankedTicket{Ticket: ticket, LiveRank: i + 1})
	}
	serving, ok, err := s.tickets.GetServing(ctx, locationID)
	if err != nil {
		return QueueView{}, err
	}
	if ok {
		view.Serving = &serving
	}
	return view, nil
}

// QueueInfo is what a customer sees before joining: how many tickets are
// ahead and the wait a new ticket would be quoted.
func (s *Service) QueueInfo(ctx context.Context, locationID string) (QueueInfo, error) {
	if _, err := s.locations.GetLocation(ctx, locationID); err != nil {
		return QueueInfo{}, err
	}
	queued, err := s.tickets.CountQueued(ctx, locationID)
	if err != nil {
		return QueueInfo{}, err
	}
	return QueueInfo{
		LocationID:    locationID,
		PeopleAhead:   queued,
		EstimatedWait: queued * s.opts.ServiceMinutes,
	}, nil
}

func (s *Service) MyTickets(ctx context.Context, actor Actor) (MyTickets, error) {
	active, err := s.tickets.ListUserTickets(ctx, actor.UID, models.ActiveStatuses, 0)
	if err != nil {
		return MyTickets{}, err
	}
	history, err := s.tickets.ListUserTickets(ctx, actor.UID, models.HistoryStatuses, s.opts.HistoryLimit)
	if err != nil {
		return MyTickets{}, err
	}
	if active == nil {
		active = []models.Ticket{}
	}
	if history == nil {
		history = []models.Ticket{}
	}
	return MyTickets{Active: active, History: history}, nil
}

// TicketEvents returns the audit trail of a ticket and whether its hash
// chain still verifies.
func (s *Service) TicketEvents(ctx context.Context, ticketID string) (Trail, error) {
	if _, err := s.tickets.GetTicket(ctx, ticketID); err != nil {
		return Trail{}, err
	}
	events, err := s.tickets.ListTicketEvents(ctx, ticketID)
	if err != nil {
		return Trail{}, err
	}
	if events == nil {
		events = []store.TicketEvent{}
	}
	replayed, err := store.RehydrateTicket(events)
	if err != nil {
		return Trail{}, err
	}
	broken := store.VerifyTicketEvents(events)
	return Trail{
		TicketID: ticketID,
		Events:   events,
		Verified: broken == 0,
		BrokenAt: broken,
		Replayed: replayed,
	}, nil
}
