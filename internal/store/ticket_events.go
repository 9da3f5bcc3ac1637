package store

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"qms/virtual-queue/internal/models"
)

const (
	EventTicketCreated   = "ticket.created"
	EventTicketServed    = "ticket.served"
	EventTicketCompleted = "ticket.completed"
	EventTicketNoShow    = "ticket.no_show"
	EventTicketCancelled = "ticket.cancelled"
	EventTicketNotified  = "ticket.notified"
)

// TicketEvent is one entry of a ticket's audit trail. Each entry hashes the
// previous one, so a rewritten history no longer verifies.
type TicketEvent struct {
	TicketID  string          `json:"ticket_id"`
	TicketSeq int             `json:"ticket_seq"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	PrevHash  string          `json:"prev_hash"`
	Hash      string          `json:"hash"`
}

// EventPayload is the body of outbox and audit events.
type EventPayload struct {
	TicketID      string     `json:"ticket_id"`
	UserID        string     `json:"user_id,omitempty"`
	LocationID    string     `json:"location_id"`
	LocationName  string     `json:"location_name,omitempty"`
	Service       string     `json:"service,omitempty"`
	Status        string     `json:"status"`
	Position      int        `json:"position,omitempty"`
	EstimatedWait *int       `json:"estimated_wait,omitempty"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
	ServedAt      *time.Time `json:"served_at,omitempty"`
	ServedBy      string     `json:"served_by,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CompletedBy   string     `json:"completed_by,omitempty"`
}

func NewEventPayload(ticket models.Ticket) EventPayload {
	payload := EventPayload{
		TicketID:     ticket.TicketID,
		UserID:       ticket.UserID,
		LocationID:   ticket.LocationID,
		LocationName: ticket.LocationName,
		Service:      ticket.Service,
		Status:       ticket.Status,
		Position:     ticket.Position,
		ServedAt:     ticket.ServedAt,
		ServedBy:     ticket.ServedBy,
		CompletedAt:  ticket.CompletedAt,
		CompletedBy:  ticket.CompletedBy,
	}
	if ticket.Status == models.StatusWaiting {
		wait := ticket.EstimatedWait
		payload.EstimatedWait = &wait
	}
	if !ticket.CreatedAt.IsZero() {
		created := ticket.CreatedAt
		payload.CreatedAt = &created
	}
	if !ticket.UpdatedAt.IsZero() {
		updated := ticket.UpdatedAt
		payload.UpdatedAt = &updated
	}
	return payload
}

func ComputeTicketEventHash(prevHash, ticketID, eventType string, payload json.RawMessage, createdAt time.Time, seq int) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%d|%s", prevHash, ticketID, eventType, createdAt.UTC().Format(time.RFC3339Nano), seq, payload)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum)
}

// VerifyTicketEvents recomputes the hash chain and reports the sequence number
// of the first entry that does not match. It returns 0 for an intact trail.
func VerifyTicketEvents(events []TicketEvent) int {
	prev := ""
	for _, event := range events {
		if event.PrevHash != prev {
			return event.TicketSeq
		}
		if ComputeTicketEventHash(prev, event.TicketID, event.Type, event.Payload, event.CreatedAt, event.TicketSeq) != event.Hash {
			return event.TicketSeq
		}
		prev = event.Hash
	}
	return 0
}

// NextTicketEvent builds the entry that follows last (nil for the first one).
func NextTicketEvent(last *TicketEvent, ticketID, eventType string, payload json.RawMessage, createdAt time.Time) TicketEvent {
	seq := 1
	prev := ""
	if last != nil {
		seq = last.TicketSeq + 1
		prev = last.Hash
	}
	return TicketEvent{
		TicketID:  ticketID,
		TicketSeq: seq,
		Type:      eventType,
		Payload:   payload,
		CreatedAt: createdAt,
		PrevHash:  prev,
		Hash:      ComputeTicketEventHash(prev, ticketID, eventType, payload, createdAt, seq),
	}
}

func RehydrateTicket(events []TicketEvent) (models.Ticket, error) {
	var ticket models.Ticket
	for _, event := range events {
		if len(event.Payload) == 0 {
			continue
		}
		var payload EventPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return models.Ticket{}, err
		}
		if payload.TicketID != "" {
			ticket.TicketID = payload.TicketID
		}
		if payload.UserID != "" {
			ticket.UserID = payload.UserID
		}
		if payload.LocationID != "" {
			ticket.LocationID = payload.LocationID
		}
		if payload.LocationName != "" {
			ticket.LocationName = payload.LocationName
		}
		if payload.Service != "" {
			ticket.Service = payload.Service
		}
		if payload.Status != "" {
			ticket.Status = payload.Status
		}
		if payload.Position != 0 {
			ticket.Position = payload.Position
		}
		if payload.EstimatedWait != nil {
			ticket.EstimatedWait = *payload.EstimatedWait
		}
		if payload.CreatedAt != nil {
			ticket.CreatedAt = *payload.CreatedAt
		}
		if payload.UpdatedAt != nil {
			ticket.UpdatedAt = *payload.UpdatedAt
		}
		if payload.ServedAt != nil {
			ticket.ServedAt = payload.ServedAt
		}
		if payload.ServedBy != "" {
			ticket.ServedBy = payload.ServedBy
		}
		if payload.CompletedAt != nil {
			ticket.CompletedAt = payload.CompletedAt
		}
		if payload.CompletedBy != "" {
			ticket.CompletedBy = payload.CompletedBy
		}
	}
	return ticket, nil
}
