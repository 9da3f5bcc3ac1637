package notify

import (
	"context"
	"time"

	"qms/virtual-queue/internal/models"
	"qms/virtual-queue/internal/store"
)

// Notice is one email to send on behalf of a ticket. It carries a snapshot of
// the ticket so the sender never has to read the store.
type Notice struct {
	Kind          string    `json:"kind"`
	TicketID      string    `json:"ticket_id"`
	ToEmail       string    `json:"to_email"`
	ToName        string    `json:"to_name"`
	LocationName  string    `json:"location_name"`
	ServiceName   string    `json:"service_name"`
	IsFirstQueue  bool      `json:"is_first_queue,omitempty"`
	QueuePosition int       `json:"queue_position,omitempty"`
	EstimatedWait int       `json:"estimated_wait,omitempty"`
	TotalWait     int       `json:"total_wait,omitempty"`
	ServedBy      string    `json:"served_by,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

//go:generate mockgen -destination=mocks/publisher.go -package=mocks qms/virtual-queue/internal/notify Publisher,Dispatcher

// Dispatcher hands a notice to whatever sends it. Implementations must not
// block on the actual delivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, notice Notice) error
}

// Recorder persists the outcome of a send on the ticket.
type Recorder interface {
	RecordNotification(ctx context.Context, outcome store.NotificationOutcome) error
}

func JoinedQueue(ticket models.Ticket) Notice {
	return Notice{
		Kind:          models.NoticeJoinedQueue,
		TicketID:      ticket.TicketID,
		ToEmail:       ticket.CustomerEmail,
		ToName:        ticket.CustomerName,
		LocationName:  ticket.LocationName,
		ServiceName:   ticket.Service,
		IsFirstQueue:  ticket.IsFirstQueue,
		QueuePosition: ticket.Position,
		EstimatedWait: ticket.EstimatedWait,
		OccurredAt:    ticket.CreatedAt,
	}
}

func ServiceCompleted(ticket models.Ticket) Notice {
	notice := Notice{
		Kind:         models.NoticeServiceCompleted,
		TicketID:     ticket.TicketID,
		ToEmail:      ticket.CustomerEmail,
		ToName:       ticket.CustomerName,
		LocationName: ticket.LocationName,
		ServiceName:  ticket.Service,
		TotalWait:    ticket.WaitMinutes(),
		ServedBy:     ticket.CompletedBy,
		OccurredAt:   ticket.UpdatedAt,
	}
	if ticket.CompletedAt != nil {
		notice.OccurredAt = *ticket.CompletedAt
	}
	return notice
}
