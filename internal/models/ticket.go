package models

import "time"

type Ticket struct {
	TicketID      string     `json:"ticket_id"`
	UserID        string     `json:"user_id"`
	CustomerEmail string     `json:"customer_email"`
	CustomerName  string     `json:"customer_name"`
	LocationID    string     `json:"location_id"`
	LocationName  string     `json:"location_name"`
	Service       string     `json:"service"`
	Status        string     `json:"status"`
	Position      int        `json:"position"`
	EstimatedWait int        `json:"estimated_wait"`
	IsFirstQueue  bool       `json:"is_first_queue"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	ServedAt      *time.Time `json:"served_at,omitempty"`
	ServedBy      string     `json:"served_by,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CompletedBy   string     `json:"completed_by,omitempty"`

	WelcomeQueueEmailSent   bool       `json:"welcome_queue_email_sent"`
	WelcomeQueueEmailSentAt *time.Time `json:"welcome_queue_email_sent_at,omitempty"`
	WelcomeQueueEmailError  string     `json:"welcome_queue_email_error,omitempty"`
	ThankYouEmailSent       bool       `json:"thank_you_email_sent"`
	ThankYouEmailSentAt     *time.Time `json:"thank_you_email_sent_at,omitempty"`
	ThankYouEmailError      string     `json:"thank_you_email_error,omitempty"`
}

const (
	StatusWaiting   = "waiting"
	StatusServing   = "serving"
	StatusCompleted = "completed"
	StatusNoShow    = "no-show"
	StatusCancelled = "cancelled"
	// StatusInProgress is only found on legacy records. It still occupies a
	// place in the queue when positions are assigned.
	StatusInProgress = "in-progress"
)

// QueuedStatuses are the statuses counted when a new position is assigned.
var QueuedStatuses = []string{StatusWaiting, StatusInProgress}

var ActiveStatuses = []string{StatusWaiting, StatusInProgress, StatusServing}

var HistoryStatuses = []string{StatusCompleted, StatusCancelled, StatusNoShow}

func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// WaitMinutes is the time between joining and completion, rounded to whole
// minutes. It is zero until the ticket has a completion time.
func (t Ticket) WaitMinutes() int {
	if t.CompletedAt == nil {
		return 0
	}
	d := t.CompletedAt.Sub(t.CreatedAt)
	if d < 0 {
		return 0
	}
	return int(d.Round(time.Minute) / time.Minute)
}

const (
	NoticeJoinedQueue      = "joined_queue"
	NoticeServiceCompleted = "service_completed"
)
