package store

import (
	"fmt"

	"qms/virtual-queue/internal/models"
)

// ApplyNotification copies a send outcome onto the matching ticket flags.
func ApplyNotification(ticket *models.Ticket, outcome NotificationOutcome) error {
	sentAt := outcome.SentAt
	switch outcome.Kind {
	case models.NoticeJoinedQueue:
		ticket.WelcomeQueueEmailSent = outcome.Err == ""
		ticket.WelcomeQueueEmailError = outcome.Err
		if outcome.Err == "" {
			ticket.WelcomeQueueEmailSentAt = &sentAt
		}
	case models.NoticeServiceCompleted:
		ticket.ThankYouEmailSent = outcome.Err == ""
		ticket.ThankYouEmailError = outcome.Err
		if outcome.Err == "" {
			ticket.ThankYouEmailSentAt = &sentAt
		}
	default:
		return fmt.Errorf("unknown notification kind %q", outcome.Kind)
	}
	return nil
}

// NotificationColumns maps a notification kind to the ticket columns that
// record its outcome: sent flag, sent time and error.
func NotificationColumns(kind string) (string, string, string, bool) {
	switch kind {
	case models.NoticeJoinedQueue:
		return "welcome_email_sent", "welcome_email_sent_at", "welcome_email_error", true
	case models.NoticeServiceCompleted:
		return "thank_you_email_sent", "thank_you_email_sent_at", "thank_you_email_error", true
	}
	return "", "", "", false
}
