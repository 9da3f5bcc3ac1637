package store

import "qms/virtual-queue/internal/models"

const (
	ActionServe    = "serve"
	ActionComplete = "complete"
	ActionNoShow   = "no_show"
	ActionCancel   = "cancel"
)

var transitionMap = map[string][]string{
	ActionServe:    {models.StatusWaiting},
	ActionComplete: {models.StatusServing},
	ActionNoShow:   {models.StatusServing},
	ActionCancel:   {models.StatusWaiting},
}

var targetStatus = map[string]string{
	ActionServe:    models.StatusServing,
	ActionComplete: models.StatusCompleted,
	ActionNoShow:   models.StatusNoShow,
	ActionCancel:   models.StatusCancelled,
}

var eventTypes = map[string]string{
	ActionServe:    EventTicketServed,
	ActionComplete: EventTicketCompleted,
	ActionNoShow:   EventTicketNoShow,
	ActionCancel:   EventTicketCancelled,
}

func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}

// TargetStatus is the status a ticket ends in after action.
func TargetStatus(action string) (string, bool) {
	status, ok := targetStatus[action]
	return status, ok
}

func EventType(action string) string {
	return eventTypes[action]
}

// FromStatuses lists the statuses action may start from.
func FromStatuses(action string) []string {
	return append([]string(nil), transitionMap[action]...)
}
