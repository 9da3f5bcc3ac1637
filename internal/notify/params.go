package notify

import (
	"strconv"
	"time"

	"qms/virtual-queue/internal/models"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	DefaultFromName     = "QueueManager Team"
	DefaultAppName      = "QueueManager"
	DefaultSupportEmail = "support@queuemanager.com"
	DefaultCustomerName = "Customer"
	DefaultServedBy     = "Staff"
)

// Branding holds the sender-wide template parameters.
type Branding struct {
	FromName     string
	AppName      string
	SupportEmail string
	Language     language.Tag
	Location     *time.Location
}

func (b Branding) withDefaults() Branding {
	if b.FromName == "" {
		b.FromName = DefaultFromName
	}
	if b.AppName == "" {
		b.AppName = DefaultAppName
	}
	if b.SupportEmail == "" {
		b.SupportEmail = DefaultSupportEmail
	}
	if b.Language == language.Und {
		b.Language = language.English
	}
	if b.Location == nil {
		b.Location = time.UTC
	}
	return b
}

// Params flattens a notice into the template parameters of its kind.
func Params(notice Notice, branding Branding) map[string]string {
	branding = branding.withDefaults()
	printer := message.NewPrinter(branding.Language)
	at := notice.OccurredAt.In(branding.Location)

	name := notice.ToName
	if name == "" {
		name = DefaultCustomerName
	}
	params := map[string]string{
		"to_email":      notice.ToEmail,
		"to_name":       name,
		"from_name":     branding.FromName,
		"app_name":      branding.AppName,
		"service_name":  notice.ServiceName,
		"location_name": notice.LocationName,
		"ticket_id":     notice.TicketID,
		"current_year":  strconv.Itoa(at.Year()),
		"support_email": branding.SupportEmail,
	}

	switch notice.Kind {
	case models.NoticeJoinedQueue:
		params["is_first_queue"] = strconv.FormatBool(notice.IsFirstQueue)
		params["queue_position"] = printer.Sprintf("%d", notice.QueuePosition)
		params["estimated_wait"] = printer.Sprintf("%d minutes", notice.EstimatedWait)
		params["join_time"] = at.Format("1/2/2006, 3:04:05 PM")
	case models.NoticeServiceCompleted:
		served := notice.ServedBy
		if served == "" {
			served = DefaultServedBy
		}
		params["total_wait_time"] = printer.Sprintf("%d minutes", notice.TotalWait)
		params["served_by"] = served
		params["completion_time"] = at.Format("1/2/2006, 3:04:05 PM")
	}
	return params
}
