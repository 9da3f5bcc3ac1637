package notify

import (
	"fmt"
	"sort"
	"strings"

	"qms/virtual-queue/internal/models"
)

type Message struct {
	To      string
	ToName  string
	Subject string
	Body    string
	Params  map[string]string
}

var subjects = map[string]string{
	models.NoticeJoinedQueue:      "{app_name}: you are number {queue_position} at {location_name}",
	models.NoticeServiceCompleted: "{app_name}: thank you for visiting {location_name}",
}

var bodies = map[string]string{
	models.NoticeJoinedQueue: `Hi {to_name},

You joined the queue for {service_name} at {location_name}.
Ticket: {ticket_id}
Position: {queue_position}
Estimated wait: {estimated_wait}
Joined at: {join_time}

{from_name}
Questions? {support_email}
(c) {current_year} {app_name}`,
	models.NoticeServiceCompleted: `Hi {to_name},

Your visit for {service_name} at {location_name} is complete.
Ticket: {ticket_id}
Total wait: {total_wait_time}
Served by: {served_by}
Completed at: {completion_time}

{from_name}
Questions? {support_email}
(c) {current_year} {app_name}`,
}

// Render builds the plain-text message for a notice.
func Render(notice Notice, branding Branding) (Message, error) {
	subject, ok := subjects[notice.Kind]
	if !ok {
		return Message{}, fmt.Errorf("unknown notice kind %q", notice.Kind)
	}
	params := Params(notice, branding)
	return Message{
		To:      notice.ToEmail,
		ToName:  params["to_name"],
		Subject: renderTemplate(subject, params),
		Body:    renderTemplate(bodies[notice.Kind], params),
		Params:  params,
	}, nil
}

func renderTemplate(template string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys)*2)
	for _, key := range keys {
		pairs = append(pairs, "{"+key+"}", params[key])
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
