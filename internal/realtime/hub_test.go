package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"qms/virtual-queue/internal/stats"
	"qms/virtual-queue/internal/store"

	"github.com/rs/zerolog"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name string
		sub  Subscription
		meta Subscription
		want bool
	}{
		{"unsubscribed", Subscription{}, Subscription{Channel: ChannelQueue, LocationID: "L1"}, false},
		{"same location", Subscription{Channel: ChannelQueue, LocationID: "L1"}, Subscription{Channel: ChannelQueue, LocationID: "L1"}, true},
		{"other location", Subscription{Channel: ChannelQueue, LocationID: "L1"}, Subscription{Channel: ChannelQueue, LocationID: "L2"}, false},
		{"other channel", Subscription{Channel: ChannelStats}, Subscription{Channel: ChannelQueue, LocationID: "L1"}, false},
		{"stats", Subscription{Channel: ChannelStats}, Subscription{Channel: ChannelStats}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := match(tc.sub, tc.meta); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestParseSubscribe(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   SubscribeMessage
		wantOK bool
	}{
		{"queue", `{"action":"subscribe","channel":"queue","location_id":"L1"}`, SubscribeMessage{Action: "subscribe", Channel: ChannelQueue, LocationID: "L1"}, true},
		{"channel defaults to queue", `{"action":"subscribe","location_id":"L1"}`, SubscribeMessage{Action: "subscribe", Channel: ChannelQueue, LocationID: "L1"}, true},
		{"queue needs location", `{"action":"subscribe","channel":"queue"}`, SubscribeMessage{}, false},
		{"stats drops location", `{"action":"subscribe","channel":"stats","location_id":"L1"}`, SubscribeMessage{Action: "subscribe", Channel: ChannelStats}, true},
		{"unknown channel", `{"action":"subscribe","channel":"chat","location_id":"L1"}`, SubscribeMessage{}, false},
		{"unsubscribe", `{"action":"unsubscribe"}`, SubscribeMessage{Action: "unsubscribe"}, true},
		{"unknown action", `{"action":"ping"}`, SubscribeMessage{}, false},
		{"not json", `subscribe`, SubscribeMessage{}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseSubscribe([]byte(tc.input))
			if ok != tc.wantOK {
				t.Fatalf("expected ok %v, got %v", tc.wantOK, ok)
			}
			if got != tc.want {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestBroadcastDropsForSlowClient(t *testing.T) {
	h := New(zerolog.Nop())
	client := &Client{ID: "c1", Send: make(chan []byte, 1), Subscription: Subscription{Channel: ChannelStats}}
	h.Register(client)

	h.Broadcast([]byte("one"), Subscription{Channel: ChannelStats})
	h.Broadcast([]byte("two"), Subscription{Channel: ChannelStats})

	if got := string(<-client.Send); got != "one" {
		t.Fatalf("expected first message, got %q", got)
	}
	select {
	case msg := <-client.Send:
		t.Fatalf("expected drop, got %q", msg)
	default:
	}

	h.Unregister(client)
	h.Unregister(client)
	if h.Clients() != 0 {
		t.Fatalf("expected no clients, got %d", h.Clients())
	}
}

func TestPublishEvents(t *testing.T) {
	h := New(zerolog.Nop())
	l1 := &Client{ID: "c1", Send: make(chan []byte, 4), Subscription: Subscription{Channel: ChannelQueue, LocationID: "L1"}}
	l2 := &Client{ID: "c2", Send: make(chan []byte, 4), Subscription: Subscription{Channel: ChannelQueue, LocationID: "L2"}}
	h.Register(l1)
	h.Register(l2)

	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	full := `{"ticket_id":"T1","user_id":"u1","location_id":"L1","status":"serving","position":2,` +
		`"served_by":"ops@example.com","completed_by":"lead@example.com"}`
	h.PublishEvents([]store.OutboxEvent{
		{EventID: "0", LocationID: "L1", Type: store.EventTicketCreated, Payload: json.RawMessage(`not json`), CreatedAt: at},
		{EventID: "1", LocationID: "L1", Type: store.EventTicketServed, Payload: json.RawMessage(full), CreatedAt: at},
	})

	if len(l2.Send) != 0 {
		t.Fatalf("unexpected message for other location")
	}
	if len(l1.Send) != 1 {
		t.Fatalf("expected one message, got %d", len(l1.Send))
	}
	var env Envelope
	if err := json.Unmarshal(<-l1.Send, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Type != store.EventTicketServed || env.Channel != ChannelQueue || env.LocationID != "L1" {
		t.Fatalf("unexpected envelope %+v", env)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(env.Payload, &fields); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	for _, key := range []string{"user_id", "served_by", "completed_by"} {
		if _, ok := fields[key]; ok {
			t.Fatalf("payload leaks %s: %s", key, env.Payload)
		}
	}
	if fields["ticket_id"] != "T1" || fields["status"] != "serving" || fields["position"] != float64(2) {
		t.Fatalf("unexpected payload %s", env.Payload)
	}
}

func TestPublishStats(t *testing.T) {
	h := New(zerolog.Nop())
	admin := &Client{ID: "c1", Send: make(chan []byte, 1), Subscription: Subscription{Channel: ChannelStats}}
	h.Register(admin)

	snapshot := stats.Snapshot{GeneratedAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), Counts: stats.Counts{Waiting: 3, Total: 3}}
	if err := h.PublishStats(snapshot); err != nil {
		t.Fatalf("publish: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(<-admin.Send, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Type != EventStatsUpdated {
		t.Fatalf("unexpected type %q", env.Type)
	}
	var got stats.Snapshot
	if err := json.Unmarshal(env.Payload, &got); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if got.Counts.Waiting != 3 {
		t.Fatalf("expected 3 waiting, got %d", got.Counts.Waiting)
	}
}
