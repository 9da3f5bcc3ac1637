// Package realtime pushes queue changes and dashboard aggregates to
// connected SockJS sessions.
package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"qms/virtual-queue/internal/stats"
	"qms/virtual-queue/internal/store"

	"github.com/rs/zerolog"
)

const (
	ChannelQueue = "queue"
	ChannelStats = "stats"

	EventStatsUpdated = "stats.updated"
)

// Subscription selects what a client receives. The zero value receives
// nothing.
type Subscription struct {
	Channel    string
	LocationID string
}

type Client struct {
	ID           string
	Send         chan []byte
	Subscription Subscription
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  zerolog.Logger
}

// QueueUpdate is what queue subscribers see of a ticket change. Customer
// and operator identities stay in the audit trail.
type QueueUpdate struct {
	TicketID      string     `json:"ticket_id"`
	LocationID    string     `json:"location_id"`
	Service       string     `json:"service,omitempty"`
	Status        string     `json:"status"`
	Position      int        `json:"position,omitempty"`
	EstimatedWait *int       `json:"estimated_wait,omitempty"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
	ServedAt      *time.Time `json:"served_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

func NewQueueUpdate(payload store.EventPayload) QueueUpdate {
	return QueueUpdate{
		TicketID:      payload.TicketID,
		LocationID:    payload.LocationID,
		Service:       payload.Service,
		Status:        payload.Status,
		Position:      payload.Position,
		EstimatedWait: payload.EstimatedWait,
		CreatedAt:     payload.CreatedAt,
		UpdatedAt:     payload.UpdatedAt,
		ServedAt:      payload.ServedAt,
		CompletedAt:   payload.CompletedAt,
	}
}

type SubscribeMessage struct {
	Action     string `json:"action"`
	Channel    string `json:"channel"`
	LocationID string `json:"location_id"`
}

type Envelope struct {
	Type       string          `json:"type"`
	Channel    string          `json:"channel"`
	LocationID string          `json:"location_id,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
}

func New(logger zerolog.Logger) *Hub {
	return &Hub{clients: make(map[string]*Client), logger: logger}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) UpdateSubscription(client *Client, sub Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.Subscription = sub
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast never blocks: a client whose buffer is full misses the message.
func (h *Hub) Broadcast(payload []byte, meta Subscription) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if !match(client.Subscription, meta) {
			continue
		}
		select {
		case client.Send <- payload:
		default:
			h.logger.Warn().Str("client_id", client.ID).Msg("drop message for slow client")
		}
	}
}

// PublishEvents fans outbox events out to the queue channel of their location.
func (h *Hub) PublishEvents(events []store.OutboxEvent) {
	for _, event := range events {
		var full store.EventPayload
		if err := json.Unmarshal(event.Payload, &full); err != nil {
			h.logger.Error().Err(err).Str("event_id", event.EventID).Msg("decode event")
			continue
		}
		body, err := json.Marshal(NewQueueUpdate(full))
		if err != nil {
			h.logger.Error().Err(err).Str("event_id", event.EventID).Msg("encode event")
			continue
		}
		env := Envelope{
			Type:       event.Type,
			Channel:    ChannelQueue,
			LocationID: event.LocationID,
			Payload:    body,
			CreatedAt:  event.CreatedAt,
		}
		payload, err := json.Marshal(env)
		if err != nil {
			h.logger.Error().Err(err).Str("event_id", event.EventID).Msg("encode event")
			continue
		}
		h.Broadcast(payload, Subscription{Channel: ChannelQueue, LocationID: event.LocationID})
	}
}

func (h *Hub) PublishStats(snapshot stats.Snapshot) error {
	body, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(Envelope{
		Type:      EventStatsUpdated,
		Channel:   ChannelStats,
		Payload:   body,
		CreatedAt: snapshot.GeneratedAt,
	})
	if err != nil {
		return err
	}
	h.Broadcast(payload, Subscription{Channel: ChannelStats})
	return nil
}

func match(sub Subscription, meta Subscription) bool {
	if sub.Channel == "" || sub.Channel != meta.Channel {
		return false
	}
	if sub.LocationID != "" && meta.LocationID != sub.LocationID {
		return false
	}
	return true
}

// ParseSubscribe accepts subscribe and unsubscribe messages. A queue
// subscription must name a location.
func ParseSubscribe(data []byte) (SubscribeMessage, bool) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SubscribeMessage{}, false
	}
	switch msg.Action {
	case "unsubscribe":
		return msg, true
	case "subscribe":
	default:
		return SubscribeMessage{}, false
	}
	if msg.Channel == "" {
		msg.Channel = ChannelQueue
	}
	switch msg.Channel {
	case ChannelQueue:
		if msg.LocationID == "" {
			return SubscribeMessage{}, false
		}
	case ChannelStats:
		msg.LocationID = ""
	default:
		return SubscribeMessage{}, false
	}
	return msg, true
}
