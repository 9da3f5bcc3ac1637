package realtime

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"qms/virtual-queue/internal/auth"
	"qms/virtual-queue/internal/models"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"github.com/rs/zerolog"
)

const (
	CloseMissingToken uint32 = 4001
	CloseInvalidToken uint32 = 4002
	CloseAccessDenied uint32 = 4003
)

const (
	clientBuffer      = 16
	authLookupTimeout = 5 * time.Second
)

type Authenticator interface {
	Resolve(ctx context.Context, token string) (auth.Identity, error)
	VerifyAdmin(ctx context.Context, identity auth.Identity) (models.Profile, error)
}

// Conn is the part of a SockJS session the handler uses.
type Conn interface {
	Request() *http.Request
	Recv() (string, error)
	Send(msg string) error
	Close(status uint32, reason string) error
}

type Handler struct {
	hub    *Hub
	auth   Authenticator
	logger zerolog.Logger
}

func NewHandler(hub *Hub, authenticator Authenticator, logger zerolog.Logger) *Handler {
	return &Handler{hub: hub, auth: authenticator, logger: logger}
}

// SockJS mounts the handler under prefix.
func (h *Handler) SockJS(prefix string) http.Handler {
	return sockjs.NewHandler(prefix, sockjs.DefaultOptions, func(session sockjs.Session) {
		h.Serve(session)
	})
}

// Serve runs one session until the peer goes away or is refused.
func (h *Handler) Serve(conn Conn) {
	token := tokenFromRequest(conn.Request())
	if token == "" {
		_ = conn.Close(CloseMissingToken, "missing session")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), authLookupTimeout)
	identity, err := h.auth.Resolve(ctx, token)
	cancel()
	if err != nil {
		_ = conn.Close(CloseInvalidToken, "invalid session")
		return
	}

	client := &Client{ID: uuid.NewString(), Send: make(chan []byte, clientBuffer)}
	h.hub.Register(client)
	defer h.hub.Unregister(client)

	go func() {
		for msg := range client.Send {
			_ = conn.Send(string(msg))
		}
	}()

	for {
		msg, err := conn.Recv()
		if err != nil {
			return
		}
		parsed, ok := ParseSubscribe([]byte(msg))
		if !ok {
			continue
		}
		if parsed.Action == "unsubscribe" {
			h.hub.UpdateSubscription(client, Subscription{})
			continue
		}
		if parsed.Channel == ChannelStats && !h.isAdmin(identity) {
			_ = conn.Close(CloseAccessDenied, "access denied")
			return
		}
		h.hub.UpdateSubscription(client, Subscription{Channel: parsed.Channel, LocationID: parsed.LocationID})
	}
}

func (h *Handler) isAdmin(identity auth.Identity) bool {
	ctx, cancel := context.WithTimeout(context.Background(), authLookupTimeout)
	defer cancel()
	_, err := h.auth.VerifyAdmin(ctx, identity)
	if err != nil && !errors.Is(err, auth.ErrNotAdmin) {
		h.logger.Error().Err(err).Str("uid", identity.UID).Msg("admin check")
	}
	return err == nil
}

func tokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if token := BearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func BearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}
