// Package httpapi exposes the queue, identity and admin operations over
// JSON HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"qms/virtual-queue/internal/auth"
	"qms/virtual-queue/internal/models"
	"qms/virtual-queue/internal/observability"
	"qms/virtual-queue/internal/queue"
	"qms/virtual-queue/internal/stats"

	"github.com/go-playground/validator/v10"
)

const (
	maxBodyBytes = 1 << 20
	maxStatsDays = 90
)

type QueueService interface {
	Join(ctx context.Context, actor queue.Actor, input queue.JoinInput) (models.Ticket, error)
	Serve(ctx context.Context, actor queue.Actor, ticketID string) (models.Ticket, error)
	CallNext(ctx context.Context, actor queue.Actor, locationID string) (models.Ticket, error)
	CompleteCurrent(ctx context.Context, actor queue.Actor, locationID, ticketID string) (models.Ticket, error)
	MarkNoShow(ctx context.Context, actor queue.Actor, locationID, ticketID string) (models.Ticket, error)
	Leave(ctx context.Context, actor queue.Actor, ticketID string) (models.Ticket, error)
	GetTicket(ctx context.Context, actor queue.Actor, ticketID string) (models.Ticket, error)
	QueueView(ctx context.Context, locationID string) (queue.QueueView, error)
	QueueInfo(ctx context.Context, locationID string) (queue.QueueInfo, error)
	MyTickets(ctx context.Context, actor queue.Actor) (queue.MyTickets, error)
	TicketEvents(ctx context.Context, ticketID string) (queue.Trail, error)
	Locations(ctx context.Context, filter queue.LocationFilter) (queue.LocationList, error)
	Location(ctx context.Context, locationID string) (models.Location, error)
	Stats(ctx context.Context, opts stats.Options) (stats.Snapshot, error)
}

type AuthService interface {
	SignUp(ctx context.Context, input auth.SignUpInput) (auth.SignInResult, error)
	SignIn(ctx context.Context, email, password string) (auth.SignInResult, error)
	FederatedSignIn(ctx context.Context, input auth.FederatedInput) (auth.SignInResult, error)
	SignOut(ctx context.Context, token string) error
	Resolve(ctx context.Context, token string) (auth.Identity, error)
	Profile(ctx context.Context, identity auth.Identity) (models.Profile, error)
	VerifyAdmin(ctx context.Context, identity auth.Identity) (models.Profile, error)
}

type Options struct {
	Stats stats.Options
}

type Handler struct {
	queue    QueueService
	auth     AuthService
	validate *validator.Validate
	opts     Options
}

func NewHandler(queueService QueueService, authService AuthService, opts Options) *Handler {
	return &Handler{
		queue:    queueService,
		auth:     authService,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		opts:     opts,
	}
}

type signUpRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Name     string `json:"name" validate:"omitempty,max=100"`
}

type signInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type federatedRequest struct {
	Provider string `json:"provider" validate:"required,max=64"`
	Subject  string `json:"subject" validate:"required,max=255"`
	Email    string `json:"email" validate:"omitempty,email"`
	Name     string `json:"name" validate:"omitempty,max=100"`
}

type joinRequest struct {
	LocationID string `json:"location_id" validate:"required"`
	Service    string `json:"service" validate:"required,max=100"`
}

type finishRequest struct {
	TicketID string `json:"ticket_id"`
}

type sessionResponse struct {
	Token     string         `json:"token"`
	ExpiresAt string         `json:"expires_at"`
	Profile   models.Profile `json:"profile"`
}

type locationResponse struct {
	models.Location
	Queue queue.QueueInfo `json:"queue"`
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.Handle("GET /metrics", expvar.Handler())

	mux.HandleFunc("POST /api/auth/signup", h.handleSignUp)
	mux.HandleFunc("POST /api/auth/signin", h.handleSignIn)
	mux.HandleFunc("POST /api/auth/federated", h.handleFederated)
	mux.HandleFunc("POST /api/auth/signout", h.requireSession(h.handleSignOut))

	mux.HandleFunc("GET /api/me", h.requireSession(h.handleMe))
	mux.HandleFunc("GET /api/me/tickets", h.requireSession(h.handleMyTickets))

	mux.HandleFunc("GET /api/locations", h.handleLocations)
	mux.HandleFunc("GET /api/locations/{id}", h.handleLocation)
	mux.HandleFunc("GET /api/locations/{id}/queue-info", h.handleQueueInfo)

	mux.HandleFunc("POST /api/tickets", h.requireSession(h.handleJoin))
	mux.HandleFunc("GET /api/tickets/{id}", h.requireSession(h.handleGetTicket))
	mux.HandleFunc("POST /api/tickets/{id}/leave", h.requireSession(h.handleLeave))

	mux.HandleFunc("POST /api/admin/verify", h.requireAdmin(h.handleVerifyAdmin))
	mux.HandleFunc("GET /api/admin/locations/{id}/queue", h.requireAdmin(h.handleQueueView))
	mux.HandleFunc("POST /api/admin/locations/{id}/call-next", h.requireAdmin(h.handleCallNext))
	mux.HandleFunc("POST /api/admin/locations/{id}/complete", h.requireAdmin(h.handleComplete))
	mux.HandleFunc("POST /api/admin/locations/{id}/no-show", h.requireAdmin(h.handleNoShow))
	mux.HandleFunc("POST /api/admin/tickets/{id}/serve", h.requireAdmin(h.handleServe))
	mux.HandleFunc("GET /api/admin/tickets/{id}/events", h.requireAdmin(h.handleTicketEvents))
	mux.HandleFunc("GET /api/admin/stats", h.requireAdmin(h.handleStats))
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.auth.SignUp(r.Context(), auth.SignUpInput{Email: req.Email, Password: req.Password, Name: req.Name})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSessionResponse(result))
}

func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(result))
}

func (h *Handler) handleFederated(w http.ResponseWriter, r *http.Request) {
	var req federatedRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.auth.FederatedSignIn(r.Context(), auth.FederatedInput{
		Provider: req.Provider,
		Subject:  req.Subject,
		Email:    req.Email,
		Name:     req.Name,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(result))
}

func (h *Handler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	info, _ := authFromContext(r.Context())
	if err := h.auth.SignOut(r.Context(), info.Token); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	info, _ := authFromContext(r.Context())
	writeJSON(w, http.StatusOK, info.Profile)
}

func (h *Handler) handleMyTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.queue.MyTickets(r.Context(), actorFromRequest(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (h *Handler) handleLocations(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	list, err := h.queue.Locations(r.Context(), queue.LocationFilter{
		Category: query.Get("category"),
		Query:    query.Get("q"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleLocation(w http.ResponseWriter, r *http.Request) {
	location, err := h.queue.Location(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	info, err := h.queue.QueueInfo(r.Context(), location.LocationID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, locationResponse{Location: location, Queue: info})
}

func (h *Handler) handleQueueInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.queue.QueueInfo(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *Handler) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !h.decode(w, r, &req) {
		return
	}
	ticket, err := h.queue.Join(r.Context(), actorFromRequest(r), queue.JoinInput{LocationID: req.LocationID, Service: req.Service})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ticket)
}

func (h *Handler) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.queue.GetTicket(r.Context(), actorFromRequest(r), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleLeave(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.queue.Leave(r.Context(), actorFromRequest(r), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleVerifyAdmin(w http.ResponseWriter, r *http.Request) {
	info, _ := authFromContext(r.Context())
	writeJSON(w, http.StatusOK, info.Profile)
}

func (h *Handler) handleQueueView(w http.ResponseWriter, r *http.Request) {
	view, err := h.queue.QueueView(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleCallNext(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.queue.CallNext(r.Context(), actorFromRequest(r), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleServe(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.queue.Serve(r.Context(), actorFromRequest(r), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req finishRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	ticket, err := h.queue.CompleteCurrent(r.Context(), actorFromRequest(r), r.PathValue("id"), strings.TrimSpace(req.TicketID))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleNoShow(w http.ResponseWriter, r *http.Request) {
	var req finishRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	ticket, err := h.queue.MarkNoShow(r.Context(), actorFromRequest(r), r.PathValue("id"), strings.TrimSpace(req.TicketID))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleTicketEvents(w http.ResponseWriter, r *http.Request) {
	trail, err := h.queue.TicketEvents(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trail)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	opts := h.opts.Stats
	if raw := r.URL.Query().Get("days"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days < 1 || days > maxStatsDays {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "days must be between 1 and 90")
			return
		}
		opts.WindowDays = days
	}
	snapshot, err := h.queue.Stats(r.Context(), opts)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// decode reads a JSON body into dst and validates it. It writes the error
// response itself and reports whether the handler should continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.fail(w, r, err)
		return false
	}
	return true
}

// decodeOptional is decode for endpoints whose body may be empty.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	mapped := mapError(err)
	if mapped.status >= http.StatusInternalServerError {
		observability.LoggerFromContext(r.Context()).Error().Err(err).
			Str("path", r.URL.Path).
			Str("request_id", requestIDFromRequest(r)).
			Msg("request failed")
	}
	writeErrorData(w, requestIDFromRequest(r), mapped.status, mapped.code, mapped.message, mapped.data)
}

func newSessionResponse(result auth.SignInResult) sessionResponse {
	return sessionResponse{
		Token:     result.Session.Token,
		ExpiresAt: result.Session.ExpiresAt.Format(time.RFC3339),
		Profile:   result.Profile,
	}
}
