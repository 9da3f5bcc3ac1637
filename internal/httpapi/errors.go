package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"qms/virtual-queue/internal/auth"
	"qms/virtual-queue/internal/queue"
	"qms/virtual-queue/internal/store"

	"github.com/go-playground/validator/v10"
)

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type fieldError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Param string `json:"param,omitempty"`
}

type apiError struct {
	status  int
	code    string
	message string
	data    interface{}
}

func mapError(err error) apiError {
	var invalid validator.ValidationErrors
	switch {
	case errors.As(err, &invalid):
		fields := make([]fieldError, 0, len(invalid))
		for _, fe := range invalid {
			fields = append(fields, fieldError{Field: fe.Field(), Tag: fe.Tag(), Param: fe.Param()})
		}
		return apiError{status: http.StatusBadRequest, code: "invalid_request", message: "request validation failed", data: fields}
	case errors.Is(err, queue.ErrValidation), errors.Is(err, auth.ErrWeakPassword):
		return apiError{status: http.StatusBadRequest, code: "invalid_request", message: err.Error()}
	case errors.Is(err, auth.ErrInvalidCredentials):
		return apiError{status: http.StatusUnauthorized, code: "invalid_credentials", message: "invalid credentials"}
	case errors.Is(err, auth.ErrSessionNotFound):
		return apiError{status: http.StatusUnauthorized, code: "unauthorized", message: "invalid session"}
	case errors.Is(err, queue.ErrForbidden), errors.Is(err, store.ErrNotTicketOwner):
		return apiError{status: http.StatusForbidden, code: "forbidden", message: "access denied"}
	case errors.Is(err, auth.ErrNotAdmin):
		return apiError{status: http.StatusForbidden, code: "forbidden", message: "admin access required"}
	case errors.Is(err, store.ErrTicketNotFound):
		return apiError{status: http.StatusNotFound, code: "ticket_not_found", message: "ticket not found"}
	case errors.Is(err, store.ErrLocationNotFound):
		return apiError{status: http.StatusNotFound, code: "location_not_found", message: "location not found"}
	case errors.Is(err, store.ErrProfileNotFound):
		return apiError{status: http.StatusNotFound, code: "profile_not_found", message: "profile not found"}
	case errors.Is(err, store.ErrInvalidState):
		return apiError{status: http.StatusConflict, code: "invalid_state", message: "ticket state does not allow this action"}
	case errors.Is(err, store.ErrServingSlotTaken):
		return apiError{status: http.StatusConflict, code: "serving_slot_taken", message: store.ErrServingSlotTaken.Error()}
	case errors.Is(err, store.ErrDuplicateTicket):
		return apiError{status: http.StatusConflict, code: "duplicate", message: "ticket already exists"}
	case errors.Is(err, store.ErrEmailTaken):
		return apiError{status: http.StatusConflict, code: "email_taken", message: store.ErrEmailTaken.Error()}
	case errors.Is(err, store.ErrNoWaiting):
		return apiError{status: http.StatusConflict, code: "queue_empty", message: store.ErrNoWaiting.Error()}
	case errors.Is(err, store.ErrNoServing):
		return apiError{status: http.StatusConflict, code: "no_serving", message: store.ErrNoServing.Error()}
	default:
		return apiError{status: http.StatusInternalServerError, code: "internal_error", message: "internal server error"}
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeErrorData(w, requestID, status, code, message, nil)
}

func writeErrorData(w http.ResponseWriter, requestID string, status int, code, message string, data interface{}) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
