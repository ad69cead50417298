package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/castquest/castquest-backend/internal/domain"
	"github.com/castquest/castquest-backend/internal/service"
)

type Handler struct {
	tasks        *service.TaskService
	participants *service.ParticipantService
	users        *service.UserService
}

func NewHandler(tasks *service.TaskService, participants *service.ParticipantService, users *service.UserService) *Handler {
	return &Handler{tasks: tasks, participants: participants, users: users}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// writeError maps domain errors to status codes. Retryable tells callers
// apart "rejected because of current state" from "could not complete,
// try again later".
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrTaskNotFound),
		errors.Is(err, domain.ErrParticipantNotFound),
		errors.Is(err, domain.ErrUserNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyJoined),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrTaskNotActive),
		errors.Is(err, domain.ErrTaskFull),
		errors.Is(err, domain.ErrTaskExpired),
		errors.Is(err, domain.ErrAlreadyClaimedOnChain),
		errors.Is(err, domain.ErrRequirementNotMet):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientFunds):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrLedgerUnavailable),
		errors.Is(err, domain.ErrProviderUnavailable):
		status = http.StatusServiceUnavailable
	default:
		slog.Error("unhandled error", "error", err)
		writeJSON(w, status, errorResponse{Error: "internal server error"})
		return
	}

	writeJSON(w, status, errorResponse{Error: err.Error(), Retryable: domain.Retryable(err)})
}

func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domain.ErrValidation
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrValidation
	}
	return id, nil
}
