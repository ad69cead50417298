package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/castquest/castquest-backend/internal/domain"
	"github.com/castquest/castquest-backend/internal/service"
)

type createTaskRequest struct {
	CreatorFID           int64           `json:"creator_fid"`
	Title                string          `json:"title"`
	Description          string          `json:"description"`
	TaskType             domain.TaskType `json:"task_type"`
	TargetData           string          `json:"target_data"`
	RewardPerParticipant domain.BigInt   `json:"reward_per_participant"`
	MaxParticipants      int             `json:"max_participants"`
	ExpiresAt            time.Time       `json:"expires_at"`
	MinimumFollowers     int             `json:"minimum_followers"`
	MustBeVerified       bool            `json:"must_be_verified"`
}

func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	creator, err := h.users.GetByFID(r.Context(), req.CreatorFID)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.RewardPerParticipant.Int == nil {
		writeError(w, fmt.Errorf("%w: reward_per_participant required", domain.ErrValidation))
		return
	}

	task, err := h.tasks.Create(r.Context(), service.CreateTaskInput{
		CreatorID:            creator.ID,
		Title:                req.Title,
		Description:          req.Description,
		TaskType:             req.TaskType,
		TargetData:           req.TargetData,
		RewardPerParticipant: req.RewardPerParticipant.Int,
		MaxParticipants:      req.MaxParticipants,
		ExpiresAt:            req.ExpiresAt,
		Requirements: domain.TaskRequirements{
			MinimumFollowers: req.MinimumFollowers,
			MustBeVerified:   req.MustBeVerified,
		},
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTaskResponse(task))
}

func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	task, err := h.tasks.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(task))
}

func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := domain.TaskStatus(q.Get("status"))
	limit := intQuery(q.Get("limit"))
	offset := intQuery(q.Get("offset"))

	tasks, err := h.tasks.List(r.Context(), status, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		resp = append(resp, toTaskResponse(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": resp})
}

type requesterRequest struct {
	FID int64 `json:"fid"`
}

func (h *Handler) CancelTask(w http.ResponseWriter, r *http.Request) {
	h.taskAction(w, r, h.tasks.Cancel)
}

func (h *Handler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	h.taskAction(w, r, h.tasks.Complete)
}

func (h *Handler) taskAction(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, taskID, requesterID int64) (*domain.Task, error)) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req requesterRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	requester, err := h.users.GetByFID(r.Context(), req.FID)
	if err != nil {
		writeError(w, err)
		return
	}

	task, err := action(r.Context(), id, requester.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(task))
}

func (h *Handler) JoinTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req requesterRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	user, err := h.users.GetByFID(r.Context(), req.FID)
	if err != nil {
		writeError(w, err)
		return
	}

	participant, err := h.tasks.Join(r.Context(), id, user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toParticipantResponse(participant))
}

func (h *Handler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	participants, err := h.participants.ListByTask(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]participantResponse, 0, len(participants))
	for _, p := range participants {
		resp = append(resp, toParticipantResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"participants": resp})
}

func intQuery(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
