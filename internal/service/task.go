package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/castquest/castquest-backend/internal/config"
	"github.com/castquest/castquest-backend/internal/domain"
	"github.com/castquest/castquest-backend/internal/repository"
)

// TaskService owns the task lifecycle: DRAFT -> ACTIVE on escrow
// confirmation, ACTIVE -> COMPLETED/CANCELLED by creator action or when
// the last slot fills. Expiry is evaluated at join time only.
type TaskService struct {
	store    repository.Store
	ledger   Ledger
	verifier Verifier
}

func NewTaskService(store repository.Store, ledger Ledger, verifier Verifier) *TaskService {
	return &TaskService{store: store, ledger: ledger, verifier: verifier}
}

type CreateTaskInput struct {
	CreatorID            int64
	Title                string
	Description          string
	TaskType             domain.TaskType
	TargetData           string
	RewardPerParticipant *big.Int
	MaxParticipants      int
	ExpiresAt            time.Time
	Requirements         domain.TaskRequirements
}

func (in *CreateTaskInput) validate() error {
	switch {
	case in.Title == "" || len(in.Title) > config.MaxTitleLen:
		return fmt.Errorf("%w: title must be 1..%d characters", domain.ErrValidation, config.MaxTitleLen)
	case len(in.Description) > config.MaxDescriptionLen:
		return fmt.Errorf("%w: description too long", domain.ErrValidation)
	case !in.TaskType.Valid():
		return fmt.Errorf("%w: unknown task type %q", domain.ErrValidation, in.TaskType)
	case in.TargetData == "":
		return fmt.Errorf("%w: target data required", domain.ErrValidation)
	case in.RewardPerParticipant == nil || in.RewardPerParticipant.Sign() <= 0:
		return fmt.Errorf("%w: reward must be positive", domain.ErrValidation)
	case in.MaxParticipants < 1 || in.MaxParticipants > config.MaxParticipantsLimit:
		return fmt.Errorf("%w: max participants must be 1..%d", domain.ErrValidation, config.MaxParticipantsLimit)
	case !in.ExpiresAt.After(time.Now()):
		return fmt.Errorf("%w: expiry must be in the future", domain.ErrValidation)
	}
	return nil
}

// Create validates the target, persists a draft, escrows funds and
// activates the task. If escrow fails the draft is discarded: a task is
// either live with funds locked or it never existed.
func (s *TaskService) Create(ctx context.Context, in CreateTaskInput) (*domain.Task, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	if _, err := s.store.GetUser(ctx, in.CreatorID); err != nil {
		return nil, err
	}

	exists, err := s.verifier.TargetExists(ctx, in.TaskType, in.TargetData)
	if err != nil {
		return nil, fmt.Errorf("%w: target lookup: %v", domain.ErrProviderUnavailable, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: target %q not found", domain.ErrValidation, in.TargetData)
	}

	totalFunding := new(big.Int).Mul(in.RewardPerParticipant,
		big.NewInt(int64(in.MaxParticipants)))

	task, err := s.store.CreateTask(ctx, &domain.Task{
		CreatorID:            in.CreatorID,
		Title:                in.Title,
		Description:          in.Description,
		TaskType:             in.TaskType,
		TargetData:           in.TargetData,
		RewardPerParticipant: in.RewardPerParticipant,
		MaxParticipants:      in.MaxParticipants,
		TotalFunding:         totalFunding,
		ExpiresAt:            in.ExpiresAt,
		Requirements:         in.Requirements,
	})
	if err != nil {
		return nil, fmt.Errorf("persist draft: %w", err)
	}

	escrow, err := s.ledger.Escrow(ctx, in.MaxParticipants, totalFunding)
	if err != nil {
		if delErr := s.store.DeleteTask(ctx, task.ID); delErr != nil {
			slog.Error("failed to discard draft after escrow failure",
				"task_id", task.ID, "error", delErr)
		}
		return nil, err
	}

	if err := s.store.ActivateTask(ctx, task.ID, escrow.OnChainID, escrow.SettlementRef); err != nil {
		return nil, fmt.Errorf("activate escrowed task %d: %w", task.ID, err)
	}

	slog.Info("task created",
		"task_id", task.ID,
		"on_chain_id", escrow.OnChainID.String(),
		"total_funding", totalFunding.String(),
	)
	return s.store.GetTask(ctx, task.ID)
}

func (s *TaskService) Get(ctx context.Context, id int64) (*domain.Task, error) {
	return s.store.GetTask(ctx, id)
}

func (s *TaskService) List(ctx context.Context, status domain.TaskStatus, limit, offset int) ([]*domain.Task, error) {
	if limit <= 0 || limit > config.MaxPageSize {
		limit = config.DefaultPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListTasks(ctx, status, limit, offset)
}

// Cancel is creator-only and refused once any participant has claimed.
// Recovering escrowed funds is an external refund concern.
func (s *TaskService) Cancel(ctx context.Context, taskID, requesterID int64) (*domain.Task, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.CreatorID != requesterID {
		return nil, fmt.Errorf("%w: only the creator can cancel", domain.ErrForbidden)
	}

	claimed, err := s.store.CountParticipantsByStatus(ctx, taskID, domain.ParticipantStatusClaimed)
	if err != nil {
		return nil, err
	}
	if claimed > 0 {
		return nil, fmt.Errorf("%w: task has claimed participants", domain.ErrInvalidState)
	}

	if err := s.store.SetTaskStatus(ctx, taskID, domain.TaskStatusActive, domain.TaskStatusCancelled); err != nil {
		return nil, err
	}
	return s.store.GetTask(ctx, taskID)
}

// Complete lets the creator close an active task early. Participants who
// are already VERIFIED keep their claim path; no new joins are accepted.
func (s *TaskService) Complete(ctx context.Context, taskID, requesterID int64) (*domain.Task, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.CreatorID != requesterID {
		return nil, fmt.Errorf("%w: only the creator can complete", domain.ErrForbidden)
	}

	if err := s.store.SetTaskStatus(ctx, taskID, domain.TaskStatusActive, domain.TaskStatusCompleted); err != nil {
		return nil, err
	}
	return s.store.GetTask(ctx, taskID)
}

// Join admits a user to an active task. The participant insert and the
// capacity increment happen as one store operation, so concurrent joins
// at the last slot admit exactly one user.
func (s *TaskService) Join(ctx context.Context, taskID, userID int64) (*domain.Participant, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if task.Status != domain.TaskStatusActive {
		return nil, domain.ErrTaskNotActive
	}
	if task.IsExpired(time.Now()) {
		return nil, domain.ErrTaskExpired
	}
	if task.IsFull() {
		return nil, domain.ErrTaskFull
	}

	if err := s.checkRequirements(ctx, task, user); err != nil {
		return nil, err
	}

	participant, newCount, err := s.store.Join(ctx, taskID, userID)
	if err != nil {
		return nil, err
	}

	if newCount >= task.MaxParticipants {
		// Last slot filled; completion is best-effort since another
		// caller (or the creator) may already have moved the status.
		if err := s.store.SetTaskStatus(ctx, taskID, domain.TaskStatusActive, domain.TaskStatusCompleted); err != nil {
			slog.Warn("could not complete filled task", "task_id", taskID, "error", err)
		}
	}

	return participant, nil
}

func (s *TaskService) checkRequirements(ctx context.Context, task *domain.Task, user *domain.User) error {
	req := task.Requirements
	if !req.MustBeVerified && req.MinimumFollowers <= 0 {
		return nil
	}

	followers, verified, err := s.verifier.Profile(ctx, user.FID)
	if err != nil {
		return fmt.Errorf("%w: profile lookup: %v", domain.ErrProviderUnavailable, err)
	}
	if req.MustBeVerified && !verified {
		return fmt.Errorf("%w: verified account required", domain.ErrRequirementNotMet)
	}
	if followers < req.MinimumFollowers {
		return fmt.Errorf("%w: %d followers required", domain.ErrRequirementNotMet, req.MinimumFollowers)
	}
	return nil
}
