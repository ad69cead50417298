package repository

import (
	"context"
	"math/big"

	"github.com/castquest/castquest-backend/internal/domain"
)

// TaskStore persists tasks. Status updates are compare-and-set on the
// current status so lifecycle transitions never move backward.
type TaskStore interface {
	CreateTask(ctx context.Context, t *domain.Task) (*domain.Task, error)
	GetTask(ctx context.Context, id int64) (*domain.Task, error)
	ListTasks(ctx context.Context, status domain.TaskStatus, limit, offset int) ([]*domain.Task, error)
	// DeleteTask discards a DRAFT whose escrow never confirmed.
	DeleteTask(ctx context.Context, id int64) error
	// ActivateTask moves DRAFT to ACTIVE once escrow is confirmed.
	ActivateTask(ctx context.Context, id int64, onChainID *big.Int, settlementRef string) error
	SetTaskStatus(ctx context.Context, id int64, from, to domain.TaskStatus) error
}

// ParticipantStore persists participants. Join and ConfirmClaim span the
// task/user record in the same atomic operation; every status change is a
// compare-and-set so two concurrent callers can never both advance the
// same record past the same state.
type ParticipantStore interface {
	GetParticipant(ctx context.Context, id int64) (*domain.Participant, error)
	GetParticipantByTaskUser(ctx context.Context, taskID, userID int64) (*domain.Participant, error)
	ListParticipantsByTask(ctx context.Context, taskID int64) ([]*domain.Participant, error)
	CountParticipantsByStatus(ctx context.Context, taskID int64, status domain.ParticipantStatus) (int, error)
	// Join atomically creates the PENDING participant and increments the
	// task's bounded capacity counter. Returns the new participant count.
	Join(ctx context.Context, taskID, userID int64) (*domain.Participant, int, error)
	// SetProof records proof data; legal only while PENDING.
	SetProof(ctx context.Context, id int64, proofData string) error
	SetParticipantStatus(ctx context.Context, id int64, from, to domain.ParticipantStatus, notes string) error
	// SetClaimAuthorization writes the signature and snapshotted reward,
	// at most once, only from VERIFIED with no prior signature.
	SetClaimAuthorization(ctx context.Context, id int64, signature string, reward *big.Int) error
	// ConfirmClaim marks the participant CLAIMED and updates the owning
	// user's aggregates in one transaction.
	ConfirmClaim(ctx context.Context, id int64, txHash string, reputationDelta int) (*domain.Participant, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, fid int64, username, walletAddress string) (*domain.User, error)
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	GetUserByFID(ctx context.Context, fid int64) (*domain.User, error)
}

// Store is the full persistence surface the services need.
type Store interface {
	TaskStore
	ParticipantStore
	UserStore
}
