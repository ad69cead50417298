package domain

import (
	"math/big"
	"time"
)

type TaskType string

const (
	TaskTypeFollowUser  TaskType = "FOLLOW_USER"
	TaskTypeLikeCast    TaskType = "LIKE_CAST"
	TaskTypeRecastCast  TaskType = "RECAST_CAST"
	TaskTypeJoinChannel TaskType = "JOIN_CHANNEL"
)

func (t TaskType) Valid() bool {
	switch t {
	case TaskTypeFollowUser, TaskTypeLikeCast, TaskTypeRecastCast, TaskTypeJoinChannel:
		return true
	}
	return false
}

type TaskStatus string

const (
	TaskStatusDraft     TaskStatus = "DRAFT"
	TaskStatusActive    TaskStatus = "ACTIVE"
	TaskStatusCompleted TaskStatus = "COMPLETED"
	TaskStatusCancelled TaskStatus = "CANCELLED"
)

type TaskRequirements struct {
	MinimumFollowers int
	MustBeVerified   bool
}

// Task is a funded bounty. TotalFunding is fixed at creation
// (RewardPerParticipant * MaxParticipants) and never recomputed.
// OnChainID stays nil until the ledger confirms escrow.
type Task struct {
	ID                   int64
	CreatorID            int64
	Title                string
	Description          string
	TaskType             TaskType
	TargetData           string
	RewardPerParticipant *big.Int
	MaxParticipants      int
	CurrentParticipants  int
	TotalFunding         *big.Int
	OnChainID            *big.Int
	SettlementRef        string
	Status               TaskStatus
	ExpiresAt            time.Time
	Requirements         TaskRequirements
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (t *Task) IsFull() bool {
	return t.CurrentParticipants >= t.MaxParticipants
}

func (t *Task) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
