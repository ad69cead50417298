package domain

import (
	"math/big"
	"time"
)

type ParticipantStatus string

const (
	ParticipantStatusPending  ParticipantStatus = "PENDING"
	ParticipantStatusVerified ParticipantStatus = "VERIFIED"
	ParticipantStatusClaimed  ParticipantStatus = "CLAIMED"
	ParticipantStatusRejected ParticipantStatus = "REJECTED"
)

// Participant is one user's attempt at one task. There is exactly one
// record per (task, user) pair. RewardAmount is snapshotted from the task
// when the claim signature is issued; ClaimSignature, ClaimedAt and
// SettlementTxHash are write-once.
type Participant struct {
	ID                int64
	TaskID            int64
	UserID            int64
	Status            ParticipantStatus
	ProofSubmitted    bool
	ProofData         string
	VerificationNotes string
	RewardAmount      *big.Int
	ClaimSignature    string
	ClaimedAt         *time.Time
	SettlementTxHash  string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (p *Participant) SignatureIssued() bool {
	return p.ClaimSignature != ""
}

func (p *Participant) Claimed() bool {
	return p.ClaimedAt != nil
}
