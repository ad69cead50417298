package domain

import (
	"math/big"
	"time"
)

// RewardTransaction is the audit record written alongside a confirmed
// claim, one per payout.
type RewardTransaction struct {
	ID            int64
	UserID        int64
	TaskID        int64
	ParticipantID int64
	Amount        *big.Int
	TxHash        string
	CreatedAt     time.Time
}
