package domain

import (
	"math/big"
	"time"
)

// User aggregates (TotalTasksCompleted, TotalRewardsEarned, Reputation)
// are updated in the same transaction that marks a participant CLAIMED.
// TotalRewardsEarned is smallest-unit integer arithmetic, never floats.
type User struct {
	ID                  int64
	FID                 int64
	Username            string
	WalletAddress       string
	TotalTasksCompleted int
	TotalRewardsEarned  *big.Int
	Reputation          int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
