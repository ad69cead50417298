package service

import (
	"context"
	"math/big"

	"github.com/castquest/castquest-backend/internal/domain"
	"github.com/castquest/castquest-backend/internal/ledger"
	"github.com/castquest/castquest-backend/internal/sponsorship"
)

// Ledger is the reward contract surface the lifecycle managers need.
type Ledger interface {
	Escrow(ctx context.Context, maxParticipants int, totalFunding *big.Int) (*ledger.EscrowResult, error)
	Sign(onChainID *big.Int, claimant string, amount *big.Int) (string, error)
	VerifySignature(onChainID *big.Int, claimant string, amount *big.Int, signature string) (bool, error)
	HasClaimed(ctx context.Context, onChainID *big.Int, claimant string) (bool, error)
	ClaimCallData(onChainID *big.Int, amount *big.Int, signature string) (string, error)
	ContractAddress() string
	ChainID() int64
}

// Verifier answers identity-provider questions. Verify never fails: an
// unreachable provider means unverified, not rejected.
type Verifier interface {
	Verify(ctx context.Context, taskType domain.TaskType, targetData string, fid int64) bool
	TargetExists(ctx context.Context, taskType domain.TaskType, targetData string) (bool, error)
	Profile(ctx context.Context, fid int64) (followers int, verified bool, err error)
}

// Sponsor negotiates gas sponsorship; its result never blocks a claim.
type Sponsor interface {
	Negotiate(ctx context.Context, op sponsorship.Operation) sponsorship.Result
}
