package service

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/castquest/castquest-backend/internal/domain"
	"github.com/castquest/castquest-backend/internal/ledger"
	"github.com/castquest/castquest-backend/internal/sponsorship"
)

// fakeLedger answers like the reward contract without a chain. Sign is
// deterministic over its tuple, matching the real authority signer.
type fakeLedger struct {
	mu sync.Mutex

	escrowErr    error
	nextOnChain  int64
	escrowCalls  int
	lastFunding  *big.Int
	hasClaimed   bool
	hasClaimsErr error
	signCalls    int
}

func (f *fakeLedger) Escrow(ctx context.Context, maxParticipants int, totalFunding *big.Int) (*ledger.EscrowResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.escrowCalls++
	f.lastFunding = new(big.Int).Set(totalFunding)
	if f.escrowErr != nil {
		return nil, f.escrowErr
	}
	f.nextOnChain++
	return &ledger.EscrowResult{
		OnChainID:     big.NewInt(f.nextOnChain),
		SettlementRef: fmt.Sprintf("0xescrow%d", f.nextOnChain),
	}, nil
}

func (f *fakeLedger) Sign(onChainID *big.Int, claimant string, amount *big.Int) (string, error) {
	f.mu.Lock()
	f.signCalls++
	f.mu.Unlock()
	return fmt.Sprintf("0xsig-%s-%s-%s", onChainID, claimant, amount), nil
}

func (f *fakeLedger) VerifySignature(onChainID *big.Int, claimant string, amount *big.Int, signature string) (bool, error) {
	expected := fmt.Sprintf("0xsig-%s-%s-%s", onChainID, claimant, amount)
	return signature == expected, nil
}

func (f *fakeLedger) HasClaimed(ctx context.Context, onChainID *big.Int, claimant string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasClaimed, f.hasClaimsErr
}

func (f *fakeLedger) ClaimCallData(onChainID *big.Int, amount *big.Int, signature string) (string, error) {
	return "0xcalldata", nil
}

func (f *fakeLedger) ContractAddress() string { return "0x5FbDB2315678afecb367f032d93F642f64180aa3" }
func (f *fakeLedger) ChainID() int64          { return 8453 }

// fakeVerifier returns fixed answers for every identity question.
type fakeVerifier struct {
	verified     bool
	targetExists bool
	targetErr    error
	followers    int
	powerBadge   bool
	profileErr   error
}

func (f *fakeVerifier) Verify(ctx context.Context, taskType domain.TaskType, targetData string, fid int64) bool {
	return f.verified
}

func (f *fakeVerifier) TargetExists(ctx context.Context, taskType domain.TaskType, targetData string) (bool, error) {
	return f.targetExists, f.targetErr
}

func (f *fakeVerifier) Profile(ctx context.Context, fid int64) (int, bool, error) {
	return f.followers, f.powerBadge, f.profileErr
}

type fakeSponsor struct {
	result sponsorship.Result
}

func (f *fakeSponsor) Negotiate(ctx context.Context, op sponsorship.Operation) sponsorship.Result {
	return f.result
}
