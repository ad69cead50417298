package service

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castquest/castquest-backend/internal/domain"
	"github.com/castquest/castquest-backend/internal/repository"
	"github.com/castquest/castquest-backend/internal/sponsorship"
)

const testTxHash = "0x" +
	"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

type claimTestEnv struct {
	store        *repository.Memory
	ledger       *fakeLedger
	verifier     *fakeVerifier
	sponsor      *fakeSponsor
	tasks        *TaskService
	participants *ParticipantService
	creator      *domain.User
	claimant     *domain.User
}

func newClaimTestEnv(t *testing.T) *claimTestEnv {
	t.Helper()

	store := repository.NewMemory()
	fl := &fakeLedger{}
	fv := &fakeVerifier{verified: true, targetExists: true}
	fs := &fakeSponsor{}

	creator, err := store.CreateUser(context.Background(), 1, "creator", testWallet)
	require.NoError(t, err)
	claimant, err := store.CreateUser(context.Background(), 2, "claimant",
		"0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
	require.NoError(t, err)

	return &claimTestEnv{
		store:        store,
		ledger:       fl,
		verifier:     fv,
		sponsor:      fs,
		tasks:        NewTaskService(store, fl, fv),
		participants: NewParticipantService(store, fl, fv, fs),
		creator:      creator,
		claimant:     claimant,
	}
}

// joinTask creates an active task with the given reward and joins the
// claimant, leaving them PENDING.
func (e *claimTestEnv) joinTask(t *testing.T, reward string, maxParticipants int) (*domain.Task, *domain.Participant) {
	t.Helper()

	amount, ok := new(big.Int).SetString(reward, 10)
	require.True(t, ok)

	task, err := e.tasks.Create(context.Background(), CreateTaskInput{
		CreatorID:            e.creator.ID,
		Title:                "Follow @castquest",
		TaskType:             domain.TaskTypeFollowUser,
		TargetData:           "castquest",
		RewardPerParticipant: amount,
		MaxParticipants:      maxParticipants,
		ExpiresAt:            time.Now().Add(24 * time.Hour),
	})
	require.NoError(t, err)

	p, err := e.tasks.Join(context.Background(), task.ID, e.claimant.ID)
	require.NoError(t, err)
	return task, p
}

// verify moves the claimant's participation to VERIFIED via the creator.
func (e *claimTestEnv) verify(t *testing.T, participantID int64) *domain.Participant {
	t.Helper()
	p, err := e.participants.ManualVerify(context.Background(), participantID, e.creator.ID, true, "ok")
	require.NoError(t, err)
	require.Equal(t, domain.ParticipantStatusVerified, p.Status)
	return p
}

// TestFullClaimLifecycle walks the whole path: join, proof, verification,
// claim authorization, settlement confirmation, aggregate update.
func TestFullClaimLifecycle(t *testing.T) {
	env := newClaimTestEnv(t)
	env.verifier.verified = false // force the manual path
	ctx := context.Background()

	task, p := env.joinTask(t, "1000000000000000", 1)

	p, err := env.participants.SubmitProof(ctx, p.ID, env.claimant.ID, `{"note":"done"}`)
	require.NoError(t, err)
	assert.Equal(t, domain.ParticipantStatusPending, p.Status)
	assert.True(t, p.ProofSubmitted)

	env.verify(t, p.ID)

	result, err := env.participants.RequestClaim(ctx, p.ID, env.claimant.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Signature)
	assert.Equal(t, "1000000000000000", result.RewardAmount.String())
	assert.Equal(t, task.OnChainID.String(), result.OnChainTaskID.String())
	assert.Equal(t, env.ledger.ContractAddress(), result.ContractAddress)
	assert.Equal(t, int64(8453), result.ChainID)
	assert.Equal(t, "0xcalldata", result.CallData)
	assert.Equal(t, result.Signature, result.Participant.ClaimSignature)

	confirmed, err := env.participants.ConfirmClaim(ctx, p.ID, env.claimant.ID, testTxHash)
	require.NoError(t, err)
	assert.Equal(t, domain.ParticipantStatusClaimed, confirmed.Status)
	assert.Equal(t, testTxHash, confirmed.SettlementTxHash)
	require.NotNil(t, confirmed.ClaimedAt)

	user, err := env.store.GetUser(ctx, env.claimant.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, user.TotalTasksCompleted)
	assert.Equal(t, "1000000000000000", user.TotalRewardsEarned.String(),
		"reward must be added with integer precision")
	assert.Positive(t, user.Reputation)

	// The filled single-slot task is closed to further joins.
	other, err := env.store.CreateUser(ctx, 3, "other", testWallet)
	require.NoError(t, err)
	_, err = env.tasks.Join(ctx, task.ID, other.ID)
	assert.ErrorIs(t, err, domain.ErrTaskNotActive)
}

func TestSubmitProofAutoVerifies(t *testing.T) {
	env := newClaimTestEnv(t)
	env.verifier.verified = true
	ctx := context.Background()

	_, p := env.joinTask(t, "1000", 5)

	p, err := env.participants.SubmitProof(ctx, p.ID, env.claimant.ID, "proof")
	require.NoError(t, err)
	assert.Equal(t, domain.ParticipantStatusVerified, p.Status)
	assert.Equal(t, "auto-verified", p.VerificationNotes)
}

func TestSubmitProofGuards(t *testing.T) {
	env := newClaimTestEnv(t)
	env.verifier.verified = false
	ctx := context.Background()

	_, p := env.joinTask(t, "1000", 5)

	_, err := env.participants.SubmitProof(ctx, p.ID, env.creator.ID, "proof")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	long := make([]byte, 5000)
	_, err = env.participants.SubmitProof(ctx, p.ID, env.claimant.ID, string(long))
	assert.ErrorIs(t, err, domain.ErrValidation)

	env.verify(t, p.ID)
	_, err = env.participants.SubmitProof(ctx, p.ID, env.claimant.ID, "proof")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestManualVerify(t *testing.T) {
	env := newClaimTestEnv(t)
	env.verifier.verified = false
	ctx := context.Background()

	_, p := env.joinTask(t, "1000", 5)

	_, err := env.participants.ManualVerify(ctx, p.ID, env.claimant.ID, true, "")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	rejected, err := env.participants.ManualVerify(ctx, p.ID, env.creator.ID, false, "fake proof")
	require.NoError(t, err)
	assert.Equal(t, domain.ParticipantStatusRejected, rejected.Status)
	assert.Equal(t, "fake proof", rejected.VerificationNotes)

	// REJECTED is terminal for verification.
	_, err = env.participants.ManualVerify(ctx, p.ID, env.creator.ID, true, "")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = env.participants.ReVerify(ctx, p.ID, env.claimant.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestReVerify(t *testing.T) {
	env := newClaimTestEnv(t)
	env.verifier.verified = false
	ctx := context.Background()

	_, p := env.joinTask(t, "1000", 5)

	// Provider still says no: stays PENDING, no error.
	got, err := env.participants.ReVerify(ctx, p.ID, env.claimant.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ParticipantStatusPending, got.Status)

	env.verifier.verified = true
	got, err = env.participants.ReVerify(ctx, p.ID, env.claimant.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ParticipantStatusVerified, got.Status)

	// Idempotent once verified.
	got, err = env.participants.ReVerify(ctx, p.ID, env.claimant.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ParticipantStatusVerified, got.Status)

	stranger, err := env.store.CreateUser(ctx, 99, "stranger", testWallet)
	require.NoError(t, err)
	_, err = env.participants.ReVerify(ctx, p.ID, stranger.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestRequestClaimRequiresVerified(t *testing.T) {
	env := newClaimTestEnv(t)
	env.verifier.verified = false
	ctx := context.Background()

	_, p := env.joinTask(t, "1000", 5)

	_, err := env.participants.RequestClaim(ctx, p.ID, env.claimant.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = env.participants.RequestClaim(ctx, p.ID, env.creator.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestRequestClaimSecondRequestFails(t *testing.T) {
	env := newClaimTestEnv(t)
	env.verifier.verified = false
	ctx := context.Background()

	_, p := env.joinTask(t, "1000", 5)
	env.verify(t, p.ID)

	first, err := env.participants.RequestClaim(ctx, p.ID, env.claimant.ID)
	require.NoError(t, err)

	_, err = env.participants.RequestClaim(ctx, p.ID, env.claimant.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	// The persisted signature is untouched by the failed second request.
	got, err := env.participants.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Signature, got.ClaimSignature)
}

func TestRequestClaimAlreadyClaimedOnChain(t *testing.T) {
	env := newClaimTestEnv(t)
	env.verifier.verified = false
	env.ledger.hasClaimed = true
	ctx := context.Background()

	_, p := env.joinTask(t, "1000", 5)
	env.verify(t, p.ID)

	_, err := env.participants.RequestClaim(ctx, p.ID, env.claimant.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimedOnChain)

	// The duplicate check runs before signing; nothing was issued.
	assert.Zero(t, env.ledger.signCalls)
	got, err := env.participants.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ParticipantStatusVerified, got.Status)
	assert.Empty(t, got.ClaimSignature)
}

func TestRequestClaimLedgerDown(t *testing.T) {
	env := newClaimTestEnv(t)
	env.verifier.verified = false
	env.ledger.hasClaimsErr = domain.ErrLedgerUnavailable
	ctx := context.Background()

	_, p := env.joinTask(t, "1000", 5)
	env.verify(t, p.ID)

	_, err := env.participants.RequestClaim(ctx, p.ID, env.claimant.ID)
	assert.ErrorIs(t, err, domain.ErrLedgerUnavailable)
	assert.True(t, domain.Retryable(err))
}

func TestRequestClaimSponsorshipDegrades(t *testing.T) {
	env := newClaimTestEnv(t)
	env.verifier.verified = false
	ctx := context.Background()

	_, p := env.joinTask(t, "1000", 5)
	env.verify(t, p.ID)

	// Paymaster down: claim still succeeds, claimant pays gas.
	result, err := env.participants.RequestClaim(ctx, p.ID, env.claimant.ID)
	require.NoError(t, err)
	assert.False(t, result.Sponsorship.Sponsored)
	assert.NotEmpty(t, result.Signature)
}

func TestRequestClaimSponsored(t *testing.T) {
	env := newClaimTestEnv(t)
	env.verifier.verified = false
	env.sponsor.result = sponsorship.Result{
		Sponsored:        true,
		PaymasterAndData: "0xpm",
	}
	ctx := context.Background()

	_, p := env.joinTask(t, "1000", 5)
	env.verify(t, p.ID)

	result, err := env.participants.RequestClaim(ctx, p.ID, env.claimant.ID)
	require.NoError(t, err)
	assert.True(t, result.Sponsorship.Sponsored)
	assert.Equal(t, "0xpm", result.Sponsorship.PaymasterAndData)
}

func TestRequestClaimConcurrent(t *testing.T) {
	env := newClaimTestEnv(t)
	env.verifier.verified = false
	ctx := context.Background()

	_, p := env.joinTask(t, "1000", 5)
	env.verify(t, p.ID)

	const racers = 10
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.participants.RequestClaim(ctx, p.ID, env.claimant.ID)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, domain.ErrInvalidState)
		}
	}
	assert.Equal(t, 1, succeeded, "only one racer may record an authorization")
}

func TestConfirmClaimGuards(t *testing.T) {
	env := newClaimTestEnv(t)
	env.verifier.verified = false
	ctx := context.Background()

	_, p := env.joinTask(t, "1000", 5)
	env.verify(t, p.ID)

	// No confirmation before authorization.
	_, err := env.participants.ConfirmClaim(ctx, p.ID, env.claimant.ID, testTxHash)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = env.participants.RequestClaim(ctx, p.ID, env.claimant.ID)
	require.NoError(t, err)

	for _, bad := range []string{"", "abc", "0x123", testTxHash + "ff"} {
		_, err = env.participants.ConfirmClaim(ctx, p.ID, env.claimant.ID, bad)
		assert.ErrorIs(t, err, domain.ErrValidation, "hash %q", bad)
	}

	_, err = env.participants.ConfirmClaim(ctx, p.ID, env.creator.ID, testTxHash)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = env.participants.ConfirmClaim(ctx, p.ID, env.claimant.ID, testTxHash)
	require.NoError(t, err)

	// Double confirmation is refused and aggregates stay put.
	_, err = env.participants.ConfirmClaim(ctx, p.ID, env.claimant.ID, testTxHash)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	user, err := env.store.GetUser(ctx, env.claimant.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, user.TotalTasksCompleted)
	assert.Equal(t, "1000", user.TotalRewardsEarned.String())
}

func TestCancelRefusedAfterClaim(t *testing.T) {
	env := newClaimTestEnv(t)
	env.verifier.verified = false
	ctx := context.Background()

	task, p := env.joinTask(t, "1000", 5)
	env.verify(t, p.ID)

	_, err := env.participants.RequestClaim(ctx, p.ID, env.claimant.ID)
	require.NoError(t, err)
	_, err = env.participants.ConfirmClaim(ctx, p.ID, env.claimant.ID, testTxHash)
	require.NoError(t, err)

	_, err = env.tasks.Cancel(ctx, task.ID, env.creator.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}
