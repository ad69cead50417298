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
)

const testWallet = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"

type taskTestEnv struct {
	store    *repository.Memory
	ledger   *fakeLedger
	verifier *fakeVerifier
	tasks    *TaskService
	creator  *domain.User
}

func newTaskTestEnv(t *testing.T) *taskTestEnv {
	t.Helper()

	store := repository.NewMemory()
	fl := &fakeLedger{}
	fv := &fakeVerifier{verified: true, targetExists: true}

	creator, err := store.CreateUser(context.Background(), 1, "creator", testWallet)
	require.NoError(t, err)

	return &taskTestEnv{
		store:    store,
		ledger:   fl,
		verifier: fv,
		tasks:    NewTaskService(store, fl, fv),
		creator:  creator,
	}
}

func (e *taskTestEnv) user(t *testing.T, fid int64) *domain.User {
	t.Helper()
	u, err := e.store.CreateUser(context.Background(), fid, "user", testWallet)
	require.NoError(t, err)
	return u
}

func validInput(creatorID int64) CreateTaskInput {
	return CreateTaskInput{
		CreatorID:            creatorID,
		Title:                "Follow @castquest",
		Description:          "Follow our account to earn",
		TaskType:             domain.TaskTypeFollowUser,
		TargetData:           "castquest",
		RewardPerParticipant: big.NewInt(1000),
		MaxParticipants:      10,
		ExpiresAt:            time.Now().Add(24 * time.Hour),
	}
}

func TestCreateTask(t *testing.T) {
	env := newTaskTestEnv(t)

	task, err := env.tasks.Create(context.Background(), validInput(env.creator.ID))
	require.NoError(t, err)

	assert.Equal(t, domain.TaskStatusActive, task.Status)
	require.NotNil(t, task.OnChainID)
	assert.Equal(t, "10000", task.TotalFunding.String(), "funding is reward * capacity")
	assert.Equal(t, "10000", env.ledger.lastFunding.String())
	assert.NotEmpty(t, task.SettlementRef)
}

func TestCreateTaskValidation(t *testing.T) {
	env := newTaskTestEnv(t)

	mutations := map[string]func(*CreateTaskInput){
		"empty title":       func(in *CreateTaskInput) { in.Title = "" },
		"bad type":          func(in *CreateTaskInput) { in.TaskType = "DANCE" },
		"no target":         func(in *CreateTaskInput) { in.TargetData = "" },
		"nil reward":        func(in *CreateTaskInput) { in.RewardPerParticipant = nil },
		"zero reward":       func(in *CreateTaskInput) { in.RewardPerParticipant = big.NewInt(0) },
		"negative reward":   func(in *CreateTaskInput) { in.RewardPerParticipant = big.NewInt(-5) },
		"zero participants": func(in *CreateTaskInput) { in.MaxParticipants = 0 },
		"over limit":        func(in *CreateTaskInput) { in.MaxParticipants = 100000 },
		"past expiry":       func(in *CreateTaskInput) { in.ExpiresAt = time.Now().Add(-time.Hour) },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			in := validInput(env.creator.ID)
			mutate(&in)
			_, err := env.tasks.Create(context.Background(), in)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}

	// No escrow attempts for invalid input.
	assert.Zero(t, env.ledger.escrowCalls)
}

func TestCreateTaskUnknownCreator(t *testing.T) {
	env := newTaskTestEnv(t)

	_, err := env.tasks.Create(context.Background(), validInput(9999))
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestCreateTaskTargetChecks(t *testing.T) {
	env := newTaskTestEnv(t)

	env.verifier.targetExists = false
	_, err := env.tasks.Create(context.Background(), validInput(env.creator.ID))
	assert.ErrorIs(t, err, domain.ErrValidation)

	env.verifier.targetExists = true
	env.verifier.targetErr = context.DeadlineExceeded
	_, err = env.tasks.Create(context.Background(), validInput(env.creator.ID))
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
	assert.True(t, domain.Retryable(err))
}

func TestCreateTaskEscrowFailureDiscardsDraft(t *testing.T) {
	env := newTaskTestEnv(t)
	env.ledger.escrowErr = domain.ErrInsufficientFunds

	_, err := env.tasks.Create(context.Background(), validInput(env.creator.ID))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// The draft must not survive a failed escrow.
	tasks, err := env.tasks.List(context.Background(), "", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestCancelTask(t *testing.T) {
	env := newTaskTestEnv(t)
	task, err := env.tasks.Create(context.Background(), validInput(env.creator.ID))
	require.NoError(t, err)

	stranger := env.user(t, 2)
	_, err = env.tasks.Cancel(context.Background(), task.ID, stranger.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	cancelled, err := env.tasks.Cancel(context.Background(), task.ID, env.creator.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCancelled, cancelled.Status)

	_, err = env.tasks.Cancel(context.Background(), task.ID, env.creator.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestCompleteTask(t *testing.T) {
	env := newTaskTestEnv(t)
	task, err := env.tasks.Create(context.Background(), validInput(env.creator.ID))
	require.NoError(t, err)

	stranger := env.user(t, 2)
	_, err = env.tasks.Complete(context.Background(), task.ID, stranger.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	completed, err := env.tasks.Complete(context.Background(), task.ID, env.creator.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, completed.Status)

	_, err = env.tasks.Complete(context.Background(), task.ID, env.creator.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestJoinTask(t *testing.T) {
	env := newTaskTestEnv(t)
	task, err := env.tasks.Create(context.Background(), validInput(env.creator.ID))
	require.NoError(t, err)

	joiner := env.user(t, 2)
	p, err := env.tasks.Join(context.Background(), task.ID, joiner.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ParticipantStatusPending, p.Status)

	_, err = env.tasks.Join(context.Background(), task.ID, joiner.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyJoined)
}

func TestJoinCancelledTask(t *testing.T) {
	env := newTaskTestEnv(t)
	task, err := env.tasks.Create(context.Background(), validInput(env.creator.ID))
	require.NoError(t, err)
	_, err = env.tasks.Cancel(context.Background(), task.ID, env.creator.ID)
	require.NoError(t, err)

	joiner := env.user(t, 2)
	_, err = env.tasks.Join(context.Background(), task.ID, joiner.ID)
	assert.ErrorIs(t, err, domain.ErrTaskNotActive)
}

func TestJoinExpiredTask(t *testing.T) {
	env := newTaskTestEnv(t)
	ctx := context.Background()

	// An already-expired active task can only be built through the store.
	task, err := env.store.CreateTask(ctx, &domain.Task{
		CreatorID:            env.creator.ID,
		Title:                "old",
		TaskType:             domain.TaskTypeFollowUser,
		TargetData:           "castquest",
		RewardPerParticipant: big.NewInt(1),
		MaxParticipants:      5,
		TotalFunding:         big.NewInt(5),
		ExpiresAt:            time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)
	require.NoError(t, env.store.ActivateTask(ctx, task.ID, big.NewInt(1), "0xref"))

	joiner := env.user(t, 2)
	_, err = env.tasks.Join(ctx, task.ID, joiner.ID)
	assert.ErrorIs(t, err, domain.ErrTaskExpired)
}

func TestJoinRequirements(t *testing.T) {
	env := newTaskTestEnv(t)
	env.verifier.followers = 50
	env.verifier.powerBadge = false

	in := validInput(env.creator.ID)
	in.Requirements = domain.TaskRequirements{MinimumFollowers: 100}
	task, err := env.tasks.Create(context.Background(), in)
	require.NoError(t, err)

	joiner := env.user(t, 2)
	_, err = env.tasks.Join(context.Background(), task.ID, joiner.ID)
	assert.ErrorIs(t, err, domain.ErrRequirementNotMet)

	env.verifier.followers = 200
	p, err := env.tasks.Join(context.Background(), task.ID, joiner.ID)
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestJoinRequiresVerifiedAccount(t *testing.T) {
	env := newTaskTestEnv(t)
	env.verifier.powerBadge = false

	in := validInput(env.creator.ID)
	in.Requirements = domain.TaskRequirements{MustBeVerified: true}
	task, err := env.tasks.Create(context.Background(), in)
	require.NoError(t, err)

	joiner := env.user(t, 2)
	_, err = env.tasks.Join(context.Background(), task.ID, joiner.ID)
	assert.ErrorIs(t, err, domain.ErrRequirementNotMet)
}

func TestJoinProfileLookupFailure(t *testing.T) {
	env := newTaskTestEnv(t)
	env.verifier.profileErr = context.DeadlineExceeded

	in := validInput(env.creator.ID)
	in.Requirements = domain.TaskRequirements{MinimumFollowers: 1}
	task, err := env.tasks.Create(context.Background(), in)
	require.NoError(t, err)

	joiner := env.user(t, 2)
	_, err = env.tasks.Join(context.Background(), task.ID, joiner.ID)
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestJoinLastSlotCompletesTask(t *testing.T) {
	env := newTaskTestEnv(t)

	in := validInput(env.creator.ID)
	in.MaxParticipants = 2
	task, err := env.tasks.Create(context.Background(), in)
	require.NoError(t, err)

	first := env.user(t, 2)
	second := env.user(t, 3)

	_, err = env.tasks.Join(context.Background(), task.ID, first.ID)
	require.NoError(t, err)

	got, err := env.tasks.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusActive, got.Status)

	_, err = env.tasks.Join(context.Background(), task.ID, second.ID)
	require.NoError(t, err)

	got, err = env.tasks.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, got.Status)

	third := env.user(t, 4)
	_, err = env.tasks.Join(context.Background(), task.ID, third.ID)
	assert.ErrorIs(t, err, domain.ErrTaskNotActive)
}

func TestJoinConcurrentLastSlot(t *testing.T) {
	env := newTaskTestEnv(t)

	in := validInput(env.creator.ID)
	in.MaxParticipants = 1
	task, err := env.tasks.Create(context.Background(), in)
	require.NoError(t, err)

	const racers = 10
	users := make([]*domain.User, racers)
	for i := range users {
		users[i] = env.user(t, int64(100+i))
	}

	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.tasks.Join(context.Background(), task.ID, users[i].ID)
		}(i)
	}
	wg.Wait()

	admitted := 0
	for _, err := range errs {
		if err == nil {
			admitted++
		}
	}
	assert.Equal(t, 1, admitted)

	got, err := env.tasks.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentParticipants)
}

func TestListTasksClampsPagination(t *testing.T) {
	env := newTaskTestEnv(t)
	for i := 0; i < 3; i++ {
		_, err := env.tasks.Create(context.Background(), validInput(env.creator.ID))
		require.NoError(t, err)
	}

	tasks, err := env.tasks.List(context.Background(), domain.TaskStatusActive, -5, -5)
	require.NoError(t, err)
	assert.Len(t, tasks, 3)
}
