package repository

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/castquest/castquest-backend/internal/domain"
)

// Memory is an in-process Store used by tests and DB-less local runs. It
// mirrors the Postgres semantics: bounded capacity increments, one
// participant per (task, user), compare-and-set transitions, and claim
// confirmation updating participant and user under the same lock.
type Memory struct {
	mu sync.Mutex

	tasks        map[int64]*domain.Task
	participants map[int64]*domain.Participant
	users        map[int64]*domain.User
	rewards      []*domain.RewardTransaction

	nextTaskID        int64
	nextParticipantID int64
	nextUserID        int64
	nextRewardID      int64
}

func NewMemory() *Memory {
	return &Memory{
		tasks:        make(map[int64]*domain.Task),
		participants: make(map[int64]*domain.Participant),
		users:        make(map[int64]*domain.User),
	}
}

func (m *Memory) CreateTask(ctx context.Context, t *domain.Task) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextTaskID++
	stored := copyTask(t)
	stored.ID = m.nextTaskID
	stored.Status = domain.TaskStatusDraft
	stored.CurrentParticipants = 0
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	m.tasks[stored.ID] = stored

	return copyTask(stored), nil
}

func (m *Memory) GetTask(ctx context.Context, id int64) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	return copyTask(t), nil
}

func (m *Memory) ListTasks(ctx context.Context, status domain.TaskStatus, limit, offset int) ([]*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var tasks []*domain.Task
	for _, t := range m.tasks {
		if status != "" && t.Status != status {
			continue
		}
		tasks = append(tasks, copyTask(t))
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID > tasks[j].ID })

	if offset >= len(tasks) {
		return nil, nil
	}
	tasks = tasks[offset:]
	if limit > 0 && limit < len(tasks) {
		tasks = tasks[:limit]
	}
	return tasks, nil
}

func (m *Memory) DeleteTask(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok || t.Status != domain.TaskStatusDraft {
		return domain.ErrTaskNotFound
	}
	delete(m.tasks, id)
	return nil
}

func (m *Memory) ActivateTask(ctx context.Context, id int64, onChainID *big.Int, settlementRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return domain.ErrTaskNotFound
	}
	if t.Status != domain.TaskStatusDraft {
		return domain.ErrInvalidState
	}
	t.OnChainID = new(big.Int).Set(onChainID)
	t.SettlementRef = settlementRef
	t.Status = domain.TaskStatusActive
	t.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) SetTaskStatus(ctx context.Context, id int64, from, to domain.TaskStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return domain.ErrTaskNotFound
	}
	if t.Status != from {
		return domain.ErrInvalidState
	}
	t.Status = to
	t.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) GetParticipant(ctx context.Context, id int64) (*domain.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.participants[id]
	if !ok {
		return nil, domain.ErrParticipantNotFound
	}
	return copyParticipant(p), nil
}

func (m *Memory) GetParticipantByTaskUser(ctx context.Context, taskID, userID int64) (*domain.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.participants {
		if p.TaskID == taskID && p.UserID == userID {
			return copyParticipant(p), nil
		}
	}
	return nil, domain.ErrParticipantNotFound
}

func (m *Memory) ListParticipantsByTask(ctx context.Context, taskID int64) ([]*domain.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var participants []*domain.Participant
	for _, p := range m.participants {
		if p.TaskID == taskID {
			participants = append(participants, copyParticipant(p))
		}
	}
	sort.Slice(participants, func(i, j int) bool { return participants[i].ID < participants[j].ID })
	return participants, nil
}

func (m *Memory) CountParticipantsByStatus(ctx context.Context, taskID int64, status domain.ParticipantStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, p := range m.participants {
		if p.TaskID == taskID && p.Status == status {
			count++
		}
	}
	return count, nil
}

func (m *Memory) Join(ctx context.Context, taskID, userID int64) (*domain.Participant, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[taskID]
	if !ok {
		return nil, 0, domain.ErrTaskNotFound
	}
	if t.Status != domain.TaskStatusActive {
		return nil, 0, domain.ErrTaskNotActive
	}
	if t.CurrentParticipants >= t.MaxParticipants {
		return nil, 0, domain.ErrTaskFull
	}
	for _, p := range m.participants {
		if p.TaskID == taskID && p.UserID == userID {
			return nil, 0, domain.ErrAlreadyJoined
		}
	}

	t.CurrentParticipants++
	t.UpdatedAt = time.Now()

	m.nextParticipantID++
	p := &domain.Participant{
		ID:        m.nextParticipantID,
		TaskID:    taskID,
		UserID:    userID,
		Status:    domain.ParticipantStatusPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	m.participants[p.ID] = p
	return copyParticipant(p), t.CurrentParticipants, nil
}

func (m *Memory) SetProof(ctx context.Context, id int64, proofData string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.participants[id]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	if p.Status != domain.ParticipantStatusPending {
		return domain.ErrInvalidState
	}
	p.ProofSubmitted = true
	p.ProofData = proofData
	p.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) SetParticipantStatus(ctx context.Context, id int64, from, to domain.ParticipantStatus, notes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.participants[id]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	if p.Status != from {
		return domain.ErrInvalidState
	}
	p.Status = to
	p.VerificationNotes = notes
	p.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) SetClaimAuthorization(ctx context.Context, id int64, signature string, reward *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.participants[id]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	if p.Status != domain.ParticipantStatusVerified || p.ClaimSignature != "" || p.ClaimedAt != nil {
		return domain.ErrInvalidState
	}
	p.ClaimSignature = signature
	p.RewardAmount = new(big.Int).Set(reward)
	p.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) ConfirmClaim(ctx context.Context, id int64, txHash string, reputationDelta int) (*domain.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.participants[id]
	if !ok {
		return nil, domain.ErrParticipantNotFound
	}
	if p.ClaimSignature == "" || p.ClaimedAt != nil {
		return nil, domain.ErrInvalidState
	}
	u, ok := m.users[p.UserID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}

	now := time.Now()
	p.Status = domain.ParticipantStatusClaimed
	p.ClaimedAt = &now
	p.SettlementTxHash = txHash
	p.UpdatedAt = now

	u.TotalTasksCompleted++
	u.Reputation += reputationDelta
	u.TotalRewardsEarned = new(big.Int).Add(u.TotalRewardsEarned, p.RewardAmount)
	u.UpdatedAt = now

	m.nextRewardID++
	m.rewards = append(m.rewards, &domain.RewardTransaction{
		ID:            m.nextRewardID,
		UserID:        p.UserID,
		TaskID:        p.TaskID,
		ParticipantID: p.ID,
		Amount:        new(big.Int).Set(p.RewardAmount),
		TxHash:        txHash,
		CreatedAt:     now,
	})

	return copyParticipant(p), nil
}

func (m *Memory) CreateUser(ctx context.Context, fid int64, username, walletAddress string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.FID == fid {
			return copyUser(u), nil
		}
	}

	m.nextUserID++
	u := &domain.User{
		ID:                 m.nextUserID,
		FID:                fid,
		Username:           username,
		WalletAddress:      walletAddress,
		TotalRewardsEarned: big.NewInt(0),
		CreatedAt:          time.Now(),
		UpdatedAt:          time.Now(),
	}
	m.users[u.ID] = u
	return copyUser(u), nil
}

func (m *Memory) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return copyUser(u), nil
}

func (m *Memory) GetUserByFID(ctx context.Context, fid int64) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.FID == fid {
			return copyUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func copyTask(t *domain.Task) *domain.Task {
	c := *t
	if t.RewardPerParticipant != nil {
		c.RewardPerParticipant = new(big.Int).Set(t.RewardPerParticipant)
	}
	if t.TotalFunding != nil {
		c.TotalFunding = new(big.Int).Set(t.TotalFunding)
	}
	if t.OnChainID != nil {
		c.OnChainID = new(big.Int).Set(t.OnChainID)
	}
	return &c
}

func copyParticipant(p *domain.Participant) *domain.Participant {
	c := *p
	if p.RewardAmount != nil {
		c.RewardAmount = new(big.Int).Set(p.RewardAmount)
	}
	if p.ClaimedAt != nil {
		at := *p.ClaimedAt
		c.ClaimedAt = &at
	}
	return &c
}

func copyUser(u *domain.User) *domain.User {
	c := *u
	if u.TotalRewardsEarned != nil {
		c.TotalRewardsEarned = new(big.Int).Set(u.TotalRewardsEarned)
	}
	return &c
}
