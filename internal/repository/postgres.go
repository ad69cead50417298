package repository

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/castquest/castquest-backend/internal/domain"
)

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const taskColumns = `id, creator_id, title, description, task_type, target_data,
	reward_per_participant::text, max_participants, current_participants,
	total_funding::text, on_chain_id::text, settlement_ref, status, expires_at,
	min_followers, must_be_verified, created_at, updated_at`

func (s *Postgres) CreateTask(ctx context.Context, t *domain.Task) (*domain.Task, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO tasks (
			creator_id, title, description, task_type, target_data,
			reward_per_participant, max_participants, total_funding,
			status, expires_at, min_followers, must_be_verified
		) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8::numeric, $9, $10, $11, $12)
		RETURNING `+taskColumns,
		t.CreatorID, t.Title, t.Description, string(t.TaskType), t.TargetData,
		t.RewardPerParticipant.String(), t.MaxParticipants, t.TotalFunding.String(),
		string(domain.TaskStatusDraft), t.ExpiresAt,
		t.Requirements.MinimumFollowers, t.Requirements.MustBeVerified,
	)
	return scanTask(row)
}

func (s *Postgres) GetTask(ctx context.Context, id int64) (*domain.Task, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	return scanTask(row)
}

func (s *Postgres) ListTasks(ctx context.Context, status domain.TaskStatus, limit, offset int) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d OFFSET %d`, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *Postgres) DeleteTask(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1 AND status = $2`,
		id, string(domain.TaskStatusDraft))
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

func (s *Postgres) ActivateTask(ctx context.Context, id int64, onChainID *big.Int, settlementRef string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tasks
		SET on_chain_id = $2::numeric, settlement_ref = $3, status = $4, updated_at = now()
		WHERE id = $1 AND status = $5`,
		id, onChainID.String(), settlementRef,
		string(domain.TaskStatusActive), string(domain.TaskStatusDraft),
	)
	if err != nil {
		return fmt.Errorf("activate task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.taskTransitionError(ctx, id)
	}
	return nil
}

func (s *Postgres) SetTaskStatus(ctx context.Context, id int64, from, to domain.TaskStatus) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tasks SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2`,
		id, string(from), string(to),
	)
	if err != nil {
		return fmt.Errorf("set task status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.taskTransitionError(ctx, id)
	}
	return nil
}

// taskTransitionError distinguishes a missing task from a compare-and-set
// miss.
func (s *Postgres) taskTransitionError(ctx context.Context, id int64) error {
	if _, err := s.GetTask(ctx, id); err != nil {
		return err
	}
	return domain.ErrInvalidState
}

func scanTask(row pgx.Row) (*domain.Task, error) {
	var (
		t                domain.Task
		taskType, status string
		reward, funding  string
		onChainID        *string
	)
	err := row.Scan(
		&t.ID, &t.CreatorID, &t.Title, &t.Description, &taskType, &t.TargetData,
		&reward, &t.MaxParticipants, &t.CurrentParticipants,
		&funding, &onChainID, &t.SettlementRef, &status, &t.ExpiresAt,
		&t.Requirements.MinimumFollowers, &t.Requirements.MustBeVerified,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}

	t.TaskType = domain.TaskType(taskType)
	t.Status = domain.TaskStatus(status)
	if t.RewardPerParticipant, err = parseNumeric(reward); err != nil {
		return nil, err
	}
	if t.TotalFunding, err = parseNumeric(funding); err != nil {
		return nil, err
	}
	if onChainID != nil {
		if t.OnChainID, err = parseNumeric(*onChainID); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

func parseNumeric(s string) (*big.Int, error) {
	i, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", s)
	}
	return i, nil
}
