package repository

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/castquest/castquest-backend/internal/domain"
)

const participantColumns = `id, task_id, user_id, status, proof_submitted, proof_data,
	verification_notes, reward_amount::text, claim_signature, claimed_at,
	settlement_tx_hash, created_at, updated_at`

const pgUniqueViolation = "23505"

func (s *Postgres) GetParticipant(ctx context.Context, id int64) (*domain.Participant, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+participantColumns+` FROM participants WHERE id = $1`, id)
	return scanParticipant(row)
}

func (s *Postgres) GetParticipantByTaskUser(ctx context.Context, taskID, userID int64) (*domain.Participant, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE task_id = $1 AND user_id = $2`,
		taskID, userID)
	return scanParticipant(row)
}

func (s *Postgres) ListParticipantsByTask(ctx context.Context, taskID int64) ([]*domain.Participant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE task_id = $1 ORDER BY created_at`,
		taskID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var participants []*domain.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func (s *Postgres) CountParticipantsByStatus(ctx context.Context, taskID int64, status domain.ParticipantStatus) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM participants WHERE task_id = $1 AND status = $2`,
		taskID, string(status)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count participants: %w", err)
	}
	return count, nil
}

// Join holds the capacity increment and the participant insert in one
// transaction: the bounded conditional update can never overshoot
// max_participants, and the (task_id, user_id) unique index rejects
// double joins.
func (s *Postgres) Join(ctx context.Context, taskID, userID int64) (*domain.Participant, int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var newCount int
	err = tx.QueryRow(ctx, `
		UPDATE tasks
		SET current_participants = current_participants + 1, updated_at = now()
		WHERE id = $1 AND status = $2 AND current_participants < max_participants
		RETURNING current_participants`,
		taskID, string(domain.TaskStatusActive),
	).Scan(&newCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, s.joinRejection(ctx, taskID)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("increment participants: %w", err)
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO participants (task_id, user_id, status)
		VALUES ($1, $2, $3)
		RETURNING `+participantColumns,
		taskID, userID, string(domain.ParticipantStatusPending),
	)
	p, err := scanParticipant(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, 0, domain.ErrAlreadyJoined
		}
		return nil, 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, 0, fmt.Errorf("commit: %w", err)
	}
	return p, newCount, nil
}

func (s *Postgres) joinRejection(ctx context.Context, taskID int64) error {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status != domain.TaskStatusActive {
		return domain.ErrTaskNotActive
	}
	return domain.ErrTaskFull
}

func (s *Postgres) SetProof(ctx context.Context, id int64, proofData string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE participants
		SET proof_submitted = TRUE, proof_data = $2, updated_at = now()
		WHERE id = $1 AND status = $3`,
		id, proofData, string(domain.ParticipantStatusPending),
	)
	if err != nil {
		return fmt.Errorf("set proof: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.participantTransitionError(ctx, id)
	}
	return nil
}

func (s *Postgres) SetParticipantStatus(ctx context.Context, id int64, from, to domain.ParticipantStatus, notes string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE participants
		SET status = $3, verification_notes = $4, updated_at = now()
		WHERE id = $1 AND status = $2`,
		id, string(from), string(to), notes,
	)
	if err != nil {
		return fmt.Errorf("set participant status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.participantTransitionError(ctx, id)
	}
	return nil
}

func (s *Postgres) SetClaimAuthorization(ctx context.Context, id int64, signature string, reward *big.Int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE participants
		SET claim_signature = $2, reward_amount = $3::numeric, updated_at = now()
		WHERE id = $1 AND status = $4 AND claim_signature IS NULL AND claimed_at IS NULL`,
		id, signature, reward.String(), string(domain.ParticipantStatusVerified),
	)
	if err != nil {
		return fmt.Errorf("set claim authorization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.participantTransitionError(ctx, id)
	}
	return nil
}

// ConfirmClaim transitions the participant to CLAIMED and applies the
// owning user's aggregate updates in the same transaction; a crash can
// never leave one side committed without the other. The reward sum uses
// numeric arithmetic in SQL, never floats.
func (s *Postgres) ConfirmClaim(ctx context.Context, id int64, txHash string, reputationDelta int) (*domain.Participant, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE participants
		SET status = $3, claimed_at = now(), settlement_tx_hash = $2, updated_at = now()
		WHERE id = $1 AND claim_signature IS NOT NULL AND claimed_at IS NULL
		RETURNING `+participantColumns,
		id, txHash, string(domain.ParticipantStatusClaimed),
	)
	p, err := scanParticipant(row)
	if errors.Is(err, domain.ErrParticipantNotFound) {
		return nil, s.participantTransitionError(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE users
		SET total_tasks_completed = total_tasks_completed + 1,
		    reputation = reputation + $2,
		    total_rewards_earned = total_rewards_earned + $3::numeric,
		    updated_at = now()
		WHERE id = $1`,
		p.UserID, reputationDelta, p.RewardAmount.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("update user aggregates: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO reward_transactions (user_id, task_id, participant_id, amount, tx_hash)
		VALUES ($1, $2, $3, $4::numeric, $5)`,
		p.UserID, p.TaskID, p.ID, p.RewardAmount.String(), txHash,
	)
	if err != nil {
		return nil, fmt.Errorf("create reward transaction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return p, nil
}

func (s *Postgres) participantTransitionError(ctx context.Context, id int64) error {
	if _, err := s.GetParticipant(ctx, id); err != nil {
		return err
	}
	return domain.ErrInvalidState
}

func scanParticipant(row pgx.Row) (*domain.Participant, error) {
	var (
		p         domain.Participant
		status    string
		reward    *string
		signature *string
	)
	err := row.Scan(
		&p.ID, &p.TaskID, &p.UserID, &status, &p.ProofSubmitted, &p.ProofData,
		&p.VerificationNotes, &reward, &signature, &p.ClaimedAt,
		&p.SettlementTxHash, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrParticipantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan participant: %w", err)
	}

	p.Status = domain.ParticipantStatus(status)
	if reward != nil {
		if p.RewardAmount, err = parseNumeric(*reward); err != nil {
			return nil, err
		}
	}
	if signature != nil {
		p.ClaimSignature = *signature
	}
	return &p, nil
}
