package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/castquest/castquest-backend/internal/domain"
)

const userColumns = `id, fid, username, wallet_address, total_tasks_completed,
	total_rewards_earned::text, reputation, created_at, updated_at`

func (s *Postgres) CreateUser(ctx context.Context, fid int64, username, walletAddress string) (*domain.User, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (fid, username, wallet_address)
		VALUES ($1, $2, $3)
		RETURNING `+userColumns,
		fid, username, walletAddress,
	)
	u, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return s.GetUserByFID(ctx, fid)
		}
		return nil, err
	}
	return u, nil
}

func (s *Postgres) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (s *Postgres) GetUserByFID(ctx context.Context, fid int64) (*domain.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE fid = $1`, fid)
	return scanUser(row)
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u      domain.User
		earned string
	)
	err := row.Scan(
		&u.ID, &u.FID, &u.Username, &u.WalletAddress, &u.TotalTasksCompleted,
		&earned, &u.Reputation, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}

	if u.TotalRewardsEarned, err = parseNumeric(earned); err != nil {
		return nil, err
	}
	return &u, nil
}
