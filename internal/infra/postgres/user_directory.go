package postgres

import (
	"context"
	"fmt"

	"quiz-duel-service/internal/domain"

	"github.com/jackc/pgx/v4/pgxpool"
)

// UserDirectory backs the user collaborator with the users table.
type UserDirectory struct {
	pool *pgxpool.Pool
}

func NewUserDirectory(pool *pgxpool.Pool) *UserDirectory {
	return &UserDirectory{pool: pool}
}

func (d *UserDirectory) Exists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := d.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE username=$1)`, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("lookup user: %w", err)
	}
	return exists, nil
}

func (d *UserDirectory) RecordWin(ctx context.Context, username string) error {
	return d.bump(ctx, `UPDATE users SET wins = wins + 1 WHERE username=$1`, username)
}

func (d *UserDirectory) RecordLoss(ctx context.Context, username string) error {
	return d.bump(ctx, `UPDATE users SET losses = losses + 1 WHERE username=$1`, username)
}

func (d *UserDirectory) bump(ctx context.Context, query, username string) error {
	tag, err := d.pool.Exec(ctx, query, username)
	if err != nil {
		return fmt.Errorf("update stats: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}
