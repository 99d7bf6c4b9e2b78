package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"icebreaker-bingo/internal/domain"
)

// UserDirectory resolves participant identities from the users table.
type UserDirectory struct {
	pool *pgxpool.Pool
}

func NewUserDirectory(pool *pgxpool.Pool) *UserDirectory {
	return &UserDirectory{pool: pool}
}

func (d *UserDirectory) GetUser(ctx context.Context, userID string) (domain.User, error) {
	var user domain.User
	err := d.pool.QueryRow(ctx,
		`SELECT id, name, email, COALESCE(avatar_url, '') FROM users WHERE id=$1`, userID,
	).Scan(&user.ID, &user.Name, &user.Email, &user.AvatarURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}
