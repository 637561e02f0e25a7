package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/studyhall/backend/core/notification"
)

type tokenRepository struct {
	db *sqlx.DB
}

func NewTokenRepository(db *sqlx.DB) notification.Repository {
	return &tokenRepository{db: db}
}

func (repo *tokenRepository) SaveToken(ctx context.Context, t notification.Token) (notification.Token, error) {
	q := `INSERT INTO user_notification_tokens (token, user_id, platform, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (token) DO UPDATE SET user_id = EXCLUDED.user_id, platform = EXCLUDED.platform,
			updated_at = EXCLUDED.updated_at
		RETURNING token, user_id, platform, created_at, updated_at`
	var saved notification.Token
	row := repo.db.QueryRowxContext(ctx, q, t.Token, t.UserID, t.Platform, t.CreatedAt, t.UpdatedAt)
	if err := row.Scan(&saved.Token, &saved.UserID, &saved.Platform, &saved.CreatedAt, &saved.UpdatedAt); err != nil {
		return notification.Token{}, errors.Wrap(err, "saving token")
	}
	saved.CreatedAt = saved.CreatedAt.UTC()
	saved.UpdatedAt = saved.UpdatedAt.UTC()
	return saved, nil
}

func (repo *tokenRepository) DeleteTokens(ctx context.Context, tokens ...string) error {
	if len(tokens) == 0 {
		return nil
	}
	if _, err := repo.db.ExecContext(ctx, `DELETE FROM user_notification_tokens WHERE token = ANY($1)`, pq.Array(tokens)); err != nil {
		return errors.Wrap(err, "deleting tokens")
	}
	return nil
}

func (repo *tokenRepository) ListTokens(ctx context.Context, userID string) ([]notification.Token, error) {
	tokens := make([]notification.Token, 0)
	if !isUUID(userID) {
		return tokens, nil
	}
	rows, err := repo.db.QueryxContext(ctx,
		`SELECT token, user_id, platform, created_at, updated_at FROM user_notification_tokens
		WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "listing tokens")
	}
	//goland:noinspection GoUnhandledErrorResult
	defer rows.Close()

	for rows.Next() {
		var t notification.Token
		if err = rows.Scan(&t.Token, &t.UserID, &t.Platform, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "scanning token")
		}
		tokens = append(tokens, t)
	}
	return tokens, errors.Wrap(rows.Err(), "listing tokens")
}
