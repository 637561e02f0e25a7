package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/studyhall/backend/core/subscription"
)

const subscriptionColumns = `id, merchant_id, plan, max_halls, amount, status, starts_at, ends_at, created_at, updated_at`

type subscriptionRow struct {
	ID         string    `db:"id"`
	MerchantID string    `db:"merchant_id"`
	Plan       string    `db:"plan"`
	MaxHalls   int       `db:"max_halls"`
	Amount     int64     `db:"amount"`
	Status     string    `db:"status"`
	StartsAt   time.Time `db:"starts_at"`
	EndsAt     time.Time `db:"ends_at"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r subscriptionRow) toSubscription() subscription.Subscription {
	return subscription.Subscription{
		ID:         r.ID,
		MerchantID: r.MerchantID,
		Plan:       r.Plan,
		MaxHalls:   r.MaxHalls,
		Amount:     r.Amount,
		Status:     r.Status,
		StartsAt:   r.StartsAt.UTC(),
		EndsAt:     r.EndsAt.UTC(),
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
}

func toSubscriptionRow(s subscription.Subscription) subscriptionRow {
	return subscriptionRow(s)
}

type subscriptionRepository struct {
	db *sqlx.DB
}

func NewSubscriptionRepository(db *sqlx.DB) subscription.Repository {
	return &subscriptionRepository{db: db}
}

func (repo *subscriptionRepository) CreateSubscription(ctx context.Context, sub subscription.Subscription) (subscription.Subscription, error) {
	sub.ID = uuid.New().String()
	q := `INSERT INTO merchant_subscriptions (` + subscriptionColumns + `) VALUES (:id, :merchant_id, :plan, :max_halls,
		:amount, :status, :starts_at, :ends_at, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, toSubscriptionRow(sub)); err != nil {
		return subscription.Subscription{}, errors.Wrap(err, "inserting subscription")
	}
	return sub, nil
}

func (repo *subscriptionRepository) QuerySubscriptions(ctx context.Context, filter subscription.QueryFilter) ([]subscription.Subscription, error) {
	var w where
	if filter.MerchantID != "" {
		if !isUUID(filter.MerchantID) {
			return []subscription.Subscription{}, nil
		}
		w.add("merchant_id = ?", filter.MerchantID)
	}
	if len(filter.Statuses) > 0 {
		w.add("status = ANY(?)", pq.Array(filter.Statuses))
	}

	var rows []subscriptionRow
	q := `SELECT ` + subscriptionColumns + ` FROM merchant_subscriptions` + w.String() + ` ORDER BY starts_at DESC`
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying subscriptions")
	}
	subs := make([]subscription.Subscription, 0, len(rows))
	for _, r := range rows {
		subs = append(subs, r.toSubscription())
	}
	return subs, nil
}

func (repo *subscriptionRepository) GetSubscription(ctx context.Context, id string) (subscription.Subscription, error) {
	if !isUUID(id) {
		return subscription.Subscription{}, subscription.ErrNotFound
	}
	var row subscriptionRow
	if err := repo.db.GetContext(ctx, &row, `SELECT `+subscriptionColumns+` FROM merchant_subscriptions WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return subscription.Subscription{}, subscription.ErrNotFound
		}
		return subscription.Subscription{}, errors.Wrap(err, "getting subscription")
	}
	return row.toSubscription(), nil
}

func (repo *subscriptionRepository) UpdateSubscription(ctx context.Context, sub subscription.Subscription) (subscription.Subscription, error) {
	q := `UPDATE merchant_subscriptions SET plan = :plan, max_halls = :max_halls, amount = :amount, status = :status,
		starts_at = :starts_at, ends_at = :ends_at, updated_at = :updated_at WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, toSubscriptionRow(sub))
	if err != nil {
		return subscription.Subscription{}, errors.Wrap(err, "updating subscription")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return subscription.Subscription{}, subscription.ErrNotFound
	}
	return sub, nil
}

func (repo *subscriptionRepository) ExpireSubscriptions(ctx context.Context, now time.Time) (int, error) {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE merchant_subscriptions SET status = $1, updated_at = $2 WHERE status = $3 AND ends_at <= $2`,
		subscription.StatusExpired, now, subscription.StatusActive)
	if err != nil {
		return 0, errors.Wrap(err, "expiring subscriptions")
	}
	n, err := res.RowsAffected()
	return int(n), err
}
