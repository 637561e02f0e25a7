package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/studyhall/backend/core/subscription"
)

type subscriptionRepository struct {
	db *DB
}

func NewSubscriptionRepository(db *DB) subscription.Repository {
	return &subscriptionRepository{db: db}
}

func (repo *subscriptionRepository) CreateSubscription(_ context.Context, sub subscription.Subscription) (subscription.Subscription, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	sub.ID = uuid.New().String()
	repo.db.subscriptions[sub.ID] = &sub
	return sub, nil
}

func (repo *subscriptionRepository) QuerySubscriptions(_ context.Context, filter subscription.QueryFilter) ([]subscription.Subscription, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	subs := make([]subscription.Subscription, 0)
	for _, s := range repo.db.subscriptions {
		if filter.MerchantID != "" && s.MerchantID != filter.MerchantID {
			continue
		}
		if len(filter.Statuses) > 0 && !contains(filter.Statuses, s.Status) {
			continue
		}
		subs = append(subs, *s)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].StartsAt.After(subs[j].StartsAt) })
	return subs, nil
}

func (repo *subscriptionRepository) GetSubscription(_ context.Context, id string) (subscription.Subscription, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if s, ok := repo.db.subscriptions[id]; ok {
		return *s, nil
	}
	return subscription.Subscription{}, subscription.ErrNotFound
}

func (repo *subscriptionRepository) UpdateSubscription(_ context.Context, sub subscription.Subscription) (subscription.Subscription, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.subscriptions[sub.ID]; !ok {
		return subscription.Subscription{}, subscription.ErrNotFound
	}
	repo.db.subscriptions[sub.ID] = &sub
	return sub, nil
}

func (repo *subscriptionRepository) ExpireSubscriptions(_ context.Context, now time.Time) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var n int
	for _, s := range repo.db.subscriptions {
		if s.Status == subscription.StatusActive && !s.EndsAt.After(now) {
			s.Status = subscription.StatusExpired
			s.UpdatedAt = now
			n++
		}
	}
	return n, nil
}
