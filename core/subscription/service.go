package subscription

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/studyhall/backend/core"
	"github.com/studyhall/backend/core/user"
)

var (
	// errors
	ErrNotFound             = errors.New("subscription not found")
	ErrNoActiveSubscription = errors.New("merchant has no active subscription")
	ErrNotMerchant          = errors.New("subscriptions can only be given to merchants")
	ErrAlreadyClosed        = errors.New("subscription is not active")
)

type (
	Repository interface {
		CreateSubscription(ctx context.Context, sub Subscription) (Subscription, error)
		QuerySubscriptions(ctx context.Context, filter QueryFilter) ([]Subscription, error)
		GetSubscription(ctx context.Context, id string) (Subscription, error)
		UpdateSubscription(ctx context.Context, sub Subscription) (Subscription, error)
		// ExpireSubscriptions moves the active subscriptions ended before now to expired.
		ExpireSubscriptions(ctx context.Context, now time.Time) (int, error)
	}

	UserGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Service struct {
		repo  Repository
		users UserGetter
		now   func() time.Time
	}
)

func NewService(repo Repository, users UserGetter) *Service {
	return &Service{repo: repo, users: users, now: time.Now}
}

func (svc *Service) Create(ctx context.Context, ns NewSubscription) (Subscription, error) {
	if err := core.Validate.Struct(ns); err != nil {
		return Subscription{}, err
	}

	merchant, err := svc.users.GetByID(ctx, ns.MerchantID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return Subscription{}, core.NewValidationError(ErrNotMerchant, core.FieldError{Field: "merchant_id", Error: err.Error()})
		}
		return Subscription{}, err
	}
	if !merchant.IsMerchant() {
		return Subscription{}, core.NewValidationError(ErrNotMerchant, core.FieldError{Field: "merchant_id", Error: ErrNotMerchant.Error()})
	}

	defaults := plans[ns.Plan]
	months := ns.Months
	if months == 0 {
		months = 1
	}
	maxHalls := ns.MaxHalls
	if maxHalls == 0 {
		maxHalls = defaults.MaxHalls
	}
	now := svc.now().UTC()
	starts := ns.StartsAt.UTC()
	if ns.StartsAt.IsZero() {
		starts = now
	}

	return svc.repo.CreateSubscription(ctx, Subscription{
		MerchantID: merchant.ID,
		Plan:       ns.Plan,
		MaxHalls:   maxHalls,
		Amount:     defaults.MonthlyPrice * int64(months),
		Status:     StatusActive,
		StartsAt:   starts,
		EndsAt:     starts.AddDate(0, months, 0),
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

// Query lists subscriptions; merchants only ever see their own.
func (svc *Service) Query(ctx context.Context, actor user.User, filter QueryFilter) ([]Subscription, error) {
	if actor.IsMerchant() {
		filter.MerchantID = actor.ID
	}
	return svc.repo.QuerySubscriptions(ctx, filter)
}

func (svc *Service) Get(ctx context.Context, id string) (Subscription, error) {
	return svc.repo.GetSubscription(ctx, id)
}

func (svc *Service) Cancel(ctx context.Context, id string) (Subscription, error) {
	sub, err := svc.repo.GetSubscription(ctx, id)
	if err != nil {
		return Subscription{}, err
	}
	if sub.Status != StatusActive {
		return Subscription{}, ErrAlreadyClosed
	}
	sub.Status = StatusCancelled
	sub.UpdatedAt = svc.now().UTC()
	return svc.repo.UpdateSubscription(ctx, sub)
}

// ActiveFor returns the active subscription of merchantID with the most halls.
func (svc *Service) ActiveFor(ctx context.Context, merchantID string) (Subscription, error) {
	subs, err := svc.repo.QuerySubscriptions(ctx, QueryFilter{MerchantID: merchantID, Statuses: []string{StatusActive}})
	if err != nil {
		return Subscription{}, err
	}
	now := svc.now()
	var (
		best  Subscription
		found bool
	)
	for _, sub := range subs {
		if sub.IsActiveAt(now) && (!found || sub.MaxHalls > best.MaxHalls) {
			best, found = sub, true
		}
	}
	if !found {
		return Subscription{}, ErrNoActiveSubscription
	}
	return best, nil
}

func (svc *Service) ExpireEnded(ctx context.Context) (int, error) {
	return svc.repo.ExpireSubscriptions(ctx, svc.now().UTC())
}
