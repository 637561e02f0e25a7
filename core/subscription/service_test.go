package subscription_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhall/backend/core"
	"github.com/studyhall/backend/core/subscription"
	"github.com/studyhall/backend/core/user"
	emailsvc "github.com/studyhall/backend/services/email"
	inmemdb "github.com/studyhall/backend/storage/database/inmem"
	"github.com/studyhall/backend/tests"
)

func setup(t *testing.T) (*subscription.Service, user.User, user.User) {
	t.Helper()
	conf := core.NewTestConfig()
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	usrSvc := user.NewService(usrRepo, emailsvc.NewConsoleService(conf, new(testutil.Logger)), conf)
	merchant := testutil.CreateUser(t, usrRepo, "Merchant", "merchant", "merchant@test.test", "", user.RoleMerchant)
	student := testutil.CreateUser(t, usrRepo, "Student", "student", "student@test.test", "", user.RoleStudent)
	return subscription.NewService(inmemdb.NewSubscriptionRepository(db), usrSvc), merchant, student
}

func TestService_Create(t *testing.T) {
	svc, merchant, student := setup(t)
	ctx := context.Background()

	t.Run("plan defaults", func(t *testing.T) {
		before := time.Now().UTC()
		sub, err := svc.Create(ctx, subscription.NewSubscription{MerchantID: merchant.ID, Plan: subscription.PlanStandard})
		require.NoError(t, err)
		assert.NotEmpty(t, sub.ID)
		assert.Equal(t, 3, sub.MaxHalls)
		assert.Equal(t, int64(249900), sub.Amount)
		assert.Equal(t, subscription.StatusActive, sub.Status)
		assert.False(t, sub.StartsAt.Before(before))
		assert.Equal(t, sub.StartsAt.AddDate(0, 1, 0), sub.EndsAt)
	})

	t.Run("overrides", func(t *testing.T) {
		starts := time.Date(2030, 1, 15, 0, 0, 0, 0, time.UTC)
		sub, err := svc.Create(ctx, subscription.NewSubscription{
			MerchantID: merchant.ID, Plan: subscription.PlanBasic, Months: 6, MaxHalls: 4, StartsAt: starts,
		})
		require.NoError(t, err)
		assert.Equal(t, 4, sub.MaxHalls)
		assert.Equal(t, int64(6*99900), sub.Amount)
		assert.Equal(t, starts, sub.StartsAt)
		assert.Equal(t, time.Date(2030, 7, 15, 0, 0, 0, 0, time.UTC), sub.EndsAt)
	})

	t.Run("not a merchant", func(t *testing.T) {
		_, err := svc.Create(ctx, subscription.NewSubscription{MerchantID: student.ID, Plan: subscription.PlanBasic})
		verr, ok := errors.Cause(err).(*core.ValidationError)
		require.True(t, ok, err)
		assert.Equal(t, subscription.ErrNotMerchant, verr.Err)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := svc.Create(ctx, subscription.NewSubscription{MerchantID: "2b1d3a9c-64a2-4f65-9df3-0d5e3c8b7a10", Plan: subscription.PlanBasic})
		_, ok := errors.Cause(err).(*core.ValidationError)
		assert.True(t, ok, err)
	})

	t.Run("invalid plan", func(t *testing.T) {
		_, err := svc.Create(ctx, subscription.NewSubscription{MerchantID: merchant.ID, Plan: "gold"})
		assert.Error(t, err)
	})
}

func TestService_ActiveFor(t *testing.T) {
	svc, merchant, _ := setup(t)
	ctx := context.Background()

	_, err := svc.ActiveFor(ctx, merchant.ID)
	assert.Equal(t, subscription.ErrNoActiveSubscription, errors.Cause(err))

	basic, err := svc.Create(ctx, subscription.NewSubscription{MerchantID: merchant.ID, Plan: subscription.PlanBasic})
	require.NoError(t, err)
	premium, err := svc.Create(ctx, subscription.NewSubscription{MerchantID: merchant.ID, Plan: subscription.PlanPremium})
	require.NoError(t, err)
	_, err = svc.Create(ctx, subscription.NewSubscription{
		MerchantID: merchant.ID, Plan: subscription.PlanPremium, MaxHalls: 50, StartsAt: time.Now().AddDate(0, 1, 0),
	})
	require.NoError(t, err)

	active, err := svc.ActiveFor(ctx, merchant.ID)
	require.NoError(t, err)
	assert.Equal(t, premium.ID, active.ID)

	_, err = svc.Cancel(ctx, premium.ID)
	require.NoError(t, err)
	active, err = svc.ActiveFor(ctx, merchant.ID)
	require.NoError(t, err)
	assert.Equal(t, basic.ID, active.ID)
}

func TestService_Cancel(t *testing.T) {
	svc, merchant, _ := setup(t)
	ctx := context.Background()

	sub, err := svc.Create(ctx, subscription.NewSubscription{MerchantID: merchant.ID, Plan: subscription.PlanBasic})
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCancelled, cancelled.Status)

	_, err = svc.Cancel(ctx, sub.ID)
	assert.Equal(t, subscription.ErrAlreadyClosed, errors.Cause(err))

	_, err = svc.Cancel(ctx, "2b1d3a9c-64a2-4f65-9df3-0d5e3c8b7a10")
	assert.Equal(t, subscription.ErrNotFound, errors.Cause(err))
}

func TestService_ExpireEnded(t *testing.T) {
	svc, merchant, student := setup(t)
	ctx := context.Background()

	ended, err := svc.Create(ctx, subscription.NewSubscription{
		MerchantID: merchant.ID, Plan: subscription.PlanBasic, StartsAt: time.Now().AddDate(0, -2, 0),
	})
	require.NoError(t, err)
	current, err := svc.Create(ctx, subscription.NewSubscription{MerchantID: merchant.ID, Plan: subscription.PlanBasic})
	require.NoError(t, err)

	n, err := svc.ExpireEnded(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := svc.Get(ctx, ended.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusExpired, got.Status)
	got, err = svc.Get(ctx, current.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, got.Status)

	t.Run("merchants only see theirs", func(t *testing.T) {
		other := merchant
		other.ID = student.ID
		subs, err := svc.Query(ctx, other, subscription.QueryFilter{MerchantID: merchant.ID})
		require.NoError(t, err)
		assert.Empty(t, subs)

		subs, err = svc.Query(ctx, merchant, subscription.QueryFilter{Statuses: []string{subscription.StatusActive}})
		require.NoError(t, err)
		require.Len(t, subs, 1)
		assert.Equal(t, current.ID, subs[0].ID)

		admin := user.User{ID: "admin", Role: user.RoleAdmin}
		subs, err = svc.Query(ctx, admin, subscription.QueryFilter{})
		require.NoError(t, err)
		assert.Len(t, subs, 2)
	})
}
