package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhall/backend/core"
	"github.com/studyhall/backend/core/audit"
	"github.com/studyhall/backend/core/user"
	inmemdb "github.com/studyhall/backend/storage/database/inmem"
	"github.com/studyhall/backend/tests"
)

func TestService(t *testing.T) {
	ctx := context.Background()
	events := new(testutil.Publisher)
	logger := new(testutil.Logger)
	svc := audit.NewService(inmemdb.NewAuditRepository(inmemdb.Open()), events, logger)

	merchant := user.User{ID: "m1", Role: user.RoleMerchant}
	admin := user.User{ID: "a1", Role: user.RoleAdmin}

	svc.Record(ctx, merchant, "10.0.0.1", "study_hall.create", audit.EntityStudyHall, "h1", map[string]string{"name": "Quiet Corner"})
	svc.Record(ctx, merchant, "10.0.0.1", "booking.confirm", audit.EntityBooking, "b1", nil)
	svc.Record(ctx, admin, "10.0.0.2", "booking.cancel", audit.EntityBooking, "b1", struct {
		Reason string `json:"reason"`
	}{"no show"})
	svc.Record(ctx, admin, "10.0.0.2", "user.update", audit.EntityUser, "u1", func() {}) // details cannot be marshalled

	assert.Equal(t, []string{"audit.study_hall.create", "audit.booking.confirm", "audit.booking.cancel", "audit.user.update"}, events.Keys())
	assert.Empty(t, logger.Errors())

	actions := func(filter audit.QueryFilter) []string {
		entries, err := svc.Query(ctx, filter)
		require.NoError(t, err)
		out := make([]string, 0, len(entries))
		for _, e := range entries {
			out = append(out, e.Action)
		}
		return out
	}

	assert.Equal(t, []string{"user.update", "booking.cancel", "booking.confirm", "study_hall.create"}, actions(audit.QueryFilter{}))
	assert.Equal(t, []string{"booking.cancel", "booking.confirm"}, actions(audit.QueryFilter{Entity: audit.EntityBooking, EntityID: "b1"}))
	assert.Equal(t, []string{"booking.confirm", "study_hall.create"}, actions(audit.QueryFilter{ActorID: merchant.ID}))
	assert.Equal(t, []string{"booking.cancel"}, actions(audit.QueryFilter{Page: core.Page{Limit: 1, Offset: 1}}))
	assert.Empty(t, actions(audit.QueryFilter{From: time.Now().Add(time.Hour)}))

	entries, err := svc.Query(ctx, audit.QueryFilter{Action: "booking.cancel"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, admin.ID, e.ActorID)
	assert.Equal(t, user.RoleAdmin, e.ActorRole)
	assert.Equal(t, "10.0.0.2", e.IP)
	assert.JSONEq(t, `{"reason":"no show"}`, string(e.Details))

	entries, err = svc.Query(ctx, audit.QueryFilter{Action: "user.update"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].Details)

	entries, err = svc.Query(ctx, audit.QueryFilter{Action: "booking.confirm"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].Details)
}
