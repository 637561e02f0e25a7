package booking_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhall/backend/core"
	"github.com/studyhall/backend/core/booking"
	"github.com/studyhall/backend/core/studyhall"
	"github.com/studyhall/backend/core/subscription"
	"github.com/studyhall/backend/core/user"
	emailsvc "github.com/studyhall/backend/services/email"
	inmemdb "github.com/studyhall/backend/storage/database/inmem"
	"github.com/studyhall/backend/tests"
)

type fixture struct {
	svc      *booking.Service
	repo     booking.Repository
	hallRepo studyhall.Repository
	events   *testutil.Publisher

	admin, merchant, incharge, telecaller, student, other user.User
	hall                                                  studyhall.StudyHall
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conf := core.NewTestConfig()
	logger := new(testutil.Logger)
	db := inmemdb.Open()

	usrRepo := inmemdb.NewUserRepository(db)
	usrSvc := user.NewService(usrRepo, emailsvc.NewConsoleService(conf, logger), conf)
	f := fixture{
		repo:       inmemdb.NewBookingRepository(db),
		hallRepo:   inmemdb.NewHallRepository(db),
		events:     new(testutil.Publisher),
		admin:      testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@test.test", "", user.RoleAdmin),
		merchant:   testutil.CreateUser(t, usrRepo, "Merchant", "merchant", "merchant@test.test", "", user.RoleMerchant),
		incharge:   testutil.CreateUser(t, usrRepo, "Incharge", "incharge", "incharge@test.test", "", user.RoleIncharge),
		telecaller: testutil.CreateUser(t, usrRepo, "Telecaller", "telecaller", "telecaller@test.test", "", user.RoleTelecaller),
		student:    testutil.CreateUser(t, usrRepo, "Student", "student", "student@test.test", "", user.RoleStudent),
		other:      testutil.CreateUser(t, usrRepo, "Other", "other", "other@test.test", "", user.RoleStudent),
	}
	hallSvc := studyhall.NewService(f.hallRepo, subscription.NewService(inmemdb.NewSubscriptionRepository(db), usrSvc), usrSvc, nil)
	f.svc = booking.NewService(f.repo, hallSvc, usrSvc, f.events, logger)
	hallSvc.SetOccupancyProvider(f.svc)
	f.hall = f.createHall(t, f.merchant.ID, f.incharge.ID, true)
	return f
}

func (f fixture) createHall(t *testing.T, merchantID, inchargeID string, active bool) studyhall.StudyHall {
	t.Helper()
	now := time.Now().UTC()
	hall, err := f.hallRepo.CreateHall(context.Background(), studyhall.StudyHall{
		MerchantID:    merchantID,
		InchargeID:    inchargeID,
		Name:          "Quiet Corner",
		Address:       "12 MG Road",
		City:          "Pune",
		Rows:          2,
		SeatsPerRow:   5,
		PricePerDay:   15000,
		PricePerMonth: 300000,
		IsActive:      active,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	require.NoError(t, err)
	return hall
}

func day(offset int) string {
	return booking.Today(time.Now()).AddDate(0, 0, offset).Format("2006-01-02")
}

func (f fixture) book(t *testing.T, actor user.User, seat string, from, to int) booking.Booking {
	t.Helper()
	b, err := f.svc.Create(context.Background(), actor, booking.NewBooking{
		StudyHallID: f.hall.ID,
		Seat:        seat,
		StartDate:   day(from),
		EndDate:     day(to),
		Plan:        booking.PlanDaily,
	})
	require.NoError(t, err)
	return b
}

func validationErr(t *testing.T, err error) *core.ValidationError {
	t.Helper()
	verr, ok := errors.Cause(err).(*core.ValidationError)
	require.True(t, ok, "want a validation error, got %v", err)
	return verr
}

func ids(bookings []booking.Booking) []string {
	out := make([]string, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, b.ID)
	}
	return out
}

func TestService_Create(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("student books for themselves", func(t *testing.T) {
		b, err := f.svc.Create(ctx, f.student, booking.NewBooking{
			UserID:      f.other.ID, // ignored for students
			StudyHallID: f.hall.ID,
			Seat:        "r1-2",
			StartDate:   day(0),
			EndDate:     day(2),
			Plan:        booking.PlanDaily,
		})
		require.NoError(t, err)
		assert.NotEmpty(t, b.ID)
		assert.Equal(t, f.student.ID, b.UserID)
		assert.Equal(t, f.student.ID, b.CreatedBy)
		assert.Equal(t, "R1-2", b.Seat)
		assert.Equal(t, int64(45000), b.Amount)
		assert.Equal(t, booking.StatusPending, b.Status)
		assert.Contains(t, f.events.Keys(), "booking.created")
	})

	t.Run("overlapping booking of the same seat", func(t *testing.T) {
		_, err := f.svc.Create(ctx, f.other, booking.NewBooking{
			StudyHallID: f.hall.ID, Seat: "R1-2", StartDate: day(2), EndDate: day(4), Plan: booking.PlanDaily,
		})
		assert.Equal(t, booking.ErrSeatTaken, errors.Cause(err))
	})

	t.Run("telecaller books monthly for a student", func(t *testing.T) {
		b, err := f.svc.Create(ctx, f.telecaller, booking.NewBooking{
			UserID: f.other.ID, StudyHallID: f.hall.ID, Seat: "R2-5", StartDate: day(1), EndDate: day(45), Plan: booking.PlanMonthly,
		})
		require.NoError(t, err)
		assert.Equal(t, f.other.ID, b.UserID)
		assert.Equal(t, f.telecaller.ID, b.CreatedBy)
		assert.Equal(t, int64(600000), b.Amount)
	})

	inactive := f.createHall(t, f.merchant.ID, "", false)

	tests := []struct {
		name      string
		actor     user.User
		nb        booking.NewBooking
		wantErr   error
		wantField string
	}{
		{
			name:      "staff without student",
			actor:     f.telecaller,
			nb:        booking.NewBooking{StudyHallID: f.hall.ID, Seat: "R1-1", StartDate: day(0), EndDate: day(0), Plan: booking.PlanDaily},
			wantField: "user_id",
		},
		{
			name:      "staff booking for a merchant",
			actor:     f.admin,
			nb:        booking.NewBooking{UserID: f.merchant.ID, StudyHallID: f.hall.ID, Seat: "R1-1", StartDate: day(0), EndDate: day(0), Plan: booking.PlanDaily},
			wantField: "user_id",
		},
		{
			name:      "seat outside the layout",
			actor:     f.student,
			nb:        booking.NewBooking{StudyHallID: f.hall.ID, Seat: "R3-1", StartDate: day(0), EndDate: day(0), Plan: booking.PlanDaily},
			wantField: "seat",
		},
		{
			name:      "past start",
			actor:     f.student,
			nb:        booking.NewBooking{StudyHallID: f.hall.ID, Seat: "R1-1", StartDate: day(-1), EndDate: day(1), Plan: booking.PlanDaily},
			wantField: "start_date",
		},
		{
			name:      "end before start",
			actor:     f.student,
			nb:        booking.NewBooking{StudyHallID: f.hall.ID, Seat: "R1-1", StartDate: day(3), EndDate: day(2), Plan: booking.PlanDaily},
			wantField: "end_date",
		},
		{
			name:      "longer than a year",
			actor:     f.student,
			nb:        booking.NewBooking{StudyHallID: f.hall.ID, Seat: "R1-1", StartDate: day(0), EndDate: day(400), Plan: booking.PlanMonthly},
			wantField: "end_date",
		},
		{
			name:    "inactive hall",
			actor:   f.student,
			nb:      booking.NewBooking{StudyHallID: inactive.ID, Seat: "R1-1", StartDate: day(0), EndDate: day(0), Plan: booking.PlanDaily},
			wantErr: booking.ErrHallInactive,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tt.actor, tt.nb)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			verr := validationErr(t, err)
			require.Len(t, verr.Fields, 1)
			assert.Equal(t, tt.wantField, verr.Fields[0].Field)
		})
	}
}

func TestService_lifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	otherMerchant := f.merchant
	otherMerchant.ID = f.other.ID // a merchant of no hall
	otherMerchant.Role = user.RoleMerchant

	b := f.book(t, f.student, "R1-1", 0, 1)

	t.Run("visibility", func(t *testing.T) {
		for _, actor := range []user.User{f.student, f.merchant, f.incharge, f.telecaller, f.admin} {
			got, err := f.svc.Get(ctx, actor, b.ID)
			require.NoError(t, err, actor.Role)
			assert.Equal(t, b.ID, got.ID)
		}
		for _, actor := range []user.User{f.other, otherMerchant} {
			_, err := f.svc.Get(ctx, actor, b.ID)
			assert.Equal(t, booking.ErrNotFound, errors.Cause(err), actor.Username)
		}
	})

	t.Run("check in before confirmation", func(t *testing.T) {
		_, err := f.svc.CheckIn(ctx, f.incharge, b.ID)
		assert.Equal(t, booking.ErrCheckInNotAllowed, errors.Cause(err))
	})

	t.Run("only the hall's merchant or an admin confirms", func(t *testing.T) {
		_, err := f.svc.Confirm(ctx, f.incharge, b.ID)
		assert.Equal(t, core.ErrForbidden, errors.Cause(err))
		_, err = f.svc.Confirm(ctx, f.student, b.ID)
		assert.Equal(t, core.ErrForbidden, errors.Cause(err))

		confirmed, err := f.svc.Confirm(ctx, f.merchant, b.ID)
		require.NoError(t, err)
		assert.Equal(t, booking.StatusConfirmed, confirmed.Status)

		_, err = f.svc.Confirm(ctx, f.admin, b.ID)
		assert.Equal(t, booking.ErrInvalidTransition, errors.Cause(err))
	})

	t.Run("students cannot cancel confirmed bookings", func(t *testing.T) {
		_, err := f.svc.Cancel(ctx, f.student, b.ID)
		assert.Equal(t, booking.ErrInvalidTransition, errors.Cause(err))
	})

	t.Run("check in", func(t *testing.T) {
		_, err := f.svc.CheckIn(ctx, f.student, b.ID)
		assert.Equal(t, core.ErrForbidden, errors.Cause(err))

		checked, err := f.svc.CheckIn(ctx, f.incharge, b.ID)
		require.NoError(t, err)
		require.NotNil(t, checked.CheckedInAt)
		assert.False(t, checked.CheckedInAt.IsZero())
		assert.Equal(t, booking.StatusConfirmed, checked.Status)
	})

	t.Run("check in before the first day", func(t *testing.T) {
		later := f.book(t, f.student, "R1-3", 2, 3)
		_, err := f.svc.MarkConfirmed(ctx, later.ID)
		require.NoError(t, err)
		_, err = f.svc.CheckIn(ctx, f.merchant, later.ID)
		assert.Equal(t, booking.ErrCheckInNotAllowed, errors.Cause(err))
	})

	t.Run("payment outcomes only move pending bookings", func(t *testing.T) {
		desk := f.book(t, f.student, "R1-4", 0, 0)
		_, err := f.svc.Confirm(ctx, f.merchant, desk.ID)
		require.NoError(t, err)

		_, err = f.svc.MarkCancelled(ctx, desk.ID)
		assert.Equal(t, booking.ErrInvalidTransition, errors.Cause(err))
		_, err = f.svc.MarkConfirmed(ctx, desk.ID)
		assert.Equal(t, booking.ErrInvalidTransition, errors.Cause(err))

		got, err := f.svc.GetByID(ctx, desk.ID)
		require.NoError(t, err)
		assert.Equal(t, booking.StatusConfirmed, got.Status)
	})

	t.Run("merchant cancels a confirmed booking & the seat frees up", func(t *testing.T) {
		cancelled, err := f.svc.Cancel(ctx, f.merchant, b.ID)
		require.NoError(t, err)
		assert.Equal(t, booking.StatusCancelled, cancelled.Status)

		_, err = f.svc.Cancel(ctx, f.merchant, b.ID)
		assert.Equal(t, booking.ErrInvalidTransition, errors.Cause(err))

		rebooked := f.book(t, f.other, "R1-1", 0, 1)
		assert.Equal(t, booking.StatusPending, rebooked.Status)
	})

	t.Run("telecaller cancels a pending booking", func(t *testing.T) {
		pending := f.book(t, f.student, "R2-1", 0, 0)
		cancelled, err := f.svc.Cancel(ctx, f.telecaller, pending.ID)
		require.NoError(t, err)
		assert.Equal(t, booking.StatusCancelled, cancelled.Status)
	})

	assert.Subset(t, f.events.Keys(), []string{"booking.created", "booking.confirmed", "booking.checked_in", "booking.cancelled"})
}

func TestService_Query(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	otherHall := f.createHall(t, f.admin.ID, "", true)

	mine := f.book(t, f.student, "R1-1", 0, 0)
	theirs := f.book(t, f.other, "R1-2", 5, 6)
	elsewhere, err := f.svc.Create(ctx, f.student, booking.NewBooking{
		StudyHallID: otherHall.ID, Seat: "R1-1", StartDate: day(0), EndDate: day(0), Plan: booking.PlanDaily,
	})
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, f.other, theirs.ID)
	require.NoError(t, err)

	tests := []struct {
		name   string
		actor  user.User
		filter booking.QueryFilter
		want   []string
	}{
		{name: "student", actor: f.student, want: []string{mine.ID, elsewhere.ID}},
		{name: "other student", actor: f.other, want: []string{theirs.ID}},
		{name: "merchant", actor: f.merchant, want: []string{mine.ID, theirs.ID}},
		{name: "incharge", actor: f.incharge, want: []string{mine.ID, theirs.ID}},
		{name: "admin", actor: f.admin, want: []string{mine.ID, theirs.ID, elsewhere.ID}},
		{name: "by status", actor: f.admin, filter: booking.QueryFilter{Statuses: []string{booking.StatusCancelled}}, want: []string{theirs.ID}},
		{name: "by hall", actor: f.telecaller, filter: booking.QueryFilter{StudyHallID: otherHall.ID}, want: []string{elsewhere.ID}},
		{name: "by dates", actor: f.merchant, filter: booking.QueryFilter{From: booking.Today(time.Now()).AddDate(0, 0, 1)}, want: []string{theirs.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.Query(ctx, tt.actor, tt.filter)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, ids(got))
		})
	}

	t.Run("merchant without halls", func(t *testing.T) {
		lonely := f.merchant
		lonely.ID = f.telecaller.ID
		got, err := f.svc.Query(ctx, lonely, booking.QueryFilter{})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("stats", func(t *testing.T) {
		stats, err := f.svc.Stats(ctx, f.merchant)
		require.NoError(t, err)
		assert.Equal(t, 1, stats[booking.StatusPending])
		assert.Equal(t, 1, stats[booking.StatusCancelled])
		assert.Equal(t, 0, stats[booking.StatusConfirmed])

		stats, err = f.svc.Stats(ctx, f.admin)
		require.NoError(t, err)
		assert.Equal(t, 2, stats[booking.StatusPending])
	})
}

func TestService_housekeeping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	today := booking.Today(time.Now())

	insert := func(seat, status string, from, to int) booking.Booking {
		b, err := f.repo.CreateBooking(ctx, booking.Booking{
			UserID:      f.student.ID,
			StudyHallID: f.hall.ID,
			Seat:        seat,
			StartDate:   today.AddDate(0, 0, from),
			EndDate:     today.AddDate(0, 0, to),
			Plan:        booking.PlanDaily,
			Status:      status,
		})
		require.NoError(t, err)
		return b
	}
	ended := insert("R1-1", booking.StatusConfirmed, -5, -1)
	ongoing := insert("R1-2", booking.StatusConfirmed, -5, 0)
	unpaid := insert("R1-3", booking.StatusPending, -5, -1)

	n, err := f.svc.CompleteEnded(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for id, want := range map[string]string{
		ended.ID:   booking.StatusCompleted,
		ongoing.ID: booking.StatusConfirmed,
		unpaid.ID:  booking.StatusPending,
	} {
		b, err := f.svc.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, b.Status)
	}

	seats, err := f.svc.BookedSeats(ctx, f.hall.ID, today, today)
	require.NoError(t, err)
	assert.Equal(t, []string{"R1-2"}, seats)
}
