package dashboard_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhall/backend/core"
	"github.com/studyhall/backend/core/booking"
	"github.com/studyhall/backend/core/dashboard"
	"github.com/studyhall/backend/core/payment"
	"github.com/studyhall/backend/core/studyhall"
	"github.com/studyhall/backend/core/subscription"
	"github.com/studyhall/backend/core/user"
	emailsvc "github.com/studyhall/backend/services/email"
	inmemdb "github.com/studyhall/backend/storage/database/inmem"
	"github.com/studyhall/backend/tests"
)

func TestService_Stats(t *testing.T) {
	ctx := context.Background()
	conf := core.NewTestConfig()
	conf.Payment.PollInterval = time.Hour
	logger := new(testutil.Logger)
	events := new(testutil.Publisher)
	db := inmemdb.Open()

	usrRepo := inmemdb.NewUserRepository(db)
	usrSvc := user.NewService(usrRepo, emailsvc.NewConsoleService(conf, logger), conf)
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@test.test", "", user.RoleAdmin)
	merchant := testutil.CreateUser(t, usrRepo, "Merchant", "merchant", "merchant@test.test", "", user.RoleMerchant)
	rival := testutil.CreateUser(t, usrRepo, "Rival", "rival", "rival@test.test", "", user.RoleMerchant)
	incharge := testutil.CreateUser(t, usrRepo, "Incharge", "incharge", "incharge@test.test", "", user.RoleIncharge)
	student := testutil.CreateUser(t, usrRepo, "Student", "student", "student@test.test", "", user.RoleStudent)

	hallRepo := inmemdb.NewHallRepository(db)
	hallSvc := studyhall.NewService(hallRepo, subscription.NewService(inmemdb.NewSubscriptionRepository(db), usrSvc), usrSvc, nil)
	bookingSvc := booking.NewService(inmemdb.NewBookingRepository(db), hallSvc, usrSvc, events, logger)
	gateway := testutil.NewGateway()
	paySvc := payment.NewService(inmemdb.NewTransactionRepository(db), gateway, bookingSvc, usrSvc, events, logger, conf)
	t.Cleanup(paySvc.Close)
	svc := dashboard.NewService(bookingSvc, hallSvc, paySvc, usrSvc)

	createHall := func(merchantID, inchargeID string, rows int, active bool) studyhall.StudyHall {
		hall, err := hallRepo.CreateHall(ctx, studyhall.StudyHall{
			MerchantID: merchantID, InchargeID: inchargeID, Name: "Hall", Address: "Road", City: "Pune",
			Rows: rows, SeatsPerRow: 5, PricePerDay: 10000, IsActive: active,
		})
		require.NoError(t, err)
		return hall
	}
	own := createHall(merchant.ID, incharge.ID, 2, true)
	createHall(merchant.ID, "", 4, false)
	other := createHall(rival.ID, "", 1, true)

	today := booking.Today(time.Now())
	book := func(hall studyhall.StudyHall, seat string, from, to int) booking.Booking {
		b, err := bookingSvc.Create(ctx, student, booking.NewBooking{
			StudyHallID: hall.ID,
			Seat:        seat,
			StartDate:   today.AddDate(0, 0, from).Format("2006-01-02"),
			EndDate:     today.AddDate(0, 0, to).Format("2006-01-02"),
			Plan:        booking.PlanDaily,
		})
		require.NoError(t, err)
		return b
	}
	pay := func(b booking.Booking) {
		tx, err := paySvc.CreateOrder(ctx, student, payment.NewOrder{BookingID: b.ID})
		require.NoError(t, err)
		_, err = paySvc.HandleWebhook(ctx, payment.WebhookParams{ClientTxnID: tx.ClientTxnID, Status: payment.GatewaySuccess})
		require.NoError(t, err)
	}

	present := book(own, "R1-1", 0, 1) // 20000
	pay(present)
	_, err := bookingSvc.CheckIn(ctx, incharge, present.ID)
	require.NoError(t, err)
	pay(book(own, "R1-2", 0, 0))   // 10000
	book(own, "R2-1", 3, 4)        // pending
	pay(book(other, "R1-1", 0, 2)) // 30000, rival's

	t.Run("merchant", func(t *testing.T) {
		stats, err := svc.Stats(ctx, merchant)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.Halls)
		assert.Equal(t, 1, stats.ActiveHalls)
		assert.Equal(t, 10, stats.TotalSeats)
		assert.Equal(t, 2, stats.Bookings[booking.StatusConfirmed])
		assert.Equal(t, 1, stats.Bookings[booking.StatusPending])
		assert.Equal(t, 2, stats.OccupiedToday)
		assert.Equal(t, 1, stats.CheckedInToday)
		assert.Equal(t, int64(30000), stats.Revenue)
		assert.Nil(t, stats.UsersByRole)
	})

	t.Run("incharge", func(t *testing.T) {
		stats, err := svc.Stats(ctx, incharge)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Halls)
		assert.Equal(t, 10, stats.TotalSeats)
		assert.Equal(t, int64(30000), stats.Revenue)
	})

	t.Run("admin", func(t *testing.T) {
		stats, err := svc.Stats(ctx, admin)
		require.NoError(t, err)
		assert.Equal(t, 3, stats.Halls)
		assert.Equal(t, 2, stats.ActiveHalls)
		assert.Equal(t, 15, stats.TotalSeats)
		assert.Equal(t, 3, stats.OccupiedToday)
		assert.Equal(t, int64(60000), stats.Revenue)
		assert.Equal(t, map[string]int{
			user.RoleAdmin:      1,
			user.RoleMerchant:   2,
			user.RoleIncharge:   1,
			user.RoleTelecaller: 0,
			user.RoleStudent:    1,
		}, stats.UsersByRole)
	})

	t.Run("merchant without halls", func(t *testing.T) {
		lonely := merchant
		lonely.ID = admin.ID
		stats, err := svc.Stats(ctx, lonely)
		require.NoError(t, err)
		assert.Zero(t, stats.Halls)
		assert.Zero(t, stats.Revenue)
		assert.Zero(t, stats.OccupiedToday)
	})
}
