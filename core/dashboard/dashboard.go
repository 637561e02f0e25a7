// Package dashboard aggregates the figures shown on the role dashboards.
package dashboard

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/studyhall/backend/core"
	"github.com/studyhall/backend/core/booking"
	"github.com/studyhall/backend/core/payment"
	"github.com/studyhall/backend/core/studyhall"
	"github.com/studyhall/backend/core/user"
)

type Stats struct {
	Bookings       booking.Stats  `json:"bookings"`
	Revenue        int64          `json:"revenue"` // paise, completed payments
	Halls          int            `json:"halls"`
	ActiveHalls    int            `json:"active_halls"`
	TotalSeats     int            `json:"total_seats"`
	OccupiedToday  int            `json:"occupied_today"`
	CheckedInToday int            `json:"checked_in_today"`
	UsersByRole    map[string]int `json:"users_by_role,omitempty"` // admins only
}

type (
	BookingService interface {
		Stats(ctx context.Context, actor user.User) (booking.Stats, error)
		Query(ctx context.Context, actor user.User, filter booking.QueryFilter) ([]booking.Booking, error)
	}

	HallService interface {
		Query(ctx context.Context, actor user.User, filter studyhall.QueryFilter) ([]studyhall.StudyHall, error)
	}

	PaymentService interface {
		Revenue(ctx context.Context, filter payment.QueryFilter) (int64, error)
	}

	UserService interface {
		Query(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error)
	}

	Service struct {
		bookings BookingService
		halls    HallService
		payments PaymentService
		users    UserService
		now      func() time.Time // mockable
	}
)

func NewService(bookings BookingService, halls HallService, payments PaymentService, users UserService) *Service {
	return &Service{bookings: bookings, halls: halls, payments: payments, users: users, now: time.Now}
}

// Stats computes the dashboard figures over what actor may see.
func (svc *Service) Stats(ctx context.Context, actor user.User) (Stats, error) {
	var stats Stats
	var err error

	if stats.Bookings, err = svc.bookings.Stats(ctx, actor); err != nil {
		return Stats{}, errors.Wrap(err, "counting bookings")
	}

	halls, err := svc.halls.Query(ctx, actor, studyhall.QueryFilter{})
	if err != nil {
		return Stats{}, errors.Wrap(err, "listing halls")
	}
	stats.Halls = len(halls)
	for _, h := range halls {
		if h.IsActive {
			stats.ActiveHalls++
			stats.TotalSeats += h.TotalSeats()
		}
	}

	today := booking.Today(svc.now())
	live, err := svc.bookings.Query(ctx, actor, booking.QueryFilter{
		Statuses: []string{booking.StatusConfirmed},
		From:     today,
		To:       today,
	})
	if err != nil {
		return Stats{}, errors.Wrap(err, "listing today's bookings")
	}
	stats.OccupiedToday = len(live)
	for _, b := range live {
		if b.CheckedInAt != nil && booking.Today(*b.CheckedInAt).Equal(today) {
			stats.CheckedInToday++
		}
	}

	revenueFilter := payment.QueryFilter{}
	if !actor.IsAdmin() {
		paid, err := svc.bookings.Query(ctx, actor, booking.QueryFilter{
			Statuses: []string{booking.StatusConfirmed, booking.StatusCompleted},
		})
		if err != nil {
			return Stats{}, errors.Wrap(err, "listing paid bookings")
		}
		revenueFilter.BookingIDs = make([]string, 0, len(paid))
		for _, b := range paid {
			revenueFilter.BookingIDs = append(revenueFilter.BookingIDs, b.ID)
		}
	}
	if revenueFilter.BookingIDs == nil || len(revenueFilter.BookingIDs) > 0 {
		if stats.Revenue, err = svc.payments.Revenue(ctx, revenueFilter); err != nil {
			return Stats{}, errors.Wrap(err, "summing revenue")
		}
	}

	if actor.IsAdmin() {
		users, err := svc.users.Query(ctx, &user.QueryFilter{}, nil)
		if err != nil {
			return Stats{}, errors.Wrap(err, "listing users")
		}
		stats.UsersByRole = make(map[string]int, len(user.AllRoles))
		for _, r := range user.AllRoles {
			stats.UsersByRole[r] = 0
		}
		for _, u := range users {
			stats.UsersByRole[u.Role]++
		}
	}
	return stats, nil
}
