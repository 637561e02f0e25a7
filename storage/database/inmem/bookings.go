package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/studyhall/backend/core/booking"
)

type bookingRepository struct {
	db *DB
}

func NewBookingRepository(db *DB) booking.Repository {
	return &bookingRepository{db: db}
}

func (repo *bookingRepository) CreateBooking(_ context.Context, b booking.Booking) (booking.Booking, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, other := range repo.db.bookings {
		if other.StudyHallID == b.StudyHallID && other.Seat == b.Seat && other.IsLive() && other.Overlaps(b.StartDate, b.EndDate) {
			return booking.Booking{}, booking.ErrSeatTaken
		}
	}
	b.ID = uuid.New().String()
	repo.db.bookings[b.ID] = &b
	return b, nil
}

func (repo *bookingRepository) GetBooking(_ context.Context, id string) (booking.Booking, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if b, ok := repo.db.bookings[id]; ok {
		return *b, nil
	}
	return booking.Booking{}, booking.ErrNotFound
}

func matchBooking(b *booking.Booking, filter booking.QueryFilter) bool {
	if filter.UserID != "" && b.UserID != filter.UserID {
		return false
	}
	if filter.StudyHallID != "" && b.StudyHallID != filter.StudyHallID {
		return false
	}
	if filter.HallIDs != nil && !contains(filter.HallIDs, b.StudyHallID) {
		return false
	}
	if len(filter.Statuses) > 0 && !contains(filter.Statuses, b.Status) {
		return false
	}
	if !filter.From.IsZero() && b.EndDate.Before(filter.From) {
		return false
	}
	if !filter.To.IsZero() && b.StartDate.After(filter.To) {
		return false
	}
	return true
}

func (repo *bookingRepository) QueryBookings(_ context.Context, filter booking.QueryFilter) ([]booking.Booking, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	bookings := make([]booking.Booking, 0)
	for _, b := range repo.db.bookings {
		if matchBooking(b, filter) {
			bookings = append(bookings, *b)
		}
	}
	sort.Slice(bookings, func(i, j int) bool { return bookings[i].CreatedAt.After(bookings[j].CreatedAt) })
	return bookings, nil
}

func (repo *bookingRepository) UpdateStatus(_ context.Context, id string, from []string, to string, at time.Time) (booking.Booking, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	b, ok := repo.db.bookings[id]
	if !ok {
		return booking.Booking{}, booking.ErrNotFound
	}
	if !contains(from, b.Status) {
		return booking.Booking{}, booking.ErrInvalidTransition
	}
	b.Status = to
	b.UpdatedAt = at
	return *b, nil
}

func (repo *bookingRepository) SetCheckedIn(_ context.Context, id string, at time.Time) (booking.Booking, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	b, ok := repo.db.bookings[id]
	if !ok {
		return booking.Booking{}, booking.ErrNotFound
	}
	if b.Status != booking.StatusConfirmed {
		return booking.Booking{}, booking.ErrCheckInNotAllowed
	}
	b.CheckedInAt = &at
	b.UpdatedAt = at
	return *b, nil
}

func (repo *bookingRepository) BookedSeats(_ context.Context, hallID string, from, to time.Time) ([]string, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	seen := make(map[string]bool)
	seats := make([]string, 0)
	for _, b := range repo.db.bookings {
		if b.StudyHallID == hallID && b.IsLive() && b.Overlaps(from, to) && !seen[b.Seat] {
			seen[b.Seat] = true
			seats = append(seats, b.Seat)
		}
	}
	sort.Strings(seats)
	return seats, nil
}

func (repo *bookingRepository) CountByStatus(_ context.Context, filter booking.QueryFilter) (booking.Stats, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	stats := make(booking.Stats, len(booking.AllStatuses))
	for _, s := range booking.AllStatuses {
		stats[s] = 0
	}
	for _, b := range repo.db.bookings {
		if matchBooking(b, filter) {
			stats[b.Status]++
		}
	}
	return stats, nil
}

func (repo *bookingRepository) CompleteEnded(_ context.Context, day time.Time) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var n int
	for _, b := range repo.db.bookings {
		if b.Status == booking.StatusConfirmed && b.EndDate.Before(day) {
			b.Status = booking.StatusCompleted
			b.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}
