package booking

import (
	"time"
)

// Statuses
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

// Plans
const (
	PlanDaily   = "daily"
	PlanMonthly = "monthly"
)

const dateLayout = "2006-01-02"

var (
	AllStatuses = []string{StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted}

	// LiveStatuses hold a seat.
	LiveStatuses = []string{StatusPending, StatusConfirmed}

	transitions = map[string][]string{
		StatusPending:   {StatusConfirmed, StatusCancelled},
		StatusConfirmed: {StatusCancelled, StatusCompleted},
	}
)

// CanTransition reports whether a booking may move from status `from` to `to`.
func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SourcesOf lists the statuses a booking may move to `to` from.
func SourcesOf(to string) []string {
	var from []string
	for _, s := range AllStatuses {
		if CanTransition(s, to) {
			from = append(from, s)
		}
	}
	return from
}

type Booking struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	StudyHallID string     `json:"study_hall_id"`
	Seat        string     `json:"seat"`
	StartDate   time.Time  `json:"start_date"` // UTC midnight
	EndDate     time.Time  `json:"end_date"`   // UTC midnight, inclusive
	Plan        string     `json:"plan"`
	Amount      int64      `json:"amount"` // paise
	Status      string     `json:"status"`
	CheckedInAt *time.Time `json:"checked_in_at,omitempty"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Days is the number of days the booking covers, both ends included.
func (b Booking) Days() int {
	return daysBetween(b.StartDate, b.EndDate)
}

// Overlaps reports whether the booking covers any day of [from, to].
func (b Booking) Overlaps(from, to time.Time) bool {
	return !b.StartDate.After(to) && !b.EndDate.Before(from)
}

func (b Booking) IsLive() bool {
	return b.Status == StatusPending || b.Status == StatusConfirmed
}

type NewBooking struct {
	UserID      string `json:"user_id" validate:"omitempty,uuid"` // staff booking on behalf of a student
	StudyHallID string `json:"study_hall_id" validate:"required,uuid"`
	Seat        string `json:"seat" validate:"required"`
	StartDate   string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate     string `json:"end_date" validate:"required,datetime=2006-01-02"`
	Plan        string `json:"plan" validate:"required,oneof=daily monthly"`
}

type QueryFilter struct {
	UserID      string
	StudyHallID string
	Statuses    []string
	From        time.Time // bookings ending on or after
	To          time.Time // bookings starting on or before

	// set by the service from the caller's role; nil means any hall
	HallIDs []string
}

// Stats counts bookings by status.
type Stats map[string]int

// ParseDate parses a `YYYY-MM-DD` date as UTC midnight.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

// Today is the current UTC date at midnight.
func Today(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours()/24) + 1
}

// Price computes the amount due for a booking of hall prices over days.
// Monthly plans are charged per started 30 days; halls without a monthly price fall back to daily.
func Price(plan string, days int, perDay, perMonth int64) int64 {
	if plan == PlanMonthly && perMonth > 0 {
		months := (days + 29) / 30
		return int64(months) * perMonth
	}
	return int64(days) * perDay
}
