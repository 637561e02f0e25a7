package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/studyhall/backend/core/booking"
	"github.com/studyhall/backend/core/studyhall"
)

const bookingColumns = `id, user_id, study_hall_id, seat, start_date, end_date, plan, amount, status, checked_in_at,
	created_by, created_at, updated_at`

type bookingRow struct {
	ID          string         `db:"id"`
	UserID      string         `db:"user_id"`
	StudyHallID string         `db:"study_hall_id"`
	Seat        string         `db:"seat"`
	StartDate   time.Time      `db:"start_date"`
	EndDate     time.Time      `db:"end_date"`
	Plan        string         `db:"plan"`
	Amount      int64          `db:"amount"`
	Status      string         `db:"status"`
	CheckedInAt sql.NullTime   `db:"checked_in_at"`
	CreatedBy   sql.NullString `db:"created_by"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func toBookingRow(b booking.Booking) bookingRow {
	return bookingRow{
		ID:          b.ID,
		UserID:      b.UserID,
		StudyHallID: b.StudyHallID,
		Seat:        b.Seat,
		StartDate:   b.StartDate,
		EndDate:     b.EndDate,
		Plan:        b.Plan,
		Amount:      b.Amount,
		Status:      b.Status,
		CheckedInAt: nullTimePtr(b.CheckedInAt),
		CreatedBy:   nullString(b.CreatedBy),
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
}

func (r bookingRow) toBooking() booking.Booking {
	return booking.Booking{
		ID:          r.ID,
		UserID:      r.UserID,
		StudyHallID: r.StudyHallID,
		Seat:        r.Seat,
		StartDate:   booking.Today(r.StartDate),
		EndDate:     booking.Today(r.EndDate),
		Plan:        r.Plan,
		Amount:      r.Amount,
		Status:      r.Status,
		CheckedInAt: timePtr(r.CheckedInAt),
		CreatedBy:   r.CreatedBy.String,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return nullTime(*t)
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

type bookingRepository struct {
	db *sqlx.DB
}

func NewBookingRepository(db *sqlx.DB) booking.Repository {
	return &bookingRepository{db: db}
}

// CreateBooking locks the hall row so that concurrent bookings of a hall are serialized,
// then checks the seat is free before inserting.
func (repo *bookingRepository) CreateBooking(ctx context.Context, b booking.Booking) (booking.Booking, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return booking.Booking{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	var hallID string
	if err = tx.GetContext(ctx, &hallID, `SELECT id FROM study_halls WHERE id = $1 FOR UPDATE`, b.StudyHallID); err != nil {
		if err == sql.ErrNoRows {
			return booking.Booking{}, studyhall.ErrNotFound
		}
		return booking.Booking{}, errors.Wrap(err, "locking study hall")
	}

	var taken bool
	err = tx.GetContext(ctx, &taken, `SELECT EXISTS (
		SELECT 1 FROM bookings
		WHERE study_hall_id = $1 AND seat = $2 AND status = ANY($3) AND start_date <= $5 AND end_date >= $4
	)`, b.StudyHallID, b.Seat, pq.Array(booking.LiveStatuses), b.StartDate, b.EndDate)
	if err != nil {
		return booking.Booking{}, errors.Wrap(err, "checking seat")
	}
	if taken {
		return booking.Booking{}, booking.ErrSeatTaken
	}

	b.ID = uuid.New().String()
	q := `INSERT INTO bookings (` + bookingColumns + `) VALUES (:id, :user_id, :study_hall_id, :seat, :start_date,
		:end_date, :plan, :amount, :status, :checked_in_at, :created_by, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, q, toBookingRow(b)); err != nil {
		return booking.Booking{}, errors.Wrap(err, "inserting booking")
	}
	if err = tx.Commit(); err != nil {
		return booking.Booking{}, errors.Wrap(err, "committing booking")
	}
	return b, nil
}

func (repo *bookingRepository) GetBooking(ctx context.Context, id string) (booking.Booking, error) {
	if !isUUID(id) {
		return booking.Booking{}, booking.ErrNotFound
	}
	var row bookingRow
	if err := repo.db.GetContext(ctx, &row, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return booking.Booking{}, booking.ErrNotFound
		}
		return booking.Booking{}, errors.Wrap(err, "getting booking")
	}
	return row.toBooking(), nil
}

// bookingWhere returns false when filter cannot match anything.
func bookingWhere(filter booking.QueryFilter) (where, bool) {
	var w where
	if filter.UserID != "" {
		if !isUUID(filter.UserID) {
			return w, false
		}
		w.add("user_id = ?", filter.UserID)
	}
	if filter.StudyHallID != "" {
		if !isUUID(filter.StudyHallID) {
			return w, false
		}
		w.add("study_hall_id = ?", filter.StudyHallID)
	}
	if filter.HallIDs != nil {
		ids := validUUIDs(filter.HallIDs)
		if len(ids) == 0 {
			return w, false
		}
		w.add("study_hall_id = ANY(?)", pq.Array(ids))
	}
	if len(filter.Statuses) > 0 {
		w.add("status = ANY(?)", pq.Array(filter.Statuses))
	}
	if !filter.From.IsZero() {
		w.add("end_date >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		w.add("start_date <= ?", filter.To)
	}
	return w, true
}

func (repo *bookingRepository) QueryBookings(ctx context.Context, filter booking.QueryFilter) ([]booking.Booking, error) {
	w, ok := bookingWhere(filter)
	if !ok {
		return []booking.Booking{}, nil
	}
	var rows []bookingRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT `+bookingColumns+` FROM bookings`+w.String()+` ORDER BY created_at DESC`, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying bookings")
	}
	bookings := make([]booking.Booking, 0, len(rows))
	for _, r := range rows {
		bookings = append(bookings, r.toBooking())
	}
	return bookings, nil
}

func (repo *bookingRepository) UpdateStatus(ctx context.Context, id string, from []string, to string, at time.Time) (booking.Booking, error) {
	if !isUUID(id) {
		return booking.Booking{}, booking.ErrNotFound
	}
	var row bookingRow
	q := `UPDATE bookings SET status = $1, updated_at = $2 WHERE id = $3 AND status = ANY($4) RETURNING ` + bookingColumns
	if err := repo.db.GetContext(ctx, &row, q, to, at, id, pq.Array(from)); err != nil {
		if err == sql.ErrNoRows {
			// tell a missing booking from a refused transition
			if _, getErr := repo.GetBooking(ctx, id); getErr != nil {
				return booking.Booking{}, getErr
			}
			return booking.Booking{}, booking.ErrInvalidTransition
		}
		return booking.Booking{}, errors.Wrap(err, "updating booking status")
	}
	return row.toBooking(), nil
}

func (repo *bookingRepository) SetCheckedIn(ctx context.Context, id string, at time.Time) (booking.Booking, error) {
	if !isUUID(id) {
		return booking.Booking{}, booking.ErrNotFound
	}
	var row bookingRow
	q := `UPDATE bookings SET checked_in_at = $1, updated_at = $1 WHERE id = $2 AND status = $3 RETURNING ` + bookingColumns
	if err := repo.db.GetContext(ctx, &row, q, at, id, booking.StatusConfirmed); err != nil {
		if err == sql.ErrNoRows {
			return booking.Booking{}, booking.ErrCheckInNotAllowed
		}
		return booking.Booking{}, errors.Wrap(err, "checking in")
	}
	return row.toBooking(), nil
}

func (repo *bookingRepository) BookedSeats(ctx context.Context, hallID string, from, to time.Time) ([]string, error) {
	seats := make([]string, 0)
	if !isUUID(hallID) {
		return seats, nil
	}
	q := `SELECT DISTINCT seat FROM bookings
		WHERE study_hall_id = $1 AND status = ANY($2) AND start_date <= $4 AND end_date >= $3
		ORDER BY seat`
	if err := repo.db.SelectContext(ctx, &seats, q, hallID, pq.Array(booking.LiveStatuses), from, to); err != nil {
		return nil, errors.Wrap(err, "listing booked seats")
	}
	return seats, nil
}

func (repo *bookingRepository) CountByStatus(ctx context.Context, filter booking.QueryFilter) (booking.Stats, error) {
	stats := make(booking.Stats, len(booking.AllStatuses))
	for _, s := range booking.AllStatuses {
		stats[s] = 0
	}
	w, ok := bookingWhere(filter)
	if !ok {
		return stats, nil
	}

	var counts []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	if err := repo.db.SelectContext(ctx, &counts, `SELECT status, COUNT(*) AS count FROM bookings`+w.String()+` GROUP BY status`, w.args...); err != nil {
		return nil, errors.Wrap(err, "counting bookings")
	}
	for _, c := range counts {
		stats[c.Status] = c.Count
	}
	return stats, nil
}

func (repo *bookingRepository) CompleteEnded(ctx context.Context, day time.Time) (int, error) {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE bookings SET status = $1, updated_at = NOW() WHERE status = $2 AND end_date < $3`,
		booking.StatusCompleted, booking.StatusConfirmed, day)
	if err != nil {
		return 0, errors.Wrap(err, "completing bookings")
	}
	n, err := res.RowsAffected()
	return int(n), err
}
