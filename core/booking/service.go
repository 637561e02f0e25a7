package booking

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/studyhall/backend/core"
	"github.com/studyhall/backend/core/studyhall"
	"github.com/studyhall/backend/core/user"
)

var (
	// errors
	ErrNotFound          = errors.New("booking not found")
	ErrSeatTaken         = errors.New("seat is already booked for these dates")
	ErrInvalidTransition = errors.New("booking status does not allow this action")
	ErrHallInactive      = errors.New("study hall is not accepting bookings")
	ErrPastDate          = errors.New("bookings cannot start in the past")
	ErrDateRange         = errors.New("end date must not be before start date")
	ErrTooLong           = errors.New("bookings cannot exceed one year")
	ErrCheckInNotAllowed = errors.New("check-in is only possible on a day of a confirmed booking")
	ErrInvalidOwner      = errors.New("bookings can only be made for active students")
)

const maxBookingDays = 366

type (
	Repository interface {
		// CreateBooking stores b unless a live booking of the same hall & seat overlaps it (ErrSeatTaken).
		CreateBooking(ctx context.Context, b Booking) (Booking, error)
		GetBooking(ctx context.Context, id string) (Booking, error)
		QueryBookings(ctx context.Context, filter QueryFilter) ([]Booking, error)
		// UpdateStatus moves booking id to status `to` only if its current status is one of from (ErrInvalidTransition).
		UpdateStatus(ctx context.Context, id string, from []string, to string, at time.Time) (Booking, error)
		// SetCheckedIn stamps a confirmed booking's check-in time.
		SetCheckedIn(ctx context.Context, id string, at time.Time) (Booking, error)
		// BookedSeats lists the seats of hallID held by live bookings overlapping [from, to].
		BookedSeats(ctx context.Context, hallID string, from, to time.Time) ([]string, error)
		CountByStatus(ctx context.Context, filter QueryFilter) (Stats, error)
		// CompleteEnded moves confirmed bookings that ended before day to completed.
		CompleteEnded(ctx context.Context, day time.Time) (int, error)
	}

	HallService interface {
		GetByID(ctx context.Context, id string) (studyhall.StudyHall, error)
		Query(ctx context.Context, actor user.User, filter studyhall.QueryFilter) ([]studyhall.StudyHall, error)
	}

	UserGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Service struct {
		repo   Repository
		halls  HallService
		users  UserGetter
		events core.EventPublisher
		logger core.Logger
		now    func() time.Time // mockable
	}
)

func NewService(repo Repository, halls HallService, users UserGetter, events core.EventPublisher, logger core.Logger) *Service {
	return &Service{repo: repo, halls: halls, users: users, events: events, logger: logger, now: time.Now}
}

// Create books a seat. Students book for themselves; staff allowed to create bookings give the student's UserID.
func (svc *Service) Create(ctx context.Context, actor user.User, nb NewBooking) (Booking, error) {
	if err := core.Validate.Struct(nb); err != nil {
		return Booking{}, err
	}

	ownerID := actor.ID
	if !actor.IsStudent() {
		if nb.UserID == "" {
			return Booking{}, core.NewValidationError(ErrInvalidOwner, core.FieldError{Field: "user_id", Error: "this field is required"})
		}
		ownerID = nb.UserID
	}
	owner, err := svc.users.GetByID(ctx, ownerID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return Booking{}, core.NewValidationError(ErrInvalidOwner, core.FieldError{Field: "user_id", Error: ErrInvalidOwner.Error()})
		}
		return Booking{}, err
	}
	if !owner.IsActive || !owner.IsStudent() {
		return Booking{}, core.NewValidationError(ErrInvalidOwner, core.FieldError{Field: "user_id", Error: ErrInvalidOwner.Error()})
	}

	hall, err := svc.halls.GetByID(ctx, nb.StudyHallID)
	if err != nil {
		if errors.Cause(err) == studyhall.ErrNotFound {
			return Booking{}, core.NewValidationError(err, core.FieldError{Field: "study_hall_id", Error: err.Error()})
		}
		return Booking{}, err
	}
	if !hall.IsActive {
		return Booking{}, ErrHallInactive
	}
	row, n, err := studyhall.ParseSeat(nb.Seat)
	if err != nil || !hall.HasSeat(nb.Seat) {
		return Booking{}, core.NewValidationError(studyhall.ErrInvalidSeat, core.FieldError{Field: "seat", Error: studyhall.ErrInvalidSeat.Error()})
	}

	start, end, err := svc.parseRange(nb.StartDate, nb.EndDate)
	if err != nil {
		return Booking{}, err
	}

	now := svc.now().UTC()
	b, err := svc.repo.CreateBooking(ctx, Booking{
		UserID:      owner.ID,
		StudyHallID: hall.ID,
		Seat:        studyhall.SeatLabel(row, n),
		StartDate:   start,
		EndDate:     end,
		Plan:        nb.Plan,
		Amount:      Price(nb.Plan, daysBetween(start, end), hall.PricePerDay, hall.PricePerMonth),
		Status:      StatusPending,
		CreatedBy:   actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return Booking{}, err
	}
	svc.publish(ctx, "booking.created", b, actor.ID)
	return b, nil
}

func (svc *Service) parseRange(startStr, endStr string) (time.Time, time.Time, error) {
	start, err := ParseDate(startStr)
	if err != nil {
		return time.Time{}, time.Time{}, core.NewValidationError(err, core.FieldError{Field: "start_date", Error: "invalid date"})
	}
	end, err := ParseDate(endStr)
	if err != nil {
		return time.Time{}, time.Time{}, core.NewValidationError(err, core.FieldError{Field: "end_date", Error: "invalid date"})
	}
	if start.Before(Today(svc.now())) {
		return time.Time{}, time.Time{}, core.NewValidationError(ErrPastDate, core.FieldError{Field: "start_date", Error: ErrPastDate.Error()})
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, core.NewValidationError(ErrDateRange, core.FieldError{Field: "end_date", Error: ErrDateRange.Error()})
	}
	if daysBetween(start, end) > maxBookingDays {
		return time.Time{}, time.Time{}, core.NewValidationError(ErrTooLong, core.FieldError{Field: "end_date", Error: ErrTooLong.Error()})
	}
	return start, end, nil
}

// CanView reports whether actor may see b, hall being b's study hall.
func CanView(actor user.User, b Booking, hall studyhall.StudyHall) bool {
	switch actor.Role {
	case user.RoleAdmin, user.RoleTelecaller:
		return true
	case user.RoleMerchant:
		return hall.MerchantID == actor.ID
	case user.RoleIncharge:
		return hall.InchargeID == actor.ID
	case user.RoleStudent:
		return b.UserID == actor.ID
	}
	return false
}

// CanManage reports whether actor may confirm b or check its student in.
func CanManage(actor user.User, hall studyhall.StudyHall) bool {
	return actor.IsAdmin() || (actor.IsMerchant() && hall.MerchantID == actor.ID) || (actor.IsIncharge() && hall.InchargeID == actor.ID)
}

// GetByID returns a booking without any access check.
func (svc *Service) GetByID(ctx context.Context, id string) (Booking, error) {
	return svc.repo.GetBooking(ctx, id)
}

func (svc *Service) get(ctx context.Context, actor user.User, id string) (Booking, studyhall.StudyHall, error) {
	b, err := svc.repo.GetBooking(ctx, id)
	if err != nil {
		return Booking{}, studyhall.StudyHall{}, err
	}
	hall, err := svc.halls.GetByID(ctx, b.StudyHallID)
	if err != nil {
		return Booking{}, studyhall.StudyHall{}, errors.Wrap(err, "getting booking's hall")
	}
	if !CanView(actor, b, hall) {
		return Booking{}, studyhall.StudyHall{}, ErrNotFound
	}
	return b, hall, nil
}

func (svc *Service) Get(ctx context.Context, actor user.User, id string) (Booking, error) {
	b, _, err := svc.get(ctx, actor, id)
	return b, err
}

// scope narrows filter down to what actor may see. ok is false when actor can see nothing.
func (svc *Service) scope(ctx context.Context, actor user.User, filter QueryFilter) (QueryFilter, bool, error) {
	switch actor.Role {
	case user.RoleAdmin, user.RoleTelecaller:
		return filter, true, nil
	case user.RoleStudent:
		filter.UserID = actor.ID
		return filter, true, nil
	case user.RoleMerchant, user.RoleIncharge:
		halls, err := svc.halls.Query(ctx, actor, studyhall.QueryFilter{})
		if err != nil {
			return filter, false, errors.Wrap(err, "listing actor's halls")
		}
		filter.HallIDs = make([]string, 0, len(halls))
		for _, h := range halls {
			filter.HallIDs = append(filter.HallIDs, h.ID)
		}
		return filter, len(halls) > 0, nil
	}
	return filter, false, nil
}

func (svc *Service) Query(ctx context.Context, actor user.User, filter QueryFilter) ([]Booking, error) {
	filter, ok, err := svc.scope(ctx, actor, filter)
	if err != nil || !ok {
		return []Booking{}, err
	}
	return svc.repo.QueryBookings(ctx, filter)
}

// Stats counts the bookings visible to actor by status.
func (svc *Service) Stats(ctx context.Context, actor user.User) (Stats, error) {
	filter, ok, err := svc.scope(ctx, actor, QueryFilter{})
	if err != nil || !ok {
		return Stats{}, err
	}
	return svc.repo.CountByStatus(ctx, filter)
}

// Cancel cancels a live booking. Students may only cancel their own pending bookings.
func (svc *Service) Cancel(ctx context.Context, actor user.User, id string) (Booking, error) {
	b, hall, err := svc.get(ctx, actor, id)
	if err != nil {
		return Booking{}, err
	}
	switch {
	case actor.IsStudent() || actor.IsTelecaller():
		if b.Status != StatusPending {
			return Booking{}, ErrInvalidTransition
		}
	case !CanManage(actor, hall):
		return Booking{}, core.ErrForbidden
	}
	return svc.transition(ctx, b.ID, StatusCancelled, actor.ID)
}

// Confirm confirms a pending booking by hand (e.g. paid at the desk).
func (svc *Service) Confirm(ctx context.Context, actor user.User, id string) (Booking, error) {
	_, hall, err := svc.get(ctx, actor, id)
	if err != nil {
		return Booking{}, err
	}
	if !actor.IsAdmin() && !(actor.IsMerchant() && hall.MerchantID == actor.ID) {
		return Booking{}, core.ErrForbidden
	}
	return svc.transition(ctx, id, StatusConfirmed, actor.ID)
}

// MarkConfirmed confirms a pending booking after its payment went through.
func (svc *Service) MarkConfirmed(ctx context.Context, id string) (Booking, error) {
	return svc.move(ctx, id, []string{StatusPending}, StatusConfirmed, "")
}

// MarkCancelled cancels a pending booking after its payment failed.
// A booking confirmed meanwhile (e.g. paid at the desk) is left alone.
func (svc *Service) MarkCancelled(ctx context.Context, id string) (Booking, error) {
	return svc.move(ctx, id, []string{StatusPending}, StatusCancelled, "")
}

func (svc *Service) transition(ctx context.Context, id, to, actorID string) (Booking, error) {
	return svc.move(ctx, id, SourcesOf(to), to, actorID)
}

func (svc *Service) move(ctx context.Context, id string, from []string, to, actorID string) (Booking, error) {
	b, err := svc.repo.UpdateStatus(ctx, id, from, to, svc.now().UTC())
	if err != nil {
		return Booking{}, err
	}
	svc.publish(ctx, "booking."+to, b, actorID)
	return b, nil
}

// CheckIn records the arrival of the student on a day covered by a confirmed booking.
func (svc *Service) CheckIn(ctx context.Context, actor user.User, id string) (Booking, error) {
	b, hall, err := svc.get(ctx, actor, id)
	if err != nil {
		return Booking{}, err
	}
	if !CanManage(actor, hall) {
		return Booking{}, core.ErrForbidden
	}
	now := svc.now().UTC()
	today := Today(now)
	if b.Status != StatusConfirmed || today.Before(b.StartDate) || today.After(b.EndDate) {
		return Booking{}, ErrCheckInNotAllowed
	}
	b, err = svc.repo.SetCheckedIn(ctx, b.ID, now)
	if err != nil {
		return Booking{}, err
	}
	svc.publish(ctx, "booking.checked_in", b, actor.ID)
	return b, nil
}

// BookedSeats lists the seats of a hall held over [from, to].
func (svc *Service) BookedSeats(ctx context.Context, hallID string, from, to time.Time) ([]string, error) {
	return svc.repo.BookedSeats(ctx, hallID, from, to)
}

// CompleteEnded closes the confirmed bookings whose last day has passed.
func (svc *Service) CompleteEnded(ctx context.Context) (int, error) {
	return svc.repo.CompleteEnded(ctx, Today(svc.now()))
}

func (svc *Service) publish(ctx context.Context, key string, b Booking, actorID string) {
	if err := svc.events.Publish(ctx, core.NewEvent(key, b.ID, actorID, b)); err != nil {
		svc.logger.Error("booking: publishing "+key, err)
	}
}
