package studyhall

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/studyhall/backend/core"
	"github.com/studyhall/backend/core/security"
	"github.com/studyhall/backend/core/subscription"
	"github.com/studyhall/backend/core/user"
)

var (
	// errors
	ErrNotFound        = errors.New("study hall not found")
	ErrHallLimit       = errors.New("study hall limit of the subscription reached")
	ErrInvalidIncharge = errors.New("incharge must be an active incharge user")
	ErrInvalidMerchant = errors.New("merchant must be an active merchant user")
	ErrLayoutShrink    = errors.New("layout cannot shrink below booked seats")
	ErrInvalidImage    = errors.New("only jpeg, png and webp images are allowed")
)

type (
	Repository interface {
		CreateHall(ctx context.Context, hall StudyHall) (StudyHall, error)
		QueryHalls(ctx context.Context, filter QueryFilter) ([]StudyHall, error)
		GetHall(ctx context.Context, id string) (StudyHall, error)
		UpdateHall(ctx context.Context, hall StudyHall) (StudyHall, error)
		DeleteHall(ctx context.Context, id string) error
		CountHalls(ctx context.Context, merchantID string) (int, error)
	}

	// OccupancyProvider tells which seats are held by live bookings over a date range.
	OccupancyProvider interface {
		BookedSeats(ctx context.Context, hallID string, from, to time.Time) ([]string, error)
	}

	SubscriptionChecker interface {
		ActiveFor(ctx context.Context, merchantID string) (subscription.Subscription, error)
	}

	UserGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Service struct {
		repo      Repository
		subs      SubscriptionChecker
		users     UserGetter
		storage   core.FileStorage
		occupancy OccupancyProvider
	}
)

func NewService(repo Repository, subs SubscriptionChecker, users UserGetter, storage core.FileStorage) *Service {
	return &Service{repo: repo, subs: subs, users: users, storage: storage}
}

// SetOccupancyProvider plugs the booking side in; bookings depend on halls so it cannot be given to NewService.
func (svc *Service) SetOccupancyProvider(op OccupancyProvider) {
	svc.occupancy = op
}

// CanManage reports whether actor may modify hall.
func CanManage(actor user.User, hall StudyHall) bool {
	return actor.IsAdmin() || (actor.IsMerchant() && hall.MerchantID == actor.ID)
}

// CanView reports whether actor may see hall; inactive halls are only visible to their staff.
func CanView(actor user.User, hall StudyHall) bool {
	if hall.IsActive || CanManage(actor, hall) {
		return true
	}
	return actor.IsIncharge() && hall.InchargeID == actor.ID
}

func (svc *Service) Create(ctx context.Context, actor user.User, nh NewStudyHall) (StudyHall, error) {
	nh.Name = security.SanitizeInput(nh.Name)
	nh.Description = core.SanitizeText(nh.Description)
	nh.Address = security.SanitizeInput(nh.Address)
	nh.City = security.SanitizeInput(nh.City)
	nh.Amenities = cleanAmenities(nh.Amenities)
	if err := core.Validate.Struct(nh); err != nil {
		return StudyHall{}, err
	}

	merchantID := actor.ID
	if actor.IsAdmin() && nh.MerchantID != "" {
		merchantID = nh.MerchantID
	} else if !actor.IsMerchant() {
		return StudyHall{}, core.NewValidationError(ErrInvalidMerchant, core.FieldError{Field: "merchant_id", Error: "this field is required"})
	}
	if err := svc.checkUserRole(ctx, merchantID, user.RoleMerchant); err != nil {
		return StudyHall{}, core.NewValidationError(ErrInvalidMerchant, core.FieldError{Field: "merchant_id", Error: ErrInvalidMerchant.Error()})
	}
	if nh.InchargeID != "" {
		if err := svc.checkUserRole(ctx, nh.InchargeID, user.RoleIncharge); err != nil {
			return StudyHall{}, core.NewValidationError(ErrInvalidIncharge, core.FieldError{Field: "incharge_id", Error: ErrInvalidIncharge.Error()})
		}
	}

	if !actor.IsAdmin() {
		sub, err := svc.subs.ActiveFor(ctx, merchantID)
		if err != nil {
			return StudyHall{}, err
		}
		count, err := svc.repo.CountHalls(ctx, merchantID)
		if err != nil {
			return StudyHall{}, errors.Wrap(err, "counting halls")
		}
		if count >= sub.MaxHalls {
			return StudyHall{}, ErrHallLimit
		}
	}

	now := time.Now().UTC()
	return svc.repo.CreateHall(ctx, StudyHall{
		MerchantID:    merchantID,
		InchargeID:    nh.InchargeID,
		Name:          nh.Name,
		Description:   nh.Description,
		Address:       nh.Address,
		City:          nh.City,
		Rows:          nh.Rows,
		SeatsPerRow:   nh.SeatsPerRow,
		PricePerDay:   nh.PricePerDay,
		PricePerMonth: nh.PricePerMonth,
		Amenities:     nh.Amenities,
		ImageURLs:     []string{},
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

// Query lists the halls visible to actor: merchants & incharges get their own halls, others the active ones.
func (svc *Service) Query(ctx context.Context, actor user.User, filter QueryFilter) ([]StudyHall, error) {
	filter.Search = core.CleanString(filter.Search)
	filter.City = core.CleanString(filter.City)
	switch {
	case actor.IsAdmin():
	case actor.IsMerchant():
		filter.MerchantID = actor.ID
	case actor.IsIncharge():
		filter.InchargeID = actor.ID
	default:
		active := true
		filter.IsActive = &active
	}
	return svc.repo.QueryHalls(ctx, filter)
}

// GetByID returns a hall without any access check.
func (svc *Service) GetByID(ctx context.Context, id string) (StudyHall, error) {
	return svc.repo.GetHall(ctx, id)
}

func (svc *Service) Get(ctx context.Context, actor user.User, id string) (StudyHall, error) {
	hall, err := svc.repo.GetHall(ctx, id)
	if err != nil {
		return StudyHall{}, err
	}
	if !CanView(actor, hall) {
		return StudyHall{}, ErrNotFound
	}
	return hall, nil
}

func (svc *Service) getManaged(ctx context.Context, actor user.User, id string) (StudyHall, error) {
	hall, err := svc.repo.GetHall(ctx, id)
	if err != nil {
		return StudyHall{}, err
	}
	if !CanManage(actor, hall) {
		return StudyHall{}, core.ErrForbidden
	}
	return hall, nil
}

func (svc *Service) Update(ctx context.Context, actor user.User, id string, uh UpdateStudyHall) (StudyHall, error) {
	if err := core.Validate.Struct(uh); err != nil {
		return StudyHall{}, err
	}
	hall, err := svc.getManaged(ctx, actor, id)
	if err != nil {
		return StudyHall{}, err
	}

	if uh.InchargeID != nil {
		if *uh.InchargeID != "" {
			if err := svc.checkUserRole(ctx, *uh.InchargeID, user.RoleIncharge); err != nil {
				return StudyHall{}, core.NewValidationError(ErrInvalidIncharge, core.FieldError{Field: "incharge_id", Error: ErrInvalidIncharge.Error()})
			}
		}
		hall.InchargeID = *uh.InchargeID
	}
	if uh.Name != nil {
		hall.Name = security.SanitizeInput(*uh.Name)
	}
	if uh.Description != nil {
		hall.Description = core.SanitizeText(*uh.Description)
	}
	if uh.Address != nil {
		hall.Address = security.SanitizeInput(*uh.Address)
	}
	if uh.City != nil {
		hall.City = security.SanitizeInput(*uh.City)
	}
	if uh.PricePerDay != nil {
		hall.PricePerDay = *uh.PricePerDay
	}
	if uh.PricePerMonth != nil {
		hall.PricePerMonth = *uh.PricePerMonth
	}
	if uh.Amenities != nil {
		hall.Amenities = cleanAmenities(uh.Amenities)
	}
	if uh.IsActive != nil {
		hall.IsActive = *uh.IsActive
	}
	if uh.Rows != nil || uh.SeatsPerRow != nil {
		resized := hall
		if uh.Rows != nil {
			resized.Rows = *uh.Rows
		}
		if uh.SeatsPerRow != nil {
			resized.SeatsPerRow = *uh.SeatsPerRow
		}
		if err := svc.checkLayout(ctx, resized); err != nil {
			return StudyHall{}, err
		}
		hall = resized
	}

	hall.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateHall(ctx, hall)
}

// checkLayout makes sure no upcoming booking is left on a seat the new layout drops.
func (svc *Service) checkLayout(ctx context.Context, hall StudyHall) error {
	if svc.occupancy == nil {
		return nil
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	booked, err := svc.occupancy.BookedSeats(ctx, hall.ID, today, today.AddDate(10, 0, 0))
	if err != nil {
		return errors.Wrap(err, "listing booked seats")
	}
	for _, seat := range booked {
		if !hall.HasSeat(seat) {
			return core.NewValidationError(ErrLayoutShrink, core.FieldError{Field: "rows", Error: ErrLayoutShrink.Error()})
		}
	}
	return nil
}

func (svc *Service) Delete(ctx context.Context, actor user.User, id string) error {
	hall, err := svc.getManaged(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := svc.repo.DeleteHall(ctx, hall.ID); err != nil {
		return err
	}
	for _, url := range hall.ImageURLs {
		_ = svc.storage.Delete(ctx, url)
	}
	return nil
}

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true}

// AddImage uploads an image and appends its URL to the hall.
func (svc *Service) AddImage(ctx context.Context, actor user.User, id, filename string, r io.Reader) (StudyHall, error) {
	hall, err := svc.getManaged(ctx, actor, id)
	if err != nil {
		return StudyHall{}, err
	}
	if !imageExts[strings.ToLower(path.Ext(filename))] {
		return StudyHall{}, core.NewValidationError(ErrInvalidImage, core.FieldError{Field: "image", Error: ErrInvalidImage.Error()})
	}

	url, err := svc.storage.Save(ctx, fmt.Sprintf("halls/%s/%s", hall.ID, path.Base(filename)), r)
	if err != nil {
		return StudyHall{}, errors.Wrap(err, "saving image")
	}
	hall.ImageURLs = append(hall.ImageURLs, url)
	hall.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateHall(ctx, hall)
}

// SeatMap returns every seat of the hall with its availability over [from, to].
func (svc *Service) SeatMap(ctx context.Context, actor user.User, id string, from, to time.Time) ([]Seat, error) {
	hall, err := svc.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "to", Error: "must not be before from"})
	}

	taken := make(map[string]bool)
	if svc.occupancy != nil {
		booked, err := svc.occupancy.BookedSeats(ctx, hall.ID, from, to)
		if err != nil {
			return nil, errors.Wrap(err, "listing booked seats")
		}
		for _, s := range booked {
			taken[strings.ToUpper(s)] = true
		}
	}

	seats := make([]Seat, 0, hall.TotalSeats())
	for r := 1; r <= hall.Rows; r++ {
		for n := 1; n <= hall.SeatsPerRow; n++ {
			label := SeatLabel(r, n)
			seats = append(seats, Seat{Label: label, Row: r, Number: n, Available: !taken[label]})
		}
	}
	return seats, nil
}

func (svc *Service) checkUserRole(ctx context.Context, id, role string) error {
	usr, err := svc.users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !usr.IsActive || usr.Role != role {
		return user.ErrNotFound
	}
	return nil
}

func cleanAmenities(amenities []string) []string {
	seen := make(map[string]bool, len(amenities))
	cleaned := make([]string, 0, len(amenities))
	for _, a := range amenities {
		a = security.SanitizeInput(a)
		if a == "" || seen[strings.ToLower(a)] {
			continue
		}
		seen[strings.ToLower(a)] = true
		cleaned = append(cleaned, a)
	}
	sort.Strings(cleaned)
	return cleaned
}
