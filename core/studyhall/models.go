package studyhall

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var ErrInvalidSeat = errors.New("invalid seat")

type StudyHall struct {
	ID            string    `json:"id"`
	MerchantID    string    `json:"merchant_id"`
	InchargeID    string    `json:"incharge_id,omitempty"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Address       string    `json:"address"`
	City          string    `json:"city"`
	Rows          int       `json:"rows"`
	SeatsPerRow   int       `json:"seats_per_row"`
	PricePerDay   int64     `json:"price_per_day"`   // paise
	PricePerMonth int64     `json:"price_per_month"` // paise
	Amenities     []string  `json:"amenities"`
	ImageURLs     []string  `json:"image_urls"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (h StudyHall) TotalSeats() int { return h.Rows * h.SeatsPerRow }

// HasSeat reports whether label is a seat of the hall's layout.
func (h StudyHall) HasSeat(label string) bool {
	row, n, err := ParseSeat(label)
	if err != nil {
		return false
	}
	return row <= h.Rows && n <= h.SeatsPerRow
}

// Seats lists the seat labels of the hall, row by row.
func (h StudyHall) Seats() []string {
	seats := make([]string, 0, h.TotalSeats())
	for r := 1; r <= h.Rows; r++ {
		for n := 1; n <= h.SeatsPerRow; n++ {
			seats = append(seats, SeatLabel(r, n))
		}
	}
	return seats
}

// SeatLabel formats the seat at row r, position n as `R<r>-<n>`, both 1-based.
func SeatLabel(r, n int) string { return fmt.Sprintf("R%d-%d", r, n) }

func ParseSeat(label string) (row, n int, err error) {
	label = strings.ToUpper(strings.TrimSpace(label))
	if !strings.HasPrefix(label, "R") {
		return 0, 0, ErrInvalidSeat
	}
	parts := strings.SplitN(label[1:], "-", 2)
	if len(parts) != 2 {
		return 0, 0, ErrInvalidSeat
	}
	if row, err = strconv.Atoi(parts[0]); err != nil || row < 1 {
		return 0, 0, ErrInvalidSeat
	}
	if n, err = strconv.Atoi(parts[1]); err != nil || n < 1 {
		return 0, 0, ErrInvalidSeat
	}
	return row, n, nil
}

type Seat struct {
	Label     string `json:"label"`
	Row       int    `json:"row"`
	Number    int    `json:"number"`
	Available bool   `json:"available"`
}

type NewStudyHall struct {
	MerchantID    string   `json:"merchant_id" validate:"omitempty,uuid"` // admins only; merchants create their own halls
	InchargeID    string   `json:"incharge_id" validate:"omitempty,uuid"`
	Name          string   `json:"name" validate:"required,notblank,max=120"`
	Description   string   `json:"description" validate:"max=2000"`
	Address       string   `json:"address" validate:"required,notblank"`
	City          string   `json:"city" validate:"required,notblank"`
	Rows          int      `json:"rows" validate:"required,min=1,max=50"`
	SeatsPerRow   int      `json:"seats_per_row" validate:"required,min=1,max=50"`
	PricePerDay   int64    `json:"price_per_day" validate:"required,min=100"`
	PricePerMonth int64    `json:"price_per_month" validate:"omitempty,min=100"`
	Amenities     []string `json:"amenities" validate:"max=30,dive,notblank"`
}

type UpdateStudyHall struct {
	InchargeID    *string  `json:"incharge_id" validate:"omitempty,uuid|len=0"`
	Name          *string  `json:"name" validate:"omitempty,notblank,max=120"`
	Description   *string  `json:"description" validate:"omitempty,max=2000"`
	Address       *string  `json:"address" validate:"omitempty,notblank"`
	City          *string  `json:"city" validate:"omitempty,notblank"`
	Rows          *int     `json:"rows" validate:"omitempty,min=1,max=50"`
	SeatsPerRow   *int     `json:"seats_per_row" validate:"omitempty,min=1,max=50"`
	PricePerDay   *int64   `json:"price_per_day" validate:"omitempty,min=100"`
	PricePerMonth *int64   `json:"price_per_month" validate:"omitempty,min=0"`
	Amenities     []string `json:"amenities" validate:"omitempty,max=30,dive,notblank"`
	IsActive      *bool    `json:"is_active"`
}

type QueryFilter struct {
	MerchantID string `query:"merchant_id"`
	InchargeID string `query:"incharge_id"`
	City       string `query:"city"`
	Search     string `query:"search"`
	IsActive   *bool  `query:"is_active"`
}
