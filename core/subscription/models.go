package subscription

import (
	"time"
)

// Plans
const (
	PlanBasic    = "basic"
	PlanStandard = "standard"
	PlanPremium  = "premium"
)

// Statuses
const (
	StatusActive    = "active"
	StatusExpired   = "expired"
	StatusCancelled = "cancelled"
)

type planDefaults struct {
	MaxHalls     int
	MonthlyPrice int64 // paise
}

var (
	AllPlans = []string{PlanBasic, PlanStandard, PlanPremium}

	plans = map[string]planDefaults{
		PlanBasic:    {MaxHalls: 1, MonthlyPrice: 99900},
		PlanStandard: {MaxHalls: 3, MonthlyPrice: 249900},
		PlanPremium:  {MaxHalls: 10, MonthlyPrice: 599900},
	}
)

type Subscription struct {
	ID         string    `json:"id"`
	MerchantID string    `json:"merchant_id"`
	Plan       string    `json:"plan"`
	MaxHalls   int       `json:"max_halls"`
	Amount     int64     `json:"amount"` // paise
	Status     string    `json:"status"`
	StartsAt   time.Time `json:"starts_at"`
	EndsAt     time.Time `json:"ends_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IsActiveAt reports whether the subscription grants access at t.
func (s Subscription) IsActiveAt(t time.Time) bool {
	return s.Status == StatusActive && !t.Before(s.StartsAt) && t.Before(s.EndsAt)
}

type NewSubscription struct {
	MerchantID string    `json:"merchant_id" validate:"required,uuid"`
	Plan       string    `json:"plan" validate:"required,oneof=basic standard premium"`
	Months     int       `json:"months" validate:"omitempty,min=1,max=36"`
	MaxHalls   int       `json:"max_halls" validate:"omitempty,min=1,max=100"` // overrides the plan default
	StartsAt   time.Time `json:"starts_at"`
}

type QueryFilter struct {
	MerchantID string   `query:"merchant_id"`
	Statuses   []string `query:"status"`
}
