// Package audit keeps track of who did what to which entity.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/studyhall/backend/core"
	"github.com/studyhall/backend/core/user"
)

// Entities
const (
	EntityUser         = "user"
	EntityStudyHall    = "study_hall"
	EntityBooking      = "booking"
	EntityPayment      = "payment_transaction"
	EntitySubscription = "merchant_subscription"
)

type Entry struct {
	ID        string          `json:"id"`
	ActorID   string          `json:"actor_id"`
	ActorRole string          `json:"actor_role"`
	Action    string          `json:"action"` // eg. booking.cancel
	Entity    string          `json:"entity"`
	EntityID  string          `json:"entity_id"`
	Details   json.RawMessage `json:"details,omitempty"`
	IP        string          `json:"ip"`
	CreatedAt time.Time       `json:"created_at"`
}

type QueryFilter struct {
	ActorID  string `query:"actor_id"`
	Entity   string `query:"entity"`
	EntityID string `query:"entity_id"`
	Action   string `query:"action"`
	From     time.Time
	To       time.Time
	core.Page
}

type (
	Repository interface {
		CreateEntry(ctx context.Context, e Entry) (Entry, error)
		// QueryEntries returns the newest entries first.
		QueryEntries(ctx context.Context, filter QueryFilter) ([]Entry, error)
	}

	Service struct {
		repo   Repository
		events core.EventPublisher
		logger core.Logger
	}
)

func NewService(repo Repository, events core.EventPublisher, logger core.Logger) *Service {
	return &Service{repo: repo, events: events, logger: logger}
}

// Record stores an entry for an action of actor. Failures are logged, never returned.
func (svc *Service) Record(ctx context.Context, actor user.User, ip, action, entity, entityID string, details interface{}) {
	e := Entry{
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Action:    action,
		Entity:    entity,
		EntityID:  entityID,
		IP:        ip,
		CreatedAt: time.Now().UTC(),
	}
	if details != nil {
		raw, err := json.Marshal(details)
		if err != nil {
			svc.logger.Warn(fmt.Sprintf("audit: marshalling details of %s: %v", action, err))
		} else {
			e.Details = raw
		}
	}

	e, err := svc.repo.CreateEntry(ctx, e)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("audit: recording %s on %s %s", action, entity, entityID), err, actor)
		return
	}
	if err = svc.events.Publish(ctx, core.NewEvent("audit."+action, entityID, actor.ID, e)); err != nil {
		svc.logger.Error("audit: publishing "+action, err)
	}
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Entry, error) {
	filter.Page.Clean()
	return svc.repo.QueryEntries(ctx, filter)
}
