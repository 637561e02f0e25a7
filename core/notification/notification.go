// Package notification delivers messages to users: push notifications to their devices
// and live messages to their open dashboards.
package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/studyhall/backend/core"
)

// Platforms
const (
	PlatformAndroid = "android"
	PlatformIOS     = "ios"
	PlatformWeb     = "web"
)

type Token struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Platform  string    `json:"platform"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type NewToken struct {
	Token    string `json:"token" validate:"required,max=4096"`
	Platform string `json:"platform" validate:"required,oneof=android ios web"`
}

type Message struct {
	UserID string            `json:"user_id" validate:"required,uuid"`
	Title  string            `json:"title" validate:"required,max=200"`
	Body   string            `json:"body" validate:"required,max=2000"`
	Data   map[string]string `json:"data"`
}

// LiveMessage is what connected dashboards receive.
type LiveMessage struct {
	Type string      `json:"type"` // notification, booking, payment
	Data interface{} `json:"data"`
}

type (
	Repository interface {
		// SaveToken upserts a device token; a token moving to another user is reassigned.
		SaveToken(ctx context.Context, t Token) (Token, error)
		DeleteTokens(ctx context.Context, tokens ...string) error
		ListTokens(ctx context.Context, userID string) ([]Token, error)
	}

	Service struct {
		repo        Repository
		sender      core.PushSender
		broadcaster core.Broadcaster
		logger      core.Logger
	}
)

func NewService(repo Repository, sender core.PushSender, broadcaster core.Broadcaster, logger core.Logger) *Service {
	return &Service{repo: repo, sender: sender, broadcaster: broadcaster, logger: logger}
}

func (svc *Service) Register(ctx context.Context, userID string, nt NewToken) (Token, error) {
	if err := core.Validate.Struct(nt); err != nil {
		return Token{}, err
	}
	now := time.Now().UTC()
	return svc.repo.SaveToken(ctx, Token{
		Token:     nt.Token,
		UserID:    userID,
		Platform:  nt.Platform,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// Remove deletes token if it belongs to userID.
func (svc *Service) Remove(ctx context.Context, userID, token string) error {
	tokens, err := svc.repo.ListTokens(ctx, userID)
	if err != nil {
		return err
	}
	for _, t := range tokens {
		if t.Token == token {
			return svc.repo.DeleteTokens(ctx, token)
		}
	}
	return nil
}

func (svc *Service) ListForUser(ctx context.Context, userID string) ([]Token, error) {
	return svc.repo.ListTokens(ctx, userID)
}

// NotifyUser pushes msg to every device of the user and to their live dashboards.
// It returns how many devices accepted the push. Tokens the sender reports as unregistered are dropped.
func (svc *Service) NotifyUser(ctx context.Context, msg Message) (int, error) {
	if err := core.Validate.Struct(msg); err != nil {
		return 0, err
	}
	svc.broadcaster.SendToUser(msg.UserID, LiveMessage{Type: "notification", Data: msg})

	tokens, err := svc.repo.ListTokens(ctx, msg.UserID)
	if err != nil {
		return 0, errors.Wrap(err, "listing tokens")
	}

	var (
		sent  int
		stale []string
	)
	push := core.PushMessage{Title: msg.Title, Body: msg.Body, Data: msg.Data}
	for _, t := range tokens {
		if err := svc.sender.Send(ctx, t.Token, push); err != nil {
			if errors.Cause(err) == core.ErrPushTokenUnregistered {
				stale = append(stale, t.Token)
				continue
			}
			svc.logger.Warn(fmt.Sprintf("notification: pushing to %s device of %s: %v", t.Platform, t.UserID, err))
			continue
		}
		sent++
	}
	if len(stale) > 0 {
		if err := svc.repo.DeleteTokens(ctx, stale...); err != nil {
			svc.logger.Error("notification: deleting stale tokens", err)
		}
	}
	return sent, nil
}

// Broadcast sends a live message to the user's open dashboards only.
func (svc *Service) Broadcast(userID, typ string, data interface{}) {
	svc.broadcaster.SendToUser(userID, LiveMessage{Type: typ, Data: data})
}
