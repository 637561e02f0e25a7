// Package pushsvc delivers push notifications.
package pushsvc

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/pkg/errors"
	"google.golang.org/api/option"

	"github.com/studyhall/backend/core"
)

type messageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMSender sends through Firebase Cloud Messaging.
type FCMSender struct {
	client messageSender
}

var _ core.PushSender = (*FCMSender)(nil)

func NewFCMSender(ctx context.Context, conf *core.Config) (*FCMSender, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(conf.Push.FirebaseCredentialsFile))
	if err != nil {
		return nil, errors.Wrap(err, "initializing firebase")
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "initializing messaging")
	}
	return &FCMSender{client: client}, nil
}

func (s *FCMSender) Send(ctx context.Context, token string, msg core.PushMessage) error {
	_, err := s.client.Send(ctx, &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
	})
	if err != nil {
		if messaging.IsUnregistered(err) {
			return core.ErrPushTokenUnregistered
		}
		return errors.Wrap(err, "sending push")
	}
	return nil
}

// ConsoleSender logs the notifications instead of sending them.
type ConsoleSender struct {
	logger core.Logger
}

var _ core.PushSender = (*ConsoleSender)(nil)

func NewConsoleSender(logger core.Logger) *ConsoleSender {
	return &ConsoleSender{logger: logger}
}

func (s *ConsoleSender) Send(_ context.Context, token string, msg core.PushMessage) error {
	s.logger.Debug(fmt.Sprintf("push to %s: %s - %s", token, msg.Title, msg.Body))
	return nil
}

// NewSender uses FCM when firebase credentials are configured, the console otherwise.
func NewSender(ctx context.Context, conf *core.Config, logger core.Logger) (core.PushSender, error) {
	if conf.Push.FirebaseCredentialsFile == "" {
		return NewConsoleSender(logger), nil
	}
	return NewFCMSender(ctx, conf)
}
