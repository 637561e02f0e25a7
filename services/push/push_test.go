package pushsvc

import (
	"context"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhall/backend/core"
	testutil "github.com/studyhall/backend/tests"
)

type fakeMessaging struct {
	sent []*messaging.Message
	err  error
}

func (f *fakeMessaging) Send(_ context.Context, m *messaging.Message) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, m)
	return "projects/test/messages/1", nil
}

func TestFCMSender(t *testing.T) {
	fake := &fakeMessaging{}
	sender := &FCMSender{client: fake}

	err := sender.Send(context.Background(), "tok", core.PushMessage{
		Title: "Booking confirmed",
		Body:  "Seat R1-2",
		Data:  map[string]string{"booking_id": "b1"},
	})
	require.NoError(t, err)
	require.Len(t, fake.sent, 1)
	assert.Equal(t, "tok", fake.sent[0].Token)
	assert.Equal(t, "Booking confirmed", fake.sent[0].Notification.Title)
	assert.Equal(t, "b1", fake.sent[0].Data["booking_id"])

	fake.err = errors.New("unavailable")
	err = sender.Send(context.Background(), "tok", core.PushMessage{Title: "t", Body: "b"})
	require.Error(t, err)
	assert.NotEqual(t, core.ErrPushTokenUnregistered, err)
}

func TestNewSenderFallsBackToConsole(t *testing.T) {
	logger := &testutil.Logger{}
	sender, err := NewSender(context.Background(), core.NewTestConfig(), logger)
	require.NoError(t, err)
	require.IsType(t, &ConsoleSender{}, sender)

	require.NoError(t, sender.Send(context.Background(), "tok", core.PushMessage{Title: "Hi", Body: "there"}))
	assert.Equal(t, []string{"debug: push to tok: Hi - there"}, logger.Entries)
}
