package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testutil "github.com/studyhall/backend/tests"
)

func dial(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHubSendToUser(t *testing.T) {
	hub := NewHub(&testutil.Logger{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Serve(w, r, r.URL.Query().Get("user"))
	}))
	defer srv.Close()
	defer hub.Close()

	alice := dial(t, srv, "alice")
	bob := dial(t, srv, "bob")

	require.Eventually(t, func() bool {
		return hub.Connections("alice") == 1 && hub.Connections("bob") == 1
	}, time.Second, 10*time.Millisecond)

	hub.SendToUser("alice", map[string]string{"type": "booking", "id": "b1"})

	_ = alice.SetReadDeadline(time.Now().Add(time.Second))
	var got map[string]string
	require.NoError(t, alice.ReadJSON(&got))
	assert.Equal(t, "b1", got["id"])

	// nothing for bob
	_ = bob.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := bob.ReadMessage()
	assert.Error(t, err)
}

func TestHubUnregistersClosedConnections(t *testing.T) {
	hub := NewHub(&testutil.Logger{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Serve(w, r, "carol")
	}))
	defer srv.Close()

	conn := dial(t, srv, "carol")
	require.Eventually(t, func() bool { return hub.Connections("carol") == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Connections("carol") == 0 }, time.Second, 10*time.Millisecond)

	// no panic sending to a user without connections
	hub.SendToUser("carol", "ping")
}
