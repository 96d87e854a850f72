package websocket

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T) (*Hub, *websocket.Conn) {
	t.Helper()

	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return hub, conn
}

func readEvent(t *testing.T, conn *websocket.Conn) AccessEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event AccessEvent
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func TestBroadcastReachesClient(t *testing.T) {
	hub, conn := newTestHub(t)

	hub.BroadcastAccessChange(true)

	event := readEvent(t, conn)
	assert.Equal(t, "access_change", event.Type)
	assert.True(t, event.HasAccess)
	assert.False(t, event.Timestamp.IsZero())
}

func TestNewClientReceivesLastState(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Close)

	hub.BroadcastAccessChange(false)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	event := readEvent(t, conn)
	assert.False(t, event.HasAccess)
}

func TestMultipleClients(t *testing.T) {
	hub, first := newTestHub(t)

	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	second, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { second.Close() })

	require.Eventually(t, func() bool { return hub.ClientCount() == 2 },
		2*time.Second, 10*time.Millisecond)

	hub.BroadcastAccessChange(true)

	assert.True(t, readEvent(t, first).HasAccess)
	assert.True(t, readEvent(t, second).HasAccess)
}

func TestDisconnectPrunesClient(t *testing.T) {
	hub, conn := newTestHub(t)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 0 },
		2*time.Second, 10*time.Millisecond)
}
