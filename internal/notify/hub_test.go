package notify

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var evt Event
	require.NoError(t, json.Unmarshal(data, &evt))
	return evt
}

func TestBroadcastReachesAllClients(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	a := dial(t, srv)
	b := dial(t, srv)
	require.Eventually(t, func() bool { return hub.Len() == 2 }, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast(PrintSuccess(12))

	assert.Equal(t, PrintSuccess(12), readEvent(t, a))
	assert.Equal(t, PrintSuccess(12), readEvent(t, b))
}

func TestEventWireFormat(t *testing.T) {
	data, err := json.Marshal(PrintError(3))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"print_error","itemId":3}`, string(data))

	data, err = json.Marshal(QueueUpdated())
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"queue_updated"}`, string(data))
}

func TestLateClientGetsNoBacklog(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	hub.Broadcast(QueueUpdated())

	late := dial(t, srv)
	require.Eventually(t, func() bool { return hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, late.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := late.ReadMessage()
	assert.Error(t, err)
}

func TestDisconnectedClientIsRemoved(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast(QueueUpdated())
}

func TestCloseDisconnectsClients(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Close()
	assert.Equal(t, 0, hub.Len())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected error: %v", err)
}

type countingSink struct{ n int }

func (c *countingSink) Broadcast(Event) { c.n++ }

func TestFanoutReachesEverySink(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	f := Fanout{a, nil, b}
	f.Broadcast(QueueUpdated())
	f.Broadcast(PrintError(1))
	assert.Equal(t, 2, a.n)
	assert.Equal(t, 2, b.n)
}
