package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestWebSocketHandlerStreamsFilteredEvents(t *testing.T) {
	hub := NewBroadcaster(nil)
	srv := httptest.NewServer(NewWebSocketHandler(hub, 8, zerolog.Nop()))
	defer srv.Close()

	conn := dial(t, srv, "?types=inventory.updated")
	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	_ = hub.Publish(context.Background(), mustEvent(t, AppointmentCreated, nil))
	want := mustEvent(t, InventoryUpdated, map[string]int{"newQuantity": 3})
	_ = hub.Publish(context.Background(), want)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, InventoryUpdated, got.Type)
	assert.Equal(t, want.EntityID, got.EntityID)
	assert.JSONEq(t, `{"newQuantity":3}`, string(got.Payload))
}

func TestWebSocketHandlerUnsubscribesOnDisconnect(t *testing.T) {
	hub := NewBroadcaster(nil)
	srv := httptest.NewServer(NewWebSocketHandler(hub, 8, zerolog.Nop()))
	defer srv.Close()

	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()

	assert.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketHandlerRejectsUnknownTypes(t *testing.T) {
	hub := NewBroadcaster(nil)
	h := NewWebSocketHandler(hub, 8, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events/ws?types=bogus", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, hub.Count())
}
