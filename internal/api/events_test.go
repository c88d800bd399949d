package api

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/dental-clinic-engine/internal/logging"
	"github.com/hackgods/dental-clinic-engine/internal/notify"
)

func TestEventsStreamThroughMiddleware(t *testing.T) {
	hub := notify.NewBroadcaster(nil)
	srv := httptest.NewServer(newTestRouter(RouterConfig{
		Events: notify.NewWebSocketHandler(hub, 8, logging.Nop()),
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events/ws?types=appointment.created"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	ev, err := notify.NewEvent(notify.AppointmentCreated, uuid.New(), map[string]string{"status": "pending"})
	require.NoError(t, err)
	require.NoError(t, hub.Publish(context.Background(), ev))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got notify.Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, notify.AppointmentCreated, got.Type)
	assert.Equal(t, ev.EntityID, got.EntityID)
}
