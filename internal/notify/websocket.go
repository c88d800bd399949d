package notify

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// WebSocketHandler streams events to dashboards. Clients may narrow the stream
// with ?types=appointment.created,inventory.updated.
type WebSocketHandler struct {
	hub      *Broadcaster
	buffer   int
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

func NewWebSocketHandler(hub *Broadcaster, buffer int, logger zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    hub,
		buffer: buffer,
		logger: logger.With().Str("component", "ws").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	types, err := ParseTypes(r.URL.Query().Get("types"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	sub := h.hub.Subscribe(h.buffer, TypesFilter(types...))
	h.logger.Debug().Str("subscription_id", sub.ID).Int("types", len(types)).Msg("observer connected")

	go h.writePump(conn, sub)
	go h.readPump(conn, sub)
}

// ParseTypes splits a comma separated list of event types.
func ParseTypes(raw string) ([]EventType, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out []EventType
	for _, part := range strings.Split(raw, ",") {
		t := EventType(strings.TrimSpace(part))
		if t == "" {
			continue
		}
		if !t.Valid() {
			return nil, fmt.Errorf("unknown event type %q", t)
		}
		out = append(out, t)
	}
	return out, nil
}

// readPump only watches for the peer going away; observers never send data.
func (h *WebSocketHandler) readPump(conn *websocket.Conn, sub *Subscription) {
	defer h.hub.Unsubscribe(sub)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Str("subscription_id", sub.ID).Msg("observer read error")
			}
			return
		}
	}
}

func (h *WebSocketHandler) writePump(conn *websocket.Conn, sub *Subscription) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case ev, ok := <-sub.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				h.hub.Unsubscribe(sub)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.hub.Unsubscribe(sub)
				return
			}
		}
	}
}
