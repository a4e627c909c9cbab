package broadcast

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	pingInterval = 15 * time.Second
	writeTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// ServeWS upgrades the request and streams gameID's events until the client
// goes away. The last_event_id query parameter resumes after a reconnect.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, gameID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	metricWSConnections.Add(1)
	metricWSConnectionsNow.Add(1)
	defer metricWSConnectionsNow.Add(-1)

	replay, ch := h.Subscribe(gameID, r.URL.Query().Get("last_event_id"))
	defer h.Unsubscribe(gameID, ch)

	done := make(chan struct{})
	go readLoop(conn, done)
	writeLoop(conn, replay, ch, done)
	_ = conn.Close()
	log.Debug().Str("game_id", gameID).Msg("ws subscriber disconnected")
}

// readLoop drains client frames so control messages are processed and a
// closed socket is noticed.
func readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeLoop(conn *websocket.Conn, replay []Event, ch chan Event, done chan struct{}) {
	for _, ev := range replay {
		if err := writeEvent(conn, ev); err != nil {
			return
		}
	}
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case ev, ok := <-ch:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "game closed"),
					time.Now().Add(writeTimeout))
				return
			}
			if err := writeEvent(conn, ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, ev Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(ev)
}
