package liveevents

import (
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboards are authenticated before the upgrade, so any origin is accepted.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Serve upgrades the request and streams the school's events until the
// client goes away or falls behind.
func Serve(hub *Hub, w http.ResponseWriter, r *http.Request, schoolID snowflake.ID, log *zap.Logger) {
	sub, backlog, err := hub.Subscribe(schoolID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Close()
		log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	done := make(chan struct{})
	go readPump(conn, done)
	writePump(conn, sub, backlog, done, log)
}

// readPump drains control frames so pongs are processed.
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(conn *websocket.Conn, sub *Subscription, backlog []Event, done <-chan struct{}, log *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.Close()
		_ = conn.Close()
	}()

	for _, event := range backlog {
		if err := writeEvent(conn, event); err != nil {
			return
		}
	}

	for {
		select {
		case event := <-sub.Events():
			if err := writeEvent(conn, event); err != nil {
				log.Debug("websocket write failed", zap.Error(err))
				return
			}
			// A client that lets its channel fill is dropped.
			if len(sub.Events()) == cap(sub.Events()) {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "slow consumer"),
					time.Now().Add(writeWait))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, event Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(event)
}
