package v11

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nonebot/adapter-onebot/internal/resultstore"
	"github.com/nonebot/adapter-onebot/internal/wireutil"
)

// upgrader is shared across inbound WS connections; origin checking is left
// to the caller's reverse proxy, matching the upstream adapter's posture.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSHandler returns the inbound WebSocket server handler, mounted by
// callers at "/onebot/v11/", "/ws" and "/ws/".
func (a *Adapter) WSHandler() http.Handler {
	return http.HandlerFunc(a.handleWSServer)
}

func (a *Adapter) handleWSServer(w http.ResponseWriter, r *http.Request) {
	selfIDHeader := r.Header.Get("X-Self-ID")
	selfID, err := strconv.ParseInt(selfIDHeader, 10, 64)
	if err != nil {
		http.Error(w, "missing or invalid X-Self-ID", http.StatusBadRequest)
		return
	}

	if a.config.AccessToken != "" {
		token := wireutil.AuthBearer(r.Header.Get("Authorization"))
		if token == "" {
			token = r.URL.Query().Get("access_token")
		}
		if token != a.config.AccessToken {
			http.Error(w, "invalid access token", http.StatusUnauthorized)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warnf("v11: ws upgrade for self_id %d failed: %v", selfID, err)
		return
	}

	bot := newBot(selfID, a)
	bot.attachConn(conn)
	if !a.botConnectExclusive(bot) {
		a.logger.Warnf("v11: self_id %d already connected, rejecting duplicate", selfID)
		closeConn(conn, websocket.ClosePolicyViolation, "Duplicate X-Self-ID")
		return
	}
	a.logger.Infof("v11: bot %d connected over ws", selfID)

	a.receiveLoop(bot, conn)

	a.botDisconnect(bot)
	bot.detachConn(conn)
	conn.Close()
	a.logger.Infof("v11: bot %d disconnected", selfID)
}

func closeConn(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	_ = conn.Close()
}

// receiveLoop reads frames from conn until it closes or errors. Each frame
// is either a call_api reply (delivered to the result store by its echo) or
// an event (decoded and dispatched to the adapter's handler).
func (a *Adapter) receiveLoop(bot *Bot, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			a.logger.Warnf("v11: bot %d sent malformed frame: %v", bot.SelfID, err)
			continue
		}

		if echo, ok := raw["echo"]; ok {
			if seq, ok := resultstore.ParseEcho(echo); ok {
				a.results.Deliver(seq, raw)
				continue
			}
		}

		event, err := a.decodeEvent(bot, raw)
		if err != nil {
			a.logger.Warnf("v11: bot %d: %v", bot.SelfID, err)
			continue
		}
		if !event.EventNoLog() {
			a.logger.Infof("v11: bot %d event %s", bot.SelfID, event.EventType())
		}
		if a.handler != nil {
			go a.handler(bot, event)
		}
	}
}
