package v12

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/nonebot/adapter-onebot/internal/resultstore"
)

var errMissingConnect = errors.New("v12: first ws frame was not a connect meta event")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSHandler returns the inbound WebSocket server handler, mounted by
// callers at "/onebot/v12/", "/onebot/v12/ws" and "/onebot/v12/ws/".
func (a *Adapter) WSHandler() http.Handler {
	return http.HandlerFunc(a.handleWSServer)
}

func (a *Adapter) handleWSServer(w http.ResponseWriter, r *http.Request) {
	if a.config.AccessToken != "" {
		token := AuthBearer(r.Header.Get("Authorization"))
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
		a.logger.Warnf("v12: ws upgrade failed: %v", err)
		return
	}

	connect, err := readConnectFrame(conn)
	if err != nil {
		a.logger.Warnf("v12: ws: %v", err)
		closeConn(conn, websocket.ClosePolicyViolation, "Missing connect meta event")
		conn.Close()
		return
	}
	impl := connect.Version.Impl
	platform := connect.Platform
	a.logger.Infof("v12: ws session connected, impl=%s platform=%s", impl, platform)

	session := &wsSession{adapter: a, conn: conn, impl: impl, platform: platform, owned: map[string]*Bot{}}
	session.run()

	session.disconnectAll()
	conn.Close()
}

func closeConn(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	_ = conn.Close()
}

// decodeWSFrame decodes one WebSocket frame: text frames carry JSON,
// binary frames carry MessagePack.
func decodeWSFrame(messageType int, data []byte) (map[string]any, error) {
	var raw map[string]any
	if messageType == websocket.BinaryMessage {
		return raw, msgpack.Unmarshal(data, &raw)
	}
	return raw, json.Unmarshal(data, &raw)
}

func readConnectFrame(conn *websocket.Conn) (*ConnectMetaEvent, error) {
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	raw, err := decodeWSFrame(msgType, data)
	if err != nil {
		return nil, err
	}
	if raw["type"] != "meta" || raw["detail_type"] != "connect" {
		return nil, errMissingConnect
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var ev ConnectMetaEvent
	if err := json.Unmarshal(buf, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// wsSession tracks one inbound v12 WebSocket connection, which may own
// several bots over its lifetime (bots are added and removed as
// StatusUpdate events arrive).
type wsSession struct {
	adapter  *Adapter
	conn     *websocket.Conn
	impl     string
	platform string

	mu    sync.Mutex
	owned map[string]*Bot
}

func (s *wsSession) run() {
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		raw, err := decodeWSFrame(msgType, data)
		if err != nil {
			s.adapter.logger.Warnf("v12: ws session sent malformed frame: %v", err)
			continue
		}

		if echo, ok := raw["echo"]; ok {
			if selfID, seq, ok := parseV12Echo(raw, echo); ok {
				s.adapter.results.Deliver(echoKey{SelfID: selfID, Seq: seq}, raw)
				continue
			}
		}

		platform, _ := raw["platform"].(string)
		if platform == "" {
			platform = s.platform
		}
		event, err := s.adapter.decodeEvent(s.impl, platform, raw)
		if err != nil {
			s.adapter.logger.Warnf("v12: ws session: %v", err)
			continue
		}

		switch ev := event.(type) {
		case *StatusUpdateMetaEvent:
			s.reconcile(ev)
			continue
		case *MetaEvent, *HeartbeatMetaEvent, *ConnectMetaEvent:
			s.adapter.broadcast(event)
			continue
		}

		if !s.claim(event.EventSelfID()) {
			s.adapter.logger.Warnf("v12: ws session: self_id %s already owned by a different connection, closing", event.EventSelfID())
			closeConn(s.conn, websocket.CloseNormalClosure, "")
			return
		}
		bot := s.bot(event.EventSelfID())
		if bot == nil {
			s.adapter.logger.Warnf("v12: ws session: dropping event %s with no self_id", event.EventType())
			continue
		}
		s.adapter.dispatch(bot, event)
	}
}

// claim ensures selfID is owned by this session, reporting false if it is
// already owned by a different connection (including a sibling v11
// adapter sharing the same identity registry).
func (s *wsSession) claim(selfID string) bool {
	if selfID == "" {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.owned[selfID]; ok {
		return true
	}
	if !s.adapter.identity.Claim(selfID, identityOwner) {
		return false
	}
	bot := newBot(selfID, s.impl, s.platform, s.adapter)
	bot.attachConn(s.conn)
	s.adapter.mu.Lock()
	s.adapter.bots[selfID] = bot
	s.adapter.mu.Unlock()
	s.owned[selfID] = bot
	return true
}

func (s *wsSession) bot(selfID string) *Bot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owned[selfID]
}

func (s *wsSession) reconcile(ev *StatusUpdateMetaEvent) {
	for _, bs := range ev.Status.Bots {
		if !bs.Online {
			s.release(bs.SelfID)
			continue
		}
		if !s.claim(bs.SelfID) {
			s.adapter.logger.Warnf("v12: ws session: status update names self_id %s owned elsewhere", bs.SelfID)
		}
	}
}

func (s *wsSession) release(selfID string) {
	s.mu.Lock()
	bot, ok := s.owned[selfID]
	if ok {
		delete(s.owned, selfID)
	}
	s.mu.Unlock()
	if ok {
		s.adapter.botDisconnect(bot)
	}
}

func (s *wsSession) disconnectAll() {
	s.mu.Lock()
	bots := make([]*Bot, 0, len(s.owned))
	for _, b := range s.owned {
		bots = append(bots, b)
	}
	s.owned = map[string]*Bot{}
	s.mu.Unlock()
	for _, b := range bots {
		s.adapter.botDisconnect(b)
	}
}

// parseV12Echo extracts the (self_id, seq) echo key from a reply frame.
// v12 sends its echo as a number, unlike v11's decimal string; ParseEcho
// accepts both, and the self_id is read from the reply's "self" record.
func parseV12Echo(raw map[string]any, echo any) (string, uint64, bool) {
	seq, ok := resultstore.ParseEcho(echo)
	if !ok {
		return "", 0, false
	}
	self, _ := raw["self"].(map[string]any)
	selfID, _ := self["user_id"].(string)
	return selfID, seq, true
}
