package v11

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nonebot/adapter-onebot/onebot/message"
)

func TestCheckAtMeTrailingAtStripped(t *testing.T) {
	me := &MessageEvent{
		MessageType: "group",
		Message: message.Message{
			message.NewText("hi"),
			{Type: "at", Data: map[string]any{"qq": "10"}},
		},
	}
	checkAtMe(me, 10)
	if !me.ToMe {
		t.Fatal("trailing at-self should set ToMe")
	}
	if len(me.Message) != 1 || me.Message[0].Text() != "hi" {
		t.Fatalf("Message after strip = %#v", me.Message)
	}
}

func TestCheckAtMeOtherUserUnaffected(t *testing.T) {
	me := &MessageEvent{
		MessageType: "group",
		Message:     message.Message{{Type: "at", Data: map[string]any{"qq": "99"}}},
	}
	checkAtMe(me, 10)
	if me.ToMe {
		t.Fatal("at a different qq should not set ToMe")
	}
}

func TestCheckNicknameStripsPrefix(t *testing.T) {
	me := &MessageEvent{Message: message.Message{message.NewText("bot, hello")}}
	checkNickname(me, []string{"bot"})
	if !me.ToMe {
		t.Fatal("nickname prefix should set ToMe")
	}
	if me.Message[0].Text() != "hello" {
		t.Fatalf("Message[0] = %q, want %q", me.Message[0].Text(), "hello")
	}
}

func TestCheckNicknameRunsAfterAtMe(t *testing.T) {
	me := &MessageEvent{
		MessageType: "group",
		Message: message.Message{
			message.NewText("bot hello"),
			{Type: "at", Data: map[string]any{"qq": "10"}},
		},
	}
	checkAtMe(me, 10)
	checkNickname(me, []string{"bot"})
	if !me.ToMe {
		t.Fatal("ToMe should be set")
	}
	if len(me.Message) != 1 || me.Message[0].Text() != "hello" {
		t.Fatalf("nickname prefix was not stripped after at-me handling: %#v", me.Message)
	}
}

// newHTTPBot builds a Bot whose only transport is an HTTP API root pointed
// at server, bypassing the WebSocket path entirely.
func newHTTPBot(t *testing.T, a *Adapter, selfID int64, server *httptest.Server) *Bot {
	t.Helper()
	bot := newBot(selfID, a)
	bot.apiRoot = server.URL
	return bot
}

func TestSendReplySuppressedWithoutMessageID(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "retcode": float64(0), "data": map[string]any{}})
	}))
	defer server.Close()

	a := NewAdapter(DefaultConfig(), nil, nil, nil)
	bot := newHTTPBot(t, a, 1, server)

	event := &PrivateMessageEvent{MessageEvent: MessageEvent{
		Base:   Base{SelfID: 1},
		UserID: 42,
		// MessageID left at its zero value: reply_message must be suppressed.
	}}

	_, err := bot.Send(context.Background(), event, message.Message{message.NewText("hi")}, SendOptions{ReplyMessage: true})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	rawMsg, err := json.Marshal(gotBody["message"])
	if err != nil {
		t.Fatal(err)
	}
	var msg message.Message
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		t.Fatal(err)
	}
	if len(msg) != 1 || !msg[0].IsText() || msg[0].Text() != "hi" {
		t.Fatalf("reply segment was not suppressed for a message with no message_id: %#v", msg)
	}
}

func TestSendPrependsReplyWhenMessageIDPresent(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "retcode": float64(0), "data": map[string]any{}})
	}))
	defer server.Close()

	a := NewAdapter(DefaultConfig(), nil, nil, nil)
	bot := newHTTPBot(t, a, 1, server)

	event := &PrivateMessageEvent{MessageEvent: MessageEvent{
		Base:      Base{SelfID: 1},
		UserID:    42,
		MessageID: 7,
	}}

	_, err := bot.Send(context.Background(), event, message.Message{message.NewText("hi")}, SendOptions{ReplyMessage: true})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	rawMsg, _ := json.Marshal(gotBody["message"])
	var msg message.Message
	_ = json.Unmarshal(rawMsg, &msg)
	if len(msg) != 2 || msg[0].Type != "reply" {
		t.Fatalf("reply segment was not prepended: %#v", msg)
	}
}

func TestCallAPIOverWebSocket(t *testing.T) {
	a := NewAdapter(DefaultConfig(), nil, nil, nil)

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		var req map[string]any
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		_ = conn.WriteJSON(map[string]any{
			"status":  "ok",
			"retcode": float64(0),
			"data":    map[string]any{"message_id": float64(123)},
			"echo":    req["echo"],
		})
	}))
	defer server.Close()

	wsURL := "ws" + server.URL[len("http"):]
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	bot := newBot(1, a)
	bot.attachConn(conn)
	go a.receiveLoop(bot, conn)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, err := bot.CallAPI(ctx, "send_msg", map[string]any{"message": "hi"})
	if err != nil {
		t.Fatalf("CallAPI() error = %v", err)
	}
	if data["message_id"].(float64) != 123 {
		t.Fatalf("data = %#v, want message_id 123", data)
	}
}

func TestFriendRequestApprove(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "retcode": float64(0), "data": map[string]any{}})
	}))
	defer server.Close()

	a := NewAdapter(DefaultConfig(), nil, nil, nil)
	bot := newHTTPBot(t, a, 1, server)

	event := &FriendRequestEvent{UserID: 42, Flag: "f1"}
	if err := event.Approve(context.Background(), bot, "pal"); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if gotPath != "/set_friend_add_request" {
		t.Fatalf("action path = %q, want %q", gotPath, "/set_friend_add_request")
	}
	if gotBody["flag"] != "f1" || gotBody["approve"] != true || gotBody["remark"] != "pal" {
		t.Fatalf("params = %#v", gotBody)
	}
}

func TestGroupRequestReject(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "retcode": float64(0), "data": map[string]any{}})
	}))
	defer server.Close()

	a := NewAdapter(DefaultConfig(), nil, nil, nil)
	bot := newHTTPBot(t, a, 1, server)

	event := &GroupRequestEvent{SubType: "invite", GroupID: 7, UserID: 42, Flag: "g1"}
	if err := event.Reject(context.Background(), bot, "no invites"); err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	if gotPath != "/set_group_add_request" {
		t.Fatalf("action path = %q, want %q", gotPath, "/set_group_add_request")
	}
	if gotBody["flag"] != "g1" || gotBody["sub_type"] != "invite" || gotBody["approve"] != false || gotBody["reason"] != "no invites" {
		t.Fatalf("params = %#v", gotBody)
	}
}

func TestCallAPIOverHTTPServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	a := NewAdapter(DefaultConfig(), nil, nil, nil)
	bot := newHTTPBot(t, a, 3, server)

	_, err := bot.CallAPI(context.Background(), "send_msg", map[string]any{"message": "hi"})
	if _, ok := err.(*NetworkError); !ok {
		t.Fatalf("CallAPI() error = %T (%v), want *NetworkError", err, err)
	}
}

func TestCallAPINoTransport(t *testing.T) {
	a := NewAdapter(DefaultConfig(), nil, nil, nil)
	bot := newBot(4, a)

	_, err := bot.CallAPI(context.Background(), "send_msg", nil)
	if _, ok := err.(*ApiNotAvailable); !ok {
		t.Fatalf("CallAPI() error = %T (%v), want *ApiNotAvailable", err, err)
	}
}

func TestResolveResultFailed(t *testing.T) {
	_, err := resolveResult(map[string]any{"status": "failed", "retcode": float64(100), "wording": "bad"})
	af, ok := err.(*ActionFailed)
	if !ok {
		t.Fatalf("resolveResult() error = %T, want *ActionFailed", err)
	}
	if af.Retcode != 100 || af.Wording != "bad" {
		t.Fatalf("ActionFailed = %#v", af)
	}
}
