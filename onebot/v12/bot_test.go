package v12

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/nonebot/adapter-onebot/onebot/message"
)

func TestDecodeFrameJSON(t *testing.T) {
	payload, err := decodeFrame("application/json", []byte(`{"status":"ok"}`))
	if err != nil {
		t.Fatalf("decodeFrame() error = %v", err)
	}
	if payload["status"] != "ok" {
		t.Fatalf("payload = %#v", payload)
	}
}

func TestDecodeFrameMsgpack(t *testing.T) {
	buf, err := msgpack.Marshal(map[string]any{"status": "ok"})
	if err != nil {
		t.Fatal(err)
	}
	payload, err := decodeFrame("application/msgpack", buf)
	if err != nil {
		t.Fatalf("decodeFrame() error = %v", err)
	}
	if payload["status"] != "ok" {
		t.Fatalf("payload = %#v", payload)
	}
}

func TestResolveResultMissingField(t *testing.T) {
	_, err := resolveResult(map[string]any{"status": "ok"})
	mf, ok := err.(*ActionMissingField)
	if !ok {
		t.Fatalf("resolveResult() error = %T, want *ActionMissingField", err)
	}
	if mf.Field != "retcode" {
		t.Fatalf("ActionMissingField.Field = %q, want %q", mf.Field, "retcode")
	}
}

func TestResolveResultFailedResolvesClass(t *testing.T) {
	_, err := resolveResult(map[string]any{
		"status": "failed", "retcode": float64(10001), "data": map[string]any{}, "message": "bad params",
	})
	af, ok := err.(*ActionFailedWithRetcode)
	if !ok {
		t.Fatalf("resolveResult() error = %T, want *ActionFailedWithRetcode", err)
	}
	if af.Class != RetcodeClassRequest {
		t.Fatalf("ActionFailedWithRetcode.Class = %q, want %q", af.Class, RetcodeClassRequest)
	}
}

func TestResolveResultSuccessReturnsData(t *testing.T) {
	data, err := resolveResult(map[string]any{
		"status": "ok", "retcode": float64(0), "data": map[string]any{"message_id": "7"}, "message": "",
	})
	if err != nil {
		t.Fatalf("resolveResult() error = %v", err)
	}
	if data["message_id"] != "7" {
		t.Fatalf("data = %#v", data)
	}
}

func TestSendGroupPrependsMentionWithAtSender(t *testing.T) {
	var gotParams map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotParams, _ = body["params"].(map[string]any)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "retcode": float64(0), "data": map[string]any{}, "message": ""})
	}))
	defer server.Close()

	a := NewAdapter(DefaultConfig(), nil, nil, nil)
	bot := newBot("1", "impl", "qq", a)
	bot.httpURL = server.URL
	bot.httpClient = server.Client()

	event := &GroupMessageEvent{MessageEvent: MessageEvent{Base: Base{SelfID: "1"}, UserID: "42"}, GroupID: "7"}

	_, err := bot.Send(context.Background(), event, message.Message{message.NewText("hi")}, SendOptions{AtSender: true})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	rawMsg, _ := json.Marshal(gotParams["message"])
	var msg message.Message
	_ = json.Unmarshal(rawMsg, &msg)
	if len(msg) != 2 || msg[0].Type != "mention" {
		t.Fatalf("mention segment was not prepended: %#v", msg)
	}
	if gotParams["group_id"] != "7" {
		t.Fatalf("params[group_id] = %v, want 7", gotParams["group_id"])
	}
}

func TestSendPrivateRequiresUserID(t *testing.T) {
	a := NewAdapter(DefaultConfig(), nil, nil, nil)
	bot := newBot("1", "impl", "qq", a)
	event := &GroupMessageEvent{MessageEvent: MessageEvent{Base: Base{SelfID: "1"}}, GroupID: "7"}
	// No UserID and no override: private routing has nothing to send to.
	_, err := bot.Send(context.Background(), event, message.Message{message.NewText("hi")}, SendOptions{DetailType: "private"})
	if err == nil {
		t.Fatal("Send() with no user_id and private detail_type should fail")
	}
}

func TestCallAPIOverWebSocketDeliversByEchoKey(t *testing.T) {
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
		self, _ := req["self"].(map[string]any)
		_ = conn.WriteJSON(map[string]any{
			"status": "ok", "retcode": float64(0), "data": map[string]any{"message_id": "99"}, "message": "",
			"echo": req["echo"], "self": self,
		})
	}))
	defer server.Close()

	wsURL := "ws" + server.URL[len("http"):]
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	bot := newBot("1", "impl", "qq", a)
	bot.attachConn(conn)

	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var raw map[string]any
			if err := json.Unmarshal(data, &raw); err != nil {
				continue
			}
			echo, ok := raw["echo"]
			if !ok {
				continue
			}
			selfID, seq, ok := parseV12Echo(raw, echo)
			if !ok {
				continue
			}
			a.results.Deliver(echoKey{SelfID: selfID, Seq: seq}, raw)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, err := bot.CallAPI(ctx, "send_message", map[string]any{"message": "hi"})
	if err != nil {
		t.Fatalf("CallAPI() error = %v", err)
	}
	if data["message_id"] != "99" {
		t.Fatalf("data = %#v, want message_id 99", data)
	}
}
