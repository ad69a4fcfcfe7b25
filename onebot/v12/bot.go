package v12

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/nonebot/adapter-onebot/internal/obs"
	"github.com/nonebot/adapter-onebot/internal/wireutil"
	"github.com/nonebot/adapter-onebot/onebot/message"
)

// Bot represents one connected OneBot v12 implementation instance.
type Bot struct {
	SelfID   string
	Impl     string
	Platform string

	adapter *Adapter
	logger  obs.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	useMsgpack bool
	httpURL    string
	httpClient *http.Client
}

func newBot(selfID, impl, platform string, adapter *Adapter) *Bot {
	return &Bot{
		SelfID:     selfID,
		Impl:       impl,
		Platform:   platform,
		adapter:    adapter,
		logger:     adapter.logger,
		useMsgpack: adapter.config.msgpackFor(impl),
		httpURL:    adapter.config.HTTPURLs[selfID],
		httpClient: http.DefaultClient,
	}
}

func (b *Bot) attachConn(conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conn = conn
}

func (b *Bot) detachConn(conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == conn {
		b.conn = nil
	}
}

// CallAPI invokes action on the bot with params, returning the reply's data
// payload.
func (b *Bot) CallAPI(ctx context.Context, action string, params map[string]any) (map[string]any, error) {
	timeout := b.adapter.config.APITimeout
	if d, ok := params["_timeout"].(time.Duration); ok {
		timeout = d
		params = withoutKey(params, "_timeout")
	}

	b.mu.Lock()
	conn := b.conn
	useMsgpack := b.useMsgpack
	httpURL := b.httpURL
	client := b.httpClient
	b.mu.Unlock()

	if conn != nil {
		return b.callOverWS(ctx, conn, useMsgpack, action, params, timeout)
	}
	if httpURL != "" && client != nil {
		return b.callOverHTTP(ctx, client, httpURL, useMsgpack, action, params)
	}
	return nil, &ApiNotAvailable{Action: action}
}

func (b *Bot) callOverWS(ctx context.Context, conn *websocket.Conn, useMsgpack bool, action string, params map[string]any, timeout time.Duration) (map[string]any, error) {
	seq := b.adapter.results.NextSeq()
	record := map[string]any{
		"action": action,
		"params": params,
		"self":   map[string]any{"platform": b.Platform, "user_id": b.SelfID},
		"echo":   seq,
	}

	var err error
	b.mu.Lock()
	if useMsgpack {
		var buf []byte
		if buf, err = msgpack.Marshal(record); err == nil {
			err = conn.WriteMessage(websocket.BinaryMessage, buf)
		}
	} else {
		err = conn.WriteJSON(record)
	}
	b.mu.Unlock()
	if err != nil {
		return nil, &NetworkError{Message: "write call_api frame", Err: err}
	}

	key := echoKey{SelfID: b.SelfID, Seq: seq}
	payload, err := b.adapter.results.AwaitReply(ctx, key, timeout)
	if err != nil {
		return nil, &NetworkError{Message: "await call_api reply", Err: err}
	}
	return resolveResult(payload)
}

func (b *Bot) callOverHTTP(ctx context.Context, client *http.Client, httpURL string, useMsgpack bool, action string, params map[string]any) (map[string]any, error) {
	record := map[string]any{"action": action, "params": params}
	contentType := "application/json"
	var body []byte
	var err error
	if useMsgpack {
		contentType = "application/msgpack"
		body, err = msgpack.Marshal(record)
	} else {
		body, err = json.Marshal(record)
	}
	if err != nil {
		return nil, &NetworkError{Message: "encode call_api body", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(httpURL, "/"), bytes.NewReader(body))
	if err != nil {
		return nil, &NetworkError{Message: "build call_api request", Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	if b.adapter.config.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+b.adapter.config.AccessToken)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &NetworkError{Message: "call_api http request", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Message: "read call_api response", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &NetworkError{Message: fmt.Sprintf("call_api http status %d", resp.StatusCode)}
	}
	if len(respBody) == 0 {
		return nil, &NetworkError{Message: "empty call_api response body"}
	}

	payload, err := decodeFrame(resp.Header.Get("Content-Type"), respBody)
	if err != nil {
		return nil, &NetworkError{Message: "decode call_api response", Err: err}
	}
	return resolveResult(payload)
}

// decodeFrame decodes a frame as MessagePack when contentType indicates
// "application/msgpack", and as JSON otherwise.
func decodeFrame(contentType string, data []byte) (map[string]any, error) {
	var payload map[string]any
	if strings.Contains(contentType, "msgpack") {
		return payload, msgpack.Unmarshal(data, &payload)
	}
	return payload, json.Unmarshal(data, &payload)
}

func resolveResult(payload map[string]any) (map[string]any, error) {
	for _, field := range []string{"status", "retcode", "data", "message"} {
		if _, ok := payload[field]; !ok {
			return nil, &ActionMissingField{Field: field}
		}
	}
	status, _ := payload["status"].(string)
	if status == "failed" {
		retcode, _ := toInt64(payload["retcode"])
		return nil, resolveActionFailed(retcode, payload)
	}
	data, _ := payload["data"].(map[string]any)
	return data, nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}

func withoutKey(m map[string]any, key string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if k != key {
			out[k] = v
		}
	}
	return out
}

// SendOptions controls the optional flags of the send helper.
type SendOptions struct {
	DetailType string
	AtSender   bool
}

// Send synthesizes and issues send_message for an outgoing reply to event.
func (b *Bot) Send(ctx context.Context, event Event, msg message.Message, opts SendOptions) (map[string]any, error) {
	params := map[string]any{}

	userID, hasUser := event.EventUserID()
	groupID, hasGroup := eventGroupID(event)

	detailType := opts.DetailType
	if detailType == "" {
		if hasGroup {
			detailType = "group"
		} else {
			detailType = "private"
		}
	}
	params["detail_type"] = detailType

	switch detailType {
	case "group":
		if !hasGroup {
			return nil, fmt.Errorf("v12: send: event carries no group_id and caller did not override routing")
		}
		params["group_id"] = groupID
	default:
		if !hasUser {
			return nil, fmt.Errorf("v12: send: event carries no user_id and caller did not override routing")
		}
		params["user_id"] = userID
	}

	out := msg
	if opts.AtSender && detailType != "private" && hasUser {
		out = message.Message{Mention(userID)}.Append(out...)
	}

	params["message"] = out
	return b.CallAPI(ctx, "send_message", params)
}

func eventGroupID(event Event) (string, bool) {
	if e, ok := event.(*GroupMessageEvent); ok {
		return e.GroupID, true
	}
	return "", false
}

// AuthBearer is re-exported for handlers outside this package that need to
// parse an Authorization header the same way the connection layer does.
var AuthBearer = wireutil.AuthBearer
