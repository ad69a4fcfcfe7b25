package v11

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nonebot/adapter-onebot/internal/obs"
	"github.com/nonebot/adapter-onebot/onebot/message"
)

// Bot represents one connected OneBot v11 implementation instance. A Bot is
// either WS-connected (conn != nil, supporting both inbound push and
// outbound calls) or HTTP-push-only (conn == nil, outbound calls go through
// APIRoot if configured).
type Bot struct {
	SelfID int64

	// Nicknames, if non-empty, enables nickname-prefix to_me detection on
	// inbound private/group messages (see runReceivePipeline).
	Nicknames []string

	adapter *Adapter
	logger  obs.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	apiRoot    string
	httpClient *http.Client
}

func newBot(selfID int64, adapter *Adapter) *Bot {
	return &Bot{
		SelfID:     selfID,
		Nicknames:  adapter.config.Nicknames,
		adapter:    adapter,
		logger:     adapter.logger,
		apiRoot:    adapter.config.APIRoots[fmt.Sprintf("%d", selfID)],
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
// payload. It prefers a live WebSocket; failing that, it falls back to an
// HTTP POST against the bot's configured API root.
func (b *Bot) CallAPI(ctx context.Context, action string, params map[string]any) (map[string]any, error) {
	timeout := b.adapter.config.APITimeout
	if d, ok := params["_timeout"].(time.Duration); ok {
		timeout = d
		params = withoutKey(params, "_timeout")
	}

	b.mu.Lock()
	conn := b.conn
	root := b.apiRoot
	client := b.httpClient
	b.mu.Unlock()

	if conn != nil {
		return b.callOverWS(ctx, conn, action, params, timeout)
	}
	if root != "" && client != nil {
		return b.callOverHTTP(ctx, client, root, action, params)
	}
	return nil, &ApiNotAvailable{Action: action}
}

func (b *Bot) callOverWS(ctx context.Context, conn *websocket.Conn, action string, params map[string]any, timeout time.Duration) (map[string]any, error) {
	seq := b.adapter.results.NextSeq()
	record := map[string]any{
		"action": action,
		"params": params,
		"echo":   strconv.FormatUint(seq, 10),
	}

	b.mu.Lock()
	err := conn.WriteJSON(record)
	b.mu.Unlock()
	if err != nil {
		return nil, &NetworkError{Message: "write call_api frame", Err: err}
	}

	payload, err := b.adapter.results.AwaitReply(ctx, seq, timeout)
	if err != nil {
		return nil, &NetworkError{Message: "await call_api reply", Err: err}
	}
	return resolveResult(payload)
}

func (b *Bot) callOverHTTP(ctx context.Context, client *http.Client, root, action string, params map[string]any) (map[string]any, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, &NetworkError{Message: "encode call_api body", Err: err}
	}
	url := strings.TrimRight(root, "/") + "/" + action
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &NetworkError{Message: "build call_api request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
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

	var payload map[string]any
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return nil, &NetworkError{Message: "decode call_api response", Err: err}
	}
	return resolveResult(payload)
}

func resolveResult(payload map[string]any) (map[string]any, error) {
	status, _ := payload["status"].(string)
	if status == "failed" {
		retcode, _ := payload["retcode"].(float64)
		wording, _ := payload["wording"].(string)
		return nil, &ActionFailed{Retcode: int64(retcode), Wording: wording}
	}
	data, _ := payload["data"].(map[string]any)
	return data, nil
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

// Send synthesizes and issues send_msg for an outgoing reply to event,
// filling routing fields from the event when the caller omits them.
func (b *Bot) Send(ctx context.Context, event Event, msg message.Message, opts SendOptions) (map[string]any, error) {
	params := map[string]any{}

	userID, hasUser := event.EventUserID()
	groupID, hasGroup := eventGroupID(event)

	msgType := opts.MessageType
	if msgType == "" {
		switch {
		case hasGroup:
			msgType = "group"
		default:
			msgType = "private"
		}
	}
	params["message_type"] = msgType

	switch msgType {
	case "group":
		if !hasGroup {
			return nil, fmt.Errorf("v11: send: event carries no group_id and caller did not override routing")
		}
		params["group_id"] = groupID
	default:
		if !hasUser {
			return nil, fmt.Errorf("v11: send: event carries no user_id and caller did not override routing")
		}
		params["user_id"] = userID
	}

	out := msg
	if opts.ReplyMessage {
		if me, ok := asMessageEvent(event); ok && me.MessageID != 0 {
			out = message.Message{ReplySegment(me.MessageID)}.Append(out...)
		}
	}
	if opts.AtSender && msgType != "private" && hasUser {
		out = message.Message{At(userID)}.Append(out...)
	}

	params["message"] = out
	return b.CallAPI(ctx, "send_msg", params)
}

// SendOptions controls the optional flags of the send helper.
type SendOptions struct {
	MessageType  string
	AtSender     bool
	ReplyMessage bool
}

func eventGroupID(event Event) (int64, bool) {
	switch e := event.(type) {
	case *GroupMessageEvent:
		return e.GroupID, true
	case *GroupUploadNoticeEvent:
		return e.GroupID, true
	case *GroupAdminNoticeEvent:
		return e.GroupID, true
	case *GroupDecreaseNoticeEvent:
		return e.GroupID, true
	case *GroupIncreaseNoticeEvent:
		return e.GroupID, true
	case *GroupBanNoticeEvent:
		return e.GroupID, true
	case *GroupRecallNoticeEvent:
		return e.GroupID, true
	case *PokeNotifyEvent:
		return e.GroupID, true
	case *LuckyKingNotifyEvent:
		return e.GroupID, true
	case *HonorNotifyEvent:
		return e.GroupID, true
	case *GroupRequestEvent:
		return e.GroupID, true
	default:
		return 0, false
	}
}

// runReceivePipeline runs the upstream inbound message pipeline on a
// just-decoded message event, in order: reduce, reply-check, at-me-check,
// nickname-check. It mutates me in place.
func (b *Bot) runReceivePipeline(me *MessageEvent) {
	me.Message = me.Message.Reduce()
	b.checkReply(me)
	checkAtMe(me, b.SelfID)
	checkNickname(me, b.Nicknames)
}

// checkReply implements step (b): if the message opens with a reply
// segment, resolve it via get_msg, populate me.Reply, and strip the leading
// reply/at-sender segments per the upstream trimming rules.
func (b *Bot) checkReply(me *MessageEvent) {
	if len(me.Message) == 0 || me.Message[0].Type != "reply" {
		return
	}
	seg := me.Message[0]
	idStr, _ := seg.Data["id"].(string)
	msgID, err := strconv.Atoi(idStr)
	if err != nil {
		return
	}

	result, err := b.CallAPI(context.Background(), "get_msg", map[string]any{"message_id": msgID})
	if err != nil {
		b.logger.Warnf("v11: get_msg for reply resolution failed: %v", err)
		return
	}
	reply, senderID := replyFromResult(result)
	me.Reply = reply
	if senderID != 0 && senderID == me.SelfID {
		me.ToMe = true
	}

	rest := me.Message[1:]
	if len(rest) > 0 && rest[0].Type == "at" {
		if atTarget, ok := atQQ(rest[0]); ok && atTarget == senderID {
			rest = rest[1:]
		}
	}
	if len(rest) > 0 && rest[0].IsText() {
		rest[0] = message.NewText(strings.TrimLeft(rest[0].Text(), " \t　"))
	}
	if len(rest) == 0 {
		rest = message.Message{message.NewText("")}
	}
	me.Message = rest
}

func replyFromResult(result map[string]any) (*Reply, int64) {
	if result == nil {
		return nil, 0
	}
	buf, err := json.Marshal(result)
	if err != nil {
		return nil, 0
	}
	var r Reply
	if err := json.Unmarshal(buf, &r); err != nil {
		return nil, 0
	}
	return &r, r.Sender.UserID
}

// checkAtMe implements step (c): leading at-self is stripped and sets
// to_me; otherwise a trailing at-self (skipping one trailing whitespace-only
// text segment) sets to_me and is dropped.
func checkAtMe(me *MessageEvent, selfID int64) {
	if me.MessageType == "private" {
		me.ToMe = true
		return
	}
	msg := me.Message
	if len(msg) == 0 {
		return
	}
	if target, ok := atQQ(msg[0]); ok && target == selfID {
		me.ToMe = true
		msg = msg[1:]
		if len(msg) > 0 {
			if t2, ok := atQQ(msg[0]); ok && t2 == selfID {
				msg = msg[1:]
			}
		}
		if len(msg) > 0 && msg[0].IsText() {
			msg[0] = message.NewText(strings.TrimLeft(msg[0].Text(), " \t　"))
		}
		me.Message = msg
		return
	}

	last := len(msg) - 1
	if last >= 0 && msg[last].IsText() && isBlank(msg[last].Text()) {
		last--
	}
	if last < 0 {
		return
	}
	if target, ok := atQQ(msg[last]); ok && target == selfID {
		me.ToMe = true
		me.Message = msg[:last]
	}
}

var nicknameWS = regexp.MustCompile(`^[\s,，]*`)

// checkNickname implements step (d): a leading text segment matching one of
// the configured nicknames (case-insensitive), optionally followed by
// whitespace or a comma, sets to_me and strips the matched prefix.
func checkNickname(me *MessageEvent, nicknames []string) {
	if len(nicknames) == 0 || len(me.Message) == 0 || !me.Message[0].IsText() {
		return
	}
	text := me.Message[0].Text()
	lower := strings.ToLower(text)
	for _, nick := range nicknames {
		nickLower := strings.ToLower(nick)
		if !strings.HasPrefix(lower, nickLower) {
			continue
		}
		rest := text[len(nick):]
		trimmed := nicknameWS.ReplaceAllString(rest, "")
		if trimmed == rest && rest != "" && !strings.ContainsAny(rest[:1], " ,，") {
			continue
		}
		me.ToMe = true
		newMsg := make(message.Message, len(me.Message))
		copy(newMsg, me.Message)
		newMsg[0] = message.NewText(trimmed)
		me.Message = newMsg
		return
	}
}

func atQQ(seg message.Segment) (int64, bool) {
	if seg.Type != "at" {
		return 0, false
	}
	s, _ := seg.Data["qq"].(string)
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
