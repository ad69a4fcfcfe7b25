// Package v11 implements the OneBot v11 protocol adapter: the CQ-string
// message codec, event schemas, result correlation, and the connection
// layer (inbound HTTP/WS, outbound reverse-WS).
package v11

import (
	"context"
	"fmt"

	"github.com/nonebot/adapter-onebot/internal/collator"
	"github.com/nonebot/adapter-onebot/onebot/message"
)

// Event is the common interface every v11 event type satisfies.
type Event interface {
	EventPostType() string
	EventTime() int64
	EventSelfID() int64
	EventType() string
	EventUserID() (int64, bool)
	EventSessionID() string
	EventToMe() bool
	EventNoLog() bool
}

// Base carries the fields every v11 event has: the timestamp, the reporting
// bot's self_id, and the post_type discriminator.
type Base struct {
	Time     int64  `json:"time"`
	SelfID   int64  `json:"self_id"`
	PostType string `json:"post_type"`
}

func (b Base) EventPostType() string      { return b.PostType }
func (b Base) EventTime() int64           { return b.Time }
func (b Base) EventSelfID() int64         { return b.SelfID }
func (b Base) EventType() string          { return b.PostType }
func (b Base) EventUserID() (int64, bool) { return 0, false }
func (b Base) EventSessionID() string     { return "" }
func (b Base) EventToMe() bool            { return false }
func (b Base) EventNoLog() bool           { return false }

// Sender describes a message event's originating user, as reported by the
// implementation. Extra fields are preserved by generic round-trip through
// json.RawMessage-free decoding (unknown keys are simply ignored by
// encoding/json, matching the permissive upstream extra="allow" models).
type Sender struct {
	UserID   int64  `json:"user_id,omitempty"`
	Nickname string `json:"nickname,omitempty"`
	Sex      string `json:"sex,omitempty"`
	Age      int    `json:"age,omitempty"`
	Card     string `json:"card,omitempty"`
	Area     string `json:"area,omitempty"`
	Level    string `json:"level,omitempty"`
	Role     string `json:"role,omitempty"`
	Title    string `json:"title,omitempty"`
}

// Reply is populated onto a MessageEvent by the receive pipeline when the
// message begins with a reply segment.
type Reply struct {
	Time        int64           `json:"time"`
	MessageType string          `json:"message_type"`
	MessageID   int32           `json:"message_id"`
	RealID      int32           `json:"real_id"`
	Sender      Sender          `json:"sender"`
	Message     message.Message `json:"message"`
}

// Anonymous describes an anonymous group sender.
type Anonymous struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Flag string `json:"flag"`
}

// MessageEvent is the shared shape of private and group message events.
type MessageEvent struct {
	Base
	SubType         string          `json:"sub_type"`
	UserID          int64           `json:"user_id"`
	MessageID       int32           `json:"message_id"`
	Message         message.Message `json:"message"`
	OriginalMessage message.Message `json:"original_message,omitempty"`
	RawMessage      string          `json:"raw_message"`
	Font            int             `json:"font"`
	Sender          Sender          `json:"sender"`
	ToMe            bool            `json:"to_me"`
	Reply           *Reply          `json:"reply,omitempty"`
	MessageType     string          `json:"message_type"`
}

func (e *MessageEvent) EventType() string          { return e.PostType + "." + e.MessageType + "." + e.SubType }
func (e *MessageEvent) EventUserID() (int64, bool) { return e.UserID, true }
func (e *MessageEvent) EventToMe() bool            { return e.ToMe }

// snapshotOriginal copies Message into OriginalMessage. Called once by the
// decode path so later mutation of Message (by the receive pipeline) does
// not lose the as-received form.
func (e *MessageEvent) snapshotOriginal() {
	e.OriginalMessage = e.Message.Clone()
}

// PrivateMessageEvent is a one-on-one message.
type PrivateMessageEvent struct {
	MessageEvent
}

func (e *PrivateMessageEvent) EventSessionID() string {
	return fmt.Sprintf("private_%d", e.UserID)
}

// GroupMessageEvent is a message sent in a group.
type GroupMessageEvent struct {
	MessageEvent
	GroupID   int64      `json:"group_id"`
	Anonymous *Anonymous `json:"anonymous,omitempty"`
}

func (e *GroupMessageEvent) EventSessionID() string {
	return fmt.Sprintf("group_%d_%d", e.GroupID, e.UserID)
}

// NoticeEventBase is the shared shape of notice events.
type NoticeEventBase struct {
	Base
	NoticeType string `json:"notice_type"`
}

func (e *NoticeEventBase) EventType() string { return e.PostType + "." + e.NoticeType }

type GroupUploadNoticeEvent struct {
	NoticeEventBase
	GroupID int64 `json:"group_id"`
	UserID  int64 `json:"user_id"`
	File    File  `json:"file"`
}

func (e *GroupUploadNoticeEvent) EventUserID() (int64, bool) { return e.UserID, true }
func (e *GroupUploadNoticeEvent) EventSessionID() string {
	return fmt.Sprintf("group_%d_%d", e.GroupID, e.UserID)
}

// File describes an uploaded group file.
type File struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	Busid int64  `json:"busid"`
}

type GroupAdminNoticeEvent struct {
	NoticeEventBase
	SubType string `json:"sub_type"`
	GroupID int64  `json:"group_id"`
	UserID  int64  `json:"user_id"`
}

func (e *GroupAdminNoticeEvent) EventUserID() (int64, bool) { return e.UserID, true }
func (e *GroupAdminNoticeEvent) EventSessionID() string {
	return fmt.Sprintf("group_%d_%d", e.GroupID, e.UserID)
}

type GroupDecreaseNoticeEvent struct {
	NoticeEventBase
	SubType    string `json:"sub_type"`
	GroupID    int64  `json:"group_id"`
	OperatorID int64  `json:"operator_id"`
	UserID     int64  `json:"user_id"`
}

func (e *GroupDecreaseNoticeEvent) EventUserID() (int64, bool) { return e.UserID, true }
func (e *GroupDecreaseNoticeEvent) EventSessionID() string {
	return fmt.Sprintf("group_%d_%d", e.GroupID, e.UserID)
}

type GroupIncreaseNoticeEvent struct {
	NoticeEventBase
	SubType    string `json:"sub_type"`
	GroupID    int64  `json:"group_id"`
	OperatorID int64  `json:"operator_id"`
	UserID     int64  `json:"user_id"`
}

func (e *GroupIncreaseNoticeEvent) EventUserID() (int64, bool) { return e.UserID, true }
func (e *GroupIncreaseNoticeEvent) EventSessionID() string {
	return fmt.Sprintf("group_%d_%d", e.GroupID, e.UserID)
}

type GroupBanNoticeEvent struct {
	NoticeEventBase
	SubType    string `json:"sub_type"`
	GroupID    int64  `json:"group_id"`
	OperatorID int64  `json:"operator_id"`
	UserID     int64  `json:"user_id"`
	Duration   int64  `json:"duration"`
}

func (e *GroupBanNoticeEvent) EventUserID() (int64, bool) { return e.UserID, true }
func (e *GroupBanNoticeEvent) EventSessionID() string {
	return fmt.Sprintf("group_%d_%d", e.GroupID, e.UserID)
}

type FriendAddNoticeEvent struct {
	NoticeEventBase
	UserID int64 `json:"user_id"`
}

func (e *FriendAddNoticeEvent) EventUserID() (int64, bool) { return e.UserID, true }
func (e *FriendAddNoticeEvent) EventSessionID() string     { return fmt.Sprintf("friend_%d", e.UserID) }

type GroupRecallNoticeEvent struct {
	NoticeEventBase
	GroupID    int64 `json:"group_id"`
	UserID     int64 `json:"user_id"`
	OperatorID int64 `json:"operator_id"`
	MessageID  int32 `json:"message_id"`
}

func (e *GroupRecallNoticeEvent) EventUserID() (int64, bool) { return e.UserID, true }
func (e *GroupRecallNoticeEvent) EventSessionID() string {
	return fmt.Sprintf("group_%d_%d", e.GroupID, e.UserID)
}

type FriendRecallNoticeEvent struct {
	NoticeEventBase
	UserID    int64 `json:"user_id"`
	MessageID int32 `json:"message_id"`
}

func (e *FriendRecallNoticeEvent) EventUserID() (int64, bool) { return e.UserID, true }
func (e *FriendRecallNoticeEvent) EventSessionID() string     { return fmt.Sprintf("friend_%d", e.UserID) }

// NotifyEventBase is the shared shape of the "notify" notice subtype family.
type NotifyEventBase struct {
	NoticeEventBase
	SubType string `json:"sub_type"`
	UserID  int64  `json:"user_id"`
	GroupID int64  `json:"group_id"`
}

func (e *NotifyEventBase) EventUserID() (int64, bool) { return e.UserID, true }
func (e *NotifyEventBase) EventSessionID() string {
	return fmt.Sprintf("group_%d_%d", e.GroupID, e.UserID)
}

type PokeNotifyEvent struct {
	NotifyEventBase
	TargetID int64 `json:"target_id"`
}

type LuckyKingNotifyEvent struct {
	NotifyEventBase
	TargetID int64 `json:"target_id"`
}

type HonorNotifyEvent struct {
	NotifyEventBase
	HonorType string `json:"honor_type"`
}

// RequestEventBase is the shared shape of request events.
type RequestEventBase struct {
	Base
	RequestType string `json:"request_type"`
}

func (e *RequestEventBase) EventType() string { return e.PostType + "." + e.RequestType }

type FriendRequestEvent struct {
	RequestEventBase
	UserID  int64  `json:"user_id"`
	Flag    string `json:"flag"`
	Comment string `json:"comment"`
}

func (e *FriendRequestEvent) EventUserID() (int64, bool) { return e.UserID, true }
func (e *FriendRequestEvent) EventSessionID() string     { return fmt.Sprintf("friend_%d", e.UserID) }

// Approve accepts the friend request, optionally setting a remark for the
// new friend.
func (e *FriendRequestEvent) Approve(ctx context.Context, bot *Bot, remark string) error {
	_, err := bot.CallAPI(ctx, "set_friend_add_request", map[string]any{
		"flag":    e.Flag,
		"approve": true,
		"remark":  remark,
	})
	return err
}

// Reject declines the friend request.
func (e *FriendRequestEvent) Reject(ctx context.Context, bot *Bot) error {
	_, err := bot.CallAPI(ctx, "set_friend_add_request", map[string]any{
		"flag":    e.Flag,
		"approve": false,
	})
	return err
}

type GroupRequestEvent struct {
	RequestEventBase
	SubType string `json:"sub_type"`
	GroupID int64  `json:"group_id"`
	UserID  int64  `json:"user_id"`
	Flag    string `json:"flag"`
	Comment string `json:"comment"`
}

func (e *GroupRequestEvent) EventUserID() (int64, bool) { return e.UserID, true }
func (e *GroupRequestEvent) EventSessionID() string {
	return fmt.Sprintf("group_%d_%d", e.GroupID, e.UserID)
}

// Approve accepts the group join request or invite.
func (e *GroupRequestEvent) Approve(ctx context.Context, bot *Bot) error {
	_, err := bot.CallAPI(ctx, "set_group_add_request", map[string]any{
		"flag":     e.Flag,
		"sub_type": e.SubType,
		"approve":  true,
	})
	return err
}

// Reject declines the group join request or invite, optionally giving the
// requester a reason.
func (e *GroupRequestEvent) Reject(ctx context.Context, bot *Bot, reason string) error {
	_, err := bot.CallAPI(ctx, "set_group_add_request", map[string]any{
		"flag":     e.Flag,
		"sub_type": e.SubType,
		"approve":  false,
		"reason":   reason,
	})
	return err
}

// MetaEventBase is the shared shape of meta events; logging of meta events
// is suppressed by default (EventNoLog returns true).
type MetaEventBase struct {
	Base
	MetaEventType string `json:"meta_event_type"`
}

func (e *MetaEventBase) EventType() string { return e.PostType + "." + e.MetaEventType }
func (e *MetaEventBase) EventNoLog() bool  { return true }

type LifecycleMetaEvent struct {
	MetaEventBase
	SubType string `json:"sub_type"`
}

// Status describes the implementation's self-reported health, attached to
// heartbeat meta events.
type Status struct {
	Online bool `json:"online"`
	Good   bool `json:"good"`
}

type HeartbeatMetaEvent struct {
	MetaEventBase
	Status   Status `json:"status"`
	Interval int64  `json:"interval"`
}

// factory builds a new zero-valued pointer to a concrete event type.
type factory func() Event

// schemaEntry pairs a factory with the discriminator literals used to
// register it in the collator below.
type schemaEntry struct {
	keys    [3]string // post_type, message/notice/request/meta_event_type, sub_type
	factory factory
}

var schemas = []schemaEntry{
	{[3]string{"message", "private", ""}, func() Event { return &PrivateMessageEvent{} }},
	{[3]string{"message", "group", ""}, func() Event { return &GroupMessageEvent{} }},
	{[3]string{"notice", "group_upload", ""}, func() Event { return &GroupUploadNoticeEvent{} }},
	{[3]string{"notice", "group_admin", ""}, func() Event { return &GroupAdminNoticeEvent{} }},
	{[3]string{"notice", "group_decrease", ""}, func() Event { return &GroupDecreaseNoticeEvent{} }},
	{[3]string{"notice", "group_increase", ""}, func() Event { return &GroupIncreaseNoticeEvent{} }},
	{[3]string{"notice", "group_ban", ""}, func() Event { return &GroupBanNoticeEvent{} }},
	{[3]string{"notice", "friend_add", ""}, func() Event { return &FriendAddNoticeEvent{} }},
	{[3]string{"notice", "group_recall", ""}, func() Event { return &GroupRecallNoticeEvent{} }},
	{[3]string{"notice", "friend_recall", ""}, func() Event { return &FriendRecallNoticeEvent{} }},
	{[3]string{"notice", "notify", "poke"}, func() Event { return &PokeNotifyEvent{} }},
	{[3]string{"notice", "notify", "lucky_king"}, func() Event { return &LuckyKingNotifyEvent{} }},
	{[3]string{"notice", "notify", "honor"}, func() Event { return &HonorNotifyEvent{} }},
	{[3]string{"request", "friend", ""}, func() Event { return &FriendRequestEvent{} }},
	{[3]string{"request", "group", ""}, func() Event { return &GroupRequestEvent{} }},
	{[3]string{"meta_event", "lifecycle", ""}, func() Event { return &LifecycleMetaEvent{} }},
	{[3]string{"meta_event", "heartbeat", ""}, func() Event { return &HeartbeatMetaEvent{} }},
}

// eventModels is the event registry, built at package init and shared by
// every Adapter in the process: AddCustomModel registers into this same
// tree, matching the upstream add_custom_model classmethod's process-wide
// effect.
var eventModels = collator.New[factory]("OneBot V11", []collator.Specifier{
	collator.Field("post_type"),
	collator.Group("message_type", "notice_type", "request_type", "meta_event_type"),
	collator.Field("sub_type"),
}, nil)

func init() {
	for _, s := range schemas {
		if err := eventModels.Register(s.factory, s.keys[0], s.keys[1], s.keys[2]); err != nil {
			panic(fmt.Sprintf("v11: invalid built-in schema registration: %v", err))
		}
	}
}
