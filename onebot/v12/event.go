// Package v12 implements the OneBot v12 protocol adapter: JSON/MsgPack
// wire codec, event schemas, result correlation, and the connection layer
// (inbound HTTP/WS, outbound reverse-WS).
package v12

import (
	"fmt"
	"sync"

	"github.com/nonebot/adapter-onebot/internal/collator"
	"github.com/nonebot/adapter-onebot/onebot/message"
)

// Event is the common interface every v12 event type satisfies.
type Event interface {
	EventID() string
	EventImpl() string
	EventPlatform() string
	EventSelfID() string
	EventTime() float64
	EventType() string
	EventUserID() (string, bool)
	EventSessionID() string
	EventToMe() bool
	EventNoLog() bool
}

// Base carries the fields every v12 event has.
type Base struct {
	ID         string  `json:"id"`
	Impl       string  `json:"impl"`
	Platform   string  `json:"platform"`
	SelfID     string  `json:"self_id"`
	Time       float64 `json:"time"`
	Type       string  `json:"type"`
	DetailType string  `json:"detail_type"`
	SubType    string  `json:"sub_type"`
}

func (b Base) EventID() string             { return b.ID }
func (b Base) EventImpl() string           { return b.Impl }
func (b Base) EventPlatform() string       { return b.Platform }
func (b Base) EventSelfID() string         { return b.SelfID }
func (b Base) EventTime() float64          { return b.Time }
func (b Base) EventType() string           { return b.Type }
func (b Base) EventUserID() (string, bool) { return "", false }
func (b Base) EventSessionID() string      { return "" }
func (b Base) EventToMe() bool             { return false }
func (b Base) EventNoLog() bool            { return false }

func typeKey(b Base) string {
	k := b.Type
	if b.DetailType != "" {
		k += "." + b.DetailType
	}
	if b.SubType != "" {
		k += "." + b.SubType
	}
	return k
}

// MessageEvent is the shared shape of private and group message events.
type MessageEvent struct {
	Base
	MessageID       string          `json:"message_id"`
	Message         message.Message `json:"message"`
	OriginalMessage message.Message `json:"original_message,omitempty"`
	AltMessage      string          `json:"alt_message"`
	UserID          string          `json:"user_id"`
	ToMe            bool            `json:"to_me"`
}

func (e *MessageEvent) EventType() string           { return typeKey(e.Base) }
func (e *MessageEvent) EventUserID() (string, bool) { return e.UserID, e.UserID != "" }
func (e *MessageEvent) EventToMe() bool             { return e.ToMe }
func (e *MessageEvent) EventSessionID() string      { return e.UserID }

func (e *MessageEvent) snapshotOriginal() {
	e.OriginalMessage = e.Message.Clone()
}

// PrivateMessageEvent is a one-on-one message.
type PrivateMessageEvent struct {
	MessageEvent
}

// GroupMessageEvent is a message sent in a group.
type GroupMessageEvent struct {
	MessageEvent
	GroupID string `json:"group_id"`
}

func (e *GroupMessageEvent) EventSessionID() string {
	return fmt.Sprintf("group_%s_%s", e.GroupID, e.UserID)
}

// NoticeEvent is the base stub for notice-family events; the upstream
// source defines no concrete v12 notice subtypes, so only the base is
// modeled, matching the distillation this is carried through from.
type NoticeEvent struct {
	Base
}

func (e *NoticeEvent) EventType() string { return typeKey(e.Base) }

// RequestEvent is the base stub for request-family events, for the same
// reason as NoticeEvent.
type RequestEvent struct {
	Base
}

func (e *RequestEvent) EventType() string { return typeKey(e.Base) }

// MetaEvent is the base of framework-level events; logging is suppressed by
// default.
type MetaEvent struct {
	Base
}

func (e *MetaEvent) EventType() string { return typeKey(e.Base) }
func (e *MetaEvent) EventNoLog() bool  { return true }

// HeartbeatMetaEvent reports implementation health on a fixed interval.
type HeartbeatMetaEvent struct {
	MetaEvent
	Interval int64 `json:"interval"`
}

// ConnectVersion identifies the implementation and OneBot version carried
// by a ConnectMetaEvent.
type ConnectVersion struct {
	Impl    string `json:"impl"`
	Version string `json:"version"`
}

// ConnectMetaEvent is the required first frame of an inbound or outbound
// v12 WebSocket session.
type ConnectMetaEvent struct {
	MetaEvent
	Version ConnectVersion `json:"version"`
}

// BotStatus reports one bot's connectivity within a StatusUpdateMetaEvent.
type BotStatus struct {
	SelfID string `json:"self_id"`
	Online bool   `json:"online"`
}

// Status is the implementation-wide health record carried by
// StatusUpdateMetaEvent.
type Status struct {
	Good bool        `json:"good"`
	Bots []BotStatus `json:"bots"`
}

// StatusUpdateMetaEvent drives bot-set reconciliation: bots named in
// Status.Bots as online are connected, and those listed offline are
// disconnected. On the HTTP push path, bots no longer listed are
// disconnected too; a WebSocket session keeps unlisted bots it owns.
type StatusUpdateMetaEvent struct {
	MetaEvent
	Status Status `json:"status"`
}

// factory builds a new zero-valued pointer to a concrete event type.
type factory func() Event

type schemaEntry struct {
	keys    [3]string // type, detail_type, sub_type
	factory factory
}

var schemas = []schemaEntry{
	{[3]string{"message", "private", ""}, func() Event { return &PrivateMessageEvent{} }},
	{[3]string{"message", "group", ""}, func() Event { return &GroupMessageEvent{} }},
	{[3]string{"notice", "", ""}, func() Event { return &NoticeEvent{} }},
	{[3]string{"request", "", ""}, func() Event { return &RequestEvent{} }},
	{[3]string{"meta", "heartbeat", ""}, func() Event { return &HeartbeatMetaEvent{} }},
	{[3]string{"meta", "connect", ""}, func() Event { return &ConnectMetaEvent{} }},
	{[3]string{"meta", "status_update", ""}, func() Event { return &StatusUpdateMetaEvent{} }},
}

func newRegistry() *collator.Collator[factory] {
	reg := collator.New[factory]("OneBot V12", []collator.Specifier{
		collator.Field("type"),
		collator.Field("detail_type"),
		collator.Field("sub_type"),
	}, nil)
	for _, s := range schemas {
		if err := reg.Register(s.factory, s.keys[0], s.keys[1], s.keys[2]); err != nil {
			panic(fmt.Sprintf("v12: invalid built-in schema registration: %v", err))
		}
	}
	return reg
}

// globalRegistryKey addresses the implementation/platform-agnostic
// fallback registry consulted when no (impl, platform)-specific registry
// exists, or the specific one has no match.
const globalRegistryKey = ""

// registries holds one Collator per (impl, platform) pair, plus the global
// fallback under globalRegistryKey. Registration after startup is rare and
// goes through AddCustomModel, which takes registriesMu.
var (
	registries   = map[string]*collator.Collator[factory]{globalRegistryKey: newRegistry()}
	registriesMu sync.RWMutex
)

func registryKey(impl, platform string) string {
	if impl == "" && platform == "" {
		return globalRegistryKey
	}
	return impl + "/" + platform
}

// AddCustomModel registers an additional event schema. impl and platform
// scope the registration to implementations reporting that
// (impl, platform) pair; pass "", "" to register into the global registry
// consulted as a fallback by every bot.
func AddCustomModel(factoryFn func() Event, impl, platform, typ, detailType, subType string) error {
	key := registryKey(impl, platform)
	registriesMu.Lock()
	reg, ok := registries[key]
	if !ok {
		reg = collator.New[factory]("OneBot V12/"+key, []collator.Specifier{
			collator.Field("type"),
			collator.Field("detail_type"),
			collator.Field("sub_type"),
		}, nil)
		registries[key] = reg
	}
	registriesMu.Unlock()
	return reg.Register(factory(factoryFn), typ, detailType, subType)
}

// classify resolves raw to the most specific matching factory, consulting
// the (impl, platform)-specific registry before the global one.
func classify(impl, platform string, raw map[string]any) (factory, error) {
	registriesMu.RLock()
	specific, hasSpecific := registries[registryKey(impl, platform)]
	global := registries[globalRegistryKey]
	registriesMu.RUnlock()

	if hasSpecific {
		if candidates, err := specific.Classify(raw); err == nil && len(candidates) > 0 {
			return candidates[0], nil
		}
	}
	candidates, err := global.Classify(raw)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("v12: no event schema matched payload")
	}
	return candidates[0], nil
}
