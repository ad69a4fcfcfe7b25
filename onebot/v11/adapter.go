package v11

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nonebot/adapter-onebot/internal/identity"
	"github.com/nonebot/adapter-onebot/internal/obs"
	"github.com/nonebot/adapter-onebot/internal/resultstore"
	"github.com/nonebot/adapter-onebot/onebot/v11/cq"
)

// identityOwner tags this protocol version's claims in a shared
// identity.Registry.
const identityOwner = "v11"

// EventHandler receives every decoded event, each on its own goroutine.
type EventHandler func(bot *Bot, event Event)

// Adapter manages the set of connected v11 bots: it owns the inbound
// HTTP/WS endpoints, the outbound reverse-WS client supervisors, and the
// shared pending-call table.
type Adapter struct {
	config  Config
	logger  obs.Logger
	handler EventHandler

	results  *resultstore.Store[uint64]
	identity *identity.Registry

	mu   sync.RWMutex
	bots map[int64]*Bot

	tasks         sync.WaitGroup
	cancelForward context.CancelFunc
}

// joinTimeout bounds how long Shutdown waits for the adapter's spawned
// tasks to finish after cancellation.
const joinTimeout = 10 * time.Second

// Shutdown cancels the outbound reverse-WS supervisors and waits for them
// to exit, giving up after joinTimeout. Connections held by inbound
// handlers are closed by their own server teardown.
func (a *Adapter) Shutdown() {
	a.StopForward()
	done := make(chan struct{})
	go func() {
		a.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(joinTimeout):
		a.logger.Warnf("v11: shutdown: tasks still running after %v, abandoning", joinTimeout)
	}
}

// NewAdapter creates an Adapter. handler is invoked for every decoded event
// from every bot, on a new goroutine per event, so it runs concurrently
// with the connection's receive loop. idRegistry, if non-nil, is shared with a
// sibling v12 Adapter in the same process so that self_id collisions are
// rejected across protocol versions; pass nil to run v11 standalone.
func NewAdapter(config Config, logger obs.Logger, handler EventHandler, idRegistry *identity.Registry) *Adapter {
	if logger == nil {
		logger = obs.DefaultLogger()
	}
	if idRegistry == nil {
		idRegistry = identity.New()
	}
	return &Adapter{
		config:   config,
		logger:   logger,
		handler:  handler,
		results:  resultstore.New[uint64](),
		identity: idRegistry,
		bots:     map[int64]*Bot{},
	}
}

// AddCustomModel registers additional event schemas, taking effect for
// every Adapter in the process (see the eventModels registry comment).
func AddCustomModel(factoryFn func() Event, postType, eventType, subType string) error {
	return eventModels.Register(factory(factoryFn), postType, eventType, subType)
}

// Bot returns the connected bot with the given self_id, if any.
func (a *Adapter) Bot(selfID int64) (*Bot, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	b, ok := a.bots[selfID]
	return b, ok
}

// botConnectExclusive registers bot under its self_id, but only if no bot
// is already registered there; it reports whether registration succeeded.
// A second WebSocket claiming an already-connected self_id is rejected
// rather than replacing the incumbent.
func (a *Adapter) botConnectExclusive(bot *Bot) bool {
	key := strconv.FormatInt(bot.SelfID, 10)
	if !a.identity.Claim(key, identityOwner) {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bots[bot.SelfID] = bot
	return true
}

// botDisconnect removes bot from the registry, but only if it is still the
// currently registered bot for its self_id (a later reconnect may already
// have replaced it).
func (a *Adapter) botDisconnect(bot *Bot) {
	a.mu.Lock()
	if a.bots[bot.SelfID] == bot {
		delete(a.bots, bot.SelfID)
	}
	a.mu.Unlock()
	a.identity.Release(strconv.FormatInt(bot.SelfID, 10), identityOwner)
}

// decodeEvent runs the inbound payload through the full decode pipeline: it
// classifies the payload against the schema registry, decodes into the most
// specific matching concrete type, rewrites a CQ-string message into
// segment-array form for message events, and runs the receive pipeline
// (reply/at-me/nickname checks) before returning the finished Event.
//
// Go's encoding/json does not perform the upstream's try-each-schema-
// until-one-validates structural search: it happily decodes any JSON object
// into any struct, ignoring unknown fields and leaving missing ones at their
// zero value. So instead of trying every candidate schema returned by
// Classify, this always decodes into the first (most specific) one; real
// implementations send payloads that match exactly one schema, so the two
// approaches agree in practice.
func (a *Adapter) decodeEvent(bot *Bot, raw map[string]any) (Event, error) {
	candidates, err := eventModels.Classify(raw)
	if err != nil {
		return nil, fmt.Errorf("v11: classify event: %w", err)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("v11: no event schema matched payload")
	}
	makeEvent := candidates[0]

	rewriteMessageField(raw)

	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("v11: re-marshal event payload: %w", err)
	}

	event := makeEvent()
	if err := json.Unmarshal(buf, event); err != nil {
		return nil, fmt.Errorf("v11: decode event into %T: %w", event, err)
	}

	if me, ok := asMessageEvent(event); ok {
		me.snapshotOriginal()
		bot.runReceivePipeline(me)
	}

	return event, nil
}

// rewriteMessageField mutates raw in place so that, if data["message"] is a
// bare CQ-coded string (v11's string wire form), it becomes the equivalent
// array-of-segment-object form that message.Message.UnmarshalJSON expects.
// This must happen on the raw map, before struct decoding: a custom
// UnmarshalJSON placed on MessageEvent would be promoted to every event type
// that embeds it, short-circuiting decoding of that outer type's own fields
// (GroupID, Anonymous, ...), which Go's method promotion cannot be told not
// to do selectively.
func rewriteMessageField(raw map[string]any) {
	s, ok := raw["message"].(string)
	if !ok {
		return
	}
	segments := cq.Parse(s)
	wire := make([]map[string]any, len(segments))
	for i, seg := range segments {
		data := seg.Data
		if data == nil {
			data = map[string]any{}
		}
		wire[i] = map[string]any{"type": seg.Type, "data": data}
	}
	raw["message"] = wire
}

// asMessageEvent extracts the embedded *MessageEvent from whichever concrete
// message-event type event holds, if any.
func asMessageEvent(event Event) (*MessageEvent, bool) {
	switch e := event.(type) {
	case *PrivateMessageEvent:
		return &e.MessageEvent, true
	case *GroupMessageEvent:
		return &e.MessageEvent, true
	default:
		return nil, false
	}
}
