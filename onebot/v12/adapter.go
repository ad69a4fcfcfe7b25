package v12

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/nonebot/adapter-onebot/internal/identity"
	"github.com/nonebot/adapter-onebot/internal/obs"
	"github.com/nonebot/adapter-onebot/internal/resultstore"
	"github.com/nonebot/adapter-onebot/internal/wireutil"
	"github.com/nonebot/adapter-onebot/onebot/message"
)

const identityOwner = "v12"

// echoKey identifies a pending call uniquely within the adapter: the v12
// result store is keyed by (self_id, seq) rather than bare seq, since
// several v12 bots can share one adapter and must not cross-deliver
// echoes.
type echoKey struct {
	SelfID string
	Seq    uint64
}

// EventHandler receives every decoded event, each on its own goroutine.
type EventHandler func(bot *Bot, event Event)

// Adapter manages the set of connected v12 bots.
type Adapter struct {
	config  Config
	logger  obs.Logger
	handler EventHandler

	results  *resultstore.Store[echoKey]
	identity *identity.Registry

	mu   sync.RWMutex
	bots map[string]*Bot

	tasks         sync.WaitGroup
	cancelForward context.CancelFunc
}

// joinTimeout bounds how long Shutdown waits for the adapter's spawned
// tasks to finish after cancellation.
const joinTimeout = 10 * time.Second

// Shutdown cancels the outbound reverse-WS supervisors and waits for them
// to exit, giving up after joinTimeout.
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
		a.logger.Warnf("v12: shutdown: tasks still running after %v, abandoning", joinTimeout)
	}
}

// NewAdapter creates an Adapter. idRegistry, if non-nil, is shared with a
// sibling v11 Adapter so that self_id collisions are rejected across
// protocol versions; pass nil to run v12 standalone.
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
		results:  resultstore.New[echoKey](),
		identity: idRegistry,
		bots:     map[string]*Bot{},
	}
}

// Bot returns the connected bot with the given self_id, if any.
func (a *Adapter) Bot(selfID string) (*Bot, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	b, ok := a.bots[selfID]
	return b, ok
}

// botConnectExclusive registers bot, claiming its self_id in the shared
// cross-version identity registry. It reports whether the claim and
// registration succeeded.
func (a *Adapter) botConnectExclusive(bot *Bot) bool {
	if !a.identity.Claim(bot.SelfID, identityOwner) {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bots[bot.SelfID] = bot
	return true
}

// botConnect registers bot, replacing any v12 bot already registered under
// its self_id (used by the HTTP push path and by StatusUpdate
// reconciliation). It reports false, registering nothing, when the self_id
// is claimed by the other protocol version.
func (a *Adapter) botConnect(bot *Bot) bool {
	if owner, exists := a.identity.Owner(bot.SelfID); exists && owner != identityOwner {
		return false
	} else if !exists {
		a.identity.Claim(bot.SelfID, identityOwner)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bots[bot.SelfID] = bot
	return true
}

func (a *Adapter) botDisconnect(bot *Bot) {
	a.mu.Lock()
	if a.bots[bot.SelfID] == bot {
		delete(a.bots, bot.SelfID)
	}
	a.mu.Unlock()
	a.identity.Release(bot.SelfID, identityOwner)
}

// decodeEvent classifies raw against impl/platform-scoped schemas (falling
// back to the global registry), decodes into the most specific concrete
// type, and snapshots the original message for message events.
func (a *Adapter) decodeEvent(impl, platform string, raw map[string]any) (Event, error) {
	raw = wireutil.FlattenToNested(raw).(map[string]any)

	makeEvent, err := classify(impl, platform, raw)
	if err != nil {
		return nil, fmt.Errorf("v12: classify event: %w", err)
	}

	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("v12: re-marshal event payload: %w", err)
	}

	event := makeEvent()
	if err := json.Unmarshal(buf, event); err != nil {
		return nil, fmt.Errorf("v12: decode event into %T: %w", event, err)
	}

	if me, ok := asMessageEvent(event); ok {
		me.snapshotOriginal()
		a.runReceivePipeline(me)
	}
	return event, nil
}

// runReceivePipeline runs the inbound message pipeline on a just-decoded
// message event: reduce, mention-me detection, nickname detection. It is
// the v12 counterpart of the v11 reply/at-me pipeline, over mention
// segments and detail_type instead of at segments and message_type.
func (a *Adapter) runReceivePipeline(me *MessageEvent) {
	me.Message = me.Message.Reduce()
	checkMentionMe(me)
	checkNickname(me, a.config.Nicknames)
}

// checkMentionMe strips a leading mention of the bot itself (plus one
// immediately following self-mention and left-whitespace of the next text
// segment) and sets to_me; failing that, a trailing self-mention (skipping
// one whitespace-only text tail) sets to_me and is dropped. Private
// messages are always to_me.
func checkMentionMe(me *MessageEvent) {
	if me.DetailType == "private" {
		me.ToMe = true
		return
	}
	msg := me.Message
	if me.SelfID == "" || len(msg) == 0 {
		return
	}
	if mentionUserID(msg[0]) == me.SelfID {
		me.ToMe = true
		msg = msg[1:]
		if len(msg) > 0 && mentionUserID(msg[0]) == me.SelfID {
			msg = msg[1:]
		}
		if len(msg) > 0 && msg[0].IsText() {
			msg[0] = message.NewText(strings.TrimLeft(msg[0].Text(), " \t　"))
		}
		me.Message = msg
		return
	}

	last := len(msg) - 1
	if last >= 0 && msg[last].IsText() && strings.TrimSpace(msg[last].Text()) == "" {
		last--
	}
	if last < 0 {
		return
	}
	if mentionUserID(msg[last]) == me.SelfID {
		me.ToMe = true
		me.Message = msg[:last]
	}
}

// mentionUserID returns the mentioned user_id, or "" if seg is not a
// mention segment.
func mentionUserID(seg message.Segment) string {
	if seg.Type != "mention" {
		return ""
	}
	id, _ := seg.Data["user_id"].(string)
	return id
}

var nicknameWS = regexp.MustCompile(`^[\s,，]*`)

// checkNickname sets to_me and strips the matched prefix when the message
// opens with a text segment starting with one of the configured nicknames
// (case-insensitive), at a whitespace/comma boundary.
func checkNickname(me *MessageEvent, nicknames []string) {
	if len(nicknames) == 0 || len(me.Message) == 0 || !me.Message[0].IsText() {
		return
	}
	text := me.Message[0].Text()
	lower := strings.ToLower(text)
	for _, nick := range nicknames {
		if !strings.HasPrefix(lower, strings.ToLower(nick)) {
			continue
		}
		rest := text[len(nick):]
		trimmed := nicknameWS.ReplaceAllString(rest, "")
		if trimmed == rest && rest != "" {
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
