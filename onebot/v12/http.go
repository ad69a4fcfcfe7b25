package v12

import (
	"io"
	"net/http"

	"github.com/nonebot/adapter-onebot/internal/wireutil"
)

// HTTPHandler returns the inbound HTTP webhook handler, mounted by callers
// at "/onebot/v12/", "/onebot/v12/http" and "/onebot/v12/http/".
func (a *Adapter) HTTPHandler() http.Handler {
	return http.HandlerFunc(a.handleHTTPPush)
}

func (a *Adapter) handleHTTPPush(w http.ResponseWriter, r *http.Request) {
	impl := r.Header.Get("X-Impl")
	if impl == "" {
		http.Error(w, "missing X-Impl header", http.StatusBadRequest)
		return
	}

	if a.config.AccessToken != "" {
		token := wireutil.AuthBearer(r.Header.Get("Authorization"))
		if token == "" {
			token = r.URL.Query().Get("access_token")
		}
		if token != a.config.AccessToken {
			http.Error(w, "invalid access token", http.StatusForbidden)
			return
		}
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	payload, err := decodeFrame(r.Header.Get("Content-Type"), body)
	if err != nil {
		http.Error(w, "malformed event body", http.StatusBadRequest)
		return
	}

	platform, _ := payload["platform"].(string)
	event, err := a.decodeEvent(impl, platform, payload)
	if err != nil {
		a.logger.Warnf("v12: http push: %v", err)
		http.Error(w, "could not decode event", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusNoContent)
	a.dispatchInbound(event, impl, platform)
}

// dispatchInbound routes a decoded event: StatusUpdate reconciles the bot
// set, other meta events broadcast to every connected bot, and ordinary
// events connect their originating bot on demand before dispatch.
func (a *Adapter) dispatchInbound(event Event, impl, platform string) {
	switch ev := event.(type) {
	case *StatusUpdateMetaEvent:
		a.reconcileStatus(ev, impl, platform)
		return
	case *MetaEvent, *HeartbeatMetaEvent, *ConnectMetaEvent:
		a.broadcast(event)
		return
	}

	bot, _ := a.Bot(event.EventSelfID())
	if bot == nil {
		bot = newBot(event.EventSelfID(), impl, platform, a)
		if !a.botConnect(bot) {
			a.logger.Warnf("v12: self_id %s owned by another protocol version, dropping event", bot.SelfID)
			return
		}
		a.logger.Infof("v12: bot %s connected on demand", bot.SelfID)
	}
	a.dispatch(bot, event)
}

func (a *Adapter) dispatch(bot *Bot, event Event) {
	if !event.EventNoLog() {
		a.logger.Infof("v12: bot %s event %s", bot.SelfID, event.EventType())
	}
	if a.handler != nil {
		go a.handler(bot, event)
	}
}

func (a *Adapter) broadcast(event Event) {
	a.mu.RLock()
	bots := make([]*Bot, 0, len(a.bots))
	for _, b := range a.bots {
		bots = append(bots, b)
	}
	a.mu.RUnlock()
	for _, bot := range bots {
		a.dispatch(bot, event)
	}
}

// reconcileStatus connects every bot listed online in status and
// disconnects any currently-registered bot not listed as online.
func (a *Adapter) reconcileStatus(ev *StatusUpdateMetaEvent, impl, platform string) {
	online := map[string]bool{}
	for _, bs := range ev.Status.Bots {
		online[bs.SelfID] = bs.Online
	}

	a.mu.RLock()
	existing := make([]*Bot, 0, len(a.bots))
	for _, b := range a.bots {
		existing = append(existing, b)
	}
	a.mu.RUnlock()

	for _, b := range existing {
		if !online[b.SelfID] {
			a.botDisconnect(b)
			a.logger.Infof("v12: bot %s disconnected by status update", b.SelfID)
		}
	}

	for selfID, isOnline := range online {
		if !isOnline {
			continue
		}
		if _, ok := a.Bot(selfID); ok {
			continue
		}
		bot := newBot(selfID, impl, platform, a)
		if a.botConnect(bot) {
			a.logger.Infof("v12: bot %s connected by status update", selfID)
		}
	}
}
