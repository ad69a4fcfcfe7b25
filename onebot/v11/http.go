package v11

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/nonebot/adapter-onebot/internal/resultstore"
)

// HTTPHandler returns the inbound HTTP webhook handler, mounted by callers
// at "/onebot/v11/", "/onebot/v11/http" and "/onebot/v11/http/". Each
// request delivers one event as its JSON body; implementations with no
// outbound transport configure APIRoots so the corresponding Bot can still
// receive calls.
func (a *Adapter) HTTPHandler() http.Handler {
	return http.HandlerFunc(a.handleHTTPPush)
}

func (a *Adapter) handleHTTPPush(w http.ResponseWriter, r *http.Request) {
	selfIDHeader := r.Header.Get("X-Self-ID")
	selfID, err := strconv.ParseInt(selfIDHeader, 10, 64)
	if err != nil {
		http.Error(w, "missing or invalid X-Self-ID", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	// Webhook pushes authenticate by signature only; the access token
	// guards the WebSocket transport.
	if a.config.Secret != "" {
		signature := r.Header.Get("X-Signature")
		if signature == "" {
			http.Error(w, "missing X-Signature", http.StatusUnauthorized)
			return
		}
		if !validSignature(a.config.Secret, body, signature) {
			http.Error(w, "invalid signature", http.StatusForbidden)
			return
		}
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		http.Error(w, "malformed event body", http.StatusBadRequest)
		return
	}

	if _, hasPostType := raw["post_type"]; !hasPostType {
		if seq, ok := resultstore.ParseEcho(raw["echo"]); ok {
			a.results.Deliver(seq, raw)
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	a.mu.Lock()
	bot, ok := a.bots[selfID]
	if !ok {
		bot = newBot(selfID, a)
		a.bots[selfID] = bot
	}
	a.mu.Unlock()

	event, err := a.decodeEvent(bot, raw)
	if err != nil {
		a.logger.Warnf("v11: http push: %v", err)
		http.Error(w, "could not decode event", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusNoContent)

	if !event.EventNoLog() {
		a.logger.Infof("v11: bot %d event %s", selfID, event.EventType())
	}
	if a.handler != nil {
		go a.handler(bot, event)
	}
}

func validSignature(secret string, body []byte, header string) bool {
	const prefix = "sha1="
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return false
	}
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(header[len(prefix):]))
}

