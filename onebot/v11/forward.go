package v11

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var (
	errNoLifecycleConnect = errors.New("v11: first forward frame was not a lifecycle connect meta event")
	errDuplicateSelfID    = errors.New("v11: forward connection's self_id already connected")
)

// StartForward launches a supervision goroutine for each configured
// WSURLs entry: it connects out as a reverse-WS client, reads the first
// frame (which must be a lifecycle-connect meta event carrying self_id),
// registers the bot, and runs the same receive loop as the server path.
// On any termination it waits ReconnectInterval and retries, until ctx is
// cancelled.
func (a *Adapter) StartForward(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	a.cancelForward = cancel
	for _, url := range a.config.WSURLs {
		a.tasks.Add(1)
		go func(url string) {
			defer a.tasks.Done()
			a.superviseForward(ctx, url)
		}(url)
	}
}

// StopForward cancels every outbound supervision goroutine started by
// StartForward.
func (a *Adapter) StopForward() {
	if a.cancelForward != nil {
		a.cancelForward()
	}
}

func (a *Adapter) superviseForward(ctx context.Context, url string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := a.runForwardOnce(ctx, url); err != nil {
			a.logger.Warnf("v11: forward connection to %s ended: %v", url, err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(a.config.ReconnectInterval):
		}
	}
}

func (a *Adapter) runForwardOnce(ctx context.Context, url string) error {
	header := http.Header{}
	if a.config.AccessToken != "" {
		header.Set("Authorization", "Bearer "+a.config.AccessToken)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Unblock the read loop when the supervisor is cancelled: closing the
	// socket is the only way to interrupt a pending ReadMessage.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	_, data, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	selfID, ok := lifecycleConnectSelfID(raw)
	if !ok {
		closeConn(conn, websocket.ClosePolicyViolation, "missing lifecycle connect meta event")
		return errNoLifecycleConnect
	}

	bot := newBot(selfID, a)
	bot.attachConn(conn)
	if !a.botConnectExclusive(bot) {
		closeConn(conn, websocket.ClosePolicyViolation, "Duplicate X-Self-ID")
		return errDuplicateSelfID
	}
	a.logger.Infof("v11: bot %d connected over forward ws to %s", selfID, url)

	a.receiveLoop(bot, conn)

	a.botDisconnect(bot)
	bot.detachConn(conn)
	return nil
}

func lifecycleConnectSelfID(raw map[string]any) (int64, bool) {
	if raw["post_type"] != "meta_event" || raw["meta_event_type"] != "lifecycle" || raw["sub_type"] != "connect" {
		return 0, false
	}
	selfID, ok := raw["self_id"].(float64)
	if !ok {
		return 0, false
	}
	return int64(selfID), true
}
