package v12

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var errForwardMissingConnect = errors.New("v12: first forward frame was not a connect meta event")

// StartForward launches a supervision goroutine for each configured
// WSURLs entry: it connects out as a reverse-WS client, reads the
// required connect meta event, and runs the same session loop as the
// inbound server path. On any termination it waits ReconnectInterval and
// retries, until ctx is cancelled.
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
			a.logger.Warnf("v12: forward connection to %s ended: %v", url, err)
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

	// Unblock the session loop when the supervisor is cancelled: closing
	// the socket is the only way to interrupt a pending ReadMessage.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	connect, err := readConnectFrame(conn)
	if err != nil {
		closeConn(conn, websocket.ClosePolicyViolation, "Missing connect meta event")
		return errForwardMissingConnect
	}

	session := &wsSession{adapter: a, conn: conn, impl: connect.Version.Impl, platform: connect.Platform, owned: map[string]*Bot{}}
	a.logger.Infof("v12: forward session connected to %s, impl=%s platform=%s", url, session.impl, session.platform)

	session.run()
	session.disconnectAll()
	return nil
}
