package v11

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestHandleWSServerRejectsDuplicateSelfID(t *testing.T) {
	a := NewAdapter(DefaultConfig(), nil, nil, nil)
	server := httptest.NewServer(a.WSHandler())
	defer server.Close()

	wsURL := "ws" + server.URL[len("http"):]

	dial := func() (*websocket.Conn, *http.Response, error) {
		header := http.Header{"X-Self-ID": []string{"1"}}
		return websocket.DefaultDialer.Dial(wsURL, header)
	}

	first, _, err := dial()
	if err != nil {
		t.Fatalf("first dial: %v", err)
	}
	defer first.Close()

	// Give the server goroutine time to register the first connection.
	time.Sleep(50 * time.Millisecond)

	second, _, err := dial()
	if err != nil {
		t.Fatalf("second dial: %v", err)
	}
	defer second.Close()

	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = second.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("expected a close error, got %v", err)
	}
	if closeErr.Code != websocket.ClosePolicyViolation {
		t.Fatalf("close code = %d, want %d", closeErr.Code, websocket.ClosePolicyViolation)
	}
}

func TestHandleWSServerMissingSelfID(t *testing.T) {
	a := NewAdapter(DefaultConfig(), nil, nil, nil)
	server := httptest.NewServer(a.WSHandler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}
