package v12

import "testing"

func TestClassifyPrivateMessage(t *testing.T) {
	factoryFn, err := classify("", "", map[string]any{
		"type": "message", "detail_type": "private",
	})
	if err != nil {
		t.Fatalf("classify() error = %v", err)
	}
	event := factoryFn()
	if _, ok := event.(*PrivateMessageEvent); !ok {
		t.Fatalf("classify() factory built %T, want *PrivateMessageEvent", event)
	}
}

func TestClassifyFallsBackToGlobalRegistry(t *testing.T) {
	factoryFn, err := classify("mybot", "qq", map[string]any{
		"type": "message", "detail_type": "group",
	})
	if err != nil {
		t.Fatalf("classify() error = %v", err)
	}
	event := factoryFn()
	if _, ok := event.(*GroupMessageEvent); !ok {
		t.Fatalf("classify() factory built %T, want *GroupMessageEvent", event)
	}
}

func TestAddCustomModelScopedToImplPlatform(t *testing.T) {
	type customEvent struct {
		NoticeEvent
		Custom string `json:"custom"`
	}
	if err := AddCustomModel(func() Event { return &customEvent{} }, "mybot", "qq", "notice", "custom", ""); err != nil {
		t.Fatalf("AddCustomModel() error = %v", err)
	}

	matched, err := classify("mybot", "qq", map[string]any{"type": "notice", "detail_type": "custom"})
	if err != nil {
		t.Fatalf("classify() error = %v", err)
	}
	if _, ok := matched().(*customEvent); !ok {
		t.Fatal("scoped registration did not take effect for its own (impl, platform)")
	}

	fallback, err := classify("otherbot", "qq", map[string]any{"type": "notice", "detail_type": "custom"})
	if err != nil {
		t.Fatalf("classify() error = %v", err)
	}
	if _, ok := fallback().(*customEvent); ok {
		t.Fatal("scoped registration leaked into an unrelated (impl, platform) pair")
	}
}

func TestGroupMessageEventSessionID(t *testing.T) {
	e := &GroupMessageEvent{MessageEvent: MessageEvent{UserID: "42"}, GroupID: "7"}
	if got := e.EventSessionID(); got != "group_7_42" {
		t.Fatalf("EventSessionID() = %q, want %q", got, "group_7_42")
	}
}
