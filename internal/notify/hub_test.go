package notify

import (
	"testing"

	"go.uber.org/zap"
)

func TestNewHubStartsEmpty(t *testing.T) {
	h := NewHub(zap.NewNop())
	if len(h.sessions) != 0 {
		t.Error("expected no sessions on a fresh hub")
	}
}

func TestSendToUnknownClientIsNoOp(t *testing.T) {
	h := NewHub(zap.NewNop())
	// No sessions registered for "nobody" — Send must not panic.
	h.Send("nobody", []byte(`{"status":"READY"}`))
}
