package metrics

import "testing"

func TestNewServerRejectsNonLoopback(t *testing.T) {
	t.Parallel()

	if _, err := NewServer("8.8.8.8:9090"); err != ErrNotLoopback {
		t.Fatalf("expected ErrNotLoopback, got %v", err)
	}
}

func TestNewServerAcceptsLoopback(t *testing.T) {
	t.Parallel()

	for _, addr := range []string{"127.0.0.1:0", "localhost:0", "[::1]:0"} {
		if _, err := NewServer(addr); err != nil {
			t.Errorf("NewServer(%q): %v", addr, err)
		}
	}
}
