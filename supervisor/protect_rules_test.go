package supervisor

import (
	"testing"

	"github.com/munin-agent/munin/protect"
)

func TestDefaultProtectRulesCoverFloodAndMassJoin(t *testing.T) {
	rules := defaultProtectRules()

	var sawFlood, sawMassJoin bool
	for _, r := range rules {
		switch r.Name {
		case "message-flood":
			sawFlood = true
			if r.Kind != protect.KindMessage || r.Scope != protect.ScopePerNick {
				t.Fatalf("unexpected message-flood rule shape: %+v", r)
			}
		case "mass-join":
			sawMassJoin = true
			if r.Kind != protect.KindJoin || r.Scope != protect.ScopePerChannel {
				t.Fatalf("unexpected mass-join rule shape: %+v", r)
			}
		}
	}
	if !sawFlood || !sawMassJoin {
		t.Fatalf("expected both default rules present, got %+v", rules)
	}
}

func TestErrUnknownServerMessage(t *testing.T) {
	err := errUnknownServer("libera")
	if err.Error() != "supervisor: unknown server id libera" {
		t.Fatalf("unexpected error message: %q", err.Error())
	}
}
