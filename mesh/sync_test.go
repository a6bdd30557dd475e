package mesh

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/munin-agent/munin/access"
)

func TestEncodeDecodeUsersRoundTrip(t *testing.T) {
	in := []access.SyncedUser{
		{Handle: "alice", LastModified: time.Now().UTC(), ModifiedBy: "mesh1"},
		{Handle: "bob", LastModified: time.Now().UTC(), ModifiedBy: "mesh1"},
	}

	raw, err := encodeUsers(in)
	if err != nil {
		t.Fatal(err)
	}
	out := decodeUsers(raw)
	if len(out) != len(in) {
		t.Fatalf("expected %d users back, got %d", len(in), len(out))
	}
	if out[0].Handle != "alice" || out[1].Handle != "bob" {
		t.Fatalf("unexpected round-trip result: %+v", out)
	}
}

func TestDecodeUsersSkipsMalformedEntries(t *testing.T) {
	good, err := json.Marshal(access.SyncedUser{Handle: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	raw := []json.RawMessage{good, json.RawMessage(`{not valid json`)}

	out := decodeUsers(raw)
	if len(out) != 1 {
		t.Fatalf("expected malformed entry to be skipped, got %d entries", len(out))
	}
	if out[0].Handle != "alice" {
		t.Fatalf("unexpected survivor: %+v", out[0])
	}
}
