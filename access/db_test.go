package access

import (
	"testing"
	"time"
)

func TestAddUserDuplicateRejected(t *testing.T) {
	db := New()
	if err := db.AddUser(NewUser("Alice")); err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	if err := db.AddUser(NewUser("alice")); err != ErrDuplicateHandle {
		t.Fatalf("expected ErrDuplicateHandle, got %v", err)
	}
}

func TestLookupFirstMatchWins(t *testing.T) {
	db := New()
	first := NewUser("first")
	first.AddMask("*!*@example.com")
	second := NewUser("second")
	second.AddMask("*!*@example.com")

	if err := db.AddUser(first); err != nil {
		t.Fatal(err)
	}
	if err := db.AddUser(second); err != nil {
		t.Fatal(err)
	}

	u, ok := db.Lookup("nick!user@example.com")
	if !ok {
		t.Fatal("expected a match")
	}
	if u.Handle != "first" {
		t.Fatalf("expected first to win, got %s", u.Handle)
	}
}

func TestUserWithNoMasksNeverResolves(t *testing.T) {
	db := New()
	if err := db.AddUser(NewUser("ghost")); err != nil {
		t.Fatal(err)
	}
	if _, ok := db.Lookup("ghost!anyone@anywhere"); ok {
		t.Fatal("expected no match for a maskless user")
	}
}

func TestMutateFiresOnChange(t *testing.T) {
	db := New()
	if err := db.AddUser(NewUser("bob")); err != nil {
		t.Fatal(err)
	}

	var gotHandle string
	db.OnChange(func(u *User) {
		if u != nil {
			gotHandle = u.Handle
		}
	})

	if err := db.Mutate("bob", func(u *User) { u.GrantChannel("#chan", "o") }); err != nil {
		t.Fatal(err)
	}
	if gotHandle != "bob" {
		t.Fatalf("expected onChange to fire for bob, got %q", gotHandle)
	}

	got, err := db.Get("bob")
	if err != nil {
		t.Fatal(err)
	}
	if !got.HasFlag("#chan", 'o') {
		t.Fatal("expected grant to stick")
	}
}

func TestRemoveUserPreservesOrder(t *testing.T) {
	db := New()
	db.AddUser(NewUser("a"))
	db.AddUser(NewUser("b"))
	db.AddUser(NewUser("c"))

	if !db.RemoveUser("b") {
		t.Fatal("expected removal to succeed")
	}

	all := db.All()
	if len(all) != 2 || all[0].Handle != "a" || all[1].Handle != "c" {
		t.Fatalf("unexpected order after removal: %+v", all)
	}
}

func TestHasFlagGlobalCascadesToChannel(t *testing.T) {
	u := NewUser("op")
	u.Global = ParseFlags("o")
	if !u.HasFlag("#anychan", 'o') {
		t.Fatal("expected a global flag to cascade to any channel")
	}
	if u.HasFlag("#anychan", 'v') {
		t.Fatal("did not expect an ungranted flag to match")
	}
}

func TestHasFlagPrivilegedSatisfiesAnyCheck(t *testing.T) {
	u := NewUser("owner")
	u.Global = ParseFlags("n")
	if !u.HasFlag("#chan", 'z') {
		t.Fatal("expected owner to satisfy any flag check")
	}
}

func TestShouldReplaceNewerTimestampWins(t *testing.T) {
	now := time.Now().UTC()
	later := now.Add(time.Second)

	if !shouldReplace(now, "peerA", later, "peerA") {
		t.Fatal("expected strictly newer remote to win")
	}
	if shouldReplace(later, "peerA", now, "peerA") {
		t.Fatal("did not expect older remote to win")
	}
}

func TestShouldReplaceTieBreaksOnModifiedBy(t *testing.T) {
	now := time.Now().UTC()
	if !shouldReplace(now, "peerA", now, "peerB") {
		t.Fatal("expected peerB to win tie-break over peerA")
	}
	if shouldReplace(now, "peerB", now, "peerA") {
		t.Fatal("did not expect peerA to win tie-break over peerB")
	}
}

func TestApplySyncIdempotent(t *testing.T) {
	db := New()
	db.AddUser(NewUser("alice"))

	synced := db.ExportSync("mesh1")
	if n := db.ApplySync(synced, true, "mesh1"); n != 0 {
		t.Fatalf("expected re-applying an identical full sync to be a no-op, changed=%d", n)
	}
}

func TestApplySyncFullSyncRemovesMissing(t *testing.T) {
	db := New()
	db.AddUser(NewUser("alice"))
	db.AddUser(NewUser("bob"))

	onlyAlice := []SyncedUser{{Handle: "alice", LastModified: time.Now().UTC(), ModifiedBy: "mesh1"}}
	n := db.ApplySync(onlyAlice, true, "mesh1")
	if n == 0 {
		t.Fatal("expected bob's removal to count as a change")
	}
	if db.Len() != 1 {
		t.Fatalf("expected only alice to remain, len=%d", db.Len())
	}
}
