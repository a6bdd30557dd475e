package access

import "testing"

func TestFlagSetRoundTrip(t *testing.T) {
	fs := ParseFlags("nov")
	if !fs.Has(ParseFlags("no")) {
		t.Fatal("expected fs to carry n and o")
	}
	if fs.HasFlag('x') {
		t.Fatal("did not expect x flag")
	}
	if got := fs.String(); got != "nov" {
		t.Fatalf("String() = %q, want %q", got, "nov")
	}
}

func TestFlagSetSetClear(t *testing.T) {
	var fs FlagSet
	fs = fs.Set("ov")
	if !fs.HasAny(ParseFlags("ovx")) {
		t.Fatal("expected HasAny to match")
	}
	fs = fs.Clear("o")
	if fs.HasFlag('o') {
		t.Fatal("expected o cleared")
	}
	if !fs.HasFlag('v') {
		t.Fatal("expected v to remain")
	}
}

func TestFlagSetIsPrivileged(t *testing.T) {
	if ParseFlags("ov").IsPrivileged() {
		t.Fatal("o+v should not be privileged")
	}
	if !ParseFlags("m").IsPrivileged() {
		t.Fatal("m should be privileged")
	}
	if !ParseFlags("n").IsPrivileged() {
		t.Fatal("n should be privileged")
	}
}

func TestParseFlagsIgnoresUnknown(t *testing.T) {
	fs := ParseFlags("nZq o")
	if got := fs.String(); got != "no" {
		t.Fatalf("String() = %q, want %q", got, "no")
	}
}

func TestIsValidFlag(t *testing.T) {
	if !IsValidFlag('n') {
		t.Fatal("n should be valid")
	}
	if IsValidFlag('z') {
		t.Fatal("z should not be valid")
	}
}
