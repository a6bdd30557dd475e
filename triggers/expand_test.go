package triggers

import "testing"

func TestExpandSubstitutesKnownVars(t *testing.T) {
	v := Vars{Nick: "alice", Channel: "#chan", Text: "hello", Me: "munin"}
	got := Expand("{nick} said {text} in {channel} to {me}", v)
	want := "alice said hello in #chan to munin"
	if got != want {
		t.Fatalf("Expand() = %q, want %q", got, want)
	}
}

func TestExpandEscapesDoubleBraces(t *testing.T) {
	got := Expand("literal {{nick}} and {nick}", Vars{Nick: "bob"})
	want := "literal {nick} and bob"
	if got != want {
		t.Fatalf("Expand() = %q, want %q", got, want)
	}
}

func TestExpandUnknownPlaceholderIsEmpty(t *testing.T) {
	got := Expand("[{bogus}]", Vars{})
	if got != "[]" {
		t.Fatalf("Expand() = %q, want %q", got, "[]")
	}
}

func TestExpandPositionalArgTokens(t *testing.T) {
	got := Expand("{1} then {2}", Vars{Args: "first second third"})
	if got != "first then second" {
		t.Fatalf("Expand() = %q", got)
	}
}

func TestExpandUnterminatedBraceKeptLiteral(t *testing.T) {
	got := Expand("trailing {unterminated", Vars{})
	if got != "trailing {unterminated" {
		t.Fatalf("Expand() = %q", got)
	}
}
