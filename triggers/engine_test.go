package triggers

import (
	"testing"

	"github.com/munin-agent/munin/access"
	"github.com/munin-agent/munin/ircconn"
)

type recordedSend struct {
	server, target, text string
}

type fakeSink struct {
	messages []recordedSend
	raws     []recordedSend
	joins    []recordedSend
}

func (f *fakeSink) SendMessage(server, target, text string) {
	f.messages = append(f.messages, recordedSend{server, target, text})
}
func (f *fakeSink) SendNotice(server, target, text string) {}
func (f *fakeSink) SendAction(server, target, text string) {}
func (f *fakeSink) SendRaw(server, line string) {
	f.raws = append(f.raws, recordedSend{server, "", line})
}
func (f *fakeSink) Join(server, channel, key string) {
	f.joins = append(f.joins, recordedSend{server, channel, key})
}
func (f *fakeSink) Part(server, channel, reason string)             {}
func (f *fakeSink) Kick(server, channel, nick, reason string)       {}
func (f *fakeSink) Ban(server, channel, hostmask, ttl string)       {}
func (f *fakeSink) Print(text string)                               {}
func (f *fakeSink) Sound(name string)                               {}
func (f *fakeSink) Notify(title, text string)                       {}
func (f *fakeSink) Log(level, text string)                          {}

func TestEvaluateFiresReplyOnMatch(t *testing.T) {
	sink := &fakeSink{}
	e := NewEngine(sink, nil, "munin", nil)
	e.Reload([]*Trigger{{
		On: OnMessage, Match: "hello", Action: ActionReply, Text: "hi {nick}",
	}})

	e.Evaluate(EventIn{Kind: OnMessage, Server: "libera", Channel: "#chan", Nick: "alice", Text: "hello there"})

	if len(sink.messages) != 1 {
		t.Fatalf("expected one message sent, got %d", len(sink.messages))
	}
	if sink.messages[0].text != "hi alice" {
		t.Fatalf("expected expanded text, got %q", sink.messages[0].text)
	}
	if sink.messages[0].target != "#chan" {
		t.Fatalf("expected reply targeted at the channel, got %q", sink.messages[0].target)
	}
}

func TestEvaluateSkipsNonMatchingKind(t *testing.T) {
	sink := &fakeSink{}
	e := NewEngine(sink, nil, "munin", nil)
	e.Reload([]*Trigger{{On: OnJoin, Action: ActionReply, Text: "welcome"}})

	e.Evaluate(EventIn{Kind: OnMessage, Text: "hello"})

	if len(sink.messages) != 0 {
		t.Fatal("did not expect a join-only rule to fire on a message event")
	}
}

func TestEvaluateChannelFilter(t *testing.T) {
	sink := &fakeSink{}
	e := NewEngine(sink, nil, "munin", nil)
	e.Reload([]*Trigger{{On: OnMessage, Channel: "#ops", Action: ActionReply, Text: "x"}})

	e.Evaluate(EventIn{Kind: OnMessage, Channel: "#general", Text: "hi"})
	if len(sink.messages) != 0 {
		t.Fatal("did not expect the rule to fire outside its channel filter")
	}

	e.Evaluate(EventIn{Kind: OnMessage, Channel: "#ops", Text: "hi"})
	if len(sink.messages) != 1 {
		t.Fatal("expected the rule to fire inside its channel filter")
	}
}

func TestEvaluateStopsAtCancel(t *testing.T) {
	sink := &fakeSink{}
	e := NewEngine(sink, nil, "munin", nil)
	e.Reload([]*Trigger{
		{On: OnMessage, Match: "stop", Action: ActionReply, Text: "first", Cancel: true},
		{On: OnMessage, Action: ActionReply, Text: "second"},
	})

	cancelled := e.Evaluate(EventIn{Kind: OnMessage, Text: "stop here"})

	if !cancelled {
		t.Fatal("expected Evaluate to report cancellation")
	}
	if len(sink.messages) != 1 {
		t.Fatalf("expected only the cancelling rule to fire, got %d messages", len(sink.messages))
	}
}

func TestEvaluateReqFlagsDeniesWithoutUser(t *testing.T) {
	sink := &fakeSink{}
	e := NewEngine(sink, nil, "munin", nil)
	e.Reload([]*Trigger{{On: OnMessage, Action: ActionReply, Text: "x", ReqFlags: "o"}})

	e.Evaluate(EventIn{Kind: OnMessage, Nick: "bob", Text: "hi"})

	if len(sink.messages) != 0 {
		t.Fatal("expected ReqFlags rule to be denied with no access database attached")
	}
}

func TestEvaluateReqFlagsGrantsWithFlag(t *testing.T) {
	db := access.New()
	u := access.NewUser("bob")
	u.AddMask("*!*@bob.example.com")
	u.GrantChannel("#chan", "o")
	db.AddUser(u)

	sink := &fakeSink{}
	e := NewEngine(sink, db, "munin", nil)
	e.Reload([]*Trigger{{On: OnMessage, Channel: "#chan", Action: ActionReply, Text: "x", ReqFlags: "o"}})

	e.Evaluate(EventIn{Kind: OnMessage, Channel: "#chan", Nick: "bob!user@bob.example.com", Text: "hi"})

	if len(sink.messages) != 1 {
		t.Fatal("expected the rule to fire once the nick resolves with the required flag")
	}
}

func TestEvaluateCommandStylePrefixAndArgs(t *testing.T) {
	sink := &fakeSink{}
	e := NewEngine(sink, nil, "munin", nil)
	e.Reload([]*Trigger{{On: OnMessage, Match: "!echo", Action: ActionReply, Text: "{args}"}})

	e.Evaluate(EventIn{Kind: OnMessage, Text: "!echo hello world"})

	if len(sink.messages) != 1 || sink.messages[0].text != "hello world" {
		t.Fatalf("expected command args expanded, got %+v", sink.messages)
	}

	sink.messages = nil
	e.Evaluate(EventIn{Kind: OnMessage, Text: "not a command !echo"})
	if len(sink.messages) != 0 {
		t.Fatal("expected command-style match to require the token be first")
	}
}

func TestFilterMatchWildcardAndLiteral(t *testing.T) {
	if !filterMatch("", "anything") {
		t.Fatal("expected empty filter to match anything")
	}
	if !filterMatch("Libera", "libera") {
		t.Fatal("expected literal filter to be case-insensitive")
	}
	if !filterMatch("#ops*", "#ops-team") {
		t.Fatal("expected glob filter to match")
	}
	if filterMatch("#ops*", "#dev-team") {
		t.Fatal("did not expect glob filter to match unrelated value")
	}
}

func TestTextMatchVariants(t *testing.T) {
	cases := []struct {
		name string
		t    *Trigger
		text string
		want bool
	}{
		{"exact match", &Trigger{Match: "hi", MatchType: MatchExact}, "hi", true},
		{"exact mismatch", &Trigger{Match: "hi", MatchType: MatchExact}, "hi there", false},
		{"starts with", &Trigger{Match: "hi", MatchType: MatchStartsWith}, "hi there", true},
		{"ends with", &Trigger{Match: "bye", MatchType: MatchEndsWith}, "say bye", true},
		{"regex", &Trigger{Match: "^h.llo$", MatchType: MatchRegex}, "hello", true},
		{"contains default", &Trigger{Match: "ell"}, "hello", true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := textMatch(c.t, c.text); got != c.want {
				t.Fatalf("textMatch() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestFromConnEventReclassifiesCTCP(t *testing.T) {
	ev := ircconn.Event{Kind: ircconn.EventChannelMessage, Text: "\x01VERSION\x01"}

	in, ok := FromConnEvent(ev)
	if !ok {
		t.Fatal("expected a recognized event")
	}
	if in.Kind != OnCTCP {
		t.Fatalf("expected CTCP to be reclassified, got %v", in.Kind)
	}
	if in.Text != "VERSION" {
		t.Fatalf("expected CTCP delimiters stripped, got %q", in.Text)
	}
}

func TestFromConnEventUnknownKindRejected(t *testing.T) {
	if _, ok := FromConnEvent(ircconn.Event{Kind: ircconn.EventLatencyUpdated}); ok {
		t.Fatal("expected a trigger-irrelevant event kind to be rejected")
	}
}
