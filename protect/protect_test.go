package protect

import (
	"regexp"
	"testing"
	"time"
)

func TestObserveFiresWhenThresholdCrossed(t *testing.T) {
	e := NewEngine([]*Rule{{
		Name: "flood", Kind: KindMessage, Window: 10 * time.Second,
		Threshold: 3, Scope: ScopePerNick, Action: ActionKick,
	}}, MaskHostOnly, nil)

	base := time.Now()
	hostmask := "alice!a@host.example.com"

	for i := 0; i < 2; i++ {
		reactions := e.Observe("#chan", "alice", hostmask, KindMessage, "spam", base.Add(time.Duration(i)*time.Second))
		if len(reactions) != 0 {
			t.Fatalf("did not expect a reaction before the threshold, got %+v", reactions)
		}
	}

	reactions := e.Observe("#chan", "alice", hostmask, KindMessage, "spam", base.Add(2*time.Second))
	if len(reactions) != 1 {
		t.Fatalf("expected exactly one reaction once threshold crossed, got %d", len(reactions))
	}
	if reactions[0].Action != ActionKick {
		t.Fatalf("expected kick action, got %v", reactions[0].Action)
	}
}

func TestObservePerNickScopeIgnoresOtherNicks(t *testing.T) {
	e := NewEngine([]*Rule{{
		Name: "flood", Kind: KindMessage, Window: 10 * time.Second,
		Threshold: 2, Scope: ScopePerNick, Action: ActionWarn,
	}}, MaskHostOnly, nil)

	base := time.Now()
	e.Observe("#chan", "alice", "alice!a@h1", KindMessage, "hi", base)
	reactions := e.Observe("#chan", "bob", "bob!b@h2", KindMessage, "hi", base.Add(time.Second))

	if len(reactions) != 0 {
		t.Fatal("did not expect bob's single message to trigger alice's per-nick counter")
	}
}

func TestObservePerChannelScopeCountsAcrossNicks(t *testing.T) {
	e := NewEngine([]*Rule{{
		Name: "massjoin", Kind: KindJoin, Window: 10 * time.Second,
		Threshold: 2, Scope: ScopePerChannel, Action: ActionWarn,
	}}, MaskHostOnly, nil)

	base := time.Now()
	e.Observe("#chan", "alice", "alice!a@h1", KindJoin, "", base)
	reactions := e.Observe("#chan", "bob", "bob!b@h2", KindJoin, "", base.Add(time.Second))

	if len(reactions) != 1 {
		t.Fatalf("expected the per-channel scope to count both joins, got %d reactions", len(reactions))
	}
}

func TestObservePatternGatesCounting(t *testing.T) {
	e := NewEngine([]*Rule{{
		Name: "forbidden", Kind: KindMessage, Window: time.Minute,
		Threshold: 1, Scope: ScopePerNick, Action: ActionKickBan,
		Pattern: regexp.MustCompile(`(?i)viagra`),
	}}, MaskHostOnly, nil)

	reactions := e.Observe("#chan", "alice", "alice!a@h1", KindMessage, "hello there", time.Now())
	if len(reactions) != 0 {
		t.Fatal("did not expect a non-matching message to trigger a pattern rule")
	}

	reactions = e.Observe("#chan", "alice", "alice!a@h1", KindMessage, "buy VIAGRA now", time.Now())
	if len(reactions) != 1 {
		t.Fatal("expected a pattern-matching message to trigger the rule")
	}
}

func TestObserveOutsideWindowDoesNotCount(t *testing.T) {
	e := NewEngine([]*Rule{{
		Name: "flood", Kind: KindMessage, Window: 5 * time.Second,
		Threshold: 2, Scope: ScopePerNick, Action: ActionWarn,
	}}, MaskHostOnly, nil)

	base := time.Now()
	e.Observe("#chan", "alice", "alice!a@h1", KindMessage, "hi", base)
	reactions := e.Observe("#chan", "alice", "alice!a@h1", KindMessage, "hi", base.Add(time.Minute))

	if len(reactions) != 0 {
		t.Fatal("did not expect an entry outside the sliding window to count")
	}
}

func TestDeriveBanMaskStyles(t *testing.T) {
	hostmask := "alice!auser@host.example.com"
	cases := []struct {
		style MaskStyle
		want  string
	}{
		{MaskHostOnly, "*!*@host.example.com"},
		{MaskNickOnly, "alice!*@*"},
		{MaskUserOnly, "*!auser@*"},
		{MaskFull, "alice!auser@host.example.com"},
	}
	for _, c := range cases {
		e := NewEngine(nil, c.style, nil)
		if got := e.DeriveBanMask(hostmask); got != c.want {
			t.Fatalf("style %v: DeriveBanMask() = %q, want %q", c.style, got, c.want)
		}
	}
}

func TestDeriveBanMaskMissingUserOrHost(t *testing.T) {
	e := NewEngine(nil, MaskFull, nil)
	if got := e.DeriveBanMask("justnick"); got != "justnick!*@*" {
		t.Fatalf("DeriveBanMask() = %q", got)
	}
}

func TestExpiredBansReturnsAndClears(t *testing.T) {
	e := NewEngine([]*Rule{{
		Name: "flood", Kind: KindMessage, Window: time.Minute,
		Threshold: 1, Scope: ScopePerNick, Action: ActionKickBan, BanTTL: 10 * time.Second,
	}}, MaskHostOnly, nil)

	base := time.Now()
	e.Observe("#chan", "alice", "alice!a@host1", KindMessage, "x", base)

	if expired := e.ExpiredBans("#chan", base.Add(5*time.Second)); len(expired) != 0 {
		t.Fatalf("did not expect the ban to have expired yet, got %+v", expired)
	}

	expired := e.ExpiredBans("#chan", base.Add(11*time.Second))
	if len(expired) != 1 || expired[0] != "*!*@host1" {
		t.Fatalf("expected the host ban to expire, got %+v", expired)
	}

	if expired := e.ExpiredBans("#chan", base.Add(20*time.Second)); len(expired) != 0 {
		t.Fatal("expected ExpiredBans to clear the entry once returned")
	}
}

func TestActiveBansReturnsSnapshot(t *testing.T) {
	e := NewEngine([]*Rule{{
		Name: "flood", Kind: KindMessage, Window: time.Minute,
		Threshold: 1, Scope: ScopePerNick, Action: ActionKickBan, BanTTL: time.Minute,
	}}, MaskHostOnly, nil)

	e.Observe("#chan", "alice", "alice!a@host1", KindMessage, "x", time.Now())

	bans := e.ActiveBans("#chan")
	if len(bans) != 1 {
		t.Fatalf("expected one active ban, got %d", len(bans))
	}
	bans["*!*@injected"] = time.Now()
	if len(e.ActiveBans("#chan")) != 1 {
		t.Fatal("expected ActiveBans to return a defensive copy")
	}
}
