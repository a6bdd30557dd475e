// Package protect implements per-channel defensive reactions described
// in spec.md section 4.3: a sliding-window event log evaluated against
// configured rules (flood, repeat/caps, mass-join/part, forbidden
// patterns), ban-mask derivation, and tracked ban expiry. The teacher has
// no standalone analogue -- this logic lives informally inside
// bot/core_commands.go's kick/ban handlers -- so this package extracts it
// into its own unit in the teacher's handler style (small, focused
// methods on a per-channel state type, log15 for diagnostics).
package protect

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/inconshreveable/log15"
)

// Scope selects whether a Rule's threshold counts events per-nick or
// across the whole channel (spec.md section 4.3).
type Scope string

const (
	ScopePerNick    Scope = "per_nick"
	ScopePerChannel Scope = "per_channel"
)

// Action is the response a Rule takes once its threshold is crossed.
type Action string

const (
	ActionWarn     Action = "warn"
	ActionKick     Action = "kick"
	ActionKickBan  Action = "kickban"
)

// Kind identifies what a logged event represents, for rules that only
// care about one category (e.g. a flood rule ignoring joins).
type Kind string

const (
	KindMessage Kind = "message"
	KindJoin    Kind = "join"
	KindPart    Kind = "part"
	KindNick    Kind = "nick"
)

// Rule is one configured defensive reaction (spec.md section 4.3).
type Rule struct {
	Name     string
	Kind     Kind
	Window   time.Duration
	Threshold int
	Scope    Scope
	Action   Action
	BanTTL   time.Duration

	// Pattern, if set, additionally requires the event text to match
	// this regex before it counts toward the threshold (used for
	// "forbidden patterns" rules).
	Pattern *regexp.Regexp
}

// logEntry is one observed event in a channel's sliding window.
type logEntry struct {
	at       time.Time
	nick     string
	hostmask string
	kind     Kind
	text     string
}

// MaskStyle selects how a ban mask is derived from an offending hostmask
// (spec.md section 4.3).
type MaskStyle int

const (
	MaskHostOnly   MaskStyle = iota // *!*@host (default)
	MaskNickOnly                    // nick!*@*
	MaskUserOnly                    // *!user@*
	MaskFull                        // nick!user@host
)

// Reaction is what Engine.Observe returns when a rule fires: the caller
// (the supervisor, via an ActionSink much like the triggers package's)
// performs the actual IRC side effect.
type Reaction struct {
	Rule    *Rule
	Nick    string
	Channel string
	Action  Action
	BanMask string
	BanTTL  time.Duration
}

// channelState is the per-channel sliding window and active-ban table.
type channelState struct {
	mu      sync.Mutex
	entries []logEntry
	bans    map[string]time.Time // mask -> expiry
}

// Engine evaluates configured rules against observed channel events,
// one independent sliding window per channel (spec.md section 4.3).
type Engine struct {
	log       log15.Logger
	rules     []*Rule
	maskStyle MaskStyle

	mu       sync.Mutex
	channels map[string]*channelState
}

// NewEngine constructs an Engine with the given rule set and ban-mask
// derivation style.
func NewEngine(rules []*Rule, style MaskStyle, log log15.Logger) *Engine {
	if log == nil {
		log = log15.New("pkg", "protect")
	}
	return &Engine{
		log:       log,
		rules:     rules,
		maskStyle: style,
		channels:  make(map[string]*channelState),
	}
}

func (e *Engine) state(channel string) *channelState {
	e.mu.Lock()
	defer e.mu.Unlock()
	channel = strings.ToLower(channel)
	cs, ok := e.channels[channel]
	if !ok {
		cs = &channelState{bans: make(map[string]time.Time)}
		e.channels[channel] = cs
	}
	return cs
}

// Observe records one event and evaluates every configured rule of the
// matching Kind against the channel's window, returning a Reaction for
// each rule whose in-window count has reached its threshold; a rule fires
// again on every further event while the count stays at or above it.
// Multiple rules may fire from a single Observe call.
func (e *Engine) Observe(channel, nick, hostmask string, kind Kind, text string, at time.Time) []Reaction {
	cs := e.state(channel)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.entries = append(cs.entries, logEntry{at: at, nick: nick, hostmask: hostmask, kind: kind, text: text})

	var reactions []Reaction
	for _, r := range e.rules {
		if r.Kind != kind {
			continue
		}
		if r.Pattern != nil && !r.Pattern.MatchString(text) {
			continue
		}
		cutoff := at.Add(-r.Window)
		count := 0
		for _, ent := range cs.entries {
			if ent.at.Before(cutoff) || ent.kind != kind {
				continue
			}
			if r.Pattern != nil && !r.Pattern.MatchString(ent.text) {
				continue
			}
			if r.Scope == ScopePerNick && !strings.EqualFold(ent.nick, nick) {
				continue
			}
			count++
		}
		if count < r.Threshold {
			continue
		}
		reactions = append(reactions, Reaction{
			Rule:    r,
			Nick:    nick,
			Channel: channel,
			Action:  r.Action,
			BanMask: e.DeriveBanMask(hostmask),
			BanTTL:  r.BanTTL,
		})
		if r.BanTTL > 0 && r.Action == ActionKickBan {
			cs.bans[e.DeriveBanMask(hostmask)] = at.Add(r.BanTTL)
		}
	}

	e.prune(cs, at)
	return reactions
}

// prune drops entries older than the widest configured window, bounding
// the sliding window's memory use.
func (e *Engine) prune(cs *channelState, at time.Time) {
	widest := time.Duration(0)
	for _, r := range e.rules {
		if r.Window > widest {
			widest = r.Window
		}
	}
	if widest == 0 {
		return
	}
	cutoff := at.Add(-widest)
	i := 0
	for i < len(cs.entries) && cs.entries[i].at.Before(cutoff) {
		i++
	}
	cs.entries = cs.entries[i:]
}

// DeriveBanMask builds a ban mask from an observed hostmask per the
// Engine's configured MaskStyle (spec.md section 4.3).
func (e *Engine) DeriveBanMask(hostmask string) string {
	nick, user, host := splitHostmask(hostmask)
	switch e.maskStyle {
	case MaskNickOnly:
		return nick + "!*@*"
	case MaskUserOnly:
		return "*!" + orStar(user) + "@*"
	case MaskFull:
		return nick + "!" + orStar(user) + "@" + orStar(host)
	case MaskHostOnly:
		fallthrough
	default:
		return "*!*@" + orStar(host)
	}
}

func orStar(s string) string {
	if s == "" {
		return "*"
	}
	return s
}

func splitHostmask(hostmask string) (nick, user, host string) {
	bang := strings.IndexByte(hostmask, '!')
	at := strings.IndexByte(hostmask, '@')
	if bang < 0 || at < 0 || at < bang {
		return hostmask, "", ""
	}
	return hostmask[:bang], hostmask[bang+1 : at], hostmask[at+1:]
}

// ExpiredBans returns and clears every ban mask in channel whose TTL has
// elapsed as of at, for the caller to issue an unban for (spec.md
// section 4.3: "on expiry the agent unbans (if it still has ops)").
func (e *Engine) ExpiredBans(channel string, at time.Time) []string {
	cs := e.state(channel)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	var expired []string
	for mask, expiry := range cs.bans {
		if !at.Before(expiry) {
			expired = append(expired, mask)
			delete(cs.bans, mask)
		}
	}
	return expired
}

// ActiveBans returns every mask currently tracked as banned in channel,
// for inspection (control-plane GetChannels, etc.).
func (e *Engine) ActiveBans(channel string) map[string]time.Time {
	cs := e.state(channel)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make(map[string]time.Time, len(cs.bans))
	for k, v := range cs.bans {
		out[k] = v
	}
	return out
}
