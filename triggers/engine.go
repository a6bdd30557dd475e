package triggers

import (
	"time"

	"github.com/inconshreveable/log15"

	"github.com/munin-agent/munin/access"
	"github.com/munin-agent/munin/ircconn"
)

// Engine holds one merged, ordered rule set and evaluates it against
// incoming events (spec.md section 4.2). It is safe to read from
// multiple goroutines once built; rule sets are replaced wholesale by
// Reload rather than mutated in place.
type Engine struct {
	log     log15.Logger
	sink    ActionSink
	users   *access.DB // optional; nil disables ReqFlags gating and {me}-style access lookups
	me      string
	rules   []*Trigger
	scripts []ScriptEngine
}

// NewEngine constructs an Engine with the given action sink and access
// database (users may be nil if no ReqFlags gating is needed).
func NewEngine(sink ActionSink, users *access.DB, me string, log log15.Logger) *Engine {
	if log == nil {
		log = log15.New("pkg", "triggers")
	}
	return &Engine{log: log, sink: sink, users: users, me: me}
}

// Reload replaces the active rule set.
func (e *Engine) Reload(rules []*Trigger) {
	e.rules = rules
}

// Rules returns the currently active rule set, in evaluation order.
func (e *Engine) Rules() []*Trigger {
	return e.rules
}

// RegisterScript attaches a script-engine provider (spec.md section
// 4.2's cross-language scripting binding); events are forwarded to it
// after the declarative rule pass completes, unless a cancel=true rule
// fired.
func (e *Engine) RegisterScript(s ScriptEngine) {
	e.scripts = append(e.scripts, s)
}

// EventIn is the engine-facing projection of an ircconn.Event plus the
// context needed to evaluate filters and build Vars. The supervisor maps
// ircconn.Event -> EventIn once per event via FromConnEvent (see
// Supervisor.handleEvent in supervisor/supervisor.go).
type EventIn struct {
	Kind    EventKind
	Server  string
	Channel string
	Nick    string
	Text    string
	Vars    Vars
}

// Evaluate runs every rule against ev in order, firing actions for each
// match, and stops after the first rule with Cancel=true whose action
// ran (spec.md section 4.2). It returns true if evaluation was
// cancelled (built-in handlers downstream should skip the event).
func (e *Engine) Evaluate(ev EventIn) bool {
	cancelled := false
	for _, t := range e.rules {
		if t.On != ev.Kind {
			continue
		}
		if !filterMatch(t.Server, ev.Server) {
			continue
		}
		if !filterMatch(t.Channel, ev.Channel) {
			continue
		}
		if !filterMatch(t.Nick, ev.Nick) {
			continue
		}
		if !textMatch(t, ev.Text) {
			continue
		}
		if !e.authorized(t, ev) {
			continue
		}

		vars := ev.Vars
		vars.Server, vars.Nick, vars.Channel, vars.Text, vars.Me = ev.Server, ev.Nick, ev.Channel, ev.Text, e.me
		if isCommandPrefix(t.Match) {
			vars.Args = argsAfterCommand(ev.Text)
		}

		e.fire(t, ev, vars)

		if t.Cancel {
			cancelled = true
			break
		}
	}

	if !cancelled {
		for _, s := range e.scripts {
			s.Dispatch(ev.Kind, ev)
		}
	}
	return cancelled
}

// authorized reports whether ev's source nick (resolved via the access
// database by hostmask, if one is attached) satisfies t.ReqFlags. A rule
// with no ReqFlags is always authorized.
func (e *Engine) authorized(t *Trigger, ev EventIn) bool {
	if t.ReqFlags == "" {
		return true
	}
	if e.users == nil {
		return false
	}
	u, ok := e.users.Lookup(ev.Nick)
	if !ok {
		return false
	}
	for _, r := range t.ReqFlags {
		if !u.HasFlag(ev.Channel, r) {
			return false
		}
	}
	return true
}

func (e *Engine) fire(t *Trigger, ev EventIn, vars Vars) {
	run := func() {
		e.run(t, ev, vars)
	}
	if t.Delay == 0 {
		run()
		return
	}
	time.AfterFunc(t.DelayDuration(), run)
}

func (e *Engine) run(t *Trigger, ev EventIn, vars Vars) {
	target := t.Target
	if target == "" {
		if ev.Channel != "" {
			target = ev.Channel
		} else {
			target = ev.Nick
		}
	}
	text := Expand(t.template(), vars)

	switch t.Action {
	case ActionReply:
		e.sink.SendMessage(ev.Server, target, text)
	case ActionSay:
		e.sink.SendMessage(ev.Server, target, text)
	case ActionAction:
		e.sink.SendAction(ev.Server, target, text)
	case ActionNotice:
		e.sink.SendNotice(ev.Server, target, text)
	case ActionRaw:
		e.sink.SendRaw(ev.Server, Expand(t.template(), vars))
	case ActionJoin:
		e.sink.Join(ev.Server, target, Expand(t.Key, vars))
	case ActionPart:
		e.sink.Part(ev.Server, target, text)
	case ActionKick:
		e.sink.Kick(ev.Server, target, ev.Nick, text)
	case ActionBan:
		e.sink.Ban(ev.Server, target, ev.Nick, text)
	case ActionPrint:
		e.sink.Print(text)
	case ActionLog:
		e.sink.Log("info", text)
	case ActionSound:
		e.sink.Sound(text)
	case ActionNotify:
		e.sink.Notify(target, text)
	case ActionCommand:
		e.sink.SendRaw(ev.Server, text)
	default:
		e.log.Warn("trigger fired with unknown action", "action", t.Action, "file", t.file)
	}
}

// FromConnEvent maps an ircconn.Event to the engine's EventIn shape.
// Events with no trigger-relevant kind map to ("", false).
func FromConnEvent(ev ircconn.Event) (EventIn, bool) {
	in := EventIn{Server: ev.Server, Channel: ev.Channel, Nick: ev.Nick, Text: ev.Text}
	in.Vars = Vars{At: ev.Time}

	switch ev.Kind {
	case ircconn.EventChannelMessage:
		in.Kind = OnMessage
		if isCTCP(ev.Text) {
			in.Kind = OnCTCP
			in.Text = stripCTCP(ev.Text)
		}
	case ircconn.EventPrivateMessage:
		in.Kind = OnPrivmsg
		in.Channel = ev.Target
		if isCTCP(ev.Text) {
			in.Kind = OnCTCP
			in.Text = stripCTCP(ev.Text)
		}
	case ircconn.EventNotice:
		in.Kind = OnNotice
	case ircconn.EventJoined:
		in.Kind = OnJoin
	case ircconn.EventParted:
		in.Kind = OnPart
		in.Text = ev.Reason
	case ircconn.EventQuit:
		in.Kind = OnQuit
		in.Text = ev.Reason
	case ircconn.EventNickChanged:
		in.Kind = OnNick
		in.Vars.OldNick = ev.Nick
		in.Vars.NewNick = ev.Target
		in.Nick = ev.Nick
	case ircconn.EventTopicChanged:
		in.Kind = OnTopic
		in.Vars.Topic = ev.Topic
		in.Text = ev.Topic
	case ircconn.EventKicked:
		in.Kind = OnKick
		in.Vars.Kicker = ev.Nick
		in.Vars.Kicked = ev.Target
		in.Vars.Reason = ev.Reason
		in.Text = ev.Reason
	case ircconn.EventModeChanged:
		in.Kind = OnMode
	default:
		return EventIn{}, false
	}
	return in, true
}

// ctcpDelim is the CTCP quoting byte (0x01) IRC messages wrap out-of-band
// commands in, per the CTCP extension teacher's irc/ctcp.go also detects.
const ctcpDelim = "\x01"

func isCTCP(text string) bool {
	return len(text) >= 2 && text[:1] == ctcpDelim && text[len(text)-1:] == ctcpDelim
}

func stripCTCP(text string) string {
	if !isCTCP(text) {
		return text
	}
	return text[1 : len(text)-1]
}
