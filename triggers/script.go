package triggers

import "github.com/munin-agent/munin/access"

// ScriptContext is what a script-engine bind runs against: the same
// surface a declarative trigger's action has, plus the resolved access
// user for the event's source nick, if any (spec.md section 4.2: "a
// context exposing reply/action/notice/raw/join/part/kick/mode/log and
// a reference to the matched access-user (may be null)").
type ScriptContext struct {
	Event EventIn
	User  *access.User // nil if the nick did not resolve to a known handle
	Sink  ActionSink
}

// ScriptEngine is the binding contract a cross-language scripting
// provider implements to receive events alongside the declarative rule
// engine (spec.md section 4.2). The engine makes no requirement on the
// implementation language; it may be backed by an embedded sandbox, an
// external process, or nothing at all.
type ScriptEngine interface {
	// Load reads and registers a script from path.
	Load(path string) error
	// Unload removes a previously loaded script by name.
	Unload(name string) error
	// Reload re-reads every currently loaded script.
	Reload() error

	// Dispatch is called once per event after the declarative rule pass,
	// for every bind registered against kind. ev carries the context a
	// bind needs to decide whether to act.
	Dispatch(kind EventKind, ev EventIn)
}
