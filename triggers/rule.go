// Package triggers implements the declarative trigger engine from
// spec.md section 4.2: rule files matched against incoming IRC events,
// variable expansion, cancel semantics, and the cross-language scripting
// binding contract. It generalizes the teacher's dispatch/cmd permission
// gate (ReqLevel/ReqFlags, dispatch/cmd/cmd.go) and dispatch/commander's
// dispatch-loop shape (dispatch/commander/commander.go) from a typed Go
// command table to data-driven rule files.
package triggers

import "time"

// EventKind names the IRC event a Trigger reacts to (spec.md section
// 4.2's "on" field).
type EventKind string

const (
	OnMessage EventKind = "message"
	OnPrivmsg EventKind = "privmsg"
	OnJoin    EventKind = "join"
	OnPart    EventKind = "part"
	OnQuit    EventKind = "quit"
	OnNick    EventKind = "nick"
	OnTopic   EventKind = "topic"
	OnKick    EventKind = "kick"
	OnNotice  EventKind = "notice"
	OnCTCP    EventKind = "ctcp"
	OnInvite  EventKind = "invite"
	OnMode    EventKind = "mode"
	OnInput   EventKind = "input"
)

// MatchType selects how Trigger.Match is compared against event text
// (spec.md section 4.2).
type MatchType string

const (
	MatchContains   MatchType = "contains"
	MatchExact      MatchType = "exact"
	MatchStartsWith MatchType = "starts_with"
	MatchEndsWith   MatchType = "ends_with"
	MatchRegex      MatchType = "regex"
	MatchWildcard   MatchType = "wildcard"
)

// Action names the side-effect a Trigger performs when it matches
// (spec.md section 4.2).
type Action string

const (
	ActionReply   Action = "reply"
	ActionSay     Action = "say"
	ActionAction  Action = "action"
	ActionNotice  Action = "notice"
	ActionRaw     Action = "raw"
	ActionJoin    Action = "join"
	ActionPart    Action = "part"
	ActionKick    Action = "kick"
	ActionBan     Action = "ban"
	ActionPrint   Action = "print"
	ActionLog     Action = "log"
	ActionSound   Action = "sound"
	ActionNotify  Action = "notify"
	ActionCommand Action = "command"
)

// Trigger is one declarative rule, exactly as spec.md section 4.2
// describes it. Rule files decode directly into a slice of these via
// gopkg.in/yaml.v3.
type Trigger struct {
	On EventKind `yaml:"on"`

	Server  string `yaml:"server,omitempty"`
	Channel string `yaml:"channel,omitempty"`
	Nick    string `yaml:"nick,omitempty"`

	Match     string    `yaml:"match,omitempty"`
	MatchType MatchType `yaml:"match_type,omitempty"`

	Action  Action `yaml:"action"`
	Text    string `yaml:"text,omitempty"`
	Message string `yaml:"message,omitempty"`
	Target  string `yaml:"target,omitempty"`
	Key     string `yaml:"key,omitempty"`

	Cancel bool `yaml:"cancel,omitempty"`
	Delay  uint `yaml:"delay,omitempty"` // milliseconds

	// ReqFlags gates the trigger behind an access flag, generalizing the
	// teacher's Cmd.ReqFlags (dispatch/cmd/cmd.go); empty means
	// unrestricted.
	ReqFlags string `yaml:"req_flags,omitempty"`

	// file and index record provenance (source file and declared position
	// within it); set by the loader, not by rule authors. Evaluate does
	// not read them: it runs rules in slice order, which LoadDir builds as
	// file path sort, then declared order within the file.
	file  string
	index int
}

// effectiveMatchType returns MatchContains when MatchType is unset, the
// documented default (spec.md section 4.2).
func (t *Trigger) effectiveMatchType() MatchType {
	if t.MatchType == "" {
		return MatchContains
	}
	return t.MatchType
}

// template returns whichever of Text/Message the rule populated; actions
// name the field differently (say/reply use "text", notice/log use
// "message" in common usage) but both are equivalent expansion
// templates, so the engine does not care which the author used.
func (t *Trigger) template() string {
	if t.Text != "" {
		return t.Text
	}
	return t.Message
}

// DelayDuration returns Delay as a time.Duration.
func (t *Trigger) DelayDuration() time.Duration {
	return time.Duration(t.Delay) * time.Millisecond
}
