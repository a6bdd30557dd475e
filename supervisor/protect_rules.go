package supervisor

import (
	"time"

	"github.com/munin-agent/munin/protect"
)

// defaultProtectRules returns the baked-in defensive rule set (spec.md
// section 4.3's example thresholds: message flood, mass-join). A future
// on-disk protect-rules document could replace this; until one is
// specified, these defaults keep the protection engine exercised.
func defaultProtectRules() []*protect.Rule {
	return []*protect.Rule{
		{
			Name:      "message-flood",
			Kind:      protect.KindMessage,
			Window:    10 * time.Second,
			Threshold: 8,
			Scope:     protect.ScopePerNick,
			Action:    protect.ActionKick,
		},
		{
			Name:      "mass-join",
			Kind:      protect.KindJoin,
			Window:    5 * time.Second,
			Threshold: 5,
			Scope:     protect.ScopePerChannel,
			Action:    protect.ActionWarn,
		},
	}
}
