package supervisor

import (
	"fmt"
	"time"

	"github.com/munin-agent/munin/ctlplane"
	"github.com/munin-agent/munin/ircconn"
)

// SendMessage implements triggers.ActionSink.
func (s *Supervisor) SendMessage(server, target, text string) {
	if c := s.connection(server); c != nil {
		c.SendMessage(target, text)
	}
}

// SendNotice implements triggers.ActionSink.
func (s *Supervisor) SendNotice(server, target, text string) {
	if c := s.connection(server); c != nil {
		c.SendNotice(target, text)
	}
}

// SendAction implements triggers.ActionSink.
func (s *Supervisor) SendAction(server, target, text string) {
	if c := s.connection(server); c != nil {
		c.SendAction(target, text)
	}
}

// SendRaw implements triggers.ActionSink.
func (s *Supervisor) SendRaw(server, line string) {
	if c := s.connection(server); c != nil {
		c.SendRaw(line, ircconn.PriorityNormal)
	}
}

// Join implements triggers.ActionSink.
func (s *Supervisor) Join(server, channel, key string) {
	if c := s.connection(server); c != nil {
		c.Join(channel, key)
	}
}

// Part implements triggers.ActionSink.
func (s *Supervisor) Part(server, channel, reason string) {
	if c := s.connection(server); c != nil {
		c.Part(channel, reason)
	}
}

// Kick implements both triggers.ActionSink and mesh.Sink; the two
// interfaces happen to share this method's exact signature.
func (s *Supervisor) Kick(server, channel, nick, reason string) {
	if c := s.connection(server); c != nil {
		c.Kick(channel, nick, reason)
	}
}

// Ban implements triggers.ActionSink: hostmask is banned with a +b mode
// change; ttl is a duration string ("10m", "1h"); an unparsable or empty
// ttl means a permanent ban.
func (s *Supervisor) Ban(server, channel, hostmask, ttl string) {
	d, _ := time.ParseDuration(ttl)
	s.banMask(server, channel, s.protect.DeriveBanMask(hostmask), d)
}

// banMask applies a +b mode change for mask and, if ttl is positive,
// schedules the matching unban. Shared by the ActionSink.Ban and
// mesh.Sink.Ban entry points (see meshAdapter below), which disagree on
// argument shape (a duration string from trigger templates vs. an
// already-parsed time.Duration off the wire) and so cannot share one
// method name on the same receiver type.
func (s *Supervisor) banMask(server, channel, mask string, ttl time.Duration) {
	c := s.connection(server)
	if c == nil {
		return
	}
	c.SetMode(channel, "+b", mask)
	if ttl > 0 {
		time.AfterFunc(ttl, func() {
			if c := s.connection(server); c != nil {
				c.SetMode(channel, "-b", mask)
			}
		})
	}
}

// Print/Sound/Notify/Log are the local-UI-adjacent ActionSink hooks
// spec.md's out-of-scope list leaves unimplemented; this core logs them
// instead of no-op-ing so an operator can still see them happen.
func (s *Supervisor) Print(text string)         { s.log.Info("trigger print", "text", text) }
func (s *Supervisor) Sound(name string)         { s.log.Info("trigger sound", "name", name) }
func (s *Supervisor) Notify(title, text string) { s.log.Info("trigger notify", "title", title, "text", text) }
func (s *Supervisor) Log(level, text string) {
	switch level {
	case "warn":
		s.log.Warn(text)
	case "error":
		s.log.Error(text)
	default:
		s.log.Info(text)
	}
}

// meshAdapter implements mesh.Sink and mesh.PartylineHandler against a
// Supervisor. It exists only because those two interfaces name methods
// (Ban, Join, Part) that collide in signature with triggers.ActionSink's
// methods of the same name -- Go forbids two methods of the same name on
// one receiver, so the mesh-facing and trigger-facing facades live on
// separate types even though both ultimately act on the same
// Supervisor state.
type meshAdapter struct{ *Supervisor }

// Op implements mesh.Sink: grant the requested nick channel operator
// status (peer-coordinated op request, spec.md section 4.5 type 41).
func (m meshAdapter) Op(server, channel, nick string) {
	if c := m.connection(server); c != nil {
		c.SetMode(channel, "+o", nick)
	}
}

// Ban implements mesh.Sink with an already-parsed TTL off the wire.
func (m meshAdapter) Ban(server, channel, mask string, ttl time.Duration) {
	m.banMask(server, channel, mask, ttl)
}

// Chat implements mesh.PartylineHandler: relay cross-agent partyline
// chat to any connected control-plane session (spec.md: partyline is
// "separate from IRC", so it never touches an ircconn.Connection).
func (m meshAdapter) Chat(fromPeer, fromNick, channel, text string, action bool) {
	if m.ctl == nil {
		return
	}
	verb := "says"
	if action {
		verb = "acts"
	}
	m.ctl.Broadcast(ctlplane.MsgIrcMessage, ctlplane.IRCMessageBody{
		ServerID: "partyline",
		Line:     fmt.Sprintf("<%s/%s %s> %s %s: %s", fromPeer, fromNick, channel, verb, channel, text),
	})
}

// Join/Part implement mesh.PartylineHandler's membership notifications.
func (m meshAdapter) Join(fromPeer, nick, channel, flags string) {
	m.log.Debug("partyline join", "peer", fromPeer, "nick", nick, "channel", channel, "flags", flags)
}
func (m meshAdapter) Part(fromPeer, nick, channel, reason string) {
	m.log.Debug("partyline part", "peer", fromPeer, "nick", nick, "channel", channel, "reason", reason)
}
