package ircconn

import (
	"strings"
	"sync"

	"github.com/munin-agent/munin/ircmsg"
)

// roomState is the per-Connection room/user model: the set of joined
// channels and their memberships, updated exclusively by the reader task
// (spec.md section 5: "mutation is confined to the reader task").
type roomState struct {
	mu       sync.RWMutex
	is       *ISupport
	self     string // current nick
	channels map[string]*Channel // keyed by casemap-folded name
}

func newRoomState(is *ISupport) *roomState {
	return &roomState{
		is:       is,
		channels: make(map[string]*Channel),
	}
}

func (r *roomState) fold(s string) string { return r.is.Casemap.Fold(s) }

// Channel returns the channel by name, or nil if not joined/tracked.
func (r *roomState) Channel(name string) *Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.channels[r.fold(name)]
}

// Channels returns a snapshot of tracked channels.
func (r *roomState) Channels() []*Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Channel, 0, len(r.channels))
	for _, c := range r.channels {
		out = append(out, c)
	}
	return out
}

func (r *roomState) getOrCreateChannel(name string) *Channel {
	key := r.fold(name)
	ch, ok := r.channels[key]
	if !ok {
		ch = newChannel(name)
		r.channels[key] = ch
	}
	return ch
}

func (r *roomState) setSelf(nick string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.self = r.fold(nick)
}

func (r *roomState) isSelf(nick string) bool {
	return r.fold(nick) == r.self
}

// handleJoin applies a JOIN message: self-joins create the Channel;
// others' joins add a membership record (spec.md section 4.1).
func (r *roomState) handleJoin(msg *ircmsg.Message) {
	if len(msg.Params) == 0 {
		return
	}
	chanName := msg.Params[0]
	nick, user, host := ircmsg.Host(msg.Prefix).Split()
	if nick == "" {
		nick = msg.Prefix
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ch := r.getOrCreateChannel(chanName)
	if r.isSelf(nick) {
		ch.Joined = true
	}

	ch.mu.Lock()
	ch.users[r.fold(nick)] = &ChannelUser{Nick: nick, Username: user, Host: host, Modes: make(map[rune]bool)}
	ch.mu.Unlock()
}

// handlePart removes the leaving user; a self-part drops channel tracking
// entirely.
func (r *roomState) handlePart(msg *ircmsg.Message) {
	if len(msg.Params) == 0 {
		return
	}
	chanName := msg.Params[0]
	nick := ircmsg.Host(msg.Prefix).Nick()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isSelf(nick) {
		delete(r.channels, r.fold(chanName))
		return
	}
	if ch, ok := r.channels[r.fold(chanName)]; ok {
		ch.mu.Lock()
		delete(ch.users, r.fold(nick))
		ch.mu.Unlock()
	}
}

// handleKick removes the kicked nick from the channel; self-kick drops
// tracking for that channel.
func (r *roomState) handleKick(msg *ircmsg.Message) {
	if len(msg.Params) < 2 {
		return
	}
	chanName, kicked := msg.Params[0], msg.Params[1]

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isSelf(kicked) {
		delete(r.channels, r.fold(chanName))
		return
	}
	if ch, ok := r.channels[r.fold(chanName)]; ok {
		ch.mu.Lock()
		delete(ch.users, r.fold(kicked))
		ch.mu.Unlock()
	}
}

// handleQuit removes the quitting user from every tracked channel.
func (r *roomState) handleQuit(msg *ircmsg.Message) {
	nick := ircmsg.Host(msg.Prefix).Nick()
	if nick == "" {
		return
	}
	folded := r.fold(nick)

	r.mu.RLock()
	channels := make([]*Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		channels = append(channels, ch)
	}
	r.mu.RUnlock()

	for _, ch := range channels {
		ch.mu.Lock()
		delete(ch.users, folded)
		ch.mu.Unlock()
	}
}

// handleNick renames a user across every channel they're present in.
func (r *roomState) handleNick(msg *ircmsg.Message) {
	if len(msg.Params) == 0 {
		return
	}
	oldNick := ircmsg.Host(msg.Prefix).Nick()
	newNick := msg.Params[0]
	if oldNick == "" {
		return
	}

	r.mu.Lock()
	if r.isSelf(oldNick) {
		r.self = r.fold(newNick)
	}
	channels := make([]*Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		channels = append(channels, ch)
	}
	r.mu.Unlock()

	oldFolded, newFolded := r.fold(oldNick), r.fold(newNick)
	for _, ch := range channels {
		ch.mu.Lock()
		if u, ok := ch.users[oldFolded]; ok {
			u.Nick = newNick
			delete(ch.users, oldFolded)
			ch.users[newFolded] = u
		}
		ch.mu.Unlock()
	}
}

// handleMode applies a MODE message either to a channel (categorized by
// CHANMODES) or, if the target is a user, is otherwise ignored here (user
// modes are out of scope for the room model; only channel prefix changes
// on members are tracked).
func (r *roomState) handleMode(msg *ircmsg.Message) {
	if len(msg.Params) == 0 {
		return
	}
	target := msg.Params[0]
	if !ircmsg.IsChannel(target, r.is.ChanTypes) {
		return
	}

	r.mu.RLock()
	ch, ok := r.channels[r.fold(target)]
	r.mu.RUnlock()
	if !ok {
		return
	}

	changes := ch.applyModeString(r.is, msg.Params[1:])
	for _, c := range changes {
		ch.mu.Lock()
		if u, ok := ch.users[r.fold(c.Nick)]; ok {
			if u.Modes == nil {
				u.Modes = make(map[rune]bool)
			}
			if c.Adding {
				u.Modes[c.Mode] = true
			} else {
				delete(u.Modes, c.Mode)
			}
		}
		ch.mu.Unlock()
	}
}

// handleTopic applies a live TOPIC change.
func (r *roomState) handleTopic(msg *ircmsg.Message) {
	if len(msg.Params) < 2 {
		return
	}
	chanName, topic := msg.Params[0], msg.Params[1]
	setter := ircmsg.Host(msg.Prefix).Nick()
	if setter == "" {
		setter = msg.Prefix
	}

	r.mu.RLock()
	ch, ok := r.channels[r.fold(chanName)]
	r.mu.RUnlock()
	if !ok {
		return
	}
	ch.mu.Lock()
	ch.Topic = topic
	ch.TopicSetter = setter
	ch.mu.Unlock()
}

// handleNamesLine accumulates a 353 (RPL_NAMREPLY) line into the
// channel's pending membership buffer; handleNamesEnd (366) commits it.
func (r *roomState) handleNamesLine(msg *ircmsg.Message) {
	if len(msg.Params) < 4 {
		return
	}
	chanName := msg.Params[2]
	names := strings.Fields(msg.Params[3])

	r.mu.Lock()
	ch := r.getOrCreateChannel(chanName)
	r.mu.Unlock()

	ch.mu.Lock()
	if ch.namesBuf == nil {
		ch.namesBuf = make(map[string]*ChannelUser)
	}
	for _, raw := range names {
		nick, modes := splitPrefixes(raw, r.is)
		u := &ChannelUser{Nick: nick, Modes: modes}
		ch.namesBuf[r.fold(nick)] = u
	}
	ch.mu.Unlock()
}

// handleNamesEnd (366) commits the accumulated namesBuf as the channel's
// membership.
func (r *roomState) handleNamesEnd(msg *ircmsg.Message) {
	if len(msg.Params) < 2 {
		return
	}
	chanName := msg.Params[1]

	r.mu.RLock()
	ch, ok := r.channels[r.fold(chanName)]
	r.mu.RUnlock()
	if !ok {
		return
	}

	ch.mu.Lock()
	if ch.namesBuf != nil {
		ch.users = ch.namesBuf
		ch.namesBuf = nil
	}
	ch.mu.Unlock()
}

// splitPrefixes strips one or more leading prefix symbols (multi-prefix
// aware) from a NAMES entry and returns the bare nick plus the modes
// those symbols imply.
func splitPrefixes(raw string, is *ISupport) (nick string, modes map[rune]bool) {
	modes = make(map[rune]bool)
	i := 0
	for i < len(raw) {
		mode, ok := is.ModeForSymbol(rune(raw[i]))
		if !ok {
			break
		}
		modes[mode] = true
		i++
	}
	return raw[i:], modes
}
