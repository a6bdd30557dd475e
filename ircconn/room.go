package ircconn

import (
	"strings"
	"sync"
	"time"
)

// ChannelUser is a single nick's membership record within a Channel
// (spec.md section 3, "Channel User").
type ChannelUser struct {
	Nick     string
	Username string
	Host     string
	Account  string
	Modes    map[rune]bool
	Away     bool
}

// HighestPrefix returns the display symbol for the highest prefix mode
// this user holds in the channel, given the connection's ISUPPORT.
func (u *ChannelUser) HighestPrefix(is *ISupport) rune {
	return is.HighestPrefix(u.Modes)
}

// Fullhost renders nick!user@host, or just the nick if user/host are
// unknown (e.g. a NAMES-only membership that hasn't seen a JOIN yet).
func (u *ChannelUser) Fullhost() string {
	if u.Username == "" || u.Host == "" {
		return u.Nick
	}
	return u.Nick + "!" + u.Username + "@" + u.Host
}

// Channel is the runtime state of one joined or observed channel
// (spec.md section 3, "Channel (runtime)").
type Channel struct {
	Name        string
	Topic       string
	TopicSetter string
	TopicTime   time.Time
	Key         string
	Joined      bool

	modes    map[rune]bool
	argModes map[rune]string
	lists    map[rune][]string

	users map[string]*ChannelUser // keyed by casemap-folded nick

	namesBuf map[string]*ChannelUser // accumulates 353 until 366

	mu sync.RWMutex
}

func newChannel(name string) *Channel {
	return &Channel{
		Name:     name,
		modes:    make(map[rune]bool),
		argModes: make(map[rune]string),
		lists:    make(map[rune][]string),
		users:    make(map[string]*ChannelUser),
	}
}

// Users returns a snapshot slice of the channel's current membership.
func (c *Channel) Users() []*ChannelUser {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*ChannelUser, 0, len(c.users))
	for _, u := range c.users {
		out = append(out, u)
	}
	return out
}

// User looks up a member by nick (casemap-folded key expected).
func (c *Channel) User(foldedNick string) *ChannelUser {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.users[foldedNick]
}

// HasMode reports whether a no-param mode letter is currently set. List
// modes are kept separately and are not reported here.
func (c *Channel) HasMode(mode rune) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.modes[mode]
}

// ModeArg returns the argument for a param-carrying channel mode (e.g. 'k'
// -> key, 'l' -> limit), if set.
func (c *Channel) ModeArg(mode rune) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.argModes[mode]
	return v, ok
}

// List returns the entries of a list-mode (e.g. bans) as currently known.
func (c *Channel) List(mode rune) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.lists[mode]))
	copy(out, c.lists[mode])
	return out
}

// applyModeString parses a modestring like "+ov-k nick1 nick2" against the
// channel's CHANMODES categorization, mutating channel-level state and
// returning (nick, mode, adding) triples for modes that target a user
// (prefix modes), for the caller to apply to the relevant ChannelUser.
func (c *Channel) applyModeString(is *ISupport, params []string) []userModeChange {
	if len(params) == 0 {
		return nil
	}
	modestr := params[0]
	args := params[1:]
	argIdx := 0

	var userChanges []userModeChange
	adding := true

	c.mu.Lock()
	defer c.mu.Unlock()

	isPrefixMode := func(r rune) bool {
		for _, p := range is.Prefixes {
			if p.Mode == r {
				return true
			}
		}
		return false
	}

	for _, r := range modestr {
		switch r {
		case '+':
			adding = true
			continue
		case '-':
			adding = false
			continue
		}

		switch {
		case isPrefixMode(r):
			if argIdx < len(args) {
				userChanges = append(userChanges, userModeChange{
					Nick: args[argIdx], Mode: r, Adding: adding,
				})
				argIdx++
			}
		default:
			kind := is.ChanModes[r]
			switch kind {
			case ModeList:
				if argIdx < len(args) {
					arg := args[argIdx]
					argIdx++
					if adding {
						c.lists[r] = appendUnique(c.lists[r], arg)
					} else {
						c.lists[r] = removeString(c.lists[r], arg)
					}
				}
			case ModeAlwaysParam:
				if argIdx < len(args) {
					arg := args[argIdx]
					argIdx++
					if adding {
						c.argModes[r] = arg
					} else {
						delete(c.argModes, r)
					}
				}
			case ModeParamOnSet:
				if adding {
					if argIdx < len(args) {
						c.argModes[r] = args[argIdx]
						argIdx++
					}
				} else {
					delete(c.argModes, r)
				}
			default: // ModeNoParam or unknown
				if adding {
					c.modes[r] = true
				} else {
					delete(c.modes, r)
				}
			}
		}
	}

	return userChanges
}

type userModeChange struct {
	Nick   string
	Mode   rune
	Adding bool
}

func appendUnique(list []string, v string) []string {
	for _, e := range list {
		if strings.EqualFold(e, v) {
			return list
		}
	}
	return append(list, v)
}

func removeString(list []string, v string) []string {
	out := list[:0]
	for _, e := range list {
		if !strings.EqualFold(e, v) {
			out = append(out, e)
		}
	}
	return out
}
