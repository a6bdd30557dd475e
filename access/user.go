package access

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// PwdCost is the bcrypt cost factor used for handle passwords, mirroring
// the teacher's data.UserAccessPwdCost (data/user_access.go). Changing it
// only affects passwords hashed after the change.
var PwdCost = bcrypt.DefaultCost

// User is one entry in the access database (spec.md section 3, "Access
// User (DB)"): a handle with hostmask patterns, a global flag set, a
// per-channel flag set, and mesh-replication bookkeeping.
type User struct {
	Handle       string             `json:"handle"`
	PasswordHash []byte             `json:"passwordHash,omitempty"`
	Masks        []string           `json:"masks,omitempty"`
	Global       FlagSet            `json:"global"`
	Channels     map[string]FlagSet `json:"channels,omitempty"`
	Info         string             `json:"info,omitempty"`
	CreatedAt    time.Time          `json:"createdAt"`
	LastSeen     time.Time          `json:"lastSeen,omitempty"`
	LastModified time.Time          `json:"lastModified"`

	// ModifiedBy records which peer (or "" for local) last wrote this
	// record, used as the last-writer-wins tie-break (spec.md section
	// 4.4) when LastModified timestamps are equal.
	ModifiedBy string `json:"modifiedBy,omitempty"`
}

// NewUser constructs a User with a normalized handle and a stamped
// creation/modification time.
func NewUser(handle string) *User {
	now := time.Now().UTC()
	return &User{
		Handle:       strings.ToLower(handle),
		Channels:     make(map[string]FlagSet),
		CreatedAt:    now,
		LastModified: now,
	}
}

// SetPassword bcrypt-hashes password and stores it, touching LastModified.
func (u *User) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), PwdCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	u.touch()
	return nil
}

// VerifyPassword reports whether password matches the stored hash. A user
// with no stored hash never verifies, including against the empty string.
func (u *User) VerifyPassword(password string) bool {
	if len(u.PasswordHash) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)) == nil
}

// AddMask appends a hostmask pattern if it isn't already present. The
// order masks are added in is significant: Lookup tries a user's masks
// in insertion order and stops at the first match (spec.md section 4.4).
func (u *User) AddMask(mask string) bool {
	mask = strings.ToLower(mask)
	for _, m := range u.Masks {
		if m == mask {
			return false
		}
	}
	u.Masks = append(u.Masks, mask)
	u.touch()
	return true
}

// RemoveMask deletes mask, preserving the order of the remaining masks
// (order is load-bearing, so this is not a swap-remove).
func (u *User) RemoveMask(mask string) bool {
	mask = strings.ToLower(mask)
	for i, m := range u.Masks {
		if m == mask {
			u.Masks = append(u.Masks[:i], u.Masks[i+1:]...)
			u.touch()
			return true
		}
	}
	return false
}

// MatchesMask reports whether any of the user's masks match hostmask. A
// user with no masks at all matches nothing -- a handle with zero masks
// can never be resolved from an observed hostmask (it can still be used
// for password-authenticated partyline/control-plane logins).
func (u *User) MatchesMask(hostmask string) bool {
	hostmask = strings.ToLower(hostmask)
	for _, m := range u.Masks {
		if MatchHostmask(m, hostmask) {
			return true
		}
	}
	return false
}

// channelFlags returns the flag set for channel, or zero if the user has
// no per-channel grant there.
func (u *User) channelFlags(channel string) FlagSet {
	if u.Channels == nil {
		return 0
	}
	return u.Channels[strings.ToLower(channel)]
}

// GrantChannel adds flags to the user's per-channel set for channel.
func (u *User) GrantChannel(channel string, flags string) {
	if u.Channels == nil {
		u.Channels = make(map[string]FlagSet)
	}
	channel = strings.ToLower(channel)
	u.Channels[channel] = u.Channels[channel].Set(flags)
	u.touch()
}

// RevokeChannel removes flags from the user's per-channel set for channel.
func (u *User) RevokeChannel(channel string, flags string) {
	channel = strings.ToLower(channel)
	if u.Channels == nil {
		return
	}
	u.Channels[channel] = u.Channels[channel].Clear(flags)
	u.touch()
}

// HasFlag checks a permission the way spec.md section 4.4 specifies:
// global flags cascade to every channel, and owner/master satisfy any
// check regardless of the requested flag.
func (u *User) HasFlag(channel string, flag rune) bool {
	if u.Global.IsPrivileged() {
		return true
	}
	if u.Global.HasFlag(flag) {
		return true
	}
	if channel == "" {
		return false
	}
	cf := u.channelFlags(channel)
	return cf.IsPrivileged() || cf.HasFlag(flag)
}

// touch stamps LastModified to now and clears ModifiedBy (a local write
// always wins the next mesh conflict check against its own echo).
func (u *User) touch() {
	u.LastModified = time.Now().UTC()
	u.ModifiedBy = ""
}

// clone returns a deep-enough copy for safe concurrent reads after the
// database releases its lock.
func (u *User) clone() *User {
	cp := *u
	cp.Masks = append([]string(nil), u.Masks...)
	cp.Channels = make(map[string]FlagSet, len(u.Channels))
	for k, v := range u.Channels {
		cp.Channels[k] = v
	}
	return &cp
}
