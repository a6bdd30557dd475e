package access

import "time"

// SyncedUser is the wire shape of a user record as carried in a mesh
// UserSync message (spec.md section 4.5, message type 30). It mirrors
// User field-for-field; kept distinct so the mesh package never needs to
// import access's internal mutation methods.
type SyncedUser struct {
	Handle       string             `json:"handle"`
	PasswordHash []byte             `json:"passwordHash,omitempty"`
	Masks        []string           `json:"masks,omitempty"`
	Global       FlagSet            `json:"global"`
	Channels     map[string]FlagSet `json:"channels,omitempty"`
	Info         string             `json:"info,omitempty"`
	CreatedAt    time.Time          `json:"createdAt"`
	LastSeen     time.Time          `json:"lastSeen,omitempty"`
	LastModified time.Time          `json:"lastModified"`
	ModifiedBy   string             `json:"modifiedBy,omitempty"`
}

func (u *User) toSynced(peerName string) SyncedUser {
	s := SyncedUser{
		Handle:       u.Handle,
		PasswordHash: u.PasswordHash,
		Masks:        append([]string(nil), u.Masks...),
		Global:       u.Global,
		Info:         u.Info,
		CreatedAt:    u.CreatedAt,
		LastSeen:     u.LastSeen,
		LastModified: u.LastModified,
		ModifiedBy:   u.ModifiedBy,
	}
	if s.ModifiedBy == "" {
		s.ModifiedBy = peerName
	}
	s.Channels = make(map[string]FlagSet, len(u.Channels))
	for k, v := range u.Channels {
		s.Channels[k] = v
	}
	return s
}

// ExportSync builds the full-sync payload for a mesh UserSync message:
// every user, tagged with the local peer's name as ModifiedBy
// so a receiving peer's tie-breaks resolve deterministically.
func (db *DB) ExportSync(localPeerName string) []SyncedUser {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]SyncedUser, len(db.users))
	for i, u := range db.users {
		out[i] = u.toSynced(localPeerName)
	}
	return out
}

// ApplySync merges incoming synced users into db using last-writer-wins
// conflict resolution (spec.md section 4.4): a remote record replaces
// the local one only if its LastModified is strictly later, or equal
// with a lexicographically greater ModifiedBy as the tie-break (a local
// record, whose ModifiedBy is empty, keeps a tie). fromPeer
// names the peer link the sync arrived on, used for the tie-break when a
// synced record carries no ModifiedBy of its own (older peers, or the
// originating peer's own handle).
//
// Returns the number of local records actually changed; zero means the
// sync was a no-op, satisfying the idempotence law in spec.md section 8
// ("a full UserSync applied on top of an identical DB is a no-op").
func (db *DB) ApplySync(users []SyncedUser, fullSync bool, fromPeer string) int {
	db.mu.Lock()
	changed := 0
	seen := make(map[string]bool, len(users))

	for _, su := range users {
		key := normalizeHandle(su.Handle)
		seen[key] = true
		modBy := su.ModifiedBy
		if modBy == "" {
			modBy = fromPeer
		}

		existing, ok := db.index[key]
		if !ok {
			u := fromSynced(su, modBy)
			db.users = append(db.users, u)
			db.index[key] = u
			changed++
			continue
		}

		if !shouldReplace(existing.LastModified, existing.ModifiedBy, su.LastModified, modBy) {
			continue
		}
		*existing = *fromSynced(su, modBy)
		changed++
	}

	if fullSync {
		kept := db.users[:0]
		for _, u := range db.users {
			if seen[u.Handle] {
				kept = append(kept, u)
				continue
			}
			delete(db.index, u.Handle)
			changed++
		}
		db.users = kept
	}

	cb := db.onChange
	db.mu.Unlock()

	if cb != nil && changed > 0 {
		cb(nil) // nil signals "bulk sync applied"; caller re-reads via All/ExportSync
	}
	return changed
}

func normalizeHandle(h string) string {
	out := make([]byte, len(h))
	for i := 0; i < len(h); i++ {
		c := h[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

func fromSynced(su SyncedUser, modBy string) *User {
	u := &User{
		Handle:       normalizeHandle(su.Handle),
		PasswordHash: su.PasswordHash,
		Masks:        append([]string(nil), su.Masks...),
		Global:       su.Global,
		Info:         su.Info,
		CreatedAt:    su.CreatedAt,
		LastSeen:     su.LastSeen,
		LastModified: su.LastModified,
		ModifiedBy:   modBy,
	}
	u.Channels = make(map[string]FlagSet, len(su.Channels))
	for k, v := range su.Channels {
		u.Channels[k] = v
	}
	return u
}

// shouldReplace implements the last-writer-wins rule: strictly newer
// timestamp wins outright; equal timestamps fall back to comparing the
// modifying peer name so every replica converges on the same winner. A
// local record (empty localBy) keeps a tie, so an echo of this node's
// own export never replaces it.
func shouldReplace(localTime time.Time, localBy string, remoteTime time.Time, remoteBy string) bool {
	if remoteTime.After(localTime) {
		return true
	}
	if remoteTime.Equal(localTime) {
		return localBy != "" && remoteBy > localBy
	}
	return false
}
