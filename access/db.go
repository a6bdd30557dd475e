// Package access implements the user/access database described in
// spec.md section 4.4: handle-to-hostmask resolution, global and
// per-channel flag sets, and mesh-replicated last-writer-wins updates.
// It is grounded on the teacher's data.UserAccess/data.Store
// (data/user_access.go, data/store.go), with the teacher's embedded
// cznic/kv store swapped for the JSON document persistence spec.md
// section 6 mandates (see DESIGN.md for the dropped-dependency
// justification).
package access

import (
	"encoding/json"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/munin-agent/munin/keystore"
)

// ErrNotFound is returned when a handle has no matching user record.
var ErrNotFound = errors.New("access: user not found")

// ErrDuplicateHandle is returned by AddUser when the handle already exists.
var ErrDuplicateHandle = errors.New("access: duplicate handle")

// Document is the on-disk shape of the user database (spec.md section 6):
// `{users:[...], lastModified}`.
type Document struct {
	Users        []*User   `json:"users"`
	LastModified time.Time `json:"lastModified"`
}

// DB is the single-writer, shared-reader user access database (spec.md
// section 5): the dispatcher, mesh service and protection service share
// one handle; every mutation goes through DB's own methods, which hold
// the lock for the duration of the mutation and release it before
// emitting anything.
type DB struct {
	mu    sync.RWMutex
	users []*User // insertion order load-bearing: first-match-wins (spec.md section 4.4)
	index map[string]*User

	onChange func(*User) // optional mesh replication hook, see OnChange
}

// New returns an empty, unpersisted database.
func New() *DB {
	return &DB{index: make(map[string]*User)}
}

// OnChange registers fn to be called (outside the database lock) after
// every local mutation, so the mesh service can broadcast a UserSync
// without the database needing to know about mesh at all.
func (db *DB) OnChange(fn func(*User)) {
	db.mu.Lock()
	db.onChange = fn
	db.mu.Unlock()
}

// AddUser inserts a new handle. The handle is lower-cased for the
// uniqueness check (handles are case-insensitive, spec.md section 3).
func (db *DB) AddUser(u *User) error {
	db.mu.Lock()
	key := strings.ToLower(u.Handle)
	if _, ok := db.index[key]; ok {
		db.mu.Unlock()
		return ErrDuplicateHandle
	}
	u.Handle = key
	db.users = append(db.users, u)
	db.index[key] = u
	cb := db.onChange
	db.mu.Unlock()

	if cb != nil {
		cb(u.clone())
	}
	return nil
}

// RemoveUser deletes handle, preserving the relative order of the
// remaining users (order is load-bearing for Lookup).
func (db *DB) RemoveUser(handle string) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	key := strings.ToLower(handle)
	if _, ok := db.index[key]; !ok {
		return false
	}
	delete(db.index, key)
	for i, u := range db.users {
		if u.Handle == key {
			db.users = append(db.users[:i], db.users[i+1:]...)
			break
		}
	}
	return true
}

// Get returns a copy of the user record for handle, or ErrNotFound.
func (db *DB) Get(handle string) (*User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	u, ok := db.index[strings.ToLower(handle)]
	if !ok {
		return nil, ErrNotFound
	}
	return u.clone(), nil
}

// Lookup resolves an observed hostmask to a user record per spec.md
// section 4.4: the first user (in database/insertion order) with any
// mask matching hostmask wins.
func (db *DB) Lookup(hostmask string) (*User, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	for _, u := range db.users {
		if u.MatchesMask(hostmask) {
			return u.clone(), true
		}
	}
	return nil, false
}

// Mutate runs fn against the live record for handle under the write
// lock, then fires the change hook with a snapshot. This is the only way
// callers should apply incremental changes (grant/revoke flags, add
// masks) so that "mutation is confined to the database itself" (spec.md
// section 3) holds.
func (db *DB) Mutate(handle string, fn func(*User)) error {
	db.mu.Lock()
	key := strings.ToLower(handle)
	u, ok := db.index[key]
	if !ok {
		db.mu.Unlock()
		return ErrNotFound
	}
	fn(u)
	u.touch()
	cb := db.onChange
	snap := u.clone()
	db.mu.Unlock()

	if cb != nil {
		cb(snap)
	}
	return nil
}

// Touch updates a user's LastSeen, called whenever an incoming IRC event
// resolves to a known handle.
func (db *DB) Touch(handle string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if u, ok := db.index[strings.ToLower(handle)]; ok {
		u.LastSeen = time.Now().UTC()
	}
}

// All returns a snapshot slice of every user, in database order.
func (db *DB) All() []*User {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]*User, len(db.users))
	for i, u := range db.users {
		out[i] = u.clone()
	}
	return out
}

// Len reports the number of users in the database.
func (db *DB) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.users)
}

// Load reads a Document from filename. If the bytes are framed by the
// keystore (spec.md section 6's "detected via magic prefix"), ks
// decrypts them first; ks may be nil (or locked) when the file is known
// to be plaintext.
func Load(filename string, ks *keystore.Keystore) (*DB, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "access: reading %s", filename)
	}
	if keystore.Sniff(raw) {
		if ks == nil {
			return nil, errors.New("access: database is encrypted but no keystore was supplied")
		}
		raw, err = ks.Decrypt(raw)
		if err != nil {
			return nil, errors.Wrap(err, "access: decrypting database")
		}
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "access: decoding database")
	}

	db := New()
	for _, u := range doc.Users {
		key := strings.ToLower(u.Handle)
		db.users = append(db.users, u)
		db.index[key] = u
	}
	return db, nil
}

// Save writes the database to filename as a Document. If ks is non-nil
// and unlocked, the JSON is wrapped in the keystore's framing before
// being written, per spec.md section 6.
func (db *DB) Save(filename string, ks *keystore.Keystore) error {
	db.mu.RLock()
	doc := Document{Users: db.users, LastModified: time.Now().UTC()}
	raw, err := json.MarshalIndent(&doc, "", "  ")
	db.mu.RUnlock()
	if err != nil {
		return errors.Wrap(err, "access: encoding database")
	}

	if ks != nil && !ks.Locked() {
		raw, err = ks.Encrypt(raw)
		if err != nil {
			return errors.Wrap(err, "access: encrypting database")
		}
	}

	tmp := filename + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return errors.Wrapf(err, "access: writing %s", tmp)
	}
	return os.Rename(tmp, filename)
}
