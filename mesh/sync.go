package mesh

import (
	"encoding/json"

	"github.com/munin-agent/munin/access"
)

// encodeUsers marshals access records for a UserSyncPayload.
func encodeUsers(users []access.SyncedUser) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, len(users))
	for i, u := range users {
		raw, err := json.Marshal(u)
		if err != nil {
			return nil, err
		}
		out[i] = raw
	}
	return out, nil
}

// decodeUsers reverses encodeUsers, skipping (and not failing on) any
// entry that fails to decode -- one malformed record should not sink an
// otherwise-valid sync batch.
func decodeUsers(raw []json.RawMessage) []access.SyncedUser {
	out := make([]access.SyncedUser, 0, len(raw))
	for _, r := range raw {
		var u access.SyncedUser
		if err := json.Unmarshal(r, &u); err != nil {
			continue
		}
		out = append(out, u)
	}
	return out
}
