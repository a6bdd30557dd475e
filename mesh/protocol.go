// Package mesh implements the bot-mesh peer protocol described in
// spec.md section 4.5: challenge/response authenticated, line-framed
// JSON links between agents carrying partyline chat, access-database
// sync, and channel-operator requests. The teacher ships no peer-mesh
// analogue; this package is modeled on the closest teacher precedent for
// a line-oriented link with its own handshake and reconnect --
// dispatch/remote/client.go's and dispatch/remote/ext_handler.go's
// remote-extension protocol -- with the transport swapped from grpc to
// the spec's newline-delimited JSON (see DESIGN.md for the
// dropped-dependency justification).
package mesh

import (
	"encoding/json"
	"time"
)

// Type enumerates the mesh wire message kinds (spec.md section 4.5).
type Type int

const (
	TypeHello     Type = 1
	TypeChallenge Type = 2
	TypeResponse  Type = 3
	TypeWelcome   Type = 4
	TypeGoodbye   Type = 5

	TypePing Type = 10
	TypePong Type = 11

	TypeChat   Type = 20
	TypeAction Type = 21
	TypeJoin   Type = 22
	TypePart   Type = 23
	TypeWho    Type = 24
	TypeWhoReply Type = 25

	TypeUserSync Type = 30

	TypeOpRequest   Type = 40
	TypeOpGrant     Type = 41
	TypeKickRequest Type = 42
	TypeBanSync     Type = 43

	TypeInfo     Type = 50
	TypeStatus   Type = 51
	TypeChannels Type = 52

	TypeError Type = 99
)

// MaxLineBytes bounds a single newline-delimited JSON message (spec.md
// section 6: "line length <= 64 KiB; anything larger closes the link").
const MaxLineBytes = 64 * 1024

// Envelope is the outer shape of every line on a mesh link (spec.md
// section 4.5): `{"type": <int>, "data": "<inner-json-string>"}`, plus
// the shared routing fields every message carries.
type Envelope struct {
	Type      Type            `json:"type"`
	Data      json.RawMessage `json:"data"`
	FromAgent string          `json:"from_agent"`
	ToAgent   string          `json:"to_agent,omitempty"` // empty = broadcast
	Timestamp int64           `json:"timestamp"`
	Hops      int             `json:"hops"`
}

// Decode unmarshals e.Data into v.
func (e *Envelope) Decode(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// newEnvelope builds an Envelope carrying payload as its Data, stamped
// with from/to and the current time.
func newEnvelope(t Type, from, to string, payload interface{}) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Type:      t,
		Data:      raw,
		FromAgent: from,
		ToAgent:   to,
		Timestamp: time.Now().Unix(),
	}, nil
}

// Hello is the initiator's first packet (spec.md section 4.5, type 1).
type Hello struct {
	AgentName string `json:"agent_name"`
	Version   string `json:"version"`
	PublicKey string `json:"public_key,omitempty"` // carried, never read by the hash (spec.md section 9 open question)
}

// Challenge is the responder's 32 random bytes, base64 encoded (type 2).
type Challenge struct {
	Challenge string `json:"challenge"`
}

// Response is base64(SHA-256(password || challenge_bytes)) (type 3).
type Response struct {
	Response string `json:"response"`
}

// Welcome completes a successful handshake (type 4).
type Welcome struct {
	AgentName  string   `json:"agent_name"`
	LinkedBots []string `json:"linked_bots"`
}

// Goodbye announces an intentional link close (type 5).
type Goodbye struct {
	Reason string `json:"reason"`
}

// PingPayload/PongPayload carry a caller-chosen id to correlate replies
// (types 10/11).
type PingPayload struct {
	PingID string `json:"ping_id"`
}
type PongPayload struct {
	PingID string `json:"ping_id"`
}

// ChatPayload/ActionPayload carry partyline text (types 20/21).
type ChatPayload struct {
	FromNick string `json:"from_nick"`
	Channel  string `json:"channel"`
	Text     string `json:"text"`
}

// JoinPayload/PartPayload carry partyline membership changes (types 22/23).
type JoinPayload struct {
	Nick    string `json:"nick"`
	Channel string `json:"channel"`
	Flags   string `json:"flags"`
}
type PartPayload struct {
	Nick    string `json:"nick"`
	Channel string `json:"channel"`
	Reason  string `json:"reason"`
}

// WhoPayload/WhoReplyPayload implement partyline WHO (types 24/25).
type WhoPayload struct {
	Channel string `json:"channel"`
}
type WhoReplyPayload struct {
	Channel string   `json:"channel"`
	Nicks   []string `json:"nicks"`
}

// UserSyncPayload carries access-database replication (type 30).
type UserSyncPayload struct {
	Users      []json.RawMessage `json:"users"` // access.SyncedUser, kept opaque here to avoid an import cycle on the wire shape
	IsFullSync bool              `json:"is_full_sync"`
}

// OpRequestPayload/OpGrantPayload/KickRequestPayload/BanSyncPayload
// implement cross-agent channel operator coordination (types 40-43).
type OpRequestPayload struct {
	Server  string `json:"server"`
	Channel string `json:"channel"`
	Nick    string `json:"nick"`
}
type OpGrantPayload struct {
	Server  string `json:"server"`
	Channel string `json:"channel"`
	Nick    string `json:"nick"`
}
type KickRequestPayload struct {
	Server  string `json:"server"`
	Channel string `json:"channel"`
	Nick    string `json:"nick"`
	Reason  string `json:"reason"`
}
type BanSyncPayload struct {
	Server  string `json:"server"`
	Channel string `json:"channel"`
	Mask    string `json:"mask"`
	TTLSecs int64  `json:"ttl_seconds,omitempty"`
}

// InfoPayload/StatusPayload/ChannelsPayload are telemetry (types 50-52).
type InfoPayload struct {
	Version  string `json:"version"`
	Hostname string `json:"hostname"`
	Uptime   int64  `json:"uptime_ms"`
}
type StatusPayload struct {
	Connections int `json:"connections"`
	Links       int `json:"links"`
}
type ChannelsPayload struct {
	Server   string   `json:"server"`
	Channels []string `json:"channels"`
}

// ErrorPayload carries a stable machine-readable code plus a human
// message (type 99). spec.md section 7 names the codes UNKNOWN_BOT,
// AUTH_FAILED, PROTO_BAD, CLOSING.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	ErrUnknownBot  = "UNKNOWN_BOT"
	ErrAuthFailed  = "AUTH_FAILED"
	ErrProtoBad    = "PROTO_BAD"
	ErrClosing     = "CLOSING"
)
