package ctlplane

import (
	"bytes"

	"github.com/pkg/errors"
)

// joinFields builds a NUL-separated payload, the on-wire shape spec.md
// section 4.6 specifies for multi-argument requests.
func joinFields(fields ...string) []byte {
	out := make([][]byte, len(fields))
	for i, f := range fields {
		out[i] = []byte(f)
	}
	return bytes.Join(out, []byte{FieldSep})
}

// splitFields reverses joinFields, requiring at least min fields.
func splitFields(payload []byte, min int) ([]string, error) {
	parts := bytes.Split(payload, []byte{FieldSep})
	if len(parts) < min {
		return nil, errors.Errorf("ctlplane: expected at least %d fields, got %d", min, len(parts))
	}
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = string(p)
	}
	return out, nil
}

// JoinChannelRequest/PartChannelRequest/SendMessageRequest/Connect-style
// request encodings (spec.md section 4.6).

func EncodeJoinChannel(serverID, channel, key string) []byte {
	if key == "" {
		return joinFields(serverID, channel)
	}
	return joinFields(serverID, channel, key)
}

func DecodeJoinChannel(payload []byte) (serverID, channel, key string, err error) {
	f, err := splitFields(payload, 2)
	if err != nil {
		return "", "", "", err
	}
	serverID, channel = f[0], f[1]
	if len(f) > 2 {
		key = f[2]
	}
	return serverID, channel, key, nil
}

func EncodePartChannel(serverID, channel, reason string) []byte {
	return joinFields(serverID, channel, reason)
}

func DecodePartChannel(payload []byte) (serverID, channel, reason string, err error) {
	f, err := splitFields(payload, 2)
	if err != nil {
		return "", "", "", err
	}
	serverID, channel = f[0], f[1]
	if len(f) > 2 {
		reason = f[2]
	}
	return serverID, channel, reason, nil
}

func EncodeSendMessage(serverID, target, text string) []byte {
	return joinFields(serverID, target, text)
}

func DecodeSendMessage(payload []byte) (serverID, target, text string, err error) {
	f, err := splitFields(payload, 3)
	if err != nil {
		return "", "", "", err
	}
	return f[0], f[1], f[2], nil
}

func EncodeSendRaw(serverID, line string) []byte {
	return joinFields(serverID, line)
}

func DecodeSendRaw(payload []byte) (serverID, line string, err error) {
	f, err := splitFields(payload, 2)
	if err != nil {
		return "", "", err
	}
	return f[0], f[1], nil
}

func EncodeServerID(serverID string) []byte {
	return joinFields(serverID)
}

func DecodeServerID(payload []byte) (string, error) {
	f, err := splitFields(payload, 1)
	if err != nil {
		return "", err
	}
	return f[0], nil
}
