// Package ctlplane implements the control-plane server from spec.md
// section 4.6: a TLS-terminated, length-prefixed binary RPC with an
// HMAC challenge authentication handshake, an IP allow-list, and
// per-session sequencing. It is grounded on the teacher's
// apiserver/api_server.go + bot/api_server.go session-bookkeeping shape
// (one goroutine per session, a mutex-protected session table) with the
// transport swapped from grpc to the spec's bit-exact custom framing
// (see DESIGN.md for the dropped-dependency justification).
package ctlplane

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// magic identifies the control-plane framing: ASCII "MN" (spec.md
// section 4.6).
var magic = [2]byte{0x4D, 0x4E}

// Version is the only framing version this implementation speaks.
const Version = 1

// MaxPayloadBytes bounds a single frame's payload (spec.md section 4.6
// and the boundary test in section 8).
const MaxPayloadBytes = 1 << 20 // 1 MiB

// ErrBadMagic/ErrBadVersion/ErrPayloadTooLarge classify why a frame
// failed to parse; the session closes on any of them.
var (
	ErrBadMagic        = errors.New("ctlplane: bad frame magic")
	ErrBadVersion      = errors.New("ctlplane: unsupported frame version")
	ErrPayloadTooLarge = errors.New("ctlplane: payload exceeds 1 MiB")
)

// Frame is one wire message (spec.md section 4.6):
//
//	magic(2) ver(1) type(1) seq(4 LE) payload-length(4 LE) payload
type Frame struct {
	Type    MessageType
	Seq     uint32
	Payload []byte
}

// WriteFrame serializes f to w.
func WriteFrame(w io.Writer, f Frame) error {
	if len(f.Payload) > MaxPayloadBytes {
		return ErrPayloadTooLarge
	}
	header := make([]byte, 12)
	header[0], header[1] = magic[0], magic[1]
	header[2] = Version
	header[3] = byte(f.Type)
	binary.LittleEndian.PutUint32(header[4:8], f.Seq)
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(f.Payload)))

	if _, err := w.Write(header); err != nil {
		return err
	}
	if len(f.Payload) == 0 {
		return nil
	}
	_, err := w.Write(f.Payload)
	return err
}

// ReadFrame deserializes one Frame from r, enforcing the magic/version
// and the 1 MiB payload cap (spec.md section 8: exceeding it closes the
// session).
func ReadFrame(r io.Reader) (Frame, error) {
	header := make([]byte, 12)
	if _, err := io.ReadFull(r, header); err != nil {
		return Frame{}, err
	}
	if header[0] != magic[0] || header[1] != magic[1] {
		return Frame{}, ErrBadMagic
	}
	if header[2] != Version {
		return Frame{}, ErrBadVersion
	}

	f := Frame{
		Type: MessageType(header[3]),
		Seq:  binary.LittleEndian.Uint32(header[4:8]),
	}
	n := binary.LittleEndian.Uint32(header[8:12])
	if n > MaxPayloadBytes {
		return Frame{}, ErrPayloadTooLarge
	}
	if n == 0 {
		return f, nil
	}
	f.Payload = make([]byte, n)
	if _, err := io.ReadFull(r, f.Payload); err != nil {
		return Frame{}, err
	}
	return f, nil
}
