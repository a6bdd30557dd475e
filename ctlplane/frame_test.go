package ctlplane

import (
	"bytes"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []Frame{
		{Type: MsgPing, Seq: 1},
		{Type: MsgGetStatus, Seq: 42, Payload: []byte("hello")},
		{Type: MsgError, Seq: 0, Payload: bytes.Repeat([]byte{'x'}, 4096)},
	}

	for _, f := range cases {
		var buf bytes.Buffer
		if err := WriteFrame(&buf, f); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
		got, err := ReadFrame(&buf)
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if got.Type != f.Type || got.Seq != f.Seq || !bytes.Equal(got.Payload, f.Payload) {
			t.Fatalf("round trip mismatch: got %+v, want %+v", got, f)
		}
	}
}

func TestReadFramePayloadTooLarge(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	buf.Write(magic[:])
	buf.WriteByte(Version)
	buf.WriteByte(byte(MsgError))
	buf.Write([]byte{0, 0, 0, 0})
	buf.Write([]byte{0xff, 0xff, 0xff, 0xff}) // huge length, little-endian

	if _, err := ReadFrame(&buf); err != ErrPayloadTooLarge {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestReadFrameBadMagic(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	buf.Write([]byte{0, 0, Version, byte(MsgPing), 0, 0, 0, 0, 0, 0, 0, 0})

	if _, err := ReadFrame(&buf); err != ErrBadMagic {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
}

func TestJoinChannelFieldCodec(t *testing.T) {
	t.Parallel()

	payload := EncodeJoinChannel("srv1", "#test", "secretkey")
	serverID, channel, key, err := DecodeJoinChannel(payload)
	if err != nil {
		t.Fatalf("DecodeJoinChannel: %v", err)
	}
	if serverID != "srv1" || channel != "#test" || key != "secretkey" {
		t.Fatalf("got (%q, %q, %q)", serverID, channel, key)
	}

	payload = EncodeJoinChannel("srv1", "#test", "")
	serverID, channel, key, err = DecodeJoinChannel(payload)
	if err != nil {
		t.Fatalf("DecodeJoinChannel (no key): %v", err)
	}
	if serverID != "srv1" || channel != "#test" || key != "" {
		t.Fatalf("got (%q, %q, %q)", serverID, channel, key)
	}
}
