// Package keystore defines the contract for the opaque secure-storage
// cipher described in spec.md section 1: "encrypt(bytes) -> framed
// bytes", "decrypt(framed bytes) -> bytes", and a magic-prefix sniff.
// It intentionally implements no cryptography of its own -- the cipher
// scheme is out of scope for the core (spec.md section 1, Non-goals).
//
// A Keystore is unlocked by installing a Cipher with Unlock and then used
// by config and access to transparently wrap/unwrap the sensitive fields
// and files named in spec.md section 6. Until a Cipher is installed,
// Encrypt returns ErrLocked, and so does Decrypt for framed input.
package keystore

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// magic is the 4-byte prefix that identifies a framed blob produced by
// this package, used by Sniff to detect whether a byte stream needs
// decryption before further parsing.
var magic = []byte{0x4D, 0x55, 0x4E, 0x31} // "MUN1"

// ErrLocked is returned by Encrypt/Decrypt when no cipher is installed.
var ErrLocked = errors.New("keystore: locked")

// ErrNotFramed is returned by Decrypt when the input does not carry the
// magic prefix.
var ErrNotFramed = errors.New("keystore: input is not a framed blob")

// Cipher is the opaque, pluggable encryption contract. An implementation
// is supplied by whatever storage-encryption scheme a deployment chooses;
// this package only defines the framing around it.
type Cipher interface {
	Seal(plaintext []byte) (ciphertext []byte, err error)
	Open(ciphertext []byte) (plaintext []byte, err error)
}

// Keystore unlocks a Cipher and applies the magic-prefixed length-framing
// contract around it.
type Keystore struct {
	cipher Cipher
}

// New returns a locked Keystore.
func New() *Keystore { return &Keystore{} }

// Unlock installs the cipher to use for subsequent Encrypt/Decrypt calls.
func (k *Keystore) Unlock(c Cipher) { k.cipher = c }

// Lock discards the installed cipher.
func (k *Keystore) Lock() { k.cipher = nil }

// Locked reports whether the keystore has no cipher installed.
func (k *Keystore) Locked() bool { return k.cipher == nil }

// Sniff reports whether b looks like a framed blob produced by Encrypt,
// per spec.md section 6's "detected via magic prefix" requirement. It
// does not require the keystore to be unlocked.
func Sniff(b []byte) bool {
	return len(b) >= len(magic) && bytes.Equal(b[:len(magic)], magic)
}

// Encrypt seals plaintext and frames it as magic || uint32(len) || ciphertext.
func (k *Keystore) Encrypt(plaintext []byte) ([]byte, error) {
	if k.Locked() {
		return nil, ErrLocked
	}
	ciphertext, err := k.cipher.Seal(plaintext)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(magic)+4+len(ciphertext))
	out = append(out, magic...)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(ciphertext)))
	out = append(out, lenBuf[:]...)
	out = append(out, ciphertext...)
	return out, nil
}

// Decrypt reverses Encrypt. It requires framed input; use Sniff first if
// the input's framing status is unknown.
func (k *Keystore) Decrypt(framed []byte) ([]byte, error) {
	if !Sniff(framed) {
		return nil, ErrNotFramed
	}
	if k.Locked() {
		return nil, ErrLocked
	}

	rest := framed[len(magic):]
	if len(rest) < 4 {
		return nil, ErrNotFramed
	}
	n := binary.LittleEndian.Uint32(rest[:4])
	rest = rest[4:]
	if uint32(len(rest)) < n {
		return nil, ErrNotFramed
	}

	return k.cipher.Open(rest[:n])
}
