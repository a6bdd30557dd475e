package config

import (
	"testing"

	"github.com/munin-agent/munin/keystore"
)

// xorCipher is a trivial stand-in for a real Cipher implementation, used
// only to exercise the Secret/Keystore plumbing in tests. The core never
// ships a real cipher -- spec.md section 1 treats it as an opaque
// external collaborator.
type xorCipher struct{ key byte }

func (x xorCipher) xor(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[i] = c ^ x.key
	}
	return out
}

func (x xorCipher) Seal(plaintext []byte) ([]byte, error) { return x.xor(plaintext), nil }
func (x xorCipher) Open(ciphertext []byte) ([]byte, error) { return x.xor(ciphertext), nil }

func newTestKeystore(t *testing.T) *keystore.Keystore {
	t.Helper()
	ks := keystore.New()
	ks.Unlock(xorCipher{key: 0x5A})
	return ks
}
