package keystore

import "testing"

type xorCipher struct{ key byte }

func (x xorCipher) xor(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[i] = c ^ x.key
	}
	return out
}

func (x xorCipher) Seal(plaintext []byte) ([]byte, error)  { return x.xor(plaintext), nil }
func (x xorCipher) Open(ciphertext []byte) ([]byte, error) { return x.xor(ciphertext), nil }

func TestLockedByDefault(t *testing.T) {
	t.Parallel()
	ks := New()
	if !ks.Locked() {
		t.Fatal("expected new keystore to be locked")
	}
	if _, err := ks.Encrypt([]byte("hi")); err != ErrLocked {
		t.Errorf("Encrypt() err = %v, want ErrLocked", err)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	t.Parallel()
	ks := New()
	ks.Unlock(xorCipher{key: 0x42})

	plaintext := []byte("top secret configuration value")
	framed, err := ks.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if !Sniff(framed) {
		t.Error("expected Sniff to recognize framed output")
	}

	got, err := ks.Decrypt(framed)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(got) != string(plaintext) {
		t.Errorf("Decrypt() = %q, want %q", got, plaintext)
	}
}

func TestSniffRejectsUnframed(t *testing.T) {
	t.Parallel()
	if Sniff([]byte("plain json {}")) {
		t.Error("expected Sniff to reject unframed input")
	}

	ks := New()
	ks.Unlock(xorCipher{key: 1})
	if _, err := ks.Decrypt([]byte("not framed")); err != ErrNotFramed {
		t.Errorf("Decrypt() err = %v, want ErrNotFramed", err)
	}
}

func TestLockClearsCipher(t *testing.T) {
	t.Parallel()
	ks := New()
	ks.Unlock(xorCipher{key: 1})
	ks.Lock()
	if !ks.Locked() {
		t.Fatal("expected Locked() after Lock()")
	}
}
