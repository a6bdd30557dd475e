package main

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"

	"golang.org/x/crypto/scrypt"
)

// passphraseCipher is the concrete implementation of keystore.Cipher
// this binary ships. The core (keystore package) treats encryption as an
// opaque contract per spec.md section 1; this is the CLI's own choice of
// scheme, not something the rest of the repository depends on.
//
// A passphrase is stretched with scrypt (already available transitively
// through golang.org/x/crypto, used elsewhere for bcrypt and pkcs12) into
// a 32-byte key, then AES-256-GCM seals/opens the payload. Each Seal
// picks a fresh random salt and nonce and prefixes both to the
// ciphertext so Open is self-contained.
type passphraseCipher struct {
	passphrase string
}

const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	saltLen      = 16
)

var errCiphertextTooShort = errors.New("munin: ciphertext too short")

func newPassphraseCipher(passphrase string) *passphraseCipher {
	return &passphraseCipher{passphrase: passphrase}
}

func (p *passphraseCipher) deriveKey(salt []byte) ([]byte, error) {
	return scrypt.Key([]byte(p.passphrase), salt, scryptN, scryptR, scryptP, scryptKeyLen)
}

func (p *passphraseCipher) Seal(plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	key, err := p.deriveKey(salt)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	out := make([]byte, 0, saltLen+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

func (p *passphraseCipher) Open(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < saltLen {
		return nil, errCiphertextTooShort
	}
	salt, rest := ciphertext[:saltLen], ciphertext[saltLen:]

	key, err := p.deriveKey(salt)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(rest) < gcm.NonceSize() {
		return nil, errCiphertextTooShort
	}
	nonce, sealed := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]
	return gcm.Open(nil, nonce, sealed, nil)
}
