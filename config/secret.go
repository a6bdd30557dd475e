package config

import (
	"encoding/base64"

	"github.com/munin-agent/munin/keystore"
)

// Secret wraps a sensitive configuration value (server password, NickServ
// password, SASL password, control-plane auth token, certificate
// password, mesh shared password) in the on-disk envelope described by
// spec.md section 6: `{data: base64-of-ciphertext}`. The plaintext is
// never marshaled; it only ever lives in memory once the keystore has
// been unlocked.
type Secret struct {
	Data string `toml:"data" json:"data"`

	plain    string
	resolved bool
}

// NewSecret returns a Secret holding plain in memory only; Data stays
// empty until Seal is called with a keystore. This lets `setup` build a
// config before a keystore password exists.
func NewSecret(plain string) Secret {
	return Secret{plain: plain, resolved: true}
}

// Seal encrypts the held plaintext (or re-encrypts Data if this Secret
// was loaded from disk and never unsealed) using ks, populating Data.
func (s *Secret) Seal(ks *keystore.Keystore) error {
	if !s.resolved {
		if err := s.unseal(ks); err != nil {
			return err
		}
	}
	if s.plain == "" {
		s.Data = ""
		return nil
	}
	framed, err := ks.Encrypt([]byte(s.plain))
	if err != nil {
		return err
	}
	s.Data = base64.StdEncoding.EncodeToString(framed)
	return nil
}

// Reveal decrypts and returns the plaintext, unsealing from Data the
// first time it's called on a value loaded from disk.
func (s *Secret) Reveal(ks *keystore.Keystore) (string, error) {
	if s.resolved {
		return s.plain, nil
	}
	if err := s.unseal(ks); err != nil {
		return "", err
	}
	return s.plain, nil
}

func (s *Secret) unseal(ks *keystore.Keystore) error {
	if s.Data == "" {
		s.plain = ""
		s.resolved = true
		return nil
	}
	framed, err := base64.StdEncoding.DecodeString(s.Data)
	if err != nil {
		return err
	}
	plain, err := ks.Decrypt(framed)
	if err != nil {
		return err
	}
	s.plain = string(plain)
	s.resolved = true
	return nil
}

// IsZero reports whether the secret carries no ciphertext and no
// in-memory plaintext -- i.e. the field was never set.
func (s Secret) IsZero() bool { return s.Data == "" && !s.resolved }

// Plain returns the held plaintext if this Secret has already been
// resolved (via NewSecret or a prior Reveal), and "" otherwise. Unlike
// Reveal, it never unseals Data itself -- callers on a hot path with no
// keystore handy (ircconn's registration seam) use this to get
// best-effort plaintext without being able to fail.
func (s Secret) Plain() string {
	if s.resolved {
		return s.plain
	}
	return ""
}
