package config

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/munin-agent/munin/keystore"
)

// Load reads and parses an AgentConfig from filename, following the
// teacher's Config.FromFile idiom (config/config_file.go) but using TOML
// decode directly rather than a generic map overlay, since AgentConfig
// has a concrete struct shape.
func Load(filename string) (*AgentConfig, error) {
	c := &AgentConfig{}
	if _, err := toml.DecodeFile(filename, c); err != nil {
		return nil, errors.Wrapf(err, "config: failed to load %s", filename)
	}
	c.filename = filename
	return c, nil
}

// Save writes c to filename (or the file it was loaded from, if filename
// is empty), mirroring the teacher's Config.ToFile.
func (c *AgentConfig) Save(filename string) error {
	if filename == "" {
		filename = c.filename
	}
	if filename == "" {
		return errors.New("config: no filename to save to")
	}

	f, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(err, "config: failed to create %s", filename)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	if err := enc.Encode(c); err != nil {
		return errors.Wrap(err, "config: failed to encode")
	}
	c.filename = filename
	return nil
}

// SealSecrets encrypts every Secret field in the configuration that
// currently holds only plaintext, using ks. Call this before Save when a
// config was just built from user input (e.g. by the `setup` CLI verb).
func (c *AgentConfig) SealSecrets(ks *keystore.Keystore) error {
	seal := func(s *Secret) error { return s.Seal(ks) }

	if err := seal(&c.ControlServer.CertificatePassword); err != nil {
		return err
	}
	if err := seal(&c.ControlServer.AuthToken); err != nil {
		return err
	}
	for i := range c.Servers {
		s := &c.Servers[i]
		if err := seal(&s.ServerPass); err != nil {
			return err
		}
		if err := seal(&s.NickServPwd); err != nil {
			return err
		}
		if err := seal(&s.SASLUser); err != nil {
			return err
		}
		if err := seal(&s.SASLPass); err != nil {
			return err
		}
		if err := seal(&s.ClientCertPassword); err != nil {
			return err
		}
		if s.Proxy != nil {
			if err := seal(&s.Proxy.Password); err != nil {
				return err
			}
		}
	}
	for i := range c.Botnet.LinkedBots {
		if err := seal(&c.Botnet.LinkedBots[i].SharedPassword); err != nil {
			return err
		}
	}
	return nil
}
