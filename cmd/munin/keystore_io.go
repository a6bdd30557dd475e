package main

import (
	"os"

	"github.com/munin-agent/munin/config"
	"github.com/munin-agent/munin/keystore"
)

// passphraseEnvVar lets the agent run non-interactively (a service
// manager, a container entrypoint) without a TTY for promptPassphrase.
const passphraseEnvVar = "MUNIN_KEYSTORE_PASSPHRASE"

// unlockKeystore builds a Keystore using either the environment-provided
// passphrase or an interactive prompt, and installs this binary's
// passphraseCipher.
func unlockKeystore(label string) (*keystore.Keystore, error) {
	pass := os.Getenv(passphraseEnvVar)
	if pass == "" {
		var err error
		pass, err = promptPassphrase(label)
		if err != nil {
			return nil, err
		}
	}
	ks := keystore.New()
	ks.Unlock(newPassphraseCipher(pass))
	return ks, nil
}

// loadAgentConfig reads path, transparently unwrapping it first if it
// carries the keystore's whole-file magic prefix (spec.md section 1: "the
// encrypted-storage files" are detected via magic-prefix sniff, not by
// file extension or a config flag).
func loadAgentConfig(path string, ks *keystore.Keystore) (*config.AgentConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if !keystore.Sniff(raw) {
		return config.Load(path)
	}

	plain, err := ks.Decrypt(raw)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp("", "munin-config-*.toml")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(plain); err != nil {
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}

	return config.Load(tmp.Name())
}
