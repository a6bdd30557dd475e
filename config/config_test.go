package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateRequiresAgentID(t *testing.T) {
	t.Parallel()
	c := &AgentConfig{}
	if c.Validate() {
		t.Fatal("expected validation failure without agent id")
	}
	if len(c.Errors()) == 0 {
		t.Error("expected at least one error")
	}
}

func TestValidateDuplicateServerID(t *testing.T) {
	t.Parallel()
	c := New()
	c.Servers = []ServerConfig{
		{ID: "net1", Host: "irc.example.org", Nick: "bot"},
		{ID: "net1", Host: "irc2.example.org", Nick: "bot2"},
	}
	if c.Validate() {
		t.Fatal("expected validation failure for duplicate server id")
	}
}

func TestValidateOK(t *testing.T) {
	t.Parallel()
	c := New()
	c.Servers = []ServerConfig{
		{ID: "net1", Host: "irc.example.org", Nick: "bot"},
	}
	if !c.Validate() {
		t.Fatalf("unexpected errors: %v", c.Errors())
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.toml")

	c := New()
	c.Name = "testbot"
	c.Servers = []ServerConfig{
		{ID: "net1", Host: "irc.example.org", Port: 6697, TLS: true, Nick: "bot"},
	}

	if err := c.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Name != "testbot" {
		t.Errorf("Name = %q, want testbot", loaded.Name)
	}
	if len(loaded.Servers) != 1 || loaded.Servers[0].Host != "irc.example.org" {
		t.Errorf("Servers = %+v", loaded.Servers)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected file to exist: %v", err)
	}
}

func TestEffectivePort(t *testing.T) {
	t.Parallel()
	s := ServerConfig{}
	if p := s.EffectivePort(); p != DefaultPort {
		t.Errorf("EffectivePort() = %d, want %d", p, DefaultPort)
	}
	s.TLS = true
	if p := s.EffectivePort(); p != DefaultTLSPort {
		t.Errorf("EffectivePort() (tls) = %d, want %d", p, DefaultTLSPort)
	}
	s.Port = 1234
	if p := s.EffectivePort(); p != 1234 {
		t.Errorf("EffectivePort() (explicit) = %d, want 1234", p)
	}
}

func TestSecretRoundTrip(t *testing.T) {
	t.Parallel()
	ks := newTestKeystore(t)

	s := NewSecret("hunter2")
	if err := s.Seal(ks); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if s.Data == "" {
		t.Fatal("expected sealed Data to be populated")
	}

	// Simulate a round trip through disk: only Data survives.
	reloaded := Secret{Data: s.Data}
	plain, err := reloaded.Reveal(ks)
	if err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	if plain != "hunter2" {
		t.Errorf("Reveal() = %q, want hunter2", plain)
	}
}
