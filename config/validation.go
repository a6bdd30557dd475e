package config

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/inconshreveable/log15"
)

func fmtError(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

func newAgentID() string {
	return uuid.NewString()
}

// format strings for validation errors, mirroring the teacher's
// fmtErrInvalid/fmtErrMissing idiom (config/config.go).
const (
	fmtErrMissing  = "config: %v requires %v, but nothing was given"
	fmtErrDupe     = "config: duplicate server id %q"
	fmtErrBadPort  = "config(%v): invalid port %v"
)

// Validate checks the configuration for consistency: an agent id is
// present, every server has a unique id, a host and a nick, an enabled
// control server has a port, and linked bot names are unique. Alt nicks
// are not inspected. It returns true if there were no errors; call
// Errors() for details.
func (c *AgentConfig) Validate() bool {
	c.errors = c.errors[:0]

	if len(c.AgentID) == 0 {
		c.errors.add(fmtErrMissing, "agent", "an agent_id")
	}

	seen := make(map[string]bool, len(c.Servers))
	for i := range c.Servers {
		s := &c.Servers[i]
		if len(s.ID) == 0 {
			c.errors.add(fmtErrMissing, "server", "an id")
			continue
		}
		if seen[s.ID] {
			c.errors.add(fmtErrDupe, s.ID)
		}
		seen[s.ID] = true

		if len(s.Host) == 0 {
			c.errors.add(fmtErrMissing, s.ID, "a host")
		}
		if len(s.Nick) == 0 {
			c.errors.add(fmtErrMissing, s.ID, "a nick")
		}
	}

	if c.ControlServer.Enabled {
		if c.ControlServer.Port == 0 {
			c.errors.add(fmtErrBadPort, "control_server", c.ControlServer.Port)
		}
	}

	if c.Botnet.Enabled {
		seenBots := make(map[string]bool, len(c.Botnet.LinkedBots))
		for _, b := range c.Botnet.LinkedBots {
			if seenBots[b.Name] {
				c.errors.add(fmtErrDupe, b.Name)
			}
			seenBots[b.Name] = true
		}
	}

	return len(c.errors) == 0
}

// DisplayErrors logs the validation errors encountered, matching the
// teacher's Config.DisplayErrors(log15.Root()) call site in bot.CheckConfig.
func (c *AgentConfig) DisplayErrors(log log15.Logger) {
	for _, err := range c.errors {
		log.Error("config validation failed", "err", err)
	}
}
