package config

// ControlServerConfig configures the control-plane server (spec.md
// section 4.6).
type ControlServerConfig struct {
	Enabled             bool     `toml:"enabled" json:"enabled"`
	Port                uint16   `toml:"port" json:"port"`
	BindAddress         string   `toml:"bind_address" json:"bindAddress"`
	CertificatePath     string   `toml:"certificate_path" json:"certificatePath"`
	CertificatePassword Secret   `toml:"certificate_password,omitempty" json:"certificatePassword,omitempty"`
	AuthToken           Secret   `toml:"auth_token" json:"authToken"`
	AllowedIPs          []string `toml:"allowed_ips,omitempty" json:"allowedIps,omitempty"`
	AuthTimeoutSeconds  uint     `toml:"auth_timeout_seconds" json:"authTimeoutSeconds"`
}

// DefaultAuthTimeoutSeconds is the spec's default control-plane auth
// timeout (spec.md section 5).
const DefaultAuthTimeoutSeconds = uint(15)

// EffectiveAuthTimeout returns the configured auth timeout or the default.
func (c *ControlServerConfig) EffectiveAuthTimeout() uint {
	if c.AuthTimeoutSeconds == 0 {
		return DefaultAuthTimeoutSeconds
	}
	return c.AuthTimeoutSeconds
}

// LinkedBot describes one allowed mesh peer (spec.md section 4.5).
type LinkedBot struct {
	Name            string `toml:"name" json:"name"`
	Host            string `toml:"host,omitempty" json:"host,omitempty"`
	Port            uint16 `toml:"port,omitempty" json:"port,omitempty"`
	Initiate        bool   `toml:"initiate" json:"initiate"`
	SharedPassword  Secret `toml:"shared_password" json:"sharedPassword"`
}

// BotnetConfig configures the bot-mesh peer listener (spec.md section 4.5).
type BotnetConfig struct {
	Enabled    bool        `toml:"enabled" json:"enabled"`
	ListenPort uint16      `toml:"listen_port" json:"listenPort"`
	LinkedBots []LinkedBot `toml:"linked_bots,omitempty" json:"linkedBots,omitempty"`
}

// AgentConfig is the complete on-disk configuration document described in
// spec.md section 6.
type AgentConfig struct {
	AgentID       string              `toml:"agent_id" json:"agentId"`
	Name          string              `toml:"name" json:"name"`
	ControlServer ControlServerConfig `toml:"control_server" json:"controlServer"`
	Servers       []ServerConfig      `toml:"servers" json:"servers"`
	Botnet        BotnetConfig        `toml:"botnet" json:"botnet"`

	// AccessDBPath is where the user/access database JSON document
	// (spec.md section 6) is read from and periodically saved to.
	AccessDBPath string `toml:"access_db_path" json:"accessDbPath"`

	// TriggersDir is where trigger rule files (*.yml/*.yaml, spec.md
	// section 4.2) are loaded from, merged in path-sort order.
	TriggersDir string `toml:"triggers_dir" json:"triggersDir"`

	// MetricsBindAddress, if set, starts the loopback-only prometheus
	// endpoint (ambient observability, not a spec feature).
	MetricsBindAddress string `toml:"metrics_bind_address,omitempty" json:"metricsBindAddress,omitempty"`

	filename string
	errors   errList
}

// DefaultAccessDBPath and DefaultTriggersDir are used when the
// respective fields are left blank in the on-disk document.
const (
	DefaultAccessDBPath = "access.json"
	DefaultTriggersDir  = "triggers"
)

// EffectiveAccessDBPath returns the configured path or the default.
func (c *AgentConfig) EffectiveAccessDBPath() string {
	if c.AccessDBPath == "" {
		return DefaultAccessDBPath
	}
	return c.AccessDBPath
}

// EffectiveTriggersDir returns the configured directory or the default.
func (c *AgentConfig) EffectiveTriggersDir() string {
	if c.TriggersDir == "" {
		return DefaultTriggersDir
	}
	return c.TriggersDir
}

// errList accumulates configuration validation errors, mirroring the
// teacher's config.errList/addError/Errors idiom (config/config.go).
type errList []error

func (l *errList) add(format string, args ...interface{}) {
	*l = append(*l, fmtError(format, args...))
}

// New returns an empty AgentConfig with an identity assigned.
func New() *AgentConfig {
	return &AgentConfig{AgentID: newAgentID()}
}

// ServerByID returns the ServerConfig with the given id, or nil.
func (c *AgentConfig) ServerByID(id string) *ServerConfig {
	for i := range c.Servers {
		if c.Servers[i].ID == id {
			return &c.Servers[i]
		}
	}
	return nil
}

// Errors returns the validation errors accumulated by the last Validate call.
func (c *AgentConfig) Errors() []error {
	out := make([]error, len(c.errors))
	copy(out, c.errors)
	return out
}
