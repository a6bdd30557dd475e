package config

// ProxyKind enumerates the supported outer transport proxies (spec.md
// section 4.1.a).
type ProxyKind string

const (
	ProxyNone   ProxyKind = ""
	ProxySOCKS4 ProxyKind = "socks4"
	ProxySOCKS5 ProxyKind = "socks5"
	ProxyHTTP   ProxyKind = "http-connect"
)

// ProxyConfig describes an optional outer-transport proxy a Connection
// dials through before TLS and IRC framing.
type ProxyConfig struct {
	Kind     ProxyKind `toml:"kind" json:"kind"`
	Host     string    `toml:"host" json:"host"`
	Port     uint16    `toml:"port" json:"port"`
	Username string    `toml:"username,omitempty" json:"username,omitempty"`
	Password Secret    `toml:"password,omitempty" json:"password,omitempty"`
}

// Enabled reports whether a proxy is configured.
func (p *ProxyConfig) Enabled() bool { return p != nil && p.Kind != ProxyNone }
