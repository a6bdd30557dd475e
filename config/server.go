/*
Package config loads and saves the agent's on-disk configuration, using
github.com/BurntSushi/toml for the document format (following the
teacher's config package) with sensitive fields wrapped by the
spec-mandated {data: base64} envelope (see Secret).
*/
package config

import (
	"time"
)

// ServerConfig is one entry in the agent's server list: everything
// needed to dial, register and maintain an IRC connection to a single
// network, per spec.md section 3's "Server Config" entity.
type ServerConfig struct {
	// ID is a stable identifier used to address this server from the
	// control plane and from trigger/rule files. Unique within an
	// AgentConfig.
	ID string `toml:"id" json:"id"`

	DisplayName string `toml:"display_name" json:"displayName"`
	Host        string `toml:"host" json:"host"`
	Port        uint16 `toml:"port" json:"port"`

	TLS                      bool   `toml:"tls" json:"tls"`
	AcceptInvalidCertificate bool   `toml:"accept_invalid_certificate" json:"acceptInvalidCertificate"`
	ClientCertPath           string `toml:"client_cert_path,omitempty" json:"clientCertPath,omitempty"`
	ClientCertPassword       Secret `toml:"client_cert_password,omitempty" json:"clientCertPassword,omitempty"`

	Nick        string   `toml:"nick" json:"nick"`
	AltNicks    []string `toml:"alt_nicks,omitempty" json:"altNicks,omitempty"`
	Username    string   `toml:"username" json:"username"`
	Realname    string   `toml:"realname" json:"realname"`
	ServerPass  Secret   `toml:"server_password,omitempty" json:"serverPassword,omitempty"`
	NickServPwd Secret   `toml:"nickserv_password,omitempty" json:"nickservPassword,omitempty"`

	SASLUser     Secret `toml:"sasl_user,omitempty" json:"saslUser,omitempty"`
	SASLPass     Secret `toml:"sasl_password,omitempty" json:"saslPassword,omitempty"`
	SASLRequired bool   `toml:"sasl_required,omitempty" json:"saslRequired,omitempty"`

	Proxy *ProxyConfig `toml:"proxy,omitempty" json:"proxy,omitempty"`

	AutoJoin []AutoJoinChannel `toml:"auto_join,omitempty" json:"autoJoin,omitempty"`
	Perform  []string          `toml:"perform,omitempty" json:"perform,omitempty"`

	AutoConnect   bool `toml:"auto_connect" json:"autoConnect"`
	AutoReconnect bool `toml:"auto_reconnect" json:"autoReconnect"`

	ReconnectDelaySeconds uint `toml:"reconnect_delay_seconds" json:"reconnectDelaySeconds"`

	FloodBurst      uint `toml:"flood_burst" json:"floodBurst"`
	FloodIntervalMs uint `toml:"flood_interval_ms" json:"floodIntervalMs"`
}

// AutoJoinChannel is a channel (and optional key) to join on registration.
type AutoJoinChannel struct {
	Name string `toml:"name" json:"name"`
	Key  string `toml:"key,omitempty" json:"key,omitempty"`
}

// Defaults for fields a ServerConfig may omit, mirroring the teacher's
// config package defaults (config/config.go's default* constants),
// adapted to the spec's values.
const (
	DefaultPort                  = uint16(6667)
	DefaultTLSPort                = uint16(6697)
	DefaultFloodBurst            = uint(5)
	DefaultFloodIntervalMs       = uint(1000)
	DefaultReconnectDelaySeconds = uint(5)
	MaxReconnectDelaySeconds     = uint(300)
	DefaultNickCollisionRetries  = 6
)

// ReconnectDelay returns the configured initial reconnect delay, or the
// default if unset.
func (s *ServerConfig) ReconnectDelay() time.Duration {
	d := s.ReconnectDelaySeconds
	if d == 0 {
		d = DefaultReconnectDelaySeconds
	}
	return time.Duration(d) * time.Second
}

// FloodBucket returns the configured token-bucket burst/interval, or the
// spec's defaults (burst 5, interval 1000ms) if unset.
func (s *ServerConfig) FloodBucket() (burst uint, interval time.Duration) {
	burst = s.FloodBurst
	if burst == 0 {
		burst = DefaultFloodBurst
	}
	ms := s.FloodIntervalMs
	if ms == 0 {
		ms = DefaultFloodIntervalMs
	}
	return burst, time.Duration(ms) * time.Millisecond
}

// EffectivePort returns the configured port, defaulting based on TLS.
func (s *ServerConfig) EffectivePort() uint16 {
	if s.Port != 0 {
		return s.Port
	}
	if s.TLS {
		return DefaultTLSPort
	}
	return DefaultPort
}
