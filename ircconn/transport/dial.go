package transport

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"
)

// ProxyKind selects which proxy handshake Dial performs before handing
// the connection to the caller (spec.md section 4.1.a).
type ProxyKind int

const (
	ProxyNone ProxyKind = iota
	ProxySOCKS4
	ProxySOCKS5
	ProxyHTTPConnect
)

// ProxyConfig describes the outer-transport proxy, if any.
type ProxyConfig struct {
	Kind     ProxyKind
	Host     string
	Port     uint16
	Username string
	Password string
}

// DialConfig describes the full outer connection chain: an optional proxy
// hop, then an optional TLS handshake, to reach Host:Port.
type DialConfig struct {
	Host string
	Port uint16

	Proxy *ProxyConfig

	TLS                      bool
	AcceptInvalidCertificate bool
	ServerName               string
	ClientCertificates       []tls.Certificate

	DialTimeout time.Duration
}

// Dial establishes the full chain described by cfg and returns the
// resulting net.Conn, ready for IRC line framing.
func Dial(cfg DialConfig) (net.Conn, error) {
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	dialAddr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	if cfg.Proxy != nil && cfg.Proxy.Kind != ProxyNone {
		dialAddr = fmt.Sprintf("%s:%d", cfg.Proxy.Host, cfg.Proxy.Port)
	}

	conn, err := net.DialTimeout("tcp", dialAddr, timeout)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", dialAddr, err)
	}

	if cfg.Proxy != nil && cfg.Proxy.Kind != ProxyNone {
		if err := handshakeProxy(conn, cfg); err != nil {
			conn.Close()
			return nil, err
		}
	}

	if cfg.TLS {
		tlsConn, err := wrapTLS(conn, cfg)
		if err != nil {
			conn.Close()
			return nil, err
		}
		return tlsConn, nil
	}

	return conn, nil
}

func handshakeProxy(conn net.Conn, cfg DialConfig) error {
	p := cfg.Proxy
	switch p.Kind {
	case ProxySOCKS4:
		return Socks4Connect(conn, cfg.Host, cfg.Port, p.Username)
	case ProxySOCKS5:
		return Socks5Connect(conn, cfg.Host, cfg.Port, p.Username, p.Password)
	case ProxyHTTPConnect:
		return HTTPConnect(conn, cfg.Host, cfg.Port, p.Username, p.Password)
	default:
		return fmt.Errorf("transport: unknown proxy kind %d", p.Kind)
	}
}

func wrapTLS(conn net.Conn, cfg DialConfig) (net.Conn, error) {
	serverName := cfg.ServerName
	if serverName == "" {
		serverName = cfg.Host
	}
	tlsConf := &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: cfg.AcceptInvalidCertificate,
		Certificates:       cfg.ClientCertificates,
	}
	tlsConn := tls.Client(conn, tlsConf)
	if err := tlsConn.Handshake(); err != nil {
		return nil, fmt.Errorf("transport: tls handshake: %w", err)
	}
	return tlsConn, nil
}
