// Package ctlplane implements the control-plane server from spec.md
// section 4.6: a TLS-terminated, length-prefixed binary RPC with an
// HMAC challenge authentication handshake, an IP allow-list, and
// per-session sequencing. It is grounded on the teacher's
// apiserver/api_server.go + bot/api_server.go session-bookkeeping shape
// (one goroutine per session, a mutex-protected session table) with the
// transport swapped from grpc to the spec's bit-exact custom framing
// (see DESIGN.md for the dropped-dependency justification).
package ctlplane

import (
	"crypto/tls"
	"net"
	"os"
	"sync"
	"time"

	"github.com/inconshreveable/log15"
	"github.com/pkg/errors"
	"golang.org/x/crypto/pkcs12"
)

// DefaultAuthTimeout is used when a Server is not given an explicit one
// (spec.md section 8: "AuthTimeoutSeconds (default 15s)").
const DefaultAuthTimeout = 15 * time.Second

// Server accepts control-plane connections, enforces the IP allow-list
// before the TLS handshake, and hands each accepted connection to a new
// Session (spec.md section 4.6).
type Server struct {
	log         log15.Logger
	handler     Handler
	token       string
	authTimeout time.Duration
	allow       *AllowList
	tlsConfig   *tls.Config
	info        AuthSuccessBody

	mu       sync.Mutex
	listener net.Listener
	sessions map[*Session]struct{}
	stop     chan struct{}
	once     sync.Once
}

// Config bundles the parameters Server needs to start listening.
type Config struct {
	Addr            string
	AuthToken       string
	AuthTimeout     time.Duration
	AllowedClients  []string // literals, globs, CIDR; empty/"*" means any
	CertPFXPath     string
	CertPFXPassword string
	RequireClientCert bool
	Info            AuthSuccessBody
}

// NewServer loads the PFX server certificate and constructs a Server
// ready to Listen. Client certificates are optional unless
// RequireClientCert is set (spec.md section 4.6: "Client certificates
// are optional").
func NewServer(cfg Config, handler Handler, log log15.Logger) (*Server, error) {
	if log == nil {
		log = log15.New("pkg", "ctlplane")
	}
	raw, err := os.ReadFile(cfg.CertPFXPath)
	if err != nil {
		return nil, errors.Wrapf(err, "ctlplane: reading %s", cfg.CertPFXPath)
	}
	key, cert, err := pkcs12.Decode(raw, cfg.CertPFXPassword)
	if err != nil {
		return nil, errors.Wrap(err, "ctlplane: decoding PFX certificate")
	}

	tlsCert := tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  key,
		Leaf:        cert,
	}

	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{tlsCert},
		MinVersion:   tls.VersionTLS12,
	}
	if cfg.RequireClientCert {
		tlsCfg.ClientAuth = tls.RequireAnyClientCert
	}

	authTimeout := cfg.AuthTimeout
	if authTimeout == 0 {
		authTimeout = DefaultAuthTimeout
	}

	return &Server{
		log:         log,
		handler:     handler,
		token:       cfg.AuthToken,
		authTimeout: authTimeout,
		allow:       NewAllowList(cfg.AllowedClients),
		tlsConfig:   tlsCfg,
		info:        cfg.Info,
		sessions:    make(map[*Session]struct{}),
		stop:        make(chan struct{}),
	}, nil
}

// Listen starts accepting connections on addr, enforcing the allow-list
// before any TLS negotiation begins (spec.md section 4.6: "Rejected
// connections are closed before TLS handshake logging completes").
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go s.acceptLoop(ln)
	return nil
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.stop:
				return
			default:
				s.log.Warn("ctlplane: accept error", "err", err)
				return
			}
		}

		if !s.allow.Allowed(conn.RemoteAddr().String()) {
			s.log.Info("ctlplane: rejecting disallowed client", "remote", conn.RemoteAddr())
			conn.Close()
			continue
		}

		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	tlsConn := tls.Server(conn, s.tlsConfig)
	if err := tlsConn.SetDeadline(time.Now().Add(15 * time.Second)); err != nil {
		tlsConn.Close()
		return
	}
	if err := tlsConn.Handshake(); err != nil {
		s.log.Warn("ctlplane: TLS handshake failed", "remote", conn.RemoteAddr(), "err", err)
		tlsConn.Close()
		return
	}
	_ = tlsConn.SetDeadline(time.Time{})

	sess := newSession(tlsConn, s.handler, s.log)
	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.sessions, sess)
		s.mu.Unlock()
	}()

	sess.Run(s.token, s.authTimeout, s.info)
}

// Broadcast pushes a notification frame to every live session, skipping
// any session whose write has already failed (spec.md section 4.6:
// "global broadcasts fan out concurrently but each session's writes are
// serialized").
func (s *Server) Broadcast(t MessageType, body interface{}) {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		go func(sess *Session) {
			select {
			case <-sess.Done():
				return
			default:
			}
			_ = sess.Push(t, body)
		}(sess)
	}
}

// SessionCount reports the number of live sessions (for status replies).
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close stops the listener and every active session.
func (s *Server) Close() {
	s.once.Do(func() {
		close(s.stop)
		s.mu.Lock()
		if s.listener != nil {
			s.listener.Close()
		}
		sessions := make([]*Session, 0, len(s.sessions))
		for sess := range s.sessions {
			sessions = append(sessions, sess)
		}
		s.mu.Unlock()
		for _, sess := range sessions {
			sess.Close()
		}
	})
}
