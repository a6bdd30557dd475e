package mesh

import (
	"bufio"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/inconshreveable/log15"
	"github.com/pkg/errors"
)

// ErrLineTooLong is returned by the reader when a peer sends a line over
// MaxLineBytes (spec.md section 6).
var ErrLineTooLong = errors.New("mesh: line exceeds 64 KiB")

// Link is one authenticated (or in-progress) connection to a peer agent
// (spec.md section 3, "Peer Link"). Once authenticated, a Link's
// identity is pinned: any later envelope whose FromAgent disagrees is
// dropped and the link is reset (spec.md section 4.5).
type Link struct {
	log  log15.Logger
	conn net.Conn
	w    *bufio.Writer

	mu            sync.Mutex
	PeerName      string
	Authenticated bool
	ConnectedAt   time.Time
	LastPong      time.Time
	retryDelay    time.Duration

	writeMu sync.Mutex
	closed  bool
}

// newLink wraps conn in a Link ready to run a handshake.
func newLink(conn net.Conn, log log15.Logger) *Link {
	return &Link{
		conn: conn,
		w:    bufio.NewWriter(conn),
		log:  log,
	}
}

// send marshals and writes one envelope, newline-terminated.
func (l *Link) send(e *Envelope) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if len(raw) > MaxLineBytes {
		return ErrLineTooLong
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if _, err := l.w.Write(raw); err != nil {
		return err
	}
	if err := l.w.WriteByte('\n'); err != nil {
		return err
	}
	return l.w.Flush()
}

// Close closes the underlying transport. Idempotent.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.conn.Close()
}

// reader yields one decoded Envelope per call, enforcing the 64 KiB line
// cap (spec.md section 6).
type reader struct {
	sc *bufio.Scanner
}

func newReader(conn net.Conn) *reader {
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 4096), MaxLineBytes+1)
	return &reader{sc: sc}
}

func (r *reader) next() (*Envelope, error) {
	if !r.sc.Scan() {
		if err := r.sc.Err(); err != nil {
			return nil, err
		}
		return nil, errors.New("mesh: connection closed")
	}
	line := r.sc.Bytes()
	if len(line) > MaxLineBytes {
		return nil, ErrLineTooLong
	}
	var e Envelope
	if err := json.Unmarshal(line, &e); err != nil {
		return nil, errors.Wrap(err, "mesh: malformed envelope")
	}
	return &e, nil
}

// randomBytes returns n cryptographically random bytes.
func randomBytes(n int) []byte {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return b
}

// computeResponse implements the mesh hash construction (spec.md section
// 4.5, message type 3): base64(SHA-256(password_utf8 || challenge_bytes)).
func computeResponse(password string, challenge []byte) string {
	h := sha256.Sum256(append([]byte(password), challenge...))
	return base64.StdEncoding.EncodeToString(h[:])
}

// constantTimeEqual compares two base64 response strings without
// leaking timing information about where they first differ.
func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// HandshakeInitiate performs the initiator side of the handshake (spec.md
// section 4.5, steps 1+4): send Hello, receive Challenge, send Response
// computed with sharedPassword, and expect Welcome.
func HandshakeInitiate(conn net.Conn, agentName, version, sharedPassword string, log log15.Logger) (*Link, error) {
	l := newLink(conn, log)
	r := newReader(conn)

	hello, err := newEnvelope(TypeHello, agentName, "", Hello{AgentName: agentName, Version: version})
	if err != nil {
		return nil, err
	}
	if err := l.send(hello); err != nil {
		return nil, errors.Wrap(err, "mesh: sending hello")
	}

	env, err := r.next()
	if err != nil {
		return nil, err
	}
	if env.Type == TypeError {
		var ep ErrorPayload
		_ = env.Decode(&ep)
		return nil, errors.Errorf("mesh: handshake rejected: %s: %s", ep.Code, ep.Message)
	}
	if env.Type != TypeChallenge {
		return nil, errors.Errorf("mesh: expected challenge, got type %d", env.Type)
	}
	var ch Challenge
	if err := env.Decode(&ch); err != nil {
		return nil, err
	}
	challengeBytes, err := base64.StdEncoding.DecodeString(ch.Challenge)
	if err != nil {
		return nil, errors.Wrap(err, "mesh: decoding challenge")
	}

	resp, err := newEnvelope(TypeResponse, agentName, "", Response{Response: computeResponse(sharedPassword, challengeBytes)})
	if err != nil {
		return nil, err
	}
	if err := l.send(resp); err != nil {
		return nil, errors.Wrap(err, "mesh: sending response")
	}

	env, err = r.next()
	if err != nil {
		return nil, err
	}
	if env.Type == TypeError {
		var ep ErrorPayload
		_ = env.Decode(&ep)
		return nil, errors.Errorf("mesh: handshake failed: %s: %s", ep.Code, ep.Message)
	}
	if env.Type != TypeWelcome {
		return nil, errors.Errorf("mesh: expected welcome, got type %d", env.Type)
	}
	var w Welcome
	if err := env.Decode(&w); err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.PeerName = strings.ToLower(w.AgentName)
	l.Authenticated = true
	l.ConnectedAt = time.Now()
	l.mu.Unlock()

	return l, nil
}

// HandshakeRespond performs the listener side (spec.md section 4.5,
// steps 2-6). allowed maps lower-cased agent names to shared passwords;
// localName is this agent's own name, sent back in Welcome.
func HandshakeRespond(conn net.Conn, localName string, allowed map[string]string, log log15.Logger, linkedBots []string) (*Link, error) {
	l := newLink(conn, log)
	r := newReader(conn)

	env, err := r.next()
	if err != nil {
		return nil, err
	}
	if env.Type != TypeHello {
		return nil, errors.Errorf("mesh: expected hello, got type %d", env.Type)
	}
	var hello Hello
	if err := env.Decode(&hello); err != nil {
		return nil, err
	}

	peerKey := strings.ToLower(hello.AgentName)
	password, ok := allowed[peerKey]
	if !ok {
		sendError(l, localName, ErrUnknownBot, "agent not in allowed-peers list")
		l.Close()
		return nil, errors.Errorf("mesh: unknown peer %q", hello.AgentName)
	}

	challenge := randomBytes(32)
	chEnv, err := newEnvelope(TypeChallenge, localName, hello.AgentName, Challenge{Challenge: base64.StdEncoding.EncodeToString(challenge)})
	if err != nil {
		return nil, err
	}
	if err := l.send(chEnv); err != nil {
		return nil, err
	}

	env, err = r.next()
	if err != nil {
		return nil, err
	}
	if env.Type != TypeResponse {
		return nil, errors.Errorf("mesh: expected response, got type %d", env.Type)
	}
	var resp Response
	if err := env.Decode(&resp); err != nil {
		return nil, err
	}

	expected := computeResponse(password, challenge)
	if !constantTimeEqual(expected, resp.Response) {
		sendError(l, localName, ErrAuthFailed, "challenge response did not match")
		l.Close()
		return nil, errors.New("mesh: auth failed")
	}

	welcome, err := newEnvelope(TypeWelcome, localName, hello.AgentName, Welcome{AgentName: localName, LinkedBots: linkedBots})
	if err != nil {
		return nil, err
	}
	if err := l.send(welcome); err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.PeerName = peerKey
	l.Authenticated = true
	l.ConnectedAt = time.Now()
	l.mu.Unlock()

	return l, nil
}

func sendError(l *Link, from, code, msg string) {
	env, err := newEnvelope(TypeError, from, "", ErrorPayload{Code: code, Message: msg})
	if err != nil {
		return
	}
	_ = l.send(env)
}
