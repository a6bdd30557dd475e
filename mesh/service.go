package mesh

import (
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/inconshreveable/log15"

	"github.com/munin-agent/munin/access"
)

// ReconnectSeedSeconds/ReconnectCapSeconds are the initiator-side
// backoff bounds (spec.md section 4.5): start at 10s, double, cap at
// 300s.
const (
	ReconnectSeedSeconds = 10
	ReconnectCapSeconds  = 300
)

// Sink is how the mesh service applies peer-originated channel-operator
// requests without holding a reference to any ircconn.Connection
// directly (design notes, spec.md section 9).
type Sink interface {
	Op(server, channel, nick string)
	Kick(server, channel, nick, reason string)
	Ban(server, channel, mask string, ttl time.Duration)
}

// PartylineHandler receives partyline chat/action/join/part relayed over
// the mesh.
type PartylineHandler interface {
	Chat(fromPeer, fromNick, channel, text string, action bool)
	Join(fromPeer, nick, channel, flags string)
	Part(fromPeer, nick, channel, reason string)
}

// Service manages every Link this agent maintains: the listener for
// inbound peers and one outbound dial loop per configured peer that
// initiates (spec.md section 4.5). It is grounded on the teacher's
// dispatch/remote client/ext_handler split (one type owning connect +
// dispatch), generalized from a single grpc channel to many line-JSON
// Links.
type Service struct {
	localName string
	log       log15.Logger
	users     *access.DB
	sink      Sink
	partyline PartylineHandler

	mu       sync.RWMutex
	allowed  map[string]string // lower(name) -> shared password
	links    []*Link           // stable order: spec.md section 5 "per-link ordering preserved"
	byName   map[string]*Link
	listener net.Listener
	stop     chan struct{}
	once     sync.Once
}

// NewService constructs a Service. users and sink may be nil if this
// agent does not replicate access or accept operator requests (an
// unusual but legal configuration).
func NewService(localName string, users *access.DB, sink Sink, partyline PartylineHandler, log log15.Logger) *Service {
	if log == nil {
		log = log15.New("pkg", "mesh")
	}
	return &Service{
		localName: strings.ToLower(localName),
		log:       log,
		users:     users,
		sink:      sink,
		partyline: partyline,
		allowed:   make(map[string]string),
		byName:    make(map[string]*Link),
		stop:      make(chan struct{}),
	}
}

// AllowPeer registers name as permitted to link in, with the shared
// password used for both directions of the handshake.
func (s *Service) AllowPeer(name, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowed[strings.ToLower(name)] = password
}

// Listen accepts inbound peer connections on addr until Close is called.
func (s *Service) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				select {
				case <-s.stop:
					return
				default:
					s.log.Warn("mesh: accept error", "err", err)
					return
				}
			}
			go s.acceptOne(conn)
		}
	}()
	return nil
}

func (s *Service) acceptOne(conn net.Conn) {
	s.mu.RLock()
	allowed := make(map[string]string, len(s.allowed))
	for k, v := range s.allowed {
		allowed[k] = v
	}
	names := s.linkedNamesLocked()
	s.mu.RUnlock()

	l, err := HandshakeRespond(conn, s.localName, allowed, s.log, names)
	if err != nil {
		s.log.Warn("mesh: inbound handshake failed", "err", err, "remote", conn.RemoteAddr())
		return
	}
	s.addLink(l)
	s.runLink(l)
}

func (s *Service) linkedNamesLocked() []string {
	names := make([]string, 0, len(s.byName))
	for n := range s.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Connect dials peer and, if it should initiate (per config), retries
// with exponential backoff on failure (spec.md section 4.5) until Close.
func (s *Service) Connect(peerName, addr, sharedPassword, version string) {
	delay := time.Duration(ReconnectSeedSeconds) * time.Second
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		conn, err := net.DialTimeout("tcp", addr, 30*time.Second)
		if err == nil {
			l, herr := HandshakeInitiate(conn, s.localName, version, sharedPassword, s.log)
			if herr == nil {
				s.addLink(l)
				s.runLink(l)
				delay = time.Duration(ReconnectSeedSeconds) * time.Second
				continue
			}
			err = herr
		}

		s.log.Warn("mesh: link failed, retrying", "peer", peerName, "err", err, "delay", delay)
		select {
		case <-time.After(delay):
		case <-s.stop:
			return
		}
		delay *= 2
		capped := time.Duration(ReconnectCapSeconds) * time.Second
		if delay > capped {
			delay = capped
		}
	}
}

func (s *Service) addLink(l *Link) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links = append(s.links, l)
	s.byName[l.PeerName] = l
}

func (s *Service) removeLink(l *Link) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, ln := range s.links {
		if ln == l {
			s.links = append(s.links[:i], s.links[i+1:]...)
			break
		}
	}
	if s.byName[l.PeerName] == l {
		delete(s.byName, l.PeerName)
	}
}

// runLink drives one Link's read loop until it closes, dispatching each
// envelope and enforcing trust pinning (spec.md section 4.5: "a link's
// from_agent is pinned at handshake -- incoming messages whose envelope
// from_agent does not match the pin are dropped and the link reset").
func (s *Service) runLink(l *Link) {
	defer func() {
		s.removeLink(l)
		l.Close()
	}()

	r := newReader(l.conn)
	for {
		env, err := r.next()
		if err != nil {
			return
		}
		if strings.ToLower(env.FromAgent) != l.PeerName {
			s.log.Warn("mesh: from_agent mismatch, resetting link", "expected", l.PeerName, "got", env.FromAgent)
			return
		}
		if !s.handleEnvelope(l, env) {
			return
		}
	}
}

// handleEnvelope processes one authenticated message; returning false
// tells the caller to close the link.
func (s *Service) handleEnvelope(l *Link, env *Envelope) bool {
	switch env.Type {
	case TypeGoodbye:
		return false
	case TypePing:
		var p PingPayload
		_ = env.Decode(&p)
		pong, err := newEnvelope(TypePong, s.localName, l.PeerName, PongPayload{PingID: p.PingID})
		if err == nil {
			_ = l.send(pong)
		}
		return true
	case TypePong:
		l.mu.Lock()
		l.LastPong = time.Now()
		l.mu.Unlock()
		return true
	case TypeChat, TypeAction:
		if s.partyline == nil {
			return true
		}
		var c ChatPayload
		_ = env.Decode(&c)
		s.partyline.Chat(l.PeerName, c.FromNick, c.Channel, c.Text, env.Type == TypeAction)
		return true
	case TypeJoin:
		if s.partyline == nil {
			return true
		}
		var j JoinPayload
		_ = env.Decode(&j)
		s.partyline.Join(l.PeerName, j.Nick, j.Channel, j.Flags)
		return true
	case TypePart:
		if s.partyline == nil {
			return true
		}
		var p PartPayload
		_ = env.Decode(&p)
		s.partyline.Part(l.PeerName, p.Nick, p.Channel, p.Reason)
		return true
	case TypeUserSync:
		if s.users == nil {
			return true
		}
		var us UserSyncPayload
		_ = env.Decode(&us)
		s.users.ApplySync(decodeUsers(us.Users), us.IsFullSync, l.PeerName)
		return true
	case TypeOpGrant:
		if s.sink == nil {
			return true
		}
		var og OpGrantPayload
		_ = env.Decode(&og)
		s.sink.Op(og.Server, og.Channel, og.Nick)
		return true
	case TypeKickRequest:
		if s.sink == nil {
			return true
		}
		var kr KickRequestPayload
		_ = env.Decode(&kr)
		s.sink.Kick(kr.Server, kr.Channel, kr.Nick, kr.Reason)
		return true
	case TypeBanSync:
		if s.sink == nil {
			return true
		}
		var bs BanSyncPayload
		_ = env.Decode(&bs)
		s.sink.Ban(bs.Server, bs.Channel, bs.Mask, time.Duration(bs.TTLSecs)*time.Second)
		return true
	case TypeError:
		var ep ErrorPayload
		_ = env.Decode(&ep)
		s.log.Warn("mesh: peer sent error", "peer", l.PeerName, "code", ep.Code, "message", ep.Message)
		return true
	default:
		return true
	}
}

// BroadcastUserSync sends a full or incremental UserSync to every
// authenticated link, in stable link order (spec.md section 5).
func (s *Service) BroadcastUserSync(users []access.SyncedUser, full bool) {
	raw, err := encodeUsers(users)
	if err != nil {
		return
	}
	s.broadcast(TypeUserSync, UserSyncPayload{Users: raw, IsFullSync: full})
}

// BroadcastChat relays partyline chat to every link.
func (s *Service) BroadcastChat(fromNick, channel, text string, action bool) {
	t := TypeChat
	if action {
		t = TypeAction
	}
	s.broadcast(t, ChatPayload{FromNick: fromNick, Channel: channel, Text: text})
}

// RequestKick asks peers to relay a kick request (OpRequest/KickRequest
// flow, spec.md section 4.5).
func (s *Service) RequestKick(server, channel, nick, reason string) {
	s.broadcast(TypeKickRequest, KickRequestPayload{Server: server, Channel: channel, Nick: nick, Reason: reason})
}

func (s *Service) broadcast(t Type, payload interface{}) {
	s.mu.RLock()
	links := append([]*Link(nil), s.links...)
	s.mu.RUnlock()

	for _, l := range links {
		env, err := newEnvelope(t, s.localName, "", payload)
		if err != nil {
			continue
		}
		if err := l.send(env); err != nil {
			s.log.Debug("mesh: broadcast send failed", "peer", l.PeerName, "err", err)
		}
	}
}

// Links returns a snapshot of currently connected links, for control-plane
// inspection.
func (s *Service) Links() []*Link {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Link(nil), s.links...)
}

// Close stops the listener and every active link.
func (s *Service) Close() {
	s.once.Do(func() {
		close(s.stop)
		s.mu.Lock()
		if s.listener != nil {
			s.listener.Close()
		}
		links := append([]*Link(nil), s.links...)
		s.mu.Unlock()
		for _, l := range links {
			l.Close()
		}
	})
}
