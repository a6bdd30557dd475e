package ctlplane

import (
	"encoding/json"
	"io"
	"net"
	"sync"
	"time"

	"github.com/inconshreveable/log15"
)

// StatusBody/ConnectionsBody/ChannelsBody/UsersBody/IRCMessageBody are
// JSON response bodies (spec.md section 4.6: Status/Connections/etc.
// reply with JSON; requests with simple arguments use NUL-separated
// fields instead).
type StatusBody struct {
	Version   string `json:"version"`
	Hostname  string `json:"hostname"`
	UptimeMs  int64  `json:"uptime_ms"`
	Servers   int    `json:"servers"`
	MeshLinks int    `json:"mesh_links"`
}

type ConnectionInfo struct {
	ServerID string `json:"server_id"`
	Nick     string `json:"nick"`
	State    string `json:"state"`
}
type ConnectionsBody struct {
	Connections []ConnectionInfo `json:"connections"`
}

type ChannelsBody struct {
	ServerID string   `json:"server_id"`
	Channels []string `json:"channels"`
}

type UsersBody struct {
	Handles []string `json:"handles"`
}

// IRCMessageBody is the payload of a server-pushed MsgIrcMessage
// broadcast (spec.md section 4.6): a raw line observed on a connection.
type IRCMessageBody struct {
	ServerID string `json:"server_id"`
	Line     string `json:"line"`
}

// ConnectionStateBody is the payload of a MsgConnectionStateChanged
// broadcast.
type ConnectionStateBody struct {
	ServerID string `json:"server_id"`
	State    string `json:"state"`
}

// Handler answers control-plane requests on behalf of the supervisor.
// Every method is called from the session's own goroutine, so
// implementations need only guard state shared across sessions.
type Handler interface {
	Status() StatusBody
	Connections() ConnectionsBody
	Channels(serverID string) ChannelsBody
	Users() UsersBody
	JoinChannel(serverID, channel, key string) error
	PartChannel(serverID, channel, reason string) error
	SendMessage(serverID, target, text string) error
	SendRaw(serverID, line string) error
	Connect(serverID string) error
	Disconnect(serverID string) error
	Shutdown() error
}

// Session owns one authenticated control-plane connection: it processes
// requests strictly sequentially (no concurrent requests in flight per
// connection, per spec.md section 4.6) and may push broadcast frames
// with seq=0 (SPEC_FULL.md's Open Questions decision) asynchronously.
type Session struct {
	conn    net.Conn
	log     log15.Logger
	handler Handler

	writeMu sync.Mutex
	closed  chan struct{}
	once    sync.Once
}

func newSession(conn net.Conn, handler Handler, log log15.Logger) *Session {
	return &Session{
		conn:    conn,
		log:     log,
		handler: handler,
		closed:  make(chan struct{}),
	}
}

// Run authenticates the session then serves requests until the
// connection closes or a MsgShutdown request is handled.
func (s *Session) Run(token string, authTimeout time.Duration, info AuthSuccessBody) {
	defer s.Close()

	if err := runServerAuth(s.conn, token, authTimeout, info); err != nil {
		s.log.Warn("ctlplane: auth failed", "remote", s.conn.RemoteAddr(), "err", err)
		return
	}

	for {
		frame, err := ReadFrame(s.conn)
		if err != nil {
			if err != io.EOF {
				s.log.Debug("ctlplane: session read error", "err", err)
			}
			return
		}
		if !s.dispatch(frame) {
			return
		}
	}
}

// dispatch handles one request frame, echoing its seq on the response
// (spec.md section 4.6: "response seq equals the request's seq").
// Returns false when the session should close.
func (s *Session) dispatch(req Frame) bool {
	switch req.Type {
	case MsgPing:
		s.reply(req.Seq, MsgPong, nil)
		return true

	case MsgGetStatus:
		s.replyJSON(req.Seq, MsgStatus, s.handler.Status())
		return true

	case MsgGetConnections:
		s.replyJSON(req.Seq, MsgConnections, s.handler.Connections())
		return true

	case MsgGetChannels:
		serverID, err := DecodeServerID(req.Payload)
		if err != nil {
			s.replyError(req.Seq, err.Error())
			return true
		}
		s.replyJSON(req.Seq, MsgChannels, s.handler.Channels(serverID))
		return true

	case MsgGetUsers:
		s.replyJSON(req.Seq, MsgUsers, s.handler.Users())
		return true

	case MsgJoinChannel:
		serverID, channel, key, err := DecodeJoinChannel(req.Payload)
		if err == nil {
			err = s.handler.JoinChannel(serverID, channel, key)
		}
		s.replyOK(req.Seq, err)
		return true

	case MsgPartChannel:
		serverID, channel, reason, err := DecodePartChannel(req.Payload)
		if err == nil {
			err = s.handler.PartChannel(serverID, channel, reason)
		}
		s.replyOK(req.Seq, err)
		return true

	case MsgSendMessage:
		serverID, target, text, err := DecodeSendMessage(req.Payload)
		if err == nil {
			err = s.handler.SendMessage(serverID, target, text)
		}
		s.replyOK(req.Seq, err)
		return true

	case MsgSendRaw:
		serverID, line, err := DecodeSendRaw(req.Payload)
		if err == nil {
			err = s.handler.SendRaw(serverID, line)
		}
		s.replyOK(req.Seq, err)
		return true

	case MsgConnect:
		serverID, err := DecodeServerID(req.Payload)
		if err == nil {
			err = s.handler.Connect(serverID)
		}
		s.replyOK(req.Seq, err)
		return true

	case MsgDisconnect:
		serverID, err := DecodeServerID(req.Payload)
		if err == nil {
			err = s.handler.Disconnect(serverID)
		}
		s.replyOK(req.Seq, err)
		return true

	case MsgShutdown:
		err := s.handler.Shutdown()
		s.replyOK(req.Seq, err)
		return false

	default:
		s.reply(req.Seq, MsgNotSupported, nil)
		return true
	}
}

func (s *Session) reply(seq uint32, t MessageType, payload []byte) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = WriteFrame(s.conn, Frame{Type: t, Seq: seq, Payload: payload})
}

func (s *Session) replyJSON(seq uint32, t MessageType, body interface{}) {
	raw, err := json.Marshal(body)
	if err != nil {
		s.replyError(seq, err.Error())
		return
	}
	s.reply(seq, t, raw)
}

func (s *Session) replyOK(seq uint32, err error) {
	if err != nil {
		s.replyError(seq, err.Error())
		return
	}
	s.reply(seq, MsgStatus, nil)
}

func (s *Session) replyError(seq uint32, msg string) {
	s.reply(seq, MsgError, []byte(msg))
}

// Push sends an unsolicited broadcast frame (IrcMessage /
// ConnectionStateChanged / UserSync-derived notifications) with seq=0,
// per SPEC_FULL.md's broadcast-sequencing decision.
func (s *Session) Push(t MessageType, body interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return WriteFrame(s.conn, Frame{Type: t, Seq: 0, Payload: raw})
}

// Close closes the underlying connection. Idempotent.
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.closed)
		s.conn.Close()
	})
}

// Done reports a channel closed when the session has ended, so a
// broadcaster can stop pushing to it.
func (s *Session) Done() <-chan struct{} {
	return s.closed
}
