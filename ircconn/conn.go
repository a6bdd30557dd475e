// Package ircconn implements the per-server IRC connection manager: the
// registration state machine, room/user model, outbound flood control
// and reconnection/backoff described in spec.md section 4.1.
package ircconn

import (
	"crypto/tls"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/ergochat/irc-go/ircreader"
	"github.com/inconshreveable/log15"
	"github.com/pkg/errors"

	"github.com/munin-agent/munin/config"
	"github.com/munin-agent/munin/ircconn/transport"
	"github.com/munin-agent/munin/ircmsg"
)

// Options configures a Connection beyond what's carried on the server
// config. Secrets are passed in already-revealed plaintext: Connection
// has no keystore reference of its own, so the supervisor resolves
// config.Secret fields before handing a ServerConfig snapshot down here.
type Options struct {
	Log log15.Logger

	ServerPassword string
	NickServPass   string
	SASLUser       string
	SASLPassword   string
}

// Connection manages one IRC server connection: dialing, registration,
// room/user tracking, flood-controlled writes and reconnection. A zero
// Connection is not usable; construct with New.
type Connection struct {
	cfg  *config.ServerConfig
	log  log15.Logger
	opts Options

	mu        sync.RWMutex
	state     State
	conn      net.Conn
	reader    *ircreader.IRCReader
	isup      *ISupport
	room      *roomState
	flood     *floodQueue
	events    chan Event
	stopRead  chan struct{}
	stopWrite chan struct{}
	wg        sync.WaitGroup

	nickIdx    int
	pingTimer  *time.Timer
	missedPing int
	lastPingAt time.Time

	pendingWhois *WhoisInfo

	reconnectDelay time.Duration
	closing        bool
}

// New constructs a Connection for cfg. Call Run to start the connection
// loop; it blocks until stop is closed, Close is called, or a connection
// cycle ends while AutoReconnect is off.
func New(cfg *config.ServerConfig, opts Options) *Connection {
	logger := opts.Log
	if logger == nil {
		logger = log15.New("server", cfg.ID)
	}
	return &Connection{
		cfg:            cfg,
		log:            logger,
		state:          StateDisconnected,
		isup:           NewISupport(),
		room:           newRoomState(NewISupport()),
		events:         make(chan Event, 256),
		reconnectDelay: cfg.ReconnectDelay(),
	}
}

// Events returns the channel Event values are published on. Callers must
// keep draining it; publication never blocks indefinitely (see events.go
// dispatch policy in the events package for the pub/sub layer built atop
// this).
func (c *Connection) Events() <-chan Event { return c.events }

// State returns the connection's current lifecycle state.
func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Connection) emit(ev Event) {
	ev.Server = c.cfg.ID
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	select {
	case c.events <- ev:
	default:
		c.log.Warn("dropping event, subscriber channel full", "kind", ev.Kind)
	}
}

// Run drives the connection's full lifecycle: connect, register, read
// until disconnect, then reconnect with backoff if AutoReconnect is set.
// It returns when stop is closed, when Close has been called, or when a
// cycle ends while AutoReconnect is off. While AutoReconnect is set,
// every failed cycle is retried, registration failures included; no
// kind of error ends the reconnect loop.
func (c *Connection) Run(stop <-chan struct{}) {
	delay := c.cfg.ReconnectDelay()
	for {
		err := c.runOnce(stop)

		select {
		case <-stop:
			c.setState(StateDisconnected)
			return
		default:
		}

		c.mu.RLock()
		closing := c.closing
		c.mu.RUnlock()
		if err == nil || closing || !c.cfg.AutoReconnect {
			c.setState(StateDisconnected)
			c.emit(Event{Kind: EventDisconnected, Reason: errString(err)})
			return
		}

		c.setState(StateReconnecting)
		c.emit(Event{Kind: EventReconnecting, Err: err, Reason: delay.String()})

		select {
		case <-time.After(delay):
		case <-stop:
			return
		}

		c.mu.RLock()
		closing = c.closing
		c.mu.RUnlock()
		if closing {
			c.setState(StateDisconnected)
			c.emit(Event{Kind: EventDisconnected})
			return
		}

		delay *= 2
		max := time.Duration(config.MaxReconnectDelaySeconds) * time.Second
		if delay > max {
			delay = max
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// runOnce performs one connect-register-read cycle, returning when the
// connection drops or registration fails.
func (c *Connection) runOnce(stop <-chan struct{}) error {
	c.setState(StateConnecting)
	conn, err := c.dial()
	if err != nil {
		return errors.Wrap(err, "ircconn: dial")
	}

	c.mu.Lock()
	c.conn = conn
	c.reader = ircreader.NewIRCReader(conn)
	c.isup = NewISupport()
	c.room = newRoomState(c.isup)
	c.nickIdx = -1
	c.missedPing = 0
	c.mu.Unlock()

	burst, interval := c.cfg.FloodBucket()
	c.flood = newFloodQueue(burst, interval)

	c.stopRead = make(chan struct{})
	c.stopWrite = make(chan struct{})

	c.wg.Add(1)
	go c.writeLoop()

	c.setState(StateNegotiating)
	if err := c.register(); err != nil {
		c.teardown()
		return err
	}

	c.emit(Event{Kind: EventConnected})

	readErr := c.readLoop(stop)
	c.teardown()
	return readErr
}

func (c *Connection) dial() (net.Conn, error) {
	dcfg := transport.DialConfig{
		Host:                     c.cfg.Host,
		Port:                     c.cfg.EffectivePort(),
		TLS:                      c.cfg.TLS,
		AcceptInvalidCertificate: c.cfg.AcceptInvalidCertificate,
		DialTimeout:              30 * time.Second,
	}
	if c.cfg.Proxy.Enabled() {
		dcfg.Proxy = &transport.ProxyConfig{
			Kind:     proxyKind(c.cfg.Proxy.Kind),
			Host:     c.cfg.Proxy.Host,
			Port:     c.cfg.Proxy.Port,
			Username: c.cfg.Proxy.Username,
		}
	}
	if c.cfg.ClientCertPath != "" {
		cert, err := tls.LoadX509KeyPair(c.cfg.ClientCertPath, c.cfg.ClientCertPath)
		if err == nil {
			dcfg.ClientCertificates = []tls.Certificate{cert}
		}
	}
	return transport.Dial(dcfg)
}

func proxyKind(k config.ProxyKind) transport.ProxyKind {
	switch k {
	case config.ProxySOCKS4:
		return transport.ProxySOCKS4
	case config.ProxySOCKS5:
		return transport.ProxySOCKS5
	case config.ProxyHTTP:
		return transport.ProxyHTTPConnect
	default:
		return transport.ProxyNone
	}
}

func (c *Connection) teardown() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if c.stopWrite != nil {
		close(c.stopWrite)
	}
	if conn != nil {
		conn.Close()
	}
	c.wg.Wait()
}

// Close requests the connection be torn down; Run will return once the
// teardown completes.
func (c *Connection) Close() {
	c.mu.Lock()
	c.closing = true
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (c *Connection) writeLoop() {
	defer c.wg.Done()
	c.flood.Drain(c.stopWrite, func(line []byte) {
		c.writeRaw(line)
	})
}

func (c *Connection) writeRaw(line []byte) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return
	}
	if _, err := conn.Write(line); err != nil {
		c.log.Debug("write error", "err", err)
	}
	c.log.Debug("sent", "line", strings.TrimRight(string(line), "\r\n"))
	c.emit(Event{Kind: EventRawMessageReceived, Raw: &RawLine{Line: strings.TrimRight(string(line), "\r\n"), Outbound: true}})
}

// send queues a message for flood-controlled delivery.
func (c *Connection) send(msg *ircmsg.Message, priority Priority) {
	line := msg.String() + "\r\n"
	c.flood.Enqueue([]byte(line), priority)
}

// sendNow bypasses the flood queue entirely (PONG replies).
func (c *Connection) sendNow(msg *ircmsg.Message) {
	line := []byte(msg.String() + "\r\n")
	c.flood.SendNow(line, c.writeRaw)
}

// SendMessage queues a PRIVMSG to target.
func (c *Connection) SendMessage(target, text string) {
	c.send(&ircmsg.Message{Command: ircmsg.PRIVMSG, Params: []string{target, text}}, PriorityNormal)
}

// SendNotice queues a NOTICE to target.
func (c *Connection) SendNotice(target, text string) {
	c.send(&ircmsg.Message{Command: ircmsg.NOTICE, Params: []string{target, text}}, PriorityNormal)
}

// SendAction queues a CTCP ACTION to target.
func (c *Connection) SendAction(target, text string) {
	c.SendMessage(target, "\x01ACTION "+text+"\x01")
}

// SendRaw queues an already-formatted line verbatim at the given priority.
func (c *Connection) SendRaw(line string, priority Priority) {
	c.flood.Enqueue([]byte(strings.TrimRight(line, "\r\n")+"\r\n"), priority)
}

// Join queues a JOIN.
func (c *Connection) Join(channel, key string) {
	params := []string{channel}
	if key != "" {
		params = append(params, key)
	}
	c.send(&ircmsg.Message{Command: ircmsg.JOIN, Params: params}, PriorityNormal)
}

// Part queues a PART.
func (c *Connection) Part(channel, reason string) {
	params := []string{channel}
	if reason != "" {
		params = append(params, reason)
	}
	c.send(&ircmsg.Message{Command: ircmsg.PART, Params: params}, PriorityNormal)
}

// SetMode queues a MODE change.
func (c *Connection) SetMode(target, modes string, args ...string) {
	params := append([]string{target, modes}, args...)
	c.send(&ircmsg.Message{Command: ircmsg.MODE, Params: params}, PriorityNormal)
}

// Kick queues a KICK.
func (c *Connection) Kick(channel, nick, reason string) {
	params := []string{channel, nick}
	if reason != "" {
		params = append(params, reason)
	}
	c.send(&ircmsg.Message{Command: ircmsg.KICK, Params: params}, PriorityHigh)
}

// Channel exposes the tracked room state for inspection.
func (c *Connection) Channel(name string) *Channel {
	c.mu.RLock()
	room := c.room
	c.mu.RUnlock()
	return room.Channel(name)
}

// ISupport exposes the negotiated server dialect parameters.
func (c *Connection) ISupport() *ISupport {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isup
}

// readLoop reads and dispatches lines until the connection closes or stop
// fires. It owns all room-state mutation (spec.md section 5).
func (c *Connection) readLoop(stop <-chan struct{}) error {
	c.mu.RLock()
	conn := c.conn
	reader := c.reader
	c.mu.RUnlock()

	done := make(chan struct{})
	var readErr error
	go func() {
		defer close(done)
		for {
			line, err := reader.ReadLine()
			if err != nil {
				readErr = err
				return
			}
			c.handleLine(strings.TrimRight(string(line), "\r\n"))
		}
	}()

	select {
	case <-done:
		return readErr
	case <-stop:
		conn.Close()
		<-done
		return nil
	}
}

func (c *Connection) handleLine(raw string) {
	if raw == "" {
		return
	}
	msg, err := ircmsg.Parse(raw)
	if err != nil {
		c.log.Debug("unparseable line", "line", raw, "err", err)
		return
	}
	c.emit(Event{Kind: EventRawMessageReceived, Raw: &RawLine{Line: raw}})

	switch msg.Command {
	case ircmsg.PING:
		pong := &ircmsg.Message{Command: ircmsg.PONG, Params: msg.Params}
		c.sendNow(pong)
		return
	case ircmsg.PONG:
		c.handlePong()
		return
	case ircmsg.JOIN:
		c.room.handleJoin(msg)
		c.emitNickHostEvent(EventJoined, msg, msg.Param(0))
		return
	case ircmsg.PART:
		c.room.handlePart(msg)
		c.emitNickHostEvent(EventParted, msg, msg.Param(0))
		return
	case ircmsg.KICK:
		c.room.handleKick(msg)
		c.emit(Event{Kind: EventKicked, Nick: ircmsg.Host(msg.Prefix).Nick(), Channel: msg.Param(0), Target: msg.Param(1), Reason: msg.Param(2)})
		return
	case ircmsg.QUIT:
		c.room.handleQuit(msg)
		c.emitNickHostEvent(EventQuit, msg, "")
		return
	case ircmsg.NICK:
		oldNick := ircmsg.Host(msg.Prefix).Nick()
		c.room.handleNick(msg)
		c.emit(Event{Kind: EventNickChanged, Nick: oldNick, Target: msg.Param(0)})
		return
	case ircmsg.MODE:
		c.room.handleMode(msg)
		c.emit(Event{Kind: EventModeChanged, Channel: msg.Param(0), ModeString: msg.Param(1), ModeArgs: msg.Params[minInt(2, len(msg.Params)):]})
		return
	case ircmsg.TOPIC:
		c.room.handleTopic(msg)
		c.emit(Event{Kind: EventTopicChanged, Channel: msg.Param(0), Topic: msg.Param(1), TopicSetter: ircmsg.Host(msg.Prefix).Nick()})
		return
	case ircmsg.PRIVMSG:
		c.dispatchText(msg, false)
		return
	case ircmsg.NOTICE:
		c.dispatchText(msg, true)
		return
	case ircmsg.ERROR:
		c.emit(Event{Kind: EventError, Text: msg.Trailing()})
		return
	}

	if msg.IsNumeric() {
		c.handleNumeric(msg)
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (c *Connection) emitNickHostEvent(kind EventKind, msg *ircmsg.Message, channel string) {
	nick, user, host := ircmsg.Host(msg.Prefix).Split()
	if nick == "" {
		nick = msg.Prefix
	}
	reason := ""
	if len(msg.Params) > 0 {
		reason = msg.Params[len(msg.Params)-1]
	}
	c.emit(Event{Kind: kind, Nick: nick, User: user, Host: host, Channel: channel, Reason: reason})
}

func (c *Connection) dispatchText(msg *ircmsg.Message, notice bool) {
	if len(msg.Params) < 2 {
		return
	}
	target, text := msg.Params[0], msg.Params[1]
	nick, user, host := ircmsg.Host(msg.Prefix).Split()
	kind := EventChannelMessage
	isChan := ircmsg.IsChannel(target, c.isup.ChanTypes)
	if !isChan {
		kind = EventPrivateMessage
	}
	if notice {
		kind = EventNotice
	}
	ev := Event{Kind: kind, Nick: nick, User: user, Host: host, Text: text}
	if isChan {
		ev.Channel = target
	} else {
		ev.Target = target
	}
	c.emit(ev)
}

func (c *Connection) handlePong() {
	c.mu.Lock()
	c.missedPing = 0
	rtt := time.Since(c.lastPingAt)
	c.mu.Unlock()
	c.emit(Event{Kind: EventLatencyUpdated, RTT: rtt})
}
