package ircconn

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/munin-agent/munin/config"
	"github.com/munin-agent/munin/ircmsg"
)

// standardCaps are the IRCv3 capabilities requested on every connection
// when the server advertises them (spec.md section 4.1's CAP negotiation
// step). sasl is requested separately, conditional on credentials being
// configured.
var standardCaps = []string{
	"multi-prefix",
	"message-tags",
	"server-time",
	"batch",
	"account-notify",
	"extended-join",
	"away-notify",
	"chghost",
}

// register drives CAP negotiation, optional SASL, PASS/NICK/USER and
// waits for RPL_WELCOME (or a fatal registration error), consuming 005
// ISUPPORT tokens and retrying nick collisions along the way. It reads
// synchronously from c.reader; the async readLoop only starts once this
// returns successfully.
func (c *Connection) register() error {
	c.setState(StateRegistering)

	if c.cfg.ServerPass.Data != "" || hasSecretPlain(c.cfg.ServerPass) {
		pass, _ := revealSecret(c.cfg.ServerPass)
		if pass != "" {
			c.writeDirect(&ircmsg.Message{Command: ircmsg.PASS, Params: []string{pass}})
		}
	}

	wantSASL := !c.cfg.SASLUser.IsZero() || !c.cfg.SASLPass.IsZero()

	c.writeDirect(&ircmsg.Message{Command: ircmsg.CAP, Params: []string{"LS", "302"}})

	var availableCaps map[string]string
	capDeadline := time.Now().Add(10 * time.Second)

	for {
		line, err := c.readLineWithDeadline(capDeadline)
		if err != nil {
			return fmt.Errorf("ircconn: cap negotiation: %w", err)
		}
		msg, err := ircmsg.Parse(line)
		if err != nil {
			continue
		}
		if msg.Command != ircmsg.CAP {
			continue
		}
		if len(msg.Params) >= 3 && msg.Params[1] == "LS" {
			availableCaps = parseCapLS(msg.Trailing())
			if msg.Params[2] != "*" || len(msg.Params) == 3 {
				// Single-line LS reply (no continuation marker).
			}
			if len(msg.Params) >= 3 && msg.Params[2] != "*" {
				break
			}
			continue
		}
		if len(msg.Params) >= 3 && msg.Params[1] == "LS" && msg.Params[2] == "*" {
			continue
		}
		break
	}

	toRequest := make([]string, 0, len(standardCaps)+1)
	for _, cap := range standardCaps {
		if _, ok := availableCaps[cap]; ok {
			toRequest = append(toRequest, cap)
		}
	}
	if wantSASL {
		if _, ok := availableCaps["sasl"]; ok {
			toRequest = append(toRequest, "sasl")
		} else {
			wantSASL = false
		}
	}

	if len(toRequest) > 0 {
		c.writeDirect(&ircmsg.Message{Command: ircmsg.CAP, Params: []string{"REQ", strings.Join(toRequest, " ")}})
		if err := c.waitCapAck(capDeadline); err != nil {
			return err
		}
	}

	if wantSASL {
		if err := c.doSASL(capDeadline); err != nil {
			c.emit(Event{Kind: EventError, Text: err.Error(), Err: err})
			if c.cfg.SASLRequired {
				return err
			}
		}
	}

	c.writeDirect(&ircmsg.Message{Command: ircmsg.CAP, Params: []string{"END"}})

	return c.completeRegistration()
}

func hasSecretPlain(s interface{ IsZero() bool }) bool { return !s.IsZero() }

// revealSecret is a narrow seam so registration doesn't need a keystore
// reference; the caller (supervisor) is expected to have already resolved
// secrets into plaintext on the ServerConfig copy handed to a Connection.
// Secrets arriving still sealed have no plaintext to reveal here, so this
// returns empty rather than failing registration.
func revealSecret(s ircmsgSecret) (string, error) { return s.Plain(), nil }

// ircmsgSecret is the minimal surface ircconn needs from config.Secret,
// kept as an interface so this package does not import config's keystore
// dependency directly for the registration hot path.
type ircmsgSecret interface {
	Plain() string
	IsZero() bool
}

func parseCapLS(trailing string) map[string]string {
	out := make(map[string]string)
	for _, tok := range strings.Fields(trailing) {
		name, val, _ := strings.Cut(tok, "=")
		out[strings.ToLower(name)] = val
	}
	return out
}

func (c *Connection) waitCapAck(deadline time.Time) error {
	for {
		line, err := c.readLineWithDeadline(deadline)
		if err != nil {
			return fmt.Errorf("ircconn: cap ack: %w", err)
		}
		msg, err := ircmsg.Parse(line)
		if err != nil {
			continue
		}
		if msg.Command == ircmsg.CAP && len(msg.Params) >= 2 {
			switch msg.Params[1] {
			case "ACK", "NAK":
				return nil
			}
		}
	}
}

func (c *Connection) doSASL(deadline time.Time) error {
	c.writeDirect(&ircmsg.Message{Command: ircmsg.AUTHENTICATE, Params: []string{"PLAIN"}})

	for {
		line, err := c.readLineWithDeadline(deadline)
		if err != nil {
			return fmt.Errorf("ircconn: sasl authenticate: %w", err)
		}
		msg, err := ircmsg.Parse(line)
		if err != nil {
			continue
		}
		if msg.Command == ircmsg.AUTHENTICATE {
			break
		}
	}

	user, _ := revealSecret(c.cfg.SASLUser)
	pass, _ := revealSecret(c.cfg.SASLPass)
	if user == "" {
		user = c.cfg.Nick
	}
	payload := user + "\x00" + user + "\x00" + pass
	encoded := base64.StdEncoding.EncodeToString([]byte(payload))
	c.writeDirect(&ircmsg.Message{Command: ircmsg.AUTHENTICATE, Params: []string{encoded}})

	for {
		line, err := c.readLineWithDeadline(deadline)
		if err != nil {
			return fmt.Errorf("ircconn: sasl result: %w", err)
		}
		msg, err := ircmsg.Parse(line)
		if err != nil {
			continue
		}
		switch msg.Command {
		case ircmsg.RPL_SASLSUCCESS:
			return nil
		case ircmsg.RPL_SASLFAIL, ircmsg.RPL_SASLFAIL2:
			return fmt.Errorf("ircconn: sasl authentication failed")
		}
	}
}

func (c *Connection) completeRegistration() error {
	c.writeDirect(&ircmsg.Message{Command: ircmsg.NICK, Params: []string{c.cfg.Nick}})
	c.writeDirect(&ircmsg.Message{Command: ircmsg.USER, Params: []string{c.cfg.Username, "0", "*", c.cfg.Realname}})

	retries := 0
	for {
		line, err := c.readLineWithDeadline(time.Now().Add(60 * time.Second))
		if err != nil {
			return fmt.Errorf("ircconn: registration: %w", err)
		}
		msg, err := ircmsg.Parse(line)
		if err != nil {
			continue
		}

		switch msg.Command {
		case ircmsg.RPL_ISUPPORT:
			c.isup.Apply(msg.Params[1:])
		case ircmsg.ERR_NICKNAMEINUSE, ircmsg.ERR_ERRONEUSNICKNAME, ircmsg.ERR_UNAVAILRESOURCE:
			if retries >= config.DefaultNickCollisionRetries {
				return fmt.Errorf("ircconn: nick collision retries exhausted")
			}
			nextNick := c.nextNick(retries)
			c.writeDirect(&ircmsg.Message{Command: ircmsg.NICK, Params: []string{nextNick}})
			retries++
		case ircmsg.RPL_WELCOME:
			c.room.setSelf(c.currentNick(retries))
			c.setState(StateRegistered)
			c.runPostRegistration()
			return nil
		case ircmsg.ERR_PASSWDMISMATCH:
			return fmt.Errorf("ircconn: server password rejected")
		}
	}
}

// nextNick picks the next candidate nick: the configured alt nicks in
// order, then the primary nick with an underscore appended per extra
// retry past the alt list (spec.md section 4.1's collision handling).
func (c *Connection) nextNick(retryIdx int) string {
	if retryIdx < len(c.cfg.AltNicks) {
		return c.cfg.AltNicks[retryIdx]
	}
	extra := retryIdx - len(c.cfg.AltNicks) + 1
	return c.cfg.Nick + strings.Repeat("_", extra)
}

func (c *Connection) currentNick(retries int) string {
	if retries == 0 {
		return c.cfg.Nick
	}
	return c.nextNick(retries - 1)
}

func (c *Connection) runPostRegistration() {
	for _, line := range c.cfg.Perform {
		c.SendRaw(line, PriorityNormal)
	}
	for _, ch := range c.cfg.AutoJoin {
		c.Join(ch.Name, ch.Key)
	}
}

// writeDirect writes a line immediately, bypassing the flood queue and
// the write loop (both already running). It is only used during
// registration, before a server would ever flood-limit pre-registration
// traffic.
func (c *Connection) writeDirect(msg *ircmsg.Message) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return
	}
	line := msg.String() + "\r\n"
	conn.Write([]byte(line))
	c.log.Debug("sent", "line", msg.String())
}

func (c *Connection) readLineWithDeadline(deadline time.Time) (string, error) {
	c.mu.RLock()
	conn := c.conn
	reader := c.reader
	c.mu.RUnlock()
	if conn == nil || reader == nil {
		return "", fmt.Errorf("ircconn: not connected")
	}
	conn.SetReadDeadline(deadline)
	line, err := reader.ReadLine()
	conn.SetReadDeadline(time.Time{})
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(line), "\r\n"), nil
}

// handleNumeric processes numerics outside the registration sequence
// (whois accumulation, channel list, names/topic replies already handled
// by roomState).
func (c *Connection) handleNumeric(msg *ircmsg.Message) {
	switch msg.Command {
	case ircmsg.RPL_ISUPPORT:
		c.isup.Apply(msg.Params[1:])
	case ircmsg.RPL_NAMREPLY:
		c.room.handleNamesLine(msg)
	case ircmsg.RPL_ENDOFNAMES:
		c.room.handleNamesEnd(msg)
		c.emit(Event{Kind: EventChannelListComplete, Channel: msg.Param(1)})
	case ircmsg.RPL_TOPIC:
		if len(msg.Params) >= 3 {
			c.emit(Event{Kind: EventTopicChanged, Channel: msg.Param(1), Topic: msg.Param(2)})
		}
	case ircmsg.RPL_LIST:
		if len(msg.Params) >= 4 {
			c.emit(Event{Kind: EventChannelListEntry, Channel: msg.Param(1), Text: msg.Param(3)})
		}
	case ircmsg.RPL_LISTEND:
		c.emit(Event{Kind: EventChannelListComplete})
	case ircmsg.RPL_WHOISUSER:
		if len(msg.Params) >= 6 {
			c.whois().Nick = msg.Param(1)
			c.whois().User = msg.Param(2)
			c.whois().Host = msg.Param(3)
			c.whois().Realname = msg.Param(5)
		}
	case ircmsg.RPL_WHOISSERVER:
		if len(msg.Params) >= 3 {
			c.whois().Server = msg.Param(2)
		}
	case ircmsg.RPL_WHOISCHANNELS:
		if len(msg.Params) >= 3 {
			c.whois().Channels = strings.Fields(msg.Param(2))
		}
	case ircmsg.RPL_WHOISACCOUNT:
		if len(msg.Params) >= 3 {
			c.whois().Account = msg.Param(2)
		}
	case ircmsg.RPL_ENDOFWHOIS:
		info := c.takeWhois()
		if info != nil {
			c.emit(Event{Kind: EventWhoisReceived, WhoisInfo: info})
		}
	}
}

func (c *Connection) whois() *WhoisInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pendingWhois == nil {
		c.pendingWhois = &WhoisInfo{}
	}
	return c.pendingWhois
}

func (c *Connection) takeWhois() *WhoisInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	info := c.pendingWhois
	c.pendingWhois = nil
	return info
}
