// Package ircmsg parses and serializes the IRC wire protocol, including
// IRCv3 message tags and batches. It is the common currency type passed
// between the transport, connection manager and dispatch layers.
package ircmsg

import (
	"strings"

	ergo "github.com/ergochat/irc-go/ircmsg"
)

// MaxLineLength is the maximum length of a line, including tags and prefix
// but excluding the trailing CRLF.
const MaxLineLength = 512

// Message is a single parsed IRC protocol line.
//
// Command is either an alphabetic command name (uppercased) or a 3-digit
// numeric reply code. Params holds up to 15 parameters; the last one may
// contain spaces if it was introduced with a leading ':' on the wire.
type Message struct {
	Tags    map[string]string
	Prefix  string
	Command string
	Params  []string

	// Batch is the batch reference this message belongs to, if any
	// (set externally by the batch tracker, not parsed from a single line).
	Batch string
}

// ParseError is returned when a line could not be parsed as IRC protocol.
type ParseError struct {
	Msg  string
	Line string
}

func (p ParseError) Error() string { return p.Msg }

// Parse converts a single CRLF-stripped wire line into a Message.
//
// Lines that fail strict UTF-8 decoding are not rejected here -- the
// transport is responsible for the latin-1 fallback described in spec
// section 4.1 before bytes ever reach Parse.
func Parse(line string) (*Message, error) {
	if len(line) == 0 {
		return nil, ParseError{Msg: "ircmsg: empty line", Line: line}
	}

	parsed, err := ergo.ParseLineStrict(line, true, MaxLineLength)
	if err != nil {
		return nil, ParseError{Msg: "ircmsg: " + err.Error(), Line: line}
	}

	m := &Message{
		Prefix:  parsed.Source,
		Command: strings.ToUpper(parsed.Command),
		Params:  append([]string(nil), parsed.Params...),
	}

	if len(parsed.Tags) > 0 {
		m.Tags = make(map[string]string, len(parsed.Tags))
		for k, v := range parsed.Tags {
			m.Tags[k] = v
		}
	}

	return m, nil
}

// String serializes the Message back into a wire line (without CRLF).
// Round-tripping Parse -> String -> Parse is required to be an identity on
// Command, Params and Tags (spec section 8).
func (m *Message) String() string {
	ergoMsg := ergo.MakeMessage(m.Tags, m.Prefix, m.Command, m.Params...)
	line, err := ergoMsg.Line()
	if err != nil {
		// Fall back to a manual render; this only happens for
		// pathologically malformed in-memory messages (e.g. an
		// oversized trailing param) which Line() refuses to encode.
		return m.renderFallback()
	}
	return strings.TrimRight(line, "\r\n")
}

func (m *Message) renderFallback() string {
	var b strings.Builder
	if len(m.Tags) > 0 {
		b.WriteByte('@')
		first := true
		for k, v := range m.Tags {
			if !first {
				b.WriteByte(';')
			}
			first = false
			b.WriteString(escapeTagValue(k))
			if v != "" {
				b.WriteByte('=')
				b.WriteString(escapeTagValue(v))
			}
		}
		b.WriteByte(' ')
	}
	if m.Prefix != "" {
		b.WriteByte(':')
		b.WriteString(m.Prefix)
		b.WriteByte(' ')
	}
	b.WriteString(m.Command)
	for i, p := range m.Params {
		b.WriteByte(' ')
		if i == len(m.Params)-1 && (strings.Contains(p, " ") || strings.HasPrefix(p, ":") || p == "") {
			b.WriteByte(':')
		}
		b.WriteString(p)
	}
	return b.String()
}

var tagEscapes = strings.NewReplacer(
	"\\", "\\\\",
	";", "\\:",
	" ", "\\s",
	"\r", "\\r",
	"\n", "\\n",
)

func escapeTagValue(s string) string { return tagEscapes.Replace(s) }

// IsNumeric reports whether Command is a 3-digit numeric reply.
func (m *Message) IsNumeric() bool {
	if len(m.Command) != 3 {
		return false
	}
	for _, r := range m.Command {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Trailing returns the last parameter, or "" if there are none. This is
// the parameter that was introduced by a leading ':' on the wire, per the
// "trailing parameter starts at first ' :'" rule in spec section 4.1.
func (m *Message) Trailing() string {
	if len(m.Params) == 0 {
		return ""
	}
	return m.Params[len(m.Params)-1]
}

// Param returns the i'th parameter, or "" if out of range.
func (m *Message) Param(i int) string {
	if i < 0 || i >= len(m.Params) {
		return ""
	}
	return m.Params[i]
}
