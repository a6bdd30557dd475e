package triggers

import (
	"strconv"
	"strings"
	"time"
)

// Vars carries the substitution values available to a trigger's template
// (spec.md section 4.2). Fields left empty simply expand to "".
type Vars struct {
	Server  string
	Nick    string
	Channel string
	Text    string
	Me      string
	Args    string

	OldNick string
	NewNick string
	Topic   string
	Kicker  string
	Kicked  string
	Reason  string

	At time.Time
}

// Expand renders template against v: curly placeholders are substituted,
// "{{" and "}}" escape to literal "{" and "}", and any placeholder not
// recognized expands to the empty string (spec.md section 4.2).
func Expand(template string, v Vars) string {
	var b strings.Builder
	b.Grow(len(template))

	at := v.At
	if at.IsZero() {
		at = time.Now()
	}
	tokens := strings.Fields(v.Args)

	i := 0
	n := len(template)
	for i < n {
		switch {
		case template[i] == '{' && i+1 < n && template[i+1] == '{':
			b.WriteByte('{')
			i += 2
		case template[i] == '}' && i+1 < n && template[i+1] == '}':
			b.WriteByte('}')
			i += 2
		case template[i] == '{':
			end := strings.IndexByte(template[i+1:], '}')
			if end < 0 {
				b.WriteString(template[i:])
				i = n
				continue
			}
			name := template[i+1 : i+1+end]
			b.WriteString(lookupVar(name, v, at, tokens))
			i += end + 2
		default:
			b.WriteByte(template[i])
			i++
		}
	}

	return b.String()
}

func lookupVar(name string, v Vars, at time.Time, tokens []string) string {
	switch name {
	case "server":
		return v.Server
	case "nick":
		return v.Nick
	case "channel":
		return v.Channel
	case "text":
		return v.Text
	case "me":
		return v.Me
	case "time":
		return at.Format("15:04:05")
	case "date":
		return at.Format("2006-01-02")
	case "args":
		return v.Args
	case "oldnick":
		return v.OldNick
	case "newnick":
		return v.NewNick
	case "topic":
		return v.Topic
	case "kicker":
		return v.Kicker
	case "kicked":
		return v.Kicked
	case "reason":
		return v.Reason
	}
	if n, err := strconv.Atoi(name); err == nil && n >= 1 && n <= 9 {
		if n-1 < len(tokens) {
			return tokens[n-1]
		}
		return ""
	}
	return ""
}
