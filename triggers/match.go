package triggers

import (
	"regexp"
	"strings"

	"github.com/munin-agent/munin/access"
)

// filterMatch reports whether a Trigger's server/channel/nick filter
// field matches value. Empty filter matches anything; filters containing
// '*' or '?' are globs, otherwise literal case-insensitive comparison
// (spec.md section 4.2).
func filterMatch(filter, value string) bool {
	if filter == "" {
		return true
	}
	if strings.ContainsAny(filter, "*?") {
		return access.MatchHostmask(filter, value)
	}
	return strings.EqualFold(filter, value)
}

// commandToken returns the first whitespace-delimited token of text,
// used for command-style prefix matching (spec.md section 4.2: "command
// style prefixes (!, .) match the first whitespace-delimited token
// exactly").
func commandToken(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// textMatch applies t's match/match_type against the event text.
func textMatch(t *Trigger, text string) bool {
	if t.Match == "" {
		return true
	}

	switch t.effectiveMatchType() {
	case MatchExact:
		return text == t.Match
	case MatchStartsWith:
		return strings.HasPrefix(text, t.Match)
	case MatchEndsWith:
		return strings.HasSuffix(text, t.Match)
	case MatchRegex:
		re, err := regexp.Compile(t.Match)
		if err != nil {
			return false
		}
		return re.MatchString(text)
	case MatchWildcard:
		return access.MatchHostmask(t.Match, text)
	case MatchContains:
		fallthrough
	default:
		if isCommandPrefix(t.Match) {
			return commandToken(text) == t.Match
		}
		return strings.Contains(text, t.Match)
	}
}

// isCommandPrefix reports whether a match string looks like a
// command-style trigger (begins with "!" or ".") rather than a free-text
// substring, per spec.md section 4.2.
func isCommandPrefix(match string) bool {
	return strings.HasPrefix(match, "!") || strings.HasPrefix(match, ".")
}

// argsAfterCommand returns everything in text after the first
// whitespace-delimited token, trimmed of leading space -- the {args}
// expansion value for command-style triggers.
func argsAfterCommand(text string) string {
	fields := strings.SplitN(text, " ", 2)
	if len(fields) < 2 {
		return ""
	}
	return strings.TrimLeft(fields[1], " ")
}
