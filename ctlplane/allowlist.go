package ctlplane

import (
	"net"
	"strings"
)

// AllowList matches a connecting IP against configured literals, globs
// (`*`/`?`), and CIDR ranges (spec.md section 4.6). An empty list, or one
// containing the literal "*", permits any address.
type AllowList struct {
	entries []allowEntry
}

type allowEntry struct {
	cidr    *net.IPNet
	literal string // may contain * and ?
}

// NewAllowList compiles patterns into an AllowList.
func NewAllowList(patterns []string) *AllowList {
	al := &AllowList{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ipnet, err := net.ParseCIDR(p); err == nil {
			al.entries = append(al.entries, allowEntry{cidr: ipnet})
			continue
		}
		al.entries = append(al.entries, allowEntry{literal: p})
	}
	return al
}

// Allowed reports whether addr passes the list. A nil or empty list
// permits everything (spec.md section 4.6: "Empty list or * means any").
func (al *AllowList) Allowed(addr string) bool {
	if al == nil || len(al.entries) == 0 {
		return true
	}
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	ip := net.ParseIP(host)

	for _, e := range al.entries {
		if e.cidr != nil {
			if ip != nil && e.cidr.Contains(ip) {
				return true
			}
			continue
		}
		if e.literal == "*" {
			return true
		}
		if globMatch(e.literal, host) {
			return true
		}
	}
	return false
}

// globMatch implements shell-style * and ? matching, case sensitive
// (IP literals and hostnames are compared as given).
func globMatch(pattern, s string) bool {
	return globMatchRunes([]rune(pattern), []rune(s))
}

func globMatchRunes(pattern, s []rune) bool {
	if len(pattern) == 0 {
		return len(s) == 0
	}
	switch pattern[0] {
	case '*':
		if globMatchRunes(pattern[1:], s) {
			return true
		}
		for i := 0; i < len(s); i++ {
			if globMatchRunes(pattern[1:], s[i+1:]) {
				return true
			}
		}
		return false
	case '?':
		if len(s) == 0 {
			return false
		}
		return globMatchRunes(pattern[1:], s[1:])
	default:
		if len(s) == 0 || s[0] != pattern[0] {
			return false
		}
		return globMatchRunes(pattern[1:], s[1:])
	}
}
