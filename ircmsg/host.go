package ircmsg

import (
	"regexp"
	"strings"
)

var (
	rgxHost = regexp.MustCompile(
		`(?i)^` +
			`([\w\x5B-\x60][\w\d\x5B-\x60]*)` + // nickname
			`!([^\0@\s]+)` + // username
			`@([^\0\s]+)` + // host
			`$`,
	)

	rgxMask = regexp.MustCompile(
		`(?i)^` +
			`([\w\x5B-\x60\?\*][\w\d\x5B-\x60\?\*]*)` + // nickname
			`!([^\0@\s]+)` + // username
			`@([^\0\s]+)` + // host
			`$`,
	)
)

// Host is nick!user@host, the identity string carried in a Message's
// Prefix field when the sender is a client.
type Host string

// Nick returns the nick portion of the host.
func (h Host) Nick() string { nick, _, _ := h.Split(); return nick }

// Username returns the username portion of the host.
func (h Host) Username() string { _, user, _ := h.Split(); return user }

// Hostname returns the hostname portion of the host.
func (h Host) Hostname() string { _, _, host := h.Split(); return host }

// Split splits a host into nick, username and hostname. If h is not a
// valid nick!user@host string, all three results are empty.
func (h Host) Split() (nick, user, hostname string) {
	fragments := rgxHost.FindStringSubmatch(string(h))
	if len(fragments) == 0 {
		return "", "", ""
	}
	return fragments[1], fragments[2], fragments[3]
}

// IsValid reports whether h is a well-formed nick!user@host string.
func (h Host) IsValid() bool { return rgxHost.MatchString(string(h)) }

// String returns the fullhost as a string.
func (h Host) String() string { return string(h) }

// Match reports whether the glob Mask m matches this Host.
func (h Host) Match(m Mask) bool { return globMatch(string(h), string(m)) }

// Mask is a hostmask pattern using '*' and '?' glob characters, e.g.
// "*!*@host.example.com".
type Mask string

// IsValid reports whether m is a well-formed nick!user@host glob.
func (m Mask) IsValid() bool { return rgxMask.MatchString(string(m)) }

// Split splits a mask into its nick, user and host glob fragments.
func (m Mask) Split() (nick, user, host string) {
	fragments := rgxMask.FindStringSubmatch(string(m))
	if len(fragments) == 0 {
		return "", "", ""
	}
	return fragments[1], fragments[2], fragments[3]
}

// Match reports whether the given Host satisfies this Mask.
func (m Mask) Match(h Host) bool { return globMatch(string(h), string(m)) }

// BanMaskKind selects how DeriveBanMask derives a ban mask from a full
// hostmask, per spec section 4.3.
type BanMaskKind int

const (
	// BanHostOnly produces "*!*@host" (the default).
	BanHostOnly BanMaskKind = iota
	// BanNickOnly produces "nick!*@*".
	BanNickOnly
	// BanUserOnly produces "*!user@*".
	BanUserOnly
	// BanFull produces "nick!user@host" verbatim.
	BanFull
)

// DeriveBanMask builds a ban mask from a full hostmask string using kind.
func DeriveBanMask(full string, kind BanMaskKind) string {
	nick, user, host := Host(full).Split()
	if nick == "" {
		// Not a well-formed hostmask; fall back to wildcarding
		// everything we can't parse out.
		return "*!*@" + full
	}
	switch kind {
	case BanNickOnly:
		return nick + "!*@*"
	case BanUserOnly:
		return "*!" + user + "@*"
	case BanFull:
		return nick + "!" + user + "@" + host
	default:
		return "*!*@" + host
	}
}

// globMatch matches str against a glob pattern using '*' and '?',
// case-insensitively. match(p, h) == match(lower(p), lower(h)) for all
// inputs, satisfying spec section 8's symmetry invariant.
func globMatch(str, pattern string) bool {
	return globMatchFold(strings.ToLower(str), strings.ToLower(pattern))
}

func globMatchFold(str, pattern string) bool {
	// Classic glob matcher via DP over small alphabet-free strings.
	sLen, pLen := len(str), len(pattern)
	dp := make([][]bool, sLen+1)
	for i := range dp {
		dp[i] = make([]bool, pLen+1)
	}
	dp[0][0] = true
	for j := 1; j <= pLen; j++ {
		if pattern[j-1] == '*' {
			dp[0][j] = dp[0][j-1]
		}
	}
	for i := 1; i <= sLen; i++ {
		for j := 1; j <= pLen; j++ {
			switch pattern[j-1] {
			case '*':
				dp[i][j] = dp[i-1][j] || dp[i][j-1]
			case '?':
				dp[i][j] = dp[i-1][j-1]
			default:
				dp[i][j] = dp[i-1][j-1] && str[i-1] == pattern[j-1]
			}
		}
	}
	return dp[sLen][pLen]
}
