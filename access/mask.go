package access

import "strings"

// MatchHostmask reports whether hostmask (nick!user@host) satisfies the
// glob pattern, which may itself contain * and ? wildcards. Matching is
// case-insensitive and symmetric: MatchHostmask(p, h) == MatchHostmask(
// lower(p), lower(h)) for any p, h (spec.md section 8's universal
// invariant), grounded on the teacher's irc.WildMask.Match
// (irc/mask.go).
func MatchHostmask(pattern, hostmask string) bool {
	return globMatch(strings.ToLower(pattern), strings.ToLower(hostmask))
}

// globMatch implements '*'/'?' glob matching over ASCII strings.
func globMatch(pattern, s string) bool {
	pl, sl := len(pattern), len(s)
	var i, j, consume int

	for i < pl && j < sl {
		switch pattern[i] {
		case '?', '*':
			star := false
			consume = 0
			for i < pl && (pattern[i] == '*' || pattern[i] == '?') {
				star = star || pattern[i] == '*'
				i++
				consume++
			}
			if star {
				consume = -1
			}
		case s[j]:
			consume = 0
			i++
			j++
		default:
			if consume != 0 {
				consume--
				j++
			} else {
				return false
			}
		}
	}

	for i < pl && (pattern[i] == '?' || pattern[i] == '*') {
		i++
	}

	if consume < 0 {
		consume = sl - j
	}
	j += consume

	return i >= pl && j >= sl
}
