package ircconn

import (
	"fmt"
	"strconv"
	"strings"
)

// ModeKind categorizes a channel mode letter per its CHANMODES ISUPPORT
// token (spec.md section 4.1, GLOSSARY "CHANMODES A/B/C/D").
type ModeKind int

const (
	// ModeNone means the letter was never declared a channel mode.
	ModeNone ModeKind = iota
	// ModeList is an "A" mode: always takes a parameter, and forms a list
	// (ban, except, invex).
	ModeList
	// ModeAlwaysParam is a "B" mode: always takes a parameter.
	ModeAlwaysParam
	// ModeParamOnSet is a "C" mode: takes a parameter only when being set.
	ModeParamOnSet
	// ModeNoParam is a "D" mode: never takes a parameter.
	ModeNoParam
)

// PrefixPair is one (mode letter, display symbol) pair from ISUPPORT
// PREFIX, e.g. ('o', '@').
type PrefixPair struct {
	Mode   rune
	Symbol rune
}

// ISupport holds the server dialect parameters negotiated via numeric 005
// (spec.md section 4.1's "consume 005 tokens" step).
type ISupport struct {
	Casemap      Casemap
	ChanTypes    string
	Prefixes     []PrefixPair
	ChanModes    map[rune]ModeKind
	ChanLimit    int
	NickLen      int
	Network      string
	raw          map[string]string
}

// NewISupport returns an ISupport populated with RFC-default values, used
// until 005 tokens arrive.
func NewISupport() *ISupport {
	is := &ISupport{
		Casemap:   CasemapRFC1459,
		ChanTypes: "#&",
		Prefixes: []PrefixPair{
			{'o', '@'}, {'v', '+'},
		},
		ChanModes: map[rune]ModeKind{
			'b': ModeList,
			'k': ModeParamOnSet,
			'l': ModeParamOnSet,
		},
		NickLen: 9,
		raw:     make(map[string]string),
	}
	return is
}

// Apply folds the parameters of a single 005 (RPL_ISUPPORT) message into
// is. Unknown tokens are stored verbatim and otherwise ignored.
func (is *ISupport) Apply(params []string) {
	for _, p := range params {
		if p == "" || strings.Contains(p, " are supported") {
			continue
		}
		key, val, hasVal := p, "", false
		if idx := strings.IndexByte(p, '='); idx >= 0 {
			key, val, hasVal = p[:idx], p[idx+1:], true
		}
		key = strings.ToUpper(key)
		is.raw[key] = val

		switch key {
		case "CASEMAPPING":
			is.Casemap = ParseCasemap(val)
		case "CHANTYPES":
			if hasVal {
				is.ChanTypes = val
			}
		case "PREFIX":
			if pairs, err := parsePrefix(val); err == nil {
				is.Prefixes = pairs
			}
		case "CHANMODES":
			if kinds, err := parseChanModes(val); err == nil {
				is.ChanModes = kinds
			}
		case "CHANLIMIT":
			is.ChanLimit = firstInt(val)
		case "NICKLEN", "MAXNICKLEN":
			if n, err := strconv.Atoi(val); err == nil {
				is.NickLen = n
			}
		case "NETWORK":
			is.Network = val
		}
	}
}

func firstInt(val string) int {
	for _, part := range strings.Split(val, ",") {
		kv := strings.SplitN(part, ":", 2)
		if len(kv) == 2 {
			if n, err := strconv.Atoi(kv[1]); err == nil {
				return n
			}
		}
	}
	return 0
}

// parsePrefix parses the "(ov)@+" form of ISUPPORT PREFIX.
func parsePrefix(prefix string) ([]PrefixPair, error) {
	if len(prefix) == 0 || prefix[0] != '(' {
		return nil, fmt.Errorf("ircconn: malformed PREFIX token %q", prefix)
	}
	split := strings.IndexRune(prefix, ')')
	if split < 0 {
		return nil, fmt.Errorf("ircconn: malformed PREFIX token %q", prefix)
	}
	modes := []rune(prefix[1:split])
	symbols := []rune(prefix[split+1:])
	if len(modes) != len(symbols) {
		return nil, fmt.Errorf("ircconn: mismatched PREFIX token %q", prefix)
	}
	pairs := make([]PrefixPair, len(modes))
	for i := range modes {
		pairs[i] = PrefixPair{Mode: modes[i], Symbol: symbols[i]}
	}
	return pairs, nil
}

// parseChanModes parses the "A,B,C,D" form of ISUPPORT CHANMODES.
func parseChanModes(val string) (map[rune]ModeKind, error) {
	groups := strings.Split(val, ",")
	if len(groups) != 4 {
		return nil, fmt.Errorf("ircconn: malformed CHANMODES token %q", val)
	}
	kinds := make(map[rune]ModeKind)
	assign := func(letters string, kind ModeKind) {
		for _, r := range letters {
			kinds[r] = kind
		}
	}
	assign(groups[0], ModeList)
	assign(groups[1], ModeAlwaysParam)
	assign(groups[2], ModeParamOnSet)
	assign(groups[3], ModeNoParam)
	return kinds, nil
}

// HighestPrefix returns the highest-ranked prefix symbol among the given
// mode letters a user holds (owner > admin > op > halfop > voice), or 0
// if none apply. Prefixes are ranked by their position in is.Prefixes,
// which mirrors the order the server advertised them (highest first, per
// convention).
func (is *ISupport) HighestPrefix(userModes map[rune]bool) rune {
	for _, pair := range is.Prefixes {
		if userModes[pair.Mode] {
			return pair.Symbol
		}
	}
	return 0
}

// ModeForSymbol maps a prefix display symbol (e.g. '@') back to its mode
// letter (e.g. 'o').
func (is *ISupport) ModeForSymbol(symbol rune) (rune, bool) {
	for _, pair := range is.Prefixes {
		if pair.Symbol == symbol {
			return pair.Mode, true
		}
	}
	return 0, false
}
