package access

import "strings"

// Flag is one of the single-letter access flags catalogued in spec.md
// section 4.4. Flag semantics are fixed; only which handles carry which
// flags is configurable.
type Flag rune

const (
	FlagOwner     Flag = 'n'
	FlagMaster    Flag = 'm'
	FlagOperator  Flag = 'o'
	FlagVoice     Flag = 'v'
	FlagPartyline Flag = 'p'
	FlagFile      Flag = 'x'
	FlagJanitor   Flag = 'j'
	FlagFriend    Flag = 'f'
	FlagAutoOp    Flag = 'a'
	FlagAutoVoice Flag = 'g'
	FlagBotnet    Flag = 't'
	FlagBotPeer   Flag = 'b'
	FlagDeop      Flag = 'd'
	FlagAutoKick  Flag = 'k'
)

// allFlags is the closed set of recognized flag letters, used to reject
// garbage input in Set/Parse rather than silently accepting it.
var allFlags = "nmovpxjfagtbdk"

// IsValidFlag reports whether r is one of the recognized flag letters.
func IsValidFlag(r rune) bool {
	return strings.ContainsRune(allFlags, r)
}

// FlagSet is a bitmask over the flag alphabet; the zero value carries no
// flags. Bit positions are stable for the lifetime of the flag alphabet
// above, so a FlagSet round-trips through its String/Parse form.
type FlagSet uint32

func bitFor(r rune) FlagSet {
	i := strings.IndexRune(allFlags, r)
	if i < 0 {
		return 0
	}
	return FlagSet(1) << uint(i)
}

// ParseFlags builds a FlagSet from a string of flag letters, ignoring any
// character not in the recognized alphabet.
func ParseFlags(s string) FlagSet {
	var fs FlagSet
	for _, r := range s {
		fs |= bitFor(r)
	}
	return fs
}

// Has reports whether fs carries every flag in want.
func (fs FlagSet) Has(want FlagSet) bool {
	return want != 0 && fs&want == want
}

// HasAny reports whether fs carries at least one flag in want.
func (fs FlagSet) HasAny(want FlagSet) bool {
	return fs&want != 0
}

// HasFlag reports whether fs carries the single flag r.
func (fs FlagSet) HasFlag(r rune) bool {
	return fs&bitFor(r) != 0
}

// Set returns fs with the given flags added.
func (fs FlagSet) Set(flags string) FlagSet {
	return fs | ParseFlags(flags)
}

// Clear returns fs with the given flags removed.
func (fs FlagSet) Clear(flags string) FlagSet {
	return fs &^ ParseFlags(flags)
}

// IsPrivileged reports whether fs carries owner or master, which satisfy
// any permission check per spec.md section 4.4.
func (fs FlagSet) IsPrivileged() bool {
	return fs.HasFlag('n') || fs.HasFlag('m')
}

// String renders fs back to its letter form in the alphabet's canonical
// order, the inverse of ParseFlags.
func (fs FlagSet) String() string {
	var b strings.Builder
	for i, r := range allFlags {
		if fs&(FlagSet(1)<<uint(i)) != 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}
