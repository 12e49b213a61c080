package registry

import "strings"

// MatchMode is how a selector matched an account identity.
type MatchMode int

const (
	MatchNone MatchMode = iota
	MatchExact
	MatchPrefix
	MatchSuffix
	MatchSubstring
)

func (m MatchMode) String() string {
	switch m {
	case MatchExact:
		return "exact"
	case MatchPrefix:
		return "prefix"
	case MatchSuffix:
		return "suffix"
	case MatchSubstring:
		return "substring"
	default:
		return "none"
	}
}

// Match classifies how selector relates to id. Modes are checked in the
// order exact, prefix, suffix, substring. An empty selector never matches.
func Match(id, selector string) MatchMode {
	switch {
	case selector == "":
		return MatchNone
	case id == selector:
		return MatchExact
	case strings.HasPrefix(id, selector):
		return MatchPrefix
	case strings.HasSuffix(id, selector):
		return MatchSuffix
	case strings.Contains(id, selector):
		return MatchSubstring
	}
	return MatchNone
}

// FirstMatch returns the index of the first id in scan order that matches
// selector in any mode, skipping indexes for which skip returns true.
// It returns -1 when nothing matches.
func FirstMatch(ids []string, selector string, skip func(int) bool) int {
	for i, id := range ids {
		if skip != nil && skip(i) {
			continue
		}
		if Match(id, selector) != MatchNone {
			return i
		}
	}
	return -1
}
