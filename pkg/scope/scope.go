// Package scope implements the compact permission-scope encoding used for
// storage and comparison, plus the standard scope catalog.
//
// The canonical wire form is a sequence of "@"-prefixed lowercase codes with
// no separator, e.g. "@r@e@c". Two legacy forms remain readable for data
// migrated from the previous schema: a comma-separated list and a JSON array
// string. Only the canonical form is ever written.
package scope

import (
	"encoding/json"
	"sort"
	"strings"
)

// Standard scope codes.
const (
	Read    = "r"
	Create  = "c"
	Update  = "u"
	Delete  = "d"
	Execute = "e"

	// All is the reserved wildcard code meaning every standard scope.
	All = "all"
)

// Definition describes a scope catalog entry.
type Definition struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// StandardDefinitions returns the built-in scope catalog.
func StandardDefinitions() []Definition {
	return []Definition{
		{Code: Read, Name: "Read", Description: "View the resource"},
		{Code: Create, Name: "Create", Description: "Create entries under the resource"},
		{Code: Update, Name: "Update", Description: "Modify the resource"},
		{Code: Delete, Name: "Delete", Description: "Delete the resource"},
		{Code: Execute, Name: "Execute", Description: "Invoke actions exposed by the resource"},
		{Code: All, Name: "All", Description: "Every standard scope"},
	}
}

// Set is an unordered collection of scope codes.
type Set map[string]struct{}

// NewSet builds a set from the given codes. Codes are lower-cased; empty
// codes are dropped.
func NewSet(codes ...string) Set {
	s := make(Set, len(codes))
	for _, c := range codes {
		s.Add(c)
	}
	return s
}

// StandardSet returns the full standard scope set (r, c, u, d, e).
func StandardSet() Set {
	return NewSet(Read, Create, Update, Delete, Execute)
}

// Add inserts a code into the set.
func (s Set) Add(code string) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return
	}
	s[code] = struct{}{}
}

// Contains reports whether the set holds the exact code.
func (s Set) Contains(code string) bool {
	_, ok := s[strings.ToLower(strings.TrimSpace(code))]
	return ok
}

// HasAll reports whether the set carries the wildcard code.
func (s Set) HasAll() bool {
	_, ok := s[All]
	return ok
}

// Allows reports whether the set grants the given code, honoring the
// wildcard shortcut.
func (s Set) Allows(code string) bool {
	return s.HasAll() || s.Contains(code)
}

// Union merges other into s and returns s.
func (s Set) Union(other Set) Set {
	for c := range other {
		s[c] = struct{}{}
	}
	return s
}

// Equal reports whether both sets hold the same codes.
func (s Set) Equal(other Set) bool {
	if len(s) != len(other) {
		return false
	}
	for c := range s {
		if _, ok := other[c]; !ok {
			return false
		}
	}
	return true
}

// Codes returns the codes in sorted order.
func (s Set) Codes() []string {
	codes := make([]string, 0, len(s))
	for c := range s {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// Encode emits the canonical wire form: "@"-prefixed codes, sorted,
// concatenated without separators. The empty set encodes to "".
func Encode(s Set) string {
	if len(s) == 0 {
		return ""
	}
	var b strings.Builder
	for _, c := range s.Codes() {
		b.WriteByte('@')
		b.WriteString(c)
	}
	return b.String()
}

// Decode parses any of the three accepted scope encodings, in priority
// order: canonical "@"-prefixed, JSON array, comma-separated. A JSON parse
// failure yields the empty set rather than an error; callers treat empty as
// "no permission", so lenient decoding cannot widen access.
func Decode(raw string) Set {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Set{}
	}

	switch {
	case strings.HasPrefix(raw, "@"):
		return NewSet(strings.Split(raw, "@")...)
	case strings.HasPrefix(raw, "["):
		var codes []string
		if err := json.Unmarshal([]byte(raw), &codes); err != nil {
			return Set{}
		}
		return NewSet(codes...)
	default:
		return NewSet(strings.Split(raw, ",")...)
	}
}
