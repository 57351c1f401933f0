package fixture

import (
	"fmt"
	"strings"
)

// Scope is the lifetime of a fixture instance. Wider scopes outlive and are
// shared by narrower ones.
type Scope int

const (
	Function Scope = iota
	Class
	Module
	Session
)

var scopeNames = [...]string{"function", "class", "module", "session"}

// String returns the lower-case scope name.
func (s Scope) String() string {
	if s < Function || s > Session {
		return fmt.Sprintf("scope(%d)", int(s))
	}
	return scopeNames[s]
}

// Wider reports whether s outlives other.
func (s Scope) Wider(other Scope) bool { return s > other }

// Valid reports whether s is one of the four known scopes.
func (s Scope) Valid() bool { return s >= Function && s <= Session }

// ParseScope parses a scope name. Matching is case-insensitive.
func ParseScope(name string) (Scope, error) {
	for i, n := range scopeNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return Scope(i), nil
		}
	}
	return Function, fmt.Errorf("unknown scope %q (want one of %v)", name, scopeNames)
}

// MarshalText implements encoding.TextMarshaler.
func (s Scope) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Scope) UnmarshalText(b []byte) error {
	parsed, err := ParseScope(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
