package domain

import (
	"fmt"
	"strings"
)

// PermissionLevel is the access-control tag carried by documents and chunks.
// It is a closed enumeration; values outside it are rejected, never inferred.
type PermissionLevel string

// Available permission levels.
const (
	// PermissionPublic is visible to everyone.
	PermissionPublic PermissionLevel = "public"

	// PermissionDepartment is visible to members of the owning department.
	PermissionDepartment PermissionLevel = "department"

	// PermissionPrivate is visible only to the owner.
	PermissionPrivate PermissionLevel = "private"
)

// IsValid returns true if the permission level is recognised.
func (p PermissionLevel) IsValid() bool {
	switch p {
	case PermissionPublic, PermissionDepartment, PermissionPrivate:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (p PermissionLevel) String() string {
	return string(p)
}

// ParsePermissionLevel converts a string into a PermissionLevel.
func ParsePermissionLevel(s string) (PermissionLevel, error) {
	p := PermissionLevel(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("%w: unknown permission level %q", ErrInvalidInput, s)
	}
	return p, nil
}

// AllPermissionLevels returns every permission level.
func AllPermissionLevels() []PermissionLevel {
	return []PermissionLevel{
		PermissionPublic,
		PermissionDepartment,
		PermissionPrivate,
	}
}

// Scope is the set of permission levels a caller may read.
type Scope []PermissionLevel

// FullScope returns a scope covering every permission level.
func FullScope() Scope {
	return Scope(AllPermissionLevels())
}

// ParseScope parses a list of permission level names.
// Duplicates are collapsed; order follows first appearance.
func ParseScope(values []string) (Scope, error) {
	scope := make(Scope, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			p, err := ParsePermissionLevel(part)
			if err != nil {
				return nil, err
			}
			if !scope.Contains(p) {
				scope = append(scope, p)
			}
		}
	}
	return scope, nil
}

// Validate checks that the scope is non-empty and contains only known levels.
// An empty scope excludes all content and yields ErrPermissionDenied.
func (s Scope) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("%w: empty permission scope", ErrPermissionDenied)
	}
	for _, p := range s {
		if !p.IsValid() {
			return fmt.Errorf("%w: unknown permission level %q", ErrInvalidInput, p)
		}
	}
	return nil
}

// Contains reports whether p is in the scope.
func (s Scope) Contains(p PermissionLevel) bool {
	for _, level := range s {
		if level == p {
			return true
		}
	}
	return false
}

// Strings returns the scope as plain strings.
func (s Scope) Strings() []string {
	out := make([]string, len(s))
	for i, p := range s {
		out[i] = string(p)
	}
	return out
}
