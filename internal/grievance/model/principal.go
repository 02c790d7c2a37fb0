package model

import "strings"

// Role tags a principal with the capability set it may exercise.
type Role string

const (
	RoleReporter Role = "reporter"
	RoleAdmin    Role = "admin"
	RoleResolver Role = "resolver"
)

// ParseRole normalizes a role name; ok is false for unknown roles.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleReporter:
		return RoleReporter, true
	case RoleAdmin:
		return RoleAdmin, true
	case RoleResolver:
		return RoleResolver, true
	default:
		return "", false
	}
}

// DisplayName is the capitalized form shown in audit trails, e.g. "Admin".
func (r Role) DisplayName() string {
	switch r {
	case RoleReporter:
		return "Reporter"
	case RoleAdmin:
		return "Admin"
	case RoleResolver:
		return "Resolver"
	default:
		return string(r)
	}
}

// Principal is the authenticated actor performing an operation.
type Principal struct {
	ID   int64
	Role Role
}

// Anonymous is the principal of a request without verified credentials.
var Anonymous = Principal{}

// IsAnonymous reports whether p carries no usable identity.
func (p Principal) IsAnonymous() bool {
	return p.ID <= 0 || p.Role == ""
}

// Is reports whether p is an authenticated principal of role r.
func (p Principal) Is(r Role) bool {
	return !p.IsAnonymous() && p.Role == r
}
