package role

import "strings"

// Role is one of the four application roles, ordered by privilege
type Role string

const (
	Admin          Role = "ADMIN"
	ProjectManager Role = "PROJECT_MANAGER"
	Developer      Role = "DEVELOPER"
	Client         Role = "CLIENT"
)

// hierarchy lists roles from most to least privileged
var hierarchy = []Role{Admin, ProjectManager, Developer, Client}

// All returns every role, most privileged first
func All() []Role {
	return append([]Role(nil), hierarchy...)
}

// Parse strictly resolves a raw role claim. Case and the separators
// "-", " " and "_" are ignored, so "project manager" parses.
func Parse(raw string) (Role, bool) {
	key := strings.ToUpper(strings.TrimSpace(raw))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)

	for _, r := range hierarchy {
		if string(r) == key {
			return r, true
		}
	}
	return "", false
}

// Normalize resolves a raw role claim, falling back to Client for
// empty or unrecognized input. It never fails.
func Normalize(raw string) Role {
	if r, ok := Parse(raw); ok {
		return r
	}
	return Client
}

// NormalizeValue accepts whatever the identity provider put in its
// metadata: a string, a Role, a pointer to either, or nil.
func NormalizeValue(v interface{}) Role {
	switch val := v.(type) {
	case Role:
		return Normalize(string(val))
	case *Role:
		if val == nil {
			return Client
		}
		return Normalize(string(*val))
	case string:
		return Normalize(val)
	case *string:
		if val == nil {
			return Client
		}
		return Normalize(*val)
	}
	return Client
}

// Rank is the index in the hierarchy; lower is more privileged.
// Unknown roles rank below Client.
func (r Role) Rank() int {
	for i, h := range hierarchy {
		if h == r {
			return i
		}
	}
	return len(hierarchy)
}

// IsValid reports whether r is one of the four roles
func (r Role) IsValid() bool {
	return r.Rank() < len(hierarchy)
}

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}

// HasPrivilege reports whether actor ranks at or above required
func HasPrivilege(actor, required Role) bool {
	return actor.Rank() <= required.Rank()
}

// Actor is an authenticated caller with an already normalized role
type Actor struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

// IsAuthenticated reports whether the actor carries a user id
func (a Actor) IsAuthenticated() bool {
	return a.UserID != ""
}

// Can reports whether the actor holds at least the required role
func (a Actor) Can(required Role) bool {
	return HasPrivilege(a.Role, required)
}
