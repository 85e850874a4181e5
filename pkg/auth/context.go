package auth

import "github.com/pkg/errors"

// Role restricts what a caller may do. Roles are ordered; a context carrying
// a higher role may perform everything a lower role may.
type Role int

const (
	RoleGuest Role = iota
	RoleMember
	RoleManager
	RoleAdministrator
)

var roleNames = map[Role]string{
	RoleGuest:         "guest",
	RoleMember:        "member",
	RoleManager:       "manager",
	RoleAdministrator: "administrator",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "unknown"
}

// ParseRole maps a role name to its Role. Unknown names are an error so
// callers can fall back to their own default.
func ParseRole(s string) (Role, error) {
	for role, name := range roleNames {
		if name == s {
			return role, nil
		}
	}
	return RoleGuest, errors.Errorf("no such role: %s", s)
}

const (
	// SystemAdmin is the reserved user id of the internal system account.
	SystemAdmin = "admin"

	// SystemGroup is the reserved group id of the internal system group.
	SystemGroup = "SYSTEM"

	// OwnerWildcard matches every owner in store queries.
	OwnerWildcard = "%"
)

// AccessContext identifies the caller of a staging operation. Every store
// and service call is scoped by one. The zero value is an unauthenticated
// guest and will be rejected by all mutating operations.
type AccessContext struct {
	UserID  string
	GroupID string
	Role    Role
}

func NewAccessContext(userID, groupID string, role Role) AccessContext {
	return AccessContext{UserID: userID, GroupID: groupID, Role: role}
}

// SystemContext returns the privileged context used by internal jobs such as
// the periodic cleanup.
func SystemContext() AccessContext {
	return AccessContext{UserID: SystemAdmin, GroupID: SystemGroup, Role: RoleAdministrator}
}

func (c AccessContext) IsValid() bool {
	return c.UserID != ""
}

// IsPrivileged reports whether the context bypasses owner scoping. System
// accounts and administrators see every record, everyone else only their own.
func (c AccessContext) IsPrivileged() bool {
	return c.GroupID == SystemGroup || c.UserID == SystemAdmin || c.Role >= RoleAdministrator
}

// OwnerFilter returns the owner pattern used in store queries: the wildcard
// for privileged contexts, the caller's user id otherwise.
func (c AccessContext) OwnerFilter() string {
	if c.IsPrivileged() {
		return OwnerWildcard
	}
	return c.UserID
}

func (c AccessContext) String() string {
	return c.UserID + "@" + c.GroupID
}
