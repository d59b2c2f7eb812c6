package models

// Role is the privilege level of an identity. The empty role means "none".
type Role string

const (
	RoleTrustee Role = "TRUSTEE"
	RoleSteward Role = "STEWARD"
	RoleSponsor Role = "SPONSOR"
	RoleUser    Role = "USER"
	RoleNone    Role = ""
)

// Roles lists every legal role, privileged first.
func Roles() []Role {
	return []Role{RoleTrustee, RoleSteward, RoleSponsor, RoleUser, RoleNone}
}

// IsValid is the role legality predicate.
func (r Role) IsValid() bool {
	switch r {
	case RoleTrustee, RoleSteward, RoleSponsor, RoleUser, RoleNone:
		return true
	}
	return false
}

// IsPlain reports whether the role carries no privilege. Plain identities record their sponsor.
func (r Role) IsPlain() bool {
	return r == RoleUser || r == RoleNone
}

func (r Role) String() string {
	if r == RoleNone {
		return "none"
	}
	return string(r)
}

// RolePtr returns a pointer to r, for building transactions with an explicit role.
func RolePtr(r Role) *Role {
	return &r
}
