package auth

// Role is a coarse staff permission level.
type Role string

const (
	RoleSuperAdmin Role = "Super Admin"
	RoleAdmin      Role = "Admin"
	RoleClinician  Role = "Clinician"
	RoleStaff      Role = "Staff"
)

// ParseRole maps a claim value onto a known role, defaulting to Staff.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleSuperAdmin, RoleAdmin, RoleClinician, RoleStaff:
		return Role(s)
	default:
		return RoleStaff
	}
}

// CanManageUsers reports whether the role may create or modify staff accounts.
func (r Role) CanManageUsers() bool {
	return r == RoleSuperAdmin || r == RoleAdmin
}

// CanDeleteSystemTask reports whether the role may delete system-generated
// tasks. Only Super Admin may.
func (r Role) CanDeleteSystemTask() bool {
	return r == RoleSuperAdmin
}

// CanImpersonate reports whether the role may act as another user.
func (r Role) CanImpersonate() bool {
	return r == RoleSuperAdmin
}
