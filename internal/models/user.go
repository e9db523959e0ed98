package models

// UserRole represents the roles resolved by the external identity provider.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleTeacher    UserRole = "TEACHER"
	RoleCounselor  UserRole = "COUNSELOR"
	RoleStudent    UserRole = "STUDENT"
)

// Valid reports whether r is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleTeacher, RoleCounselor, RoleStudent:
		return true
	}
	return false
}

// StaffRoles lists roles allowed to record behaviour and run Level A/B interventions.
var StaffRoles = []UserRole{RoleSuperAdmin, RoleAdmin, RoleCounselor, RoleTeacher}

// CaseManagerRoles lists roles allowed to own Level C cases and re-entry protocols.
var CaseManagerRoles = []UserRole{RoleSuperAdmin, RoleAdmin, RoleCounselor}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
