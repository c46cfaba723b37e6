package member

// Role is the dashboard role the Identity Provider reports for a user.
type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleHR         Role = "HR"
	RoleEmployee   Role = "EMPLOYEE"
	RoleCoach      Role = "COACH"
	RoleIndividual Role = "INDIVIDUAL"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleHR, RoleEmployee, RoleCoach, RoleIndividual:
		return true
	}
	return false
}

// Member is the projection of one organization membership, used to resolve
// allocation targets and per-role reports. The directory itself is external;
// this service only reads the projection.
type Member struct {
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id"`
	Role           Role   `json:"role"`
	IsActive       bool   `json:"is_active"`
}
