package models

const (
	RoleStaff = "staff"
)

// StaffUser is an entry of the fixed admin credential list.
type StaffUser struct {
	Username     string `json:"username"`
	DisplayName  string `json:"displayName"`
	Role         string `json:"role"`
	PasswordHash string `json:"-"`
}
