package models

// UserRole represents the roles issued by the identity service.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleTrainer UserRole = "TRAINER"
	RoleMember  UserRole = "MEMBER"
)

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
