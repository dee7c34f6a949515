package models

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	// RoleAdmin may import timetables and rebuild the index.
	RoleAdmin UserRole = "ADMIN"
	// RoleOperator may query availability and issue notices.
	RoleOperator UserRole = "OPERATOR"
)
