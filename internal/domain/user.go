package domain

import (
	"slices"
	"time"
)

type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleBasic Role = "BASIC"
)

// IsValid checks if the role is a known value.
func (r Role) IsValid() bool {
	return r == RoleAdmin || r == RoleBasic
}

type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Roles     []Role    `json:"roles"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasRole reports whether the user holds the given role.
func (u *User) HasRole(role Role) bool {
	return slices.Contains(u.Roles, role)
}

// HasRole reports whether roles contains role.
func HasRole(roles []Role, role Role) bool {
	return slices.Contains(roles, role)
}
