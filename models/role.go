package models

import "time"

// Role names seeded into the roles master table.
const (
	RoleAdmin   = "admin"
	RoleCEO     = "ceo"
	RoleAnalyst = "analyst"
)

// Role represents user roles with numeric primary key
type Role struct {
	ID          uint `gorm:"primaryKey"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Name        string `gorm:"size:32;uniqueIndex;not null"`
	Description string `gorm:"size:255"`
}

// DefaultRoles is the seed set, in privilege order.
func DefaultRoles() []Role {
	return []Role{
		{Name: RoleAdmin, Description: "full access to every company"},
		{Name: RoleCEO, Description: "own company and its direct subsidiaries"},
		{Name: RoleAnalyst, Description: "own company only"},
	}
}
