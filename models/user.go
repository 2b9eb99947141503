package models

import (
	"time"
)

// User model. CompanyID scopes what a ceo or analyst may read; admins ignore it.
type User struct {
	ID             uint `gorm:"primaryKey"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Username       string   `gorm:"size:255;not null;unique"`
	HashedPassword []byte   `gorm:"not null" json:"-"`
	RoleID         *uint    `gorm:"index"`
	Role           Role     `gorm:"foreignKey:RoleID;references:ID"`
	CompanyID      *uint    `gorm:"index"`
	Company        *Company `gorm:"foreignKey:CompanyID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;"`
}
