package models

import "time"

// Company owns financial facts and upload batches. ParentCompanyID links a
// subsidiary to its parent; links never form a cycle.
type Company struct {
	ID              uint `gorm:"primaryKey"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Name            string   `gorm:"size:255;not null;uniqueIndex"`
	Currency        string   `gorm:"size:3;not null;default:USD"`
	ParentCompanyID *uint    `gorm:"index"`
	Parent          *Company `gorm:"foreignKey:ParentCompanyID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"-"`
}
