package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	BatchSuccess = "success"
	BatchFailed  = "failed"
)

// UploadBatch is the append-only record of one uploaded document. Failed
// uploads are kept (with the reason) so an admin can review them.
type UploadBatch struct {
	ID           uint `gorm:"primaryKey"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompanyID    uint    `gorm:"index;not null"`
	Company      Company `gorm:"foreignKey:CompanyID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	FileName     string  `gorm:"size:255;not null"`
	StorePath    string  `gorm:"column:store_path;size:512"`
	ContentType  string  `gorm:"size:128"`
	UploadedBy   *uint   `gorm:"index"`
	Status       string  `gorm:"size:16;not null;index"`
	FailedReason string  `gorm:"size:255"`
	Layout       string  `gorm:"size:16"`
	Years        datatypes.JSONSlice[int]
	Warnings     datatypes.JSONSlice[string]
	FactCount    int `gorm:"not null;default:0"`
}
