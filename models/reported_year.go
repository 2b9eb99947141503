package models

import "time"

// ReportedYear is a fiscal year a company has uploaded, kept even when none of
// the year's cells held a value so reads can show it with null values.
type ReportedYear struct {
	CompanyID uint    `gorm:"primaryKey;autoIncrement:false"`
	Company   Company `gorm:"foreignKey:CompanyID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Year      int     `gorm:"primaryKey;autoIncrement:false"`
	CreatedAt time.Time
}
