package models

import (
	"time"

	"finchat/pkg/metric"

	"github.com/shopspring/decimal"
)

// FinancialFact is one (company, year, metric) value. The triple is unique; a
// later upload overwrites the value and the source batch.
type FinancialFact struct {
	ID            uint `gorm:"primaryKey"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompanyID     uint            `gorm:"not null;uniqueIndex:idx_fact_company_year_metric,priority:1"`
	Company       Company         `gorm:"foreignKey:CompanyID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Year          int             `gorm:"not null;uniqueIndex:idx_fact_company_year_metric,priority:2"`
	Metric        metric.Metric   `gorm:"size:64;not null;uniqueIndex:idx_fact_company_year_metric,priority:3"`
	Value         decimal.Decimal `gorm:"type:numeric(24,4);not null"`
	Currency      string          `gorm:"size:3;not null"`
	UploadBatchID *uint           `gorm:"index"`
}
