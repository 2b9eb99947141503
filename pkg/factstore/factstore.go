// Package factstore persists extracted financial facts and the upload batches
// they came from.
package factstore

import (
	"context"
	"fmt"
	"sort"
	"unicode/utf8"

	"finchat/models"
	"finchat/pkg/metric"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

func New(db *gorm.DB, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, log: log.Named("factstore")}
}

// SaveBatch records a successful batch and upserts its facts in one
// transaction. On (company_id, year, metric) conflict the value, currency and
// source batch are overwritten. Every year of the batch is remembered, with or
// without facts. Any failure leaves prior state intact.
func (s *Store) SaveBatch(ctx context.Context, batch *models.UploadBatch, facts []models.FinancialFact) error {
	facts = dedupe(facts)
	batch.Status = models.BatchSuccess
	batch.FactCount = len(facts)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(batch).Error; err != nil {
			return fmt.Errorf("create upload batch: %w", err)
		}
		if years := reportedYears(batch, facts); len(years) > 0 {
			err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{DoNothing: true}).Create(&years).Error
			if err != nil {
				return fmt.Errorf("record years: %w", err)
			}
		}
		if len(facts) == 0 {
			return nil
		}
		batchID := batch.ID
		for i := range facts {
			facts[i].CompanyID = batch.CompanyID
			facts[i].UploadBatchID = &batchID
		}
		err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "company_id"}, {Name: "year"}, {Name: "metric"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "currency", "upload_batch_id", "updated_at"}),
		}).CreateInBatches(&facts, 200).Error
		if err != nil {
			return fmt.Errorf("upsert facts: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Info("batch saved",
		zap.Uint("batch_id", batch.ID),
		zap.Uint("company_id", batch.CompanyID),
		zap.Int("facts", len(facts)))
	return nil
}

// RecordFailure appends a failed batch. No facts are touched.
func (s *Store) RecordFailure(ctx context.Context, batch *models.UploadBatch) error {
	batch.Status = models.BatchFailed
	batch.FactCount = 0
	batch.FailedReason = truncate(batch.FailedReason, 255)
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(batch).Error; err != nil {
		return fmt.Errorf("record failed batch: %w", err)
	}
	return nil
}

// Facts returns the company's facts ordered by year, then by the fixed metric order.
func (s *Store) Facts(ctx context.Context, companyID uint) ([]models.FinancialFact, error) {
	var facts []models.FinancialFact
	if err := s.db.WithContext(ctx).Where("company_id = ?", companyID).Order("year asc").Find(&facts).Error; err != nil {
		return nil, fmt.Errorf("load facts: %w", err)
	}
	sortFacts(facts)
	return facts, nil
}

// Count returns how many facts a company has.
func (s *Store) Count(ctx context.Context, companyID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.FinancialFact{}).Where("company_id = ?", companyID).Count(&n).Error
	return n, err
}

// Series is chart-ready data: every metric of the vocabulary has one value per
// year, null where no fact exists.
type Series struct {
	CompanyID uint         `json:"company_id"`
	Years     []int        `json:"years"`
	Metrics   []SeriesLine `json:"metrics"`
}

type SeriesLine struct {
	Metric metric.Metric         `json:"metric"`
	Label  string                `json:"label"`
	Values []decimal.NullDecimal `json:"values"`
}

// Years returns every year the company has uploaded, ascending, including years
// without any stored fact.
func (s *Store) Years(ctx context.Context, companyID uint) ([]int, error) {
	var years []int
	err := s.db.WithContext(ctx).Model(&models.ReportedYear{}).
		Where("company_id = ?", companyID).Order("year asc").Pluck("year", &years).Error
	if err != nil {
		return nil, fmt.Errorf("load years: %w", err)
	}
	return years, nil
}

// Timeseries pivots the company's facts into a Series.
func (s *Store) Timeseries(ctx context.Context, companyID uint) (*Series, error) {
	facts, err := s.Facts(ctx, companyID)
	if err != nil {
		return nil, err
	}
	years, err := s.Years(ctx, companyID)
	if err != nil {
		return nil, err
	}
	return Pivot(companyID, facts, years...), nil
}

// Pivot builds a Series from facts already loaded. years adds years that have
// no facts; their values are all null.
func Pivot(companyID uint, facts []models.FinancialFact, years ...int) *Series {
	byYear := map[int]map[metric.Metric]decimal.Decimal{}
	for _, y := range years {
		if byYear[y] == nil {
			byYear[y] = map[metric.Metric]decimal.Decimal{}
		}
	}
	for _, f := range facts {
		if byYear[f.Year] == nil {
			byYear[f.Year] = map[metric.Metric]decimal.Decimal{}
		}
		byYear[f.Year][f.Metric] = f.Value
	}
	years = make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)

	out := &Series{CompanyID: companyID, Years: years}
	for _, m := range metric.All() {
		line := SeriesLine{Metric: m, Label: metric.Label(m), Values: make([]decimal.NullDecimal, len(years))}
		for i, y := range years {
			if v, ok := byYear[y][m]; ok {
				line.Values[i] = decimal.NewNullDecimal(v)
			}
		}
		out.Metrics = append(out.Metrics, line)
	}
	return out
}

// DeleteYear removes every fact of one company year, and the year itself. It
// returns the number of facts deleted.
func (s *Store) DeleteYear(ctx context.Context, companyID uint, year int) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("company_id = ? AND year = ?", companyID, year).Delete(&models.FinancialFact{})
		if res.Error != nil {
			return fmt.Errorf("delete facts: %w", res.Error)
		}
		n = res.RowsAffected
		if err := tx.Where("company_id = ? AND year = ?", companyID, year).Delete(&models.ReportedYear{}).Error; err != nil {
			return fmt.Errorf("delete year: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.log.Info("facts deleted", zap.Uint("company_id", companyID), zap.Int("year", year), zap.Int64("rows", n))
	return n, nil
}

// Batches lists the most recent upload batches of a company.
func (s *Store) Batches(ctx context.Context, companyID uint, limit int) ([]models.UploadBatch, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []models.UploadBatch
	err := s.db.WithContext(ctx).Where("company_id = ?", companyID).Order("id desc").Limit(limit).Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return out, nil
}

// reportedYears is the union of the batch's detected years and the fact years.
func reportedYears(batch *models.UploadBatch, facts []models.FinancialFact) []models.ReportedYear {
	seen := map[int]bool{}
	var out []models.ReportedYear
	add := func(y int) {
		if !seen[y] {
			seen[y] = true
			out = append(out, models.ReportedYear{CompanyID: batch.CompanyID, Year: y})
		}
	}
	for _, y := range batch.Years {
		add(y)
	}
	for _, f := range facts {
		add(f.Year)
	}
	return out
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// dedupe keeps the first fact of every (year, metric).
func dedupe(facts []models.FinancialFact) []models.FinancialFact {
	type key struct {
		year int
		m    metric.Metric
	}
	seen := make(map[key]bool, len(facts))
	out := facts[:0:0]
	for _, f := range facts {
		k := key{f.Year, f.Metric}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, f)
	}
	return out
}

func sortFacts(facts []models.FinancialFact) {
	sort.SliceStable(facts, func(i, j int) bool {
		if facts[i].Year != facts[j].Year {
			return facts[i].Year < facts[j].Year
		}
		return metric.Order(facts[i].Metric) < metric.Order(facts[j].Metric)
	})
}
