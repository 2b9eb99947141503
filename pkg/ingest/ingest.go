// Package ingest turns an uploaded balance sheet into stored facts: the raw
// file is kept on disk, parsed, mapped onto the metric vocabulary and written
// as one upload batch.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"finchat/models"
	"finchat/pkg/access"
	"finchat/pkg/extract"
	"finchat/pkg/metric"
	"finchat/pkg/sheet"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrStorage  = errors.New("storing upload failed")
	ErrTooLarge = errors.New("file too large")
	ErrNoFile   = errors.New("file missing")
)

// CompanySource resolves the company an upload belongs to.
type CompanySource interface {
	Get(ctx context.Context, id uint) (*models.Company, error)
}

// FactWriter persists batches.
type FactWriter interface {
	SaveBatch(ctx context.Context, batch *models.UploadBatch, facts []models.FinancialFact) error
	RecordFailure(ctx context.Context, batch *models.UploadBatch) error
}

// Invalidator is told when a company's facts changed.
type Invalidator interface {
	Invalidate(companyID uint)
}

type Request struct {
	CompanyID   uint
	FileName    string
	ContentType string
	Data        []byte
	Principal   access.Principal
}

type Outcome struct {
	Batch          *models.UploadBatch
	ProcessedYears map[int][]metric.Metric
	Warnings       []string
}

type Config struct {
	// BaseDir receives the raw files, one directory per company.
	BaseDir  string
	MaxBytes int64
}

type Service struct {
	companies CompanySource
	facts     FactWriter
	index     Invalidator
	cfg       Config
	log       *zap.Logger
}

// New builds the ingestion service. index may be nil.
func New(companies CompanySource, facts FactWriter, index Invalidator, cfg Config, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.BaseDir == "" {
		cfg.BaseDir = "uploads"
	}
	return &Service{companies: companies, facts: facts, index: index, cfg: cfg, log: log.Named("ingest")}
}

// Ingest stores, parses and extracts one document. Structural problems (an
// unsupported or empty document, no year header) are recorded as a failed
// batch and returned as errors; the Outcome is still returned so callers can
// report the batch id. Row and cell problems only produce warnings.
func (s *Service) Ingest(ctx context.Context, req Request) (*Outcome, error) {
	if !req.Principal.IsAdmin() {
		return nil, access.ErrForbidden
	}
	if len(req.Data) == 0 {
		return nil, ErrNoFile
	}
	if s.cfg.MaxBytes > 0 && int64(len(req.Data)) > s.cfg.MaxBytes {
		return nil, fmt.Errorf("%w (max %d bytes)", ErrTooLarge, s.cfg.MaxBytes)
	}
	company, err := s.companies.Get(ctx, req.CompanyID)
	if err != nil {
		return nil, err
	}
	log := s.log.With(zap.Uint("company_id", company.ID), zap.String("file", req.FileName))

	name := filepath.Base(strings.TrimSpace(req.FileName))
	batch := &models.UploadBatch{
		CompanyID:   company.ID,
		FileName:    name,
		ContentType: req.ContentType,
	}
	if req.Principal.UserID != 0 {
		uid := req.Principal.UserID
		batch.UploadedBy = &uid
	}

	storePath, err := s.store(company.ID, name, req.Data)
	if err != nil {
		log.Error("store upload", zap.Error(err))
		return s.fail(ctx, batch, fmt.Errorf("%w: %v", ErrStorage, err))
	}
	batch.StorePath = storePath

	grid, err := sheet.Parse(name, req.ContentType, req.Data)
	if err != nil {
		log.Warn("parse failed", zap.Error(err))
		return s.fail(ctx, batch, err)
	}
	res, err := extract.Extract(grid, extract.Options{
		CompanyName:     company.Name,
		DefaultCurrency: company.Currency,
	})
	if err != nil {
		log.Warn("extract failed", zap.Error(err))
		return s.fail(ctx, batch, err)
	}

	batch.Layout = string(res.Layout)
	batch.Years = res.Years
	batch.Warnings = res.Warnings
	facts := make([]models.FinancialFact, 0, len(res.Values))
	for _, f := range res.Facts() {
		facts = append(facts, models.FinancialFact{
			CompanyID: company.ID,
			Year:      f.Year,
			Metric:    f.Metric,
			Value:     f.Value,
			Currency:  f.Currency,
		})
	}
	if err := s.facts.SaveBatch(ctx, batch, facts); err != nil {
		UploadsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if s.index != nil {
		s.index.Invalidate(company.ID)
	}
	UploadsTotal.WithLabelValues(models.BatchSuccess).Inc()
	FactsWritten.Add(float64(len(facts)))
	log.Info("upload ingested",
		zap.Uint("batch_id", batch.ID),
		zap.String("layout", batch.Layout),
		zap.Int("facts", len(facts)),
		zap.Int("warnings", len(res.Warnings)))
	return &Outcome{
		Batch:          batch,
		ProcessedYears: res.ProcessedYears(),
		Warnings:       res.Warnings,
	}, nil
}

func (s *Service) fail(ctx context.Context, batch *models.UploadBatch, cause error) (*Outcome, error) {
	UploadsTotal.WithLabelValues(models.BatchFailed).Inc()
	batch.FailedReason = cause.Error()
	if err := s.facts.RecordFailure(ctx, batch); err != nil {
		s.log.Error("record failed batch", zap.Error(err))
	}
	return &Outcome{Batch: batch}, cause
}

// store writes data to BaseDir/<company>/<uuid><ext> and returns the path
// relative to BaseDir.
func (s *Service) store(companyID uint, name string, data []byte) (string, error) {
	dir := strconv.FormatUint(uint64(companyID), 10)
	if err := os.MkdirAll(filepath.Join(s.cfg.BaseDir, dir), 0755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}
	rel := filepath.ToSlash(filepath.Join(dir, uuid.NewString()+strings.ToLower(filepath.Ext(name))))
	if err := os.WriteFile(filepath.Join(s.cfg.BaseDir, rel), data, 0644); err != nil {
		return "", fmt.Errorf("write: %w", err)
	}
	return rel, nil
}

// IsStructural reports whether err means the document itself could not be
// used, as opposed to an infrastructure failure.
func IsStructural(err error) bool {
	return errors.Is(err, sheet.ErrUnsupportedFormat) ||
		errors.Is(err, sheet.ErrEmptyDocument) ||
		errors.Is(err, extract.ErrNoYearColumnsFound)
}
