// Package sanitize empties application tables, optionally reseeding the roles
// and the default admin afterwards.
package sanitize

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"finchat/internal/appdb"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultTables lists the application tables, children first.
var DefaultTables = []string{"financial_facts", "reported_years", "upload_batches", "refresh_tokens", "users", "companies", "roles"}

var (
	tableNameRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

	ErrNotConfirmed = errors.New("destructive operation needs confirmation")
)

type Options struct {
	Tables  []string
	DryRun  bool
	Yes     bool
	Reseed  bool
	Timeout time.Duration
}

type Result struct {
	Tables  []string
	Skipped []string
	Cleared bool
	Reseed  bool
}

// ParseTables splits a comma separated list, dropping invalid identifiers.
func ParseTables(list string) (valid, invalid []string) {
	for _, p := range strings.Split(list, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !tableNameRE.MatchString(p) {
			invalid = append(invalid, p)
			continue
		}
		valid = append(valid, p)
	}
	return valid, invalid
}

// Run clears the requested tables that exist. Nothing is changed in dry-run
// mode, and ErrNotConfirmed is returned unless Yes is set.
func Run(ctx context.Context, db *gorm.DB, opts Options, log *zap.Logger) (*Result, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if len(opts.Tables) == 0 {
		opts.Tables = DefaultTables
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	res := &Result{}
	for _, t := range opts.Tables {
		if !tableNameRE.MatchString(t) {
			log.Warn("skipping invalid table name", zap.String("table", t))
			res.Skipped = append(res.Skipped, t)
			continue
		}
		if !db.WithContext(ctx).Migrator().HasTable(t) {
			log.Info("table not found, skipping", zap.String("table", t))
			res.Skipped = append(res.Skipped, t)
			continue
		}
		res.Tables = append(res.Tables, t)
	}
	if len(res.Tables) == 0 || opts.DryRun {
		return res, nil
	}
	if !opts.Yes {
		return res, ErrNotConfirmed
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	if err := clearTables(ctx, db, res.Tables, log); err != nil {
		return res, err
	}
	res.Cleared = true

	if opts.Reseed {
		if err := appdb.Seed(db.WithContext(ctx), log); err != nil {
			return res, fmt.Errorf("reseed: %w", err)
		}
		res.Reseed = true
	}
	return res, nil
}

func clearTables(ctx context.Context, db *gorm.DB, tables []string, log *zap.Logger) error {
	// names are validated above; quote them anyway
	quoted := make([]string, len(tables))
	for i, t := range tables {
		quoted[i] = `"` + t + `"`
	}
	if db.Dialector.Name() == "postgres" {
		stmt := fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", strings.Join(quoted, ", "))
		log.Info("executing", zap.String("stmt", stmt))
		if err := db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
		return nil
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, q := range quoted {
			if err := tx.Exec("DELETE FROM " + q).Error; err != nil {
				return fmt.Errorf("clear %s: %w", q, err)
			}
		}
		return nil
	})
}
