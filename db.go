package main

import (
	"os"

	"finchat/internal/appdb"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

func openDB(cfg config) (*gorm.DB, error) {
	return appdb.Open(cfg.DBDSN, cfg.AppEnv == "development")
}

// initDB migrates (unless DB_AUTO_MIGRATE is off), seeds the master data and
// makes sure the upload directory exists.
func initDB(db *gorm.DB, cfg config, log *zap.Logger) error {
	if cfg.AutoMigrate {
		appdb.Migrate(db, log)
	}
	if err := appdb.Seed(db, log); err != nil {
		return err
	}
	ensureUploadBase(cfg.UploadBase, log)
	return nil
}

func ensureUploadBase(base string, log *zap.Logger) {
	if err := os.MkdirAll(base, 0755); err != nil {
		log.Warn("failed to create upload base dir", zap.String("dir", base), zap.Error(err))
	}
}
