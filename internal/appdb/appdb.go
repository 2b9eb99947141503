// Package appdb opens the application database and seeds its master data.
// The API server and the command line tools share it.
package appdb

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"finchat/models"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DefaultAdminUser     = "admin"
	DefaultAdminPassword = "admin123"
)

// Open connects to postgres. verbose keeps gorm's SQL logging on.
func Open(dsn string, verbose bool) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("DB_DSN is not set. This project requires a Postgres DSN in DB_DSN")
	}
	cfg := &gorm.Config{}
	if !verbose {
		cfg.Logger = logger.Default.LogMode(logger.Warn)
	}
	db, err := gorm.Open(postgres.Open(dsn), cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return db, nil
}

// FromEnv loads ./.env (if present) and opens DB_DSN. Used by the tools.
func FromEnv() (*gorm.DB, error) {
	_ = godotenv.Load()
	return Open(os.Getenv("DB_DSN"), false)
}

// Migrate runs AutoMigrate per model so one failing table does not block the
// rest. Failures are logged, not returned.
func Migrate(db *gorm.DB, log *zap.Logger) {
	for _, m := range models.All() {
		if err := db.AutoMigrate(m); err != nil {
			log.Warn("migration warning", zap.String("model", fmt.Sprintf("%T", m)), zap.Error(err))
		}
	}
}

func SeedRoles(db *gorm.DB) error {
	for _, r := range models.DefaultRoles() {
		role := r
		if err := db.Where("name = ?", role.Name).FirstOrCreate(&role).Error; err != nil {
			return fmt.Errorf("seed role %s: %w", role.Name, err)
		}
	}
	return nil
}

// Seed ensures the master roles and the default admin exist.
func Seed(db *gorm.DB, log *zap.Logger) error {
	if err := SeedRoles(db); err != nil {
		return err
	}
	var count int64
	db.Model(&models.User{}).Where("username = ?", DefaultAdminUser).Count(&count)
	if count > 0 {
		return nil
	}
	var role models.Role
	if err := db.Where("name = ?", models.RoleAdmin).First(&role).Error; err != nil {
		return fmt.Errorf("find admin role: %w", err)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(DefaultAdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	rid := role.ID
	admin := models.User{Username: DefaultAdminUser, HashedPassword: hashed, RoleID: &rid}
	if err := db.Omit("Role", "Company").Create(&admin).Error; err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	log.Info("seeded admin user", zap.String("username", DefaultAdminUser))
	return nil
}
