// Package testdb opens throwaway in-memory SQLite databases with the
// application schema for package tests.
package testdb

import (
	"fmt"
	"strings"
	"testing"

	"finchat/internal/appdb"
	"finchat/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns a migrated database private to t, with the default roles seeded.
// It uses a single connection, so code under test must run nested queries on
// the transaction handle it was given.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	require.NoError(t, appdb.SeedRoles(db))
	return db
}

// Company inserts a company with the given parent.
func Company(t testing.TB, db *gorm.DB, name string, parent *uint) models.Company {
	t.Helper()
	c := models.Company{Name: name, Currency: "USD", ParentCompanyID: parent}
	require.NoError(t, db.Create(&c).Error)
	return c
}

// User inserts a user with password "secret123".
func User(t testing.TB, db *gorm.DB, username, role string, companyID *uint) models.User {
	t.Helper()
	var r models.Role
	require.NoError(t, db.Where("name = ?", role).First(&r).Error)
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)
	u := models.User{Username: username, HashedPassword: hash, RoleID: &r.ID, CompanyID: companyID}
	require.NoError(t, db.Omit("Role", "Company").Create(&u).Error)
	u.Role = r
	return u
}
