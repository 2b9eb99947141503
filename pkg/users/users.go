// Package users creates and authenticates application users.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"finchat/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrExists             = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalid            = errors.New("invalid user")
)

// MinPasswordLen is the basic password policy.
const MinPasswordLen = 6

// Store wraps the users table. Cost is the bcrypt cost for new hashes.
type Store struct {
	db   *gorm.DB
	Cost int
}

func New(db *gorm.DB) *Store {
	return &Store{db: db, Cost: bcrypt.DefaultCost}
}

func ValidRole(name string) bool {
	return name == models.RoleAdmin || name == models.RoleCEO || name == models.RoleAnalyst
}

// Create hashes the password and stores a user with the given role.
func (s *Store) Create(ctx context.Context, username, password, roleName string, companyID *uint) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username required", ErrInvalid)
	}
	if len(password) < MinPasswordLen {
		return nil, fmt.Errorf("%w: password too short (min %d)", ErrInvalid, MinPasswordLen)
	}
	if !ValidRole(roleName) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalid, roleName)
	}
	db := s.db.WithContext(ctx)
	var existing int64
	db.Model(&models.User{}).Where("username = ?", username).Count(&existing)
	if existing > 0 {
		return nil, ErrExists
	}
	var role models.Role
	if err := db.Where("name = ?", roleName).First(&role).Error; err != nil {
		return nil, fmt.Errorf("load role %s: %w", roleName, err)
	}
	hashed, err := s.hash(password)
	if err != nil {
		return nil, err
	}
	rid := role.ID
	user := models.User{Username: username, HashedPassword: hashed, RoleID: &rid, CompanyID: companyID}
	if err := db.Omit("Role", "Company").Create(&user).Error; err != nil {
		if IsUniqueConstraintError(err) { // race after the pre-check
			return nil, ErrExists
		}
		return nil, err
	}
	user.Role = role
	return &user, nil
}

// Register is the public sign-up path: new users are analysts without a company.
func (s *Store) Register(ctx context.Context, username, password string) (*models.User, error) {
	return s.Create(ctx, username, password, models.RoleAnalyst, nil)
}

func (s *Store) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Preload("Role").Where("username = ?", strings.TrimSpace(username)).First(&user).Error; err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(user.HashedPassword, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

// Update is a full replacement of role, company and (when non-empty) password.
func (s *Store) Update(ctx context.Context, id uint, roleName, password string, companyID *uint) (*models.User, error) {
	db := s.db.WithContext(ctx)
	var user models.User
	if err := db.First(&user, id).Error; err != nil {
		return nil, err
	}
	updates := map[string]any{"company_id": companyID}
	if roleName != "" {
		if !ValidRole(roleName) {
			return nil, fmt.Errorf("%w: unknown role %q", ErrInvalid, roleName)
		}
		var role models.Role
		if err := db.Where("name = ?", roleName).First(&role).Error; err != nil {
			return nil, fmt.Errorf("load role %s: %w", roleName, err)
		}
		updates["role_id"] = role.ID
	}
	if password != "" {
		if len(password) < MinPasswordLen {
			return nil, fmt.Errorf("%w: password too short (min %d)", ErrInvalid, MinPasswordLen)
		}
		hashed, err := s.hash(password)
		if err != nil {
			return nil, err
		}
		updates["hashed_password"] = hashed
	}
	if err := db.Model(&models.User{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	if err := db.Preload("Role").First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// ResetPassword sets a new password by username and revokes the user's
// refresh tokens.
func (s *Store) ResetPassword(ctx context.Context, username, password string) error {
	if len(password) < MinPasswordLen {
		return fmt.Errorf("%w: password too short (min %d)", ErrInvalid, MinPasswordLen)
	}
	hashed, err := s.hash(password)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Where("username = ?", strings.TrimSpace(username)).First(&user).Error; err != nil {
			return err
		}
		if err := tx.Model(&user).Update("hashed_password", hashed).Error; err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		return tx.Model(&models.RefreshToken{}).Where("user_id = ?", user.ID).Update("revoked", true).Error
	})
}

// Delete removes a user and its refresh tokens.
func (s *Store) Delete(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", id).Delete(&models.RefreshToken{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.User{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (s *Store) List(ctx context.Context) ([]models.User, error) {
	var out []models.User
	if err := s.db.WithContext(ctx).Preload("Role").Order("id asc").Limit(500).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return out, nil
}

func (s *Store) hash(password string) ([]byte, error) {
	cost := s.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return bcrypt.GenerateFromPassword([]byte(password), cost)
}

func IsUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "unique constraint")
}
