package users

import (
	"context"
	"testing"

	"finchat/internal/testdb"
	"finchat/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func newStore(t *testing.T) (*Store, *gorm.DB) {
	db := testdb.Open(t)
	s := New(db)
	s.Cost = bcrypt.MinCost
	return s, db
}

func TestRegisterAndAuthenticate(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	u, err := s.Register(ctx, "  ana ", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "ana", u.Username)
	assert.Equal(t, models.RoleAnalyst, u.Role.Name)
	assert.Nil(t, u.CompanyID)

	_, err = s.Register(ctx, "ana", "secret1")
	assert.ErrorIs(t, err, ErrExists)
	_, err = s.Register(ctx, "bob", "short")
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = s.Create(ctx, "carl", "secret1", "superuser", nil)
	assert.ErrorIs(t, err, ErrInvalid)

	got, err := s.Authenticate(ctx, "ana", "secret1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, models.RoleAnalyst, got.Role.Name)

	_, err = s.Authenticate(ctx, "ana", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.Authenticate(ctx, "nobody", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUpdateAndDelete(t *testing.T) {
	s, db := newStore(t)
	ctx := context.Background()
	acme := testdb.Company(t, db, "Acme", nil)

	u, err := s.Create(ctx, "boss", "secret1", models.RoleCEO, &acme.ID)
	require.NoError(t, err)

	updated, err := s.Update(ctx, u.ID, models.RoleAnalyst, "newsecret", &acme.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAnalyst, updated.Role.Name)
	_, err = s.Authenticate(ctx, "boss", "newsecret")
	require.NoError(t, err)

	updated, err = s.Update(ctx, u.ID, "", "", nil)
	require.NoError(t, err)
	assert.Nil(t, updated.CompanyID)

	require.NoError(t, db.Omit("User").Create(&models.RefreshToken{UserID: u.ID, TokenHash: "h"}).Error)
	require.NoError(t, s.Delete(ctx, u.ID))
	assert.ErrorIs(t, s.Delete(ctx, u.ID), gorm.ErrRecordNotFound)

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestResetPassword(t *testing.T) {
	s, db := newStore(t)
	ctx := context.Background()

	u, err := s.Create(ctx, "ana", "secret1", models.RoleAnalyst, nil)
	require.NoError(t, err)
	require.NoError(t, db.Omit("User").Create(&models.RefreshToken{UserID: u.ID, TokenHash: "h1"}).Error)

	assert.ErrorIs(t, s.ResetPassword(ctx, "ana", "123"), ErrInvalid)
	assert.ErrorIs(t, s.ResetPassword(ctx, "nobody", "secret2"), gorm.ErrRecordNotFound)

	require.NoError(t, s.ResetPassword(ctx, "ana", "secret2"))
	_, err = s.Authenticate(ctx, "ana", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.Authenticate(ctx, "ana", "secret2")
	require.NoError(t, err)

	var tok models.RefreshToken
	require.NoError(t, db.Where("token_hash = ?", "h1").First(&tok).Error)
	assert.True(t, tok.Revoked)
}
