package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"finchat/models"
	"finchat/pkg/companies"
	"finchat/pkg/users"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type credentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *server) registerHandler(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := s.users.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		s.userError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user registered successfully", "id": user.ID})
}

func (s *server) loginHandler(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	db := s.db.WithContext(c.Request.Context())
	user, err := s.users.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	tokenString, err := issueAccessToken(s.cfg.JWTSecret, user, accessTokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	refreshToken, err := createAndStoreRefreshToken(db, user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":       "login successful",
		"token":         tokenString,
		"refresh_token": refreshToken,
		"role":          user.Role.Name,
	})
}

// refreshHandler exchanges a refresh token for a new access token and rotates
// the refresh token.
func (s *server) refreshHandler(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	db := s.db.WithContext(c.Request.Context())
	rt, err := findRefreshTokenByRaw(db, req.RefreshToken)
	if err != nil || !rt.Usable(time.Now()) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired refresh token"})
		return
	}
	var user models.User
	if err := db.Preload("Role").First(&user, rt.UserID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	tokenString, err := issueAccessToken(s.cfg.JWTSecret, &user, accessTokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	// only the request that flips revoked wins the rotation
	res := db.Model(&models.RefreshToken{}).Where("id = ? AND revoked = ?", rt.ID, false).Update("revoked", true)
	if res.Error != nil || res.RowsAffected == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired refresh token"})
		return
	}
	newRT, err := createAndStoreRefreshToken(db, user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to rotate refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": tokenString, "refresh_token": newRT})
}

func (s *server) revokeRefreshHandler(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.revokeRefresh(c, req.RefreshToken); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "refresh token not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "refresh token revoked"})
}

func (s *server) revokeRefresh(c *gin.Context, raw string) error {
	db := s.db.WithContext(c.Request.Context())
	rt, err := findRefreshTokenByRaw(db, raw)
	if err != nil {
		return err
	}
	return db.Model(rt).Update("revoked", true).Error
}

func (s *server) meHandler(c *gin.Context) {
	p := principal(c)
	c.JSON(http.StatusOK, gin.H{
		"id":          p.UserID,
		"username":    p.Username,
		"role":        p.Role,
		"company_id":  p.CompanyID,
		"company_ids": p.CompanyIDs,
	})
}

// logoutHandler clears the caller's chat memory and revokes the refresh
// token when one is given.
func (s *server) logoutHandler(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = c.ShouldBindJSON(&req)
	p := principal(c)
	if req.RefreshToken != "" {
		if err := s.revokeRefresh(c, req.RefreshToken); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Warn("logout revoke failed", zap.Uint("user_id", p.UserID), zap.Error(err))
		}
	}
	cleared := s.chat.Memory().ClearUser(p.UserID)
	c.JSON(http.StatusOK, gin.H{"message": "logged out", "conversations_cleared": cleared})
}

type userRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Role      string `json:"role"`
	CompanyID *uint  `json:"company_id"`
}

type userResponse struct {
	ID        uint   `json:"id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	CompanyID *uint  `json:"company_id"`
}

func toUserResponse(u models.User) userResponse {
	return userResponse{ID: u.ID, Username: u.Username, Role: u.Role.Name, CompanyID: u.CompanyID}
}

func (s *server) userError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, users.ErrExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, users.ErrInvalid), errors.Is(err, companies.ErrNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	default:
		s.log.Error("user operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (s *server) listUsersHandler(c *gin.Context) {
	list, err := s.users.List(c.Request.Context())
	if err != nil {
		s.userError(c, err)
		return
	}
	out := make([]userResponse, 0, len(list))
	for _, u := range list {
		out = append(out, toUserResponse(u))
	}
	c.JSON(http.StatusOK, out)
}

// checkCompany rejects a company id that does not exist.
func (s *server) checkCompany(c *gin.Context, id *uint) error {
	if id == nil {
		return nil
	}
	_, err := s.companies.Get(c.Request.Context(), *id)
	return err
}

func (s *server) createUserHandler(c *gin.Context) {
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Role == "" {
		req.Role = models.RoleAnalyst
	}
	if err := s.checkCompany(c, req.CompanyID); err != nil {
		s.userError(c, err)
		return
	}
	user, err := s.users.Create(c.Request.Context(), req.Username, req.Password, req.Role, req.CompanyID)
	if err != nil {
		s.userError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toUserResponse(*user))
}

// updateUserHandler replaces role and company; the password changes only
// when one is given.
func (s *server) updateUserHandler(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.checkCompany(c, req.CompanyID); err != nil {
		s.userError(c, err)
		return
	}
	user, err := s.users.Update(c.Request.Context(), uint(id), req.Role, req.Password, req.CompanyID)
	if err != nil {
		s.userError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(*user))
}

func (s *server) deleteUserHandler(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	if uint(id) == principal(c).UserID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot delete yourself"})
		return
	}
	if err := s.users.Delete(c.Request.Context(), uint(id)); err != nil {
		s.userError(c, err)
		return
	}
	s.chat.Memory().ClearUser(uint(id))
	c.JSON(http.StatusOK, gin.H{"message": "user deleted"})
}
