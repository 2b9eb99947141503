package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"finchat/models"
	"finchat/pkg/access"
	"finchat/pkg/chunk"
	"finchat/pkg/rag"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type chatRequest struct {
	Query          string `json:"query" binding:"required"`
	CompanyID      uint   `json:"company_id" binding:"required"`
	IncludeSources bool   `json:"include_sources"`
}

func (s *server) chatHandler(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p := principal(c)
	if err := p.Require(req.CompanyID); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied to this company"})
		return
	}
	ctx := c.Request.Context()
	company, err := s.companies.Get(ctx, req.CompanyID)
	if err != nil {
		s.companyError(c, err)
		return
	}

	ans, err := s.chat.Ask(ctx, p, *company, req.Query)
	if err != nil {
		switch {
		case errors.Is(err, rag.ErrEmptyQuestion):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, access.ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": "access denied to this company"})
		case errors.Is(err, rag.ErrNotConfigured):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "AI service not available"})
		case errors.Is(err, rag.ErrGenerationUnavailable), errors.Is(err, context.DeadlineExceeded):
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":       "the assistant is temporarily unavailable, please try again",
				"recoverable": true,
			})
		default:
			s.log.Error("chat failed", zap.Uint("company_id", company.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "chat failed"})
		}
		return
	}

	resp := gin.H{
		"answer":              ans.Text,
		"company":             ans.Company,
		"sources_count":       len(ans.Sources),
		"conversation_length": ans.ConversationLength,
	}
	if req.IncludeSources {
		sources := ans.Sources
		if sources == nil {
			sources = []chunk.Chunk{}
		}
		resp["sources"] = sources
	}
	c.JSON(http.StatusOK, resp)
}

func (s *server) clearChatHandler(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("company_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid company id"})
		return
	}
	p := principal(c)
	if err := p.Require(uint(id)); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied to this company"})
		return
	}
	s.chat.Memory().Clear(p.UserID, uint(id))
	c.JSON(http.StatusOK, gin.H{"message": "conversation cleared"})
}

// healthHandler reports the state of the database, the AI provider and the
// vector index. The service is healthy when the database answers.
func (s *server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	dbState := "connected"
	status := http.StatusOK
	if sqlDB, err := s.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		dbState = "unavailable"
		status = http.StatusServiceUnavailable
	}
	ai := "not_configured"
	if s.chat.Configured() {
		ai = "configured"
	}
	vector := "disabled"
	if s.chat.IndexReady() {
		vector = "ready"
	}
	var companyCount int64
	if dbState == "connected" {
		s.db.WithContext(ctx).Model(&models.Company{}).Count(&companyCount)
	}
	state := "healthy"
	if status != http.StatusOK {
		state = "unhealthy"
	}
	c.JSON(status, gin.H{
		"status":    state,
		"database":  dbState,
		"ai":        ai,
		"vector":    vector,
		"companies": companyCount,
	})
}
