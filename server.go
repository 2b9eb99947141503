package main

import (
	"net/http"
	"strings"
	"time"

	"finchat/models"
	"finchat/pkg/access"
	"finchat/pkg/companies"
	"finchat/pkg/factstore"
	"finchat/pkg/ingest"
	"finchat/pkg/rag"
	"finchat/pkg/users"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const principalKey = "principal"

type server struct {
	db        *gorm.DB
	cfg       config
	log       *zap.Logger
	companies *companies.Service
	users     *users.Store
	facts     *factstore.Store
	ingest    *ingest.Service
	chat      *rag.Service
}

// newServer wires the services around db. gen and index may be nil: without a
// generator chat answers only the no-data case, without an index retrieval
// falls back to mentioned and most recent facts.
func newServer(db *gorm.DB, cfg config, log *zap.Logger, gen rag.Generator, index *rag.Index) *server {
	facts := factstore.New(db, log)
	chat := rag.NewService(facts, index, gen, rag.Config{TopK: cfg.TopK, MemoryTurns: cfg.MemoryTurns}, log)
	comps := companies.New(db, log, chat)
	return &server{
		db:        db,
		cfg:       cfg,
		log:       log,
		companies: comps,
		users:     users.New(db),
		facts:     facts,
		ingest:    ingest.New(comps, facts, chat, ingest.Config{BaseDir: cfg.UploadBase, MaxBytes: cfg.MaxUploadBytes}, log),
		chat:      chat,
	}
}

func (s *server) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log), requestMetrics())
	r.MaxMultipartMemory = s.cfg.MaxUploadBytes
	s.setupRoutes(r)
	return r
}

func (s *server) setupRoutes(r *gin.Engine) {
	api := r.Group("/api")
	api.POST("/register", s.registerHandler)
	api.POST("/login", s.loginHandler)
	api.POST("/refresh", s.refreshHandler)
	api.POST("/revoke_refresh", s.revokeRefreshHandler)
	api.GET("/health", s.healthHandler)
	api.GET("/metrics", metricsHandler())

	authGroup := api.Group("")
	authGroup.Use(s.jwtAuthMiddleware())
	authGroup.GET("/me", s.meHandler)
	authGroup.POST("/logout", s.logoutHandler)
	authGroup.GET("/companies", s.listCompaniesHandler)
	authGroup.GET("/companies/:id/uploads", s.listUploadsHandler)
	authGroup.GET("/companies/:id/metrics", s.companyMetricsHandler)
	// admin only, checked in the handler so errors keep the upload shape
	authGroup.POST("/companies/:id/uploads", s.uploadFileHandler)
	authGroup.POST("/chat", s.chatHandler)
	authGroup.DELETE("/chat/:company_id", s.clearChatHandler)

	adminGroup := authGroup.Group("")
	adminGroup.Use(requireRole(models.RoleAdmin))
	adminGroup.POST("/companies", s.createCompanyHandler)
	adminGroup.PUT("/companies/:id", s.updateCompanyHandler)
	adminGroup.DELETE("/companies/:id", s.deleteCompanyHandler)
	adminGroup.DELETE("/companies/:id/facts/:year", s.deleteYearHandler)
	adminGroup.GET("/users", s.listUsersHandler)
	adminGroup.POST("/users", s.createUserHandler)
	adminGroup.PUT("/users/:id", s.updateUserHandler)
	adminGroup.DELETE("/users/:id", s.deleteUserHandler)
}

// jwtAuthMiddleware validates the bearer token, reloads the user so role and
// company changes apply immediately, and stores the resolved principal.
func (s *server) jwtAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") || len(authHeader) < 8 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid Authorization header"})
			return
		}
		claims, err := parseAccessToken(s.cfg.JWTSecret, authHeader[7:])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		username, _ := claims["username"].(string)
		var user models.User
		if err := s.db.WithContext(c.Request.Context()).Preload("Role").Where("username = ?", username).First(&user).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}
		p, err := s.companies.Principal(c.Request.Context(), user)
		if err != nil {
			s.log.Error("resolve principal", zap.String("username", username), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve access"})
			return
		}
		c.Set(principalKey, p)
		c.Request = c.Request.WithContext(access.NewContext(c.Request.Context(), p))
		c.Next()
	}
}

func requireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := principal(c)
		for _, r := range roles {
			if p.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	}
}

func principal(c *gin.Context) access.Principal {
	p, _ := access.FromContext(c.Request.Context())
	return p
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if p, ok := access.FromContext(c.Request.Context()); ok {
			fields = append(fields, zap.String("user", p.Username))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		switch {
		case c.Writer.Status() >= 500:
			log.Error("request", fields...)
		case c.Writer.Status() >= 400:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}
