// Package api serves the read-only operations status API: what is deployed
// where, and which backups exist. The dashboard polls it; nothing here
// mutates state.
package api

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tradewatch/deployctl/backup"
	"github.com/tradewatch/deployctl/config"
	"github.com/tradewatch/deployctl/db"
	"github.com/tradewatch/deployctl/models"
)

const Version = "1.0.0"

type Server struct {
	config  *config.Config
	history *db.Database
	backups *backup.Store
	router  *gin.Engine
}

func NewServer(cfg *config.Config, history *db.Database, backups *backup.Store) *Server {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		config:  cfg,
		history: history,
		backups: backups,
		router:  gin.Default(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Health check (no auth)
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api/v1")
	api.Use(s.authMiddleware())
	{
		api.GET("/deployments", s.handleListDeployments)
		api.GET("/deployments/current", s.handleCurrentDeployment)
		api.GET("/backups", s.handleListBackups)
	}
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			c.Abort()
			return
		}
		key := strings.TrimPrefix(auth, "Bearer ")
		if !s.config.ValidateAPIKey(key) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	resp := models.HealthResponse{
		Status:  "ok",
		Version: Version,
	}
	if err := s.history.Ping(); err == nil {
		resp.HistoryAccessible = true
	}
	if _, err := os.Stat(s.config.BackupRoot); err == nil {
		resp.BackupRootReadable = true
	}
	if !resp.HistoryAccessible {
		resp.Status = "degraded"
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListDeployments(c *gin.Context) {
	env, err := config.ParseEnvironment(c.DefaultQuery("env", string(config.Production)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	deployments, err := s.history.ListDeployments(env, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deployments": deployments})
}

func (s *Server) handleCurrentDeployment(c *gin.Context) {
	env, err := config.ParseEnvironment(c.DefaultQuery("env", string(config.Production)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	manifest, err := s.history.LatestDeployment(env)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, manifest)
}

func (s *Server) handleListBackups(c *gin.Context) {
	env, err := config.ParseEnvironment(c.DefaultQuery("env", string(config.Production)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	domain, err := backup.ParseDomain(c.DefaultQuery("domain", string(backup.DomainConfig)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	records, err := s.backups.List(env, domain)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"backups": records})
}

func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%d", s.config.Server.Port))
}
