package server

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/methodprobe/internal/render"
)

// root handles service info
func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "methodprobe",
		"routes":  []string{"/health", "/config", "/stats", "/metrics", "/logs"},
	})
}

// health handles liveness checks
func (s *Server) health(c *gin.Context) {
	cfg := s.deps.Store.Load()
	body := gin.H{
		"status":         "healthy",
		"uptime_seconds": time.Since(s.started).Seconds(),
		"tree_enabled":   cfg.Tree.Enabled,
		"flat_enabled":   cfg.Flat.Enabled,
		"snapshots":      cfg.Snapshot.Enabled,
	}
	if s.deps.Hub != nil {
		body["log_clients"] = s.deps.Hub.Clients()
	}
	c.JSON(http.StatusOK, body)
}

// config returns the effective configuration
func (s *Server) config(c *gin.Context) {
	data, err := sonic.ConfigStd.Marshal(s.deps.Store.Load().Config)
	if err != nil {
		s.logger.Error("Failed to encode config", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode config"})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

// stats returns trace duration statistics, counters and queue depths
func (s *Server) stats(c *gin.Context) {
	traces := []render.Summary{}
	if s.deps.Stats != nil {
		traces = s.deps.Stats.Summaries()
	}

	body := gin.H{"traces": traces}
	if s.deps.Metrics != nil {
		body["counters"] = s.deps.Metrics.Current()
	}
	if s.deps.Queues != nil {
		body["queues"] = s.deps.Queues()
	}
	c.JSON(http.StatusOK, body)
}
