package server

import (
	"net/http"
	"time"

	"github.com/danmuck/msgstream/internal/auth"
	"github.com/danmuck/msgstream/internal/msgstream"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const version = "0.1.0"

// CodeInfo is the JSON shape of one error code.
type CodeInfo struct {
	Value   int    `json:"value"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

func CodeTable() []CodeInfo {
	codes := msgstream.Codes()
	out := make([]CodeInfo, 0, len(codes))
	for _, c := range codes {
		out = append(out, CodeInfo{Value: int(c), Name: c.Name(), Message: c.Message()})
	}
	return out
}

func (s *Server) RegisterRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.appeared).String(),
			"service": s.cfg.ID,
			"version": version,
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		ready := s.Addr() != nil
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":   ready,
			"service": s.cfg.ID,
			"version": version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	stats := []gin.HandlerFunc{}
	if s.cfg.AdminToken != "" {
		stats = append(stats, auth.Require(auth.StaticToken{Token: s.cfg.AdminToken}))
	}
	s.router.GET("/stats", append(stats, func(c *gin.Context) {
		c.JSON(http.StatusOK, s.Stats())
	})...)

	s.router.GET("/codes", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"codes": CodeTable()})
	})
}
