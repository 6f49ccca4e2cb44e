package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"crypto-strategy-engine/internal/auth"
	"crypto-strategy-engine/internal/engine"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleHealth(c *gin.Context) {
	status := gin.H{
		"status":  "ok",
		"time":    time.Now().UTC(),
		"engines": len(s.coordinator.Engines()),
	}

	if s.repo != nil {
		if err := s.repo.HealthCheck(c.Request.Context()); err != nil {
			status["status"] = "degraded"
			status["database"] = err.Error()
		} else {
			status["database"] = "ok"
		}
	}

	c.JSON(http.StatusOK, status)
}

func (s *Server) handleLogin(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if !strings.EqualFold(req.Email, s.adminEmail) || !s.passwords.VerifyPassword(req.Password, s.adminPassHash) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   auth.ErrInvalidCredentials.Code,
			"message": auth.ErrInvalidCredentials.Message,
		})
		return
	}

	token, err := s.jwtManager.GenerateAccessToken(auth.OperatorClaims{
		Email:   s.adminEmail,
		IsAdmin: true,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to issue token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, auth.LoginResponse{
		AccessToken: token,
		ExpiresIn:   s.jwtManager.AccessTokenSeconds(),
		TokenType:   "Bearer",
	})
}

func (s *Server) handleGetEngines(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"running": s.coordinator.Running(),
		"engines": s.coordinator.Summaries(),
	})
}

func (s *Server) handleToggleStrategy(c *gin.Context) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	name := c.Param("name")
	if err := s.coordinator.ToggleStrategy(name, req.Enabled); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"strategy": name, "enabled": req.Enabled})
}

func (s *Server) handleGetPositions(c *gin.Context) {
	positions := make([]engine.Position, 0)
	for _, e := range s.coordinator.Engines() {
		positions = append(positions, e.OpenPositions()...)
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions})
}

func (s *Server) handleClosePosition(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))

	for _, e := range s.coordinator.Engines() {
		if e.Position(symbol) == nil {
			continue
		}
		if err := e.ClosePosition(c.Request.Context(), symbol); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "closed", "symbol": symbol})
		return
	}

	c.JSON(http.StatusNotFound, gin.H{"error": "no open position for " + symbol})
}

func (s *Server) handleGetTradeHistory(c *gin.Context) {
	if s.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence disabled"})
		return
	}

	limit := 100
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}

	trades, err := s.repo.GetTradeHistory(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load trade history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load trade history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) handleGetStrategyPerformance(c *gin.Context) {
	if s.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence disabled"})
		return
	}

	performance, err := s.repo.GetStrategyPerformance(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load strategy performance")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load strategy performance"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"performance": performance})
}

func (s *Server) handleGetCopySummary(c *gin.Context) {
	ce := s.coordinator.CopyEngine()
	if ce == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "copy trading disabled"})
		return
	}
	c.JSON(http.StatusOK, ce.Summary())
}

func (s *Server) handleGetCopyRecords(c *gin.Context) {
	if s.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence disabled"})
		return
	}

	limit := 100
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}

	records, err := s.repo.GetCopyRecords(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load copy records")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load copy records"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (s *Server) handleGetKlines(c *gin.Context) {
	symbol := strings.ToUpper(c.Query("symbol"))
	interval := c.Query("interval")
	if symbol == "" || interval == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol and interval are required"})
		return
	}

	limit := 100
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}

	klines, err := s.client.GetKlines(symbol, interval, limit)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "interval": interval, "klines": klines})
}

func (s *Server) handleGetPrice(c *gin.Context) {
	symbol := strings.ToUpper(c.Query("symbol"))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}

	price, err := s.client.GetCurrentPrice(symbol)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "price": price})
}
