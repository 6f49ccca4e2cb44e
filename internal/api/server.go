package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"crypto-strategy-engine/internal/auth"
	"crypto-strategy-engine/internal/bot"
	"crypto-strategy-engine/internal/database"
	"crypto-strategy-engine/internal/events"
	"crypto-strategy-engine/internal/exchange"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RateLimiter provides simple in-memory rate limiting per endpoint
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int
	window   time.Duration
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins string
	ProductionMode bool
}

// Server exposes the engines over HTTP and WebSocket
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	config      ServerConfig
	coordinator *bot.Coordinator
	client      exchange.ExchangeClient
	repo        *database.Repository // nil when persistence is disabled
	eventBus    *events.EventBus
	hub         *WSHub
	rateLimiter *RateLimiter
	logger      zerolog.Logger

	// Single-operator auth; nil jwtManager disables authentication
	jwtManager    *auth.JWTManager
	passwords     *auth.PasswordManager
	adminEmail    string
	adminPassHash string
}

// NewServer creates the API server and wires its routes
func NewServer(
	config ServerConfig,
	coordinator *bot.Coordinator,
	client exchange.ExchangeClient,
	repo *database.Repository,
	eventBus *events.EventBus,
	jwtManager *auth.JWTManager,
	logger zerolog.Logger,
) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if config.AllowedOrigins == "" || config.AllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(config.AllowedOrigins, ",")
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:      router,
		config:      config,
		coordinator: coordinator,
		client:      client,
		repo:        repo,
		eventBus:    eventBus,
		jwtManager:  jwtManager,
		passwords:   auth.NewPasswordManager(auth.DefaultBcryptCost),
		rateLimiter: NewRateLimiter(120, time.Minute),
		logger:      logger.With().Str("component", "api").Logger(),
	}

	server.hub = NewWSHub(server.logger)
	go server.hub.Run()
	eventBus.SubscribeAll(server.hub.BroadcastEvent)

	server.setupRoutes()

	return server
}

// SetAdminCredentials configures the operator login. The password is
// hashed before storage.
func (s *Server) SetAdminCredentials(email, password string) error {
	hash, err := s.passwords.HashPassword(password)
	if err != nil {
		return err
	}
	s.adminEmail = email
	s.adminPassHash = hash
	return nil
}

func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		if !s.rateLimiter.Allow(path) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
				"path":  path,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	if s.jwtManager != nil {
		s.router.POST("/api/auth/login", s.handleLogin)
	}

	api := s.router.Group("/api")
	if s.jwtManager != nil {
		api.Use(auth.Middleware(s.jwtManager))
	}

	{
		api.GET("/engines", s.handleGetEngines)
		api.POST("/strategies/:name/toggle", s.handleToggleStrategy)

		api.GET("/positions", s.handleGetPositions)
		api.POST("/positions/:symbol/close", s.handleClosePosition)

		api.GET("/trades/history", s.handleGetTradeHistory)
		api.GET("/strategy-performance", s.handleGetStrategyPerformance)

		copytrade := api.Group("/copytrade")
		{
			copytrade.GET("/summary", s.handleGetCopySummary)
			copytrade.GET("/records", s.handleGetCopyRecords)
		}

		// Market passthrough hits the exchange, so rate limit it
		market := api.Group("/market")
		market.Use(s.rateLimitMiddleware())
		{
			market.GET("/klines", s.handleGetKlines)
			market.GET("/price", s.handleGetPrice)
		}
	}

	s.router.GET("/ws", s.handleWebSocket)
}

// Start runs the HTTP server until the context is cancelled
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("API server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
