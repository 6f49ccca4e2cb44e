package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the top-level application configuration
type Config struct {
	Exchange    ExchangeConfig    `json:"exchange"`
	Database    DatabaseConfig    `json:"database"`
	Redis       RedisConfig       `json:"redis"`
	Vault       VaultConfig       `json:"vault"`
	Server      ServerConfig      `json:"server"`
	Auth        AuthConfig        `json:"auth"`
	Logging     LoggingConfig     `json:"logging"`
	Strategies  StrategiesConfig  `json:"strategies"`
	CopyTrading CopyTradingConfig `json:"copy_trading"`
}

// ExchangeConfig holds exchange connectivity settings
type ExchangeConfig struct {
	APIKey      string  `json:"api_key"`
	SecretKey   string  `json:"secret_key"`
	BaseURL     string  `json:"base_url"`
	MockMode    bool    `json:"mock_mode"`
	QuoteAsset  string  `json:"quote_asset"`
	MockBalance float64 `json:"mock_balance"`
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds Redis settings
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// VaultConfig holds HashiCorp Vault settings
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Enabled        bool   `json:"enabled"`
	Host           string `json:"host"`
	Port           int    `json:"port"`
	AllowedOrigins string `json:"allowed_origins"`
}

// AuthConfig holds JWT authentication settings
type AuthConfig struct {
	Enabled             bool          `json:"enabled"`
	JWTSecret           string        `json:"jwt_secret"`
	AccessTokenDuration time.Duration `json:"access_token_duration"`
	AdminEmail          string        `json:"admin_email"`
	AdminPassword       string        `json:"admin_password"`
}

// LoggingConfig holds structured logging settings
type LoggingConfig struct {
	Level      string `json:"level"`
	JSONFormat bool   `json:"json_format"`
	Caller     bool   `json:"caller"`
}

// RiskConfig holds the per-strategy risk and lifecycle knobs
type RiskConfig struct {
	RiskFraction     float64 `json:"risk_fraction"`
	StopLossFraction float64 `json:"stop_loss_fraction"`
	MinBalance       float64 `json:"min_balance"`
	TakeProfit       float64 `json:"take_profit"`
	StopLoss         float64 `json:"stop_loss"`
	MaxHoldSeconds   int     `json:"max_hold_seconds"`
	TickSeconds      int     `json:"tick_seconds"`
	CandleLimit      int     `json:"candle_limit"`
}

// StrategiesConfig holds all strategy sections
type StrategiesConfig struct {
	Momentum MomentumConfig `json:"momentum"`
	RSIEMA   RSIEMAConfig   `json:"rsi_ema"`
	Scalping ScalpingConfig `json:"scalping"`
}

// MomentumConfig configures the momentum strategy
type MomentumConfig struct {
	Enabled          bool       `json:"enabled"`
	Symbol           string     `json:"symbol"`
	Interval         string     `json:"interval"`
	MomentumPeriod   int        `json:"momentum_period"`
	ShortEMAPeriod   int        `json:"short_ema_period"`
	LongEMAPeriod    int        `json:"long_ema_period"`
	MinTrendStrength float64    `json:"min_trend_strength"`
	VolumeThreshold  float64    `json:"volume_threshold"`
	Risk             RiskConfig `json:"risk"`
}

// RSIEMAConfig configures the RSI/EMA strategy
type RSIEMAConfig struct {
	Enabled         bool       `json:"enabled"`
	Symbol          string     `json:"symbol"`
	Interval        string     `json:"interval"`
	RSIPeriod       int        `json:"rsi_period"`
	EMAPeriod       int        `json:"ema_period"`
	Oversold        float64    `json:"oversold"`
	Overbought      float64    `json:"overbought"`
	VolumeThreshold float64    `json:"volume_threshold"`
	Risk            RiskConfig `json:"risk"`
}

// ScalpingConfig configures the scalping strategy
type ScalpingConfig struct {
	Enabled         bool       `json:"enabled"`
	Symbol          string     `json:"symbol"`
	Interval        string     `json:"interval"`
	SpreadThreshold float64    `json:"spread_threshold"`
	VolumeFloor     float64    `json:"volume_floor"`
	MinVolatility   float64    `json:"min_volatility"`
	Risk            RiskConfig `json:"risk"`
}

// LeaderConfig identifies one tracked leader account
type LeaderConfig struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	APIKey      string  `json:"api_key"`
	SecretKey   string  `json:"secret_key"`
	MinNotional float64 `json:"min_notional"`
	MaxNotional float64 `json:"max_notional"`
}

// FollowerConfig identifies one replicating follower
type FollowerConfig struct {
	ID             string  `json:"id"`
	CopyRatio      float64 `json:"copy_ratio"`
	MaxDailyCopies int     `json:"max_daily_copies"`
}

// CopyTradingConfig configures the replication engine
type CopyTradingConfig struct {
	Enabled           bool             `json:"enabled"`
	Symbols           []string         `json:"symbols"`
	ScoreFloor        float64          `json:"score_floor"`
	TakeProfit        float64          `json:"take_profit"`
	StopLoss          float64          `json:"stop_loss"`
	MaxHoldSeconds    int              `json:"max_hold_seconds"`
	TickSeconds       int              `json:"tick_seconds"`
	CopyWindowSeconds int              `json:"copy_window_seconds"`
	Leaders           []LeaderConfig   `json:"leaders"`
	Followers         []FollowerConfig `json:"followers"`
}

// Load reads config.json if present, then applies environment
// overrides and defaults. Environment variables take precedence.
func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(file, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filename, err)
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// Exchange
	cfg.Exchange.APIKey = getEnvOrDefault("EXCHANGE_API_KEY", cfg.Exchange.APIKey)
	cfg.Exchange.SecretKey = getEnvOrDefault("EXCHANGE_SECRET_KEY", cfg.Exchange.SecretKey)
	cfg.Exchange.BaseURL = getEnvOrDefault("EXCHANGE_BASE_URL", cfg.Exchange.BaseURL)
	if os.Getenv("MOCK_MODE") != "" {
		cfg.Exchange.MockMode = os.Getenv("MOCK_MODE") == "true"
	}

	// Database
	if os.Getenv("DATABASE_ENABLED") != "" {
		cfg.Database.Enabled = os.Getenv("DATABASE_ENABLED") == "true"
	}
	cfg.Database.Host = getEnvOrDefault("DATABASE_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvIntOrDefault("DATABASE_PORT", cfg.Database.Port)
	cfg.Database.User = getEnvOrDefault("DATABASE_USER", cfg.Database.User)
	cfg.Database.Password = getEnvOrDefault("DATABASE_PASSWORD", cfg.Database.Password)
	cfg.Database.Database = getEnvOrDefault("DATABASE_NAME", cfg.Database.Database)
	cfg.Database.SSLMode = getEnvOrDefault("DATABASE_SSL_MODE", cfg.Database.SSLMode)

	// Redis
	if os.Getenv("REDIS_ENABLED") != "" {
		cfg.Redis.Enabled = os.Getenv("REDIS_ENABLED") == "true"
	}
	cfg.Redis.Address = getEnvOrDefault("REDIS_ADDR", cfg.Redis.Address)
	cfg.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.Redis.Password)

	// Vault
	if os.Getenv("VAULT_ENABLED") != "" {
		cfg.Vault.Enabled = os.Getenv("VAULT_ENABLED") == "true"
	}
	cfg.Vault.Address = getEnvOrDefault("VAULT_ADDR", cfg.Vault.Address)
	cfg.Vault.Token = getEnvOrDefault("VAULT_TOKEN", cfg.Vault.Token)
	cfg.Vault.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", cfg.Vault.MountPath)
	cfg.Vault.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", cfg.Vault.SecretPath)

	// Server
	cfg.Server.Host = getEnvOrDefault("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvIntOrDefault("SERVER_PORT", cfg.Server.Port)
	cfg.Server.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", cfg.Server.AllowedOrigins)

	// Auth
	if os.Getenv("AUTH_ENABLED") != "" {
		cfg.Auth.Enabled = os.Getenv("AUTH_ENABLED") == "true"
	}
	cfg.Auth.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.AdminEmail = getEnvOrDefault("AUTH_ADMIN_EMAIL", cfg.Auth.AdminEmail)
	cfg.Auth.AdminPassword = getEnvOrDefault("AUTH_ADMIN_PASSWORD", cfg.Auth.AdminPassword)

	// Logging
	cfg.Logging.Level = getEnvOrDefault("LOG_LEVEL", cfg.Logging.Level)
	if os.Getenv("LOG_JSON") != "" {
		cfg.Logging.JSONFormat = os.Getenv("LOG_JSON") == "true"
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Exchange.BaseURL == "" {
		cfg.Exchange.BaseURL = "https://api.binance.com"
	}
	if cfg.Exchange.QuoteAsset == "" {
		cfg.Exchange.QuoteAsset = "USDT"
	}
	if cfg.Exchange.MockBalance == 0 {
		cfg.Exchange.MockBalance = 10000
	}

	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}

	if cfg.Redis.Address == "" {
		cfg.Redis.Address = "localhost:6379"
	}

	if cfg.Vault.MountPath == "" {
		cfg.Vault.MountPath = "secret"
	}
	if cfg.Vault.SecretPath == "" {
		cfg.Vault.SecretPath = "strategy-engine/api-keys"
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.AllowedOrigins == "" {
		cfg.Server.AllowedOrigins = "*"
	}

	if cfg.Auth.AccessTokenDuration == 0 {
		cfg.Auth.AccessTokenDuration = 15 * time.Minute
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	applyStrategyDefaults(cfg)
	applyCopyTradingDefaults(&cfg.CopyTrading)
}

func applyStrategyDefaults(cfg *Config) {
	m := &cfg.Strategies.Momentum
	if m.Symbol == "" {
		m.Symbol = "BTCUSDT"
	}
	if m.Interval == "" {
		m.Interval = "5m"
	}
	if m.MomentumPeriod == 0 {
		m.MomentumPeriod = 14
	}
	if m.ShortEMAPeriod == 0 {
		m.ShortEMAPeriod = 10
	}
	if m.LongEMAPeriod == 0 {
		m.LongEMAPeriod = 20
	}
	if m.MinTrendStrength == 0 {
		m.MinTrendStrength = 0.02
	}
	if m.VolumeThreshold == 0 {
		m.VolumeThreshold = 1.5
	}
	applyRiskDefaults(&m.Risk, RiskConfig{
		RiskFraction:     0.02,
		StopLossFraction: 0.03,
		MinBalance:       20,
		TakeProfit:       0.05,
		StopLoss:         0.03,
		MaxHoldSeconds:   3600,
		TickSeconds:      60,
		CandleLimit:      100,
	})

	r := &cfg.Strategies.RSIEMA
	if r.Symbol == "" {
		r.Symbol = "ETHUSDT"
	}
	if r.Interval == "" {
		r.Interval = "15m"
	}
	if r.RSIPeriod == 0 {
		r.RSIPeriod = 14
	}
	if r.EMAPeriod == 0 {
		r.EMAPeriod = 20
	}
	if r.Oversold == 0 {
		r.Oversold = 30
	}
	if r.Overbought == 0 {
		r.Overbought = 70
	}
	if r.VolumeThreshold == 0 {
		r.VolumeThreshold = 1.2
	}
	applyRiskDefaults(&r.Risk, RiskConfig{
		RiskFraction:     0.025,
		StopLossFraction: 0.025,
		MinBalance:       25,
		TakeProfit:       0.04,
		StopLoss:         0.025,
		MaxHoldSeconds:   7200,
		TickSeconds:      60,
		CandleLimit:      100,
	})

	s := &cfg.Strategies.Scalping
	if s.Symbol == "" {
		s.Symbol = "SOLUSDT"
	}
	if s.Interval == "" {
		s.Interval = "1m"
	}
	if s.SpreadThreshold == 0 {
		s.SpreadThreshold = 0.0005
	}
	if s.VolumeFloor == 0 {
		s.VolumeFloor = 0.5
	}
	if s.MinVolatility == 0 {
		s.MinVolatility = 0.0002
	}
	applyRiskDefaults(&s.Risk, RiskConfig{
		RiskFraction:     0.01,
		StopLossFraction: 0.005,
		MinBalance:       10,
		TakeProfit:       0.0003,
		StopLoss:         0.001,
		MaxHoldSeconds:   300,
		TickSeconds:      15,
		CandleLimit:      100,
	})
}

func applyRiskDefaults(risk *RiskConfig, defaults RiskConfig) {
	if risk.RiskFraction == 0 {
		risk.RiskFraction = defaults.RiskFraction
	}
	if risk.StopLossFraction == 0 {
		risk.StopLossFraction = defaults.StopLossFraction
	}
	if risk.MinBalance == 0 {
		risk.MinBalance = defaults.MinBalance
	}
	if risk.TakeProfit == 0 {
		risk.TakeProfit = defaults.TakeProfit
	}
	if risk.StopLoss == 0 {
		risk.StopLoss = defaults.StopLoss
	}
	if risk.MaxHoldSeconds == 0 {
		risk.MaxHoldSeconds = defaults.MaxHoldSeconds
	}
	if risk.TickSeconds == 0 {
		risk.TickSeconds = defaults.TickSeconds
	}
	if risk.CandleLimit == 0 {
		risk.CandleLimit = defaults.CandleLimit
	}
}

func applyCopyTradingDefaults(ct *CopyTradingConfig) {
	if len(ct.Symbols) == 0 {
		ct.Symbols = []string{"BTCUSDT", "ETHUSDT"}
	}
	if ct.ScoreFloor == 0 {
		ct.ScoreFloor = 0.6
	}
	if ct.TakeProfit == 0 {
		ct.TakeProfit = 0.03
	}
	if ct.StopLoss == 0 {
		ct.StopLoss = 0.02
	}
	if ct.MaxHoldSeconds == 0 {
		ct.MaxHoldSeconds = 7200
	}
	if ct.TickSeconds == 0 {
		ct.TickSeconds = 120
	}
	if ct.CopyWindowSeconds == 0 {
		ct.CopyWindowSeconds = 300
	}
	for i := range ct.Followers {
		if ct.Followers[i].CopyRatio == 0 {
			ct.Followers[i].CopyRatio = 0.1
		}
		if ct.Followers[i].MaxDailyCopies == 0 {
			ct.Followers[i].MaxDailyCopies = 10
		}
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
