package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crypto-strategy-engine/config"
	"crypto-strategy-engine/internal/api"
	"crypto-strategy-engine/internal/auth"
	"crypto-strategy-engine/internal/bot"
	"crypto-strategy-engine/internal/copytrade"
	"crypto-strategy-engine/internal/database"
	"crypto-strategy-engine/internal/engine"
	"crypto-strategy-engine/internal/events"
	"crypto-strategy-engine/internal/exchange"
	"crypto-strategy-engine/internal/logging"
	"crypto-strategy-engine/internal/risk"
	"crypto-strategy-engine/internal/strategy"
	"crypto-strategy-engine/internal/vault"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.JSONFormat, cfg.Logging.Caller)
	logger.Info().Msg("configuration loaded")

	eventBus := events.NewEventBus()

	// Order failures published by the engines land in the operator log
	// whether or not a websocket client is watching
	errLogger := logger.With().Str("component", "events").Logger()
	eventBus.Subscribe(events.EventError, func(ev events.Event) {
		errLogger.Warn().Fields(ev.Data).Msg("engine reported an error")
	})

	ctx := context.Background()

	// Credentials come from Vault when enabled, config otherwise
	vaultClient, err := vault.NewClient(cfg.Vault)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create vault client")
	}
	if cfg.Vault.Enabled {
		if err := vaultClient.Health(ctx); err != nil {
			logger.Fatal().Err(err).Msg("vault health check failed")
		}
	}

	client := buildExchangeClient(ctx, cfg, vaultClient, logger)

	// Persistence is optional; a nil repository disables it everywhere
	var repo *database.Repository
	if cfg.Database.Enabled {
		db, err := database.NewDB(database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.Database,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		if err := db.RunMigrations(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to run migrations")
		}
		repo = database.NewRepository(db)
		logger.Info().Msg("database connected")
	}

	var tracker copytrade.CopyTracker
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rdb.Close()
		tracker = database.NewRedisCopyTracker(rdb)
		logger.Info().Msg("redis connected")
	}

	coordinator := bot.New(logger)

	var store engine.TradeStore
	if repo != nil {
		store = repo
	}

	for _, strat := range buildStrategies(cfg) {
		params := strat.Params()
		sizer := risk.NewSizer(risk.SizerConfig{
			RiskFraction:     params.RiskFraction,
			StopLossFraction: params.StopLossFraction,
			MinBalance:       params.MinBalance,
		}, logger)

		coordinator.AddEngine(engine.New(engine.Config{
			Strategy:   strat,
			Client:     client,
			Sizer:      sizer,
			Store:      store,
			Bus:        eventBus,
			Logger:     logger,
			QuoteAsset: cfg.Exchange.QuoteAsset,
		}))
	}

	if cfg.CopyTrading.Enabled {
		copyEngine := buildCopyEngine(ctx, cfg, client, tracker, repo, store, eventBus, vaultClient, logger)
		coordinator.SetCopyEngine(copyEngine, time.Duration(cfg.CopyTrading.TickSeconds)*time.Second)
	}

	if err := coordinator.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start coordinator")
	}
	eventBus.Publish(events.Event{Type: events.EventEngineStarted, Timestamp: time.Now()})

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Server.Enabled {
		var jwtManager *auth.JWTManager
		if cfg.Auth.Enabled {
			jwtManager = auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenDuration)
		}

		server := api.NewServer(api.ServerConfig{
			Host:           cfg.Server.Host,
			Port:           cfg.Server.Port,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			ProductionMode: cfg.Logging.JSONFormat,
		}, coordinator, client, repo, eventBus, jwtManager, logger)

		if cfg.Auth.Enabled {
			if err := server.SetAdminCredentials(cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
				logger.Fatal().Err(err).Msg("invalid admin credentials")
			}
		}

		go func() {
			if err := server.Start(runCtx); err != nil {
				logger.Error().Err(err).Msg("API server stopped")
			}
		}()
	}

	<-runCtx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	coordinator.Stop(shutdownCtx)
	eventBus.Publish(events.Event{Type: events.EventEngineStopped, Timestamp: time.Now()})
}

func buildExchangeClient(ctx context.Context, cfg *config.Config, vaultClient *vault.Client, logger zerolog.Logger) exchange.ExchangeClient {
	if cfg.Exchange.MockMode {
		logger.Info().Float64("balance", cfg.Exchange.MockBalance).Msg("running against mock exchange")
		return exchange.NewMockClient(cfg.Exchange.MockBalance)
	}

	apiKey, secretKey := cfg.Exchange.APIKey, cfg.Exchange.SecretKey
	if cfg.Vault.Enabled {
		creds, err := vaultClient.GetCredentials(ctx, "trading")
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to load trading credentials from vault")
		}
		apiKey, secretKey = creds.APIKey, creds.SecretKey
	}
	if apiKey == "" || secretKey == "" {
		logger.Fatal().Msg("exchange credentials missing; set keys or enable mock mode")
	}

	return exchange.NewClient(apiKey, secretKey, cfg.Exchange.BaseURL)
}

func buildStrategies(cfg *config.Config) []strategy.Strategy {
	var strategies []strategy.Strategy

	if m := cfg.Strategies.Momentum; m.Enabled {
		strategies = append(strategies, strategy.NewMomentumStrategy(strategy.MomentumConfig{
			Symbol:           m.Symbol,
			Interval:         m.Interval,
			MomentumPeriod:   m.MomentumPeriod,
			ShortEMAPeriod:   m.ShortEMAPeriod,
			LongEMAPeriod:    m.LongEMAPeriod,
			MinTrendStrength: m.MinTrendStrength,
			VolumeThreshold:  m.VolumeThreshold,
			Risk:             riskParams(m.Risk),
		}))
	}

	if r := cfg.Strategies.RSIEMA; r.Enabled {
		strategies = append(strategies, strategy.NewRSIEMAStrategy(strategy.RSIEMAConfig{
			Symbol:          r.Symbol,
			Interval:        r.Interval,
			RSIPeriod:       r.RSIPeriod,
			EMAPeriod:       r.EMAPeriod,
			Oversold:        r.Oversold,
			Overbought:      r.Overbought,
			VolumeThreshold: r.VolumeThreshold,
			Risk:            riskParams(r.Risk),
		}))
	}

	if s := cfg.Strategies.Scalping; s.Enabled {
		strategies = append(strategies, strategy.NewScalpingStrategy(strategy.ScalpingConfig{
			Symbol:          s.Symbol,
			Interval:        s.Interval,
			SpreadThreshold: s.SpreadThreshold,
			VolumeFloor:     s.VolumeFloor,
			MinVolatility:   s.MinVolatility,
			Risk:            riskParams(s.Risk),
		}))
	}

	return strategies
}

func riskParams(rc config.RiskConfig) strategy.Params {
	return strategy.Params{
		RiskFraction:     rc.RiskFraction,
		StopLossFraction: rc.StopLossFraction,
		MinBalance:       rc.MinBalance,
		TakeProfit:       rc.TakeProfit,
		StopLoss:         rc.StopLoss,
		MaxHoldTime:      time.Duration(rc.MaxHoldSeconds) * time.Second,
		CandleLimit:      rc.CandleLimit,
		TickInterval:     time.Duration(rc.TickSeconds) * time.Second,
	}
}

func buildCopyEngine(
	ctx context.Context,
	cfg *config.Config,
	client exchange.ExchangeClient,
	tracker copytrade.CopyTracker,
	repo *database.Repository,
	store engine.TradeStore,
	eventBus *events.EventBus,
	vaultClient *vault.Client,
	logger zerolog.Logger,
) *copytrade.Engine {
	leaders := make([]copytrade.Leader, 0, len(cfg.CopyTrading.Leaders))
	for _, l := range cfg.CopyTrading.Leaders {
		leaders = append(leaders, copytrade.Leader{
			ID:          l.ID,
			Name:        l.Name,
			MinNotional: l.MinNotional,
			MaxNotional: l.MaxNotional,
		})
	}

	followers := make([]copytrade.Follower, 0, len(cfg.CopyTrading.Followers))
	for _, f := range cfg.CopyTrading.Followers {
		followers = append(followers, copytrade.Follower{
			ID:             f.ID,
			CopyRatio:      f.CopyRatio,
			MaxDailyCopies: f.MaxDailyCopies,
		})
	}

	var feed copytrade.LeaderFeed
	if cfg.Exchange.MockMode {
		feed = copytrade.NewStaticFeed()
	} else {
		feedClients := make(map[string]*exchange.Client, len(cfg.CopyTrading.Leaders))
		for _, l := range cfg.CopyTrading.Leaders {
			apiKey, secretKey := l.APIKey, l.SecretKey
			if cfg.Vault.Enabled {
				creds, err := vaultClient.GetCredentials(ctx, l.ID)
				if err != nil {
					logger.Fatal().Err(err).Str("leader", l.ID).Msg("failed to load leader credentials from vault")
				}
				apiKey, secretKey = creds.APIKey, creds.SecretKey
			}
			feedClients[l.ID] = exchange.NewClient(apiKey, secretKey, cfg.Exchange.BaseURL)
		}
		feed = copytrade.NewExchangeFeed(feedClients, cfg.CopyTrading.Symbols, 50)
	}

	var copyStore copytrade.CopyStore
	if repo != nil {
		copyStore = repo
	}

	return copytrade.New(copytrade.Config{
		Client:      client,
		Feed:        feed,
		Tracker:     tracker,
		Store:       copyStore,
		Trades:      store,
		Bus:         eventBus,
		Logger:      logger,
		Leaders:     leaders,
		Followers:   followers,
		ScoreFloor:  cfg.CopyTrading.ScoreFloor,
		TakeProfit:  cfg.CopyTrading.TakeProfit,
		StopLoss:    cfg.CopyTrading.StopLoss,
		MaxHoldTime: time.Duration(cfg.CopyTrading.MaxHoldSeconds) * time.Second,
		CopyWindow:  time.Duration(cfg.CopyTrading.CopyWindowSeconds) * time.Second,
	})
}
