package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"ibrl/internal/auth"
	"ibrl/internal/cache"
	"ibrl/internal/client/gemini"
	"ibrl/internal/client/jupiter"
	"ibrl/internal/client/pyth"
	"ibrl/internal/client/solana"
	"ibrl/internal/config"
	cronrunner "ibrl/internal/cron"
	"ibrl/internal/db"
	"ibrl/internal/handler"
	"ibrl/internal/logger"
	"ibrl/internal/paas"
	gormrepository "ibrl/internal/repository/gorm"
	"ibrl/internal/risk"
	"ibrl/internal/service"
	detectors "ibrl/internal/signal"

	_ "ibrl/docs"
)

func main() {
	cfgPath := os.Getenv("IBRL_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("IBRL_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := gormrepository.New(dbConn.Gorm)
	settingsSvc := &service.SystemSettingsService{Repo: store}
	if err := settingsSvc.EnsureDefaultSwitches(ctx); err != nil {
		logger.Warn("init default system switches failed", zap.Error(err))
	}

	priceCache := cache.New(cfg.Cache, logger)
	oracle := pyth.NewClient(&http.Client{Timeout: cfg.Oracle.Timeout}, cfg.Oracle.HermesURL, cfg.Oracle.FeedID)
	rpc := solana.NewClient(&http.Client{Timeout: cfg.Solana.Timeout}, cfg.Solana.RPCURLs, logger)
	router := jupiter.NewClient(&http.Client{Timeout: cfg.Jupiter.Timeout}, jupiter.Options{
		Host:          cfg.Jupiter.BaseURL,
		APIKey:        cfg.Jupiter.APIKey,
		RatePerSecond: cfg.Jupiter.RatePerSecond,
		Burst:         cfg.Jupiter.Burst,
	})
	balances := solana.BalanceReader{RPC: rpc, USDCMint: cfg.Solana.USDCMint}

	// The model is optional; without a key prompts go through the local parser only.
	var llm *gemini.Client
	if gc, err := gemini.New(ctx, gemini.Options{APIKey: cfg.Gemini.APIKey, Model: cfg.Gemini.Model, Timeout: cfg.Gemini.Timeout}); err == nil {
		llm = gc
	} else if !errors.Is(err, gemini.ErrNotConfigured) {
		logger.Warn("gemini client init failed", zap.Error(err))
	}

	paasClient := initPaaSClient(ctx, cfg.PaaS, logger)

	locks := service.NewOwnerLocks()
	riskMgr := &risk.Manager{Balances: balances, Logger: logger}
	pipeline := &service.Pipeline{
		Risk:      riskMgr,
		Router:    router,
		Simulator: rpc,
		Mints:     service.Mints{SOL: cfg.Solana.SOLMint, USDC: cfg.Solana.USDCMint},
		Logger:    logger,
	}
	prices := &service.PriceService{
		Oracle: oracle,
		Cache:  priceCache,
		Repo:   store,
		TTL:    cfg.Cache.PriceTTL,
		Logger: logger,
	}
	proposals := &service.ProposalService{
		Repo:       store,
		Pipeline:   pipeline,
		Locks:      locks,
		Audit:      paasClient,
		Logger:     logger,
		StaleAfter: cfg.Engine.StaleAfter,
	}
	automations := &service.AutomationService{Repo: store, Risk: riskMgr, Locks: locks, Logger: logger}
	portfolio := &service.PortfolioService{
		Balances: balances,
		Prices:   prices,
		Epochs:   rpc,
		Logger:   logger,
	}
	intents := &service.IntentService{
		Flags:       settingsSvc,
		Risk:        riskMgr,
		Proposals:   proposals,
		Automations: automations,
		Portfolio:   portfolio,
		Repo:        store,
		Logger:      logger,
	}
	if llm != nil {
		portfolio.Advisor = llm
		intents.LLM = llm
	}
	activity := &service.ActivityService{Repo: store}
	engine := &service.ProposalEngine{
		Repo:      store,
		Pipeline:  pipeline,
		Balances:  balances,
		Prices:    prices,
		Detectors: detectors.New(cfg.Detectors),
		Locks:     locks,
		Flags:     settingsSvc,
		Audit:     paasClient,
		Config:    cfg.Engine,
		Logger:    logger,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn}
	healthHandler.Register(r)
	paas.RegisterDocs(r)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	activityHandler := &handler.ActivityHandler{
		Activity:  activity,
		Portfolio: portfolio,
		Prices:    prices,
		Engine:    engine,
	}
	activityHandler.RegisterPublic(r.Group("/api/v1"))

	api := r.Group("/api/v1")
	if cfg.Auth.Disabled {
		logger.Warn("auth disabled; owner is taken from the request")
	} else {
		api.Use(auth.Middleware(auth.JWT{
			Secret:   []byte(cfg.Auth.JWTSecret),
			Issuer:   cfg.Auth.Issuer,
			TokenTTL: cfg.Auth.TokenTTL,
		}))
	}
	api.Use(paas.AuditMiddleware(paasClient))

	(&handler.IntentsHandler{Intents: intents, Proposals: proposals}).Register(api)
	(&handler.AutomationsHandler{Automations: automations, Intents: intents}).Register(api)
	(&handler.ProposalsHandler{Proposals: proposals}).Register(api)
	(&handler.SystemSettingsHandler{Settings: settingsSvc}).Register(api)
	activityHandler.Register(api)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: r,
	}

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Engine.Enabled {
		_, err = cronRunner.Add(cfg.Engine.TickSpec, func(ctx context.Context) {
			rep := engine.Tick(ctx)
			if rep.Skipped != "" {
				logger.Debug("engine tick skipped", zap.String("reason", rep.Skipped))
				return
			}
			logger.Info("engine tick",
				zap.Int("owners", rep.Owners),
				zap.Int("proposals", rep.Proposals),
				zap.Int("failures", rep.Failures),
				zap.Duration("took", rep.Duration),
			)
		})
		if err != nil {
			logger.Warn("cron register engine tick failed", zap.Error(err))
		}
	} else {
		logger.Warn("engine disabled by config")
	}

	_, err = cronRunner.Add(cfg.Engine.StaleSweepSpec, func(ctx context.Context) {
		engine.SweepStale(ctx)
	})
	if err != nil {
		logger.Warn("cron register stale sweep failed", zap.Error(err))
	}

	_, err = cronRunner.Add(cfg.Engine.RetentionSpec, func(ctx context.Context) {
		engine.PruneSamples(ctx)
	})
	if err != nil {
		logger.Warn("cron register sample retention failed", zap.Error(err))
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	errCh := make(chan error, 1)

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}

func initPaaSClient(ctx context.Context, cfg config.PaaSConfig, logger *zap.Logger) *paas.Client {
	p := paas.New(cfg.BaseURL, cfg.APIKey, cfg.Agent, logger)
	if p == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := p.Login(ctx); err != nil {
		logger.Warn("paas login failed (audit disabled)", zap.Error(err))
		return nil
	}
	logger.Info("paas login ok")
	return p
}
