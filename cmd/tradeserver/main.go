package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"tradeflow/internal/audit"
	"tradeflow/internal/config"
	cronrunner "tradeflow/internal/cron"
	"tradeflow/internal/db"
	"tradeflow/internal/events"
	"tradeflow/internal/handler"
	"tradeflow/internal/lock"
	"tradeflow/internal/logger"
	"tradeflow/internal/notification"
	"tradeflow/internal/repository"
	gormrepository "tradeflow/internal/repository/gorm"
	"tradeflow/internal/repository/memory"
	"tradeflow/internal/service"
	"tradeflow/internal/session"

	_ "tradeflow/docs"
)

func main() {
	cfgPath := os.Getenv("TF_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("TF_ENV_ONLY"); envOnlyRaw != "" {
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

	isDev := strings.EqualFold(cfg.App.Env, "dev")
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		if !isDev {
			logger.Fatal("auth.jwt_secret is required outside dev")
		}
		cfg.Auth.JWTSecret = "dev-secret"
		logger.Warn("auth.jwt_secret not set, using the dev secret")
	}

	var dbConn *db.DB
	var store repository.Repository
	if strings.TrimSpace(cfg.DB.DSN) == "" && isDev {
		logger.Warn("db.dsn not set, trades are kept in memory")
		store = memory.New()
	} else {
		dbConn, err = db.Open(cfg.DB)
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
		store = gormrepository.New(dbConn.Gorm)
	}

	locker := initLocker(cfg.Redis, logger)
	hub := events.NewHub()
	notifier := &notification.Dispatcher{
		Sender:  notification.WebhookSender{HTTP: &http.Client{Timeout: cfg.Notification.Timeout}},
		URL:     cfg.Notification.WebhookURL,
		Timeout: cfg.Notification.Timeout,
		Logger:  logger,
	}

	jwt := session.JWT{
		Secret:   []byte(cfg.Auth.JWTSecret),
		TokenTTL: cfg.Auth.TokenTTL,
		Issuer:   cfg.Auth.Issuer,
	}
	authSvc := &service.AuthService{
		Repo:       store,
		JWT:        jwt,
		Skew:       cfg.Auth.LoginSkew,
		Moderators: cfg.Auth.Moderators,
		Logger:     logger,
	}
	tradeSvc := &service.TradeService{
		Repo:     store,
		Locker:   locker,
		Hub:      hub,
		Notifier: notifier,
		Logger:   logger,
	}
	offerSvc := &service.OfferService{Repo: store}
	templateSvc := &service.TemplateService{Repo: store}
	notificationSvc := &service.NotificationService{Repo: store}
	watcher := &service.ExpiryWatcher{
		Repo:     store,
		Notifier: notifier,
		Logger:   logger,
	}

	if isDev {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware(cfg.Server.AllowedOrigins))

	auditClient := initAuditClient(cfg.Audit, logger)
	engine.Use(handler.RequireSession(jwt))
	engine.Use(handler.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst).Middleware())
	var recorder audit.Recorder
	if auditClient != nil {
		recorder = auditClient
	}
	engine.Use(audit.WriteMiddleware(recorder, cfg.Audit.Agent, logger))

	healthHandler := &handler.HealthHandler{DB: dbConn}
	healthHandler.Register(engine)
	handler.RegisterDocs(engine)

	authHandler := &handler.AuthHandler{Service: authSvc, Users: store}
	authHandler.Register(engine)
	tradeHandler := &handler.TradeHandler{
		Service:        tradeSvc,
		Hub:            hub,
		Logger:         logger,
		OriginPatterns: cfg.Server.AllowedOrigins,
	}
	tradeHandler.Register(engine)
	offerHandler := &handler.OfferHandler{Service: offerSvc}
	offerHandler.Register(engine)
	templateHandler := &handler.TemplateHandler{Service: templateSvc}
	templateHandler.Register(engine)
	notificationHandler := &handler.NotificationHandler{Service: notificationSvc}
	notificationHandler.Register(engine)

	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Cron.Enabled {
		cronRunner := cronrunner.New(logger, ctx)
		if _, err := cronRunner.Add("expiry_watch", cfg.Cron.ExpiryWatch, watcher.Run); err != nil {
			logger.Warn("cron register expiry watch failed", zap.Error(err))
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

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

func corsMiddleware(origins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Add("Vary", "Origin")
		if origin := c.GetHeader("Origin"); origin != "" && handler.OriginAllowed(origins, origin) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,"+handler.ModeratorHeader)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}

// initLocker serializes mutations across replicas through redis when it is
// enabled and reachable, and within this process otherwise.
func initLocker(cfg config.RedisConfig, logger *zap.Logger) lock.Locker {
	if !cfg.Enabled {
		return lock.NewMemoryLocker()
	}
	rl := lock.NewRedisLocker(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rl.Ping(ctx); err != nil {
		logger.Warn("redis unreachable (falling back to in-process locks)", zap.Error(err))
		_ = rl.Close()
		return lock.NewMemoryLocker()
	}
	logger.Info("redis locker ok", zap.String("addr", cfg.Addr))
	return rl
}

func initAuditClient(cfg config.AuditConfig, logger *zap.Logger) *audit.Client {
	base := strings.TrimSpace(cfg.BaseURL)
	apiKey := strings.TrimSpace(cfg.APIKey)
	if base == "" || apiKey == "" {
		return nil
	}

	c := &audit.Client{BaseURL: base, APIKey: apiKey}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Login(ctx); err != nil {
		if logger != nil {
			logger.Warn("audit login failed (write audit disabled)", zap.Error(err))
		}
		return nil
	}
	if logger != nil {
		logger.Info("audit login ok")
	}
	return c
}
