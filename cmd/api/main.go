package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yourusername/fleet-api/internal/config"
	"github.com/yourusername/fleet-api/internal/delivery"
	"github.com/yourusername/fleet-api/internal/domain/entity"
	"github.com/yourusername/fleet-api/internal/domain/repository"
	"github.com/yourusername/fleet-api/internal/handler"
	"github.com/yourusername/fleet-api/internal/middleware"
	"github.com/yourusername/fleet-api/internal/pkg/logger"
	pgRepo "github.com/yourusername/fleet-api/internal/repository/postgres"
	redisRepo "github.com/yourusername/fleet-api/internal/repository/redis"
	"github.com/yourusername/fleet-api/internal/service"
	"github.com/yourusername/fleet-api/pkg/auth"
	"github.com/yourusername/fleet-api/pkg/database"
)

func main() {
	// .env необязателен: в контейнере переменные приходят из окружения
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "path", configPath, "error", err)
		os.Exit(1)
	}
	logger.Init(cfg.Log)
	slog.Info("configuration loaded", "path", configPath, "mode", cfg.Server.Mode)

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gormLevel := gormLogger.Warn
	if cfg.IsDebug() {
		gormLevel = gormLogger.Info
	}
	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString(), gormLevel)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := database.MigrateDB(db, cfg.Database.MigrationsDir); err != nil {
		slog.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	// Redis нужен для rate limiting и, по выбору, для счетчика попыток
	var redisClient redis.UniversalClient
	if cfg.Redis.Enabled() {
		redisClient, err = database.NewUniversalRedisClient(appCtx, cfg.Redis)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		slog.Info("connected to redis", "mode", cfg.Redis.Mode)
	} else {
		slog.Warn("redis is not configured, HTTP rate limiting disabled")
	}

	// Репозитории
	accountRepo := pgRepo.NewAccountRepo(db)
	codeRepo := pgRepo.NewVerificationCodeRepo(db)
	deviceRepo := pgRepo.NewTrustedDeviceRepo(db)

	var attemptStore repository.AttemptStore = pgRepo.NewAttemptStore(db)
	if cfg.Verification.AttemptStore == "redis" {
		retention := redisRepo.DefaultAttemptRetention
		if cfg.Verification.Lockout > retention {
			retention = cfg.Verification.Lockout
		}
		attemptStore, err = redisRepo.NewAttemptStore(redisClient, retention)
		if err != nil {
			slog.Error("failed to initialize redis attempt store", "error", err)
			os.Exit(1)
		}
	}
	slog.Info("attempt store selected", "store", cfg.Verification.AttemptStore)

	channels, err := newDeliveryRegistry(cfg)
	if err != nil {
		slog.Error("failed to initialize delivery channels", "error", err)
		os.Exit(1)
	}
	slog.Info("delivery channels ready", "channels", channels.Kinds())

	// Сервисы
	codeManager, err := service.NewCodeManager(codeRepo, channels, service.RandomCodeGenerator{}, service.CodeManagerConfig{
		TTL:             cfg.Verification.CodeTTL,
		DeliveryTimeout: cfg.Verification.DeliveryTimeout,
		Pepper:          cfg.Verification.CodePepper,
	})
	if err != nil {
		slog.Error("failed to initialize code manager", "error", err)
		os.Exit(1)
	}

	guard, err := service.NewAttemptGuard(attemptStore, entity.AttemptPolicy{
		MaxAttempts: cfg.Verification.MaxAttempts,
		Lockout:     cfg.Verification.Lockout,
	})
	if err != nil {
		slog.Error("failed to initialize attempt guard", "error", err)
		os.Exit(1)
	}

	deviceRegistry, err := service.NewDeviceRegistry(deviceRepo)
	if err != nil {
		slog.Error("failed to initialize device registry", "error", err)
		os.Exit(1)
	}

	verificationService, err := service.NewVerificationService(accountRepo, codeManager, guard, deviceRegistry)
	if err != nil {
		slog.Error("failed to initialize verification service", "error", err)
		os.Exit(1)
	}

	sweeper := service.NewCodeSweeper(codeRepo, cfg.Verification.SweepSchedule)
	if err := sweeper.Start(); err != nil {
		slog.Error("failed to start code sweeper", "error", err)
		os.Exit(1)
	}
	defer sweeper.Stop()

	tokenService, err := auth.NewTokenService(cfg.JWT.Secret, cfg.JWT.Issuer)
	if err != nil {
		slog.Error("failed to initialize token service", "error", err)
		os.Exit(1)
	}
	authMiddleware := middleware.NewAuthMiddleware(tokenService, cfg.Internal.APIKeys)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	if err := handler.RegisterValidators(); err != nil {
		slog.Error("failed to register validators", "error", err)
		os.Exit(1)
	}

	if !cfg.IsDebug() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID())

	// В production не доверяем прокси-заголовкам; в разработке доверяем localhost
	trusted := []string{"127.0.0.1", "::1"}
	if !cfg.IsDebug() {
		trusted = nil
	}
	if err := router.SetTrustedProxies(trusted); err != nil {
		slog.Warn("failed to set trusted proxies", "error", err)
	}

	if len(cfg.Server.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.Server.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
			ExposeHeaders:    []string{"Content-Length", "Retry-After", middleware.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	verificationHandler := handler.NewVerificationHandler(verificationService)
	verificationHandler.RegisterRoutes(router, authMiddleware,
		rateLimiter.Limit(middleware.CodeRateLimitConfig(cfg.RateLimit.Limit, cfg.RateLimit.Window)))

	// HTTP сервер с тайм-аутами для защиты от slow client attacks
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		slog.Info("starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-appCtx.Done():
	}
	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	slog.Info("server exited")
}

// newDeliveryRegistry builds the configured email and SMS channels.
func newDeliveryRegistry(cfg *config.Config) (*delivery.Registry, error) {
	var email, sms delivery.Channel

	switch cfg.Email.Provider {
	case "resend":
		ch, err := delivery.NewResendEmailChannel(cfg.Email.ResendAPIKey, cfg.Email.From)
		if err != nil {
			return nil, err
		}
		email = ch
	case "smtp":
		ch, err := delivery.NewSMTPEmailChannel(cfg.Email.SMTPHost, cfg.Email.SMTPPort,
			cfg.Email.SMTPUser, cfg.Email.SMTPPassword, cfg.Email.From)
		if err != nil {
			return nil, err
		}
		email = ch
	default:
		email = delivery.NewLogChannel(delivery.KindEmail, slog.Default())
	}

	switch cfg.SMS.Provider {
	case "http":
		ch, err := delivery.NewHTTPSMSChannel(cfg.SMS.URL, cfg.SMS.APIKey, cfg.SMS.Sender,
			cfg.SMS.RatePerSecond, cfg.SMS.Burst, &http.Client{Timeout: cfg.Verification.DeliveryTimeout})
		if err != nil {
			return nil, err
		}
		sms = ch
	case "log":
		sms = delivery.NewLogChannel(delivery.KindSMS, slog.Default())
	}

	return delivery.NewRegistry(email, sms), nil
}
