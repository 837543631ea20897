package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"provably-fair-dice/internal/config"
	"provably-fair-dice/internal/handlers"
	"provably-fair-dice/internal/middleware"
	"provably-fair-dice/internal/services"
	"provably-fair-dice/internal/wallet"
)

const (
	shutdownTimeout     = 10 * time.Second
	ledgerSweepInterval = 5 * time.Minute
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisService, err := services.NewRedisService(cfg)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisService.Close()

	jwtService := services.NewJWTService(cfg)

	var watcher *wallet.Watcher
	var rollListeners []services.RollListener
	if cfg.WalletEnabled() {
		client, err := wallet.Dial(ctx, cfg.RPCURL)
		if err != nil {
			logger.Fatal("failed to dial rpc", zap.String("rpc_url", cfg.RPCURL), zap.Error(err))
		}
		defer client.Close()

		watcher, err = wallet.NewWatcher(&wallet.Config{
			Reader:  client,
			Address: cfg.WalletAddress,
			Timeout: cfg.WalletRefreshTimeout,
			Logger:  logger.Named("wallet"),
		})
		if err != nil {
			logger.Fatal("failed to create wallet watcher", zap.Error(err))
		}
		rollListeners = append(rollListeners, watcher)
		watcher.OnRoll()
	}

	hub := handlers.NewWebSocketHub(logger.Named("ws"))
	defer hub.Stop()

	registryCfg := services.RegistryConfigFrom(cfg)
	registryCfg.Store = redisService
	registryCfg.Logger = logger.Named("ledger")
	registryCfg.Broadcaster = hub
	registryCfg.RollListeners = rollListeners

	registry, err := services.NewLedgerRegistry(&registryCfg)
	if err != nil {
		logger.Fatal("failed to create ledger registry", zap.Error(err))
	}
	defer registry.Close()

	if cfg.LedgerIdleTTL > 0 {
		go func() {
			ticker := time.NewTicker(ledgerSweepInterval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					registry.EvictIdle(cfg.LedgerIdleTTL)
				}
			}
		}()
	}

	userHandler := handlers.NewUserHandler(jwtService, registry, logger)
	gameHandler := handlers.NewGameHandler(registry, logger)
	walletHandler := handlers.NewWalletHandler(watcher, logger)
	wsHandler := handlers.NewWebSocketHandler(hub, registry, logger)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	router.GET("/health", func(c *gin.Context) {
		if err := redisService.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/auth/guest", userHandler.GuestLogin)
	router.POST("/verify", gameHandler.VerifyRoll)

	protected := router.Group("/api")
	protected.Use(middleware.AuthMiddleware(jwtService))
	protected.Use(middleware.RateLimitMiddleware(redisService, logger))
	{
		protected.GET("/me", userHandler.GetCurrentUser)
		protected.GET("/ws", wsHandler.HandleWebSocket)
		protected.GET("/wallet", walletHandler.GetWallet)

		protected.GET("/state", gameHandler.GetState)
		protected.GET("/history", gameHandler.GetHistory)
		protected.GET("/history/:nonce/verify", gameHandler.VerifyHistoryRoll)
		protected.POST("/bet", gameHandler.PlaceBet)
		protected.POST("/bet/adjust", gameHandler.AdjustBet)
		protected.POST("/client-seed", gameHandler.SetClientSeed)
		protected.POST("/reset", gameHandler.Reset)
		protected.POST("/verify", gameHandler.VerifyRoll)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
