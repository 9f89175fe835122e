package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"storefront/internal/cache"
	"storefront/internal/catalog"
	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/logger"
	"storefront/internal/orders"
)

func main() {
	config.Load()
	cfg := config.AppEnv

	lg, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	if cfg.JWTSecret == "" {
		lg.Fatal("JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, db, err := database.Connect(ctx, cfg.MongoURI, cfg.DBName)
	if err != nil {
		lg.Fatal("MongoDB connection failed", zap.Error(err))
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Disconnect(disconnectCtx); err != nil {
			lg.Warn("MongoDB disconnect failed", zap.Error(err))
		}
	}()
	lg.Info("MongoDB connected", zap.String("database", db.Name()))

	if err := database.EnsureIndexes(ctx, db, lg); err != nil {
		lg.Warn("Index setup incomplete", zap.Error(err))
	}

	catalogOpts := []catalog.Option{catalog.WithLogger(lg)}
	if cfg.RedisAddr != "" {
		priceCache := cache.NewRedisCache(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}), "storefront:")
		defer priceCache.Close()
		if err := priceCache.Ping(ctx); err != nil {
			lg.Warn("Redis unavailable, price cache reads will fall back to MongoDB", zap.Error(err))
		}
		catalogOpts = append(catalogOpts, catalog.WithPriceCache(priceCache, cfg.PriceCacheTTL))
		lg.Info("Price cache enabled", zap.String("addr", cfg.RedisAddr), zap.Duration("ttl", cfg.PriceCacheTTL))
	}
	products := catalog.NewService(catalog.NewMongoStore(db), catalogOpts...)

	orderService := orders.NewService(
		orders.NewMongoStore(db),
		orders.WithCatalog(products),
		orders.WithLogger(lg),
	)

	gin.SetMode(cfg.GinMode)
	r := newRouter(cfg, db, lg, products, orderService)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		lg.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("Server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	lg.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("Graceful shutdown failed", zap.Error(err))
	}
}
