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
	"go.uber.org/zap"

	"github.com/tablepos/service-coupon/internal/application"
	"github.com/tablepos/service-coupon/internal/config"
	couponDomain "github.com/tablepos/service-coupon/internal/domain/coupon"
	couponEvents "github.com/tablepos/service-coupon/internal/events"
	"github.com/tablepos/service-coupon/internal/handler"
	"github.com/tablepos/service-coupon/internal/platform/auth"
	"github.com/tablepos/service-coupon/internal/platform/cache"
	"github.com/tablepos/service-coupon/internal/platform/database"
	"github.com/tablepos/service-coupon/internal/platform/health"
	"github.com/tablepos/service-coupon/internal/platform/kafka"
	"github.com/tablepos/service-coupon/internal/platform/logger"
	"github.com/tablepos/service-coupon/internal/platform/middleware"
	"github.com/tablepos/service-coupon/internal/repository"
	"github.com/tablepos/service-coupon/internal/saga"
	"github.com/tablepos/service-coupon/migrations"
)

const serviceName = "service-coupon"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Initialize logger
	zapLogger, err := logger.NewNamed(cfg.AppEnv, serviceName)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = zapLogger.Sync() }()

	zapLogger.Info("starting "+serviceName,
		zap.String("port", cfg.Port),
		zap.String("timezone", cfg.Location.String()),
	)

	// Connect to database
	db, err := database.Connect(cfg.DBConfig.DSN(), database.DefaultPool, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	// Run database migrations
	if cfg.AppEnv == "development" {
		if err := db.AutoMigrate(&repository.CouponModel{}, &repository.RedemptionModel{}); err != nil {
			zapLogger.Fatal("failed to auto-migrate", zap.Error(err))
		}
		zapLogger.Info("database migration completed (dev auto-migrate)")
	} else {
		if err := database.RunMigrations(cfg.DBConfig.DatabaseURL(), migrations.FS, zapLogger); err != nil {
			zapLogger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	// Initialize JWT manager
	jwtManager := auth.NewJWTManager(cfg.JWTConfig.Secret, cfg.JWTConfig.Issuer, 15*time.Minute)

	// Initialize Kafka producer
	kafkaProducer := kafka.NewProducer(cfg.KafkaConfig.Brokers, zapLogger)
	defer kafkaProducer.Close()

	healthHandler := health.NewHandler(serviceName)
	healthHandler.AddCheck("postgres", health.DBCheck(db))

	// Initialize repositories, with the redis cache in front when configured
	var couponRepo couponDomain.Repository = repository.NewGormCouponRepository(db)
	if cfg.RedisConfig.Addr != "" {
		rdb, err := cache.Connect(context.Background(), cache.Options{
			Addr:     cfg.RedisConfig.Addr,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
		}, zapLogger)
		if err != nil {
			zapLogger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer rdb.Close()

		couponRepo = repository.NewCachedCouponRepository(couponRepo, rdb, cfg.RedisConfig.TTL, zapLogger)
		healthHandler.AddCheck("redis", cache.Ping(rdb))
	}

	// Initialize domain and application services
	evaluator := couponDomain.NewEvaluator(couponRepo, couponDomain.WithLocation(cfg.Location))
	sagaService := saga.NewRedemptionSagaService(couponRepo, kafkaProducer, zapLogger)
	couponService := application.NewCouponService(couponRepo, evaluator, sagaService, cfg.Location, zapLogger)

	// Initialize Kafka consumer for order events
	consumerGroupID := cfg.KafkaConfig.GroupPrefix + serviceName
	orderConsumer := couponEvents.NewOrderEventConsumer(
		cfg.KafkaConfig.Brokers,
		consumerGroupID,
		couponService,
		zapLogger,
	)
	defer orderConsumer.Close()

	consumerCtx, consumerCancel := context.WithCancel(context.Background())
	defer consumerCancel()

	go func() {
		zapLogger.Info("starting order event consumer")
		if err := orderConsumer.Start(consumerCtx); err != nil && consumerCtx.Err() == nil {
			zapLogger.Error("order event consumer failed", zap.Error(err))
		}
	}()

	// Setup Gin router
	if cfg.AppEnv != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.RecoveryMiddleware(zapLogger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(zapLogger))
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())

	healthHandler.RegisterRoutes(router)

	apiV1 := router.Group("/api/v1")
	handler.NewCouponHandler(couponService).RegisterRoutes(apiV1, jwtManager)

	srv := &http.Server{
		Addr:         cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zapLogger.Info("HTTP server starting", zap.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("shutting down " + serviceName)

	consumerCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info(serviceName + " stopped")
}
