package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kkkkikiki/promotion/internal/api"
	"github.com/kkkkikiki/promotion/internal/app"
	"github.com/kkkkikiki/promotion/internal/config"
	"github.com/kkkkikiki/promotion/internal/events"
	"github.com/kkkkikiki/promotion/internal/logger"
	"github.com/kkkkikiki/promotion/internal/seed"
	"github.com/kkkkikiki/promotion/internal/service"
)

func main() {
	ctx := context.Background()

	// Load configuration from environment variables
	cfg, err := config.Load(ctx)
	if err != nil {
		// logger is configured from cfg, so this is the one place we cannot use it
		zap.NewExample().Fatal("failed to load config", zap.Error(err))
	}

	log := logger.New(cfg)
	defer log.Sync() //nolint:errcheck

	log.Info("starting promotion service",
		zap.String("environment", cfg.App.Environment),
		zap.String("storage", cfg.App.Storage))

	promo, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to initialize promotion core", zap.Error(err))
	}
	defer func() {
		if err := promo.Close(); err != nil {
			log.Error("error closing database connections", zap.Error(err))
		}
	}()

	if cfg.App.SeedCampaign {
		seeder, ok := promo.Store.(seed.CampaignStore)
		if !ok {
			log.Fatal("storage backend cannot create campaigns")
		}
		if _, _, err := seed.EnsureCampaign(ctx, seeder, time.Now(), seed.DefaultOptions(), log); err != nil {
			log.Fatal("failed to seed campaign", zap.Error(err))
		}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	// bounds how long Enroll and Redeem may wait on row locks
	r.Use(middleware.Timeout(time.Duration(cfg.Server.RequestTimeout) * time.Second))

	// The first-login queue needs redis, which only the postgres deployment carries
	var publisher service.FirstLoginPublisher
	if rdb := promo.Redis(); rdb != nil {
		client := asynq.NewClientFromRedisClient(rdb)
		defer client.Close()
		publisher = events.NewPublisher(client, log.Named("events"))

		inspector := asynq.NewInspectorFromRedisClient(rdb)
		defer inspector.Close()
		r.Mount("/admin/events", events.NewAdminHandler(inspector, log.Named("admin")).Routes())
	} else {
		log.Warn("event queue disabled, ReportFirstLogin will be unavailable")
	}

	promotionServer := service.NewPromotionServer(
		promo.Allocator,
		promo.Redemption,
		promo.Queries,
		publisher,
		time.Now,
		log.Named("rpc"),
	)

	// Register promotion service handler
	path, handler := api.NewPromotionServiceHandler(promotionServer)
	r.Mount(path, handler)

	// Add health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		hostname, _ := os.Hostname()
		writeJSON(w, http.StatusOK, map[string]string{
			"status":   "ok",
			"service":  cfg.App.Name,
			"hostname": hostname,
		})
	})

	// Add database health check endpoint
	r.Get("/health/db", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := promo.Ping(ctx); err != nil {
			log.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":  "error",
				"message": err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"storage": cfg.App.Storage,
		})
	})

	// Add Prometheus metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// Create server with configuration optimized for high concurrency
	server := &http.Server{
		Addr:           cfg.Server.GetServerAddr(),
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    120 * time.Second, // Keep connections alive longer
		MaxHeaderBytes: 1 << 20,           // 1MB
		// Use h2c so we can serve HTTP/2 without TLS
		Handler: h2c.NewHandler(r, &http2.Server{
			MaxConcurrentStreams: 1000, // Allow more concurrent streams
		}),
	}

	// Start server in goroutine
	go func() {
		log.Info("listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
		return
	}

	log.Info("server exited gracefully")
}

// requestLogger logs one line per request with the chi request id
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			log.Debug("request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
