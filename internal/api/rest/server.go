package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bidhaus/auction-backend/internal/api/websocket"
	"github.com/bidhaus/auction-backend/internal/domain/auction"
	"github.com/bidhaus/auction-backend/internal/infrastructure/cache"
	"github.com/bidhaus/auction-backend/internal/infrastructure/config"
	"github.com/bidhaus/auction-backend/internal/infrastructure/database"
	"github.com/bidhaus/auction-backend/internal/infrastructure/events"
	"github.com/bidhaus/auction-backend/internal/infrastructure/notification"
	"github.com/bidhaus/auction-backend/internal/infrastructure/repository"
	"github.com/bidhaus/auction-backend/internal/infrastructure/telemetry"
	auctionsvc "github.com/bidhaus/auction-backend/internal/service/auction"
	"github.com/bidhaus/auction-backend/internal/service/lifecycle"
)

// Server is the API server with all its wiring
type Server struct {
	config     *config.Config
	httpServer *http.Server
	logger     *slog.Logger
	zapLogger  *zap.Logger

	db        *pgxpool.Pool
	redis     *redis.Client
	hub       *events.Hub
	engine    auctionsvc.Service
	scheduler *lifecycle.Scheduler
	handler   *Handler
	wsHandler *websocket.Handler
	auth      *AuthMiddleware
}

// NewServer creates the API server and all its dependencies
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	logger, err := telemetry.SetupLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	zapLogger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("failed to set up zap logger: %w", err)
	}
	if cfg.Environment == "development" {
		zapLogger, _ = zap.NewDevelopment()
	}

	db, err := database.Connect(ctx, &cfg.Database, zapLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	var (
		redisClient *redis.Client
		viewCache   auctionsvc.ViewCache
		rateLimiter cache.RateLimiter
	)
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedisClient(&cfg.Redis)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}

		redisCache, err := cache.NewRedisCache(redisClient, zapLogger)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create redis cache: %w", err)
		}
		viewCache = cache.NewAuctionCache(redisCache, cfg.Redis.CacheTTL, zapLogger)
		rateLimiter = cache.NewRedisRateLimiter(redisClient, zapLogger)
	}

	store := repository.NewAuctionRepository(db)
	hub := events.NewHub(zapLogger)

	var sender notification.Sender
	if cfg.SMTP.Enabled {
		sender = notification.NewSMTPSender(&cfg.SMTP)
	} else {
		sender = notification.NewLogSender(zapLogger)
	}
	notifier := notification.NewNotifier(sender, notification.NewNoopDirectory(), zapLogger)

	clock := auction.RealClock{}
	engine := auctionsvc.NewService(store, hub, notifier, viewCache, clock, auctionsvc.Config{
		LockWait:        cfg.Auction.LockWait,
		ConflictRetries: cfg.Auction.ConflictRetries,
		DefaultPageSize: cfg.Auction.DefaultPageSize,
		MaxPageSize:     cfg.Auction.MaxPageSize,
	}, logger)

	scheduler := lifecycle.NewScheduler(engine, store, clock, cfg.Auction.SweepInterval, logger)

	auth := NewAuthMiddleware(&AuthConfig{
		JWTSecret:   []byte(cfg.Security.JWTSecret),
		TokenExpiry: cfg.Security.TokenExpiry,
		Issuer:      cfg.Security.Issuer,
	})

	server := &Server{
		config:    cfg,
		logger:    logger,
		zapLogger: zapLogger,
		db:        db,
		redis:     redisClient,
		hub:       hub,
		engine:    engine,
		scheduler: scheduler,
		handler:   NewHandler(engine, cfg.Auction.DefaultCurrency, logger),
		wsHandler: websocket.NewHandler(hub, zapLogger),
		auth:      auth,
	}

	middlewares := []Middleware{
		requestIDMiddleware,
		tracingMiddleware,
		loggingMiddleware(logger),
		metricsMiddleware,
		recoveryMiddleware(logger),
		corsMiddleware,
		rateLimitMiddleware(rateLimiter, cfg.Security.RateLimit.RequestsPerSecond, cfg.Security.RateLimit.Burst),
		timeoutMiddleware(cfg.Server.WriteTimeout),
	}

	var h http.Handler = server.setupRoutes()
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}

	server.httpServer = &http.Server{
		Addr:           cfg.Server.Address,
		Handler:        h,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	return server, nil
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleReadiness)
	mux.HandleFunc("GET /healthz", s.handleLiveness)
	mux.Handle("GET /metrics", promhttp.Handler())

	authed := s.auth.Middleware()

	mux.HandleFunc("GET /api/v1/auctions", s.handler.handleListAuctions)
	mux.HandleFunc("GET /api/v1/auctions/{id}", s.handler.handleGetAuction)
	mux.Handle("POST /api/v1/auctions", authed(http.HandlerFunc(s.handler.handleCreateAuction)))
	mux.Handle("PUT /api/v1/auctions/{id}", authed(http.HandlerFunc(s.handler.handleUpdateAuction)))
	mux.Handle("DELETE /api/v1/auctions/{id}", authed(http.HandlerFunc(s.handler.handleDeleteAuction)))
	mux.Handle("POST /api/v1/auctions/{id}/bids", authed(http.HandlerFunc(s.handler.handlePlaceBid)))

	mux.HandleFunc("GET /api/v1/ws", s.wsHandler.HandleAuctionEvents(s.wsUserID))

	return mux
}

// wsUserID resolves the optional caller identity on WebSocket upgrades.
// Spectators connect without a token.
func (s *Server) wsUserID(r *http.Request) uuid.UUID {
	token, err := extractBearerToken(r)
	if err != nil {
		return uuid.Nil
	}
	claims, err := s.auth.validateToken(token)
	if err != nil {
		return uuid.Nil
	}
	return claims.UserID
}

// Start runs the server until an interrupt or server failure
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting api server",
		slog.String("address", s.httpServer.Addr),
		slog.String("environment", s.config.Environment),
	)

	s.scheduler.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		return s.Shutdown()
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown stops the server and releases every resource
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down server")

	s.scheduler.Stop()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("failed to shut down http server", slog.Any("error", err))
		return err
	}

	s.hub.Close()
	s.db.Close()

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("failed to close redis", slog.Any("error", err))
		}
	}

	s.logger.Info("server shutdown complete")
	return nil
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.writeHealth(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{"database": "ok", "redis": "ok"}
	status := http.StatusOK
	overall := "ok"

	if err := s.db.Ping(ctx); err != nil {
		checks["database"] = err.Error()
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}

	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
			status = http.StatusServiceUnavailable
			overall = "degraded"
		}
	} else {
		checks["redis"] = "disabled"
	}

	s.writeHealth(w, status, map[string]interface{}{
		"status": overall,
		"checks": checks,
	})
}

func (s *Server) writeHealth(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
