package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"dashboards/internal/app"
	"dashboards/internal/auth"
	"dashboards/internal/config"
	"dashboards/internal/handler"
	"dashboards/internal/middleware"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Setup structured logging
	logger, closeLog, err := config.NewLogger(cfg, "server")
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer closeLog()
	slog.SetDefault(logger) // Set as default logger

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"store_driver", cfg.StoreDriver,
		"feed_driver", cfg.FeedDriver,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.Close(shutdownCtx); err != nil {
			logger.Error("shutdown incomplete", "error", err)
		}
	}()

	consumer, err := a.OpenConsumer(ctx)
	if err != nil {
		return err
	}

	// Authentication: JWT bearer tokens, or a trusted header in dev
	var authenticate func(http.Handler) http.Handler
	if cfg.AuthDisabled {
		logger.Warn("authentication disabled, trusting X-User-ID", "default_user", cfg.DevUserID)
		authenticate = middleware.DevAuthMiddleware(cfg.DevUserID)
	} else {
		jwtVerifier, err := auth.NewJWTVerifier(ctx, cfg.JWKSURL, cfg.JWTAudience, logger)
		if err != nil {
			return err
		}
		defer jwtVerifier.Close()
		authenticate = middleware.AuthMiddleware(jwtVerifier, logger)
	}

	handlers := handler.Handlers{
		Dashboards: handler.NewDashboardHandler(a.Dashboards, a.Audit, logger),
		Widgets:    handler.NewWidgetHandler(a.Widgets, logger),
		TopicAreas: handler.NewTopicAreaHandler(a.TopicAreas, logger),
		Public:     handler.NewPublicHandler(a.Dashboards, logger),
	}
	if a.Metrics != nil {
		handlers.Metrics = a.Metrics.Handler()
	}

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, handlers)

	// Build middleware chain
	var h http.Handler = mux

	// Apply middleware in reverse order (they wrap each other)
	// Order: CORS → Recovery → Auth → Routes
	h = authenticate(h)
	h = middleware.Recovery(logger)(h)

	// CORS - Must be before auth to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID"},
		AllowCredentials: true,
	})
	h = corsHandler.Handler(h)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return consumer.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
