package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cldrn/dataverse/auth-service/internal/handler"
	authqry "github.com/cldrn/dataverse/auth-service/internal/query"
	"github.com/cldrn/dataverse/auth-service/internal/repository"
	"github.com/cldrn/dataverse/shared/config"
	"github.com/cldrn/dataverse/shared/logger"
	"github.com/cldrn/dataverse/shared/middleware"
	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

const serviceName = "auth-service"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.New("8081")

	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Session token issuing service",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the login and token refresh API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cfg)
		},
	}
	serve.Flags().String("port", cfg.Port(), "HTTP listen port")
	serve.Flags().String("log-level", cfg.LogLevel(), "log level (debug, info, warn, error)")
	serve.PreRun = func(cmd *cobra.Command, _ []string) {
		for flag, key := range map[string]string{"port": config.Port, "log-level": config.LogLevel} {
			if cmd.Flags().Changed(flag) {
				value, _ := cmd.Flags().GetString(flag)
				cfg.Set(key, value)
			}
		}
	}
	root.AddCommand(serve)
	return root
}

func run(ctx context.Context, cfg config.Configuration) error {
	if err := cfg.Validate(config.DatabaseURL, config.JWTSecret, config.TokenTTL); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	log := logger.New(serviceName, cfg.LogLevel())

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("postgres", cfg.DatabaseURL())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	// CQRS: auth is read-only; no CommandService needed
	userRepo := repository.NewUserRepository(db)
	querySvc := authqry.NewAuthQueryService(userRepo, cfg.JWTSecret(), cfg.TokenTTL())
	authHandler := handler.NewAuthHandler(querySvc)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.LoggingMiddleware(log), middleware.NewMetrics(registry, "auth_service").Middleware())

	authHandler.RegisterRoutes(router.Group("/api/auth"))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", middleware.MetricsHandler(registry))

	srv := &http.Server{
		Addr:              ":" + cfg.Port(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info("auth service starting", "port", cfg.Port())
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
