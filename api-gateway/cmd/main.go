package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cldrn/dataverse/api-gateway/internal/proxy"
	"github.com/cldrn/dataverse/shared/config"
	"github.com/cldrn/dataverse/shared/logger"
	"github.com/cldrn/dataverse/shared/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

const serviceName = "api-gateway"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.New("8080")

	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Single entry point routing /api requests to the services",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
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
	log := logger.New(serviceName, cfg.LogLevel())

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	forward := proxy.New([]proxy.Route{
		{Prefix: "/api/auth", Target: cfg.AuthServiceURL()},
		{Prefix: "/api", Target: cfg.UserServiceURL()},
	}, log)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.LoggingMiddleware(log), middleware.NewMetrics(registry, "api_gateway").Middleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": serviceName})
	})
	router.GET("/metrics", middleware.MetricsHandler(registry))
	router.Any("/api/*path", forward.Handler())

	srv := &http.Server{
		Addr:              ":" + cfg.Port(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info("api gateway starting", "port", cfg.Port(),
			"userService", cfg.UserServiceURL(), "authService", cfg.AuthServiceURL())
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
