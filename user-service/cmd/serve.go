package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cldrn/dataverse/shared/config"
	"github.com/cldrn/dataverse/shared/events"
	"github.com/cldrn/dataverse/shared/middleware"
	sharedredis "github.com/cldrn/dataverse/shared/redis"
	usercmd "github.com/cldrn/dataverse/user-service/internal/command"
	"github.com/cldrn/dataverse/user-service/internal/guard"
	"github.com/cldrn/dataverse/user-service/internal/handler"
	userqry "github.com/cldrn/dataverse/user-service/internal/query"
	"github.com/cldrn/dataverse/user-service/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

func newServeCmd(cfg config.Configuration) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the action log consumer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().String("port", cfg.Port(), "HTTP listen port")
	cmd.PreRun = func(cmd *cobra.Command, _ []string) {
		if cmd.Flags().Changed("port") {
			port, _ := cmd.Flags().GetString("port")
			cfg.Set(config.Port, port)
		}
	}
	return cmd
}

func serve(ctx context.Context, cfg config.Configuration) (err error) {
	if err := cfg.Validate(config.DatabaseURL, config.RedisAddr, config.JWTSecret, config.ViewCacheTTL); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database connection (write store)
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}

	// Redis connection (read model store + event streaming)
	redis, err := sharedredis.NewClient(ctx, sharedredis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword(),
		DB:       cfg.RedisDB(),
	})
	if err != nil {
		_ = db.Close()
		return err
	}
	defer func() {
		var result *multierror.Error
		if cerr := redis.Close(); cerr != nil {
			result = multierror.Append(result, fmt.Errorf("close redis: %w", cerr))
		}
		if cerr := db.Close(); cerr != nil {
			result = multierror.Append(result, fmt.Errorf("close database: %w", cerr))
		}
		if cerr := result.ErrorOrNil(); cerr != nil {
			err = multierror.Append(err, cerr)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// --- CQRS wiring ---
	publisher := events.NewPublisher(redis.Client)
	dispatcher := events.NewDispatcher()

	tx := repository.NewTxManager(db)
	writeRepo := repository.NewUserWriteRepository(db)
	readRepo := repository.NewUserReadRepository(writeRepo, redis.Client, cfg.ViewCacheTTL())
	assignments := repository.NewAssignmentRepository(db)
	groups := repository.NewGroupRepository(db)
	points := repository.NewDefinitionPointRepository(db)
	actionLog := repository.NewActionLogRepository(db)
	authz := repository.NewAuthorizer(assignments)

	guardMetrics := guard.NewMetrics(registry)
	guard.NewCascadeHandler(assignments, groups).Register(dispatcher)
	accountGuard := guard.New(guard.Deps{
		Tx:          tx,
		Authorizer:  authz,
		Accounts:    writeRepo,
		Assignments: assignments,
		Groups:      groups,
		Points:      points,
		Merger:      repository.NewAccountMerger(writeRepo, assignments, groups, actionLog, log),
		Dispatcher:  dispatcher,
		Metrics:     guardMetrics,
		Logger:      log,
	})

	userCommands := usercmd.NewUserCommandService(tx, writeRepo, readRepo, accountGuard, publisher, log)
	permCommands := usercmd.NewPermissionCommandService(accountGuard, authz, points, groups, publisher, log)
	collectionCommands := usercmd.NewCollectionCommandService(tx, authz, points, assignments, publisher, log)
	recorder := usercmd.NewActionLogRecorder(actionLog, log)

	userQueries := userqry.NewUserQueryService(tx, accountGuard, authz, writeRepo, readRepo, repository.NewTraceRepository(db), actionLog)
	permQueries := userqry.NewPermissionQueryService(authz, points, assignments)

	// Setup router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	httpMetrics := middleware.NewMetrics(registry, "user_service")
	router.Use(gin.Recovery(), middleware.LoggingMiddleware(log), httpMetrics.Middleware())

	handler.RegisterRoutes(router.Group("/api"), handler.Handlers{
		Users:       handler.NewUserHandler(userCommands, userQueries),
		Permissions: handler.NewPermissionHandler(permCommands, permQueries),
		Collections: handler.NewCollectionHandler(collectionCommands),
	}, middleware.AuthMiddleware(writeRepo, cfg.JWTSecret()), middleware.AdminKeyMiddleware(cfg.AdminAPIKey()))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", middleware.MetricsHandler(registry))

	// Action log consumers, one per stream
	for _, stream := range []string{events.UserEventsStream, events.PermissionEventsStream} {
		subscriber := events.NewSubscriber(redis.Client, events.SubscriberConfig{
			Group:    "user-service-action-log",
			Consumer: cfg.ConsumerName(),
			Stream:   stream,
			Handler:  recorder.HandleEvent,
			Logger:   log,
		})
		go func(stream string) {
			if err := subscriber.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("subscriber stopped", "stream", stream, "error", err)
			}
		}(stream)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info("user service starting", "port", cfg.Port())
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
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
