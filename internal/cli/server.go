package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/infra/memory"
	pgstore "live-quiz-service/internal/infra/postgres"
	redisstore "live-quiz-service/internal/infra/redis"
	transport "live-quiz-service/internal/transport/http"
)

const (
	defaultTokenTTL = 12 * time.Hour
	sweepInterval   = 30 * time.Second
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := slog.Default()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var (
		pool *pgxpool.Pool
		db   *bun.DB
	)
	if cfg.Postgres.URL != "" {
		db = openBun(cfg.Postgres.URL)
		defer db.Close()
		if err := runMigrations(ctx, db); err != nil {
			return err
		}
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return err
		}
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(memory.SampleQuizzes())
	if pool != nil {
		loader = pgstore.NewQuizLoader(pool)
	}

	quizTTL := config.Duration(cfg.Quiz.TTL, 10*time.Minute)
	codeTTL := config.Duration(cfg.Redis.TTL, 10*time.Minute)
	if codeTTL < 3*sweepInterval {
		codeTTL = 3 * sweepInterval
	}
	regCfg := cfg.Registry()

	var (
		quizRepo app.QuizRepository
		codes    app.CodeStore
		deps     = app.SessionDeps{Logger: logger}
	)
	if redisClient != nil {
		quizRepo = redisstore.NewQuizRepository(redisClient, loader, quizTTL)
		codes = redisstore.NewCodeStore(redisClient, codeTTL, instanceID())
		deps.Notifier = redisstore.NewNotifier(redisClient)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
		codes = memory.NewCodeStore(codeTTL)
	}
	if db != nil {
		deps.Results = pgstore.NewResultsStore(db)
	} else {
		deps.Results = memory.NewResultsStore()
	}

	hub := transport.NewHub(logger)
	deps.Emitter = hub
	registry := app.NewRegistry(codes, regCfg, deps)
	service := app.NewQuizService(quizRepo, registry)

	tokens := auth.NewService(cfg.Auth.Secret, cfg.Auth.Issuer, config.Duration(cfg.Auth.TokenTTL, defaultTokenTTL))
	wsCfg := transport.DefaultWSConfig()
	wsCfg.AllowedOrigins = cfg.Server.AllowedOrigins
	wsHandler := transport.NewWSHandler(service, tokens, hub, wsCfg, logger)
	router := transport.NewRouter(transport.RouterConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
	}, service, tokens, wsHandler)

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
	}

	runCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go registry.Run(runCtx, sweepInterval)

	go func() {
		logger.Info("starting quiz service", "addr", server.Addr, "redis", redisClient != nil, "postgres", pool != nil)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to start server", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	registry.Shutdown(shutdownCtx)
	return server.Shutdown(shutdownCtx)
}

// instanceID names this process as the owner of reserved join codes.
func instanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "quiz"
	}
	return host + "-" + uuid.NewString()[:8]
}
