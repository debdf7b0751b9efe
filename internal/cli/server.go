package cli

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quiz-duel-service/internal/app"
	"quiz-duel-service/internal/config"
	"quiz-duel-service/internal/domain"
	"quiz-duel-service/internal/infra/memory"
	pginfra "quiz-duel-service/internal/infra/postgres"
	redisinfra "quiz-duel-service/internal/infra/redis"
	transport "quiz-duel-service/internal/transport/http"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the duel server",
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

	logger, err := newLogger(cfg.Env)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	var bundb *bun.DB
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()

		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		bundb = bun.NewDB(sqldb, pgdialect.New())
		defer bundb.Close()
	}

	questionTTL := config.TTLDuration(cfg.Questions.TTL, 10*time.Minute)
	var loader memory.PoolLoader = memory.NewStaticPoolLoader(samplePools())
	if pool != nil {
		loader = pginfra.NewQuestionLoader(pool, questionTypes(cfg))
	}

	var generator app.QuestionGenerator
	if redisClient != nil {
		generator = redisinfra.NewQuestionBank(redisClient, loader, questionTTL)
	} else {
		generator = memory.NewQuestionBank(loader, questionTTL)
	}

	var store app.DuelStore = memory.NewDuelStore()
	if bundb != nil {
		store = pginfra.NewDuelStore(bundb)
	}
	var users app.UserDirectory = memory.NewUserDirectory("alice", "bob")
	if pool != nil {
		users = pginfra.NewUserDirectory(pool)
	}

	settings := func() app.Settings {
		return app.Settings{
			RoundsPerDuel:     config.IntOr(cfg.Duel.RoundsPerDuel, 3),
			QuestionsPerRound: config.IntOr(cfg.Duel.QuestionsPerRound, 4),
		}
	}

	service := app.NewDuelService(store, users, app.NewRoundFactory(generator), settings, logger)
	handler := transport.NewHandler(service, logger)

	forfeit := app.NewForfeitSweeper(store, service, config.TTLDuration(cfg.Duel.ForfeitAfter, 24*time.Hour), logger)
	retention := app.NewRetentionSweeper(store, config.TTLDuration(cfg.Duel.Retention, 30*24*time.Hour), logger)

	sweepEvery := config.TTLDuration(cfg.Duel.SweepInterval, time.Hour)
	scheduler := cron.New(cron.WithLocation(time.UTC))
	if _, err := scheduler.AddFunc("@every "+sweepEvery.String(), func() {
		if err := forfeit.Sweep(ctx); err != nil {
			logger.Error("forfeit sweep failed", zap.Error(err))
		}
		if err := retention.Sweep(ctx); err != nil {
			logger.Error("retention sweep failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      handler.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("starting duel service", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("failed to start server", zap.Error(err))
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
	return server.Shutdown(shutdownCtx)
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func questionTypes(cfg config.Config) []domain.QuestionType {
	if len(cfg.Questions.Types) > 0 {
		types := make([]domain.QuestionType, 0, len(cfg.Questions.Types))
		for _, t := range cfg.Questions.Types {
			types = append(types, domain.QuestionType(t))
		}
		return types
	}
	types := make([]domain.QuestionType, 0, 12)
	for t := 1; t <= 12; t++ {
		types = append(types, domain.QuestionType(t))
	}
	return types
}

// samplePools provides a minimal question set for running without a
// database; real deployments load content from Postgres.
func samplePools() map[domain.QuestionType][]domain.Question {
	return map[domain.QuestionType][]domain.Question{
		1: {
			{
				Type:       1,
				Title:      "Active substance",
				Subject:    "Doliprane",
				Wording:    "Which active substance does this drug contain?",
				Answers:    []string{"Paracetamol", "Ibuprofen", "Aspirin", "Codeine"},
				GoodAnswer: 0,
			},
			{
				Type:       1,
				Title:      "Active substance",
				Subject:    "Advil",
				Wording:    "Which active substance does this drug contain?",
				Answers:    []string{"Paracetamol", "Ibuprofen", "Aspirin", "Codeine"},
				GoodAnswer: 1,
			},
		},
		2: {
			{
				Type:       2,
				Title:      "Administration route",
				Subject:    "Ventoline",
				Wording:    "How is this drug administered?",
				Answers:    []string{"Oral", "Inhaled", "Intravenous", "Topical"},
				GoodAnswer: 1,
			},
		},
	}
}
