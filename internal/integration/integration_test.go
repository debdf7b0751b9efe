package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"quiz-duel-service/internal/app"
	"quiz-duel-service/internal/domain"
	pgstore "quiz-duel-service/internal/infra/postgres"
	pgmigrations "quiz-duel-service/internal/infra/postgres/migrations"
	infraredis "quiz-duel-service/internal/infra/redis"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

func TestDuelEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := openBun(t, pgURL)
	defer db.Close()
	migrateAndSeed(t, ctx, db)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	loader := pgstore.NewQuestionLoader(pool, []domain.QuestionType{1, 2})
	bank := infraredis.NewQuestionBank(redisClient, loader, 5*time.Minute)
	factory := app.NewRoundFactory(bank)
	store := pgstore.NewDuelStore(db)
	users := pgstore.NewUserDirectory(pool)
	settings := func() app.Settings {
		return app.Settings{RoundsPerDuel: 2, QuestionsPerRound: 2}
	}
	service := app.NewDuelService(store, users, factory, settings, zap.NewNop())

	id, err := service.Create(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("create duel: %v", err)
	}

	state, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("load duel: %v", err)
	}
	if len(state.Duel.Rounds) != 2 || len(state.Duel.Rounds[0]) != 2 {
		t.Fatalf("unexpected duel shape: %d rounds", len(state.Duel.Rounds))
	}

	// Alice answers every question right, Bob every question wrong.
	for round := 1; round <= 2; round++ {
		good := make([]int, 0, 2)
		bad := make([]int, 0, 2)
		for _, q := range state.Duel.Rounds[round-1] {
			good = append(good, q.GoodAnswer)
			bad = append(bad, (q.GoodAnswer+1)%len(q.Answers))
		}
		if _, err := service.Play(ctx, "alice", id, round, good); err != nil {
			t.Fatalf("alice round %d: %v", round, err)
		}
		view, err := service.Play(ctx, "bob", id, round, bad)
		if err != nil {
			t.Fatalf("bob round %d: %v", round, err)
		}
		if round == 2 && view.InProgress {
			t.Fatalf("expected duel finished after last round")
		}
	}

	final, err := service.Fetch(ctx, "alice", id)
	if err != nil {
		t.Fatalf("fetch final: %v", err)
	}
	if final.UserScore != 4 || final.OpponentScore != 0 {
		t.Fatalf("expected 4-0, got %d-%d", final.UserScore, final.OpponentScore)
	}

	assertStats(t, ctx, db, "alice", 1, 0)
	assertStats(t, ctx, db, "bob", 0, 1)
}

func openBun(t *testing.T, dsn string) *bun.DB {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

func migrateAndSeed(t *testing.T, ctx context.Context, db *bun.DB) {
	t.Helper()
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	for _, username := range []string{"alice", "bob"} {
		if _, err := db.ExecContext(ctx, `INSERT INTO users (username) VALUES (?) ON CONFLICT DO NOTHING`, username); err != nil {
			t.Fatalf("insert user %s: %v", username, err)
		}
	}
	for _, q := range sampleQuestions() {
		data, err := json.Marshal(q)
		if err != nil {
			t.Fatalf("marshal question: %v", err)
		}
		if _, err := db.ExecContext(ctx, `INSERT INTO questions (qtype, data) VALUES (?, ?::jsonb)`, int(q.Type), string(data)); err != nil {
			t.Fatalf("insert question: %v", err)
		}
	}
}

func assertStats(t *testing.T, ctx context.Context, db *bun.DB, username string, wins, losses int) {
	t.Helper()
	var gotWins, gotLosses int
	if err := db.QueryRowContext(ctx, `SELECT wins, losses FROM users WHERE username = ?`, username).Scan(&gotWins, &gotLosses); err != nil {
		t.Fatalf("stats for %s: %v", username, err)
	}
	if gotWins != wins || gotLosses != losses {
		t.Fatalf("expected %s at %d/%d, got %d/%d", username, wins, losses, gotWins, gotLosses)
	}
}

func sampleQuestions() []domain.Question {
	var questions []domain.Question
	for _, qt := range []domain.QuestionType{1, 2} {
		for i := 0; i < 3; i++ {
			questions = append(questions, domain.Question{
				Type:       qt,
				Title:      "Active substance",
				Subject:    fmt.Sprintf("Drug %d-%d", qt, i),
				Wording:    "Which active substance does this drug contain?",
				Answers:    []string{"Paracetamol", "Ibuprofen", "Aspirin", "Codeine"},
				GoodAnswer: i % 4,
			})
		}
	}
	return questions
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "duel", "POSTGRES_PASSWORD": "duelpass", "POSTGRES_DB": "dueldb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://duel:duelpass@%s:%s/dueldb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
