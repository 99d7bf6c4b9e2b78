package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"icebreaker-bingo/internal/app"
	"icebreaker-bingo/internal/domain"
	infmongo "icebreaker-bingo/internal/infra/mongo"
	pgstore "icebreaker-bingo/internal/infra/postgres"
	infraredis "icebreaker-bingo/internal/infra/redis"
	"icebreaker-bingo/internal/templates"
)

func TestScanEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()
	mongoURI, mongoCleanup := startMongo(t, ctx)
	defer mongoCleanup()

	event := seedEvent(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	mongoClient, err := infmongo.Connect(ctx, mongoURI)
	if err != nil {
		t.Fatalf("mongo client: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	cards := infmongo.NewCardStore(mongoClient.Database("bingo_test"))
	if err := cards.EnsureIndexes(ctx); err != nil {
		t.Fatalf("ensure indexes: %v", err)
	}

	events := infraredis.NewEventRepository(redisClient, pgstore.NewEventLoader(pool), 5*time.Minute)
	hubs := infraredis.NewHubStore(redisClient, 5*time.Minute)
	service := app.NewBingoService(events, pgstore.NewUserDirectory(pool), cards, hubs)

	alice, aliceCard, err := service.Join(ctx, event.ID, "u1", []domain.SurveyAnswer{
		{QuestionID: "tech-stack", Values: []string{"Go"}},
	})
	if err != nil {
		t.Fatalf("join alice: %v", err)
	}
	bob, _, err := service.Join(ctx, event.ID, "u2", []domain.SurveyAnswer{
		{QuestionID: "role", Values: []string{"Backend Geliştirici"}},
	})
	if err != nil {
		t.Fatalf("join bob: %v", err)
	}
	if again, _, err := service.Join(ctx, event.ID, "u2", nil); err != nil || again.ID != bob.ID {
		t.Fatalf("expected rejoin to return bob, got %+v: %v", again, err)
	}

	// bob answered the role question, which every dev-role task accepts
	taskID := "ai-engineer"
	_, raw, err := service.IssueQR(ctx, aliceCard.ID, taskID)
	if err != nil {
		t.Fatalf("issue qr: %v", err)
	}
	result, err := service.Scan(ctx, raw, bob.ID)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if result.Awarded != 15 || result.TotalPoints != 15 {
		t.Fatalf("expected 15 points, got %+v", result)
	}
	if _, err := service.Scan(ctx, raw, bob.ID); !errors.Is(err, domain.ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
	}

	lb, err := service.Leaderboard(ctx, event.ID)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(lb.Entries) != 2 || lb.Entries[0].ParticipantID != alice.ID || lb.Entries[0].Points != 15 {
		t.Fatalf("expected alice leading, got %+v", lb.Entries)
	}
}

func seedEvent(t *testing.T, ctx context.Context, dsn string) domain.Event {
	t.Helper()
	db := pgstore.OpenBun(dsn)
	defer db.Close()

	if err := pgstore.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	tpl, err := templates.Get("tech-meetup")
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	event := tpl.NewEvent("event-it", "", time.Now())

	seeder := pgstore.NewSeeder(db)
	if err := seeder.SeedEvent(ctx, event); err != nil {
		t.Fatalf("seed event: %v", err)
	}
	if err := seeder.SeedUsers(ctx,
		domain.User{ID: "u1", Name: "Alice", Email: "alice@example.com"},
		domain.User{ID: "u2", Name: "Bob", Email: "bob@example.com"},
	); err != nil {
		t.Fatalf("seed users: %v", err)
	}
	return event
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "bingo", "POSTGRES_PASSWORD": "bingopass", "POSTGRES_DB": "bingodb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	host, port, cleanup := startContainer(t, ctx, req, "5432/tcp")
	dsn := fmt.Sprintf("postgres://bingo:bingopass@%s:%s/bingodb?sslmode=disable", host, port)
	return dsn, cleanup
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	host, port, cleanup := startContainer(t, ctx, req, "6379/tcp")
	return fmt.Sprintf("redis://%s:%s", host, port), cleanup
}

func startMongo(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(60 * time.Second),
	}
	host, port, cleanup := startContainer(t, ctx, req, "27017/tcp")
	return fmt.Sprintf("mongodb://%s:%s", host, port), cleanup
}

func startContainer(t *testing.T, ctx context.Context, req tc.ContainerRequest, exposed string) (string, string, func()) {
	t.Helper()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start %s: %v", req.Image, err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("%s host: %v", req.Image, err)
	}
	port, err := container.MappedPort(ctx, nat.Port(exposed))
	if err != nil {
		t.Fatalf("%s port: %v", req.Image, err)
	}
	return host, port.Port(), func() {
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
