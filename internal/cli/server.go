package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"icebreaker-bingo/internal/app"
	"icebreaker-bingo/internal/config"
	"icebreaker-bingo/internal/infra/memory"
	infmongo "icebreaker-bingo/internal/infra/mongo"
	pgstore "icebreaker-bingo/internal/infra/postgres"
	infraredis "icebreaker-bingo/internal/infra/redis"
	transport "icebreaker-bingo/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the bingo server",
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
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var (
		loader memory.EventLoader
		users  app.UserDirectory
	)
	if pool != nil {
		loader = pgstore.NewEventLoader(pool)
		users = pgstore.NewUserDirectory(pool)
	} else {
		// without Postgres the configured event and demo users live in process
		event, err := configuredEvent(cfg, time.Now())
		if err != nil {
			return err
		}
		loader = memory.NewStaticEventLoader(event)
		users = memory.NewUserDirectory(demoUsers()...)
		log.Printf("serving in-memory event %s (%s)", event.ID, cfg.Event.Template)
	}

	eventTTL := config.TTLDuration(cfg.Event.TTL, 10*time.Minute)
	var events app.EventRepository
	if redisClient != nil {
		events = infraredis.NewEventRepository(redisClient, loader, eventTTL)
	} else {
		events = memory.NewEventRepository(loader, eventTTL)
	}

	var cards app.CardStore
	switch {
	case cfg.Mongo.URI != "":
		client, err := infmongo.Connect(ctx, cfg.Mongo.URI)
		if err != nil {
			return err
		}
		defer client.Disconnect(context.Background())
		store := infmongo.NewCardStore(client.Database(cfg.Mongo.Database))
		if err := store.EnsureIndexes(ctx); err != nil {
			return err
		}
		cards = store
	case redisClient != nil:
		cards = infraredis.NewCardStore(redisClient)
	default:
		cards = memory.NewCardStore()
	}

	var hubs app.HubRepository
	if redisClient != nil {
		hubs = infraredis.NewHubStore(redisClient, redisTTL)
	} else {
		hubs = memory.NewHubStore()
	}

	service := app.NewBingoService(events, users, cards, hubs).
		WithQRWindow(config.TTLDuration(cfg.Event.QRWindow, 5*time.Minute))
	router := transport.NewRouter(transport.NewAPI(service), transport.NewWSHandler(service))

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting bingo service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
