package cli

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"
	"icebreaker-bingo/internal/config"
	"icebreaker-bingo/internal/domain"
	"icebreaker-bingo/internal/infra/postgres"
	"icebreaker-bingo/internal/templates"
)

// NewSeedCmd stores an event built from a template, plus demo users, in Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	var withUsers bool
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed the configured event from its template",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return runSeed(cmd.Context(), cfg, withUsers)
		},
	}
	cmd.Flags().BoolVar(&withUsers, "demo-users", true, "also insert the demo users")
	return cmd
}

func runSeed(ctx context.Context, cfg config.Config, withUsers bool) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}
	event, err := configuredEvent(cfg, time.Now())
	if err != nil {
		return err
	}

	db := postgres.OpenBun(cfg.Postgres.URL)
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		return err
	}

	seeder := postgres.NewSeeder(db)
	if err := seeder.SeedEvent(ctx, event); err != nil {
		return err
	}
	if withUsers {
		if err := seeder.SeedUsers(ctx, demoUsers()...); err != nil {
			return err
		}
	}
	log.Printf("seeded event %s from template %s", event.ID, cfg.Event.Template)
	return nil
}

// configuredEvent instantiates the event named in config from its template.
func configuredEvent(cfg config.Config, now time.Time) (domain.Event, error) {
	tpl, err := templates.Get(cfg.Event.Template)
	if err != nil {
		return domain.Event{}, err
	}
	return tpl.NewEvent(cfg.Event.ID, cfg.Event.Name, now), nil
}

func demoUsers() []domain.User {
	return []domain.User{
		{ID: "u1", Name: "Ayşe Yılmaz", Email: "ayse@example.com"},
		{ID: "u2", Name: "Mehmet Demir", Email: "mehmet@example.com"},
		{ID: "u3", Name: "Zeynep Kaya", Email: "zeynep@example.com"},
		{ID: "u4", Name: "Can Öztürk", Email: "can@example.com"},
	}
}
