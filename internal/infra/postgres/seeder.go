package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"icebreaker-bingo/internal/domain"
	pgmigrations "icebreaker-bingo/internal/infra/postgres/migrations"
)

type eventRow struct {
	bun.BaseModel `bun:"table:events"`

	ID   string       `bun:"id,pk"`
	Data domain.Event `bun:"data,type:jsonb"`
}

type userRow struct {
	bun.BaseModel `bun:"table:users"`

	ID        string `bun:"id,pk"`
	Name      string `bun:"name"`
	Email     string `bun:"email"`
	AvatarURL string `bun:"avatar_url,nullzero"`
}

// OpenBun opens a bun handle over pgdriver for migrations and seeding.
func OpenBun(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// Migrate applies all pending migrations.
func Migrate(ctx context.Context, db *bun.DB) error {
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return fmt.Errorf("migrator init: %w", err)
	}
	group, err := migrator.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if group.IsZero() {
		log.Printf("no new migrations")
		return nil
	}
	log.Printf("migrated to %s", group)
	return nil
}

// Seeder upserts events and users so a fresh database can host an event.
type Seeder struct {
	db *bun.DB
}

func NewSeeder(db *bun.DB) *Seeder {
	return &Seeder{db: db}
}

func (s *Seeder) SeedEvent(ctx context.Context, event domain.Event) error {
	row := &eventRow{ID: event.ID, Data: event}
	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (id) DO UPDATE").
		Set("data = EXCLUDED.data, updated_at = now()").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("seed event %s: %w", event.ID, err)
	}
	return nil
}

func (s *Seeder) SeedUsers(ctx context.Context, users ...domain.User) error {
	if len(users) == 0 {
		return nil
	}
	rows := make([]userRow, 0, len(users))
	for _, u := range users {
		rows = append(rows, userRow{ID: u.ID, Name: u.Name, Email: u.Email, AvatarURL: u.AvatarURL})
	}
	_, err := s.db.NewInsert().
		Model(&rows).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name, email = EXCLUDED.email, avatar_url = EXCLUDED.avatar_url").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("seed users: %w", err)
	}
	return nil
}
