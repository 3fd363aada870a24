// Command migrate creates or drops the chat tables for the configured
// environment. Table names carry the environment prefix so dev, test, and
// prod share one database without sharing state.
//
// Usage:
//
//	go run ./cmd/migrate          # create tables
//	go run ./cmd/migrate -drop    # drop tables
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"

	"parley/internal/config"
	"parley/internal/repository/postgres"
)

func main() {
	drop := flag.Bool("drop", false, "drop tables instead of creating them")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	tables := postgres.NewTableNames(cfg.TablePrefix)

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close(ctx)

	var sql string
	if *drop {
		sql = fmt.Sprintf(`
			DROP TABLE IF EXISTS %s CASCADE;
			DROP TABLE IF EXISTS %s CASCADE;
			DROP TABLE IF EXISTS %s CASCADE;
		`, tables.Votes, tables.Messages, tables.Chats)
	} else {
		sql = fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %[1]s (
				id             UUID PRIMARY KEY,
				user_id        TEXT NOT NULL,
				title          TEXT NOT NULL,
				visibility     TEXT NOT NULL DEFAULT 'private',
				selected_model TEXT NOT NULL,
				created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
			);

			CREATE INDEX IF NOT EXISTS %[1]s_history_idx
				ON %[1]s (user_id, created_at DESC, id DESC);

			CREATE TABLE IF NOT EXISTS %[2]s (
				id         UUID PRIMARY KEY,
				chat_id    UUID NOT NULL REFERENCES %[1]s (id),
				role       TEXT NOT NULL,
				parts      JSONB NOT NULL,
				metadata   JSONB NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			);

			CREATE INDEX IF NOT EXISTS %[2]s_log_idx
				ON %[2]s (chat_id, created_at, id);

			CREATE TABLE IF NOT EXISTS %[3]s (
				chat_id    UUID NOT NULL REFERENCES %[1]s (id),
				message_id UUID NOT NULL REFERENCES %[2]s (id),
				is_upvoted BOOLEAN NOT NULL,
				PRIMARY KEY (chat_id, message_id)
			);
		`, tables.Chats, tables.Messages, tables.Votes)
	}

	if _, err := conn.Exec(ctx, sql); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	action := "created"
	if *drop {
		action = "dropped"
	}
	fmt.Printf("Tables %s (prefix: %q)\n", action, cfg.TablePrefix)
}
