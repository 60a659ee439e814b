package main

// Script to create the notification service schema. Run once against a
// fresh database before starting the notifier.
//
// Usage:
//   go run scripts/init_db.go
//
// Connection settings come from the same POSTGRES_* environment
// variables the services use.

import (
	"fmt"
	"os"

	"sentinel/internal/adapters/config"
	"sentinel/internal/adapters/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS dispatch_records (
    alert_id   TEXT        NOT NULL,
    channel    TEXT        NOT NULL,
    status     TEXT        NOT NULL DEFAULT 'pending',
    attempts   INT         NOT NULL DEFAULT 0,
    attempt_id TEXT        NOT NULL DEFAULT '',
    last_error TEXT        NOT NULL DEFAULT '',
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (alert_id, channel)
);

CREATE INDEX IF NOT EXISTS idx_dispatch_records_updated_at
    ON dispatch_records (updated_at);
`

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	db, err := postgres.NewClient(cfg.Postgres)
	if err != nil {
		fmt.Printf("Error: failed to connect to postgres: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if _, err := db.DB().Exec(schema); err != nil {
		fmt.Printf("Error: failed to apply schema: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("dispatch_records schema applied")
}
