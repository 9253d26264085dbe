package db

import (
	"context"
	_ "embed"
	"fmt"
)

// Schema is the Postgres schema sqlc generates the queries against.
//
//go:embed schema/001_wallets.sql
var Schema string

// Migrate creates missing tables.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}
