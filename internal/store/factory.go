package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/odtboun/River/core/db"
)

// Stores hands out the stores of one backend.
type Stores struct {
	wallets WalletStore
	migrate func(ctx context.Context) error
}

// NewPostgresStores backs the stores with a pgx pool.
func NewPostgresStores(database *db.DB) *Stores {
	return &Stores{
		wallets: newPgWalletStore(database.Queries()),
		migrate: database.Migrate,
	}
}

// NewSQLiteStores backs the stores with the embedded SQLite database.
func NewSQLiteStores(sqlDB *sql.DB) *Stores {
	return &Stores{
		wallets: newSQLiteWalletStore(sqlDB),
		migrate: func(ctx context.Context) error {
			_, err := sqlDB.ExecContext(ctx, walletsTableSQLite)
			return err
		},
	}
}

// Migrate creates missing tables.
func (s *Stores) Migrate(ctx context.Context) error {
	if err := s.migrate(ctx); err != nil {
		return fmt.Errorf("creating wallets table: %w", err)
	}
	return nil
}

func (s *Stores) Wallets() WalletStore {
	return s.wallets
}
