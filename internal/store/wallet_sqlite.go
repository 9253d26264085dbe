package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/odtboun/River/internal/model"
)

type sqliteWalletStore struct {
	db *sql.DB
}

func newSQLiteWalletStore(sqlDB *sql.DB) WalletStore {
	return &sqliteWalletStore{db: sqlDB}
}

func (s *sqliteWalletStore) Get(ctx context.Context, owner string) (*model.Wallet, error) {
	var (
		w       model.Wallet
		created string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT owner, public_key, secret_key, created_at FROM wallets WHERE owner = ?`, owner,
	).Scan(&w.Owner, &w.PublicKey, &w.SecretKey, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	w.CreatedAt, err = time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return nil, fmt.Errorf("parsing wallet created_at: %w", err)
	}
	return &w, nil
}

func (s *sqliteWalletStore) Save(ctx context.Context, w *model.Wallet) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO wallets (owner, public_key, secret_key, created_at) VALUES (?, ?, ?, ?)
ON CONFLICT(owner) DO UPDATE SET
	public_key=excluded.public_key,
	secret_key=excluded.secret_key,
	created_at=excluded.created_at`,
		w.Owner, w.PublicKey, w.SecretKey, w.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteWalletStore) Delete(ctx context.Context, owner string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM wallets WHERE owner = ?`, owner)
	return err
}
