package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/odtboun/River/core/db/sqlc"
	"github.com/odtboun/River/internal/model"
)

type pgWalletStore struct {
	queries *sqlc.Queries
}

func newPgWalletStore(queries *sqlc.Queries) WalletStore {
	return &pgWalletStore{queries: queries}
}

func (s *pgWalletStore) Get(ctx context.Context, owner string) (*model.Wallet, error) {
	row, err := s.queries.GetWallet(ctx, owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toWalletModel(row), nil
}

func (s *pgWalletStore) Save(ctx context.Context, w *model.Wallet) error {
	return s.queries.UpsertWallet(ctx, sqlc.UpsertWalletParams{
		Owner:     w.Owner,
		PublicKey: w.PublicKey,
		SecretKey: w.SecretKey,
		CreatedAt: w.CreatedAt,
	})
}

func (s *pgWalletStore) Delete(ctx context.Context, owner string) error {
	return s.queries.DeleteWallet(ctx, owner)
}

func toWalletModel(row sqlc.Wallet) *model.Wallet {
	return &model.Wallet{
		Owner:     row.Owner,
		PublicKey: row.PublicKey,
		SecretKey: row.SecretKey,
		CreatedAt: row.CreatedAt,
	}
}
