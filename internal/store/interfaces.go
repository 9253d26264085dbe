package store

import (
	"context"
	"errors"

	"github.com/odtboun/River/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// WalletStore persists the local fallback identity of each device.
type WalletStore interface {
	Get(ctx context.Context, owner string) (*model.Wallet, error)
	// Save inserts or replaces the wallet of w.Owner.
	Save(ctx context.Context, w *model.Wallet) error
	Delete(ctx context.Context, owner string) error
}
