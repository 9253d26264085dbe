package identity_test

import (
	"context"
	"sync"

	"github.com/odtboun/River/internal/model"
	"github.com/odtboun/River/internal/store"
)

type mockWalletStore struct {
	mu      sync.Mutex
	wallets map[string]model.Wallet

	getFn  func(ctx context.Context, owner string) (*model.Wallet, error)
	saveFn func(ctx context.Context, w *model.Wallet) error
}

func newMockWalletStore() *mockWalletStore {
	return &mockWalletStore{wallets: make(map[string]model.Wallet)}
}

func (m *mockWalletStore) Get(ctx context.Context, owner string) (*model.Wallet, error) {
	if m.getFn != nil {
		return m.getFn(ctx, owner)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[owner]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &w, nil
}

func (m *mockWalletStore) Save(ctx context.Context, w *model.Wallet) error {
	if m.saveFn != nil {
		return m.saveFn(ctx, w)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wallets[w.Owner] = *w
	return nil
}

func (m *mockWalletStore) Delete(_ context.Context, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.wallets, owner)
	return nil
}

func (m *mockWalletStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.wallets)
}

// txOnlySigner cannot sign messages.
type txOnlySigner struct {
	key string
}

func (s txOnlySigner) PublicKey() string { return s.key }

func (s txOnlySigner) SignTransaction(context.Context, []byte) ([]byte, error) {
	return []byte("signed"), nil
}
