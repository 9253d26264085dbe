package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/odtboun/River/internal/model"
	"github.com/odtboun/River/internal/store"
)

// Provider owns the active identity of one app session. At most one of
// the burner and the external signer is active.
type Provider struct {
	owner   string
	wallets store.WalletStore
	logger  *slog.Logger

	mu        sync.RWMutex
	mode      model.IdentityMode
	burner    *Burner
	external  Signer
	listeners []func(model.Identity)
}

func NewProvider(owner string, wallets store.WalletStore, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		owner:   owner,
		wallets: wallets,
		logger:  logger,
		mode:    model.IdentityNone,
	}
}

// OnChange registers fn to run after every identity switch.
func (p *Provider) OnChange(fn func(model.Identity)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

func (p *Provider) Active() model.Identity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.activeLocked()
}

// PublicKey is the active public key, empty when disconnected.
func (p *Provider) PublicKey() string {
	return p.Active().PublicKey
}

// ConnectBurner activates the persisted local wallet, creating and saving
// one on first use. An external identity is disconnected first.
func (p *Provider) ConnectBurner(ctx context.Context) (model.Identity, error) {
	b, err := p.loadBurner(ctx)
	if errors.Is(err, ErrNoWallet) {
		b, err = NewBurner()
		if err != nil {
			return model.Identity{}, err
		}
		w := b.Wallet(p.owner)
		if err := p.wallets.Save(ctx, &w); err != nil {
			return model.Identity{}, fmt.Errorf("saving local wallet: %w", err)
		}
		p.logger.InfoContext(ctx, "local wallet created", "public_key", b.PublicKey())
	} else if err != nil {
		return model.Identity{}, err
	}

	return p.switchTo(model.IdentityLocalFallback, b, nil), nil
}

// ConnectExternal activates an external signer. The local wallet stays
// persisted.
func (p *Provider) ConnectExternal(_ context.Context, s Signer) (model.Identity, error) {
	if s == nil || s.PublicKey() == "" {
		return model.Identity{}, ErrNotConnected
	}
	return p.switchTo(model.IdentityExternal, nil, s), nil
}

// Disconnect drops the active identity. The local wallet stays persisted.
func (p *Provider) Disconnect(context.Context) {
	p.switchTo(model.IdentityNone, nil, nil)
}

// AutoConnect connects the local wallet when one is persisted and nothing
// else is active.
func (p *Provider) AutoConnect(ctx context.Context) (model.Identity, error) {
	if p.Active().Connected() {
		return p.Active(), nil
	}
	b, err := p.loadBurner(ctx)
	if errors.Is(err, ErrNoWallet) {
		return model.Identity{Mode: model.IdentityNone}, nil
	}
	if err != nil {
		return model.Identity{}, err
	}
	return p.switchTo(model.IdentityLocalFallback, b, nil), nil
}

func (p *Provider) SignTransaction(ctx context.Context, payload []byte) ([]byte, error) {
	s := p.signer()
	if s == nil {
		return nil, ErrNotConnected
	}
	return s.SignTransaction(ctx, payload)
}

func (p *Provider) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	s := p.signer()
	if s == nil {
		return nil, ErrNotConnected
	}
	ms, ok := s.(MessageSigner)
	if !ok || !canSignMessage(s) {
		return nil, ErrMessageSigningUnsupported
	}
	return ms.SignMessage(ctx, msg)
}

// CanSignMessage reports whether the active identity can run the secure
// channel handshake.
func (p *Provider) CanSignMessage() bool {
	s := p.signer()
	return s != nil && canSignMessage(s)
}

type backup struct {
	PublicKey string `json:"publicKey"`
	SecretKey []int  `json:"secretKey"`
}

// Export renders the persisted local wallet as a JSON backup.
func (p *Provider) Export(ctx context.Context) ([]byte, error) {
	w, err := p.wallets.Get(ctx, p.owner)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoWallet
	}
	if err != nil {
		return nil, fmt.Errorf("loading local wallet: %w", err)
	}
	out := backup{PublicKey: w.PublicKey, SecretKey: make([]int, len(w.SecretKey))}
	for i, c := range w.SecretKey {
		out.SecretKey[i] = int(c)
	}
	return json.MarshalIndent(out, "", "  ")
}

// Import replaces the local wallet with a backup and connects it.
func (p *Provider) Import(ctx context.Context, data []byte) (model.Identity, error) {
	var in backup
	if err := json.Unmarshal(data, &in); err != nil {
		return model.Identity{}, fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}
	secret := make([]byte, len(in.SecretKey))
	for i, c := range in.SecretKey {
		if c < 0 || c > 255 {
			return model.Identity{}, fmt.Errorf("%w: secret key byte %d out of range", ErrInvalidBackup, i)
		}
		secret[i] = byte(c)
	}
	b, err := BurnerFromSecret(secret)
	if err != nil {
		return model.Identity{}, err
	}
	if in.PublicKey != "" && in.PublicKey != b.PublicKey() {
		return model.Identity{}, fmt.Errorf("%w: public key does not match secret key", ErrInvalidBackup)
	}

	w := b.Wallet(p.owner)
	if err := p.wallets.Save(ctx, &w); err != nil {
		return model.Identity{}, fmt.Errorf("saving local wallet: %w", err)
	}
	return p.switchTo(model.IdentityLocalFallback, b, nil), nil
}

// Clear deletes the persisted local wallet, disconnecting it if active.
func (p *Provider) Clear(ctx context.Context) error {
	if err := p.wallets.Delete(ctx, p.owner); err != nil {
		return fmt.Errorf("deleting local wallet: %w", err)
	}
	if p.Active().Mode == model.IdentityLocalFallback {
		p.switchTo(model.IdentityNone, nil, nil)
	}
	return nil
}

func (p *Provider) loadBurner(ctx context.Context) (*Burner, error) {
	w, err := p.wallets.Get(ctx, p.owner)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoWallet
	}
	if err != nil {
		return nil, fmt.Errorf("loading local wallet: %w", err)
	}
	b, err := BurnerFromSecret(w.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("restoring local wallet: %w", err)
	}
	return b, nil
}

func (p *Provider) signer() Signer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	switch p.mode {
	case model.IdentityLocalFallback:
		if p.burner != nil {
			return p.burner
		}
	case model.IdentityExternal:
		return p.external
	}
	return nil
}

func (p *Provider) switchTo(mode model.IdentityMode, b *Burner, ext Signer) model.Identity {
	p.mu.Lock()
	prev := p.activeLocked()
	p.mode = mode
	p.burner = b
	p.external = ext
	next := p.activeLocked()
	listeners := append([]func(model.Identity){}, p.listeners...)
	p.mu.Unlock()

	if next != prev {
		for _, fn := range listeners {
			fn(next)
		}
	}
	return next
}

func (p *Provider) activeLocked() model.Identity {
	switch {
	case p.mode == model.IdentityLocalFallback && p.burner != nil:
		return model.Identity{PublicKey: p.burner.PublicKey(), Mode: p.mode}
	case p.mode == model.IdentityExternal && p.external != nil:
		return model.Identity{PublicKey: p.external.PublicKey(), Mode: p.mode}
	}
	return model.Identity{Mode: model.IdentityNone}
}
