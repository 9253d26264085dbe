package service

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/odtboun/River/core/config"
	"github.com/odtboun/River/internal/app"
	"github.com/odtboun/River/internal/identity"
	"github.com/odtboun/River/internal/ledger"
	"github.com/odtboun/River/internal/store"
)

type ServicesConfig struct {
	Stores *store.Stores
	Ledger config.LedgerConfig
	Wallet config.WalletConfig
	// Reader serves polling for every session, possibly through the
	// redis cache.
	Reader     ledger.Reader
	HTTPClient *http.Client
	PublicURL  string
	Sessions   config.SessionConfig
	Logger     *slog.Logger
}

type Services struct {
	cfg      ServicesConfig
	sessions SessionService
}

func NewServices(cfg ServicesConfig) *Services {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = ledger.NewHTTPClient(cfg.Ledger.Timeout)
	}
	s := &Services{cfg: cfg}
	s.sessions = NewSessionService(s.newSession, cfg.Sessions.IdleTTL, cfg.Sessions.SweepInterval, cfg.Logger)
	return s
}

func (s *Services) Sessions() SessionService {
	return s.sessions
}

func (s *Services) Shutdown() {
	s.sessions.Shutdown()
}

// newSession wires one device's identity, ledger client and app session,
// then restores a persisted local wallet.
func (s *Services) newSession(ctx context.Context, deviceID string) (*app.Session, error) {
	cfg := s.cfg
	provider := identity.NewProvider(deviceID, cfg.Stores.Wallets(), cfg.Logger)

	opts := []ledger.Option{ledger.WithHTTPClient(cfg.HTTPClient), ledger.WithLogger(cfg.Logger)}
	if cfg.Ledger.TEEEnabled() {
		opts = append(opts, ledger.WithTEE(cfg.Ledger.TEEURL))
	}
	client := ledger.New(cfg.Ledger.URL, provider, opts...)

	reader := cfg.Reader
	if reader == nil {
		reader = client
	}

	var dial func(ctx context.Context) (identity.Signer, error)
	if cfg.Wallet.Enabled() {
		dial = func(ctx context.Context) (identity.Signer, error) {
			return identity.DialRemote(ctx, cfg.Wallet.SignerURL, cfg.HTTPClient)
		}
	}

	sess := app.New(app.Deps{
		DeviceID:     deviceID,
		Identity:     provider,
		Ledger:       client,
		Reader:       reader,
		DialExternal: dial,
		ShareBase:    cfg.PublicURL + "/",
		PollInterval: cfg.Ledger.PollInterval,
		TEEEnabled:   cfg.Ledger.TEEEnabled(),
		Logger:       cfg.Logger,
	})

	restoreCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := sess.AutoConnect(restoreCtx); err != nil {
		// the session still works; the user can connect again
		cfg.Logger.WarnContext(ctx, "failed to restore local wallet", "error", err)
	}
	return sess, nil
}
