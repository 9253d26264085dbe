// Package app holds the per-device app session: the local UI state plus the
// state model, synchronizer, controllers and identity behind it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/odtboun/River/common/logger"
	"github.com/odtboun/River/internal/flow"
	"github.com/odtboun/River/internal/identity"
	"github.com/odtboun/River/internal/ledger"
	"github.com/odtboun/River/internal/model"
	"github.com/odtboun/River/internal/negotiation"
	"github.com/odtboun/River/internal/sharelink"
	"github.com/odtboun/River/internal/synchronizer"
)

var ErrExternalUnavailable = errors.New("external wallet not configured")

const upgradeTimeout = 30 * time.Second

// Ledger is the identity-bound ledger client of one session.
type Ledger interface {
	flow.Commands
	UpgradeTEE(ctx context.Context, signer ledger.MessageSigner) (ledger.TEEStatus, error)
	ResetTEE()
	TEEStatus() ledger.TEEStatus
}

type Deps struct {
	DeviceID string
	Identity *identity.Provider
	Ledger   Ledger
	// Reader serves polling. It may be shared between sessions; when it
	// also implements ledger.Invalidator the session drops stale entries
	// after its own commands.
	Reader ledger.Reader
	// DialExternal connects the external wallet bridge, nil when none is
	// configured.
	DialExternal func(ctx context.Context) (identity.Signer, error)
	ShareBase    string
	PollInterval time.Duration
	TEEEnabled   bool
	Logger       *slog.Logger
}

// State is a rendering snapshot of the session.
type State struct {
	DeviceID      string
	View          model.View
	NegotiationID *int64
	Record        *model.NegotiationRecord
	// Screen is nil on the landing view.
	Screen    *flow.Screen
	Identity  model.Identity
	TEE       ledger.TEEStatus
	Pending   bool
	LastError string
	LastTx    string
	Fields    []model.Field
	Location  string
}

type Session struct {
	deviceID     string
	identity     *identity.Provider
	ledger       Ledger
	reader       ledger.Reader
	dialExternal func(ctx context.Context) (identity.Signer, error)
	shareBase    string
	teeEnabled   bool
	logger       *slog.Logger

	model     *negotiation.Model
	sync      *synchronizer.Synchronizer
	guard     *flow.Guard
	employer  *flow.EmployerController
	candidate *flow.CandidateController

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup

	mu        sync.Mutex
	view      model.View
	form      *flow.Form
	lastError string
	lastTx    string
	location  string
	lastSeen  time.Time
	// epoch changes whenever the user leaves the current flow so that a
	// submission finishing afterwards is dropped.
	epoch  uint64
	closed bool
	// cancelUpgrade stops the secure channel upgrade of the current
	// identity.
	cancelUpgrade context.CancelFunc
}

func New(deps Deps) *Session {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	bgCtx, cancel := context.WithCancel(logger.WithLogFields(context.Background(), logger.LogFields{
		DeviceID:  &deps.DeviceID,
		Component: "river.app",
	}))

	syncOpts := []synchronizer.Option{synchronizer.WithLogger(log)}
	if deps.PollInterval > 0 {
		syncOpts = append(syncOpts, synchronizer.WithInterval(deps.PollInterval))
	}

	s := &Session{
		deviceID:     deps.DeviceID,
		identity:     deps.Identity,
		ledger:       deps.Ledger,
		reader:       deps.Reader,
		dialExternal: deps.DialExternal,
		shareBase:    deps.ShareBase,
		teeEnabled:   deps.TEEEnabled,
		logger:       log,
		model:        negotiation.NewModel(""),
		sync:         synchronizer.New(deps.Reader, syncOpts...),
		guard:        flow.NewGuard(),
		employer:     flow.NewEmployerController(deps.Ledger, log),
		candidate:    flow.NewCandidateController(deps.Ledger, log),
		bgCtx:        bgCtx,
		bgCancel:     cancel,
		view:         model.ViewLanding,
		form:         flow.NewForm(model.DefaultFields()),
		location:     "/",
		lastSeen:     time.Now(),
	}
	s.model.SetIdentity(deps.Identity.Active())
	deps.Identity.OnChange(s.identityChanged)
	return s
}

// Open enters the app from a location query. A valid shared link binds the
// candidate view to its negotiation; anything else lands on the landing
// view.
func (s *Session) Open(ctx context.Context, rawQuery string) {
	link := sharelink.Decode(rawQuery)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaveLocked()

	if link.ID == nil {
		s.view = model.ViewLanding
		s.model.SetRole("")
		s.location = "/"
		return
	}

	s.view = model.ViewCandidate
	s.model.SetRole(model.RoleCandidate)
	s.form.SetFields(link.Fields)
	s.location = sharelink.Encode("/", *link.ID, link.Fields)
	s.bindLocked(*link.ID)
	s.logger.InfoContext(ctx, "opened shared negotiation", "negotiation_id", *link.ID)
}

func (s *Session) StartEmployer() {
	s.enter(model.ViewEmployer, model.RoleEmployer)
}

// StartCandidate opens the candidate view without a link, which asks for
// one.
func (s *Session) StartCandidate() {
	s.enter(model.ViewCandidate, model.RoleCandidate)
}

func (s *Session) enter(view model.View, role model.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaveLocked()
	s.view = view
	s.model.SetRole(role)
	s.location = "/"
}

// SetView switches the rendered flow. Landing is a reset.
func (s *Session) SetView(view model.View) {
	switch view {
	case model.ViewEmployer:
		s.StartEmployer()
	case model.ViewCandidate:
		s.StartCandidate()
	default:
		s.Reset()
	}
}

// SetFields selects the value components. A candidate bound to a link
// keeps the employer's selection, and the employer's selection is fixed
// once the offer is submitted or while a submission is pending.
func (s *Session) SetFields(fields []model.Field) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.model.Snapshot()
	switch {
	case s.view == model.ViewCandidate && snap.ID != nil:
		return
	case s.view == model.ViewEmployer && (snap.Record.OfferSubmitted() || s.guard.Pending()):
		return
	}
	s.form.SetFields(fields)
}

func (s *Session) SetInput(field model.Field, raw string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.form.SetInput(field, raw)
}

func (s *Session) OverrideTotal(raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.form.OverrideTotal(raw)
}

func (s *Session) ResetTotal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.form.ResetTotal()
}

// Perform runs action against the current screen. Invalid input, an
// illegal action and a second submission while one is pending are
// returned. Ledger failures are kept as the session's last error and leave
// the cached record untouched. The submission stays pending until the
// record it produced has been read back.
func (s *Session) Perform(ctx context.Context, action flow.Action) error {
	if action == flow.ActionReset {
		s.Reset()
		return nil
	}

	if _, _, err := s.admit(action); err != nil || !action.Submits() {
		return err
	}

	ctx = logger.WithLogFields(context.WithoutCancel(ctx), logger.LogFields{
		DeviceID:  &s.deviceID,
		Component: "river.app",
	})

	return s.guard.Do(ctx, func(ctx context.Context) error {
		// re-checked under the guard: a submission that just finished may
		// have moved the step on
		snap, step, err := s.admit(action)
		if err != nil {
			return err
		}

		s.mu.Lock()
		form := s.form.Clone()
		epoch := s.epoch
		s.mu.Unlock()

		if action == flow.ActionLockIn || action == flow.ActionSubmitRequirement {
			if err := form.Validate(); err != nil {
				return err
			}
		}

		ctx = logger.WithLogFields(ctx, logger.LogFields{
			NegotiationID: snap.ID,
			Role:          logger.Ptr(string(snap.Role)),
			Step:          logger.Ptr(string(step)),
		})

		out, err := s.dispatch(ctx, action, snap, form)
		if errors.Is(err, flow.ErrActionNotAllowed) || errors.Is(err, flow.ErrInvalidInput) {
			return err
		}
		s.finish(ctx, action, epoch, out, err)
		return nil
	})
}

// admit checks that action is on the current screen.
func (s *Session) admit(action flow.Action) (negotiation.Snapshot, model.Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.model.Snapshot()
	step := negotiation.DeriveStep(snap)
	if _, ok := s.view.Role(); !ok || !flow.Allowed(step, snap.Record, action) {
		return snap, step, fmt.Errorf("%w: %s on %s", flow.ErrActionNotAllowed, action, step)
	}
	return snap, step, nil
}

func (s *Session) dispatch(ctx context.Context, action flow.Action, snap negotiation.Snapshot, form *flow.Form) (flow.Outcome, error) {
	switch action {
	case flow.ActionCreate:
		return s.employer.Create(ctx, snap)
	case flow.ActionLockIn:
		return s.employer.LockIn(ctx, snap, form)
	case flow.ActionJoin:
		return s.candidate.Join(ctx, snap)
	case flow.ActionSubmitRequirement:
		return s.candidate.SubmitRequirement(ctx, snap, form)
	case flow.ActionFinalize:
		if snap.Role == model.RoleEmployer {
			return s.employer.Finalize(ctx, snap)
		}
		return s.candidate.Finalize(ctx, snap)
	}
	return flow.Outcome{}, fmt.Errorf("%w: %s", flow.ErrUnknownAction, action)
}

func (s *Session) finish(ctx context.Context, action flow.Action, epoch uint64, out flow.Outcome, err error) {
	s.mu.Lock()
	if s.closed || s.epoch != epoch {
		s.mu.Unlock()
		s.logger.InfoContext(ctx, "dropping submission result after leaving flow", "action", action, "error", err)
		return
	}
	if err != nil {
		s.lastError = errorMessage(err)
		s.mu.Unlock()
		s.logger.WarnContext(ctx, "submission failed", "action", action, "error", err)
		return
	}

	s.lastError = ""
	s.lastTx = out.Signature
	if action == flow.ActionLockIn || action == flow.ActionSubmitRequirement {
		s.form.Clear()
	}
	if action == flow.ActionCreate {
		s.bindLocked(out.NegotiationID)
		s.mu.Unlock()
		return
	}
	h := s.sync.Current()
	s.mu.Unlock()

	if id := s.model.Snapshot().ID; id != nil {
		if inv, ok := s.reader.(ledger.Invalidator); ok {
			if err := inv.Invalidate(ctx, *id); err != nil {
				s.logger.WarnContext(ctx, "failed to invalidate cached record", "error", err)
			}
		}
	}
	if h != nil {
		if err := h.Refresh(ctx); err != nil {
			s.logger.DebugContext(ctx, "refresh after submission skipped", "error", err)
		}
	}
}

// bindLocked points the model at id and starts polling it.
func (s *Session) bindLocked(id int64) {
	s.model.SetID(&id)
	ctx := logger.WithLogFields(s.bgCtx, logger.LogFields{NegotiationID: &id})
	s.sync.Start(ctx, id, func(rec *model.NegotiationRecord) bool {
		if rec == nil || rec.ID != id {
			return false
		}
		return s.model.SetRecord(rec) == model.StepShowResult
	})
}

// leaveLocked drops everything tied to the current flow.
func (s *Session) leaveLocked() {
	s.epoch++
	s.sync.Stop()
	s.model.Clear()
	s.form.Clear()
	s.form.SetFields(model.DefaultFields())
	s.lastError = ""
	s.lastTx = ""
}

// Reset returns to the landing view and clears all ephemeral state. It is
// idempotent.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaveLocked()
	s.view = model.ViewLanding
	s.model.SetRole("")
	s.location = sharelink.Strip(s.location)
}

func (s *Session) DismissError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = ""
}

func (s *Session) ConnectBurner(ctx context.Context) (model.Identity, error) {
	return s.identity.ConnectBurner(ctx)
}

func (s *Session) ConnectExternal(ctx context.Context) (model.Identity, error) {
	if s.dialExternal == nil {
		return model.Identity{}, ErrExternalUnavailable
	}
	signer, err := s.dialExternal(ctx)
	if err != nil {
		return model.Identity{}, fmt.Errorf("connecting external wallet: %w", err)
	}
	return s.identity.ConnectExternal(ctx, signer)
}

func (s *Session) Disconnect(ctx context.Context) {
	s.identity.Disconnect(ctx)
}

// AutoConnect restores a persisted local wallet.
func (s *Session) AutoConnect(ctx context.Context) (model.Identity, error) {
	return s.identity.AutoConnect(ctx)
}

func (s *Session) ExportWallet(ctx context.Context) ([]byte, error) {
	return s.identity.Export(ctx)
}

func (s *Session) ImportWallet(ctx context.Context, data []byte) (model.Identity, error) {
	return s.identity.Import(ctx, data)
}

func (s *Session) ClearWallet(ctx context.Context) error {
	return s.identity.Clear(ctx)
}

// identityChanged drops the channel of the previous identity, cancelling
// its upgrade, and starts one for the new identity.
func (s *Session) identityChanged(id model.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelUpgrade != nil {
		s.cancelUpgrade()
		s.cancelUpgrade = nil
	}
	s.model.SetIdentity(id)
	s.ledger.ResetTEE()

	if s.closed || !s.teeEnabled || !id.Connected() {
		return
	}
	ctx, cancel := context.WithTimeout(s.bgCtx, upgradeTimeout)
	s.cancelUpgrade = cancel
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		defer cancel()
		status, err := s.ledger.UpgradeTEE(ctx, s.identity)
		if err != nil {
			s.logger.DebugContext(ctx, "secure channel upgrade failed", "error", err)
			return
		}
		s.logger.DebugContext(ctx, "secure channel upgraded", "status", status)
	}()
}

// State snapshots the session for rendering.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.model.Snapshot()
	st := State{
		DeviceID:      s.deviceID,
		View:          s.view,
		NegotiationID: snap.ID,
		Record:        snap.Record,
		Identity:      snap.Identity,
		TEE:           s.ledger.TEEStatus(),
		Pending:       s.guard.Pending(),
		LastError:     s.lastError,
		LastTx:        s.lastTx,
		Fields:        s.form.Fields(),
		Location:      s.location,
	}
	if _, ok := s.view.Role(); ok {
		screen := flow.Render(snap, s.form, flow.RenderOptions{
			Pending:   st.Pending,
			ShareBase: s.shareBase,
		})
		st.Screen = &screen
	}
	return st
}

// Step is the derived step of the current view.
func (s *Session) Step() model.Step {
	return s.model.Step()
}

// Subscribe streams derived steps until cancel is called or the session
// closes.
func (s *Session) Subscribe() (<-chan model.Step, func()) {
	return s.model.Subscribe()
}

func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()
}

func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Close stops polling and background work. The session is unusable
// afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.epoch++
	s.mu.Unlock()

	s.sync.Stop()
	s.bgCancel()
	s.bg.Wait()
	s.model.Close()
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, ledger.ErrNotConnected), errors.Is(err, identity.ErrNotConnected):
		return "Connect a wallet to continue."
	case errors.Is(err, ledger.ErrNegotiationFull):
		return "Another candidate has already joined this negotiation."
	case errors.Is(err, ledger.ErrCannotJoinOwn):
		return "You cannot join your own negotiation."
	case errors.Is(err, ledger.ErrUnauthorized):
		return "This wallet is not a party to the negotiation."
	case errors.Is(err, ledger.ErrAlreadySubmitted):
		return "Your numbers were already submitted."
	case errors.Is(err, ledger.ErrNotComplete):
		return "The negotiation is not complete yet."
	case errors.Is(err, ledger.ErrNotFound):
		return "Negotiation not found."
	}
	return "Transaction failed: " + err.Error()
}
