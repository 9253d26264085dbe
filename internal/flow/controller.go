package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/odtboun/River/internal/model"
	"github.com/odtboun/River/internal/negotiation"
)

// Commands sends the state-changing ledger instructions. Every method
// returns the transaction signature.
type Commands interface {
	Create(ctx context.Context) (id int64, signature string, err error)
	Join(ctx context.Context, id int64) (string, error)
	SubmitOffer(ctx context.Context, id int64, amounts model.Amounts) (string, error)
	SubmitRequirement(ctx context.Context, id int64, amounts model.Amounts) (string, error)
	Finalize(ctx context.Context, id int64) (string, error)
}

// Outcome is what a successful command leaves behind.
type Outcome struct {
	NegotiationID int64
	Signature     string
}

type EmployerController struct {
	cmds   Commands
	logger *slog.Logger
}

func NewEmployerController(cmds Commands, logger *slog.Logger) *EmployerController {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmployerController{cmds: cmds, logger: logger}
}

// Create opens a new negotiation with the connected identity as employer.
func (c *EmployerController) Create(ctx context.Context, snap negotiation.Snapshot) (Outcome, error) {
	if err := require(snap, model.RoleEmployer, ActionCreate); err != nil {
		return Outcome{}, err
	}
	id, sig, err := c.cmds.Create(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("creating negotiation: %w", err)
	}
	c.logger.InfoContext(ctx, "negotiation created", "negotiation_id", id)
	return Outcome{NegotiationID: id, Signature: sig}, nil
}

// LockIn submits the employer offer. It is refused once an offer is on
// the ledger.
func (c *EmployerController) LockIn(ctx context.Context, snap negotiation.Snapshot, form *Form) (Outcome, error) {
	if err := require(snap, model.RoleEmployer, ActionLockIn); err != nil {
		return Outcome{}, err
	}
	if snap.Record.OfferSubmitted() {
		return Outcome{}, ErrActionNotAllowed
	}
	amounts, err := form.Amounts()
	if err != nil {
		return Outcome{}, err
	}
	sig, err := c.cmds.SubmitOffer(ctx, snap.Record.ID, amounts)
	if err != nil {
		return Outcome{}, fmt.Errorf("submitting offer: %w", err)
	}
	return Outcome{NegotiationID: snap.Record.ID, Signature: sig}, nil
}

// Finalize clears the private values upstream once the result is known.
func (c *EmployerController) Finalize(ctx context.Context, snap negotiation.Snapshot) (Outcome, error) {
	return finalize(ctx, c.cmds, snap)
}

type CandidateController struct {
	cmds   Commands
	logger *slog.Logger
}

func NewCandidateController(cmds Commands, logger *slog.Logger) *CandidateController {
	if logger == nil {
		logger = slog.Default()
	}
	return &CandidateController{cmds: cmds, logger: logger}
}

// Join claims the candidate slot for the connected identity.
func (c *CandidateController) Join(ctx context.Context, snap negotiation.Snapshot) (Outcome, error) {
	if err := require(snap, model.RoleCandidate, ActionJoin); err != nil {
		return Outcome{}, err
	}
	sig, err := c.cmds.Join(ctx, snap.Record.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("joining negotiation: %w", err)
	}
	c.logger.InfoContext(ctx, "joined negotiation", "negotiation_id", snap.Record.ID)
	return Outcome{NegotiationID: snap.Record.ID, Signature: sig}, nil
}

// SubmitRequirement submits the candidate's minimum.
func (c *CandidateController) SubmitRequirement(ctx context.Context, snap negotiation.Snapshot, form *Form) (Outcome, error) {
	if err := require(snap, model.RoleCandidate, ActionSubmitRequirement); err != nil {
		return Outcome{}, err
	}
	if snap.Record.RequirementSubmitted() {
		return Outcome{}, ErrActionNotAllowed
	}
	amounts, err := form.Amounts()
	if err != nil {
		return Outcome{}, err
	}
	sig, err := c.cmds.SubmitRequirement(ctx, snap.Record.ID, amounts)
	if err != nil {
		return Outcome{}, fmt.Errorf("submitting requirement: %w", err)
	}
	return Outcome{NegotiationID: snap.Record.ID, Signature: sig}, nil
}

func (c *CandidateController) Finalize(ctx context.Context, snap negotiation.Snapshot) (Outcome, error) {
	return finalize(ctx, c.cmds, snap)
}

func finalize(ctx context.Context, cmds Commands, snap negotiation.Snapshot) (Outcome, error) {
	if err := require(snap, snap.Role, ActionFinalize); err != nil {
		return Outcome{}, err
	}
	sig, err := cmds.Finalize(ctx, snap.Record.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("finalizing negotiation: %w", err)
	}
	return Outcome{NegotiationID: snap.Record.ID, Signature: sig}, nil
}

// require checks that the snapshot belongs to role and that its derived
// step offers action.
func require(snap negotiation.Snapshot, role model.Role, action Action) error {
	if snap.Role != role {
		return ErrActionNotAllowed
	}
	step := negotiation.DeriveStep(snap)
	if !Allowed(step, snap.Record, action) {
		return fmt.Errorf("%w: %s on %s", ErrActionNotAllowed, action, step)
	}
	return nil
}
