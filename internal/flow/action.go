package flow

import (
	"errors"
	"fmt"

	"github.com/odtboun/River/internal/model"
)

var (
	ErrUnknownAction     = errors.New("unknown action")
	ErrActionNotAllowed  = errors.New("action not allowed on this screen")
	ErrInvalidInput      = errors.New("invalid input")
	ErrSubmissionPending = errors.New("a submission is already pending")
)

// Action is a user intent on a screen.
type Action string

const (
	ActionCreate            Action = "create"
	ActionLockIn            Action = "lock-in"
	ActionCopyLink          Action = "copy-link"
	ActionJoin              Action = "join"
	ActionSubmitRequirement Action = "submit-requirement"
	ActionFinalize          Action = "finalize"
	ActionReset             Action = "reset"
)

func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionCreate, ActionLockIn, ActionCopyLink, ActionJoin,
		ActionSubmitRequirement, ActionFinalize, ActionReset:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// Submits reports whether the action sends a ledger command.
func (a Action) Submits() bool {
	switch a {
	case ActionCreate, ActionLockIn, ActionJoin, ActionSubmitRequirement, ActionFinalize:
		return true
	}
	return false
}

// PrimaryAction is the single action a step offers besides reset.
func PrimaryAction(step model.Step, rec *model.NegotiationRecord) Action {
	switch step {
	case model.StepCreate:
		return ActionCreate
	case model.StepEnterOffer:
		return ActionLockIn
	case model.StepShareLink:
		return ActionCopyLink
	case model.StepJoinPrompt:
		return ActionJoin
	case model.StepEnterRequirement:
		return ActionSubmitRequirement
	case model.StepShowResult:
		if rec != nil && rec.Status == model.StatusComplete {
			return ActionFinalize
		}
	}
	return ActionReset
}

// Allowed reports whether a is legal on step. Reset is always legal.
func Allowed(step model.Step, rec *model.NegotiationRecord, a Action) bool {
	return a == ActionReset || a == PrimaryAction(step, rec)
}
