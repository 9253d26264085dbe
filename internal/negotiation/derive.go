package negotiation

import "github.com/odtboun/River/internal/model"

// Snapshot is everything step derivation depends on.
type Snapshot struct {
	// ID is the negotiation the view is bound to, nil when none.
	ID       *int64
	Record   *model.NegotiationRecord
	Identity model.Identity
	Role     model.Role
}

// DeriveStep maps a snapshot to the screen to present. The rules are
// evaluated in order and the first match wins. It is total over every
// snapshot and reads nothing but its argument.
func DeriveStep(s Snapshot) model.Step {
	rec := s.Record

	if rec == nil && s.ID != nil {
		return model.StepLoading
	}
	if s.ID == nil && s.Role == model.RoleCandidate {
		return model.StepNeedLink
	}
	if s.ID == nil && rec == nil && s.Role == model.RoleEmployer {
		return model.StepCreate
	}
	if rec == nil {
		return model.StepLoading
	}

	resolved := rec.Status.Resolved()
	joined := rec.HasCandidate(s.Identity.PublicKey)

	if !rec.OfferSubmitted() {
		if s.Role == model.RoleEmployer {
			return model.StepEnterOffer
		}
		return model.StepAwaitEmployer
	}
	if !joined && !resolved {
		if s.Role == model.RoleEmployer {
			return model.StepShareLink
		}
		return model.StepJoinPrompt
	}
	if joined && !rec.RequirementSubmitted() && !resolved {
		return model.StepEnterRequirement
	}
	if joined && !resolved {
		return model.StepAwaitResult
	}
	if resolved {
		return model.StepShowResult
	}
	return model.StepLoading
}

// Evaluation is a derived step plus the outcome visible on it.
type Evaluation struct {
	Step  model.Step
	Match *bool
}

func Evaluate(s Snapshot) Evaluation {
	ev := Evaluation{Step: DeriveStep(s)}
	if ev.Step == model.StepShowResult {
		ev.Match = s.Record.Match()
	}
	return ev
}
