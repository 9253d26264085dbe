package model

import "fmt"

// Step is the derived UI mode selecting which screen and action to present.
type Step string

const (
	StepLoading          Step = "loading"
	StepNeedLink         Step = "need-link"
	StepCreate           Step = "create"
	StepAwaitEmployer    Step = "await-employer"
	StepEnterOffer       Step = "enter-offer"
	StepJoinPrompt       Step = "join-prompt"
	StepShareLink        Step = "share-link"
	StepEnterRequirement Step = "enter-requirement"
	StepAwaitResult      Step = "await-result"
	StepShowResult       Step = "show-result"
)

type Role string

const (
	RoleEmployer  Role = "employer"
	RoleCandidate Role = "candidate"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleEmployer, RoleCandidate:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// View is which flow is rendered.
type View string

const (
	ViewLanding   View = "landing"
	ViewEmployer  View = "employer"
	ViewCandidate View = "candidate"
)

// Role returns the flow role for the view; landing has none.
func (v View) Role() (Role, bool) {
	switch v {
	case ViewEmployer:
		return RoleEmployer, true
	case ViewCandidate:
		return RoleCandidate, true
	}
	return "", false
}

func ParseView(s string) (View, error) {
	switch View(s) {
	case ViewLanding, ViewEmployer, ViewCandidate:
		return View(s), nil
	}
	return "", fmt.Errorf("unknown view %q", s)
}

// Field is one private value component.
type Field string

const (
	FieldBase   Field = "base"
	FieldBonus  Field = "bonus"
	FieldEquity Field = "equity"
)

// Fields lists every component in canonical order.
var Fields = []Field{FieldBase, FieldBonus, FieldEquity}

// DefaultFields is the subset used when none is selected.
func DefaultFields() []Field {
	return []Field{FieldBase}
}

func ParseField(s string) (Field, bool) {
	switch Field(s) {
	case FieldBase, FieldBonus, FieldEquity:
		return Field(s), true
	}
	return "", false
}

// CanonicalFields deduplicates fs, orders it canonically and falls back to
// the default subset when empty.
func CanonicalFields(fs []Field) []Field {
	seen := make(map[Field]bool, len(fs))
	for _, f := range fs {
		seen[f] = true
	}
	out := make([]Field, 0, len(Fields))
	for _, f := range Fields {
		if seen[f] {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return DefaultFields()
	}
	return out
}
