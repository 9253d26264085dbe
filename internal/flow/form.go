package flow

import (
	"fmt"

	"github.com/odtboun/River/common"
	"github.com/odtboun/River/internal/model"
)

// Form holds the raw amount inputs of one flow. It is not safe for
// concurrent use; the owning session serializes access.
type Form struct {
	fields     []model.Field
	inputs     map[model.Field]string
	total      string
	overridden bool
}

func NewForm(fields []model.Field) *Form {
	return &Form{
		fields: model.CanonicalFields(fields),
		inputs: make(map[model.Field]string, len(model.Fields)),
	}
}

// SetFields changes the active subset. Inputs of inactive fields are kept
// but ignored.
func (f *Form) SetFields(fields []model.Field) {
	f.fields = model.CanonicalFields(fields)
}

func (f *Form) Fields() []model.Field {
	out := make([]model.Field, len(f.fields))
	copy(out, f.fields)
	return out
}

func (f *Form) Active(field model.Field) bool {
	for _, a := range f.fields {
		if a == field {
			return true
		}
	}
	return false
}

// SetInput stores the digits of raw for field.
func (f *Form) SetInput(field model.Field, raw string) error {
	if _, ok := model.ParseField(string(field)); !ok {
		return fmt.Errorf("%w: unknown field %q", ErrInvalidInput, field)
	}
	f.inputs[field] = common.SanitizeDigits(raw)
	return nil
}

// Input returns the display value of field.
func (f *Form) Input(field model.Field) string {
	return common.FormatAmount(f.inputs[field])
}

// OverrideTotal replaces the auto-summed total with raw.
func (f *Form) OverrideTotal(raw string) {
	f.total = common.SanitizeDigits(raw)
	f.overridden = true
}

// ResetTotal returns the total to the sum of the active fields.
func (f *Form) ResetTotal() {
	f.total = ""
	f.overridden = false
}

func (f *Form) TotalOverridden() bool {
	return f.overridden
}

// Total is the display value of the total, overridden or summed.
func (f *Form) Total() string {
	if f.overridden {
		return common.FormatAmount(f.total)
	}
	sum := f.sum()
	if sum == 0 {
		return ""
	}
	return common.FormatUint(sum)
}

// Clone copies the form so a submission can read it while the session
// keeps accepting edits.
func (f *Form) Clone() *Form {
	c := &Form{
		fields:     f.Fields(),
		inputs:     make(map[model.Field]string, len(f.inputs)),
		total:      f.total,
		overridden: f.overridden,
	}
	for k, v := range f.inputs {
		c.inputs[k] = v
	}
	return c
}

// Clear drops every input and the override but keeps the active fields.
func (f *Form) Clear() {
	clear(f.inputs)
	f.ResetTotal()
}

// Validate checks every active field holds a positive amount and that an
// overridden total is positive.
func (f *Form) Validate() error {
	for _, field := range f.fields {
		v, err := common.ParseAmount(f.inputs[field])
		if err != nil || v == 0 {
			return fmt.Errorf("%w: %s must be a positive amount", ErrInvalidInput, field)
		}
	}
	if f.overridden {
		v, err := common.ParseAmount(f.total)
		if err != nil || v == 0 {
			return fmt.Errorf("%w: total must be a positive amount", ErrInvalidInput)
		}
	}
	return nil
}

// Amounts validates the form and builds the command payload. Inactive
// fields are sent as zero.
func (f *Form) Amounts() (model.Amounts, error) {
	if err := f.Validate(); err != nil {
		return model.Amounts{}, err
	}
	a := f.components()
	if f.overridden {
		a.Total, _ = common.ParseAmount(f.total)
	}
	return a, nil
}

func (f *Form) sum() uint64 {
	return f.components().Sum()
}

// components reads the active inputs, treating unparsable ones as zero.
func (f *Form) components() model.Amounts {
	var a model.Amounts
	for _, field := range f.fields {
		v, _ := common.ParseAmount(f.inputs[field])
		switch field {
		case model.FieldBase:
			a.Base = v
		case model.FieldBonus:
			a.Bonus = v
		case model.FieldEquity:
			a.Equity = v
		}
	}
	return a
}
