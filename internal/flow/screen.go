package flow

import (
	"github.com/odtboun/River/internal/model"
	"github.com/odtboun/River/internal/negotiation"
	"github.com/odtboun/River/internal/sharelink"
)

// Screen is everything a client needs to render one step.
type Screen struct {
	Step            model.Step   `json:"step"`
	Role            model.Role   `json:"role"`
	Title           string       `json:"title"`
	Description     string       `json:"description"`
	Primary         Action       `json:"primary_action"`
	PrimaryLabel    string       `json:"primary_label"`
	Enabled         bool         `json:"enabled"`
	Fields          []FieldInput `json:"fields,omitempty"`
	Total           string       `json:"total,omitempty"`
	TotalOverridden bool         `json:"total_overridden,omitempty"`
	ShareURL        string       `json:"share_url,omitempty"`
	Result          *ResultView  `json:"result,omitempty"`
}

type FieldInput struct {
	Field model.Field `json:"field"`
	Label string      `json:"label"`
	Value string      `json:"value"`
}

// ResultView is the outcome as shown to one side.
type ResultView struct {
	Match       bool               `json:"match"`
	Headline    string             `json:"headline"`
	Description string             `json:"description"`
	Details     model.MatchDetails `json:"details"`
	Status      model.Status       `json:"status"`
}

// RenderOptions carries session state that is not part of the snapshot.
type RenderOptions struct {
	Pending bool
	// ShareBase is the URL the candidate link is built on.
	ShareBase string
}

// Render builds the screen for the snapshot's derived step.
func Render(snap negotiation.Snapshot, form *Form, opts RenderOptions) Screen {
	ev := negotiation.Evaluate(snap)
	s := Screen{
		Step:    ev.Step,
		Role:    snap.Role,
		Primary: PrimaryAction(ev.Step, snap.Record),
		Enabled: !opts.Pending,
	}
	s.PrimaryLabel = primaryLabel(s.Primary, snap.Role)

	employer := snap.Role == model.RoleEmployer
	switch ev.Step {
	case model.StepLoading:
		s.Title = "Loading negotiation"
		s.Description = "Fetching the latest state from the ledger."
	case model.StepNeedLink:
		s.Title = "No negotiation link"
		s.Description = "Open the link your employer shared with you to continue."
	case model.StepCreate:
		s.Title = "Start a negotiation"
		s.Description = "Create a private negotiation and invite your candidate."
	case model.StepAwaitEmployer:
		s.Title = "Waiting for employer"
		s.Description = "The employer hasn't set their budget yet. Please wait or contact them."
	case model.StepEnterOffer:
		s.Title = "Set your budget"
		s.Description = "Enter the maximum you're willing to offer. These numbers will remain private."
		s.withForm(form, employer)
	case model.StepShareLink:
		s.Title = "Share with candidate"
		s.Description = "Your budget is locked. Send this link to your candidate so they can submit their requirement."
		if snap.Record != nil && opts.ShareBase != "" {
			var fields []model.Field
			if form != nil {
				fields = form.Fields()
			}
			s.ShareURL = sharelink.Encode(opts.ShareBase, snap.Record.ID, fields)
		}
	case model.StepJoinPrompt:
		s.Title = "Join negotiation"
		s.Description = "The employer has set their budget. Join to submit your requirement."
		if snap.Record != nil && snap.Record.Candidate != nil {
			s.Description = "Another candidate has already joined this negotiation."
			s.Enabled = false
		}
	case model.StepEnterRequirement:
		s.Title = "Enter your requirement"
		s.Description = "Enter your minimum requirement to see if there's a match."
		s.withForm(form, employer)
	case model.StepAwaitResult:
		s.Title = "Waiting for result"
		s.Description = "Your requirement is locked. The result appears once the comparison runs."
	case model.StepShowResult:
		if employer {
			s.Title = "Negotiation Complete"
			s.Description = "Both parties have submitted their numbers. Here's the result."
		} else {
			s.Title = "Result"
			s.Description = "The negotiation is complete. Here's the outcome."
		}
		s.Result = resultView(snap.Record, ev.Match, employer)
	}
	return s
}

func (s *Screen) withForm(form *Form, employer bool) {
	if form == nil {
		return
	}
	for _, f := range form.Fields() {
		s.Fields = append(s.Fields, FieldInput{
			Field: f,
			Label: fieldLabel(f, employer),
			Value: form.Input(f),
		})
	}
	s.Total = form.Total()
	s.TotalOverridden = form.TotalOverridden()
}

func resultView(rec *model.NegotiationRecord, match *bool, employer bool) *ResultView {
	if rec == nil {
		return nil
	}
	v := &ResultView{Status: rec.Status}
	if match != nil {
		v.Match = *match
	}
	if rec.MatchDetails != nil {
		v.Details = *rec.MatchDetails
	}

	switch {
	case v.Match:
		v.Headline = "Match Found"
		if employer {
			v.Description = "Great news! The candidate's minimum is within your budget."
		} else {
			v.Description = "Great news! Your minimum is within the employer's budget. Time to talk!"
		}
	default:
		v.Headline = "No Match"
		if employer {
			v.Description = "The candidate's minimum requirement exceeds your budget."
		} else {
			v.Description = "Unfortunately, the employer's budget doesn't meet your minimum requirement."
		}
	}
	return v
}

func fieldLabel(f model.Field, employer bool) string {
	prefix := "Minimum"
	if employer {
		prefix = "Maximum"
	}
	switch f {
	case model.FieldBonus:
		return prefix + " bonus"
	case model.FieldEquity:
		return prefix + " equity"
	}
	return prefix + " base salary"
}

func primaryLabel(a Action, role model.Role) string {
	switch a {
	case ActionCreate:
		return "Create Negotiation"
	case ActionLockIn:
		return "Lock In Budget"
	case ActionCopyLink:
		return "Copy Link"
	case ActionJoin:
		return "Join Negotiation"
	case ActionSubmitRequirement:
		return "Check for Match"
	case ActionFinalize:
		return "Finalize Result"
	}
	if role == model.RoleEmployer {
		return "Start New Negotiation"
	}
	return "Go to Homepage"
}
