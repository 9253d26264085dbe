package model

import (
	"fmt"
	"math"
)

// Status is the lifecycle stage of a negotiation record. The order of the
// constants is the order of the lifecycle.
type Status int

const (
	StatusCreated Status = iota
	StatusReady
	StatusEmployerSubmitted
	StatusCandidateSubmitted
	StatusComplete
	StatusFinalized
)

var statusNames = [...]string{
	StatusCreated:            "created",
	StatusReady:              "ready",
	StatusEmployerSubmitted:  "employer_submitted",
	StatusCandidateSubmitted: "candidate_submitted",
	StatusComplete:           "complete",
	StatusFinalized:          "finalized",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// Resolved reports whether the comparison has been performed.
func (s Status) Resolved() bool {
	return s >= StatusComplete
}

func ParseStatus(s string) (Status, error) {
	for i, name := range statusNames {
		if name == s {
			return Status(i), nil
		}
	}
	return StatusCreated, fmt.Errorf("unknown negotiation status %q", s)
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	parsed, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

type Result string

const (
	ResultPending Result = "pending"
	ResultMatch   Result = "match"
	ResultNoMatch Result = "no_match"
)

// MatchDetails holds per-component comparison outcomes. Only Total is
// binding; the component flags are informational.
type MatchDetails struct {
	Base   bool `json:"base_match"`
	Bonus  bool `json:"bonus_match"`
	Equity bool `json:"equity_match"`
	Total  bool `json:"total_match"`
}

// Submission carries which components a party has submitted. The values
// themselves never reach the client.
type Submission struct {
	Base   bool `json:"base"`
	Bonus  bool `json:"bonus"`
	Equity bool `json:"equity"`
}

func (s Submission) IsSet() bool {
	return s.Base || s.Bonus || s.Equity
}

// NegotiationRecord is the client's read-only copy of the ledger record.
type NegotiationRecord struct {
	ID                   int64         `json:"id,string"`
	Address              string        `json:"address,omitempty"`
	Employer             string        `json:"employer"`
	Candidate            *string       `json:"candidate,omitempty"`
	EmployerOffer        Submission    `json:"employer_offer"`
	CandidateRequirement Submission    `json:"candidate_requirement"`
	Status               Status        `json:"status"`
	Result               Result        `json:"result"`
	MatchDetails         *MatchDetails `json:"match_details,omitempty"`
}

// OfferSubmitted reports whether the employer side is set. Finalization
// clears the private values upstream, so the status is authoritative once
// it has moved past the employer submission.
func (r *NegotiationRecord) OfferSubmitted() bool {
	if r == nil {
		return false
	}
	return r.EmployerOffer.IsSet() || r.Status == StatusEmployerSubmitted || r.Status.Resolved()
}

func (r *NegotiationRecord) RequirementSubmitted() bool {
	if r == nil {
		return false
	}
	return r.CandidateRequirement.IsSet() || r.Status == StatusCandidateSubmitted || r.Status.Resolved()
}

// HasCandidate reports whether publicKey is the joined candidate.
func (r *NegotiationRecord) HasCandidate(publicKey string) bool {
	if r == nil || r.Candidate == nil || publicKey == "" {
		return false
	}
	return *r.Candidate == publicKey
}

// Match returns the binding outcome, or nil while unresolved.
func (r *NegotiationRecord) Match() *bool {
	if r == nil || !r.Status.Resolved() || r.Result == ResultPending {
		return nil
	}
	m := r.Result == ResultMatch
	if r.MatchDetails != nil {
		m = r.MatchDetails.Total
	}
	return &m
}

// Clone returns a deep copy so cached records are never shared.
func (r *NegotiationRecord) Clone() *NegotiationRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.Candidate != nil {
		cand := *r.Candidate
		c.Candidate = &cand
	}
	if r.MatchDetails != nil {
		md := *r.MatchDetails
		c.MatchDetails = &md
	}
	return &c
}

// Amounts is the private payload of a submit command.
type Amounts struct {
	Base   uint64 `json:"base"`
	Bonus  uint64 `json:"bonus"`
	Equity uint64 `json:"equity"`
	// Total is an explicit override. Zero means the sum of components.
	Total uint64 `json:"total,omitempty"`
}

// Sum adds the components, saturating at the uint64 maximum.
func (a Amounts) Sum() uint64 {
	return saturatingAdd(saturatingAdd(a.Base, a.Bonus), a.Equity)
}

func (a Amounts) EffectiveTotal() uint64 {
	if a.Total != 0 {
		return a.Total
	}
	return a.Sum()
}

func saturatingAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}
