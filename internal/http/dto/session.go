package dto

import (
	"github.com/odtboun/River/internal/app"
	"github.com/odtboun/River/internal/flow"
	"github.com/odtboun/River/internal/model"
)

type SetViewRequest struct {
	View string `json:"view" binding:"required,oneof=landing employer candidate"`
}

type SetFieldsRequest struct {
	Fields []string `json:"fields" binding:"max=3,dive,oneof=base bonus equity"`
}

// UpdateFormRequest carries raw input per field; digits are extracted
// server side.
type UpdateFormRequest struct {
	Inputs map[string]string `json:"inputs" binding:"required"`
}

type OverrideTotalRequest struct {
	Total string `json:"total" binding:"max=64"`
}

type NegotiationBrief struct {
	ID        int64        `json:"id,string"`
	Employer  string       `json:"employer"`
	Candidate *string      `json:"candidate,omitempty"`
	Status    model.Status `json:"status"`
	Result    model.Result `json:"result"`
}

type IdentityResponse struct {
	PublicKey string             `json:"public_key,omitempty"`
	Mode      model.IdentityMode `json:"mode"`
	Connected bool               `json:"connected"`
}

type SessionResponse struct {
	DeviceID      string            `json:"device_id"`
	View          model.View        `json:"view"`
	NegotiationID *int64            `json:"negotiation_id,string,omitempty"`
	Negotiation   *NegotiationBrief `json:"negotiation,omitempty"`
	Screen        *flow.Screen      `json:"screen,omitempty"`
	Identity      IdentityResponse  `json:"identity"`
	TEEStatus     string            `json:"tee_status"`
	Pending       bool              `json:"pending"`
	LastError     string            `json:"last_error,omitempty"`
	LastTx        string            `json:"last_tx,omitempty"`
	Fields        []model.Field     `json:"fields"`
	Location      string            `json:"location"`
}

func ToSessionResponse(st app.State) *SessionResponse {
	resp := &SessionResponse{
		DeviceID:      st.DeviceID,
		View:          st.View,
		NegotiationID: st.NegotiationID,
		Screen:        st.Screen,
		Identity:      ToIdentityResponse(st.Identity),
		TEEStatus:     string(st.TEE),
		Pending:       st.Pending,
		LastError:     st.LastError,
		LastTx:        st.LastTx,
		Fields:        st.Fields,
		Location:      st.Location,
	}
	if rec := st.Record; rec != nil {
		resp.Negotiation = &NegotiationBrief{
			ID:        rec.ID,
			Employer:  rec.Employer,
			Candidate: rec.Candidate,
			Status:    rec.Status,
			Result:    rec.Result,
		}
	}
	return resp
}

func ToIdentityResponse(id model.Identity) IdentityResponse {
	return IdentityResponse{
		PublicKey: id.PublicKey,
		Mode:      id.Mode,
		Connected: id.Connected(),
	}
}

// StepEvent is one message of the session event stream.
type StepEvent struct {
	Step    model.Step       `json:"step"`
	Session *SessionResponse `json:"session"`
}
