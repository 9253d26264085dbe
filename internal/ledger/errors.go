package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	ErrNotFound         = errors.New("negotiation not found")
	ErrNotConnected     = errors.New("no identity connected")
	ErrNegotiationFull  = errors.New("negotiation is already full")
	ErrCannotJoinOwn    = errors.New("cannot join your own negotiation")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrAlreadySubmitted = errors.New("already submitted")
	ErrNotComplete      = errors.New("negotiation not complete")
)

// Program error codes as reported by the gateway.
const (
	CodeNegotiationFull  = "NegotiationFull"
	CodeCannotJoinOwn    = "CannotJoinOwnNegotiation"
	CodeUnauthorized     = "Unauthorized"
	CodeAlreadySubmitted = "AlreadySubmitted"
	CodeNotComplete      = "NotComplete"
	CodeNotFound         = "NotFound"
)

var codeErrors = map[string]error{
	CodeNegotiationFull:  ErrNegotiationFull,
	CodeCannotJoinOwn:    ErrCannotJoinOwn,
	CodeUnauthorized:     ErrUnauthorized,
	CodeAlreadySubmitted: ErrAlreadySubmitted,
	CodeNotComplete:      ErrNotComplete,
	CodeNotFound:         ErrNotFound,
}

// ErrorBody is the gateway's error response.
type ErrorBody struct {
	Code    string `json:"error"`
	Message string `json:"message,omitempty"`
}

// CodeFor returns the wire code of a program error, empty if err is not one.
func CodeFor(err error) string {
	for code, sentinel := range codeErrors {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return ""
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var body ErrorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Code != "" {
		if sentinel, ok := codeErrors[body.Code]; ok {
			return sentinel
		}
		return fmt.Errorf("ledger error %s: %s", body.Code, body.Message)
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return fmt.Errorf("ledger returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}
