package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"

	"github.com/odtboun/River/internal/model"
)

// Instruction names understood by the negotiation program.
const (
	InstructionCreate            = "create_negotiation"
	InstructionJoin              = "join_negotiation"
	InstructionSubmitOffer       = "submit_employer_budget"
	InstructionSubmitRequirement = "submit_candidate_requirement"
	InstructionFinalize          = "finalize_negotiation"
)

// Transaction is a signed instruction. The signature covers the JSON
// encoding of every other field.
type Transaction struct {
	Instruction   string         `json:"instruction"`
	NegotiationID int64          `json:"negotiation_id,string"`
	Signer        string         `json:"signer"`
	Nonce         string         `json:"nonce"`
	Args          *model.Amounts `json:"args,omitempty"`
	Signature     string         `json:"signature,omitempty"`
}

// Payload is the byte string the signer signs.
func (tx Transaction) Payload() ([]byte, error) {
	tx.Signature = ""
	return json.Marshal(tx)
}

// Signer authorizes transactions.
type Signer interface {
	PublicKey() string
	SignTransaction(ctx context.Context, payload []byte) ([]byte, error)
}

func buildTx(ctx context.Context, signer Signer, instruction string, id int64, args *model.Amounts) (Transaction, error) {
	if signer == nil || signer.PublicKey() == "" {
		return Transaction{}, ErrNotConnected
	}
	tx := Transaction{
		Instruction:   instruction,
		NegotiationID: id,
		Signer:        signer.PublicKey(),
		Nonce:         uuid.NewString(),
		Args:          args,
	}
	payload, err := tx.Payload()
	if err != nil {
		return Transaction{}, fmt.Errorf("encoding transaction: %w", err)
	}
	sig, err := signer.SignTransaction(ctx, payload)
	if err != nil {
		return Transaction{}, fmt.Errorf("signing transaction: %w", err)
	}
	tx.Signature = base58.Encode(sig)
	return tx, nil
}
