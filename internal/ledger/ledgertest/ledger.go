// Package ledgertest provides an in-memory negotiation gateway that
// enforces the program rules, for tests.
package ledgertest

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/mr-tron/base58"

	"github.com/odtboun/River/internal/ledger"
	"github.com/odtboun/River/internal/model"
)

var tokenKey = []byte("ledgertest-secret")

type negotiation struct {
	rec         model.NegotiationRecord
	offer       *model.Amounts
	requirement *model.Amounts
}

// Ledger is safe for concurrent use.
type Ledger struct {
	// TokenTTL is the lifetime of issued secure channel tokens.
	TokenTTL time.Duration

	mu           sync.Mutex
	negotiations map[int64]*negotiation
	nonces       map[string]bool
	challenges   map[string]string
	calls        map[string]int
	confidential int
	failNext     error
	holds        map[string]chan struct{}
}

const (
	gateTx    = "tx"
	gateAuth  = "auth"
	gateFetch = "fetch"
)

func New() *Ledger {
	return &Ledger{
		TokenTTL:     time.Hour,
		negotiations: make(map[int64]*negotiation),
		nonces:       make(map[string]bool),
		challenges:   make(map[string]string),
		calls:        make(map[string]int),
		holds:        make(map[string]chan struct{}),
	}
}

// Server starts an httptest server for the gateway. Close it when done.
func (l *Ledger) Server() *httptest.Server {
	return httptest.NewServer(l.Handler())
}

func (l *Ledger) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /negotiations/{id}", l.handleFetch)
	mux.HandleFunc("POST /negotiations", l.handleTx)
	mux.HandleFunc("POST /negotiations/{id}/{action}", l.handleTx)
	mux.HandleFunc("GET /auth/challenge", l.handleChallenge)
	mux.HandleFunc("POST /auth/token", l.handleToken)
	return mux
}

// Record returns a copy of the stored record.
func (l *Ledger) Record(id int64) (*model.NegotiationRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, ok := l.negotiations[id]
	if !ok {
		return nil, false
	}
	return n.rec.Clone(), true
}

// Calls counts accepted and rejected transactions per instruction.
func (l *Ledger) Calls(instruction string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[instruction]
}

// ConfidentialCalls counts transactions sent with a channel token.
func (l *Ledger) ConfidentialCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.confidential
}

// FailNext makes the next transaction fail with err, which must be one of
// the ledger sentinels or any other error for a 500.
func (l *Ledger) FailNext(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failNext = err
}

// Hold blocks every transaction until the returned func is called.
func (l *Ledger) Hold() (release func()) {
	return l.holdGate(gateTx)
}

// HoldAuth blocks secure channel token exchanges until released.
func (l *Ledger) HoldAuth() (release func()) {
	return l.holdGate(gateAuth)
}

// HoldFetch blocks record reads until released.
func (l *Ledger) HoldFetch() (release func()) {
	return l.holdGate(gateFetch)
}

func (l *Ledger) holdGate(gate string) func() {
	ch := make(chan struct{})
	l.mu.Lock()
	l.holds[gate] = ch
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			if l.holds[gate] == ch {
				delete(l.holds, gate)
			}
			l.mu.Unlock()
			close(ch)
		})
	}
}

// wait blocks on a held gate. It reports false when the request went away.
func (l *Ledger) wait(r *http.Request, gate string) bool {
	l.mu.Lock()
	ch := l.holds[gate]
	l.mu.Unlock()
	if ch == nil {
		return true
	}
	select {
	case <-ch:
		return true
	case <-r.Context().Done():
		return false
	}
}

func (l *Ledger) handleFetch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", err.Error())
		return
	}
	if !l.wait(r, gateFetch) {
		return
	}
	rec, ok := l.Record(id)
	if !ok {
		writeError(w, http.StatusNotFound, ledger.CodeNotFound, "negotiation not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (l *Ledger) handleTx(w http.ResponseWriter, r *http.Request) {
	var tx ledger.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", err.Error())
		return
	}
	if err := verify(tx); err != nil {
		writeError(w, http.StatusUnauthorized, ledger.CodeUnauthorized, err.Error())
		return
	}
	if !matches(r.PathValue("action"), tx.Instruction) {
		writeError(w, http.StatusBadRequest, "BadRequest", "instruction does not match route")
		return
	}

	confidential := false
	if auth := r.Header.Get("Authorization"); auth != "" {
		if err := verifyToken(strings.TrimPrefix(auth, "Bearer ")); err != nil {
			writeError(w, http.StatusUnauthorized, ledger.CodeUnauthorized, err.Error())
			return
		}
		confidential = true
	}

	if !l.wait(r, gateTx) {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls[tx.Instruction]++
	if confidential {
		l.confidential++
	}
	if l.nonces[tx.Nonce] {
		writeError(w, http.StatusConflict, "ReplayedNonce", "nonce already used")
		return
	}
	l.nonces[tx.Nonce] = true

	if err := l.failNext; err != nil {
		l.failNext = nil
		if code := ledger.CodeFor(err); code != "" {
			writeError(w, http.StatusConflict, code, err.Error())
		} else {
			writeError(w, http.StatusInternalServerError, "Internal", err.Error())
		}
		return
	}

	if err := l.apply(tx); err != nil {
		status := http.StatusConflict
		if errors.Is(err, ledger.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, ledger.CodeFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"signature": tx.Signature})
}

// apply runs the program rules. Callers hold l.mu.
func (l *Ledger) apply(tx ledger.Transaction) error {
	if tx.Instruction == ledger.InstructionCreate {
		if _, exists := l.negotiations[tx.NegotiationID]; exists {
			return ledger.ErrAlreadySubmitted
		}
		l.negotiations[tx.NegotiationID] = &negotiation{rec: model.NegotiationRecord{
			ID:       tx.NegotiationID,
			Address:  "neg-" + strconv.FormatInt(tx.NegotiationID, 10),
			Employer: tx.Signer,
			Status:   model.StatusCreated,
			Result:   model.ResultPending,
		}}
		return nil
	}

	n, ok := l.negotiations[tx.NegotiationID]
	if !ok {
		return ledger.ErrNotFound
	}

	switch tx.Instruction {
	case ledger.InstructionJoin:
		if n.rec.Candidate != nil {
			return ledger.ErrNegotiationFull
		}
		if n.rec.Employer == tx.Signer {
			return ledger.ErrCannotJoinOwn
		}
		candidate := tx.Signer
		n.rec.Candidate = &candidate
		n.rec.Status = model.StatusReady
	case ledger.InstructionSubmitOffer:
		if n.rec.Employer != tx.Signer {
			return ledger.ErrUnauthorized
		}
		if n.offer != nil {
			return ledger.ErrAlreadySubmitted
		}
		a := amountsOf(tx)
		n.offer = &a
		n.rec.EmployerOffer = model.Submission{Base: true, Bonus: true, Equity: true}
		l.resolve(n)
	case ledger.InstructionSubmitRequirement:
		if n.rec.Candidate == nil || *n.rec.Candidate != tx.Signer {
			return ledger.ErrUnauthorized
		}
		if n.requirement != nil {
			return ledger.ErrAlreadySubmitted
		}
		a := amountsOf(tx)
		n.requirement = &a
		n.rec.CandidateRequirement = model.Submission{Base: true, Bonus: true, Equity: true}
		l.resolve(n)
	case ledger.InstructionFinalize:
		if n.rec.Status != model.StatusComplete {
			return ledger.ErrNotComplete
		}
		n.offer = nil
		n.requirement = nil
		n.rec.EmployerOffer = model.Submission{}
		n.rec.CandidateRequirement = model.Submission{}
		n.rec.Status = model.StatusFinalized
	default:
		return fmt.Errorf("unknown instruction %q", tx.Instruction)
	}
	return nil
}

func (l *Ledger) resolve(n *negotiation) {
	if n.offer == nil || n.requirement == nil {
		return
	}
	emp, cand := *n.offer, *n.requirement
	total := cand.EffectiveTotal() <= emp.EffectiveTotal()
	n.rec.MatchDetails = &model.MatchDetails{
		Base:   cand.Base <= emp.Base,
		Bonus:  cand.Bonus <= emp.Bonus,
		Equity: cand.Equity <= emp.Equity,
		Total:  total,
	}
	n.rec.Result = model.ResultNoMatch
	if total {
		n.rec.Result = model.ResultMatch
	}
	n.rec.Status = model.StatusComplete
}

func (l *Ledger) handleChallenge(w http.ResponseWriter, r *http.Request) {
	pub := r.URL.Query().Get("pubkey")
	if pub == "" {
		writeError(w, http.StatusBadRequest, "BadRequest", "missing pubkey")
		return
	}
	challenge := "river-tee:" + uuid.NewString()
	l.mu.Lock()
	l.challenges[pub] = challenge
	l.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"challenge": challenge})
}

func (l *Ledger) handleToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PublicKey string `json:"publicKey"`
		Challenge string `json:"challenge"`
		Signature string `json:"signature"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", err.Error())
		return
	}
	if !l.wait(r, gateAuth) {
		return
	}

	l.mu.Lock()
	want := l.challenges[req.PublicKey]
	delete(l.challenges, req.PublicKey)
	ttl := l.TokenTTL
	l.mu.Unlock()

	if want == "" || want != req.Challenge {
		writeError(w, http.StatusUnauthorized, ledger.CodeUnauthorized, "unknown challenge")
		return
	}
	if err := verifySig(req.PublicKey, []byte(req.Challenge), req.Signature); err != nil {
		writeError(w, http.StatusUnauthorized, ledger.CodeUnauthorized, err.Error())
		return
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   req.PublicKey,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}).SignedString(tokenKey)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func verify(tx ledger.Transaction) error {
	payload, err := tx.Payload()
	if err != nil {
		return err
	}
	return verifySig(tx.Signer, payload, tx.Signature)
}

func verifySig(publicKey string, msg []byte, signature string) error {
	pub, err := base58.Decode(publicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid signer key")
	}
	sig, err := base58.Decode(signature)
	if err != nil {
		return fmt.Errorf("invalid signature encoding")
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), msg, sig) {
		return fmt.Errorf("signature verification failed")
	}
	return nil
}

func verifyToken(raw string) error {
	_, err := jwt.Parse(raw, func(*jwt.Token) (any, error) { return tokenKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	return err
}

func matches(action, instruction string) bool {
	switch action {
	case "":
		return instruction == ledger.InstructionCreate
	case "join":
		return instruction == ledger.InstructionJoin
	case "employer-budget":
		return instruction == ledger.InstructionSubmitOffer
	case "candidate-requirement":
		return instruction == ledger.InstructionSubmitRequirement
	case "finalize":
		return instruction == ledger.InstructionFinalize
	}
	return false
}

func amountsOf(tx ledger.Transaction) model.Amounts {
	if tx.Args == nil {
		return model.Amounts{}
	}
	return *tx.Args
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ledger.ErrorBody{Code: code, Message: msg})
}
