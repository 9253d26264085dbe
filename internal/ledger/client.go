// Package ledger talks to the gateway in front of the negotiation program.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/odtboun/River/common/id"
	"github.com/odtboun/River/common/logger"
	"github.com/odtboun/River/internal/model"
)

// Reader fetches negotiation records.
type Reader interface {
	Fetch(ctx context.Context, id int64) (*model.NegotiationRecord, error)
}

// Commands sends signed instructions and returns the transaction signature.
type Commands interface {
	Create(ctx context.Context) (int64, string, error)
	Join(ctx context.Context, id int64) (string, error)
	SubmitOffer(ctx context.Context, id int64, amounts model.Amounts) (string, error)
	SubmitRequirement(ctx context.Context, id int64, amounts model.Amounts) (string, error)
	Finalize(ctx context.Context, id int64) (string, error)
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// WithTEE enables the secure channel upgrade against url.
func WithTEE(url string) Option {
	return func(cl *Client) {
		cl.teeURL = strings.TrimRight(url, "/")
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

// NewHTTPClient is the instrumented client shared by every ledger Client.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// Client is bound to one signer. Fetch works without one.
type Client struct {
	baseURL    string
	teeURL     string
	httpClient *http.Client
	signer     Signer
	logger     *slog.Logger

	mu      sync.Mutex
	tee     TEEStatus
	token   string
	expires time.Time
	// gen is bumped by ResetTEE; an upgrade only lands in the generation
	// it started in.
	gen uint64
}

func New(baseURL string, signer Signer, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: NewHTTPClient(15 * time.Second),
		signer:     signer,
		logger:     slog.Default(),
		tee:        TEEDisconnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type txResponse struct {
	Signature string `json:"signature"`
}

func (c *Client) Fetch(ctx context.Context, negotiationID int64) (*model.NegotiationRecord, error) {
	url := c.baseURL + "/negotiations/" + strconv.FormatInt(negotiationID, 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building fetch request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching negotiation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	var rec model.NegotiationRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decoding negotiation: %w", err)
	}
	return &rec, nil
}

// Create allocates a negotiation id and creates it with the signer as
// employer.
func (c *Client) Create(ctx context.Context) (int64, string, error) {
	negotiationID := id.New()
	sig, err := c.send(ctx, InstructionCreate, negotiationID, "/negotiations", nil)
	if err != nil {
		return 0, "", err
	}
	return negotiationID, sig, nil
}

func (c *Client) Join(ctx context.Context, negotiationID int64) (string, error) {
	return c.send(ctx, InstructionJoin, negotiationID, negotiationPath(negotiationID, "join"), nil)
}

func (c *Client) SubmitOffer(ctx context.Context, negotiationID int64, amounts model.Amounts) (string, error) {
	return c.send(ctx, InstructionSubmitOffer, negotiationID, negotiationPath(negotiationID, "employer-budget"), &amounts)
}

func (c *Client) SubmitRequirement(ctx context.Context, negotiationID int64, amounts model.Amounts) (string, error) {
	return c.send(ctx, InstructionSubmitRequirement, negotiationID, negotiationPath(negotiationID, "candidate-requirement"), &amounts)
}

func (c *Client) Finalize(ctx context.Context, negotiationID int64) (string, error) {
	return c.send(ctx, InstructionFinalize, negotiationID, negotiationPath(negotiationID, "finalize"), nil)
}

func (c *Client) send(ctx context.Context, instruction string, negotiationID int64, path string, args *model.Amounts) (sig string, err error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		NegotiationID: logger.Ptr(negotiationID),
		Instruction:   logger.Ptr(instruction),
		Component:     "river.ledger",
	})
	sc := logger.StartSpan(ctx, "ledger."+instruction,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.Int64("negotiation.id", negotiationID),
			attribute.String("ledger.instruction", instruction),
		),
	)
	defer sc.End()
	ctx = sc.Context()
	defer func() {
		if err != nil {
			sc.RecordError(err)
		}
	}()

	tx, err := buildTx(ctx, c.signer, instruction, negotiationID, args)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(tx)
	if err != nil {
		return "", fmt.Errorf("encoding transaction: %w", err)
	}

	base, token := c.endpoint()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building %s request: %w", instruction, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending %s: %w", instruction, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		err := decodeError(resp)
		c.logger.WarnContext(ctx, "ledger rejected transaction", "error", err, "status", resp.StatusCode)
		return "", err
	}

	var out txResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding %s response: %w", instruction, err)
	}
	c.logger.InfoContext(ctx, "transaction confirmed",
		"signature", logger.Truncate(out.Signature, 16),
		"confidential", token != "",
		"duration_ms", time.Since(start).Milliseconds())
	return out.Signature, nil
}

func negotiationPath(negotiationID int64, action string) string {
	return "/negotiations/" + strconv.FormatInt(negotiationID, 10) + "/" + action
}
