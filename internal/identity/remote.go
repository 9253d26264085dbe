package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mr-tron/base58"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// RemoteSigner is an external identity reached through a wallet bridge.
// Keys never leave the bridge.
type RemoteSigner struct {
	baseURL    string
	httpClient *http.Client
	publicKey  string
	signMsg    bool
}

type capabilities struct {
	PublicKey   string `json:"publicKey"`
	SignMessage bool   `json:"signMessage"`
}

type signRequest struct {
	Payload string `json:"payload"`
}

type signResponse struct {
	Signature string `json:"signature"`
}

// DialRemote asks the bridge which key it holds and what it can sign.
func DialRemote(ctx context.Context, baseURL string, httpClient *http.Client) (*RemoteSigner, error) {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	s := &RemoteSigner{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/capabilities", nil)
	if err != nil {
		return nil, fmt.Errorf("building capabilities request: %w", err)
	}
	var caps capabilities
	if err := s.do(req, &caps); err != nil {
		return nil, fmt.Errorf("reading wallet capabilities: %w", err)
	}
	if caps.PublicKey == "" {
		return nil, fmt.Errorf("wallet bridge reported no public key")
	}
	if _, err := base58.Decode(caps.PublicKey); err != nil {
		return nil, fmt.Errorf("wallet bridge public key: %w", err)
	}
	s.publicKey = caps.PublicKey
	s.signMsg = caps.SignMessage
	return s, nil
}

func (s *RemoteSigner) PublicKey() string {
	return s.publicKey
}

func (s *RemoteSigner) CanSignMessage() bool {
	return s.signMsg
}

func (s *RemoteSigner) SignTransaction(ctx context.Context, payload []byte) ([]byte, error) {
	return s.sign(ctx, "/sign/transaction", payload)
}

func (s *RemoteSigner) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	if !s.signMsg {
		return nil, ErrMessageSigningUnsupported
	}
	return s.sign(ctx, "/sign/message", msg)
}

func (s *RemoteSigner) sign(ctx context.Context, path string, payload []byte) ([]byte, error) {
	body, err := json.Marshal(signRequest{Payload: base58.Encode(payload)})
	if err != nil {
		return nil, fmt.Errorf("encoding sign request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building sign request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp signResponse
	if err := s.do(req, &resp); err != nil {
		return nil, err
	}
	sig, err := base58.Decode(resp.Signature)
	if err != nil {
		return nil, fmt.Errorf("decoding signature: %w", err)
	}
	return sig, nil
}

func (s *RemoteSigner) do(req *http.Request, out any) error {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("wallet bridge request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotImplemented {
		return ErrMessageSigningUnsupported
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("wallet bridge returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding wallet bridge response: %w", err)
	}
	return nil
}
