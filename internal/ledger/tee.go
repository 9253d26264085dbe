package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mr-tron/base58"
)

// TEEStatus is the state of the confidential channel.
type TEEStatus string

const (
	TEEDisconnected TEEStatus = "disconnected"
	TEEConnecting   TEEStatus = "connecting"
	TEEConnected    TEEStatus = "connected"
	TEEUnsupported  TEEStatus = "unsupported"
)

var (
	ErrTEEDisabled = errors.New("secure channel not configured")
	ErrTEEReset    = errors.New("secure channel reset during upgrade")
)

// MessageSigner signs the channel challenge.
type MessageSigner interface {
	PublicKey() string
	SignMessage(ctx context.Context, msg []byte) ([]byte, error)
	CanSignMessage() bool
}

type challengeResponse struct {
	Challenge string `json:"challenge"`
}

type tokenRequest struct {
	PublicKey string `json:"publicKey"`
	Challenge string `json:"challenge"`
	Signature string `json:"signature"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// TEEStatus reports the channel state. An expired token reads as
// disconnected.
func (c *Client) TEEStatus() TEEStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked()
	return c.tee
}

// UpgradeTEE authenticates against the secure endpoint. Commands use the
// standard endpoint until it succeeds and whenever it fails; the returned
// error is informational. An upgrade overtaken by ResetTEE changes nothing
// and returns ErrTEEReset.
func (c *Client) UpgradeTEE(ctx context.Context, signer MessageSigner) (TEEStatus, error) {
	gen := c.generation()
	if c.teeURL == "" {
		status, _ := c.setTEE(gen, TEEDisconnected, "", time.Time{})
		return status, ErrTEEDisabled
	}
	if signer == nil || signer.PublicKey() == "" {
		status, _ := c.setTEE(gen, TEEDisconnected, "", time.Time{})
		return status, ErrNotConnected
	}
	if !signer.CanSignMessage() {
		status, _ := c.setTEE(gen, TEEUnsupported, "", time.Time{})
		return status, nil
	}

	if status, ok := c.setTEE(gen, TEEConnecting, "", time.Time{}); !ok {
		return status, ErrTEEReset
	}

	token, expires, err := c.authenticate(ctx, signer)
	if err != nil {
		status, ok := c.setTEE(gen, TEEDisconnected, "", time.Time{})
		if !ok {
			return status, ErrTEEReset
		}
		c.logger.InfoContext(ctx, "secure channel unavailable, using standard endpoint", "error", err)
		return status, err
	}

	status, ok := c.setTEE(gen, TEEConnected, token, expires)
	if !ok {
		c.logger.DebugContext(ctx, "discarding secure channel token for a replaced identity")
		return status, ErrTEEReset
	}
	c.logger.InfoContext(ctx, "secure channel connected", "expires", expires)
	return status, nil
}

// ResetTEE drops the channel, e.g. when the identity changes. Upgrades
// still in flight are discarded.
func (c *Client) ResetTEE() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.tee = TEEDisconnected
	c.token = ""
	c.expires = time.Time{}
}

func (c *Client) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *Client) authenticate(ctx context.Context, signer MessageSigner) (string, time.Time, error) {
	q := url.Values{"pubkey": {signer.PublicKey()}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.teeURL+"/auth/challenge?"+q.Encode(), nil)
	if err != nil {
		return "", time.Time{}, err
	}
	var ch challengeResponse
	if err := c.doJSON(req, &ch); err != nil {
		return "", time.Time{}, fmt.Errorf("requesting challenge: %w", err)
	}

	sig, err := signer.SignMessage(ctx, []byte(ch.Challenge))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing challenge: %w", err)
	}

	body, err := json.Marshal(tokenRequest{
		PublicKey: signer.PublicKey(),
		Challenge: ch.Challenge,
		Signature: base58.Encode(sig),
	})
	if err != nil {
		return "", time.Time{}, err
	}
	req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.teeURL+"/auth/token", bytes.NewReader(body))
	if err != nil {
		return "", time.Time{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var tok tokenResponse
	if err := c.doJSON(req, &tok); err != nil {
		return "", time.Time{}, fmt.Errorf("exchanging token: %w", err)
	}

	expires, err := tokenExpiry(tok.Token)
	if err != nil {
		return "", time.Time{}, err
	}
	if !expires.IsZero() && !expires.After(time.Now()) {
		return "", time.Time{}, fmt.Errorf("token already expired")
	}
	return tok.Token, expires, nil
}

// tokenExpiry reads exp without verifying the signature; the endpoint
// verifies its own tokens. A token without exp never expires locally.
func tokenExpiry(token string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, fmt.Errorf("parsing token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}
	return claims.ExpiresAt.Time, nil
}

// endpoint picks the base URL and bearer token for a command.
func (c *Client) endpoint() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked()
	if c.tee == TEEConnected && c.token != "" {
		return c.teeURL, c.token
	}
	return c.baseURL, ""
}

func (c *Client) expireLocked() {
	if c.tee == TEEConnected && !c.expires.IsZero() && !c.expires.After(time.Now()) {
		c.tee = TEEDisconnected
		c.token = ""
		c.expires = time.Time{}
	}
}

// setTEE applies the state if gen is still current. It returns the state in
// effect and whether it was applied.
func (c *Client) setTEE(gen uint64, status TEEStatus, token string, expires time.Time) (TEEStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return c.tee, false
	}
	c.tee = status
	c.token = token
	c.expires = expires
	return status, true
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
