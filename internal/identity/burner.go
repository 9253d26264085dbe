package identity

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/mr-tron/base58"

	"github.com/odtboun/River/internal/model"
)

// Burner is the local fallback identity: an ed25519 keypair kept in the
// keystore so the same device keeps the same identity.
type Burner struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

func NewBurner() (*Burner, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating keypair: %w", err)
	}
	return &Burner{priv: priv, pub: pub}, nil
}

// BurnerFromSecret restores a burner from its 64-byte secret key (seed
// followed by public key).
func BurnerFromSecret(secret []byte) (*Burner, error) {
	if len(secret) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: secret key must be %d bytes, got %d", ErrInvalidBackup, ed25519.PrivateKeySize, len(secret))
	}
	priv := ed25519.NewKeyFromSeed(secret[:ed25519.SeedSize])
	if !priv.Equal(ed25519.PrivateKey(secret)) {
		return nil, fmt.Errorf("%w: public key does not match seed", ErrInvalidBackup)
	}
	return &Burner{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

func (b *Burner) PublicKey() string {
	return base58.Encode(b.pub)
}

func (b *Burner) SignTransaction(_ context.Context, payload []byte) ([]byte, error) {
	return ed25519.Sign(b.priv, payload), nil
}

func (b *Burner) SignMessage(_ context.Context, msg []byte) ([]byte, error) {
	return ed25519.Sign(b.priv, msg), nil
}

func (b *Burner) CanSignMessage() bool {
	return true
}

// Wallet is the persisted form of the burner.
func (b *Burner) Wallet(owner string) model.Wallet {
	secret := make([]byte, len(b.priv))
	copy(secret, b.priv)
	return model.Wallet{
		Owner:     owner,
		PublicKey: b.PublicKey(),
		SecretKey: secret,
		CreatedAt: time.Now().UTC(),
	}
}

// Verify checks sig against a base58 public key.
func Verify(publicKey string, msg, sig []byte) bool {
	pub, err := base58.Decode(publicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig)
}
