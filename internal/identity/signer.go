// Package identity provides the public identity that signs ledger
// commands for one app session.
package identity

import (
	"context"
	"errors"
)

var (
	ErrNotConnected              = errors.New("no identity connected")
	ErrMessageSigningUnsupported = errors.New("identity cannot sign messages")
	ErrInvalidBackup             = errors.New("invalid wallet backup")
	ErrNoWallet                  = errors.New("no local wallet")
)

// Signer is an identity that can authorize ledger transactions.
type Signer interface {
	PublicKey() string
	SignTransaction(ctx context.Context, payload []byte) ([]byte, error)
}

// MessageSigner is implemented by identities that can sign arbitrary
// messages, which the secure channel handshake needs.
type MessageSigner interface {
	SignMessage(ctx context.Context, msg []byte) ([]byte, error)
}

// messageCapable lets a signer report at runtime whether SignMessage works.
type messageCapable interface {
	CanSignMessage() bool
}

func canSignMessage(s Signer) bool {
	if _, ok := s.(MessageSigner); !ok {
		return false
	}
	if c, ok := s.(messageCapable); ok {
		return c.CanSignMessage()
	}
	return true
}
