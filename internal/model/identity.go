package model

import "time"

type IdentityMode string

const (
	IdentityNone          IdentityMode = "none"
	IdentityLocalFallback IdentityMode = "local-fallback"
	IdentityExternal      IdentityMode = "external"
)

// Identity is the active public identity. The zero value means none.
type Identity struct {
	PublicKey string       `json:"public_key,omitempty"`
	Mode      IdentityMode `json:"mode"`
}

func (i Identity) Connected() bool {
	return i.PublicKey != "" && i.Mode != "" && i.Mode != IdentityNone
}

// Wallet is a persisted local fallback identity.
type Wallet struct {
	Owner     string    `json:"owner"`
	PublicKey string    `json:"public_key"`
	SecretKey []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}
