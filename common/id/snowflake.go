package id

import (
	"errors"
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var ErrNotInitialized = errors.New("id generator not initialized")

var (
	node *snowflake.Node
	once sync.Once
)

// Init initializes the Snowflake node with the given node ID.
// Only the first call has an effect.
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// New generates a new time-ordered int64 ID. Negotiation IDs are allocated
// client-side before the create transaction is sent, so they must be unique
// across every instance that talks to the same ledger.
func New() int64 {
	if node == nil {
		panic(ErrNotInitialized)
	}
	return node.Generate().Int64()
}

// NewString is New rendered in base 10, used for cookie values.
func NewString() string {
	return strconv.FormatInt(New(), 10)
}

// Ready reports whether Init has produced a usable node.
func Ready() bool {
	return node != nil
}

// Parse validates a base-10 snowflake string.
func Parse(s string) (int64, error) {
	sf, err := snowflake.ParseString(s)
	if err != nil {
		return 0, err
	}
	if sf.Int64() <= 0 {
		return 0, strconv.ErrSyntax
	}
	return sf.Int64(), nil
}
