// Package client implements compatibility-checked runtime call
// dispatch and the transaction lifecycle state machine: signing,
// broadcast, provisional best-block inclusion tracking with reorg
// regression, and finalized settlement with decoded dispatch outcomes.
package client

import (
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/alialobidm/polkadot-api/chainhead"
	"github.com/alialobidm/polkadot-api/internal/hexutil"
	"github.com/alialobidm/polkadot-api/internal/logz"
	"github.com/alialobidm/polkadot-api/metadata"
)

// ClientConfig defines configuration for a Client
type ClientConfig struct {
	// Bounded size of the runtime context/codec cache
	CacheSize int
	// Hasher computes the content hash of a signed extrinsic.
	// Defaults to blake2b-256.
	Hasher func([]byte) [32]byte
	// NonceCall queries an account's next transaction nonce
	NonceCall metadata.Descriptor
	// FeeCall dry-runs an extrinsic for its dispatch fee
	FeeCall metadata.Descriptor
	// ValidateCall dry-runs pool validity of an extrinsic
	ValidateCall metadata.Descriptor
	// LogLevel is the minimum level for the client's logger
	LogLevel logz.LogLevel
}

// DefaultClientConfig returns a default client configuration
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		CacheSize:    128,
		Hasher:       blake2b.Sum256,
		NonceCall:    metadata.NewRuntimeCallDescriptor("AccountNonceApi", "account_nonce", nil),
		FeeCall:      metadata.NewRuntimeCallDescriptor("TransactionPaymentApi", "query_info", nil),
		ValidateCall: metadata.NewRuntimeCallDescriptor("TaggedTransactionQueue", "validate_transaction", nil),
		LogLevel:     logz.INFO,
	}
}

// Client is the root of the call-dispatch and transaction layer. It
// owns the bounded runtime context/codec cache, so independent clients
// in one process never share resolution state.
type Client struct {
	source chainhead.Source
	cache  *runtimeCache
	config *ClientConfig
	logger *logz.Logger
}

// NewClient creates a client over a chain-head source and a
// codec/metadata resolver.
func NewClient(source chainhead.Source, resolver metadata.Resolver, config *ClientConfig) (*Client, error) {
	if source == nil {
		return nil, fmt.Errorf("chain-head source cannot be nil")
	}
	if resolver == nil {
		return nil, fmt.Errorf("metadata resolver cannot be nil")
	}
	if config == nil {
		config = DefaultClientConfig()
	}
	if config.CacheSize <= 0 {
		config.CacheSize = 128
	}
	if config.Hasher == nil {
		config.Hasher = blake2b.Sum256
	}

	cache, err := newRuntimeCache(resolver, config.CacheSize)
	if err != nil {
		return nil, err
	}

	return &Client{
		source: source,
		cache:  cache,
		config: config,
		logger: logz.New(config.LogLevel, "client"),
	}, nil
}

// RuntimeCall binds a runtime API descriptor to this client
func (c *Client) RuntimeCall(d metadata.Descriptor) (*RuntimeCall, error) {
	if d.Kind() != metadata.KindRuntimeCall {
		return nil, fmt.Errorf("descriptor %s is not a runtime API call", d.Name())
	}
	return &RuntimeCall{
		desc:   d,
		gate:   &CompatibilityGate{desc: d, client: c},
		client: c,
	}, nil
}

// TxCall binds a transaction descriptor to this client
func (c *Client) TxCall(d metadata.Descriptor) (*TxCall, error) {
	if d.Kind() != metadata.KindTxCall {
		return nil, fmt.Errorf("descriptor %s is not a transaction call", d.Name())
	}

	nonce, err := c.RuntimeCall(c.config.NonceCall)
	if err != nil {
		return nil, fmt.Errorf("invalid nonce call descriptor: %w", err)
	}
	fee, err := c.RuntimeCall(c.config.FeeCall)
	if err != nil {
		return nil, fmt.Errorf("invalid fee call descriptor: %w", err)
	}
	validate, err := c.RuntimeCall(c.config.ValidateCall)
	if err != nil {
		return nil, fmt.Errorf("invalid validate call descriptor: %w", err)
	}

	return &TxCall{
		desc:     d,
		gate:     &CompatibilityGate{desc: d, client: c},
		client:   c,
		nonce:    nonce,
		fee:      fee,
		validate: validate,
	}, nil
}

// TxCallFor binds a decoded call to this client through its derived
// descriptor. Derived descriptors carry no structural checksum, so the
// call dispatches unverified; re-dispatch through a generated
// descriptor to keep verification.
func (c *Client) TxCallFor(data metadata.CallData) (*TxCall, error) {
	return c.TxCall(data.Descriptor())
}

// hash returns the 0x-hex content hash of the given bytes
func (c *Client) hash(b []byte) string {
	h := c.config.Hasher(b)
	return hexutil.Encode(h[:])
}
