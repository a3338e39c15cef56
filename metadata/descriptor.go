// Package metadata defines call descriptors and the boundary with the
// codec/metadata engine that turns runtime metadata into encoders,
// decoders and structural checksums.
package metadata

import "fmt"

// CallKind distinguishes the two addressable call families of a runtime
type CallKind int

const (
	// KindRuntimeCall addresses a runtime API call by namespace/method
	KindRuntimeCall CallKind = iota
	// KindTxCall addresses a transaction call by pallet/call
	KindTxCall
)

// Descriptor identifies a remote call together with the structural
// checksum computed for it at descriptor-generation time. Descriptors
// are immutable; all fields are fixed at construction.
type Descriptor struct {
	kind      CallKind
	namespace string // runtime API namespace, e.g. "AccountNonceApi"
	method    string // runtime API method, e.g. "account_nonce"
	pallet    string // transaction pallet, e.g. "Balances"
	call      string // transaction call, e.g. "transfer_keep_alive"
	checksum  []byte
}

// NewRuntimeCallDescriptor creates a descriptor for a runtime API call.
// A nil checksum opts the descriptor out of structural verification;
// generated descriptors always carry one.
func NewRuntimeCallDescriptor(namespace, method string, checksum []byte) Descriptor {
	return Descriptor{
		kind:      KindRuntimeCall,
		namespace: namespace,
		method:    method,
		checksum:  cloneBytes(checksum),
	}
}

// NewTxCallDescriptor creates a descriptor for a transaction call
func NewTxCallDescriptor(pallet, call string, checksum []byte) Descriptor {
	return Descriptor{
		kind:     KindTxCall,
		pallet:   pallet,
		call:     call,
		checksum: cloneBytes(checksum),
	}
}

// Kind returns the call family of the descriptor
func (d Descriptor) Kind() CallKind {
	return d.kind
}

// Name returns the human-readable identity of the call, used in error
// messages: "Namespace.method" for runtime API calls, "Pallet.call"
// for transaction calls.
func (d Descriptor) Name() string {
	if d.kind == KindRuntimeCall {
		return fmt.Sprintf("%s.%s", d.namespace, d.method)
	}
	return fmt.Sprintf("%s.%s", d.pallet, d.call)
}

// RPCMethod returns the state-call method name for a runtime API
// descriptor, e.g. "AccountNonceApi_account_nonce".
func (d Descriptor) RPCMethod() string {
	return fmt.Sprintf("%s_%s", d.namespace, d.method)
}

// Pallet returns the pallet name of a transaction descriptor
func (d Descriptor) Pallet() string {
	return d.pallet
}

// Call returns the call name of a transaction descriptor
func (d Descriptor) Call() string {
	return d.call
}

// Checksum returns a copy of the statically computed structural
// checksum, or nil when the descriptor opted out of verification.
func (d Descriptor) Checksum() []byte {
	return cloneBytes(d.checksum)
}

// CacheKey returns the cache/coalescing key for this descriptor
// resolved at a given block identity.
func (d Descriptor) CacheKey(blockHash string) string {
	return fmt.Sprintf("%d|%s|%s", d.kind, d.Name(), blockHash)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
