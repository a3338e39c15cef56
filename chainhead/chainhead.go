// Package chainhead defines the boundary with the chain-head
// collaborator: block descriptors, runtime events, and the Source
// interface supplying state calls, transaction submission and ordered
// best/finalized block streams.
package chainhead

import "context"

// PhaseKind identifies which execution phase of a block emitted an event
type PhaseKind int

const (
	// PhaseApplyExtrinsic marks events emitted while applying an extrinsic
	PhaseApplyExtrinsic PhaseKind = iota
	// PhaseInitialization marks events emitted during block initialization
	PhaseInitialization
	// PhaseFinalization marks events emitted during block finalization
	PhaseFinalization
)

// Phase locates an event within a block's execution
type Phase struct {
	Kind PhaseKind `json:"kind"`
	// Index is the extrinsic index when Kind is PhaseApplyExtrinsic
	Index uint32 `json:"index"`
}

// Event is a runtime event decoded from a block
type Event struct {
	Pallet string `json:"pallet"`
	Name   string `json:"name"`
	Phase  Phase  `json:"phase"`
	Data   any    `json:"data,omitempty"`
}

// Block is a block descriptor as delivered by the chain-head streams.
// Extrinsics are the 0x-hex encoded transaction bytes in block order;
// Events are the decoded runtime events of the block.
type Block struct {
	Hash       string   `json:"hash"`
	Parent     string   `json:"parent"`
	Number     uint64   `json:"number"`
	Extrinsics []string `json:"extrinsics"`
	Events     []Event  `json:"events"`
}

// Source is the transport boundary. Binary payloads cross it as
// lowercase 0x-prefixed hex strings.
//
// Best and finalized streams are ordered: a block is always announced
// on the best stream before (or at the same height as) its finalized
// announcement, and finalized blocks arrive in ascending order.
type Source interface {
	// Call performs a generic state call against the given block, or
	// against the latest finalized block when blockHash is empty.
	Call(ctx context.Context, blockHash, method, args string) (string, error)

	// SubmitTransaction submits a signed extrinsic to the transaction
	// pool. A nil return means pool acceptance, not inclusion.
	SubmitTransaction(ctx context.Context, extrinsic string) error

	// LatestFinalized returns the latest known finalized block,
	// blocking until one is known or the context is done.
	LatestFinalized(ctx context.Context) (*Block, error)

	// Block looks up a block descriptor by hash
	Block(ctx context.Context, blockHash string) (*Block, error)

	// WatchBest subscribes to best-chain block announcements. The
	// returned channel is closed when the context is done or the
	// source shuts down.
	WatchBest(ctx context.Context) (<-chan *Block, error)

	// WatchFinalized subscribes to finalized block announcements with
	// the same lifecycle as WatchBest.
	WatchFinalized(ctx context.Context) (<-chan *Block, error)
}
