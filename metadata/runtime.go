package metadata

import "context"

// Codec encodes call arguments and decodes call results for one
// descriptor against one resolved runtime. Codecs are built dynamically
// from runtime metadata and are safe for concurrent use.
type Codec interface {
	// EncodeArgs encodes the call arguments to their binary form
	EncodeArgs(args any) ([]byte, error)
	// DecodeResult decodes the binary call result
	DecodeResult(data []byte) (any, error)
}

// RuntimeContext is a snapshot of the runtime resolved at a specific
// block. Implementations are immutable after creation: a context is
// only ever replaced, never mutated, when a new block invalidates it.
type RuntimeContext interface {
	// Checksum computes the structural checksum of the call's
	// argument/return shape in this runtime. The checksum covers the
	// binary layout only, not nominal type names, so cosmetic renames
	// in metadata do not change it. Returns nil when the runtime does
	// not expose the call.
	Checksum(d Descriptor) []byte
	// BuildCall builds the argument/result codec for the call
	BuildCall(d Descriptor) (Codec, error)
}

// Resolver resolves runtime metadata at a block. It is the boundary
// with the codec/metadata engine; implementations typically fetch and
// parse metadata lazily and may block until it is available.
type Resolver interface {
	Resolve(ctx context.Context, blockHash string) (RuntimeContext, error)
}
