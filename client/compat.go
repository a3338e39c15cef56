package client

import (
	"context"

	"github.com/alialobidm/polkadot-api/metadata"
)

// CompatibilityGate decides, for one call descriptor, whether the live
// runtime at a target block is structurally compatible with the
// descriptor's statically computed checksum. Every dispatch passes
// through its gate before any network call is issued.
type CompatibilityGate struct {
	desc   metadata.Descriptor
	client *Client
}

// IsCompatible reports whether the descriptor matches the runtime at
// the latest known finalized block. It blocks until that block (and
// its runtime metadata) is available, and never returns an error: any
// failure to resolve reports false.
func (g *CompatibilityGate) IsCompatible(ctx context.Context) bool {
	_, err := g.Resolve(ctx, "")
	return err == nil
}

// Resolve resolves a verified runtime context at the given block, or
// at the latest known finalized block when blockHash is empty. It
// fails with an IncompatibilityError naming the call when the
// structural checksums differ.
func (g *CompatibilityGate) Resolve(ctx context.Context, blockHash string) (metadata.RuntimeContext, error) {
	if blockHash == "" {
		head, err := g.client.source.LatestFinalized(ctx)
		if err != nil {
			return nil, abortIf(ctx, err)
		}
		blockHash = head.Hash
	}
	return g.client.cache.contextFor(ctx, g.desc, blockHash)
}
