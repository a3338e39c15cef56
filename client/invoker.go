package client

import (
	"context"
	"fmt"

	"github.com/alialobidm/polkadot-api/internal/hexutil"
	"github.com/alialobidm/polkadot-api/internal/metrics"
	"github.com/alialobidm/polkadot-api/metadata"
)

// InvokeOptions control a single runtime call invocation
type InvokeOptions struct {
	// At pins the call to a block hash; empty means the latest known
	// finalized block.
	At string
}

// RuntimeCall bundles an invocable runtime API call with its
// compatibility check.
type RuntimeCall struct {
	desc   metadata.Descriptor
	gate   *CompatibilityGate
	client *Client
}

// Descriptor returns the bound call descriptor
func (rc *RuntimeCall) Descriptor() metadata.Descriptor {
	return rc.desc
}

// IsCompatible reports whether the live runtime at the latest known
// finalized block is structurally compatible with this call.
func (rc *RuntimeCall) IsCompatible(ctx context.Context) bool {
	return rc.gate.IsCompatible(ctx)
}

// Invoke resolves the runtime, encodes args, performs one state call
// against the target block and decodes the result.
//
// Resolution failures reject with an IncompatibilityError before any
// network call. Cancelling ctx before settlement rejects with an
// AbortError; the invocation never settles afterwards. Concurrent
// invocations for the same (descriptor, block) share one in-flight
// resolution and one in-flight codec build.
func (rc *RuntimeCall) Invoke(ctx context.Context, args any, opts *InvokeOptions) (any, error) {
	at := ""
	if opts != nil {
		at = opts.At
	}
	if at == "" {
		head, err := rc.client.source.LatestFinalized(ctx)
		if err != nil {
			return nil, abortIf(ctx, err)
		}
		at = head.Hash
	}

	rt, err := rc.gate.Resolve(ctx, at)
	if err != nil {
		return nil, err
	}

	codec, err := rc.client.cache.codecFor(rc.desc, at, rt)
	if err != nil {
		return nil, err
	}

	encoded, err := codec.EncodeArgs(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode args for %s: %w", rc.desc.Name(), err)
	}

	metrics.IncrementStateCalls()
	rc.client.logger.Debug("state call %s at %s", rc.desc.RPCMethod(), at)

	result, err := rc.client.source.Call(ctx, at, rc.desc.RPCMethod(), hexutil.Encode(encoded))
	if err != nil {
		return nil, abortIf(ctx, fmt.Errorf("state call %s failed: %w", rc.desc.RPCMethod(), err))
	}

	raw, err := hexutil.Decode(result)
	if err != nil {
		return nil, fmt.Errorf("malformed result for %s: %w", rc.desc.RPCMethod(), err)
	}

	decoded, err := codec.DecodeResult(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode result for %s: %w", rc.desc.Name(), err)
	}
	return decoded, nil
}
