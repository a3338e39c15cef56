package client

import (
	"bytes"
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/alialobidm/polkadot-api/internal/metrics"
	"github.com/alialobidm/polkadot-api/metadata"
)

// runtimeCache is the bounded per-client cache of resolved runtime
// contexts and built codecs, keyed by (descriptor, block identity).
// Entries are write-once: a cached context is never mutated, only
// evicted. Concurrent requests for the same key coalesce into one
// in-flight resolution or codec build.
type runtimeCache struct {
	resolver metadata.Resolver
	group    singleflight.Group
	contexts *lru.Cache[string, metadata.RuntimeContext]
	codecs   *lru.Cache[string, metadata.Codec]
}

func newRuntimeCache(resolver metadata.Resolver, size int) (*runtimeCache, error) {
	contexts, err := lru.New[string, metadata.RuntimeContext](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create context cache: %w", err)
	}
	codecs, err := lru.New[string, metadata.Codec](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create codec cache: %w", err)
	}
	return &runtimeCache{
		resolver: resolver,
		contexts: contexts,
		codecs:   codecs,
	}, nil
}

// contextFor resolves the runtime at a block and verifies the
// descriptor's structural checksum against it. Cached entries were
// verified for this exact key on insertion.
//
// The resolution itself runs detached from the caller's context: a
// caller cancelling stops its own wait with an AbortError but never
// fails the coalesced waiters sharing the in-flight resolution.
func (c *runtimeCache) contextFor(ctx context.Context, d metadata.Descriptor, blockHash string) (metadata.RuntimeContext, error) {
	key := "ctx|" + d.CacheKey(blockHash)
	if rt, ok := c.contexts.Get(key); ok {
		metrics.IncrementCacheHits()
		return rt, nil
	}

	resolveCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		if rt, ok := c.contexts.Get(key); ok {
			return rt, nil
		}
		rt, err := c.resolver.Resolve(resolveCtx, blockHash)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve runtime at %s: %w", blockHash, err)
		}
		if err := verifyChecksum(d, rt); err != nil {
			return nil, err
		}
		c.contexts.Add(key, rt)
		return rt, nil
	})

	select {
	case <-ctx.Done():
		return nil, &AbortError{Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(metadata.RuntimeContext), nil
	}
}

// codecFor builds (or returns the cached) argument/result codec for
// the descriptor against an already-verified runtime context.
func (c *runtimeCache) codecFor(d metadata.Descriptor, blockHash string, rt metadata.RuntimeContext) (metadata.Codec, error) {
	key := "codec|" + d.CacheKey(blockHash)
	if codec, ok := c.codecs.Get(key); ok {
		metrics.IncrementCacheHits()
		return codec, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if codec, ok := c.codecs.Get(key); ok {
			return codec, nil
		}
		codec, err := rt.BuildCall(d)
		if err != nil {
			return nil, fmt.Errorf("failed to build codec for %s: %w", d.Name(), err)
		}
		metrics.IncrementCodecBuilds()
		c.codecs.Add(key, codec)
		return codec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(metadata.Codec), nil
}

// verifyChecksum compares the descriptor's static structural checksum
// byte-for-byte with the one the live runtime computes for the same
// call shape. Descriptors without a static checksum opt out.
func verifyChecksum(d metadata.Descriptor, rt metadata.RuntimeContext) error {
	static := d.Checksum()
	if static == nil {
		return nil
	}
	live := rt.Checksum(d)
	if live == nil || !bytes.Equal(static, live) {
		metrics.IncrementCompatFailures()
		return &IncompatibilityError{Call: d.Name()}
	}
	return nil
}
