package client

import (
	"context"

	"github.com/alialobidm/polkadot-api/chainhead"
	"github.com/alialobidm/polkadot-api/internal/hexutil"
	"github.com/alialobidm/polkadot-api/internal/logz"
	"github.com/alialobidm/polkadot-api/internal/metrics"
)

// tracker drives the lifecycle state machine of one signed extrinsic:
// it observes the best and finalized block streams, detects inclusion
// of the transaction hash, and emits ordered lifecycle events until a
// terminal state.
//
// Inclusion on the best chain is provisional: a found observation
// regresses to not-found when a reorg removes the containing block
// before finalization.
type tracker struct {
	client *Client
	ext    *SignedExtrinsic
	logger *logz.Logger

	// best blocks seen so far, by hash, for ancestry walks
	blocks map[string]*chainhead.Block
	// blocks observed to contain the transaction, by block hash
	containing map[string]TxBlock
	bestHead   string

	lastFound bool
	lastBlock string
	reported  bool // at least one BestBlocksState emitted
}

func newTracker(client *Client, ext *SignedExtrinsic) *tracker {
	return &tracker{
		client:     client,
		ext:        ext,
		logger:     client.logger.WithPrefix("tracker"),
		blocks:     make(map[string]*chainhead.Block),
		containing: make(map[string]TxBlock),
	}
}

// run observes the streams until termination. It returns nil after
// emitting Finalized, an InvalidatedError when the transaction expires
// or is evicted before inclusion, or an AbortError on cancellation.
// Events are emitted in chain order for the tracked hash: best-block
// observations of a block always precede its finalized observation.
func (t *tracker) run(ctx context.Context, best, finalized <-chan *chainhead.Block, emit func(TxEvent) error) error {
	for {
		select {
		case <-ctx.Done():
			return &AbortError{Err: ctx.Err()}

		case b, ok := <-best:
			if !ok {
				return &AbortError{Err: context.Canceled}
			}
			done, err := t.onBest(b, emit)
			if done || err != nil {
				return err
			}

		case f, ok := <-finalized:
			if !ok {
				return &AbortError{Err: context.Canceled}
			}
			done, err := t.onFinalized(f, emit)
			if done || err != nil {
				return err
			}
		}
	}
}

// onBest re-evaluates the transaction's best-chain state for a new
// best block.
func (t *tracker) onBest(b *chainhead.Block, emit func(TxEvent) error) (bool, error) {
	t.blocks[b.Hash] = b
	t.bestHead = b.Hash
	t.scan(b)

	loc, found := t.currentInclusion()

	if found {
		// A block past the validity window cannot carry a valid
		// inclusion of this transaction.
		if t.expiredAt(loc.Number) {
			return true, t.invalidate("mortality period expired before inclusion")
		}
	} else if t.expiredAt(b.Number) {
		return true, t.invalidate("mortality period expired before inclusion")
	}

	if !t.reported || found != t.lastFound || (found && loc.Hash != t.lastBlock) {
		if t.lastFound && !found {
			metrics.IncrementReorgRegressions()
			t.logger.Info("tx %s dropped from best chain by reorg", t.ext.Hash)
		}
		if err := emit(t.bestStateEvent(loc, found)); err != nil {
			return true, err
		}
		t.reported = true
		t.lastFound = found
		if found {
			t.lastBlock = loc.Hash
		} else {
			t.lastBlock = ""
		}
	}
	return false, nil
}

// onFinalized settles the transaction when its containing block is
// finalized, and prunes provisional inclusions the finalized chain has
// ruled out.
func (t *tracker) onFinalized(f *chainhead.Block, emit func(TxEvent) error) (bool, error) {
	t.blocks[f.Hash] = f
	t.scan(f)

	if loc, ok := t.containing[f.Hash]; ok {
		if t.expiredAt(f.Number) {
			// A block past the validity window cannot carry a valid
			// inclusion of this transaction.
			return true, t.invalidate("mortality period expired before inclusion")
		}

		// Finalized is only ever emitted after at least one found
		// observation of the same block.
		if !t.lastFound || t.lastBlock != loc.Hash {
			if err := emit(t.bestStateEvent(loc, true)); err != nil {
				return true, err
			}
			t.reported = true
			t.lastFound = true
			t.lastBlock = loc.Hash
		}

		ev := t.bestStateEvent(loc, true)
		ev.Type = TxFinalized
		if err := emit(ev); err != nil {
			return true, err
		}
		metrics.IncrementTxsFinalized()
		t.logger.Info("tx %s finalized in block %s", t.ext.Hash, loc.Hash)
		return true, nil
	}

	// Finality at this height rules out provisional inclusions at or
	// below it on other forks.
	for hash, loc := range t.containing {
		if loc.Number <= f.Number && hash != f.Hash {
			delete(t.containing, hash)
		}
	}
	if t.lastFound {
		if _, stillFound := t.currentInclusion(); !stillFound {
			metrics.IncrementReorgRegressions()
			if err := emit(t.bestStateEvent(TxBlock{}, false)); err != nil {
				return true, err
			}
			t.lastFound = false
			t.lastBlock = ""
		}
	}

	if t.expiredAt(f.Number) {
		return true, t.invalidate("mortality period expired before inclusion")
	}
	return false, nil
}

// scan records the transaction's location if the block contains it
func (t *tracker) scan(b *chainhead.Block) {
	if _, ok := t.containing[b.Hash]; ok {
		return
	}
	for i, extHex := range b.Extrinsics {
		raw, err := hexutil.Decode(extHex)
		if err != nil {
			t.logger.Warn("malformed extrinsic %d in block %s: %v", i, b.Hash, err)
			continue
		}
		if t.client.hash(raw) == t.ext.Hash {
			t.containing[b.Hash] = TxBlock{Hash: b.Hash, Number: b.Number, Index: uint32(i)}
			return
		}
	}
}

// currentInclusion walks the best chain from the head through known
// parents and reports the transaction's containing block, if any.
func (t *tracker) currentInclusion() (TxBlock, bool) {
	walk := t.bestHead
	for walk != "" {
		if loc, ok := t.containing[walk]; ok {
			return loc, true
		}
		b, ok := t.blocks[walk]
		if !ok {
			break
		}
		walk = b.Parent
	}
	return TxBlock{}, false
}

// expiredAt reports whether a mortal transaction can no longer be
// included at the given block height.
func (t *tracker) expiredAt(number uint64) bool {
	deadline, mortal := t.ext.validUntil()
	return mortal && number > deadline
}

// bestStateEvent builds the BestBlocksState observation payload,
// decoding the dispatch outcome when the transaction is found.
func (t *tracker) bestStateEvent(loc TxBlock, found bool) TxEvent {
	ev := TxEvent{
		Type:   TxBestBlocksState,
		TxHash: t.ext.Hash,
		Found:  found,
	}
	if !found {
		return ev
	}

	block := t.blocks[loc.Hash]
	var events []chainhead.Event
	if block != nil {
		events = block.Events
	}
	ok, emitted, derr := decodeDispatchOutcome(events, loc.Index)
	ev.Ok = ok
	ev.Events = emitted
	ev.Block = &TxBlock{Hash: loc.Hash, Number: loc.Number, Index: loc.Index}
	ev.DispatchError = derr
	return ev
}

func (t *tracker) invalidate(reason string) error {
	metrics.IncrementTxsInvalidated()
	t.logger.Info("tx %s invalidated: %s", t.ext.Hash, reason)
	return &InvalidatedError{TxHash: t.ext.Hash, Reason: reason}
}
