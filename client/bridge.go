package client

import (
	"context"

	"github.com/alialobidm/polkadot-api/chainhead"
)

// TxResult is the terminal payload of a finalized transaction. Ok is
// false when the on-chain execution failed even though inclusion
// succeeded; that is a normal result, not an error.
type TxResult struct {
	TxHash        string
	Ok            bool
	Events        []chainhead.Event
	Block         TxBlock
	DispatchError *DispatchError
}

// SignAndSubmit signs, broadcasts, and waits for finalization. It
// settles exactly once: with the terminal finalized payload, or with a
// SignerError, BroadcastRejectedError, InvalidatedError or AbortError.
//
// Cancelling ctx tears down the block subscriptions and rejects with
// an AbortError; a transaction the pool already accepted is not
// retracted, only its observation stops.
func (t *TxCall) SignAndSubmit(ctx context.Context, signer Signer, args any, opts *TxOptions) (*TxResult, error) {
	ext, err := t.Sign(ctx, signer, args, opts)
	if err != nil {
		return nil, err
	}
	return t.submitAndTrack(ctx, ext, nil)
}

// Watch returns a repeatable observable over the full pipeline. Every
// subscription re-executes sign, broadcast and tracking independently;
// nothing in flight is shared between subscribers.
func (t *TxCall) Watch(signer Signer, args any, opts *TxOptions) *TxObservable {
	return &TxObservable{call: t, signer: signer, args: args, opts: opts}
}

// TxObservable is the repeatable-stream form of the transaction
// pipeline.
type TxObservable struct {
	call   *TxCall
	signer Signer
	args   any
	opts   *TxOptions
}

// Subscribe starts an independent sign→broadcast→track pipeline. The
// event channel delivers the ordered lifecycle events and is closed
// after the terminal one; the error channel then receives exactly one
// value: nil after Finalized, or the terminal failure.
func (o *TxObservable) Subscribe(ctx context.Context) (<-chan TxEvent, <-chan error) {
	events := make(chan TxEvent, 8)
	errs := make(chan error, 1)

	go func() {
		err := o.run(ctx, events)
		close(events)
		errs <- err
	}()

	return events, errs
}

func (o *TxObservable) run(ctx context.Context, events chan<- TxEvent) error {
	emit := func(ev TxEvent) error {
		select {
		case events <- ev:
			return nil
		case <-ctx.Done():
			return &AbortError{Err: ctx.Err()}
		}
	}

	ext, err := o.call.Sign(ctx, o.signer, o.args, o.opts)
	if err != nil {
		return err
	}
	if err := emit(TxEvent{Type: TxSigned, TxHash: ext.Hash}); err != nil {
		return err
	}

	_, err = o.call.submitAndTrack(ctx, ext, emit)
	return err
}

// submitAndTrack subscribes to the block streams, broadcasts the
// extrinsic, and runs the tracker to termination. Subscriptions are
// opened before the broadcast so no inclusion can be missed.
func (t *TxCall) submitAndTrack(ctx context.Context, ext *SignedExtrinsic, emit func(TxEvent) error) (*TxResult, error) {
	trackCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	best, err := t.client.source.WatchBest(trackCtx)
	if err != nil {
		return nil, abortIf(ctx, err)
	}
	finalized, err := t.client.source.WatchFinalized(trackCtx)
	if err != nil {
		return nil, abortIf(ctx, err)
	}

	if err := t.Broadcast(ctx, ext); err != nil {
		return nil, err
	}
	if emit != nil {
		if err := emit(TxEvent{Type: TxBroadcasted, TxHash: ext.Hash}); err != nil {
			return nil, err
		}
	}

	var result *TxResult
	sink := func(ev TxEvent) error {
		if ev.Type == TxFinalized {
			result = &TxResult{
				TxHash:        ev.TxHash,
				Ok:            ev.Ok,
				Events:        ev.Events,
				Block:         *ev.Block,
				DispatchError: ev.DispatchError,
			}
		}
		if emit != nil {
			return emit(ev)
		}
		return nil
	}

	if err := newTracker(t.client, ext).run(trackCtx, best, finalized, sink); err != nil {
		return nil, err
	}
	return result, nil
}
