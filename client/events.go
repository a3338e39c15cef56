package client

import (
	"fmt"

	"github.com/alialobidm/polkadot-api/chainhead"
)

// TxEventType tags the variants of the transaction lifecycle union
type TxEventType int

const (
	// TxSigned is emitted once, immediately after a successful signature
	TxSigned TxEventType = iota
	// TxBroadcasted is emitted once, on transaction pool acceptance
	TxBroadcasted
	// TxBestBlocksState reports the transaction's provisional presence
	// on the best chain; emitted whenever that state changes, and may
	// regress from found to not-found on a reorg.
	TxBestBlocksState
	// TxFinalized is terminal: the containing block is irreversible
	TxFinalized
)

// String returns the event type name
func (t TxEventType) String() string {
	switch t {
	case TxSigned:
		return "signed"
	case TxBroadcasted:
		return "broadcasted"
	case TxBestBlocksState:
		return "bestBlocksState"
	case TxFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// TxBlock locates a transaction within a block
type TxBlock struct {
	Hash   string
	Number uint64
	// Index is the transaction's extrinsic index within the block
	Index uint32
}

// TxEvent is one observation in a transaction's lifecycle. For
// TxBestBlocksState and TxFinalized with Found set, Ok, Events, Block
// and DispatchError carry the decoded inclusion payload.
type TxEvent struct {
	Type   TxEventType
	TxHash string

	Found         bool
	Ok            bool
	Events        []chainhead.Event
	Block         *TxBlock
	DispatchError *DispatchError
}

// ModuleError is a dispatch error raised by a specific pallet
type ModuleError struct {
	Pallet string
	Name   string
}

func (e *ModuleError) Error() string {
	return fmt.Sprintf("%s.%s", e.Pallet, e.Name)
}

// DispatchError is the decoded on-chain execution failure of an
// included transaction. It is a payload, not a Go error: inclusion
// itself succeeded.
type DispatchError struct {
	// Module is set when a pallet raised the error
	Module *ModuleError
	// Other carries the generic error description otherwise
	Other string
}

func (e *DispatchError) String() string {
	if e.Module != nil {
		return e.Module.Error()
	}
	return e.Other
}

// decodeDispatchOutcome scans a block's events for the execution
// outcome of the extrinsic at the given index and collects the events
// it emitted. Ok is true iff the outcome is the generic success signal.
func decodeDispatchOutcome(events []chainhead.Event, index uint32) (ok bool, emitted []chainhead.Event, derr *DispatchError) {
	ok = false
	found := false

	for _, ev := range events {
		if ev.Phase.Kind != chainhead.PhaseApplyExtrinsic || ev.Phase.Index != index {
			continue
		}
		if ev.Pallet == "System" {
			switch ev.Name {
			case "ExtrinsicSuccess":
				ok = true
				found = true
				continue
			case "ExtrinsicFailed":
				found = true
				derr = dispatchErrorFrom(ev.Data)
				continue
			}
		}
		emitted = append(emitted, ev)
	}

	if !found {
		// A located extrinsic without an outcome event means the block
		// stream delivered partial events; treat as a generic failure.
		derr = &DispatchError{Other: "no execution outcome event for extrinsic"}
	}
	return ok, emitted, derr
}

// dispatchErrorFrom normalizes the ExtrinsicFailed payload shapes the
// event decoder may produce.
func dispatchErrorFrom(data any) *DispatchError {
	switch v := data.(type) {
	case *DispatchError:
		return v
	case DispatchError:
		return &v
	case *ModuleError:
		return &DispatchError{Module: v}
	case ModuleError:
		return &DispatchError{Module: &v}
	case string:
		return &DispatchError{Other: v}
	case nil:
		return &DispatchError{Other: "unknown dispatch error"}
	default:
		return &DispatchError{Other: fmt.Sprint(v)}
	}
}
