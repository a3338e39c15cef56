package client

import (
	"context"
	"errors"
	"fmt"
)

// IncompatibilityError reports that a descriptor's static structural
// checksum does not match the runtime resolved at the target block. No
// network call is issued for the affected dispatch.
type IncompatibilityError struct {
	// Call is the human-readable name of the incompatible call
	Call string
}

func (e *IncompatibilityError) Error() string {
	return fmt.Sprintf("runtime is not compatible with call %s", e.Call)
}

// AbortError reports caller-requested cancellation before settlement
type AbortError struct {
	Err error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("operation aborted: %v", e.Err)
}

func (e *AbortError) Unwrap() error {
	return e.Err
}

// SignerError reports that the external signer rejected, failed, or
// was cancelled by the user. It is never retried.
type SignerError struct {
	Err error
}

func (e *SignerError) Error() string {
	return fmt.Sprintf("signer failed: %v", e.Err)
}

func (e *SignerError) Unwrap() error {
	return e.Err
}

// BroadcastRejectedError reports that the transaction pool refused the
// extrinsic, e.g. on an invalid nonce or signature.
type BroadcastRejectedError struct {
	Err error
}

func (e *BroadcastRejectedError) Error() string {
	return fmt.Sprintf("transaction pool rejected broadcast: %v", e.Err)
}

func (e *BroadcastRejectedError) Unwrap() error {
	return e.Err
}

// InvalidatedError reports that a pool-accepted transaction became
// permanently invalid before inclusion, e.g. through mortality expiry
// or pool eviction.
type InvalidatedError struct {
	TxHash string
	Reason string
}

func (e *InvalidatedError) Error() string {
	return fmt.Sprintf("transaction %s invalidated: %s", e.TxHash, e.Reason)
}

// abortIf maps context cancellation observed at a settlement point to
// an AbortError, leaving other errors untouched.
func abortIf(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &AbortError{Err: ctxErr}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &AbortError{Err: err}
	}
	return err
}
