package client

import (
	"context"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"github.com/alialobidm/polkadot-api/chainhead"
	"github.com/alialobidm/polkadot-api/internal/hexutil"
	"github.com/alialobidm/polkadot-api/internal/metrics"
	"github.com/alialobidm/polkadot-api/metadata"
)

// extrinsicVersion is the signed extrinsic format version byte
const extrinsicVersion = 0x84

// multiAddressID tags a raw 32-byte account id in a multi-address
const multiAddressID = 0x00

// Signer is the external signing boundary. Sign may fail or be
// cancelled by the user; it receives the signable preimage and returns
// tagged multi-signature bytes.
type Signer interface {
	// Address returns the signer's raw account id bytes
	Address() []byte
	// Sign signs the payload
	Sign(ctx context.Context, payload []byte) ([]byte, error)
}

// Mortality describes a transaction validity window in blocks
type Mortality struct {
	Mortal bool
	// Period is the window length; ignored for immortal transactions
	Period uint64
}

// DefaultMortalityPeriod is the validity window applied when no
// mortality option is given.
const DefaultMortalityPeriod = 64

// TxOptions control envelope construction. The zero value applies the
// defaults: checkpoint at the latest finalized block, tip 0, mortal
// with period 64, nonce read from the account's on-chain nonce at the
// checkpoint block.
type TxOptions struct {
	// At anchors the envelope to a block hash. Empty or "finalized"
	// selects the latest known finalized block.
	At string
	// Nonce overrides the on-chain nonce lookup
	Nonce *uint64
	// Tip is the optional priority tip; nil means 0
	Tip *uint256.Int
	// Mortality overrides the default 64-block validity window
	Mortality *Mortality
	// AssetID is the optional pre-encoded fee asset
	AssetID []byte
}

// SignedExtrinsic is a signed transaction together with its content
// hash. The hash is a pure function of the signed bytes and never
// changes once computed.
type SignedExtrinsic struct {
	// Extrinsic is the 0x-hex encoded signed transaction
	Extrinsic string
	// Hash is the 0x-hex content hash of the signed bytes
	Hash string

	mortal bool
	birth  uint64
	period uint64
}

// validUntil returns the last block number at which a mortal extrinsic
// may still be included.
func (s *SignedExtrinsic) validUntil() (uint64, bool) {
	if !s.mortal {
		return 0, false
	}
	return s.birth + s.period, true
}

// TxCall bundles a signable, submittable transaction call with its
// compatibility check. Fee and nonce queries reuse the runtime call
// invoker.
type TxCall struct {
	desc     metadata.Descriptor
	gate     *CompatibilityGate
	client   *Client
	nonce    *RuntimeCall
	fee      *RuntimeCall
	validate *RuntimeCall
}

// Descriptor returns the bound call descriptor
func (t *TxCall) Descriptor() metadata.Descriptor {
	return t.desc
}

// IsCompatible reports whether the live runtime at the latest known
// finalized block is structurally compatible with this call.
func (t *TxCall) IsCompatible(ctx context.Context) bool {
	return t.gate.IsCompatible(ctx)
}

// txEnvelope is the unsigned transaction material assembled per
// submission attempt and discarded after signing.
type txEnvelope struct {
	callData   []byte
	era        []byte
	nonce      uint64
	tip        *uint256.Int
	assetID    []byte
	anchor     *chainhead.Block
	checkpoint []byte // anchor hash bytes, part of the signature context
	mortal     bool
	period     uint64
}

// buildEnvelope resolves the anchor block, verifies call
// compatibility, encodes the call arguments and fills in mortality,
// nonce and tip.
func (t *TxCall) buildEnvelope(ctx context.Context, from []byte, args any, opts *TxOptions) (*txEnvelope, error) {
	if opts == nil {
		opts = &TxOptions{}
	}

	var anchor *chainhead.Block
	var err error
	switch opts.At {
	case "", "finalized":
		anchor, err = t.client.source.LatestFinalized(ctx)
	default:
		anchor, err = t.client.source.Block(ctx, opts.At)
	}
	if err != nil {
		return nil, abortIf(ctx, fmt.Errorf("failed to resolve anchor block: %w", err))
	}

	rt, err := t.gate.Resolve(ctx, anchor.Hash)
	if err != nil {
		return nil, err
	}
	codec, err := t.client.cache.codecFor(t.desc, anchor.Hash, rt)
	if err != nil {
		return nil, err
	}
	callData, err := codec.EncodeArgs(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode call %s: %w", t.desc.Name(), err)
	}

	mortality := Mortality{Mortal: true, Period: DefaultMortalityPeriod}
	if opts.Mortality != nil {
		mortality = *opts.Mortality
	}

	var nonce uint64
	if opts.Nonce != nil {
		nonce = *opts.Nonce
	} else {
		result, err := t.nonce.Invoke(ctx, from, &InvokeOptions{At: anchor.Hash})
		if err != nil {
			return nil, fmt.Errorf("failed to query account nonce: %w", err)
		}
		nonce, err = asUint64(result)
		if err != nil {
			return nil, fmt.Errorf("malformed nonce result: %w", err)
		}
	}

	tip := opts.Tip
	if tip == nil {
		tip = uint256.NewInt(0)
	}

	checkpoint, err := hexutil.Decode(anchor.Hash)
	if err != nil {
		return nil, fmt.Errorf("malformed anchor hash: %w", err)
	}

	return &txEnvelope{
		callData:   callData,
		era:        encodeEra(mortality.Mortal, mortality.Period, anchor.Number),
		nonce:      nonce,
		tip:        tip,
		assetID:    opts.AssetID,
		anchor:     anchor,
		checkpoint: checkpoint,
		mortal:     mortality.Mortal,
		period:     mortality.Period,
	}, nil
}

// extra returns the signed-extension bytes of the envelope
func (e *txEnvelope) extra() []byte {
	out := make([]byte, 0, len(e.era)+16+len(e.assetID))
	out = append(out, e.era...)
	out = append(out, compactUint(e.nonce)...)
	out = append(out, compactBig(e.tip)...)
	out = append(out, e.assetID...)
	return out
}

// signable returns the signature preimage: call data, signed
// extensions and the anchor checkpoint hash. Preimages longer than 256
// bytes are signed over their content hash.
func (e *txEnvelope) signable(hasher func([]byte) [32]byte) []byte {
	extra := e.extra()
	payload := make([]byte, 0, len(e.callData)+len(extra)+len(e.checkpoint))
	payload = append(payload, e.callData...)
	payload = append(payload, extra...)
	payload = append(payload, e.checkpoint...)

	if len(payload) > 256 {
		h := hasher(payload)
		return h[:]
	}
	return payload
}

// assemble builds the signed extrinsic bytes from an address, a
// signature and the envelope, with the outer compact length prefix.
func (e *txEnvelope) assemble(address, signature []byte) []byte {
	inner := make([]byte, 0, 2+len(address)+len(signature)+len(e.callData)+32)
	inner = append(inner, extrinsicVersion)
	inner = append(inner, multiAddressID)
	inner = append(inner, address...)
	inner = append(inner, signature...)
	inner = append(inner, e.extra()...)
	inner = append(inner, e.callData...)

	out := compactUint(uint64(len(inner)))
	return append(out, inner...)
}

// Sign builds the transaction envelope, obtains a signature from the
// external signer, and returns the signed extrinsic with its hash. A
// signer failure propagates as a SignerError without retry.
func (t *TxCall) Sign(ctx context.Context, signer Signer, args any, opts *TxOptions) (*SignedExtrinsic, error) {
	if signer == nil {
		return nil, fmt.Errorf("signer cannot be nil")
	}

	env, err := t.buildEnvelope(ctx, signer.Address(), args, opts)
	if err != nil {
		return nil, err
	}

	signature, err := signer.Sign(ctx, env.signable(t.client.config.Hasher))
	if err != nil {
		if abortErr := abortIf(ctx, err); abortErr != err {
			return nil, abortErr
		}
		return nil, &SignerError{Err: err}
	}

	signed := env.assemble(signer.Address(), signature)
	ext := &SignedExtrinsic{
		Extrinsic: hexutil.Encode(signed),
		Hash:      t.client.hash(signed),
		mortal:    env.mortal,
		birth:     env.anchor.Number,
		period:    env.period,
	}

	metrics.IncrementTxsSigned()
	t.client.logger.Debug("signed %s as %s", t.desc.Name(), ext.Hash)
	return ext, nil
}

// Broadcast submits a signed extrinsic to the transaction pool. A nil
// return means pool acceptance only; the transaction can still be
// dropped or invalidated before inclusion.
func (t *TxCall) Broadcast(ctx context.Context, ext *SignedExtrinsic) error {
	if ext == nil {
		return fmt.Errorf("signed extrinsic cannot be nil")
	}

	if err := t.client.source.SubmitTransaction(ctx, ext.Extrinsic); err != nil {
		if abortErr := abortIf(ctx, err); abortErr != err {
			return abortErr
		}
		metrics.IncrementBroadcastRejected()
		return &BroadcastRejectedError{Err: err}
	}

	metrics.IncrementTxsBroadcast()
	t.client.logger.Debug("broadcast %s", ext.Hash)
	return nil
}

// EstimateFees constructs the same envelope a submission would use,
// fills in a placeholder signature, and dry-runs the fee query through
// the runtime call invoker. It never mutates chain or pool state and
// issues no broadcast.
func (t *TxCall) EstimateFees(ctx context.Context, from []byte, args any, opts *TxOptions) (*uint256.Int, error) {
	env, err := t.buildEnvelope(ctx, from, args, opts)
	if err != nil {
		return nil, err
	}

	// 1 type byte + 64 signature bytes, zeroed; fee queries do not
	// verify signatures.
	placeholder := make([]byte, 65)
	dry := env.assemble(from, placeholder)

	result, err := t.fee.Invoke(ctx, dry, &InvokeOptions{At: env.anchor.Hash})
	if err != nil {
		return nil, fmt.Errorf("fee query failed: %w", err)
	}
	return amountFrom(result)
}

// DryRun checks pool validity of a signed extrinsic through the
// runtime without submitting it.
func (t *TxCall) DryRun(ctx context.Context, ext *SignedExtrinsic, at string) (any, error) {
	if ext == nil {
		return nil, fmt.Errorf("signed extrinsic cannot be nil")
	}
	raw, err := hexutil.Decode(ext.Extrinsic)
	if err != nil {
		return nil, fmt.Errorf("malformed extrinsic: %w", err)
	}
	return t.validate.Invoke(ctx, raw, &InvokeOptions{At: at})
}

// asUint64 normalizes the integer shapes a decoded result may take
func asUint64(v any) (uint64, error) {
	switch x := v.(type) {
	case uint64:
		return x, nil
	case uint32:
		return uint64(x), nil
	case uint:
		return uint64(x), nil
	case int64:
		if x < 0 {
			return 0, fmt.Errorf("negative value %d", x)
		}
		return uint64(x), nil
	case int:
		if x < 0 {
			return 0, fmt.Errorf("negative value %d", x)
		}
		return uint64(x), nil
	case *uint256.Int:
		if x == nil || !x.IsUint64() {
			return 0, fmt.Errorf("value out of uint64 range")
		}
		return x.Uint64(), nil
	default:
		return 0, fmt.Errorf("unsupported integer type %T", v)
	}
}

// amountFrom normalizes the balance shapes a decoded fee result may
// take into a non-negative 256-bit integer.
func amountFrom(v any) (*uint256.Int, error) {
	switch x := v.(type) {
	case *uint256.Int:
		if x == nil {
			return uint256.NewInt(0), nil
		}
		return x, nil
	case uint256.Int:
		return &x, nil
	case uint64:
		return uint256.NewInt(x), nil
	case *big.Int:
		if x == nil {
			return uint256.NewInt(0), nil
		}
		if x.Sign() < 0 {
			return nil, fmt.Errorf("negative amount %s", x)
		}
		out, overflow := uint256.FromBig(x)
		if overflow {
			return nil, fmt.Errorf("amount %s overflows 256 bits", x)
		}
		return out, nil
	case string:
		out, err := uint256.FromHex(x)
		if err != nil {
			return nil, fmt.Errorf("malformed amount %q: %w", x, err)
		}
		return out, nil
	default:
		if n, err := asUint64(v); err == nil {
			return uint256.NewInt(n), nil
		}
		return nil, fmt.Errorf("unsupported amount type %T", v)
	}
}
