// Package prevtx implements the previous-transaction streaming hasher and
// validator: it reproduces the exact wire serialization of a legacy
// Bitcoin transaction one field at a time as the host streams
// PrevTxInit/PrevTxInput/PrevTxOutput messages, without ever buffering the
// full serialization, and checks the resulting double-SHA256 against the
// referring input's claimed prevOutHash.
//
// Grounded on internal/dhash's incremental accumulator and on the wire-shape
// handling in internal/tx/btc_tx.go (chainhash, wire.OutPoint byte order),
// adapted here to a push-driven hasher instead of an in-memory wire.MsgTx.
package prevtx

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/shiftsig/btcsign/internal/config"
	"github.com/shiftsig/btcsign/internal/dhash"
	"github.com/shiftsig/btcsign/internal/varint"
)

// InitRequest carries the previous transaction's version, input/output
// counts and locktime.
type InitRequest struct {
	Version    uint32
	NumInputs  uint32
	NumOutputs uint32
	Locktime   uint32
}

// InputRequest carries one previous-transaction input as streamed by the
// host.
type InputRequest struct {
	PrevOutHash     chainhash.Hash
	PrevOutIndex    uint32
	SignatureScript []byte
	Sequence        uint32
}

// OutputRequest carries one previous-transaction output as streamed by the
// host.
type OutputRequest struct {
	Value        uint64
	PubkeyScript []byte
}

// ReferencingInput is the input message that triggered this prev-tx
// stream: the session controller supplies the claimed prevOutHash/Index/
// Value that the stream must ultimately corroborate (I9, I10).
type ReferencingInput struct {
	PrevOutHash  chainhash.Hash
	PrevOutIndex uint32
	PrevOutValue uint64
}

// Hasher accumulates a streamed legacy transaction serialization and
// validates it against the input that referenced it. One Hasher is
// created per input's PREVTX-* phase sequence and discarded afterward.
type Hasher struct {
	req       InitRequest
	ref       ReferencingInput
	ctx       *dhash.Accumulator
	done      bool
	// matchedOutput records whether the referenced output index was seen,
	// so a malformed stream that never reaches it cannot silently pass.
	matchedOutput bool
}

// New starts a new prev-tx hash stream for the transaction described by
// req, bound to the input that referenced it.
func New(req InitRequest, ref ReferencingInput) (*Hasher, error) {
	if req.NumInputs < 1 || req.NumOutputs < 1 {
		return nil, fmt.Errorf("%w: prevtx must have at least one input and one output", config.ErrInvalidCount)
	}
	if ref.PrevOutIndex >= req.NumOutputs {
		return nil, fmt.Errorf("%w: referencing prev_out_index %d out of range for %d outputs", config.ErrInvalidCount, ref.PrevOutIndex, req.NumOutputs)
	}

	h := &Hasher{req: req, ref: ref, ctx: dhash.New()}
	h.ctx.Write(varint.Uint32LE(req.Version))
	return h, nil
}

// Input feeds one PrevTxInput message at position idx (0-based, in
// message order) into the running hash.
func (h *Hasher) Input(req InputRequest, idx uint32) error {
	if h.done {
		return fmt.Errorf("%w: prevtx hasher already finalized", config.ErrInvalidPhase)
	}
	if idx >= h.req.NumInputs {
		return fmt.Errorf("%w: prevtx input index %d out of range for %d inputs", config.ErrInvalidCount, idx, h.req.NumInputs)
	}
	if idx == 0 {
		countBuf, err := varint.Encode(uint64(h.req.NumInputs))
		if err != nil {
			return fmt.Errorf("%w: prevtx input count: %s", config.ErrEncodingFailure, err)
		}
		h.ctx.Write(countBuf)
	}

	sigBuf, err := varint.VarBuff(req.SignatureScript)
	if err != nil {
		return fmt.Errorf("%w: prevtx signature script: %s", config.ErrEncodingFailure, err)
	}

	h.ctx.Write(req.PrevOutHash[:])
	h.ctx.Write(varint.Uint32LE(req.PrevOutIndex))
	h.ctx.Write(sigBuf)
	h.ctx.Write(varint.Uint32LE(req.Sequence))
	return nil
}

// Output feeds one PrevTxOutput message at position idx into the running
// hash. When idx matches the referencing input's claimed output index it
// asserts the streamed value equals the claimed prevOutValue (I9). When
// idx is the last output, it feeds the locktime, finalizes the
// accumulator, and checks the resulting double-SHA256 against the
// referencing input's prevOutHash (I10), returning the verified txid on
// success.
func (h *Hasher) Output(req OutputRequest, idx uint32) (*chainhash.Hash, error) {
	if h.done {
		return nil, fmt.Errorf("%w: prevtx hasher already finalized", config.ErrInvalidPhase)
	}
	if idx >= h.req.NumOutputs {
		return nil, fmt.Errorf("%w: prevtx output index %d out of range for %d outputs", config.ErrInvalidCount, idx, h.req.NumOutputs)
	}
	if idx == 0 {
		countBuf, err := varint.Encode(uint64(h.req.NumOutputs))
		if err != nil {
			return nil, fmt.Errorf("%w: prevtx output count: %s", config.ErrEncodingFailure, err)
		}
		h.ctx.Write(countBuf)
	}
	if idx == h.ref.PrevOutIndex {
		if req.Value != h.ref.PrevOutValue {
			return nil, fmt.Errorf("%w: prevtx output %d value %d != claimed input value %d", config.ErrPrevTxValueMismatch, idx, req.Value, h.ref.PrevOutValue)
		}
		h.matchedOutput = true
	}

	pkBuf, err := varint.VarBuff(req.PubkeyScript)
	if err != nil {
		return nil, fmt.Errorf("%w: prevtx pubkey script: %s", config.ErrEncodingFailure, err)
	}
	h.ctx.Write(varint.Uint64LE(req.Value))
	h.ctx.Write(pkBuf)

	if idx != h.req.NumOutputs-1 {
		return nil, nil
	}

	h.ctx.Write(varint.Uint32LE(h.req.Locktime))
	h.done = true

	if !h.matchedOutput {
		return nil, fmt.Errorf("%w: prevtx stream never reached referenced output %d", config.ErrPrevTxValueMismatch, h.ref.PrevOutIndex)
	}

	txid := h.ctx.Sum()
	if txid != h.ref.PrevOutHash {
		return nil, fmt.Errorf("%w: prevtx double-SHA256 %x != referencing input prev_out_hash %x", config.ErrPrevTxHashMismatch, txid[:], h.ref.PrevOutHash[:])
	}
	return &txid, nil
}
