// Package bip143 builds the BIP-143 segregated-witness sighash preimage.
// It is a pure function over already-finalized
// hashPrevouts/hashSequence/hashOutputs digests and one input's fields;
// it holds no session state of its own.
package bip143

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"

	"github.com/shiftsig/btcsign/internal/config"
	"github.com/shiftsig/btcsign/internal/dhash"
	"github.com/shiftsig/btcsign/internal/varint"
)

// SighashAll is the only supported sighash type; no other sighash types
// and no ANYONECANPAY are supported.
const SighashAll uint32 = uint32(txscript.SigHashAll)

// Input carries the per-input fields the preimage needs beyond the three
// cross-input digests.
type Input struct {
	PrevOutHash   chainhash.Hash
	PrevOutIndex  uint32
	SighashScript []byte
	PrevOutValue  uint64
	Sequence      uint32
}

// Digests holds the three finalized BIP-143 accumulator outputs.
type Digests struct {
	HashPrevouts chainhash.Hash
	HashSequence chainhash.Hash
	HashOutputs  chainhash.Hash
}

// Sighash builds the BIP-143 preimage for one input and returns its
// double-SHA256:
//
//	version(LE32) || hashPrevouts(32) || hashSequence(32) ||
//	outpoint(36) || varbuff(sighashScript) || value(LE64) ||
//	sequence(LE32) || hashOutputs(32) || locktime(LE32) ||
//	sighashType(LE32)
func Sighash(version uint32, digests Digests, in Input, locktime uint32) (chainhash.Hash, error) {
	if len(in.SighashScript) > config.MaxPkScriptSize {
		return chainhash.Hash{}, fmt.Errorf("%w: sighash script too large (%d bytes)", config.ErrInvalidScriptConfig, len(in.SighashScript))
	}

	scriptBuf, err := varint.VarBuff(in.SighashScript)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("%w: sighash varbuff: %s", config.ErrEncodingFailure, err)
	}

	preimage := make([]byte, 0, 4+32+32+36+len(scriptBuf)+8+4+32+4+4)
	preimage = append(preimage, varint.Uint32LE(version)...)
	preimage = append(preimage, digests.HashPrevouts[:]...)
	preimage = append(preimage, digests.HashSequence[:]...)
	preimage = append(preimage, in.PrevOutHash[:]...)
	preimage = append(preimage, varint.Uint32LE(in.PrevOutIndex)...)
	preimage = append(preimage, scriptBuf...)
	preimage = append(preimage, varint.Uint64LE(in.PrevOutValue)...)
	preimage = append(preimage, varint.Uint32LE(in.Sequence)...)
	preimage = append(preimage, digests.HashOutputs[:]...)
	preimage = append(preimage, varint.Uint32LE(locktime)...)
	preimage = append(preimage, varint.Uint32LE(SighashAll)...)

	return dhash.Once(preimage), nil
}
