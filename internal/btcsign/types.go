// Package btcsign implements the core sign session state machine: a
// single process-wide Controller, driven by the host across many small
// messages, validating coin policy, accumulating the BIP-143 digests,
// streaming and verifying previous transactions, negotiating user
// confirmation, and emitting one signature per input.
//
// Grounded on internal/tx for the domain shape (building/signing a
// wire.MsgTx) and on internal/scanner's single long-lived stateful engine
// for the "one controller, many incremental calls" structure.
package btcsign

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/shiftsig/btcsign/internal/coinparams"
	"github.com/shiftsig/btcsign/internal/scriptconfig"
)

// SignInitRequest carries a sign session's fixed parameters: network,
// script configs, transaction version, input/output counts, locktime.
type SignInitRequest struct {
	Coin          coinparams.Coin
	ScriptConfigs []scriptconfig.Config
	Version       uint32
	NumInputs     uint32
	NumOutputs    uint32
	Locktime      uint32
}

// SignInputRequest describes one transaction input, shared by PrevtxInit
// (which establishes the referencing input for its prev-tx stream) and
// InputPass2 (which re-validates and signs).
type SignInputRequest struct {
	PrevOutHash         chainhash.Hash
	PrevOutIndex        uint32
	PrevOutValue        uint64
	Sequence            uint32
	Keypath             []uint32
	ScriptConfigIndex   uint32
	HostNonceCommitment *[32]byte
}

// SignOutputRequest describes one transaction output.
type SignOutputRequest struct {
	Ours              bool
	Type              scriptconfig.OutputType
	Value             uint64
	Payload           []byte
	Keypath           []uint32
	ScriptConfigIndex uint32
}

// AntiKleptoRequest carries the host's revealed nonce contribution.
type AntiKleptoRequest struct {
	HostNonce [32]byte
}
