package btcsign

import (
	"log/slog"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/shiftsig/btcsign/internal/coinparams"
	"github.com/shiftsig/btcsign/internal/dhash"
	"github.com/shiftsig/btcsign/internal/prevtx"
	"github.com/shiftsig/btcsign/internal/scriptconfig"
	"github.com/shiftsig/btcsign/internal/ui"
)

// phase tags the session's position in the init -> prevtx stream (per
// input) -> input_pass1 -> output -> input_pass2 -> antiklepto ordering.
// Every entrypoint asserts the phase it expects and transitions atomically
// on success; any mismatch is a phase-ordering error.
type phase int

const (
	// phaseUninitialized is the state before init() or after any reset.
	phaseUninitialized phase = iota
	// phaseAwaitingPrevtxInit expects prevtx_init for session.inputIdx,
	// bundled with the SignInput message that triggers the stream.
	phaseAwaitingPrevtxInit
	// phaseAwaitingPrevtxInput expects prevtx_input for session.inputIdx's
	// prev-tx stream, until the first prevtx_output arrives.
	phaseAwaitingPrevtxInput
	// phaseAwaitingPrevtxOutput expects prevtx_output for session.inputIdx's
	// prev-tx stream.
	phaseAwaitingPrevtxOutput
	// phaseAwaitingInputPass1 expects input_pass1 to finalize the input
	// whose prev-tx stream just verified.
	phaseAwaitingInputPass1
	// phaseAwaitingOutput expects output() for session.outputIdx.
	phaseAwaitingOutput
	// phaseAwaitingInputPass2 expects input_pass2 for session.pass2Idx.
	phaseAwaitingInputPass2
	// phaseAwaitingAntiklepto expects antiklepto() to reveal the host
	// nonce for the input currently pending anti-klepto signature.
	phaseAwaitingAntiklepto
)

// session holds all state for one sign session. It is created fresh by
// init and dropped wholesale by reset, never mutated across a reset
// boundary: reset sets the controller's session to nil rather than
// clearing fields on the old one, and the next init builds a new one.
type session struct {
	phase phase
	log   *slog.Logger

	coin       coinparams.Coin
	coinParams coinparams.Params

	version       uint32
	locktime      uint32
	numInputs     uint32
	numOutputs    uint32
	scriptConfigs []scriptconfig.Config

	rbfFlag         ui.RBFFlag
	locktimeApplies bool

	inputsSumPass1 uint64
	inputsSumPass2 uint64
	outputsSumOurs uint64
	outputsSumOut  uint64
	numChanges     uint16

	hashPrevoutsCtx *dhash.Accumulator
	hashSequenceCtx *dhash.Accumulator
	hashOutputsCtx  *dhash.Accumulator
	hashPrevouts    chainhash.Hash
	hashSequence    chainhash.Hash
	hashOutputs     chainhash.Hash

	inputIdx  uint32
	outputIdx uint32
	pass2Idx  uint32

	prevtxHasher *prevtx.Hasher
	pendingInput *SignInputRequest

	antikleptoKeypath []uint32
	pendingLast       bool
}

// newSession builds a fresh session from a validated init request, with
// log scoped to this session's id so its init/abort/complete lines can be
// correlated across the many host messages that drive it.
func newSession(coin coinparams.Coin, params coinparams.Params, req SignInitRequest, log *slog.Logger) *session {
	return &session{
		phase:           phaseAwaitingPrevtxInit,
		log:             log,
		coin:            coin,
		coinParams:      params,
		version:         req.Version,
		locktime:        req.Locktime,
		numInputs:       req.NumInputs,
		numOutputs:      req.NumOutputs,
		scriptConfigs:   req.ScriptConfigs,
		rbfFlag:         ui.RBFOff,
		hashPrevoutsCtx: dhash.New(),
		hashSequenceCtx: dhash.New(),
		hashOutputsCtx:  dhash.New(),
	}
}

// scriptConfig returns the script config at idx, or an error wrapping
// config.ErrScriptConfigIndex if it is out of range.
func (s *session) scriptConfig(idx uint32) (scriptconfig.Config, error) {
	if int(idx) >= len(s.scriptConfigs) {
		return scriptconfig.Config{}, errScriptConfigIndex(idx, len(s.scriptConfigs))
	}
	return s.scriptConfigs[idx], nil
}
