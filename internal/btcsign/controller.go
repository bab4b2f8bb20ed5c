package btcsign

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/shiftsig/btcsign/internal/bip143"
	"github.com/shiftsig/btcsign/internal/coinparams"
	"github.com/shiftsig/btcsign/internal/config"
	"github.com/shiftsig/btcsign/internal/keystore"
	"github.com/shiftsig/btcsign/internal/logging"
	"github.com/shiftsig/btcsign/internal/prevtx"
	"github.com/shiftsig/btcsign/internal/scriptconfig"
	"github.com/shiftsig/btcsign/internal/ui"
	"github.com/shiftsig/btcsign/internal/varint"
)

// Controller is the process-wide sign session singleton: no two sign
// sessions may overlap. It owns the current session and the two external
// collaborators it blocks on or delegates to: the keystore and the UI.
type Controller struct {
	mu         sync.Mutex
	keystore   keystore.Keystore
	ui         ui.UI
	limiter    *rate.Limiter
	sessionSeq uint64

	sess *session
}

// New returns a Controller with no active session, backed by ks for
// signing and u for user confirmation. limiter throttles init() calls
// against a host hammering the session open; pass nil to disable
// throttling.
func New(ks keystore.Keystore, u ui.UI, limiter *rate.Limiter) *Controller {
	return &Controller{keystore: ks, ui: u, limiter: limiter}
}

// Reset zeroes all session state. It is called internally on every error
// path and every user abort, and is also exported so a dispatcher can
// call it directly on host disconnect.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

func (c *Controller) reset() {
	c.sess = nil
}

func (c *Controller) fail(err error) error {
	c.reset()
	return err
}

func (c *Controller) abort(reason string) error {
	c.ui.Status(config.StatusTransactionCanceled, false)
	c.sess.log.Info("sign session aborted", "reason", reason)
	return c.fail(fmt.Errorf("%w: %s", config.ErrUserAbort, reason))
}

// Init validates a SignInit request and, on success, starts a fresh
// session awaiting the first input's prev-tx stream.
func (c *Controller) Init(ctx context.Context, req SignInitRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.limiter != nil {
		waitCtx, cancel := context.WithTimeout(ctx, config.InitRateWait)
		defer cancel()
		if err := c.limiter.Wait(waitCtx); err != nil {
			return c.fail(fmt.Errorf("%w: %s", config.ErrRateLimited, err))
		}
	}

	if req.Version != config.TxVersion1 && req.Version != config.TxVersion2 {
		return c.fail(fmt.Errorf("%w: version %d", config.ErrInvalidVersion, req.Version))
	}
	if req.Locktime >= config.MaxLocktime {
		return c.fail(fmt.Errorf("%w: locktime %d", config.ErrInvalidLocktime, req.Locktime))
	}
	if req.NumInputs < 1 || req.NumOutputs < 1 {
		return c.fail(fmt.Errorf("%w: inputs=%d outputs=%d", config.ErrInvalidCount, req.NumInputs, req.NumOutputs))
	}
	if err := scriptconfig.ValidateAll(req.ScriptConfigs); err != nil {
		return c.fail(err)
	}
	params, err := coinparams.Lookup(req.Coin)
	if err != nil {
		return c.fail(err)
	}

	c.sessionSeq++
	log := logging.Session(c.sessionSeq)
	c.sess = newSession(req.Coin, params, req, log)
	log.Info("sign session initialized", "coin", req.Coin, "inputs", req.NumInputs, "outputs", req.NumOutputs, "locktime", req.Locktime)
	return nil
}

// validateInput checks an input message against script-config keypath
// policy and sequence/value invariants (I5, I6, I8), shared by
// PrevtxInit (first sight of the input) and InputPass2 (re-validation).
func (s *session) validateInput(req SignInputRequest) error {
	if req.PrevOutValue == 0 {
		return fmt.Errorf("%w: input prev_out_value", config.ErrZeroValue)
	}
	if req.Sequence < config.MinSequence {
		return fmt.Errorf("%w: sequence %#x below minimum %#x", config.ErrInvalidSequence, req.Sequence, config.MinSequence)
	}
	cfg, err := s.scriptConfig(req.ScriptConfigIndex)
	if err != nil {
		return err
	}
	if !scriptconfig.ValidKeypathForCoin(cfg.KeypathPrefix, req.Keypath, false, s.coinParams.BIP44Coin) {
		return fmt.Errorf("%w: input keypath does not match script config %d", config.ErrInvalidKeypath, req.ScriptConfigIndex)
	}
	return nil
}

// applySequencePolicy folds one input's sequence number into the
// session's sticky rbf_flag/locktime_applies state (I8).
func (s *session) applySequencePolicy(sequence uint32) {
	if sequence < config.MaxSequence {
		s.locktimeApplies = true
	}
	if sequence == config.RBFSequence && s.coinParams.RBFSupport {
		s.rbfFlag = ui.RBFOn
	}
}

// PrevtxInit starts the previous-transaction stream for the input
// referenced by input, which is the SignInput message that triggers
// this stream.
func (c *Controller) PrevtxInit(input SignInputRequest, req prevtx.InitRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.sess
	if s == nil || s.phase != phaseAwaitingPrevtxInit {
		return c.fail(errPhase(phaseOf(s), phaseAwaitingPrevtxInit))
	}
	if err := s.validateInput(input); err != nil {
		return c.fail(err)
	}

	s.applySequencePolicy(input.Sequence)

	ref := prevtx.ReferencingInput{
		PrevOutHash:  input.PrevOutHash,
		PrevOutIndex: input.PrevOutIndex,
		PrevOutValue: input.PrevOutValue,
	}
	hasher, err := prevtx.New(req, ref)
	if err != nil {
		return c.fail(err)
	}

	s.prevtxHasher = hasher
	inputCopy := input
	s.pendingInput = &inputCopy
	s.phase = phaseAwaitingPrevtxInput
	return nil
}

// PrevtxInput feeds one PrevTxInput message into the running prev-tx
// hash.
func (c *Controller) PrevtxInput(req prevtx.InputRequest, idx uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.sess
	if s == nil || s.phase != phaseAwaitingPrevtxInput {
		return c.fail(errPhase(phaseOf(s), phaseAwaitingPrevtxInput))
	}
	if err := s.prevtxHasher.Input(req, idx); err != nil {
		return c.fail(err)
	}
	return nil
}

// PrevtxOutput feeds one PrevTxOutput message into the running prev-tx
// hash. On the last output it finalizes the stream and checks the
// resulting double-SHA256 against the referencing input's claimed
// prevOutHash.
func (c *Controller) PrevtxOutput(req prevtx.OutputRequest, idx uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.sess
	if s == nil || (s.phase != phaseAwaitingPrevtxInput && s.phase != phaseAwaitingPrevtxOutput) {
		return c.fail(errPhase(phaseOf(s), phaseAwaitingPrevtxOutput))
	}
	s.phase = phaseAwaitingPrevtxOutput

	txid, err := s.prevtxHasher.Output(req, idx)
	if err != nil {
		return c.fail(err)
	}
	if txid == nil {
		return nil
	}

	s.prevtxHasher = nil
	s.phase = phaseAwaitingInputPass1
	return nil
}

// InputPass1 finalizes the input whose prev-tx stream just verified:
// feeds hashPrevouts/hashSequence and accumulates inputs_sum_pass1. On
// last, both digests are finalized and the session moves to the output
// phase.
func (c *Controller) InputPass1(last bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.sess
	if s == nil || s.phase != phaseAwaitingInputPass1 || s.pendingInput == nil {
		return c.fail(errPhase(phaseOf(s), phaseAwaitingInputPass1))
	}
	in := s.pendingInput

	s.hashPrevoutsCtx.Write(in.PrevOutHash[:])
	s.hashPrevoutsCtx.Write(varint.Uint32LE(in.PrevOutIndex))
	s.hashSequenceCtx.Write(varint.Uint32LE(in.Sequence))

	sum, err := checkedAdd(s.inputsSumPass1, in.PrevOutValue)
	if err != nil {
		return c.fail(err)
	}
	s.inputsSumPass1 = sum

	s.pendingInput = nil

	if !last {
		s.inputIdx++
		s.phase = phaseAwaitingPrevtxInit
		return nil
	}
	if s.inputIdx != s.numInputs-1 {
		return c.fail(fmt.Errorf("%w: input_pass1 marked last at index %d of %d", config.ErrInvalidCount, s.inputIdx, s.numInputs))
	}

	s.hashPrevouts = s.hashPrevoutsCtx.Sum()
	s.hashSequence = s.hashSequenceCtx.Sum()
	s.phase = phaseAwaitingOutput
	s.outputIdx = 0
	return nil
}

// buildOutputPayload derives the pkScript payload for an "ours" output
// and classifies its output type from the script config variant.
func (s *session) buildOutputPayload(cfg scriptconfig.Config, hash160 [20]byte, keypath []uint32) ([]byte, scriptconfig.OutputType, error) {
	outputType, err := cfg.OutputType()
	if err != nil {
		return nil, 0, err
	}
	change := keypath[len(keypath)-2] != 0
	addressIndex := keypath[len(keypath)-1]

	if cfg.Simple != nil {
		payload, err := scriptconfig.PayloadFromPubkeyHash(hash160[:], cfg.Simple.Type)
		return payload, outputType, err
	}
	payload, err := scriptconfig.PayloadFromMultisig(cfg.Multisig, change, addressIndex)
	return payload, outputType, err
}

// Output processes one SignOutput message: resolving "ours" payloads,
// accumulating sums, blocking on recipient verification for external
// outputs, and, on the last output, running the multi-change, RBF/
// locktime, and total confirmations before finalizing hashOutputs.
func (c *Controller) Output(req SignOutputRequest, last bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.sess
	if s == nil || s.phase != phaseAwaitingOutput {
		return c.fail(errPhase(phaseOf(s), phaseAwaitingOutput))
	}
	if req.Value == 0 {
		return c.fail(fmt.Errorf("%w: output value", config.ErrZeroValue))
	}

	var payload []byte
	var outputType scriptconfig.OutputType

	if req.Ours {
		cfg, err := s.scriptConfig(req.ScriptConfigIndex)
		if err != nil {
			return c.fail(err)
		}
		if !scriptconfig.ValidKeypathForCoin(cfg.KeypathPrefix, req.Keypath, true, s.coinParams.BIP44Coin) {
			return c.fail(fmt.Errorf("%w: change output keypath does not match script config %d", config.ErrInvalidKeypath, req.ScriptConfigIndex))
		}
		hash160, err := c.keystore.PubkeyHash160(req.Keypath)
		if err != nil {
			return c.fail(fmt.Errorf("%w: %s", config.ErrKeystoreFailure, err))
		}
		payload, outputType, err = s.buildOutputPayload(cfg, hash160, req.Keypath)
		if err != nil {
			return c.fail(err)
		}
		sum, err := checkedAdd(s.outputsSumOurs, req.Value)
		if err != nil {
			return c.fail(err)
		}
		s.outputsSumOurs = sum
		s.numChanges++
	} else {
		payload = req.Payload
		outputType = req.Type
		sum, err := checkedAdd(s.outputsSumOut, req.Value)
		if err != nil {
			return c.fail(err)
		}
		s.outputsSumOut = sum

		addr, err := scriptconfig.AddressFromPayload(s.coinParams.ChainParams, outputType, payload)
		if err != nil {
			return c.fail(err)
		}
		amountStr := scriptconfig.FormatAmount(req.Value, s.coinParams.Unit)
		if !c.ui.VerifyRecipient(addr, amountStr) {
			return c.abort("recipient not verified")
		}
	}

	pkScript, err := scriptconfig.PkScriptFromPayload(outputType, payload)
	if err != nil {
		return c.fail(err)
	}
	s.hashOutputsCtx.Write(varint.Uint64LE(req.Value))
	scriptBuf, err := varint.VarBuff(pkScript)
	if err != nil {
		return c.fail(fmt.Errorf("%w: output pkScript varbuff: %s", config.ErrEncodingFailure, err))
	}
	s.hashOutputsCtx.Write(scriptBuf)

	if !last {
		s.outputIdx++
		return nil
	}
	if s.outputIdx != s.numOutputs-1 {
		return c.fail(fmt.Errorf("%w: output marked last at index %d of %d", config.ErrInvalidCount, s.outputIdx, s.numOutputs))
	}

	if s.numChanges > 1 {
		if !c.ui.ConfirmMultipleChanges(int(s.numChanges)) {
			return c.abort("multiple change outputs not confirmed")
		}
	}

	if s.locktime > 0 && (s.locktimeApplies || s.rbfFlag == ui.RBFOn) {
		if !s.coinParams.RBFSupport {
			s.rbfFlag = ui.RBFDisabled
		}
		if !c.ui.ConfirmLocktimeRBF(s.locktime, s.rbfFlag) {
			return c.abort("locktime/RBF not confirmed")
		}
	}

	totalOut, err := checkedSub(s.inputsSumPass1, s.outputsSumOurs)
	if err != nil {
		return c.fail(err)
	}
	fee, err := checkedSub(totalOut, s.outputsSumOut)
	if err != nil {
		return c.fail(err)
	}
	totalStr := scriptconfig.FormatAmount(totalOut, s.coinParams.Unit)
	feeStr := scriptconfig.FormatAmount(fee, s.coinParams.Unit)
	if !c.ui.VerifyTotal(totalStr, feeStr) {
		return c.abort("total not verified")
	}

	c.ui.Status(config.StatusTransactionConfirmed, true)

	s.hashOutputs = s.hashOutputsCtx.Sum()
	s.phase = phaseAwaitingInputPass2
	s.pass2Idx = 0
	return nil
}

// InputPass2 re-validates an input and signs it: if the request carries a
// host nonce commitment, it returns a signer commitment and the session
// awaits the matching antiklepto() reveal; otherwise it returns the
// signature directly.
func (c *Controller) InputPass2(req SignInputRequest, last bool) (commitment *[33]byte, signature *[64]byte, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.sess
	if s == nil || s.phase != phaseAwaitingInputPass2 {
		return nil, nil, c.fail(errPhase(phaseOf(s), phaseAwaitingInputPass2))
	}
	if err := s.validateInput(req); err != nil {
		return nil, nil, c.fail(err)
	}
	if last && s.pass2Idx != s.numInputs-1 {
		return nil, nil, c.fail(fmt.Errorf("%w: input_pass2 marked last at index %d of %d", config.ErrInvalidCount, s.pass2Idx, s.numInputs))
	}

	sum, addErr := checkedAdd(s.inputsSumPass2, req.PrevOutValue)
	if addErr != nil {
		return nil, nil, c.fail(addErr)
	}
	if sum > s.inputsSumPass1 {
		return nil, nil, c.fail(fmt.Errorf("%w: pass2 sum %d exceeds pass1 sum %d", config.ErrPassSumMismatch, sum, s.inputsSumPass1))
	}
	if last && sum != s.inputsSumPass1 {
		return nil, nil, c.fail(fmt.Errorf("%w: pass2 total %d != pass1 total %d", config.ErrPassSumMismatch, sum, s.inputsSumPass1))
	}
	s.inputsSumPass2 = sum

	hash160, err := c.keystore.PubkeyHash160(req.Keypath)
	if err != nil {
		return nil, nil, c.fail(fmt.Errorf("%w: %s", config.ErrKeystoreFailure, err))
	}
	cfg, err := s.scriptConfig(req.ScriptConfigIndex)
	if err != nil {
		return nil, nil, c.fail(err)
	}
	change := req.Keypath[len(req.Keypath)-2] != 0
	addressIndex := req.Keypath[len(req.Keypath)-1]
	sighashScript, err := cfg.SighashScript(hash160[:], change, addressIndex)
	if err != nil {
		return nil, nil, c.fail(err)
	}

	sighash, err := bip143.Sighash(s.version, bip143.Digests{
		HashPrevouts: s.hashPrevouts,
		HashSequence: s.hashSequence,
		HashOutputs:  s.hashOutputs,
	}, bip143.Input{
		PrevOutHash:   req.PrevOutHash,
		PrevOutIndex:  req.PrevOutIndex,
		SighashScript: sighashScript,
		PrevOutValue:  req.PrevOutValue,
		Sequence:      req.Sequence,
	}, s.locktime)
	if err != nil {
		return nil, nil, c.fail(err)
	}

	if req.HostNonceCommitment != nil {
		commit, err := c.keystore.AntikleptoCommit(req.Keypath, sighash, *req.HostNonceCommitment)
		if err != nil {
			return nil, nil, c.fail(fmt.Errorf("%w: %s", config.ErrKeystoreFailure, err))
		}
		s.antikleptoKeypath = req.Keypath
		s.phase = phaseAwaitingAntiklepto
		// pass2Idx is left as is and last is kept in pendingLast, so
		// antiklepto() advances using the same bookkeeping InputPass2
		// would have used directly.
		s.pendingLast = last
		return &commit, nil, nil
	}

	sig, err := c.keystore.Sign(req.Keypath, sighash, [32]byte{})
	if err != nil {
		return nil, nil, c.fail(fmt.Errorf("%w: %s", config.ErrKeystoreFailure, err))
	}
	c.advancePass2(last)
	return nil, &sig, nil
}

// Antiklepto completes the anti-klepto reveal for the input that just
// committed in InputPass2.
func (c *Controller) Antiklepto(req AntiKleptoRequest) ([64]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.sess
	if s == nil || s.phase != phaseAwaitingAntiklepto {
		return [64]byte{}, c.fail(errPhase(phaseOf(s), phaseAwaitingAntiklepto))
	}

	sig, err := c.keystore.AntikleptoSign(req.HostNonce)
	if err != nil {
		return [64]byte{}, c.fail(fmt.Errorf("%w: %s", config.ErrKeystoreFailure, err))
	}

	last := s.pendingLast
	s.antikleptoKeypath = nil
	c.advancePass2(last)
	return sig, nil
}

// advancePass2 moves the session to the next pass-2 input, or tears the
// whole session down once the last input's signature has been produced.
func (c *Controller) advancePass2(last bool) {
	if last {
		c.sess.log.Info("sign session complete")
		c.reset()
		return
	}
	c.sess.pass2Idx++
	c.sess.phase = phaseAwaitingInputPass2
}

func phaseOf(s *session) phase {
	if s == nil {
		return phaseUninitialized
	}
	return s.phase
}
