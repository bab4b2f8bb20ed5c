package btcsign

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/shiftsig/btcsign/internal/coinparams"
	"github.com/shiftsig/btcsign/internal/dhash"
	"github.com/shiftsig/btcsign/internal/keystore"
	"github.com/shiftsig/btcsign/internal/prevtx"
	"github.com/shiftsig/btcsign/internal/scriptconfig"
	"github.com/shiftsig/btcsign/internal/ui"
	"github.com/shiftsig/btcsign/internal/varint"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func newTestKeystore(t *testing.T) keystore.Keystore {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "mnemonic.txt")
	if err := os.WriteFile(path, []byte(testMnemonic), 0o600); err != nil {
		t.Fatal(err)
	}
	return keystore.New(path, &chaincfg.TestNet3Params)
}

var testPrefix = []uint32{0x80000054, 0x80000001, 0x80000000}

func simpleScriptConfig() scriptconfig.Config {
	return scriptconfig.Config{
		KeypathPrefix: testPrefix,
		Simple:        &scriptconfig.SimpleConfig{Type: scriptconfig.P2WPKH},
	}
}

func testKeypath(addressIndex uint32) []uint32 {
	return append(append([]uint32{}, testPrefix...), 0, addressIndex)
}

func testChangeKeypath(addressIndex uint32) []uint32 {
	return append(append([]uint32{}, testPrefix...), 1, addressIndex)
}

// buildDummyPrevTx computes the double-SHA256 of a minimal 1-input/
// 1-output legacy transaction the same way internal/prevtx does, so
// tests can hand the controller a self-consistent prevOutHash without
// depending on the controller itself to have produced it.
func buildDummyPrevTx(claimedValue uint64, marker byte) (chainhash.Hash, []byte, []byte) {
	sigScript := []byte{marker, 0x02}
	pkScript := []byte{0x76, 0xa9, 0x14, marker}

	acc := dhash.New()
	acc.Write(varint.Uint32LE(1))
	acc.Write([]byte{0x01})
	var zero chainhash.Hash
	acc.Write(zero[:])
	acc.Write(varint.Uint32LE(0))
	sigBuf, _ := varint.VarBuff(sigScript)
	acc.Write(sigBuf)
	acc.Write(varint.Uint32LE(0xffffffff))
	acc.Write([]byte{0x01})
	acc.Write(varint.Uint64LE(claimedValue))
	pkBuf, _ := varint.VarBuff(pkScript)
	acc.Write(pkBuf)
	acc.Write(varint.Uint32LE(0))
	return acc.Sum(), sigScript, pkScript
}

// streamInput drives PrevtxInit/PrevtxInput/PrevtxOutput/InputPass1 for
// one input, given a self-consistent prev-tx built by buildDummyPrevTx.
func streamInput(t *testing.T, c *Controller, req SignInputRequest, sigScript, pkScript []byte, last bool) {
	t.Helper()
	if err := c.PrevtxInit(req, prevtx.InitRequest{Version: 1, NumInputs: 1, NumOutputs: 1}); err != nil {
		t.Fatalf("PrevtxInit() error = %v", err)
	}
	if err := c.PrevtxInput(prevtx.InputRequest{SignatureScript: sigScript, Sequence: 0xffffffff}, 0); err != nil {
		t.Fatalf("PrevtxInput() error = %v", err)
	}
	if err := c.PrevtxOutput(prevtx.OutputRequest{Value: req.PrevOutValue, PubkeyScript: pkScript}, 0); err != nil {
		t.Fatalf("PrevtxOutput() error = %v", err)
	}
	if err := c.InputPass1(last); err != nil {
		t.Fatalf("InputPass1() error = %v", err)
	}
}

func newTestController(t *testing.T, stub *ui.Stub) *Controller {
	t.Helper()
	return New(newTestKeystore(t), stub, nil)
}

// TestSingleInputSingleOutputNoChange covers one 100,000-sat input, one
// 90,000-sat external output, version 2, locktime 0.
func TestSingleInputSingleOutputNoChange(t *testing.T) {
	stub := ui.NewStub(true, true)
	c := newTestController(t, stub)

	initReq := SignInitRequest{
		Coin:          coinparams.TBTC,
		ScriptConfigs: []scriptconfig.Config{simpleScriptConfig()},
		Version:       2,
		NumInputs:     1,
		NumOutputs:    1,
		Locktime:      0,
	}
	if err := c.Init(context.Background(), initReq); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	txid, sigScript, pkScript := buildDummyPrevTx(100_000, 0x01)
	input := SignInputRequest{
		PrevOutHash:       txid,
		PrevOutIndex:      0,
		PrevOutValue:      100_000,
		Sequence:          0xffffffff,
		Keypath:           testKeypath(0),
		ScriptConfigIndex: 0,
	}
	streamInput(t, c, input, sigScript, pkScript, true)

	payload := make([]byte, 20)
	payload[0] = 0xaa
	if err := c.Output(SignOutputRequest{
		Ours:    false,
		Type:    scriptconfig.OutputP2WPKH,
		Value:   90_000,
		Payload: payload,
	}, true); err != nil {
		t.Fatalf("Output() error = %v", err)
	}
	if len(stub.Calls) < 2 || stub.Calls[0].Method != "verify_recipient" || stub.Calls[1].Method != "verify_total" {
		t.Fatalf("unexpected UI call sequence: %+v", stub.Calls)
	}
	if stub.Calls[1].Args[0] != "0.001 TBTC" || stub.Calls[1].Args[1] != "0.0001 TBTC" {
		t.Errorf("verify_total args = %v, want total 0.001 TBTC fee 0.0001 TBTC", stub.Calls[1].Args)
	}

	commit, sig, err := c.InputPass2(input, true)
	if err != nil {
		t.Fatalf("InputPass2() error = %v", err)
	}
	if commit != nil {
		t.Error("InputPass2() returned a commitment for a legacy (non-antiklepto) input")
	}
	if sig == nil || len(sig) != 64 {
		t.Fatalf("InputPass2() signature = %v, want 64 bytes", sig)
	}
	if c.sess != nil {
		t.Error("session not reset after terminal input_pass2")
	}
}

// TestTwoInputsChangeAndLocktime covers two inputs, one external + one
// change output, sequence 0xFFFFFFFE, locktime 600000.
func TestTwoInputsChangeAndLocktime(t *testing.T) {
	stub := ui.NewStub(true, true, true)
	c := newTestController(t, stub)

	initReq := SignInitRequest{
		Coin:          coinparams.TBTC,
		ScriptConfigs: []scriptconfig.Config{simpleScriptConfig()},
		Version:       2,
		NumInputs:     2,
		NumOutputs:    2,
		Locktime:      600000,
	}
	if err := c.Init(context.Background(), initReq); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	txid1, sig1, pk1 := buildDummyPrevTx(60_000, 0x01)
	in1 := SignInputRequest{PrevOutHash: txid1, PrevOutValue: 60_000, Sequence: 0xfffffffe, Keypath: testKeypath(0), ScriptConfigIndex: 0}
	streamInput(t, c, in1, sig1, pk1, false)

	txid2, sig2, pk2 := buildDummyPrevTx(40_000, 0x02)
	in2 := SignInputRequest{PrevOutHash: txid2, PrevOutValue: 40_000, Sequence: 0xfffffffe, Keypath: testKeypath(1), ScriptConfigIndex: 0}
	streamInput(t, c, in2, sig2, pk2, true)

	extPayload := make([]byte, 20)
	extPayload[0] = 0xbb
	if err := c.Output(SignOutputRequest{Ours: false, Type: scriptconfig.OutputP2WPKH, Value: 80_000, Payload: extPayload}, false); err != nil {
		t.Fatalf("Output() external error = %v", err)
	}
	if err := c.Output(SignOutputRequest{Ours: true, Value: 19_000, Keypath: testChangeKeypath(1), ScriptConfigIndex: 0}, true); err != nil {
		t.Fatalf("Output() change error = %v", err)
	}

	wantCalls := []string{"verify_recipient", "confirm_locktime_rbf", "verify_total", "status"}
	if len(stub.Calls) != len(wantCalls) {
		t.Fatalf("UI calls = %+v, want %v", stub.Calls, wantCalls)
	}
	for i, m := range wantCalls {
		if stub.Calls[i].Method != m {
			t.Errorf("UI call %d = %s, want %s", i, stub.Calls[i].Method, m)
		}
	}
	if stub.Calls[1].Args[0] != "OFF" {
		t.Errorf("confirm_locktime_rbf flag = %s, want OFF (sequence below max but not the RBF marker)", stub.Calls[1].Args[0])
	}

	if _, sig, err := c.InputPass2(in1, false); err != nil || sig == nil {
		t.Fatalf("InputPass2(in1) error = %v, sig = %v", err, sig)
	}
	if _, sig, err := c.InputPass2(in2, true); err != nil || sig == nil {
		t.Fatalf("InputPass2(in2) error = %v, sig = %v", err, sig)
	}
	if c.sess != nil {
		t.Error("session not reset after terminal input_pass2")
	}
}

// TestRBFSupportedCoin covers one input with sequence 0xFFFFFFFD on a
// coin that supports RBF.
func TestRBFSupportedCoin(t *testing.T) {
	stub := ui.NewStub(true, true)
	c := newTestController(t, stub)

	initReq := SignInitRequest{
		Coin:          coinparams.TBTC,
		ScriptConfigs: []scriptconfig.Config{simpleScriptConfig()},
		Version:       2,
		NumInputs:     1,
		NumOutputs:    1,
		Locktime:      1000,
	}
	if err := c.Init(context.Background(), initReq); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	txid, sigScript, pkScript := buildDummyPrevTx(50_000, 0x03)
	input := SignInputRequest{PrevOutHash: txid, PrevOutValue: 50_000, Sequence: 0xfffffffd, Keypath: testKeypath(0), ScriptConfigIndex: 0}
	streamInput(t, c, input, sigScript, pkScript, true)

	payload := make([]byte, 20)
	if err := c.Output(SignOutputRequest{Ours: false, Type: scriptconfig.OutputP2WPKH, Value: 45_000, Payload: payload}, true); err != nil {
		t.Fatalf("Output() error = %v", err)
	}
	if len(stub.Calls) != 4 || stub.Calls[1].Method != "confirm_locktime_rbf" || stub.Calls[1].Args[0] != "ON" {
		t.Fatalf("expected confirm_locktime_rbf with ON flag, got %+v", stub.Calls)
	}
}

// TestMismatchedPrevTx covers a prev-tx stream whose double-SHA256 does
// not match the referencing input's claimed prevOutHash: it fails at the
// terminal prevtx_output and resets the session.
func TestMismatchedPrevTx(t *testing.T) {
	stub := ui.NewStub()
	c := newTestController(t, stub)

	initReq := SignInitRequest{
		Coin:          coinparams.TBTC,
		ScriptConfigs: []scriptconfig.Config{simpleScriptConfig()},
		Version:       2,
		NumInputs:     1,
		NumOutputs:    1,
	}
	if err := c.Init(context.Background(), initReq); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	txid, sigScript, pkScript := buildDummyPrevTx(100_000, 0x04)
	input := SignInputRequest{PrevOutHash: txid, PrevOutValue: 100_000, Sequence: 0xffffffff, Keypath: testKeypath(0), ScriptConfigIndex: 0}

	if err := c.PrevtxInit(input, prevtx.InitRequest{Version: 1, NumInputs: 1, NumOutputs: 1}); err != nil {
		t.Fatalf("PrevtxInit() error = %v", err)
	}
	if err := c.PrevtxInput(prevtx.InputRequest{SignatureScript: sigScript, Sequence: 0xffffffff}, 0); err != nil {
		t.Fatalf("PrevtxInput() error = %v", err)
	}
	// Tamper with the streamed output's pkScript so the resulting
	// double-SHA256 no longer matches txid.
	tamperedPk := append(append([]byte{}, pkScript...), 0xff)
	if err := c.PrevtxOutput(prevtx.OutputRequest{Value: 100_000, PubkeyScript: tamperedPk}, 0); err == nil {
		t.Fatal("expected error for tampered prev-tx")
	}
	if c.sess != nil {
		t.Error("session not reset after prev-tx hash mismatch")
	}
}

// TestPassSumMismatch covers altering an input's claimed value between
// pass 1 and pass 2: it fails the final equality check.
func TestPassSumMismatch(t *testing.T) {
	stub := ui.NewStub(true, true)
	c := newTestController(t, stub)

	initReq := SignInitRequest{
		Coin:          coinparams.TBTC,
		ScriptConfigs: []scriptconfig.Config{simpleScriptConfig()},
		Version:       2,
		NumInputs:     2,
		NumOutputs:    1,
	}
	if err := c.Init(context.Background(), initReq); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	txid1, sig1, pk1 := buildDummyPrevTx(60_000, 0x05)
	in1 := SignInputRequest{PrevOutHash: txid1, PrevOutValue: 60_000, Sequence: 0xffffffff, Keypath: testKeypath(0), ScriptConfigIndex: 0}
	streamInput(t, c, in1, sig1, pk1, false)

	txid2, sig2, pk2 := buildDummyPrevTx(40_000, 0x06)
	in2 := SignInputRequest{PrevOutHash: txid2, PrevOutValue: 40_000, Sequence: 0xffffffff, Keypath: testKeypath(1), ScriptConfigIndex: 0}
	streamInput(t, c, in2, sig2, pk2, true)

	payload := make([]byte, 20)
	if err := c.Output(SignOutputRequest{Ours: false, Type: scriptconfig.OutputP2WPKH, Value: 90_000, Payload: payload}, true); err != nil {
		t.Fatalf("Output() error = %v", err)
	}

	if _, _, err := c.InputPass2(in1, false); err != nil {
		t.Fatalf("InputPass2(in1) error = %v", err)
	}

	tampered := in2
	tampered.PrevOutValue--
	if _, _, err := c.InputPass2(tampered, true); err == nil {
		t.Fatal("expected pass-sum mismatch error")
	}
	if c.sess != nil {
		t.Error("session not reset after pass-sum mismatch")
	}
}

// TestAntiKleptoRoundTrip covers a pass-2 input carrying a host nonce
// commitment: it receives a 33-byte signer commitment, then a follow-up
// antiklepto() call reveals the 64-byte signature.
func TestAntiKleptoRoundTrip(t *testing.T) {
	stub := ui.NewStub(true, true)
	c := newTestController(t, stub)

	initReq := SignInitRequest{
		Coin:          coinparams.TBTC,
		ScriptConfigs: []scriptconfig.Config{simpleScriptConfig()},
		Version:       2,
		NumInputs:     1,
		NumOutputs:    1,
	}
	if err := c.Init(context.Background(), initReq); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	txid, sigScript, pkScript := buildDummyPrevTx(100_000, 0x07)
	input := SignInputRequest{PrevOutHash: txid, PrevOutValue: 100_000, Sequence: 0xffffffff, Keypath: testKeypath(0), ScriptConfigIndex: 0}
	streamInput(t, c, input, sigScript, pkScript, true)

	payload := make([]byte, 20)
	if err := c.Output(SignOutputRequest{Ours: false, Type: scriptconfig.OutputP2WPKH, Value: 90_000, Payload: payload}, true); err != nil {
		t.Fatalf("Output() error = %v", err)
	}

	var hostCommitment [32]byte
	hostCommitment[0] = 0x42
	input.HostNonceCommitment = &hostCommitment

	commit, sig, err := c.InputPass2(input, true)
	if err != nil {
		t.Fatalf("InputPass2() error = %v", err)
	}
	if sig != nil {
		t.Error("InputPass2() returned a signature before the antiklepto reveal")
	}
	if commit == nil || len(commit) != 33 {
		t.Fatalf("InputPass2() commitment = %v, want 33 bytes", commit)
	}

	var hostNonce [32]byte
	hostNonce[0] = 0x99
	finalSig, err := c.Antiklepto(AntiKleptoRequest{HostNonce: hostNonce})
	if err != nil {
		t.Fatalf("Antiklepto() error = %v", err)
	}
	if len(finalSig) != 64 {
		t.Errorf("Antiklepto() signature length = %d, want 64", len(finalSig))
	}
	if c.sess != nil {
		t.Error("session not reset after terminal antiklepto reveal")
	}
}

// TestOverflowRejected covers P3: an input-value sum exceeding
// 2^64-1 is rejected without corrupting subsequent operations.
func TestOverflowRejected(t *testing.T) {
	stub := ui.NewStub()
	c := newTestController(t, stub)

	initReq := SignInitRequest{
		Coin:          coinparams.TBTC,
		ScriptConfigs: []scriptconfig.Config{simpleScriptConfig()},
		Version:       2,
		NumInputs:     2,
		NumOutputs:    1,
	}
	if err := c.Init(context.Background(), initReq); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	txid1, sig1, pk1 := buildDummyPrevTx(math.MaxUint64, 0x08)
	in1 := SignInputRequest{PrevOutHash: txid1, PrevOutValue: math.MaxUint64, Sequence: 0xffffffff, Keypath: testKeypath(0), ScriptConfigIndex: 0}
	streamInput(t, c, in1, sig1, pk1, false)

	txid2, sig2, pk2 := buildDummyPrevTx(1, 0x09)
	in2 := SignInputRequest{PrevOutHash: txid2, PrevOutValue: 1, Sequence: 0xffffffff, Keypath: testKeypath(1), ScriptConfigIndex: 0}

	if err := c.PrevtxInit(in2, prevtx.InitRequest{Version: 1, NumInputs: 1, NumOutputs: 1}); err != nil {
		t.Fatalf("PrevtxInit() error = %v", err)
	}
	if err := c.PrevtxInput(prevtx.InputRequest{SignatureScript: sig2, Sequence: 0xffffffff}, 0); err != nil {
		t.Fatalf("PrevtxInput() error = %v", err)
	}
	if err := c.PrevtxOutput(prevtx.OutputRequest{Value: 1, PubkeyScript: pk2}, 0); err != nil {
		t.Fatalf("PrevtxOutput() error = %v", err)
	}
	if err := c.InputPass1(true); err == nil {
		t.Fatal("expected overflow error on input_pass1")
	}
	if c.sess != nil {
		t.Error("session not reset after overflow")
	}
}

// TestPhaseOrderingRejectsOutOfOrder covers P8: invoking an operation
// out of order is rejected and resets whatever session existed.
func TestPhaseOrderingRejectsOutOfOrder(t *testing.T) {
	stub := ui.NewStub()
	c := newTestController(t, stub)

	if err := c.InputPass1(true); err == nil {
		t.Fatal("expected phase error calling input_pass1 before init")
	}
	if c.sess != nil {
		t.Error("session should remain nil after an out-of-order call with no active session")
	}

	initReq := SignInitRequest{
		Coin:          coinparams.TBTC,
		ScriptConfigs: []scriptconfig.Config{simpleScriptConfig()},
		Version:       2,
		NumInputs:     1,
		NumOutputs:    1,
	}
	if err := c.Init(context.Background(), initReq); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := c.Output(SignOutputRequest{Value: 1}, true); err == nil {
		t.Fatal("expected phase error calling output before any input is processed")
	}
	if c.sess != nil {
		t.Error("session not reset after out-of-order call")
	}
}

// TestResetIdempotent covers P7: calling Reset twice is the same as
// calling it once.
func TestResetIdempotent(t *testing.T) {
	c := newTestController(t, ui.NewStub())
	c.Reset()
	c.Reset()
	if c.sess != nil {
		t.Error("session should be nil after repeated Reset()")
	}
}
