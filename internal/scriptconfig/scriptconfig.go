// Package scriptconfig models the account-level script configuration
// named in a sign session: either a single-sig variant (native P2WPKH or
// nested P2WPKH-in-P2SH) or a multisig witness-script variant, plus the
// keypath whitelisting and payload/address/amount formatting helpers the
// core controller treats as external collaborators.
//
// The Config type mirrors the tagged union in the original firmware's
// BTCScriptConfig protobuf oneof (simple_type vs. multisig), kept as a
// single struct with exactly one of Simple/Multisig set rather than an
// interface, so the core controller can exhaustively switch on it the
// same way the C source switches on which_config.
package scriptconfig

import (
	"crypto/sha256"
	"fmt"
	"math/big"
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/mr-tron/base58"

	"github.com/shiftsig/btcsign/internal/config"
)

// SimpleType enumerates the supported single-sig script variants.
type SimpleType int

const (
	P2WPKH SimpleType = iota
	P2WPKHP2SH
)

// MultisigScriptType enumerates the supported multisig witness-script
// variants. Only P2WSH multisig is supported; legacy P2SH multisig is
// out of scope (no non-BIP143 signing).
type MultisigScriptType int

const (
	MultisigP2WSH MultisigScriptType = iota
)

// OutputType classifies a produced or claimed output payload, whether it
// came from a script config variant or was copied verbatim from a
// non-"ours" request.
type OutputType int

const (
	OutputP2WPKH OutputType = iota
	OutputP2WPKHP2SH
	OutputP2WSH
)

// SimpleConfig is the "simple" arm of the script config union.
type SimpleConfig struct {
	Type SimpleType
}

// MultisigConfig is the "multisig" arm of the script config union.
type MultisigConfig struct {
	ScriptType   MultisigScriptType
	Threshold    uint32
	Xpubs        []*hdkeychain.ExtendedKey
	OurXpubIndex uint32
}

// Config is one entry of init_request.script_configs: a BIP-32 keypath
// prefix plus exactly one of Simple or Multisig.
type Config struct {
	KeypathPrefix []uint32
	Simple        *SimpleConfig
	Multisig      *MultisigConfig
}

// OutputType classifies the output produced by this script config.
func (c Config) OutputType() (OutputType, error) {
	switch {
	case c.Simple != nil && c.Multisig == nil:
		switch c.Simple.Type {
		case P2WPKH:
			return OutputP2WPKH, nil
		case P2WPKHP2SH:
			return OutputP2WPKHP2SH, nil
		}
	case c.Multisig != nil && c.Simple == nil:
		return OutputP2WSH, nil
	}
	return 0, fmt.Errorf("%w: script config must set exactly one of Simple/Multisig", config.ErrInvalidScriptConfig)
}

// Validate checks a single script config for internal consistency. It
// does not check keypath compatibility with a given coin; see
// ValidKeypath for that.
func Validate(cfg Config) error {
	if (cfg.Simple == nil) == (cfg.Multisig == nil) {
		return fmt.Errorf("%w: exactly one of Simple/Multisig must be set", config.ErrInvalidScriptConfig)
	}
	if cfg.Multisig != nil {
		m := cfg.Multisig
		n := uint32(len(m.Xpubs))
		if n < 1 {
			return fmt.Errorf("%w: multisig config has no xpubs", config.ErrInvalidScriptConfig)
		}
		if m.Threshold < 1 || m.Threshold > n {
			return fmt.Errorf("%w: multisig threshold %d out of range for %d xpubs", config.ErrInvalidScriptConfig, m.Threshold, n)
		}
		if m.OurXpubIndex >= n {
			return fmt.Errorf("%w: our_xpub_index %d out of range", config.ErrInvalidScriptConfig, m.OurXpubIndex)
		}
	}
	return nil
}

// ValidateAll validates every script config named by a sign session.
func ValidateAll(cfgs []Config) error {
	if len(cfgs) == 0 {
		return fmt.Errorf("%w: no script configs", config.ErrInvalidScriptConfig)
	}
	for i, c := range cfgs {
		if err := Validate(c); err != nil {
			return fmt.Errorf("script config %d: %w", i, err)
		}
	}
	return nil
}

// ValidKeypath checks invariant I6 (and, when mustBeChange, I7): the full
// keypath must equal the script config's account prefix followed by
// exactly two elements (change, address_index), and for a change output
// the change element must be 1.
func ValidKeypath(prefix []uint32, keypath []uint32, mustBeChange bool) bool {
	if len(keypath) != len(prefix)+2 {
		return false
	}
	for i, p := range prefix {
		if keypath[i] != p {
			return false
		}
	}
	change := keypath[len(keypath)-2]
	if change != 0 && change != 1 {
		return false
	}
	if mustBeChange && change != 1 {
		return false
	}
	return true
}

// ValidKeypathForCoin additionally checks that the prefix's BIP-44 coin
// element (keypath element 1, hardened) matches bip44Coin, when the
// prefix carries at least two elements (purpose', coin', ...).
func ValidKeypathForCoin(prefix []uint32, keypath []uint32, mustBeChange bool, bip44Coin uint32) bool {
	if !ValidKeypath(prefix, keypath, mustBeChange) {
		return false
	}
	if len(prefix) < 2 {
		return true
	}
	want := bip44Coin | hdkeychain.HardenedKeyStart
	return prefix[1] == want
}

// FormatAmount renders value (expressed in the coin's smallest unit, 1e8
// per whole coin) as a decimal string suffixed with unit, e.g.
// "0.0009 BTC". Trailing zero fractional digits are trimmed.
func FormatAmount(value uint64, unit string) string {
	whole := value / 100_000_000
	frac := value % 100_000_000
	fracStr := fmt.Sprintf("%08d", frac)
	for len(fracStr) > 0 && fracStr[len(fracStr)-1] == '0' {
		fracStr = fracStr[:len(fracStr)-1]
	}
	if fracStr == "" {
		return fmt.Sprintf("%d %s", whole, unit)
	}
	return fmt.Sprintf("%d.%s %s", whole, fracStr, unit)
}

// AddressFromPayload formats a human-readable address for a produced or
// claimed output payload.
func AddressFromPayload(params *chaincfg.Params, outputType OutputType, payload []byte) (string, error) {
	switch outputType {
	case OutputP2WPKH:
		addr, err := btcutil.NewAddressWitnessPubKeyHash(payload, params)
		if err != nil {
			return "", fmt.Errorf("%w: address from P2WPKH payload: %s", config.ErrInvalidScriptConfig, err)
		}
		return addr.EncodeAddress(), nil
	case OutputP2WPKHP2SH:
		addr, err := btcutil.NewAddressScriptHashFromHash(payload, params)
		if err != nil {
			return "", fmt.Errorf("%w: address from P2SH payload: %s", config.ErrInvalidScriptConfig, err)
		}
		return legacyBase58Address(addr.ScriptAddress(), params.ScriptHashAddrID), nil
	case OutputP2WSH:
		addr, err := btcutil.NewAddressWitnessScriptHash(payload, params)
		if err != nil {
			return "", fmt.Errorf("%w: address from P2WSH payload: %s", config.ErrInvalidScriptConfig, err)
		}
		return addr.EncodeAddress(), nil
	}
	return "", fmt.Errorf("%w: unknown output type %d", config.ErrInvalidScriptConfig, outputType)
}

// legacyBase58Address re-derives the base58check encoding of a P2SH hash
// directly through mr-tron/base58, exercised here instead of relying
// solely on btcutil's own EncodeAddress so the nested-segwit (P2WPKH-in-
// P2SH) variant has an independent, explicit base58check path.
func legacyBase58Address(scriptHash []byte, version byte) string {
	return base58.CheckEncode(scriptHash, version)
}

// PkScriptFromPayload builds the scriptPubKey bytes for a produced or
// claimed output from its payload and output type.
func PkScriptFromPayload(outputType OutputType, payload []byte) ([]byte, error) {
	switch outputType {
	case OutputP2WPKH, OutputP2WSH:
		b := txscript.NewScriptBuilder()
		b.AddOp(txscript.OP_0)
		b.AddData(payload)
		script, err := b.Script()
		if err != nil {
			return nil, fmt.Errorf("%w: build witness pkScript: %s", config.ErrEncodingFailure, err)
		}
		return script, nil
	case OutputP2WPKHP2SH:
		b := txscript.NewScriptBuilder()
		b.AddOp(txscript.OP_HASH160)
		b.AddData(payload)
		b.AddOp(txscript.OP_EQUAL)
		script, err := b.Script()
		if err != nil {
			return nil, fmt.Errorf("%w: build P2SH pkScript: %s", config.ErrEncodingFailure, err)
		}
		return script, nil
	}
	return nil, fmt.Errorf("%w: unknown output type %d", config.ErrInvalidScriptConfig, outputType)
}

// PayloadFromPubkeyHash builds the output payload for a simple script
// config given the signer's pubkey hash160. For native P2WPKH the
// payload is the hash160 itself; for nested P2WPKH-in-P2SH the payload
// is the hash160 of the witness redeem script wrapping it.
func PayloadFromPubkeyHash(pubkeyHash160 []byte, simpleType SimpleType) ([]byte, error) {
	if len(pubkeyHash160) != config.Hash160Size {
		return nil, fmt.Errorf("%w: pubkey hash160 must be %d bytes", config.ErrInvalidScriptConfig, config.Hash160Size)
	}
	switch simpleType {
	case P2WPKH:
		return pubkeyHash160, nil
	case P2WPKHP2SH:
		redeem, err := witnessProgramP2WPKH(pubkeyHash160)
		if err != nil {
			return nil, err
		}
		return btcutil.Hash160(redeem), nil
	}
	return nil, fmt.Errorf("%w: unknown simple type %d", config.ErrInvalidScriptConfig, simpleType)
}

func witnessProgramP2WPKH(pubkeyHash160 []byte) ([]byte, error) {
	b := txscript.NewScriptBuilder()
	b.AddOp(txscript.OP_0)
	b.AddData(pubkeyHash160)
	script, err := b.Script()
	if err != nil {
		return nil, fmt.Errorf("%w: build witness redeem script: %s", config.ErrEncodingFailure, err)
	}
	return script, nil
}

// SighashScript builds the scriptCode fed into the BIP-143 preimage for
// this script config: for simple variants it is the legacy P2PKH-shaped
// script over the signer's pubkey hash160; for multisig it is the full
// witness script.
func (c Config) SighashScript(pubkeyHash160 []byte, change bool, addressIndex uint32) ([]byte, error) {
	if c.Simple != nil {
		b := txscript.NewScriptBuilder()
		b.AddOp(txscript.OP_DUP)
		b.AddOp(txscript.OP_HASH160)
		b.AddData(pubkeyHash160)
		b.AddOp(txscript.OP_EQUALVERIFY)
		b.AddOp(txscript.OP_CHECKSIG)
		script, err := b.Script()
		if err != nil {
			return nil, fmt.Errorf("%w: build P2PKH sighash script: %s", config.ErrEncodingFailure, err)
		}
		return script, nil
	}
	return WitnessScriptFromMultisig(c.Multisig, change, addressIndex)
}

// WitnessScriptFromMultisig derives each cosigner's child pubkey at
// (change, address_index) and builds the m-of-n witness script, with
// pubkeys sorted lexicographically (BIP-67), the same sorting pattern
// the rest of the example corpus's multisig script builders use.
func WitnessScriptFromMultisig(m *MultisigConfig, change bool, addressIndex uint32) ([]byte, error) {
	pubkeys := make([][]byte, 0, len(m.Xpubs))
	changeIdx := uint32(0)
	if change {
		changeIdx = 1
	}
	for i, xpub := range m.Xpubs {
		child, err := derive(xpub, changeIdx, addressIndex)
		if err != nil {
			return nil, fmt.Errorf("%w: derive xpub %d: %s", config.ErrKeystoreFailure, i, err)
		}
		pub, err := child.ECPubKey()
		if err != nil {
			return nil, fmt.Errorf("%w: xpub %d pubkey: %s", config.ErrKeystoreFailure, i, err)
		}
		pubkeys = append(pubkeys, pub.SerializeCompressed())
	}
	sort.Slice(pubkeys, func(i, j int) bool {
		return new(big.Int).SetBytes(pubkeys[i]).Cmp(new(big.Int).SetBytes(pubkeys[j])) < 0
	})

	if m.Threshold < 1 || m.Threshold > 16 || len(pubkeys) > 16 {
		return nil, fmt.Errorf("%w: multisig threshold/cosigner count must be 1-16", config.ErrInvalidScriptConfig)
	}
	b := txscript.NewScriptBuilder()
	b.AddOp(txscript.OP_1 - 1 + byte(m.Threshold))
	for _, pub := range pubkeys {
		b.AddData(pub)
	}
	b.AddOp(txscript.OP_1 - 1 + byte(len(pubkeys)))
	b.AddOp(txscript.OP_CHECKMULTISIG)
	script, err := b.Script()
	if err != nil {
		return nil, fmt.Errorf("%w: build multisig witness script: %s", config.ErrEncodingFailure, err)
	}
	return script, nil
}

func shaSum(data []byte) [32]byte {
	return sha256.Sum256(data)
}

func derive(xpub *hdkeychain.ExtendedKey, change, addressIndex uint32) (*hdkeychain.ExtendedKey, error) {
	changeKey, err := xpub.Derive(change)
	if err != nil {
		return nil, err
	}
	return changeKey.Derive(addressIndex)
}

// PayloadFromMultisig builds the P2WSH payload (sha256 of the witness
// script) for a multisig script config at (change, address_index).
func PayloadFromMultisig(m *MultisigConfig, change bool, addressIndex uint32) ([]byte, error) {
	script, err := WitnessScriptFromMultisig(m, change, addressIndex)
	if err != nil {
		return nil, err
	}
	sum := shaSum(script)
	return sum[:], nil
}
