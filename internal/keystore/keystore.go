// Package keystore implements the Keystore collaborator the core signing
// controller treats as an external dependency: deriving a pubkey hash160
// for a keypath, producing a 64-byte compact ECDSA signature over a
// sighash, and running the anti-klepto commit/reveal protocol.
//
// Key derivation is grounded on internal/tx/key_service.go and
// wallet/hd.go: a mnemonic file is read fresh on demand, converted to a
// BIP-32 seed with tyler-smith/go-bip39, and walked with
// btcutil/hdkeychain. Unlike KeyService, which hardcodes the BIP-84 path
// elements, this keystore derives along a full keypath supplied by the
// caller, since the signing session already carries the complete
// per-input/output keypath.
package keystore

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	dcrecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/tyler-smith/go-bip39"

	"github.com/shiftsig/btcsign/internal/config"
)

// Keystore is the signing controller's view of a hardware-wallet key
// vault: hash160 derivation, plain signing, and the anti-klepto
// commit/reveal pair.
type Keystore interface {
	PubkeyHash160(keypath []uint32) ([20]byte, error)
	Sign(keypath []uint32, sighash [32]byte, nonceContribution [32]byte) ([64]byte, error)
	AntikleptoCommit(keypath []uint32, sighash [32]byte, hostCommitment [32]byte) ([33]byte, error)
	AntikleptoSign(hostNonce [32]byte) ([64]byte, error)
}

// Software is a software-only Keystore backed by a BIP-39 mnemonic file,
// the same secret-handling shape as KeyService: the mnemonic is re-read
// from disk for each derivation rather than cached in memory.
type Software struct {
	mnemonicFilePath string
	params           *chaincfg.Params

	mu      sync.Mutex
	pending *antikleptoSession
}

// antikleptoSession holds the state committed during AntikleptoCommit
// until the matching AntikleptoSign call reveals the host nonce. Only
// one can be in flight at a time, matching the single process-wide
// session the core controller maintains.
type antikleptoSession struct {
	privKey        *btcec.PrivateKey
	sighash        [32]byte
	hostCommitment [32]byte
	nonce          secp256k1.ModNScalar
}

// New returns a Software keystore reading its mnemonic from
// mnemonicFilePath and deriving keys under params.
func New(mnemonicFilePath string, params *chaincfg.Params) *Software {
	return &Software{mnemonicFilePath: mnemonicFilePath, params: params}
}

// PubkeyHash160 derives the compressed-pubkey hash160 at keypath.
func (s *Software) PubkeyHash160(keypath []uint32) ([20]byte, error) {
	priv, err := s.derive(keypath)
	if err != nil {
		return [20]byte{}, err
	}
	defer zero(priv)
	var out [20]byte
	copy(out[:], btcutil.Hash160(priv.PubKey().SerializeCompressed()))
	return out, nil
}

// Sign produces a 64-byte compact ECDSA signature over sighash using the
// key at keypath, RFC6979-deterministic except for nonceContribution,
// which is folded in as extra entropy (the non-antiklepto path passes 32
// zero bytes).
func (s *Software) Sign(keypath []uint32, sighash [32]byte, nonceContribution [32]byte) ([64]byte, error) {
	priv, err := s.derive(keypath)
	if err != nil {
		return [64]byte{}, err
	}
	defer zero(priv)

	k := dcrecdsa.NonceRFC6979(priv.Serialize(), sighash[:], nonceContribution[:], nil, 0)
	defer k.Zero()

	r, sig, err := signWithNonce(priv, sighash[:], k)
	if err != nil {
		return [64]byte{}, fmt.Errorf("%w: sign: %s", config.ErrKeystoreFailure, err)
	}
	return compact64(r, sig), nil
}

// AntikleptoCommit derives a nonce for sighash bound to hostCommitment
// (so the signer cannot choose its nonce after seeing the host's actual
// contribution), commits to the corresponding curve point R = kG, and
// remembers k until AntikleptoSign reveals the matching host nonce.
func (s *Software) AntikleptoCommit(keypath []uint32, sighash [32]byte, hostCommitment [32]byte) ([33]byte, error) {
	priv, err := s.derive(keypath)
	if err != nil {
		return [33]byte{}, err
	}

	k := dcrecdsa.NonceRFC6979(priv.Serialize(), sighash[:], hostCommitment[:], []byte("antiklepto"), 0)

	var r secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(k, &r)
	r.ToAffine()
	pub := secp256k1.NewPublicKey(&r.X, &r.Y)

	s.mu.Lock()
	if s.pending != nil {
		s.mu.Unlock()
		zero(priv)
		k.Zero()
		return [33]byte{}, fmt.Errorf("%w: anti-klepto session already pending", config.ErrKeystoreFailure)
	}
	s.pending = &antikleptoSession{
		privKey:        priv,
		sighash:        sighash,
		hostCommitment: hostCommitment,
		nonce:          *k,
	}
	s.mu.Unlock()
	k.Zero()

	var out [33]byte
	copy(out[:], pub.SerializeCompressed())
	slog.Debug("anti-klepto commitment produced")
	return out, nil
}

// AntikleptoSign verifies the revealed host nonce against the commitment
// captured at AntikleptoCommit time, then signs the pending sighash with
// the nonce that was already fixed before the reveal — the host can
// independently recompute R = kG from the signature and confirm it
// matches the earlier 33-byte commitment, proving the signer never
// changed its nonce after learning the host's contribution.
func (s *Software) AntikleptoSign(hostNonce [32]byte) ([64]byte, error) {
	s.mu.Lock()
	sess := s.pending
	s.pending = nil
	s.mu.Unlock()

	if sess == nil {
		return [64]byte{}, fmt.Errorf("%w: no anti-klepto session pending", config.ErrInvalidPhase)
	}
	defer zero(sess.privKey)
	defer sess.nonce.Zero()

	if sha256.Sum256(hostNonce[:]) != sess.hostCommitment {
		return [64]byte{}, fmt.Errorf("%w: host nonce does not match earlier commitment", config.ErrInvalidPhase)
	}

	r, sig, err := signWithNonce(sess.privKey, sess.sighash[:], &sess.nonce)
	if err != nil {
		return [64]byte{}, fmt.Errorf("%w: anti-klepto sign: %s", config.ErrKeystoreFailure, err)
	}
	return compact64(r, sig), nil
}

// signWithNonce computes a low-S ECDSA signature over hash using a
// caller-chosen nonce k, following the same scalar arithmetic
// decred's ecdsa.Sign performs internally with its RFC6979 nonce.
func signWithNonce(priv *btcec.PrivateKey, hash []byte, k *secp256k1.ModNScalar) (secp256k1.ModNScalar, secp256k1.ModNScalar, error) {
	var r, sig secp256k1.ModNScalar

	var rPoint secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(k, &rPoint)
	rPoint.ToAffine()

	r.SetBytes(rPoint.X.Bytes())
	if r.IsZero() {
		return r, sig, fmt.Errorf("nonce produced zero r")
	}

	var e secp256k1.ModNScalar
	var eBytes [32]byte
	copy(eBytes[:], hash)
	e.SetBytes(&eBytes)

	var kInv secp256k1.ModNScalar
	kInv.Set(k).InverseValNonConst()

	privScalar := priv.Key
	sig.Mul2(&r, &privScalar).Add(&e).Mul(&kInv)
	if sig.IsZero() {
		return r, sig, fmt.Errorf("nonce produced zero s")
	}
	if sig.IsOverHalfOrder() {
		sig.Negate()
	}
	return r, sig, nil
}

func compact64(r, s secp256k1.ModNScalar) [64]byte {
	var out [64]byte
	rBytes := r.Bytes()
	sBytes := s.Bytes()
	copy(out[0:32], rBytes[:])
	copy(out[32:64], sBytes[:])
	return out
}

func (s *Software) derive(keypath []uint32) (*btcec.PrivateKey, error) {
	if s.mnemonicFilePath == "" {
		return nil, fmt.Errorf("%w: mnemonic file not configured", config.ErrKeystoreFailure)
	}
	master, err := s.deriveMasterKey()
	if err != nil {
		return nil, err
	}
	defer master.Zero()

	key := master
	owned := false
	for _, idx := range keypath {
		next, err := key.Derive(idx)
		if owned {
			key.Zero()
		}
		if err != nil {
			return nil, fmt.Errorf("%w: derive keypath element %d: %s", config.ErrKeystoreFailure, idx, err)
		}
		key = next
		owned = true
	}
	priv, err := key.ECPrivKey()
	if owned {
		key.Zero()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: extract private key: %s", config.ErrKeystoreFailure, err)
	}
	return priv, nil
}

func (s *Software) deriveMasterKey() (*hdkeychain.ExtendedKey, error) {
	mnemonic, err := readMnemonicFromFile(s.mnemonicFilePath)
	if err != nil {
		return nil, err
	}
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, fmt.Errorf("%w: mnemonic to seed: %s", config.ErrKeystoreFailure, err)
	}
	master, err := hdkeychain.NewMaster(seed, s.params)
	if err != nil {
		return nil, fmt.Errorf("%w: derive master key: %s", config.ErrKeystoreFailure, err)
	}
	return master, nil
}

func zero(priv *btcec.PrivateKey) {
	if priv != nil {
		priv.Zero()
	}
}
