// Package dhash implements the incremental double-SHA256 accumulator that
// the previous-transaction streaming hasher and the BIP-143 preimage
// builder both use. Bitcoin hashes every serialized structure twice
// (SHA256(SHA256(x))); chainhash.DoubleHashB performs this for a single
// byte slice, but the prevtx hasher must feed data in many small chunks as
// the host streams it across operations, so the outer hash.Hash is kept
// open across calls and only finalized once.
package dhash

import (
	"crypto/sha256"
	"hash"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Accumulator incrementally double-SHA256 hashes data written across
// multiple calls, without buffering all of it in memory.
type Accumulator struct {
	inner hash.Hash
}

// New returns an empty accumulator ready to accept Write calls.
func New() *Accumulator {
	return &Accumulator{inner: sha256.New()}
}

// Write feeds more serialized bytes into the running hash. It never
// returns an error; hash.Hash.Write never fails for an in-memory digest.
func (a *Accumulator) Write(p []byte) {
	a.inner.Write(p)
}

// Sum returns the double-SHA256 digest of everything written so far,
// without resetting the accumulator.
func (a *Accumulator) Sum() chainhash.Hash {
	first := a.inner.Sum(nil)
	return chainhash.Hash(sha256.Sum256(first))
}

// Once double-SHA256 hashes a single byte slice in one call, for preimages
// that are assembled in memory before being hashed (BIP-143 sighash
// preimages, fixed-layout sub-hashes).
func Once(data []byte) chainhash.Hash {
	return chainhash.DoubleHashH(data)
}
