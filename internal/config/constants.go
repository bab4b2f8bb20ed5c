package config

import "time"

// Transaction-level bounds.
const (
	// MaxLocktime rejects time-based nlocktimes; only block-height
	// locktimes are supported.
	MaxLocktime = 500_000_000

	// TxVersion1 and TxVersion2 are the only supported transaction
	// versions.
	TxVersion1 = 1
	TxVersion2 = 2
)

// Sequence-number policy governing replace-by-fee signaling and whether
// locktime applies.
const (
	// MaxSequence is the final, locktime-disabling sequence number.
	MaxSequence uint32 = 0xffffffff

	// RBFSequence signals replace-by-fee when the coin supports it.
	RBFSequence uint32 = MaxSequence - 2

	// MinSequence is the lowest accepted sequence number; anything below
	// it would imply relative-locktime semantics, which are unsupported.
	MinSequence uint32 = RBFSequence
)

// Wire-format bounds used by the previous-tx streaming hasher and the
// BIP-143 sighash script builder.
const (
	// MaxVarintSize is the largest encoding of a Bitcoin CompactSize
	// integer.
	MaxVarintSize = 9

	// MaxPkScriptSize bounds a single pkScript/sighash-script payload
	// accepted from the host, generous enough for the largest supported
	// multisig redeem script.
	MaxPkScriptSize = 520

	// HashSize is the length of a SHA-256 digest and of a Bitcoin txid.
	HashSize = 32

	// SignatureSize is the length of a 64-byte compact ECDSA signature
	// (r || s).
	SignatureSize = 64

	// AntiKleptoCommitmentSize is the length of the signer's nonce
	// commitment sent back to the host during the anti-klepto protocol.
	AntiKleptoCommitmentSize = 33

	// AntiKleptoHostNonceSize is the length of the host-supplied nonce
	// contribution used in the anti-klepto commit/reveal protocol.
	AntiKleptoHostNonceSize = 32

	// Hash160Size is the length of a RIPEMD160(SHA256(pubkey)) digest.
	Hash160Size = 20
)

// Confirmation and status strings shown through the UI collaborator.
const (
	StatusTransactionConfirmed = "Transaction confirmed"
	StatusTransactionCanceled  = "Transaction canceled"
)

// InitRateBurst is the token-bucket burst size used to throttle repeated
// init() calls.
const InitRateBurst = 1

// InitRateWait bounds how long init() will block waiting for a rate-limit
// token before giving up.
const InitRateWait = 2 * time.Second

// Logging (internal/logging).
const (
	LogFilePattern = "btcsign-%s-%s.log" // %s = date, %s = level
	LogMaxAgeDays  = 30
)
