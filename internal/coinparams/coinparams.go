// Package coinparams holds the coin-specific policy table the session
// controller consults at init: unit symbol, BIP-44 coin index, and
// whether the coin honors replace-by-fee signaling. Grounded on the
// original firmware's per-coin app_btc_params tables and on
// internal/wallet/btc.go's chaincfg.Params selection, which picks
// MainNetParams/TestNet3Params by network name.
package coinparams

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/shiftsig/btcsign/internal/config"
)

// Coin identifies a supported network.
type Coin string

const (
	BTC  Coin = "btc"
	TBTC Coin = "tbtc"
	LTC  Coin = "ltc"
	TLTC Coin = "tltc"
)

// Params describes coin-specific signing policy.
type Params struct {
	Unit        string
	BIP44Coin   uint32
	RBFSupport  bool
	ChainParams *chaincfg.Params
}

var table = map[Coin]Params{
	BTC: {
		Unit:        "BTC",
		BIP44Coin:   0,
		RBFSupport:  true,
		ChainParams: &chaincfg.MainNetParams,
	},
	TBTC: {
		Unit:        "TBTC",
		BIP44Coin:   1,
		RBFSupport:  true,
		ChainParams: &chaincfg.TestNet3Params,
	},
	LTC: {
		Unit:        "LTC",
		BIP44Coin:   2,
		RBFSupport:  false,
		ChainParams: &chaincfg.MainNetParams,
	},
	TLTC: {
		Unit:        "TLTC",
		BIP44Coin:   1,
		RBFSupport:  false,
		ChainParams: &chaincfg.TestNet3Params,
	},
}

// Lookup returns the parameters for coin, or an error wrapping
// config.ErrInvalidConfig if the coin is unknown.
func Lookup(coin Coin) (Params, error) {
	p, ok := table[coin]
	if !ok {
		return Params{}, fmt.Errorf("%w: unsupported coin %q", config.ErrInvalidConfig, coin)
	}
	return p, nil
}
