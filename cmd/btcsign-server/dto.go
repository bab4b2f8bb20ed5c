package main

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/shiftsig/btcsign/internal/btcsign"
	"github.com/shiftsig/btcsign/internal/coinparams"
	"github.com/shiftsig/btcsign/internal/prevtx"
	"github.com/shiftsig/btcsign/internal/scriptconfig"
)

// The wire format for this demo dispatcher is plain JSON with hex-encoded
// byte fields, mirroring the hex conventions already used by bip143/prevtx
// tests in this repo rather than inventing a binary framing of its own.

func decodeHash(s string) (chainhash.Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("invalid hex: %w", err)
	}
	var h chainhash.Hash
	if len(b) != len(h) {
		return chainhash.Hash{}, fmt.Errorf("expected %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

func decodeFixed32(s string) ([32]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return [32]byte{}, fmt.Errorf("invalid hex: %w", err)
	}
	var out [32]byte
	if len(b) != len(out) {
		return out, fmt.Errorf("expected %d bytes, got %d", len(out), len(b))
	}
	copy(out[:], b)
	return out, nil
}

func outputTypeFromString(s string) (scriptconfig.OutputType, error) {
	switch s {
	case "p2wpkh":
		return scriptconfig.OutputP2WPKH, nil
	case "p2wpkh_p2sh":
		return scriptconfig.OutputP2WPKHP2SH, nil
	case "p2wsh":
		return scriptconfig.OutputP2WSH, nil
	default:
		return 0, fmt.Errorf("unknown output type %q", s)
	}
}

// scriptConfigDTO is the wire shape of one entry in an init request's
// script configs, a JSON rendering of scriptconfig.Config's tagged union.
type scriptConfigDTO struct {
	KeypathPrefix []uint32           `json:"keypath_prefix"`
	Simple        *simpleConfigDTO   `json:"simple,omitempty"`
	Multisig      *multisigConfigDTO `json:"multisig,omitempty"`
}

type simpleConfigDTO struct {
	Type string `json:"type"` // "p2wpkh" | "p2wpkh_p2sh"
}

type multisigConfigDTO struct {
	Threshold    uint32   `json:"threshold"`
	Xpubs        []string `json:"xpubs"`
	OurXpubIndex uint32   `json:"our_xpub_index"`
}

func (d scriptConfigDTO) toConfig() (scriptconfig.Config, error) {
	cfg := scriptconfig.Config{KeypathPrefix: d.KeypathPrefix}
	switch {
	case d.Simple != nil:
		switch d.Simple.Type {
		case "p2wpkh":
			cfg.Simple = &scriptconfig.SimpleConfig{Type: scriptconfig.P2WPKH}
		case "p2wpkh_p2sh":
			cfg.Simple = &scriptconfig.SimpleConfig{Type: scriptconfig.P2WPKHP2SH}
		default:
			return cfg, fmt.Errorf("unknown simple type %q", d.Simple.Type)
		}
	case d.Multisig != nil:
		xpubs := make([]*hdkeychain.ExtendedKey, 0, len(d.Multisig.Xpubs))
		for _, s := range d.Multisig.Xpubs {
			key, err := hdkeychain.NewKeyFromString(s)
			if err != nil {
				return cfg, fmt.Errorf("invalid xpub %q: %w", s, err)
			}
			xpubs = append(xpubs, key)
		}
		cfg.Multisig = &scriptconfig.MultisigConfig{
			ScriptType:   scriptconfig.MultisigP2WSH,
			Threshold:    d.Multisig.Threshold,
			Xpubs:        xpubs,
			OurXpubIndex: d.Multisig.OurXpubIndex,
		}
	default:
		return cfg, fmt.Errorf("script config must set exactly one of simple/multisig")
	}
	return cfg, nil
}

// signInitRequestDTO is the wire shape of an Init request.
type signInitRequestDTO struct {
	Coin          string            `json:"coin"`
	ScriptConfigs []scriptConfigDTO `json:"script_configs"`
	Version       uint32            `json:"version"`
	NumInputs     uint32            `json:"num_inputs"`
	NumOutputs    uint32            `json:"num_outputs"`
	Locktime      uint32            `json:"locktime"`
}

func (d signInitRequestDTO) toRequest() (btcsign.SignInitRequest, error) {
	cfgs := make([]scriptconfig.Config, 0, len(d.ScriptConfigs))
	for i, c := range d.ScriptConfigs {
		cfg, err := c.toConfig()
		if err != nil {
			return btcsign.SignInitRequest{}, fmt.Errorf("script config %d: %w", i, err)
		}
		cfgs = append(cfgs, cfg)
	}
	return btcsign.SignInitRequest{
		Coin:          coinparams.Coin(d.Coin),
		ScriptConfigs: cfgs,
		Version:       d.Version,
		NumInputs:     d.NumInputs,
		NumOutputs:    d.NumOutputs,
		Locktime:      d.Locktime,
	}, nil
}

// signInputRequestDTO is the wire shape of one transaction input, shared
// by the prevtx/init and input/pass2 endpoints.
type signInputRequestDTO struct {
	PrevOutHash         string  `json:"prev_out_hash"`
	PrevOutIndex        uint32  `json:"prev_out_index"`
	PrevOutValue        uint64  `json:"prev_out_value"`
	Sequence            uint32  `json:"sequence"`
	Keypath             []uint32 `json:"keypath"`
	ScriptConfigIndex   uint32  `json:"script_config_index"`
	HostNonceCommitment string  `json:"host_nonce_commitment,omitempty"`
}

func (d signInputRequestDTO) toRequest() (btcsign.SignInputRequest, error) {
	hash, err := decodeHash(d.PrevOutHash)
	if err != nil {
		return btcsign.SignInputRequest{}, fmt.Errorf("prev_out_hash: %w", err)
	}
	req := btcsign.SignInputRequest{
		PrevOutHash:       hash,
		PrevOutIndex:      d.PrevOutIndex,
		PrevOutValue:      d.PrevOutValue,
		Sequence:          d.Sequence,
		Keypath:           d.Keypath,
		ScriptConfigIndex: d.ScriptConfigIndex,
	}
	if d.HostNonceCommitment != "" {
		commitment, err := decodeFixed32(d.HostNonceCommitment)
		if err != nil {
			return btcsign.SignInputRequest{}, fmt.Errorf("host_nonce_commitment: %w", err)
		}
		req.HostNonceCommitment = &commitment
	}
	return req, nil
}

// prevtxInitDTO is the wire shape of a PrevtxInit request.
type prevtxInitDTO struct {
	Input signInputRequestDTO  `json:"input"`
	Init  prevtxInitRequestDTO `json:"init"`
}

type prevtxInitRequestDTO struct {
	Version    uint32 `json:"version"`
	NumInputs  uint32 `json:"num_inputs"`
	NumOutputs uint32 `json:"num_outputs"`
	Locktime   uint32 `json:"locktime"`
}

func (d prevtxInitRequestDTO) toRequest() prevtx.InitRequest {
	return prevtx.InitRequest{
		Version:    d.Version,
		NumInputs:  d.NumInputs,
		NumOutputs: d.NumOutputs,
		Locktime:   d.Locktime,
	}
}

// prevtxInputDTO is the wire shape of a PrevtxInput request.
type prevtxInputDTO struct {
	PrevOutHash     string `json:"prev_out_hash"`
	PrevOutIndex    uint32 `json:"prev_out_index"`
	SignatureScript string `json:"signature_script"`
	Sequence        uint32 `json:"sequence"`
	Index           uint32 `json:"index"`
}

func (d prevtxInputDTO) toRequest() (prevtx.InputRequest, error) {
	hash, err := decodeHash(d.PrevOutHash)
	if err != nil {
		return prevtx.InputRequest{}, fmt.Errorf("prev_out_hash: %w", err)
	}
	sigScript, err := hex.DecodeString(d.SignatureScript)
	if err != nil {
		return prevtx.InputRequest{}, fmt.Errorf("signature_script: invalid hex: %w", err)
	}
	return prevtx.InputRequest{
		PrevOutHash:     hash,
		PrevOutIndex:    d.PrevOutIndex,
		SignatureScript: sigScript,
		Sequence:        d.Sequence,
	}, nil
}

// prevtxOutputDTO is the wire shape of a PrevtxOutput request.
type prevtxOutputDTO struct {
	Value        uint64 `json:"value"`
	PubkeyScript string `json:"pubkey_script"`
	Index        uint32 `json:"index"`
}

func (d prevtxOutputDTO) toRequest() (prevtx.OutputRequest, error) {
	pkScript, err := hex.DecodeString(d.PubkeyScript)
	if err != nil {
		return prevtx.OutputRequest{}, fmt.Errorf("pubkey_script: invalid hex: %w", err)
	}
	return prevtx.OutputRequest{Value: d.Value, PubkeyScript: pkScript}, nil
}

// signOutputRequestDTO is the wire shape of one transaction output.
type signOutputRequestDTO struct {
	Ours              bool     `json:"ours"`
	Type              string   `json:"type,omitempty"`
	Value             uint64   `json:"value"`
	Payload           string   `json:"payload,omitempty"`
	Keypath           []uint32 `json:"keypath,omitempty"`
	ScriptConfigIndex uint32   `json:"script_config_index,omitempty"`
	Last              bool     `json:"last"`
}

func (d signOutputRequestDTO) toRequest() (btcsign.SignOutputRequest, error) {
	req := btcsign.SignOutputRequest{
		Ours:              d.Ours,
		Value:             d.Value,
		Keypath:           d.Keypath,
		ScriptConfigIndex: d.ScriptConfigIndex,
	}
	if !d.Ours {
		outputType, err := outputTypeFromString(d.Type)
		if err != nil {
			return req, err
		}
		payload, err := hex.DecodeString(d.Payload)
		if err != nil {
			return req, fmt.Errorf("payload: invalid hex: %w", err)
		}
		req.Type = outputType
		req.Payload = payload
	}
	return req, nil
}
