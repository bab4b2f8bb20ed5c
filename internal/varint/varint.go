// Package varint encodes the little-endian integers and Bitcoin CompactSize
// varints that feed the BIP-143 accumulators and the previous-transaction
// streaming hasher. Every encoder here is explicit about byte order so the
// accumulators never depend on host endianness.
package varint

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/wire"

	"github.com/shiftsig/btcsign/internal/config"
)

// Uint32LE returns the 4-byte little-endian encoding of v.
func Uint32LE(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// Uint64LE returns the 8-byte little-endian encoding of v.
func Uint64LE(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

// Encode returns the Bitcoin CompactSize ("varint") encoding of v, built on
// top of btcd's wire.WriteVarInt so the encoding matches the reference
// client byte-for-byte.
func Encode(v uint64) ([]byte, error) {
	var buf bytes.Buffer
	if err := wire.WriteVarInt(&buf, wire.ProtocolVersion, v); err != nil {
		return nil, fmt.Errorf("%w: encode varint %d: %s", config.ErrEncodingFailure, v, err)
	}
	if buf.Len() > config.MaxVarintSize {
		return nil, fmt.Errorf("%w: varint %d encodes to %d bytes, max %d", config.ErrEncodingFailure, v, buf.Len(), config.MaxVarintSize)
	}
	return buf.Bytes(), nil
}

// VarBuff returns the varint length prefix followed by data, i.e. the wire
// encoding of a length-prefixed byte buffer (scripts, witnesses).
func VarBuff(data []byte) ([]byte, error) {
	prefix, err := Encode(uint64(len(data)))
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(prefix)+len(data))
	out = append(out, prefix...)
	out = append(out, data...)
	return out, nil
}
