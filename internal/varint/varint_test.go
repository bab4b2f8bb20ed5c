package varint

import (
	"bytes"
	"testing"
)

func TestUint32LE(t *testing.T) {
	got := Uint32LE(0x01020304)
	want := []byte{0x04, 0x03, 0x02, 0x01}
	if !bytes.Equal(got, want) {
		t.Errorf("Uint32LE() = %x, want %x", got, want)
	}
}

func TestUint64LE(t *testing.T) {
	got := Uint64LE(0x0102030405060708)
	want := []byte{0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01}
	if !bytes.Equal(got, want) {
		t.Errorf("Uint64LE() = %x, want %x", got, want)
	}
}

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		in   uint64
		want []byte
	}{
		{"single byte", 0x00, []byte{0x00}},
		{"max single byte", 0xfc, []byte{0xfc}},
		{"uint16 boundary", 0xfd, []byte{0xfd, 0xfd, 0x00}},
		{"uint16 max", 0xffff, []byte{0xfd, 0xff, 0xff}},
		{"uint32 boundary", 0x10000, []byte{0xfe, 0x00, 0x00, 0x01, 0x00}},
		{"uint64 boundary", 0x100000000, []byte{0xff, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.in)
			if err != nil {
				t.Fatalf("Encode(%d) error = %v", tt.in, err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Encode(%d) = %x, want %x", tt.in, got, tt.want)
			}
		})
	}
}

func TestVarBuff(t *testing.T) {
	data := []byte{0xaa, 0xbb, 0xcc}
	got, err := VarBuff(data)
	if err != nil {
		t.Fatalf("VarBuff() error = %v", err)
	}
	want := []byte{0x03, 0xaa, 0xbb, 0xcc}
	if !bytes.Equal(got, want) {
		t.Errorf("VarBuff() = %x, want %x", got, want)
	}
}

func TestVarBuffEmpty(t *testing.T) {
	got, err := VarBuff(nil)
	if err != nil {
		t.Fatalf("VarBuff(nil) error = %v", err)
	}
	want := []byte{0x00}
	if !bytes.Equal(got, want) {
		t.Errorf("VarBuff(nil) = %x, want %x", got, want)
	}
}
