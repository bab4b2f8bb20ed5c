package dhash

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

func TestAccumulatorMatchesOnce(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")

	acc := New()
	acc.Write(data)
	got := acc.Sum()

	want := chainhash.DoubleHashH(data)
	if got != want {
		t.Errorf("Accumulator.Sum() = %x, want %x", got, want)
	}
}

func TestAccumulatorIncrementalEqualsSingleWrite(t *testing.T) {
	part1 := []byte("abc")
	part2 := []byte("def")
	part3 := []byte("ghi")

	incremental := New()
	incremental.Write(part1)
	incremental.Write(part2)
	incremental.Write(part3)

	oneShot := New()
	oneShot.Write(bytes.Join([][]byte{part1, part2, part3}, nil))

	if incremental.Sum() != oneShot.Sum() {
		t.Errorf("incremental write did not match single write")
	}
}

func TestAccumulatorEmpty(t *testing.T) {
	acc := New()
	got := acc.Sum()
	want := chainhash.DoubleHashH(nil)
	if got != want {
		t.Errorf("empty Accumulator.Sum() = %x, want %x", got, want)
	}
}

func TestOnce(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03}
	got := Once(data)
	want := chainhash.DoubleHashH(data)
	if got != want {
		t.Errorf("Once() = %x, want %x", got, want)
	}
}
