package btcsign

import (
	"fmt"

	"github.com/shiftsig/btcsign/internal/config"
)

// checkedAdd adds b to a, rejecting wraparound (I4). Unsigned overflow
// always produces a sum smaller than either addend.
func checkedAdd(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, fmt.Errorf("%w: %d + %d overflows uint64", config.ErrSumOverflow, a, b)
	}
	return sum, nil
}

// checkedSub subtracts b from a, rejecting underflow (I2, I3).
func checkedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, fmt.Errorf("%w: %d - %d underflows", config.ErrTotalUnderflow, a, b)
	}
	return a - b, nil
}
