package btcsign

import (
	"fmt"

	"github.com/shiftsig/btcsign/internal/config"
)

func errScriptConfigIndex(idx uint32, n int) error {
	return fmt.Errorf("%w: script config index %d out of range for %d configs", config.ErrScriptConfigIndex, idx, n)
}

func errPhase(got phase, want phase) error {
	return fmt.Errorf("%w: got phase %d, want %d", config.ErrInvalidPhase, got, want)
}
