// Package ui defines the confirmation-dialog collaborator the signing
// controller blocks on: the UI entrypoints are passed in as a capability
// record so tests can substitute a deterministic stub that records its
// arguments and returns scripted booleans, and the demo binary can
// substitute a real terminal prompt.
package ui

// RBFFlag mirrors the session's rbf_flag tri-state.
type RBFFlag int

const (
	RBFOff RBFFlag = iota
	RBFOn
	RBFDisabled
)

func (f RBFFlag) String() string {
	switch f {
	case RBFOff:
		return "OFF"
	case RBFOn:
		return "ON"
	case RBFDisabled:
		return "DISABLED"
	default:
		return "UNKNOWN"
	}
}

// UI is the set of blocking confirmation calls the session controller
// treats as an external dependency. Every method is synchronous from the
// controller's point of view: the only suspension points are these calls
// plus the status display.
type UI interface {
	// VerifyRecipient shows a non-change output's address and formatted
	// amount and blocks for user acceptance.
	VerifyRecipient(address, formattedAmount string) bool

	// VerifyTotal shows the formatted total-out and fee and blocks for
	// user acceptance.
	VerifyTotal(formattedTotal, formattedFee string) bool

	// ConfirmMultipleChanges warns that more than one change output was
	// produced.
	ConfirmMultipleChanges(numChanges int) bool

	// ConfirmLocktimeRBF shows the locktime and RBF flag and blocks for
	// user acceptance.
	ConfirmLocktimeRBF(locktime uint32, rbfFlag RBFFlag) bool

	// Status displays a terminal status message ("Transaction confirmed"
	// / "Transaction canceled").
	Status(msg string, success bool)
}
