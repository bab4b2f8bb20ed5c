package ui

import "sync"

// Call records a single invocation of one of the UI entrypoints, used by
// tests to assert exactly what the controller showed the user and in
// what order.
type Call struct {
	Method string
	Args   []string
}

// Stub is a scripted, deterministic UI implementation for tests: it
// records every call it receives and returns booleans from a
// preconfigured queue, defaulting to true once the queue is exhausted.
type Stub struct {
	mu      sync.Mutex
	Calls   []Call
	Answers []bool
	next    int
}

// NewStub returns a Stub that answers every confirmation with answers in
// order, then true forever after the queue is exhausted.
func NewStub(answers ...bool) *Stub {
	return &Stub{Answers: answers}
}

func (s *Stub) answer() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.Answers) {
		return true
	}
	a := s.Answers[s.next]
	s.next++
	return a
}

func (s *Stub) record(method string, args ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, Call{Method: method, Args: args})
}

func (s *Stub) VerifyRecipient(address, formattedAmount string) bool {
	s.record("verify_recipient", address, formattedAmount)
	return s.answer()
}

func (s *Stub) VerifyTotal(formattedTotal, formattedFee string) bool {
	s.record("verify_total", formattedTotal, formattedFee)
	return s.answer()
}

func (s *Stub) ConfirmMultipleChanges(numChanges int) bool {
	s.record("confirm_multiple_changes")
	return s.answer()
}

func (s *Stub) ConfirmLocktimeRBF(locktime uint32, rbfFlag RBFFlag) bool {
	s.record("confirm_locktime_rbf", rbfFlag.String())
	return s.answer()
}

func (s *Stub) Status(msg string, success bool) {
	s.record("status", msg)
}
