// Package vm defines the single-step verifier the dispute game leans on at
// the leaves of the bisection, plus the alphabet fixture used throughout
// the tests. The engine treats the verifier as an opaque oracle: given a
// pre-state witness and a proof blob it returns the post-state commitment
// the step produces, or an error when the witness is malformed.
package vm

import "github.com/ethereum/go-ethereum/common"

// Oracle executes a single instruction step.
type Oracle interface {
	// Step runs one step of the trace on stateData, using proof to resolve
	// any data the step reads, and returns the resulting post-state
	// commitment.
	Step(stateData []byte, proof []byte) (common.Hash, error)
}
