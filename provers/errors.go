package prover

import (
	"errors"
	"fmt"
	"strings"

	circuit "github.com/kysee/eth-zk-scaffold/circuits"
)

var (
	// ErrRowBudget is returned when a circuit does not fit in 2^k rows minus the unusable margin.
	ErrRowBudget = errors.New("circuit exceeds row budget")
	// ErrProofGeneration is returned when key generation or proving fails.
	ErrProofGeneration = errors.New("proof generation failed")
	// ErrVerification is returned when a proof does not verify.
	ErrVerification = errors.New("proof verification failed")
	// ErrBeaconMismatch is returned when a parent beacon root does not match the beacon chain.
	ErrBeaconMismatch = errors.New("parent beacon root mismatch")
)

// UnsatisfiedError lists every violated constraint found by a mock run.
type UnsatisfiedError struct {
	Violations []circuit.Violation
	// Err is the solver error when the violations were found by the solver
	// rather than by the native check.
	Err error
}

func (e *UnsatisfiedError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "circuit not satisfied: %d violation(s)", len(e.Violations))
	for _, v := range e.Violations {
		sb.WriteString("\n  ")
		sb.WriteString(v.String())
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, "\n  solver: %v", e.Err)
	}
	return sb.String()
}

func (e *UnsatisfiedError) Unwrap() error { return e.Err }
