package types

import "errors"

// Error taxonomy. Wrap with fmt.Errorf("...: %w", Err...) and check with
// errors.Is. Per-interaction errors (ErrRender, ErrComparison) are contained
// by the replay engine; ErrInvariant aborts the run.
var (
	// ErrInput marks malformed sessions, contracts, or flags.
	ErrInput = errors.New("invalid input")
	// ErrIO marks file or network access failures.
	ErrIO = errors.New("io failure")
	// ErrRender marks template compilation or rendering failures.
	ErrRender = errors.New("render failure")
	// ErrComparison marks unexpected differ failures.
	ErrComparison = errors.New("comparison failure")
	// ErrInvariant marks internal assertion failures.
	ErrInvariant = errors.New("invariant violation")
)
