package gateway

import "fmt"

// Error wraps a failed venue call. There is no in-step retry: a live
// execution halts on the first one and surfaces it to the operator.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("gateway %s: %v", e.Op, e.Err) }

func (e *Error) Unwrap() error { return e.Err }
