package hook

import (
	"fmt"
	"sync/atomic"
)

// Error wraps a failure raised by a user hook: a returned error or a panic.
type Error struct {
	Hook     string
	FilePath string
	Err      error

	// Panic is the recovered value when the hook panicked.
	Panic any
	Stack []byte

	logged atomic.Bool
}

// Error returns the error message with hook context.
func (e *Error) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("hook %s() of %s panicked: %v", e.Hook, e.FilePath, e.Panic)
	}
	return fmt.Sprintf("hook %s() of %s: %v", e.Hook, e.FilePath, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// MarkLogged reports true the first time it is called.
func (e *Error) MarkLogged() bool {
	return e.logged.CompareAndSwap(false, true)
}
