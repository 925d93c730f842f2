// Copyright 2024-2026 Aiku AI

package relay

import (
	"errors"
	"fmt"
)

var (
	// ErrIllegalState is the parent of every lifecycle error.
	ErrIllegalState   = errors.New("illegal state")
	ErrAlreadyRunning = fmt.Errorf("%w: bridge is already running", ErrIllegalState)
	ErrNotRunning     = fmt.Errorf("%w: bridge is not running", ErrIllegalState)

	// ErrInvalidArgument is the parent of every topology error. These are
	// caller bugs and are never retried.
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnknownNode     = fmt.Errorf("%w: node is not part of this link", ErrInvalidArgument)
	ErrSelfLink        = fmt.Errorf("%w: cannot link nodes with identical ids", ErrInvalidArgument)
	ErrBlankID         = fmt.Errorf("%w: id must not be blank", ErrInvalidArgument)
	ErrNilNode         = fmt.Errorf("%w: node must not be nil", ErrInvalidArgument)

	ErrTransformFailed = errors.New("transformer failed")
	ErrSendPanic       = errors.New("send panicked")
)

// DispatchError records a failed delivery to a single endpoint or node.
type DispatchError struct {
	Target string
	Err    error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch to %s failed: %v", e.Target, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}
