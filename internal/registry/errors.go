package registry

import (
	"errors"
	"fmt"

	"github.com/zjrosen/metagraph/internal/identifier"
)

// Registry errors.
var (
	ErrInvalidDependency        = errors.New("invalid dependency")
	ErrServiceAlreadyRegistered = errors.New("a metadata service is already registered")
	ErrNilListener              = errors.New("listener is nil")
	ErrListenerNotComparable    = errors.New("listener type is not comparable")
	ErrListenerFailure          = errors.New("notification listener failed")
)

// ListenerError reports one failed dispatch within a notification sweep.
// It matches both ErrListenerFailure and the listener's own error.
type ListenerError struct {
	Listener   string
	Upstream   identifier.ID
	Downstream identifier.ID
	Err        error
}

func (e *ListenerError) Error() string {
	if e.Downstream == "" {
		return fmt.Sprintf("listener %s failed for %s: %v", e.Listener, e.Upstream, e.Err)
	}
	return fmt.Sprintf("listener %s failed for %s -> %s: %v", e.Listener, e.Upstream, e.Downstream, e.Err)
}

func (e *ListenerError) Unwrap() []error {
	return []error{ErrListenerFailure, e.Err}
}
