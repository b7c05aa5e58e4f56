// Package handler provides the command handlers that execute engine commands
// against the registry and metadata service. Every handler runs on the
// processor goroutine.
package handler

import (
	"github.com/zjrosen/metagraph/internal/command"
)

// SuccessResult creates a successful CommandResult carrying data.
func SuccessResult(data any) *command.CommandResult {
	return &command.CommandResult{Success: true, Data: data}
}

// SuccessWithEvents creates a successful CommandResult that also publishes events.
func SuccessWithEvents(data any, events ...any) *command.CommandResult {
	return &command.CommandResult{Success: true, Data: data, Events: events}
}

// FailureResult creates a failed CommandResult that still carries data and
// events, for operations that completed but reported errors.
func FailureResult(err error, data any, events ...any) *command.CommandResult {
	return &command.CommandResult{Success: false, Error: err, Data: data, Events: events}
}
