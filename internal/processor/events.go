package processor

import (
	"time"

	"github.com/zjrosen/metagraph/internal/command"
)

// CommandLogEvent is emitted after each command is processed.
type CommandLogEvent struct {
	// CommandID is the unique identifier of the processed command.
	CommandID string
	// CommandType indicates the type of command that was processed.
	CommandType command.CommandType
	// Source indicates where the command originated.
	Source command.CommandSource
	// Success indicates whether the command executed successfully.
	Success bool
	// Error contains the error if the command failed (nil on success).
	Error error
	// Duration is how long the command took to execute.
	Duration time.Duration
	// Timestamp is when the command finished processing.
	Timestamp time.Time
	// TraceID is the distributed trace ID for correlation (empty if tracing disabled).
	TraceID string
}

// CommandErrorEvent is emitted when a command fails validation, routing or
// execution.
type CommandErrorEvent struct {
	CommandID   string
	CommandType command.CommandType
	Error       error
}
