// Package command defines the commands that cross the engine's single-writer
// boundary. Every operation on the registry, cache or service is expressed as
// a Command and executed on the processor goroutine.
package command

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// Command represents an explicit intent entering the engine.
type Command interface {
	// ID returns unique command identifier for tracing/correlation
	ID() string
	// Type returns the command type for routing to handlers
	Type() CommandType
	// Validate checks command preconditions before execution
	Validate() error
	// CreatedAt returns when command was created
	CreatedAt() time.Time
}

// CommandType identifies the kind of command for handler routing.
type CommandType string

const (
	// Dependency Commands

	// CmdRegisterDependency records an upstream -> downstream edge.
	CmdRegisterDependency CommandType = "register_dependency"
	// CmdDeregisterDependency removes one edge.
	CmdDeregisterDependency CommandType = "deregister_dependency"
	// CmdDeregisterDependencies removes every upstream edge of a downstream.
	CmdDeregisterDependencies CommandType = "deregister_dependencies"
	// CmdNotifyDownstream runs a notification sweep.
	CmdNotifyDownstream CommandType = "notify_downstream"

	// Service Commands

	// CmdGetMetadata reads an item through the cache.
	CmdGetMetadata CommandType = "get_metadata"
	// CmdEvict drops one cached item.
	CmdEvict CommandType = "evict"
	// CmdEvictAll drops every cached item.
	CmdEvictAll CommandType = "evict_all"
	// CmdSetCacheCapacity resizes (and empties) the cache.
	CmdSetCacheCapacity CommandType = "set_cache_capacity"
	// CmdRegisterProvider binds a provider to its class.
	CmdRegisterProvider CommandType = "register_provider"
	// CmdDeregisterProvider unbinds the provider of a class.
	CmdDeregisterProvider CommandType = "deregister_provider"

	// Diagnostic Commands

	// CmdInspect snapshots the edges around one identifier.
	CmdInspect CommandType = "inspect"
	// CmdReport snapshots engine-wide statistics.
	CmdReport CommandType = "report"
)

// String returns the string representation of the CommandType.
func (ct CommandType) String() string {
	return string(ct)
}

// CommandSource identifies where the command originated.
type CommandSource string

const (
	// SourceAPI indicates the command came from a direct engine method call.
	SourceAPI CommandSource = "api"
	// SourceWatcher indicates the command came from a file system change.
	SourceWatcher CommandSource = "watcher"
	// SourceCLI indicates the command came from a CLI subcommand.
	SourceCLI CommandSource = "cli"
	// SourceInternal indicates the command was system-generated (e.g., a follow-up).
	SourceInternal CommandSource = "internal"
)

// String returns the string representation of the CommandSource.
func (cs CommandSource) String() string {
	return string(cs)
}

// BaseCommand provides common fields for all commands.
// Concrete command types should embed this struct.
type BaseCommand struct {
	id          string
	cmdType     CommandType
	createdAt   time.Time
	source      CommandSource
	spanContext trace.SpanContext
}

// NewBaseCommand creates a BaseCommand with a generated UUID and current timestamp.
func NewBaseCommand(cmdType CommandType, source CommandSource) BaseCommand {
	return BaseCommand{
		id:        uuid.New().String(),
		cmdType:   cmdType,
		createdAt: time.Now(),
		source:    source,
	}
}

// ID returns the unique command identifier.
func (b *BaseCommand) ID() string {
	return b.id
}

// Type returns the command type for handler routing.
func (b *BaseCommand) Type() CommandType {
	return b.cmdType
}

// CreatedAt returns when the command was created.
func (b *BaseCommand) CreatedAt() time.Time {
	return b.createdAt
}

// Source returns the origin of this command.
func (b *BaseCommand) Source() CommandSource {
	return b.source
}

// TraceID returns the trace ID of the attached span context, or "".
func (b *BaseCommand) TraceID() string {
	if b.spanContext.IsValid() {
		return b.spanContext.TraceID().String()
	}
	return ""
}

// SpanContext returns the OpenTelemetry span context for trace propagation.
func (b *BaseCommand) SpanContext() trace.SpanContext {
	return b.spanContext
}

// SetSpanContext sets the OpenTelemetry span context for trace propagation.
func (b *BaseCommand) SetSpanContext(sc trace.SpanContext) {
	b.spanContext = sc
}

// Validate is a no-op for BaseCommand. Concrete commands should override this.
func (b *BaseCommand) Validate() error {
	return nil
}

// CommandResult contains the outcome of command execution.
type CommandResult struct {
	// Success indicates whether the command executed successfully.
	Success bool
	// Events contains events to publish on the processor's event bus.
	Events []any
	// FollowUp contains commands to enqueue after the current one.
	FollowUp []Command
	// Error contains the error if Success is false.
	Error error
	// Data contains optional result data for the caller.
	Data any
}

// ErrQueueFull is returned when the command queue has reached capacity.
var ErrQueueFull = errors.New("command queue is full")
