package processor

import (
	"context"
	"time"

	"github.com/zjrosen/metagraph/internal/command"
	"github.com/zjrosen/metagraph/internal/log"
	"github.com/zjrosen/metagraph/internal/pubsub"
)

// Middleware wraps a CommandHandler to add additional behavior.
// Middleware functions are composed using ChainMiddleware.
type Middleware func(CommandHandler) CommandHandler

// ChainMiddleware applies middlewares to a handler in reverse order.
// The first middleware in the list will be the outermost wrapper.
// For example: ChainMiddleware(handler, logging, timeout)
// Results in: logging(timeout(handler))
func ChainMiddleware(handler CommandHandler, middlewares ...Middleware) CommandHandler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler
}

func commandSource(cmd command.Command) string {
	if hasSource, ok := cmd.(interface{ Source() command.CommandSource }); ok {
		return string(hasSource.Source())
	}
	return ""
}

func commandTraceID(cmd command.Command) string {
	if hasTraceID, ok := cmd.(interface{ TraceID() string }); ok {
		return hasTraceID.TraceID()
	}
	return ""
}

// ===========================================================================
// Logging Middleware
// ===========================================================================

// NewLoggingMiddleware creates a middleware that logs command execution.
func NewLoggingMiddleware() Middleware {
	return func(next CommandHandler) CommandHandler {
		return HandlerFunc(func(ctx context.Context, cmd command.Command) (*command.CommandResult, error) {
			start := time.Now()
			result, err := next.Handle(ctx, cmd)
			duration := time.Since(start)

			fields := []any{
				"command_id", cmd.ID(),
				"command_type", cmd.Type().String(),
				"trace_id", commandTraceID(cmd),
				"duration", duration,
				"source", commandSource(cmd),
			}

			switch {
			case err != nil:
				log.Error(log.CatCommands, "command failed", append(fields, "error", err.Error())...)
			case result != nil && !result.Success:
				errMsg := ""
				if result.Error != nil {
					errMsg = result.Error.Error()
				}
				log.Warn(log.CatCommands, "command completed with error result", append(fields, "error", errMsg)...)
			default:
				log.Debug(log.CatCommands, "command completed", append(fields, "success", result != nil && result.Success)...)
			}

			return result, err
		})
	}
}

// ===========================================================================
// Command Log Middleware
// ===========================================================================

// EventPublisher is satisfied by *pubsub.Broker[any].
type EventPublisher interface {
	Publish(eventType pubsub.EventType, payload any)
}

// NewCommandLogMiddleware creates a middleware that publishes a CommandLogEvent
// for each processed command. A nil publisher makes it a pass-through.
func NewCommandLogMiddleware(bus EventPublisher) Middleware {
	return func(next CommandHandler) CommandHandler {
		if bus == nil {
			return next
		}
		return HandlerFunc(func(ctx context.Context, cmd command.Command) (*command.CommandResult, error) {
			start := time.Now()
			result, err := next.Handle(ctx, cmd)
			duration := time.Since(start)

			success := err == nil && (result == nil || result.Success)
			cmdErr := err
			if cmdErr == nil && result != nil && !result.Success {
				cmdErr = result.Error
			}

			bus.Publish(pubsub.UpdatedEvent, CommandLogEvent{
				CommandID:   cmd.ID(),
				CommandType: cmd.Type(),
				Source:      command.CommandSource(commandSource(cmd)),
				Success:     success,
				Error:       cmdErr,
				Duration:    duration,
				Timestamp:   time.Now(),
				TraceID:     commandTraceID(cmd),
			})

			return result, err
		})
	}
}

// ===========================================================================
// Timeout Middleware
// ===========================================================================

// DefaultTimeoutWarningThreshold is the default threshold for logging slow handler warnings.
const DefaultTimeoutWarningThreshold = 100 * time.Millisecond

// NewTimeoutMiddleware creates a middleware that logs a warning when a handler
// runs longer than threshold. It never aborts the handler: a half-finished
// notification sweep would leave the graph and cache out of step.
func NewTimeoutMiddleware(threshold time.Duration) Middleware {
	if threshold <= 0 {
		threshold = DefaultTimeoutWarningThreshold
	}

	return func(next CommandHandler) CommandHandler {
		return HandlerFunc(func(ctx context.Context, cmd command.Command) (*command.CommandResult, error) {
			start := time.Now()
			result, err := next.Handle(ctx, cmd)

			if duration := time.Since(start); duration > threshold {
				log.Warn(log.CatCommands, "handler exceeded time threshold",
					"command_id", cmd.ID(),
					"command_type", cmd.Type().String(),
					"trace_id", commandTraceID(cmd),
					"duration", duration,
					"threshold", threshold,
				)
			}

			return result, err
		})
	}
}
