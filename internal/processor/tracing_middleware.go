package processor

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/metagraph/internal/command"
	"github.com/zjrosen/metagraph/internal/tracing"
)

// NewTracingMiddleware creates middleware that opens a span per processed
// command. Registry sweeps and service reads started by the handler become
// children of that span. Follow-up commands inherit its span context.
//
// A nil tracer yields a pass-through.
func NewTracingMiddleware(tracer trace.Tracer) Middleware {
	if tracer == nil {
		return func(next CommandHandler) CommandHandler {
			return next
		}
	}

	return func(next CommandHandler) CommandHandler {
		return HandlerFunc(func(ctx context.Context, cmd command.Command) (*command.CommandResult, error) {
			ctx = restoreSpanContext(ctx, cmd)

			ctx, span := tracer.Start(ctx, tracing.SpanPrefixCommand+cmd.Type().String(),
				trace.WithSpanKind(trace.SpanKindInternal),
			)
			defer span.End()

			span.SetAttributes(
				attribute.String(tracing.AttrCommandID, cmd.ID()),
				attribute.String(tracing.AttrCommandType, cmd.Type().String()),
			)
			if hasSource, ok := cmd.(interface{ Source() command.CommandSource }); ok {
				span.SetAttributes(attribute.String(tracing.AttrCommandSource, hasSource.Source().String()))
			}

			result, err := next.Handle(ctx, cmd)

			switch {
			case err != nil:
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			case result != nil && !result.Success:
				if result.Error != nil {
					span.RecordError(result.Error)
					span.SetStatus(codes.Error, result.Error.Error())
				} else {
					span.SetStatus(codes.Error, "command failed without error details")
				}
			default:
				span.SetStatus(codes.Ok, "")
			}

			if result != nil {
				sc := span.SpanContext()
				for _, followUp := range result.FollowUp {
					span.AddEvent(tracing.EventFollowUpCreated,
						trace.WithAttributes(
							attribute.String(tracing.AttrCommandType, followUp.Type().String()),
							attribute.String(tracing.AttrCommandID, followUp.ID()),
						),
					)
					if setter, ok := followUp.(interface{ SetSpanContext(trace.SpanContext) }); ok {
						setter.SetSpanContext(sc)
					}
				}
			}

			return result, err
		})
	}
}

// restoreSpanContext makes a command's carried span context the parent of
// new spans, linking follow-ups to the command that produced them.
func restoreSpanContext(ctx context.Context, cmd command.Command) context.Context {
	if hasSpanContext, ok := cmd.(interface{ SpanContext() trace.SpanContext }); ok {
		if sc := hasSpanContext.SpanContext(); sc.IsValid() {
			return trace.ContextWithRemoteSpanContext(ctx, sc)
		}
	}
	return ctx
}
