package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/metagraph/internal/identifier"
	"github.com/zjrosen/metagraph/internal/log"
	"github.com/zjrosen/metagraph/internal/tracing"
)

// NotifyDownstream runs one notification sweep for upstream.
//
// When a service is registered it is called once per exact downstream of
// upstream. If upstream is an instance, the downstreams of its class are then
// dispatched too, skipping any already notified and upstream itself. Every
// general listener is finally called with (upstream, "").
//
// A failing listener does not stop the sweep. All failures are returned joined,
// each as a *ListenerError.
func (r *Registry) NotifyDownstream(ctx context.Context, upstream identifier.ID) error {
	if err := upstream.Validate(); err != nil {
		return err
	}

	sweepID := uuid.New().String()
	ctx, span := r.tracer.Start(ctx, tracing.SpanNotifyDownstream,
		trace.WithAttributes(
			attribute.String(tracing.AttrUpstream, string(upstream)),
			attribute.String(tracing.AttrSweepID, sweepID),
		),
	)
	defer span.End()

	r.sweepDepth++
	defer func() {
		r.sweepDepth--
		if r.sweepDepth == 0 && r.traceLevel > 1 {
			r.logTimings(upstream)
		}
	}()

	var errs []error
	notified := 0

	if r.service != nil {
		// Snapshots: dispatch may re-enter and mutate the graph.
		seen := make(idSet)
		for _, downstream := range r.GetDownstream(upstream) {
			seen[downstream] = struct{}{}
			notified++
			if err := r.dispatch(ctx, r.service, upstream, downstream, sweepID); err != nil {
				errs = append(errs, err)
			}
		}

		if upstream.IsInstance() {
			for _, downstream := range r.GetDownstream(upstream.ClassID()) {
				if _, done := seen[downstream]; done || downstream == upstream {
					continue
				}
				seen[downstream] = struct{}{}
				notified++
				if err := r.dispatch(ctx, r.service, upstream, downstream, sweepID); err != nil {
					errs = append(errs, err)
				}
			}
		}
	}

	listeners := append([]Listener(nil), r.listeners...)
	for _, l := range listeners {
		notified++
		if err := r.dispatch(ctx, l, upstream, "", sweepID); err != nil {
			errs = append(errs, err)
		}
	}

	span.SetAttributes(attribute.Int(tracing.AttrNotified, notified))
	if len(errs) > 0 {
		err := errors.Join(errs...)
		span.RecordError(err)
		span.SetStatus(codes.Error, fmt.Sprintf("%d listener(s) failed", len(errs)))
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// dispatch calls one listener inside a span and a timer. Returned errors and
// panics are converted to *ListenerError.
func (r *Registry) dispatch(ctx context.Context, l Listener, upstream, downstream identifier.ID, sweepID string) (err error) {
	name := listenerName(l)
	responsible := name
	if downstream != "" {
		responsible = string(downstream.ClassID())
	}

	attrs := []attribute.KeyValue{
		attribute.String(tracing.AttrUpstream, string(upstream)),
		attribute.String(tracing.AttrListener, name),
		attribute.String(tracing.AttrSweepID, sweepID),
	}
	if downstream != "" {
		attrs = append(attrs, attribute.String(tracing.AttrDownstream, string(downstream)))
	}
	ctx, span := r.tracer.Start(ctx, tracing.SpanDispatch, trace.WithAttributes(attrs...))
	defer span.End()

	if r.traceLevel > 0 {
		log.Debug(log.CatRegistry, "Dispatch",
			"upstream", upstream, "downstream", downstream, "listener", name, "sweep", sweepID)
	}

	r.timings.start(responsible)
	defer r.timings.stop()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
		if err == nil {
			return
		}
		err = &ListenerError{Listener: name, Upstream: upstream, Downstream: downstream, Err: err}
		span.AddEvent(tracing.EventListenerFailure)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.ErrorErr(log.CatRegistry, "Listener failed during notification", err,
			"upstream", upstream, "downstream", downstream, "listener", name)
	}()

	return l.Notify(ctx, upstream, downstream)
}

func (r *Registry) logTimings(upstream identifier.ID) {
	for _, t := range r.timings.snapshot() {
		log.Debug(log.CatRegistry, "Sweep timing",
			"sweep_upstream", upstream, "name", t.Name, "invocations", t.Invocations, "total", t.Total)
	}
}
