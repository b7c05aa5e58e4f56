// Package registry tracks dependencies between metadata identifiers and
// propagates change notifications along them.
//
// Edges are stored twice, once keyed by upstream and once keyed by downstream,
// and the two maps are kept as exact mirrors. The edge set is always acyclic:
// RegisterDependency refuses any edge that would close a cycle.
//
// A Registry is not safe for concurrent use. Hosts that share one across
// goroutines serialize access through a single writer (see package engine).
// Re-entrant use from within a notification callback is supported.
package registry

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/metagraph/internal/identifier"
	"github.com/zjrosen/metagraph/internal/log"
	"github.com/zjrosen/metagraph/internal/tracing"
)

// Listener receives change notifications. General listeners are called with
// an empty downstream and should treat upstream as "something changed".
type Listener interface {
	Notify(ctx context.Context, upstream, downstream identifier.ID) error
}

// ServiceListener is the orchestrating metadata service. The registry holds at
// most one, in a dedicated slot, and dispatches per-downstream to it.
type ServiceListener interface {
	Listener
	MetadataService()
}

// Named lets a listener choose the name used for timings and log output.
type Named interface {
	Name() string
}

// Edge is one upstream -> downstream dependency.
type Edge struct {
	Upstream   identifier.ID
	Downstream identifier.ID
}

type idSet map[identifier.ID]struct{}

// Option configures a Registry.
type Option func(*Registry)

// WithTracer sets the tracer used for notification sweep spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Registry) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// WithTraceLevel sets dispatch logging verbosity: 0 is quiet, 1 logs every
// dispatch, 2 also logs a timing summary at the end of each outermost sweep.
func WithTraceLevel(level int) Option {
	return func(r *Registry) {
		r.traceLevel = level
	}
}

// WithClock replaces the clock used for timing statistics.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.timings.now = now
		}
	}
}

// Registry is the dependency registry.
type Registry struct {
	// downstreamsOf maps an upstream to the identifiers that depend on it.
	downstreamsOf map[identifier.ID]idSet
	// upstreamsOf maps a downstream to the identifiers it depends on.
	upstreamsOf map[identifier.ID]idSet

	service   ServiceListener
	listeners []Listener

	tracer     trace.Tracer
	traceLevel int
	timings    *timingTracker
	sweepDepth int
}

// New creates an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		downstreamsOf: make(map[identifier.ID]idSet),
		upstreamsOf:   make(map[identifier.ID]idSet),
		tracer:        tracing.NoopTracer(),
		timings:       newTimingTracker(time.Now),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterDependency records that downstream depends on upstream. It fails with
// ErrInvalidDependency for a self-dependency or an edge that would create a
// cycle, and with identifier.ErrInvalidIdentifier for malformed identifiers.
// On failure neither adjacency map is modified.
func (r *Registry) RegisterDependency(upstream, downstream identifier.ID) error {
	valid, err := r.IsValidDependency(upstream, downstream)
	if err != nil {
		return err
	}
	if !valid {
		return fmt.Errorf("%w: %s -> %s would create a cycle", ErrInvalidDependency, upstream, downstream)
	}

	addToSet(r.downstreamsOf, upstream, downstream)
	addToSet(r.upstreamsOf, downstream, upstream)

	if r.traceLevel > 0 {
		log.Debug(log.CatRegistry, "Registered dependency", "upstream", upstream, "downstream", downstream)
	}
	return nil
}

// IsValidDependency reports whether the edge upstream -> downstream may be
// registered without creating a cycle. An edge that already exists is valid.
// The error is non-nil only for malformed identifiers or a self-dependency.
func (r *Registry) IsValidDependency(upstream, downstream identifier.ID) (bool, error) {
	if err := validatePair(upstream, downstream); err != nil {
		return false, err
	}
	if _, exists := r.downstreamsOf[upstream][downstream]; exists {
		return true, nil
	}

	// The new edge closes a cycle iff downstream is already a transitive
	// upstream of upstream.
	visited := idSet{upstream: {}}
	queue := []identifier.ID{upstream}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for next := range r.upstreamsOf[current] {
			if next == downstream {
				return false, nil
			}
			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = struct{}{}
			queue = append(queue, next)
		}
	}
	return true, nil
}

// DeregisterDependency removes a single edge. Removing an edge that does not
// exist is a no-op.
func (r *Registry) DeregisterDependency(upstream, downstream identifier.ID) error {
	if err := upstream.Validate(); err != nil {
		return err
	}
	if err := downstream.Validate(); err != nil {
		return err
	}
	removeFromSet(r.downstreamsOf, upstream, downstream)
	removeFromSet(r.upstreamsOf, downstream, upstream)
	return nil
}

// DeregisterDependencies removes every edge whose downstream is downstream.
// Used when an instance is discarded entirely.
func (r *Registry) DeregisterDependencies(downstream identifier.ID) error {
	if err := downstream.Validate(); err != nil {
		return err
	}
	for upstream := range r.upstreamsOf[downstream] {
		removeFromSet(r.downstreamsOf, upstream, downstream)
	}
	delete(r.upstreamsOf, downstream)
	return nil
}

// GetUpstream returns a sorted snapshot of the identifiers id depends on.
func (r *Registry) GetUpstream(id identifier.ID) []identifier.ID {
	return sortedIDs(r.upstreamsOf[id])
}

// GetDownstream returns a sorted snapshot of the identifiers that depend on id.
func (r *Registry) GetDownstream(id identifier.ID) []identifier.ID {
	return sortedIDs(r.downstreamsOf[id])
}

// Edges returns every registered edge, sorted by upstream then downstream.
func (r *Registry) Edges() []Edge {
	var edges []Edge
	for upstream, downstreams := range r.downstreamsOf {
		for downstream := range downstreams {
			edges = append(edges, Edge{Upstream: upstream, Downstream: downstream})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Upstream != edges[j].Upstream {
			return edges[i].Upstream < edges[j].Upstream
		}
		return edges[i].Downstream < edges[j].Downstream
	})
	return edges
}

// AddNotificationListener registers l. A ServiceListener occupies the single
// service slot and a second one fails with ErrServiceAlreadyRegistered. Any
// other listener joins the general set; adding it twice has no effect.
func (r *Registry) AddNotificationListener(l Listener) error {
	if l == nil {
		return ErrNilListener
	}
	if !reflect.TypeOf(l).Comparable() {
		return fmt.Errorf("%w: %T", ErrListenerNotComparable, l)
	}

	if svc, ok := l.(ServiceListener); ok {
		if r.service != nil && r.service != svc {
			return ErrServiceAlreadyRegistered
		}
		r.service = svc
		log.Debug(log.CatRegistry, "Metadata service registered", "listener", listenerName(l))
		return nil
	}

	if r.indexOfListener(l) >= 0 {
		return nil
	}
	r.listeners = append(r.listeners, l)
	log.Debug(log.CatRegistry, "Notification listener added", "listener", listenerName(l))
	return nil
}

// RemoveNotificationListener unregisters l from whichever slot holds it.
func (r *Registry) RemoveNotificationListener(l Listener) {
	if l == nil || !reflect.TypeOf(l).Comparable() {
		return
	}
	if svc, ok := l.(ServiceListener); ok && r.service == svc {
		r.service = nil
		return
	}
	if i := r.indexOfListener(l); i >= 0 {
		r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
	}
}

// HasService reports whether a metadata service is registered.
func (r *Registry) HasService() bool {
	return r.service != nil
}

// ListenerCount returns the number of general listeners.
func (r *Registry) ListenerCount() int {
	return len(r.listeners)
}

// Timings returns dispatch timing statistics, most expensive first.
func (r *Registry) Timings() []Timing {
	return r.timings.snapshot()
}

// ResetTimings clears all timing statistics.
func (r *Registry) ResetTimings() {
	r.timings.reset()
}

// TraceLevel returns the dispatch logging verbosity.
func (r *Registry) TraceLevel() int {
	return r.traceLevel
}

// SetTraceLevel changes the dispatch logging verbosity.
func (r *Registry) SetTraceLevel(level int) {
	r.traceLevel = level
}

func (r *Registry) indexOfListener(l Listener) int {
	for i, existing := range r.listeners {
		if existing == l {
			return i
		}
	}
	return -1
}

func validatePair(upstream, downstream identifier.ID) error {
	if err := upstream.Validate(); err != nil {
		return fmt.Errorf("upstream: %w", err)
	}
	if err := downstream.Validate(); err != nil {
		return fmt.Errorf("downstream: %w", err)
	}
	if upstream == downstream {
		return fmt.Errorf("%w: %s cannot depend on itself", ErrInvalidDependency, upstream)
	}
	return nil
}

func addToSet(m map[identifier.ID]idSet, key, value identifier.ID) {
	set, ok := m[key]
	if !ok {
		set = make(idSet)
		m[key] = set
	}
	set[value] = struct{}{}
}

func removeFromSet(m map[identifier.ID]idSet, key, value identifier.ID) {
	set, ok := m[key]
	if !ok {
		return
	}
	delete(set, value)
	if len(set) == 0 {
		delete(m, key)
	}
}

func sortedIDs(set idSet) []identifier.ID {
	ids := make([]identifier.ID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func listenerName(l Listener) string {
	if n, ok := l.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", l)
}
