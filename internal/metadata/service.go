// Package metadata implements the metadata service: it binds providers to the
// classes they produce, serves reads through a bounded cache, and turns
// registry notifications into evictions, recomputation and further
// propagation.
//
// The service is single-threaded. It is driven either directly or from the
// engine's command processor goroutine, and re-entrant calls from providers
// and listeners are expected.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/metagraph/internal/identifier"
	"github.com/zjrosen/metagraph/internal/log"
	"github.com/zjrosen/metagraph/internal/pubsub"
	"github.com/zjrosen/metagraph/internal/registry"
	"github.com/zjrosen/metagraph/internal/tracing"
)

// Option configures a Service.
type Option func(*Service)

// WithTracer sets the tracer for Get and Notify spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithEvents publishes service events to broker.
func WithEvents(broker *EventBroker) Option {
	return func(s *Service) {
		s.events = broker
	}
}

// Service is the metadata orchestrator.
type Service struct {
	registry  *registry.Registry
	cache     *Cache
	providers map[identifier.ID]*binding

	tracer trace.Tracer
	events *EventBroker
	stats  Stats

	// Recursion guard: ids currently being computed, and ids requested
	// recursively that the outermost Get recomputes once it finishes.
	active    map[identifier.ID]struct{}
	retryKeys []identifier.ID
	retrySet  map[identifier.ID]struct{}
	retrying  bool
}

var _ registry.ServiceListener = (*Service)(nil)

// NewService creates a service over reg and cache and installs it in the
// registry's service slot.
func NewService(reg *registry.Registry, cache *Cache, opts ...Option) (*Service, error) {
	s := &Service{
		registry:  reg,
		cache:     cache,
		providers: make(map[identifier.ID]*binding),
		tracer:    tracing.NoopTracer(),
		active:    make(map[identifier.ID]struct{}),
		retrySet:  make(map[identifier.ID]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := reg.AddNotificationListener(s); err != nil {
		return nil, fmt.Errorf("install metadata service: %w", err)
	}
	return s, nil
}

// MetadataService marks Service as the registry's service listener.
func (s *Service) MetadataService() {}

// Name identifies the service in registry timings.
func (s *Service) Name() string { return "metadata-service" }

// Registry returns the dependency registry the service notifies through.
func (s *Service) Registry() *registry.Registry { return s.registry }

// Cache returns the service's item cache.
func (s *Service) Cache() *Cache { return s.cache }

// Register binds p to the class it provides. Optional capabilities are
// resolved here, once.
func (s *Service) Register(p Provider) error {
	if p == nil {
		return ErrNilProvider
	}
	class := p.ProvidesType()
	if !class.IsClass() {
		return fmt.Errorf("%w: provider type %q is not a class identifier", identifier.ErrInvalidIdentifier, class)
	}
	if _, exists := s.providers[class]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateProvider, class)
	}

	b := newBinding(p)
	s.providers[class] = b
	log.Debug(log.CatService, "Provider registered", "class", class,
		"listener", b.listener != nil, "cache", b.cache != nil)
	return nil
}

// Deregister unbinds the provider for class, if any.
func (s *Service) Deregister(class identifier.ID) {
	if _, ok := s.providers[class]; !ok {
		return
	}
	delete(s.providers, class)
	log.Debug(log.CatService, "Provider deregistered", "class", class)
}

// Providers returns the bound class identifiers, sorted.
func (s *Service) Providers() []identifier.ID {
	classes := make([]identifier.ID, 0, len(s.providers))
	for class := range s.providers {
		classes = append(classes, class)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i] < classes[j] })
	return classes
}

// Provider returns the provider bound to class.
func (s *Service) Provider(class identifier.ID) (Provider, bool) {
	b, ok := s.providers[class]
	if !ok {
		return nil, false
	}
	return b.provider, true
}

// Get returns the item for the instance id.
//
// Unless evictCache is set a cached item is returned without calling the
// provider. Otherwise the owning provider computes it; with evictCache any
// stale entry is dropped first. A nil result, or a provider error, leaves no
// entry behind. A non-nil result is cached.
//
// A Get for an id that is already being computed further up the stack returns
// nil and is retried once when the outermost Get completes.
func (s *Service) Get(ctx context.Context, id identifier.ID, evictCache bool) (Item, error) {
	if !id.IsInstance() {
		return nil, fmt.Errorf("%w: %q is not an instance identifier", identifier.ErrInvalidIdentifier, id)
	}

	ctx, span := s.tracer.Start(ctx, tracing.SpanServiceGet, trace.WithAttributes(
		attribute.String(tracing.AttrMetadataID, string(id)),
		attribute.Bool(tracing.AttrEvictCache, evictCache),
	))
	defer span.End()

	s.stats.ValidGets++

	if !evictCache {
		if item, ok := s.cache.Get(id); ok {
			s.stats.CacheHits++
			span.SetAttributes(attribute.Bool(tracing.AttrCacheHit, true))
			span.AddEvent(tracing.EventCacheHit)
			return item, nil
		}
	}
	s.stats.CacheMisses++
	span.SetAttributes(attribute.Bool(tracing.AttrCacheHit, false))

	b, ok := s.providers[id.ClassID()]
	if !ok {
		err := fmt.Errorf("%w: %s", ErrNoProviderRegistered, id.ClassID())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if _, busy := s.active[id]; busy {
		s.stats.RecursiveGets++
		if _, queued := s.retrySet[id]; !queued {
			s.retrySet[id] = struct{}{}
			s.retryKeys = append(s.retryKeys, id)
		}
		span.AddEvent(tracing.EventRecursiveGet)
		log.Debug(log.CatService, "Recursive get deferred", "id", id)
		return nil, nil
	}

	outermost := len(s.active) == 0
	item, err := s.computeGuarded(ctx, b, id, evictCache, outermost)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if outermost && !s.retrying {
		s.retryDeferred(ctx)
	}
	return item, err
}

// computeGuarded marks id as being computed for the duration of the provider
// call. A provider panic still clears the mark, and the outermost level also
// drops queued retries, so a recovered panic leaves the guard empty.
func (s *Service) computeGuarded(ctx context.Context, b *binding, id identifier.ID, evictCache, outermost bool) (Item, error) {
	s.active[id] = struct{}{}
	defer func() {
		delete(s.active, id)
		if !outermost {
			return
		}
		if r := recover(); r != nil {
			s.retryKeys = nil
			s.retrySet = make(map[identifier.ID]struct{})
			panic(r)
		}
	}()
	return s.compute(ctx, b, id, evictCache)
}

func (s *Service) compute(ctx context.Context, b *binding, id identifier.ID, evictCache bool) (Item, error) {
	if evictCache {
		s.evictEntry(ctx, id)
	}

	item, err := b.provider.Get(ctx, id)
	if err == nil && !isNilItem(item) && item.ID() != id {
		err = fmt.Errorf("%w: asked for %s, got %s", ErrItemMismatch, id, item.ID())
	}
	if err != nil {
		if !evictCache {
			s.evictEntry(ctx, id)
		}
		log.ErrorErr(log.CatService, "Provider failed", err, "id", id)
		return nil, fmt.Errorf("get %s: %w", id, err)
	}

	if isNilItem(item) {
		if !evictCache {
			s.evictEntry(ctx, id)
		}
		return nil, nil
	}

	if err := s.cache.Put(item); err != nil {
		return nil, err
	}
	s.stats.CachePuts++
	s.publish(pubsub.CreatedEvent, Event{ID: id, Item: item})
	return item, nil
}

// retryDeferred recomputes ids that were requested recursively. Each is tried
// once; recursion during the retry is not retried again.
func (s *Service) retryDeferred(ctx context.Context) {
	if len(s.retryKeys) == 0 {
		return
	}
	keys := s.retryKeys
	s.retryKeys = nil
	s.retrySet = make(map[identifier.ID]struct{})

	s.retrying = true
	defer func() {
		s.retrying = false
		s.retryKeys = nil
		s.retrySet = make(map[identifier.ID]struct{})
	}()

	for _, id := range keys {
		if _, err := s.Get(ctx, id, true); err != nil {
			log.ErrorErr(log.CatService, "Deferred get failed", err, "id", id)
		}
	}
}

// Notify handles a change of upstream that affects downstream. It is called by
// the registry for every dispatched edge. A provider that listens for
// notifications handles its own instance; otherwise an instance downstream is
// recomputed and the change propagates to its own dependents.
func (s *Service) Notify(ctx context.Context, upstream, downstream identifier.ID) error {
	if downstream == "" {
		return nil
	}
	if err := downstream.Validate(); err != nil {
		return err
	}

	ctx, span := s.tracer.Start(ctx, tracing.SpanServiceNotify, trace.WithAttributes(
		attribute.String(tracing.AttrUpstream, string(upstream)),
		attribute.String(tracing.AttrDownstream, string(downstream)),
	))
	defer span.End()

	b, ok := s.providers[downstream.ClassID()]
	if !ok {
		err := fmt.Errorf("%w: %s", ErrNoProviderRegistered, downstream.ClassID())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.publish(pubsub.NotifiedEvent, Event{ID: downstream, Upstream: upstream})

	if b.listener != nil {
		return b.listener.Notify(ctx, upstream, downstream)
	}
	if !downstream.IsInstance() {
		return nil
	}

	_, getErr := s.Get(ctx, downstream, true)
	// Dependents are stale whether or not the recompute succeeded.
	notifyErr := s.registry.NotifyDownstream(ctx, downstream)
	if err := errors.Join(getErr, notifyErr); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// Evict drops the cached item for id and forwards the eviction to every
// cache-capable provider.
func (s *Service) Evict(id identifier.ID) error {
	if err := id.Validate(); err != nil {
		return err
	}
	if s.evictEntry(context.Background(), id) {
		s.publish(pubsub.DeletedEvent, Event{ID: id})
	}
	for _, class := range s.Providers() {
		if c := s.providers[class].cache; c != nil {
			c.Evict(id)
		}
	}
	return nil
}

// EvictAll empties the cache and every cache-capable provider's cache.
func (s *Service) EvictAll() {
	s.stats.CacheEvictions += int64(s.cache.Size())
	s.cache.EvictAll()
	for _, class := range s.Providers() {
		if c := s.providers[class].cache; c != nil {
			c.EvictAll()
		}
	}
	log.Info(log.CatService, "All cached metadata evicted")
}

// SetCacheCapacity restarts the cache empty with the new capacity and clears
// every cache-capable provider. An invalid capacity leaves everything intact.
func (s *Service) SetCacheCapacity(capacity int) error {
	size := s.cache.Size()
	if err := s.cache.SetMaxCapacity(capacity); err != nil {
		return err
	}
	s.stats.CacheEvictions += int64(size)
	for _, class := range s.Providers() {
		if c := s.providers[class].cache; c != nil {
			c.EvictAll()
		}
	}
	log.Info(log.CatService, "Cache capacity changed", "capacity", capacity, "discarded", size)
	return nil
}

// Stats returns a snapshot of the service counters.
func (s *Service) Stats() Stats {
	stats := s.stats
	stats.CapacityEvictions = s.cache.CapacityEvictions()
	return stats
}

// ResetStats zeroes the service counters. Capacity evictions are owned by the
// cache and are not reset.
func (s *Service) ResetStats() {
	s.stats = Stats{}
}

func (s *Service) evictEntry(ctx context.Context, id identifier.ID) bool {
	if !s.cache.Evict(id) {
		return false
	}
	s.stats.CacheEvictions++
	trace.SpanFromContext(ctx).AddEvent(tracing.EventCacheEvicted,
		trace.WithAttributes(attribute.String(tracing.AttrMetadataID, string(id))))
	return true
}

func (s *Service) publish(eventType pubsub.EventType, event Event) {
	if s.events == nil {
		return
	}
	s.events.Publish(eventType, event)
}

func isNilItem(item Item) bool {
	if item == nil {
		return true
	}
	v := reflect.ValueOf(item)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface:
		return v.IsNil()
	}
	return false
}
