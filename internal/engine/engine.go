// Package engine assembles the metadata engine: one registry, one cache, one
// metadata service and the command processor that serializes every access to
// them. Engine methods are safe for concurrent use.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/metagraph/internal/cachemanager"
	"github.com/zjrosen/metagraph/internal/command"
	"github.com/zjrosen/metagraph/internal/handler"
	"github.com/zjrosen/metagraph/internal/identifier"
	"github.com/zjrosen/metagraph/internal/metadata"
	"github.com/zjrosen/metagraph/internal/processor"
	"github.com/zjrosen/metagraph/internal/pubsub"
	"github.com/zjrosen/metagraph/internal/registry"
)

// ErrNotStarted is returned by engine methods called before Start or after Stop.
var ErrNotStarted = errors.New("engine is not running")

// ErrAlreadyStarted is returned by setup methods called after Start.
var ErrAlreadyStarted = errors.New("engine is already running")

// Config holds configuration for creating an Engine.
type Config struct {
	// CacheCapacity bounds the item cache. Defaults to cachemanager.DefaultCapacity.
	CacheCapacity int
	// TraceLevel is the registry dispatch logging verbosity (0-2).
	TraceLevel int
	// QueueCapacity is the command queue size. Defaults to processor.DefaultQueueCapacity.
	QueueCapacity int
	// SlowCommandThreshold logs a warning for commands that run longer.
	// Defaults to processor.DefaultTimeoutWarningThreshold.
	SlowCommandThreshold time.Duration
	// Tracer is optional. When set, sweeps, reads and commands produce spans.
	Tracer trace.Tracer
	// Source tags commands submitted through the facade. Defaults to SourceAPI.
	Source command.CommandSource
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.CacheCapacity != 0 && c.CacheCapacity < cachemanager.MinCapacity {
		return fmt.Errorf("%w: %d is below the minimum of %d",
			cachemanager.ErrInvalidCapacity, c.CacheCapacity, cachemanager.MinCapacity)
	}
	if c.TraceLevel < 0 || c.TraceLevel > 2 {
		return fmt.Errorf("trace level must be between 0 and 2, got %d", c.TraceLevel)
	}
	if c.QueueCapacity < 0 {
		return fmt.Errorf("queue capacity must not be negative, got %d", c.QueueCapacity)
	}
	return nil
}

// Engine is the goroutine-safe facade over the registry and metadata service.
type Engine struct {
	processor *processor.CommandProcessor
	registry  *registry.Registry
	service   *metadata.Service

	// commandEvents carries handler events, command log events and command errors.
	commandEvents *pubsub.Broker[any]
	// metadataEvents carries computed, evicted and notified item events.
	metadataEvents *metadata.EventBroker

	source command.CommandSource
	cancel context.CancelFunc
}

// New wires a registry, cache, service and processor together. The returned
// Engine must be started with Start before use.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}

	capacity := cfg.CacheCapacity
	if capacity == 0 {
		capacity = cachemanager.DefaultCapacity
	}
	queueCapacity := cfg.QueueCapacity
	if queueCapacity == 0 {
		queueCapacity = processor.DefaultQueueCapacity
	}
	source := cfg.Source
	if source == "" {
		source = command.SourceAPI
	}

	reg := registry.New(
		registry.WithTracer(cfg.Tracer),
		registry.WithTraceLevel(cfg.TraceLevel),
	)
	cache, err := metadata.NewCache(capacity)
	if err != nil {
		return nil, err
	}
	metadataEvents := metadata.NewEventBroker()
	svc, err := metadata.NewService(reg, cache,
		metadata.WithTracer(cfg.Tracer),
		metadata.WithEvents(metadataEvents),
	)
	if err != nil {
		return nil, err
	}

	commandEvents := pubsub.NewBroker[any]()
	cmdProcessor := processor.NewCommandProcessor(
		processor.WithQueueCapacity(queueCapacity),
		processor.WithEventBus(commandEvents),
		processor.WithMiddleware(
			processor.NewTracingMiddleware(cfg.Tracer),
			processor.NewLoggingMiddleware(),
			processor.NewCommandLogMiddleware(commandEvents),
			processor.NewTimeoutMiddleware(cfg.SlowCommandThreshold),
		),
	)
	handler.RegisterAll(cmdProcessor, svc)

	return &Engine{
		processor:      cmdProcessor,
		registry:       reg,
		service:        svc,
		commandEvents:  commandEvents,
		metadataEvents: metadataEvents,
		source:         source,
	}, nil
}

// Start begins the command processor loop and waits for it to be ready.
func (e *Engine) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	go e.processor.Run(runCtx)

	if err := e.processor.WaitForReady(ctx); err != nil {
		cancel()
		return fmt.Errorf("waiting for command processor: %w", err)
	}
	return nil
}

// Stop drains queued commands, stops the processor and closes the event brokers.
func (e *Engine) Stop() {
	e.processor.Drain()
	if e.cancel != nil {
		e.cancel()
	}
	e.processor.Stop()
	e.commandEvents.Close()
	e.metadataEvents.Close()
}

// CommandEvents returns the broker carrying handler.DependencyEvent,
// handler.CacheEvent, processor.CommandLogEvent and processor.CommandErrorEvent.
func (e *Engine) CommandEvents() *pubsub.Broker[any] {
	return e.commandEvents
}

// MetadataEvents returns the broker carrying metadata.Event values.
func (e *Engine) MetadataEvents() *metadata.EventBroker {
	return e.metadataEvents
}

// Service returns the underlying metadata service. Providers capture it to
// read their inputs and register their edges while computing; it must only be
// used from code already running on the processor goroutine.
func (e *Engine) Service() *metadata.Service {
	return e.service
}

// Processed returns how many commands the engine has executed.
func (e *Engine) Processed() int64 {
	return e.processor.ProcessedCount()
}

// AddListener adds a general notification listener to the registry. Listeners
// run on the processor goroutine, so they may only be added before Start.
func (e *Engine) AddListener(l registry.Listener) error {
	if e.processor.IsRunning() {
		return ErrAlreadyStarted
	}
	return e.registry.AddNotificationListener(l)
}

// Submit enqueues cmd without waiting for its result.
func (e *Engine) Submit(cmd command.Command) error {
	if !e.processor.IsRunning() {
		return ErrNotStarted
	}
	return e.processor.Submit(cmd)
}

// execute submits cmd and waits. A failed result is returned as an error.
func (e *Engine) execute(ctx context.Context, cmd command.Command) (*command.CommandResult, error) {
	if !e.processor.IsRunning() {
		return nil, ErrNotStarted
	}
	result, err := e.processor.SubmitAndWait(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return result, result.Error
	}
	return result, nil
}

// RegisterProvider binds p to the class it provides.
func (e *Engine) RegisterProvider(ctx context.Context, p metadata.Provider) error {
	_, err := e.execute(ctx, command.NewRegisterProviderCommand(e.source, p))
	return err
}

// DeregisterProvider unbinds the provider of class.
func (e *Engine) DeregisterProvider(ctx context.Context, class identifier.ID) error {
	_, err := e.execute(ctx, command.NewDeregisterProviderCommand(e.source, class))
	return err
}

// RegisterDependency records that downstream depends on upstream.
func (e *Engine) RegisterDependency(ctx context.Context, upstream, downstream identifier.ID) error {
	_, err := e.execute(ctx, command.NewRegisterDependencyCommand(e.source, upstream, downstream))
	return err
}

// DeregisterDependency removes the edge upstream -> downstream.
func (e *Engine) DeregisterDependency(ctx context.Context, upstream, downstream identifier.ID) error {
	_, err := e.execute(ctx, command.NewDeregisterDependencyCommand(e.source, upstream, downstream))
	return err
}

// DeregisterDependencies removes every edge into downstream and returns the
// upstreams it was detached from.
func (e *Engine) DeregisterDependencies(ctx context.Context, downstream identifier.ID) ([]identifier.ID, error) {
	result, err := e.execute(ctx, command.NewDeregisterDependenciesCommand(e.source, downstream))
	if err != nil {
		return nil, err
	}
	removed, _ := result.Data.([]identifier.ID)
	return removed, nil
}

// NotifyDownstream runs a notification sweep for upstream and waits for it.
func (e *Engine) NotifyDownstream(ctx context.Context, upstream identifier.ID) error {
	_, err := e.execute(ctx, command.NewNotifyDownstreamCommand(e.source, upstream))
	return err
}

// Get returns the item for the instance id, computing it if needed.
func (e *Engine) Get(ctx context.Context, id identifier.ID, evictCache bool) (metadata.Item, error) {
	result, err := e.execute(ctx, command.NewGetMetadataCommand(e.source, id, evictCache))
	if err != nil {
		return nil, err
	}
	item, _ := result.Data.(metadata.Item)
	return item, nil
}

// Evict drops the cached item for id.
func (e *Engine) Evict(ctx context.Context, id identifier.ID) error {
	_, err := e.execute(ctx, command.NewEvictCommand(e.source, id))
	return err
}

// EvictAll drops every cached item.
func (e *Engine) EvictAll(ctx context.Context) error {
	_, err := e.execute(ctx, command.NewEvictAllCommand(e.source))
	return err
}

// SetCacheCapacity replaces the cache with an empty one of the new capacity.
func (e *Engine) SetCacheCapacity(ctx context.Context, capacity int) error {
	_, err := e.execute(ctx, command.NewSetCacheCapacityCommand(e.source, capacity))
	return err
}

// Inspect returns the graph neighbourhood of id.
func (e *Engine) Inspect(ctx context.Context, id identifier.ID) (*handler.InspectResult, error) {
	result, err := e.execute(ctx, command.NewInspectCommand(e.source, id))
	if err != nil {
		return nil, err
	}
	return result.Data.(*handler.InspectResult), nil
}

// Report returns engine-wide statistics. With reset, registry timings and
// service counters are cleared after being captured.
func (e *Engine) Report(ctx context.Context, reset bool) (*handler.Report, error) {
	result, err := e.execute(ctx, command.NewReportCommand(e.source, reset))
	if err != nil {
		return nil, err
	}
	return result.Data.(*handler.Report), nil
}
