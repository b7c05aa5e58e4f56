package metadata

import (
	"context"

	"github.com/zjrosen/metagraph/internal/identifier"
)

// Item is a computed artifact. ID is always an instance identifier.
type Item interface {
	ID() identifier.ID
}

// Provider computes artifacts for the instances of one class.
//
// Get may read external mutable state and register dependencies on the
// registry for everything it reads. A nil item with a nil error means there
// is nothing to report for id.
type Provider interface {
	ProvidesType() identifier.ID
	Get(ctx context.Context, id identifier.ID) (Item, error)
}

// NotificationListener is implemented by providers that handle invalidation of
// their own instances instead of the default evict-recompute-cascade.
type NotificationListener interface {
	Notify(ctx context.Context, upstream, downstream identifier.ID) error
}

// CacheProvider is implemented by providers that keep a secondary cache which
// must follow the service's Evict and EvictAll calls.
type CacheProvider interface {
	Evict(id identifier.ID)
	EvictAll()
}

// binding is a registered provider with its optional capabilities resolved.
type binding struct {
	provider Provider
	listener NotificationListener
	cache    CacheProvider
}

func newBinding(p Provider) *binding {
	b := &binding{provider: p}
	if l, ok := p.(NotificationListener); ok {
		b.listener = l
	}
	if c, ok := p.(CacheProvider); ok {
		b.cache = c
	}
	return b
}

// Value is a general purpose Item carrying an arbitrary payload.
type Value[T any] struct {
	Identifier identifier.ID
	Payload    T
}

// NewValue returns an Item for id holding payload.
func NewValue[T any](id identifier.ID, payload T) *Value[T] {
	return &Value[T]{Identifier: id, Payload: payload}
}

func (v *Value[T]) ID() identifier.ID {
	return v.Identifier
}
