package metadata

import (
	"github.com/zjrosen/metagraph/internal/identifier"
	"github.com/zjrosen/metagraph/internal/pubsub"
)

// Event describes a change in the service's view of one identifier.
//
// Published with pubsub.CreatedEvent when an item is computed and cached,
// pubsub.DeletedEvent when an entry is explicitly evicted, and
// pubsub.NotifiedEvent when a downstream is notified of an upstream change.
type Event struct {
	ID       identifier.ID
	Upstream identifier.ID
	Item     Item
}

// EventBroker fans service events out to subscribers.
type EventBroker = pubsub.Broker[Event]

// NewEventBroker creates a broker for service events.
func NewEventBroker() *EventBroker {
	return pubsub.NewBroker[Event]()
}
