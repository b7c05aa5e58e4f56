package handler

import (
	"github.com/zjrosen/metagraph/internal/identifier"
)

// DependencyEventKind describes a change to the dependency graph.
type DependencyEventKind string

const (
	DependencyAdded    DependencyEventKind = "added"
	DependencyRemoved  DependencyEventKind = "removed"
	DependencyNotified DependencyEventKind = "notified"
)

// DependencyEvent is published on the engine bus after a graph command.
// Downstream is empty for sweeps and for bulk removal by upstream.
type DependencyEvent struct {
	Kind       DependencyEventKind
	Upstream   identifier.ID
	Downstream identifier.ID
}

// CacheEvent is published after explicit evictions and resizes.
type CacheEvent struct {
	// ID is empty for EvictAll and capacity changes.
	ID       identifier.ID
	Size     int
	Capacity int
}
