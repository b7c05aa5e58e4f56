package handler

import (
	"context"

	"github.com/zjrosen/metagraph/internal/command"
	"github.com/zjrosen/metagraph/internal/identifier"
	"github.com/zjrosen/metagraph/internal/metadata"
	"github.com/zjrosen/metagraph/internal/registry"
)

// InspectResult describes the graph neighbourhood of one identifier.
type InspectResult struct {
	ID         identifier.ID
	Upstream   []identifier.ID
	Downstream []identifier.ID
	// Cached is always false for class identifiers.
	Cached bool
	// HasProvider reports whether a provider is bound to the owning class.
	HasProvider bool
}

// InspectHandler handles CmdInspect.
type InspectHandler struct {
	service *metadata.Service
}

// NewInspectHandler creates an InspectHandler.
func NewInspectHandler(svc *metadata.Service) *InspectHandler {
	return &InspectHandler{service: svc}
}

// Handle snapshots the identifier's edges without touching cache recency.
func (h *InspectHandler) Handle(_ context.Context, cmd command.Command) (*command.CommandResult, error) {
	c, ok := cmd.(*command.InspectCommand)
	if !ok {
		return nil, unexpected(cmd)
	}
	reg := h.service.Registry()
	_, hasProvider := h.service.Provider(c.MetadataID.ClassID())
	return SuccessResult(&InspectResult{
		ID:          c.MetadataID,
		Upstream:    reg.GetUpstream(c.MetadataID),
		Downstream:  reg.GetDownstream(c.MetadataID),
		Cached:      c.MetadataID.IsInstance() && h.service.Cache().Contains(c.MetadataID),
		HasProvider: hasProvider,
	}), nil
}

// Report is an engine-wide snapshot.
type Report struct {
	Stats     metadata.Stats
	Timings   []registry.Timing
	Edges     []registry.Edge
	Providers []identifier.ID
	Listeners int
	CacheSize int
	Capacity  int
}

// ReportHandler handles CmdReport.
type ReportHandler struct {
	service *metadata.Service
}

// NewReportHandler creates a ReportHandler.
func NewReportHandler(svc *metadata.Service) *ReportHandler {
	return &ReportHandler{service: svc}
}

// Handle builds the report, then optionally resets timings and counters.
func (h *ReportHandler) Handle(_ context.Context, cmd command.Command) (*command.CommandResult, error) {
	c, ok := cmd.(*command.ReportCommand)
	if !ok {
		return nil, unexpected(cmd)
	}
	reg := h.service.Registry()
	cache := h.service.Cache()
	report := &Report{
		Stats:     h.service.Stats(),
		Timings:   reg.Timings(),
		Edges:     reg.Edges(),
		Providers: h.service.Providers(),
		Listeners: reg.ListenerCount(),
		CacheSize: cache.Size(),
		Capacity:  cache.MaxCapacity(),
	}
	if c.ResetTimings {
		reg.ResetTimings()
		h.service.ResetStats()
	}
	return SuccessResult(report), nil
}
