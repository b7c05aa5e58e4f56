package command

import (
	"errors"
	"fmt"

	"github.com/zjrosen/metagraph/internal/identifier"
	"github.com/zjrosen/metagraph/internal/metadata"
)

// ErrNilProvider is returned by RegisterProviderCommand.Validate for a nil provider.
var ErrNilProvider = errors.New("provider is required")

// ===========================================================================
// Dependency Commands
// ===========================================================================

// RegisterDependencyCommand records that Downstream depends on Upstream.
type RegisterDependencyCommand struct {
	*BaseCommand
	Upstream   identifier.ID
	Downstream identifier.ID
}

// NewRegisterDependencyCommand creates a RegisterDependencyCommand.
func NewRegisterDependencyCommand(source CommandSource, upstream, downstream identifier.ID) *RegisterDependencyCommand {
	base := NewBaseCommand(CmdRegisterDependency, source)
	return &RegisterDependencyCommand{BaseCommand: &base, Upstream: upstream, Downstream: downstream}
}

// Validate checks both identifiers. Cycle detection happens in the registry.
func (c *RegisterDependencyCommand) Validate() error {
	return validatePair(c.Upstream, c.Downstream)
}

// DeregisterDependencyCommand removes one edge.
type DeregisterDependencyCommand struct {
	*BaseCommand
	Upstream   identifier.ID
	Downstream identifier.ID
}

// NewDeregisterDependencyCommand creates a DeregisterDependencyCommand.
func NewDeregisterDependencyCommand(source CommandSource, upstream, downstream identifier.ID) *DeregisterDependencyCommand {
	base := NewBaseCommand(CmdDeregisterDependency, source)
	return &DeregisterDependencyCommand{BaseCommand: &base, Upstream: upstream, Downstream: downstream}
}

// Validate checks both identifiers.
func (c *DeregisterDependencyCommand) Validate() error {
	return validatePair(c.Upstream, c.Downstream)
}

// DeregisterDependenciesCommand removes every edge into Downstream.
type DeregisterDependenciesCommand struct {
	*BaseCommand
	Downstream identifier.ID
}

// NewDeregisterDependenciesCommand creates a DeregisterDependenciesCommand.
func NewDeregisterDependenciesCommand(source CommandSource, downstream identifier.ID) *DeregisterDependenciesCommand {
	base := NewBaseCommand(CmdDeregisterDependencies, source)
	return &DeregisterDependenciesCommand{BaseCommand: &base, Downstream: downstream}
}

// Validate checks the identifier.
func (c *DeregisterDependenciesCommand) Validate() error {
	return c.Downstream.Validate()
}

// NotifyDownstreamCommand runs a notification sweep for Upstream.
type NotifyDownstreamCommand struct {
	*BaseCommand
	Upstream identifier.ID
}

// NewNotifyDownstreamCommand creates a NotifyDownstreamCommand.
func NewNotifyDownstreamCommand(source CommandSource, upstream identifier.ID) *NotifyDownstreamCommand {
	base := NewBaseCommand(CmdNotifyDownstream, source)
	return &NotifyDownstreamCommand{BaseCommand: &base, Upstream: upstream}
}

// Validate checks the identifier.
func (c *NotifyDownstreamCommand) Validate() error {
	return c.Upstream.Validate()
}

// ===========================================================================
// Service Commands
// ===========================================================================

// GetMetadataCommand reads the item for an instance identifier.
type GetMetadataCommand struct {
	*BaseCommand
	MetadataID identifier.ID
	EvictCache bool
}

// NewGetMetadataCommand creates a GetMetadataCommand.
func NewGetMetadataCommand(source CommandSource, id identifier.ID, evictCache bool) *GetMetadataCommand {
	base := NewBaseCommand(CmdGetMetadata, source)
	return &GetMetadataCommand{BaseCommand: &base, MetadataID: id, EvictCache: evictCache}
}

// Validate requires an instance identifier.
func (c *GetMetadataCommand) Validate() error {
	if !c.MetadataID.IsInstance() {
		return fmt.Errorf("%w: %q is not an instance identifier", identifier.ErrInvalidIdentifier, c.MetadataID)
	}
	return nil
}

// EvictCommand drops the cached item for MetadataID.
type EvictCommand struct {
	*BaseCommand
	MetadataID identifier.ID
}

// NewEvictCommand creates an EvictCommand.
func NewEvictCommand(source CommandSource, id identifier.ID) *EvictCommand {
	base := NewBaseCommand(CmdEvict, source)
	return &EvictCommand{BaseCommand: &base, MetadataID: id}
}

// Validate checks the identifier.
func (c *EvictCommand) Validate() error {
	return c.MetadataID.Validate()
}

// EvictAllCommand drops every cached item.
type EvictAllCommand struct {
	*BaseCommand
}

// NewEvictAllCommand creates an EvictAllCommand.
func NewEvictAllCommand(source CommandSource) *EvictAllCommand {
	base := NewBaseCommand(CmdEvictAll, source)
	return &EvictAllCommand{BaseCommand: &base}
}

// SetCacheCapacityCommand resizes the cache. The cache restarts empty.
type SetCacheCapacityCommand struct {
	*BaseCommand
	Capacity int
}

// NewSetCacheCapacityCommand creates a SetCacheCapacityCommand.
func NewSetCacheCapacityCommand(source CommandSource, capacity int) *SetCacheCapacityCommand {
	base := NewBaseCommand(CmdSetCacheCapacity, source)
	return &SetCacheCapacityCommand{BaseCommand: &base, Capacity: capacity}
}

// RegisterProviderCommand binds Provider to its class.
type RegisterProviderCommand struct {
	*BaseCommand
	Provider metadata.Provider
}

// NewRegisterProviderCommand creates a RegisterProviderCommand.
func NewRegisterProviderCommand(source CommandSource, p metadata.Provider) *RegisterProviderCommand {
	base := NewBaseCommand(CmdRegisterProvider, source)
	return &RegisterProviderCommand{BaseCommand: &base, Provider: p}
}

// Validate requires a provider.
func (c *RegisterProviderCommand) Validate() error {
	if c.Provider == nil {
		return ErrNilProvider
	}
	return nil
}

// DeregisterProviderCommand unbinds the provider of Class.
type DeregisterProviderCommand struct {
	*BaseCommand
	Class identifier.ID
}

// NewDeregisterProviderCommand creates a DeregisterProviderCommand.
func NewDeregisterProviderCommand(source CommandSource, class identifier.ID) *DeregisterProviderCommand {
	base := NewBaseCommand(CmdDeregisterProvider, source)
	return &DeregisterProviderCommand{BaseCommand: &base, Class: class}
}

// Validate requires a class identifier.
func (c *DeregisterProviderCommand) Validate() error {
	if !c.Class.IsClass() {
		return fmt.Errorf("%w: %q is not a class identifier", identifier.ErrInvalidIdentifier, c.Class)
	}
	return nil
}

// ===========================================================================
// Diagnostic Commands
// ===========================================================================

// InspectCommand snapshots the edges around MetadataID.
type InspectCommand struct {
	*BaseCommand
	MetadataID identifier.ID
}

// NewInspectCommand creates an InspectCommand.
func NewInspectCommand(source CommandSource, id identifier.ID) *InspectCommand {
	base := NewBaseCommand(CmdInspect, source)
	return &InspectCommand{BaseCommand: &base, MetadataID: id}
}

// Validate checks the identifier.
func (c *InspectCommand) Validate() error {
	return c.MetadataID.Validate()
}

// ReportCommand snapshots engine-wide statistics.
type ReportCommand struct {
	*BaseCommand
	// ResetTimings clears registry timings and service counters after they
	// are captured.
	ResetTimings bool
}

// NewReportCommand creates a ReportCommand.
func NewReportCommand(source CommandSource, resetTimings bool) *ReportCommand {
	base := NewBaseCommand(CmdReport, source)
	return &ReportCommand{BaseCommand: &base, ResetTimings: resetTimings}
}

func validatePair(upstream, downstream identifier.ID) error {
	if err := upstream.Validate(); err != nil {
		return fmt.Errorf("upstream: %w", err)
	}
	if err := downstream.Validate(); err != nil {
		return fmt.Errorf("downstream: %w", err)
	}
	return nil
}
