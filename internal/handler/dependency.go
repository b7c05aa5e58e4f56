package handler

import (
	"context"
	"fmt"

	"github.com/zjrosen/metagraph/internal/command"
	"github.com/zjrosen/metagraph/internal/log"
	"github.com/zjrosen/metagraph/internal/registry"
)

// RegisterDependencyHandler handles CmdRegisterDependency.
type RegisterDependencyHandler struct {
	registry *registry.Registry
}

// NewRegisterDependencyHandler creates a RegisterDependencyHandler.
func NewRegisterDependencyHandler(reg *registry.Registry) *RegisterDependencyHandler {
	return &RegisterDependencyHandler{registry: reg}
}

// Handle records the edge. A cycle is reported as registry.ErrInvalidDependency.
func (h *RegisterDependencyHandler) Handle(_ context.Context, cmd command.Command) (*command.CommandResult, error) {
	c, ok := cmd.(*command.RegisterDependencyCommand)
	if !ok {
		return nil, unexpected(cmd)
	}
	if err := h.registry.RegisterDependency(c.Upstream, c.Downstream); err != nil {
		return nil, err
	}
	return SuccessWithEvents(nil, DependencyEvent{
		Kind:       DependencyAdded,
		Upstream:   c.Upstream,
		Downstream: c.Downstream,
	}), nil
}

// DeregisterDependencyHandler handles CmdDeregisterDependency.
type DeregisterDependencyHandler struct {
	registry *registry.Registry
}

// NewDeregisterDependencyHandler creates a DeregisterDependencyHandler.
func NewDeregisterDependencyHandler(reg *registry.Registry) *DeregisterDependencyHandler {
	return &DeregisterDependencyHandler{registry: reg}
}

// Handle removes the edge. Removing a missing edge succeeds.
func (h *DeregisterDependencyHandler) Handle(_ context.Context, cmd command.Command) (*command.CommandResult, error) {
	c, ok := cmd.(*command.DeregisterDependencyCommand)
	if !ok {
		return nil, unexpected(cmd)
	}
	if err := h.registry.DeregisterDependency(c.Upstream, c.Downstream); err != nil {
		return nil, err
	}
	return SuccessWithEvents(nil, DependencyEvent{
		Kind:       DependencyRemoved,
		Upstream:   c.Upstream,
		Downstream: c.Downstream,
	}), nil
}

// DeregisterDependenciesHandler handles CmdDeregisterDependencies.
type DeregisterDependenciesHandler struct {
	registry *registry.Registry
}

// NewDeregisterDependenciesHandler creates a DeregisterDependenciesHandler.
func NewDeregisterDependenciesHandler(reg *registry.Registry) *DeregisterDependenciesHandler {
	return &DeregisterDependenciesHandler{registry: reg}
}

// Handle removes every edge into the downstream. The result data is the list
// of upstreams that were detached.
func (h *DeregisterDependenciesHandler) Handle(_ context.Context, cmd command.Command) (*command.CommandResult, error) {
	c, ok := cmd.(*command.DeregisterDependenciesCommand)
	if !ok {
		return nil, unexpected(cmd)
	}
	removed := h.registry.GetUpstream(c.Downstream)
	if err := h.registry.DeregisterDependencies(c.Downstream); err != nil {
		return nil, err
	}
	events := make([]any, 0, len(removed))
	for _, up := range removed {
		events = append(events, DependencyEvent{Kind: DependencyRemoved, Upstream: up, Downstream: c.Downstream})
	}
	return SuccessWithEvents(removed, events...), nil
}

// NotifyDownstreamHandler handles CmdNotifyDownstream.
type NotifyDownstreamHandler struct {
	registry *registry.Registry
}

// NewNotifyDownstreamHandler creates a NotifyDownstreamHandler.
func NewNotifyDownstreamHandler(reg *registry.Registry) *NotifyDownstreamHandler {
	return &NotifyDownstreamHandler{registry: reg}
}

// Handle runs a full sweep. Listener failures do not stop the sweep; they are
// joined into the result error, and the notified event is published either way.
func (h *NotifyDownstreamHandler) Handle(ctx context.Context, cmd command.Command) (*command.CommandResult, error) {
	c, ok := cmd.(*command.NotifyDownstreamCommand)
	if !ok {
		return nil, unexpected(cmd)
	}
	event := DependencyEvent{Kind: DependencyNotified, Upstream: c.Upstream}
	if err := h.registry.NotifyDownstream(ctx, c.Upstream); err != nil {
		log.Warn(log.CatRegistry, "Sweep completed with failures", "upstream", c.Upstream, "error", err.Error())
		return FailureResult(err, nil, event), nil
	}
	return SuccessWithEvents(nil, event), nil
}

func unexpected(cmd command.Command) error {
	return fmt.Errorf("unexpected command type %T for %s", cmd, cmd.Type())
}
