package handler

import (
	"context"

	"github.com/zjrosen/metagraph/internal/command"
	"github.com/zjrosen/metagraph/internal/metadata"
)

// GetMetadataHandler handles CmdGetMetadata. The result data is the
// metadata.Item, which may be nil.
type GetMetadataHandler struct {
	service *metadata.Service
}

// NewGetMetadataHandler creates a GetMetadataHandler.
func NewGetMetadataHandler(svc *metadata.Service) *GetMetadataHandler {
	return &GetMetadataHandler{service: svc}
}

// Handle reads the item through the service cache.
func (h *GetMetadataHandler) Handle(ctx context.Context, cmd command.Command) (*command.CommandResult, error) {
	c, ok := cmd.(*command.GetMetadataCommand)
	if !ok {
		return nil, unexpected(cmd)
	}
	item, err := h.service.Get(ctx, c.MetadataID, c.EvictCache)
	if err != nil {
		return nil, err
	}
	return SuccessResult(item), nil
}

// EvictHandler handles CmdEvict.
type EvictHandler struct {
	service *metadata.Service
}

// NewEvictHandler creates an EvictHandler.
func NewEvictHandler(svc *metadata.Service) *EvictHandler {
	return &EvictHandler{service: svc}
}

// Handle drops one cached item.
func (h *EvictHandler) Handle(_ context.Context, cmd command.Command) (*command.CommandResult, error) {
	c, ok := cmd.(*command.EvictCommand)
	if !ok {
		return nil, unexpected(cmd)
	}
	if err := h.service.Evict(c.MetadataID); err != nil {
		return nil, err
	}
	cache := h.service.Cache()
	return SuccessWithEvents(nil, CacheEvent{
		ID:       c.MetadataID,
		Size:     cache.Size(),
		Capacity: cache.MaxCapacity(),
	}), nil
}

// EvictAllHandler handles CmdEvictAll.
type EvictAllHandler struct {
	service *metadata.Service
}

// NewEvictAllHandler creates an EvictAllHandler.
func NewEvictAllHandler(svc *metadata.Service) *EvictAllHandler {
	return &EvictAllHandler{service: svc}
}

// Handle empties the cache and forwards to caching providers.
func (h *EvictAllHandler) Handle(_ context.Context, cmd command.Command) (*command.CommandResult, error) {
	if _, ok := cmd.(*command.EvictAllCommand); !ok {
		return nil, unexpected(cmd)
	}
	h.service.EvictAll()
	return SuccessWithEvents(nil, CacheEvent{Capacity: h.service.Cache().MaxCapacity()}), nil
}

// SetCacheCapacityHandler handles CmdSetCacheCapacity.
type SetCacheCapacityHandler struct {
	service *metadata.Service
}

// NewSetCacheCapacityHandler creates a SetCacheCapacityHandler.
func NewSetCacheCapacityHandler(svc *metadata.Service) *SetCacheCapacityHandler {
	return &SetCacheCapacityHandler{service: svc}
}

// Handle replaces the cache store. Every cached item is discarded, and
// caching providers are told to drop their own state too.
func (h *SetCacheCapacityHandler) Handle(_ context.Context, cmd command.Command) (*command.CommandResult, error) {
	c, ok := cmd.(*command.SetCacheCapacityCommand)
	if !ok {
		return nil, unexpected(cmd)
	}
	if err := h.service.SetCacheCapacity(c.Capacity); err != nil {
		return nil, err
	}
	return SuccessWithEvents(nil, CacheEvent{Capacity: c.Capacity}), nil
}

// RegisterProviderHandler handles CmdRegisterProvider.
type RegisterProviderHandler struct {
	service *metadata.Service
}

// NewRegisterProviderHandler creates a RegisterProviderHandler.
func NewRegisterProviderHandler(svc *metadata.Service) *RegisterProviderHandler {
	return &RegisterProviderHandler{service: svc}
}

// Handle binds the provider. The result data is its class identifier.
func (h *RegisterProviderHandler) Handle(_ context.Context, cmd command.Command) (*command.CommandResult, error) {
	c, ok := cmd.(*command.RegisterProviderCommand)
	if !ok {
		return nil, unexpected(cmd)
	}
	if err := h.service.Register(c.Provider); err != nil {
		return nil, err
	}
	return SuccessResult(c.Provider.ProvidesType()), nil
}

// DeregisterProviderHandler handles CmdDeregisterProvider.
type DeregisterProviderHandler struct {
	service *metadata.Service
}

// NewDeregisterProviderHandler creates a DeregisterProviderHandler.
func NewDeregisterProviderHandler(svc *metadata.Service) *DeregisterProviderHandler {
	return &DeregisterProviderHandler{service: svc}
}

// Handle unbinds the provider of the class. Unknown classes succeed.
func (h *DeregisterProviderHandler) Handle(_ context.Context, cmd command.Command) (*command.CommandResult, error) {
	c, ok := cmd.(*command.DeregisterProviderCommand)
	if !ok {
		return nil, unexpected(cmd)
	}
	h.service.Deregister(c.Class)
	return SuccessResult(c.Class), nil
}
