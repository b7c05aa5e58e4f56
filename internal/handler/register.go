package handler

import (
	"github.com/zjrosen/metagraph/internal/command"
	"github.com/zjrosen/metagraph/internal/metadata"
	"github.com/zjrosen/metagraph/internal/processor"
)

// RegisterAll registers a handler for every engine command type on p.
// The registry is the one the service is installed in.
func RegisterAll(p *processor.CommandProcessor, svc *metadata.Service) {
	reg := svc.Registry()

	p.RegisterHandler(command.CmdRegisterDependency, NewRegisterDependencyHandler(reg))
	p.RegisterHandler(command.CmdDeregisterDependency, NewDeregisterDependencyHandler(reg))
	p.RegisterHandler(command.CmdDeregisterDependencies, NewDeregisterDependenciesHandler(reg))
	p.RegisterHandler(command.CmdNotifyDownstream, NewNotifyDownstreamHandler(reg))

	p.RegisterHandler(command.CmdGetMetadata, NewGetMetadataHandler(svc))
	p.RegisterHandler(command.CmdEvict, NewEvictHandler(svc))
	p.RegisterHandler(command.CmdEvictAll, NewEvictAllHandler(svc))
	p.RegisterHandler(command.CmdSetCacheCapacity, NewSetCacheCapacityHandler(svc))
	p.RegisterHandler(command.CmdRegisterProvider, NewRegisterProviderHandler(svc))
	p.RegisterHandler(command.CmdDeregisterProvider, NewDeregisterProviderHandler(svc))

	p.RegisterHandler(command.CmdInspect, NewInspectHandler(svc))
	p.RegisterHandler(command.CmdReport, NewReportHandler(svc))
}
