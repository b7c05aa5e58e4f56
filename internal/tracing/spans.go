package tracing

// Span attribute keys.
const (
	AttrUpstream   = "metadata.upstream"
	AttrDownstream = "metadata.downstream"
	AttrListener   = "metadata.listener"
	AttrSweepID    = "metadata.sweep.id"
	AttrMetadataID = "metadata.id"
	AttrClassID    = "metadata.class"
	AttrEvictCache = "metadata.evict_cache"
	AttrCacheHit   = "metadata.cache.hit"
	AttrNotified   = "metadata.notified"

	AttrCommandID     = "command.id"
	AttrCommandType   = "command.type"
	AttrCommandSource = "command.source"

	AttrErrorMessage = "error.message"
)

// Span names.
const (
	SpanNotifyDownstream = "registry.notify_downstream"
	SpanDispatch         = "registry.dispatch"
	SpanServiceGet       = "service.get"
	SpanServiceNotify    = "service.notify"
	SpanPrefixCommand    = "command.process."
)

// Span event names.
const (
	EventCacheHit        = "cache.hit"
	EventCacheEvicted    = "cache.evicted"
	EventRecursiveGet    = "service.recursive_get"
	EventListenerFailure = "listener.failure"
	EventFollowUpCreated = "command.followup_created"
)
