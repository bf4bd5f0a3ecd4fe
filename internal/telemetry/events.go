package telemetry

// Event is a request lifecycle event. Every request emits the baseline
// requested event plus exactly one terminal event derived from its final
// outcome.
type Event string

const (
	EventRequested        Event = "requested"
	EventExactHit         Event = "servedFromExactCache"
	EventSemanticHit      Event = "servedFromSemanticCache"
	EventGenerated        Event = "generated"
	EventGenerationFailed Event = "generationFailed"
)

// CacheStatus returns the fixed event-to-cache-status mapping. The mapping
// is part of the external reporting contract and must not drift.
func (e Event) CacheStatus() string {
	switch e {
	case EventRequested:
		return "pending"
	case EventExactHit, EventSemanticHit:
		return "hit"
	case EventGenerated, EventGenerationFailed:
		return "miss"
	default:
		return "unknown"
	}
}

// IsCacheHit reports whether the event belongs in the structured-metrics
// backend. Only hit events go there; generation events are recorded
// independently in the origin's own pipeline and would double-count.
func (e Event) IsCacheHit() bool {
	return e == EventExactHit || e == EventSemanticHit
}
