package store

import "github.com/tailored-agentic-units/tabula/observability"

// Store event types emitted during loading and reprocessing.
const (
	EventLoadStart     observability.EventType = "store.load.start"
	EventLoadComplete  observability.EventType = "store.load.complete"
	EventLoadError     observability.EventType = "store.load.error"
	EventFetchStart    observability.EventType = "store.fetch.start"
	EventFetchComplete observability.EventType = "store.fetch.complete"
	EventReprocess     observability.EventType = "store.reprocess"
)
