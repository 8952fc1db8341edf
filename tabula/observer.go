package tabula

import "github.com/tailored-agentic-units/tabula/observability"

// Runtime event types.
const (
	EventPreload observability.EventType = "tabula.preload"
	EventClose   observability.EventType = "tabula.close"
)
