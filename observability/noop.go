package observability

import "context"

// NoOpObserver discards every event. Stores and queries built for tests or
// embedded use pass it through WithObserver to silence the default slog
// output.
type NoOpObserver struct{}

func (NoOpObserver) OnEvent(context.Context, Event) {}
