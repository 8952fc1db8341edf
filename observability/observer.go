// Package observability carries structured events from the store, query,
// and runtime layers to pluggable observers. Severity follows the
// OpenTelemetry SeverityNumber scale so an exporter can forward events
// unchanged.
package observability

import (
	"context"
	"log/slog"
	"time"
)

// Level is an event severity on the OTel SeverityNumber scale (1-24).
type Level int

// The lowest SeverityNumber of each OTel range used here.
const (
	LevelVerbose Level = 5
	LevelInfo    Level = 9
	LevelWarning Level = 13
	LevelError   Level = 17
)

// severity ranges, upper bounds inclusive.
var severities = []struct {
	max  Level
	name string
	slog slog.Level
}{
	{4, "TRACE", slog.LevelDebug},
	{8, "DEBUG", slog.LevelDebug},
	{12, "INFO", slog.LevelInfo},
	{16, "WARN", slog.LevelWarn},
	{20, "ERROR", slog.LevelError},
}

// String returns the OTel severity text.
func (l Level) String() string {
	for _, s := range severities {
		if l <= s.max {
			return s.name
		}
	}
	return "FATAL"
}

// SlogLevel maps l onto slog; trace collapses into debug and fatal into
// error.
func (l Level) SlogLevel() slog.Level {
	for _, s := range severities {
		if l <= s.max {
			return s.slog
		}
	}
	return slog.LevelError
}

// EventType names an event, namespaced by the emitting package
// ("store.load.complete", "query.evaluate").
type EventType string

// Event is one occurrence reported to an Observer. Type, Level, Source,
// and Data correspond to the OTel EventName, SeverityNumber,
// InstrumentationScope, and Attributes fields.
type Event struct {
	Type      EventType
	Level     Level
	Timestamp time.Time
	Source    string
	Data      map[string]any
}

// Observer receives events. Implementations must be safe for concurrent
// use; the store emits from fetch goroutines.
type Observer interface {
	OnEvent(ctx context.Context, event Event)
}
