package observability

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
)

// named holds the observers selectable by name from configuration. "noop"
// and "slog" are always present; logging.Setup replaces "slog" when it
// installs a new default logger.
var named = struct {
	sync.RWMutex
	m map[string]Observer
}{
	m: map[string]Observer{
		"noop": NoOpObserver{},
		"slog": NewSlogObserver(slog.Default()),
	},
}

// GetObserver returns the observer registered under name.
func GetObserver(name string) (Observer, error) {
	named.RLock()
	defer named.RUnlock()

	if obs, ok := named.m[name]; ok {
		return obs, nil
	}
	return nil, fmt.Errorf("unknown observer %q (registered: %s)",
		name, strings.Join(slices.Sorted(maps.Keys(named.m)), ", "))
}

// RegisterObserver registers observer under name, replacing any previous one.
func RegisterObserver(name string, observer Observer) {
	named.Lock()
	named.m[name] = observer
	named.Unlock()
}

// Resolve looks up a comma-separated list of observer names and combines
// them, so "slog,audit" sends every event to both.
func Resolve(names string) (Observer, error) {
	var resolved []Observer
	for name := range strings.SplitSeq(names, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		obs, err := GetObserver(name)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, obs)
	}
	return Combine(resolved...), nil
}
