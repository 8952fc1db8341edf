package observability

import "context"

// MultiObserver forwards each event to several observers in order.
type MultiObserver struct {
	observers []Observer
}

// NewMultiObserver drops nil entries from observers.
func NewMultiObserver(observers ...Observer) *MultiObserver {
	m := &MultiObserver{}
	for _, obs := range observers {
		if obs != nil {
			m.observers = append(m.observers, obs)
		}
	}
	return m
}

// Combine returns the cheapest observer that reaches every non-nil entry:
// NoOpObserver for none, the observer itself for one, and a MultiObserver
// otherwise.
func Combine(observers ...Observer) Observer {
	m := NewMultiObserver(observers...)
	switch len(m.observers) {
	case 0:
		return NoOpObserver{}
	case 1:
		return m.observers[0]
	}
	return m
}

// Len reports how many observers receive events.
func (m *MultiObserver) Len() int {
	return len(m.observers)
}

func (m *MultiObserver) OnEvent(ctx context.Context, event Event) {
	for _, obs := range m.observers {
		obs.OnEvent(ctx, event)
	}
}
