package observability_test

import (
	"context"
	"strings"
	"testing"

	"github.com/tailored-agentic-units/tabula/observability"
)

func TestGetObserver(t *testing.T) {
	for _, name := range []string{"noop", "slog"} {
		if obs, err := observability.GetObserver(name); err != nil || obs == nil {
			t.Errorf("GetObserver(%q) = %v, %v; want registered observer", name, obs, err)
		}
	}

	_, err := observability.GetObserver("missing")
	if err == nil || !strings.Contains(err.Error(), "noop") {
		t.Errorf("GetObserver(missing) error = %v, want registered names listed", err)
	}
}

func TestRegisterObserver(t *testing.T) {
	rec := observability.NewRecorder()
	observability.RegisterObserver("register-test", rec)

	obs, err := observability.GetObserver("register-test")
	if err != nil {
		t.Fatalf("GetObserver() error = %v", err)
	}
	obs.OnEvent(context.Background(), observability.Event{Type: "store.reprocess"})

	if got := len(rec.OfType("store.reprocess")); got != 1 {
		t.Errorf("recorded %d events, want 1", got)
	}
}

func TestMultiObserver(t *testing.T) {
	first, second := observability.NewRecorder(), observability.NewRecorder()
	multi := observability.NewMultiObserver(nil, first, nil, second)

	if multi.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 after dropping nils", multi.Len())
	}

	multi.OnEvent(context.Background(), observability.Event{Type: "store.load.start"})

	for i, rec := range []*observability.Recorder{first, second} {
		events := rec.Events()
		if len(events) != 1 || events[0].Type != "store.load.start" {
			t.Errorf("observer %d events = %v, want one store.load.start", i, events)
		}
	}
}

func TestCombine(t *testing.T) {
	rec := observability.NewRecorder()

	if _, ok := observability.Combine().(observability.NoOpObserver); !ok {
		t.Error("Combine() should return NoOpObserver")
	}
	if got := observability.Combine(nil, rec); got != observability.Observer(rec) {
		t.Errorf("Combine(nil, rec) = %T, want the recorder itself", got)
	}

	multi, ok := observability.Combine(rec, observability.NewRecorder()).(*observability.MultiObserver)
	if !ok || multi.Len() != 2 {
		t.Errorf("Combine(rec, rec2) = %T, want MultiObserver of 2", multi)
	}
}

func TestResolve(t *testing.T) {
	rec := observability.NewRecorder()
	observability.RegisterObserver("resolve-test", rec)

	obs, err := observability.Resolve(" noop , resolve-test,")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	obs.OnEvent(context.Background(), observability.Event{Type: "store.load.start"})
	if got := len(rec.Events()); got != 1 {
		t.Errorf("recorder received %d events, want 1", got)
	}

	if _, err := observability.Resolve("noop,missing"); err == nil {
		t.Error("Resolve() with unknown name should fail")
	}
}

func TestRecorder(t *testing.T) {
	rec := observability.NewRecorder()
	ctx := context.Background()

	rec.OnEvent(ctx, observability.Event{Type: "store.load.start"})
	rec.OnEvent(ctx, observability.Event{Type: "store.fetch.start"})
	rec.OnEvent(ctx, observability.Event{Type: "store.load.start"})

	if got := len(rec.Events()); got != 3 {
		t.Errorf("Events() len = %d, want 3", got)
	}
	if got := len(rec.OfType("store.load.start")); got != 2 {
		t.Errorf("OfType(store.load.start) len = %d, want 2", got)
	}

	rec.Reset()
	if got := len(rec.Events()); got != 0 {
		t.Errorf("Events() after Reset len = %d, want 0", got)
	}
}
