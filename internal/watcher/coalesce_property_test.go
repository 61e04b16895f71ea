//go:build property

package watcher

import (
	"reflect"
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestCoalesceProperties validates batch coalescing invariants
func TestCoalesceProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1234)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	toEvents := func(paths []string, types []int) []ChangeEvent {
		events := make([]ChangeEvent, len(paths))
		for i, p := range paths {
			typ := EventTypeModified
			if i < len(types) {
				typ = EventType(types[i] % 4)
			}
			events[i] = ChangeEvent{Type: typ, Path: p}
		}
		return events
	}

	properties.Property("one sorted event per distinct path", prop.ForAll(
		func(paths []string, types []int) bool {
			out := coalesce(toEvents(paths, types))

			distinct := make(map[string]bool)
			for _, p := range paths {
				distinct[p] = true
			}
			if len(out) != len(distinct) {
				return false
			}
			return sort.SliceIsSorted(out, func(i, j int) bool { return out[i].Path < out[j].Path })
		},
		gen.SliceOf(gen.OneConstOf("a.css", "b.css", "c.html", "d.svg"), reflect.TypeOf("")),
		gen.SliceOf(gen.IntRange(0, 3)),
	))

	properties.Property("the last event for a path wins", prop.ForAll(
		func(paths []string, types []int) bool {
			events := toEvents(paths, types)
			last := make(map[string]EventType)
			for _, e := range events {
				last[e.Path] = e.Type
			}
			for _, e := range coalesce(events) {
				if last[e.Path] != e.Type {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.OneConstOf("a.css", "b.css", "c.html", "d.svg"), reflect.TypeOf("")),
		gen.SliceOf(gen.IntRange(0, 3)),
	))

	properties.TestingRun(t)
}
