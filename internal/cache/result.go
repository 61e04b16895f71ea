package cache

import "github.com/conneroisu/rescomp/internal/artifact"

// ResultCache holds the two memo tables of the resource compiler.
//
// Sources maps a nested build hash to the compiled source text.
// Evaluated maps a host generation, scoped by primary output name, to the
// artifact substituted for the primary output.
type ResultCache struct {
	Sources   *Store[string]
	Evaluated *Store[artifact.Artifact]
}

// NewResultCache creates both stores with the same bounds.
func NewResultCache(maxEntries, generations int) *ResultCache {
	return &ResultCache{
		Sources:   NewStore[string](maxEntries, generations),
		Evaluated: NewStore[artifact.Artifact](maxEntries, generations),
	}
}

// EvaluatedKey builds the Evaluated key for a primary output in a host generation.
func EvaluatedKey(generation, primary string) string {
	return generation + "\x00" + primary
}

// Advance moves both stores to generation and returns the total evicted.
func (c *ResultCache) Advance(generation string) int {
	return c.Sources.Advance(generation) + c.Evaluated.Advance(generation)
}

// Clear empties both stores.
func (c *ResultCache) Clear() {
	c.Sources.Clear()
	c.Evaluated.Clear()
}
