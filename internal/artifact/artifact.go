// Package artifact models the named outputs a build produces and the
// concurrency-safe sets that hold them.
package artifact

import "sync"

// Kind classifies how an artifact's source should be interpreted.
type Kind int

const (
	// Module is executable output whose completion value is the compiled text.
	Module Kind = iota
	// Static is final text that needs no evaluation.
	Static
	// Asset is a secondary output referenced by a resource (image, font).
	Asset
	// SourceMap is a v3 source map for another artifact.
	SourceMap
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Module:
		return "module"
	case Static:
		return "static"
	case Asset:
		return "asset"
	case SourceMap:
		return "sourcemap"
	default:
		return "unknown"
	}
}

// Artifact is an immutable named build output.
type Artifact interface {
	Source() []byte
	Kind() Kind
}

type raw struct {
	source []byte
	kind   Kind
}

func (r *raw) Source() []byte { return r.source }
func (r *raw) Kind() Kind     { return r.kind }

// New returns an artifact of the given kind. The byte slice is copied.
func New(kind Kind, source []byte) Artifact {
	buf := make([]byte, len(source))
	copy(buf, source)
	return &raw{source: buf, kind: kind}
}

// NewStatic wraps final text as a Static artifact.
func NewStatic(text string) Artifact {
	return &raw{source: []byte(text), kind: Static}
}

// Set is a name-keyed collection of artifacts safe for concurrent use.
type Set struct {
	mu    sync.RWMutex
	items map[string]Artifact
	order []string
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{items: make(map[string]Artifact)}
}

// Get returns the artifact stored under name.
func (s *Set) Get(name string) (Artifact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.items[name]
	return a, ok
}

// Has reports whether name is present.
func (s *Set) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.items[name]
	return ok
}

// Set stores a under name, replacing any existing entry.
func (s *Set) Set(name string, a Artifact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[name]; !ok {
		s.order = append(s.order, name)
	}
	s.items[name] = a
}

// SetIfAbsent stores a under name only when no entry exists and reports
// whether it was stored.
func (s *Set) SetIfAbsent(name string, a Artifact) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[name]; ok {
		return false
	}
	s.items[name] = a
	s.order = append(s.order, name)
	return true
}

// Names returns entry names in insertion order.
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, len(s.order))
	copy(names, s.order)
	return names
}

// Len returns the number of entries.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Range calls fn for each entry in insertion order until fn returns false.
// fn runs on a snapshot, so it may modify the set.
func (s *Set) Range(fn func(name string, a Artifact) bool) {
	s.mu.RLock()
	names := make([]string, len(s.order))
	copy(names, s.order)
	items := make([]Artifact, len(names))
	for i, n := range names {
		items[i] = s.items[n]
	}
	s.mu.RUnlock()

	for i, n := range names {
		if !fn(n, items[i]) {
			return
		}
	}
}
