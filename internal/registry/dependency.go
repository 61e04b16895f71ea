// Package registry records which files each compiled resource read, so an
// incremental scheduler can decide what to rebuild when a file changes.
package registry

import (
	"sort"
	"sync"
	"time"
)

// Record is the dependency list of one resource as of its last successful compile.
type Record struct {
	Path       string
	Files      []string
	RecordedAt time.Time
}

// DependencyRegistry maps resource paths to the files their last successful
// compile read. Records are replaced wholesale on every compile and never
// pruned by it.
type DependencyRegistry struct {
	records map[string]Record
	mutex   sync.RWMutex
}

// NewDependencyRegistry creates an empty registry.
func NewDependencyRegistry() *DependencyRegistry {
	return &DependencyRegistry{
		records: make(map[string]Record),
	}
}

// Record replaces the dependency list for path.
func (r *DependencyRegistry) Record(path string, files []string) {
	list := make([]string, len(files))
	copy(list, files)

	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.records[path] = Record{
		Path:       path,
		Files:      list,
		RecordedAt: time.Now(),
	}
}

// Get returns the dependency list for path, or an empty non-nil slice when
// path has never compiled successfully.
func (r *DependencyRegistry) Get(path string) []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	rec, ok := r.records[path]
	if !ok {
		return []string{}
	}
	out := make([]string, len(rec.Files))
	copy(out, rec.Files)
	return out
}

// Lookup returns the full record for path.
func (r *DependencyRegistry) Lookup(path string) (Record, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	rec, ok := r.records[path]
	if ok {
		rec.Files = append([]string(nil), rec.Files...)
	}
	return rec, ok
}

// Dependents returns the sorted resource paths whose records include file.
func (r *DependencyRegistry) Dependents(file string) []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var dependents []string
	for path, rec := range r.records {
		for _, f := range rec.Files {
			if f == file {
				dependents = append(dependents, path)
				break
			}
		}
	}
	sort.Strings(dependents)
	return dependents
}

// Paths returns every recorded resource path, sorted.
func (r *DependencyRegistry) Paths() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	paths := make([]string, 0, len(r.records))
	for p := range r.records {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Graph returns a copy of every record keyed by resource path.
func (r *DependencyRegistry) Graph() map[string][]string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	graph := make(map[string][]string, len(r.records))
	for p, rec := range r.records {
		graph[p] = append([]string{}, rec.Files...)
	}
	return graph
}

// Count returns the number of recorded resources.
func (r *DependencyRegistry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.records)
}

// Reset drops every record.
func (r *DependencyRegistry) Reset() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.records = make(map[string]Record)
}
