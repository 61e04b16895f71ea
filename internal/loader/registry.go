package loader

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/conneroisu/rescomp/internal/config"
)

// Registry maps lowercase file extensions (without the dot) to loaders.
type Registry struct {
	mu      sync.RWMutex
	loaders map[string]Loader
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{loaders: make(map[string]Loader)}
}

// NewRegistryFromConfig builds the registry described by the loaders section.
// Command loaders take precedence over rules for the same extension.
func NewRegistryFromConfig(cfg config.LoadersConfig) (*Registry, error) {
	r := NewRegistry()
	css, html, raw := NewCSSLoader(), NewHTMLLoader(), NewRawLoader()

	for ext, name := range cfg.Rules {
		switch name {
		case config.LoaderCSS:
			r.Register(ext, css)
		case config.LoaderHTML:
			r.Register(ext, html)
		case config.LoaderRaw:
			r.Register(ext, raw)
		default:
			return nil, fmt.Errorf("unknown loader %q for extension %q", name, ext)
		}
	}

	for ext, c := range cfg.Commands {
		r.Register(ext, NewCommandLoader(c.Command, c.Command, c.Args, cfg.AllowedCommands))
	}

	return r, nil
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// Register associates ext with l, replacing any previous loader.
func (r *Registry) Register(ext string, l Loader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders[normalizeExt(ext)] = l
}

// ForPath returns the loader for the extension of path.
func (r *Registry) ForPath(path string) (Loader, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.loaders[normalizeExt(filepath.Ext(path))]
	return l, ok
}

// Extensions returns the registered extensions, sorted.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.loaders))
	for ext := range r.loaders {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
