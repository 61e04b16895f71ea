package build

import (
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// ResolveEntries expands glob patterns relative to contextDir into the
// sorted list of absolute file paths that match and have a loader. A "**"
// segment matches any number of directories. Directories whose base name
// appears in ignore are skipped.
func (b *Build) ResolveEntries(patterns, ignore []string) ([]string, error) {
	return b.walk(patterns, ignore, func(p string) bool {
		_, ok := b.loaders.ForPath(p)
		return ok
	})
}

// InputFiles lists every file under the context directory outside ignored
// directories. It is the input set for Rehash.
func (b *Build) InputFiles(ignore []string) ([]string, error) {
	return b.walk([]string{"**"}, ignore, func(string) bool { return true })
}

func (b *Build) walk(patterns, ignore []string, keep func(string) bool) ([]string, error) {
	skip := make(map[string]bool, len(ignore))
	for _, name := range ignore {
		skip[name] = true
	}

	seen := make(map[string]bool)
	var entries []string

	err := filepath.WalkDir(b.contextDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != b.contextDir && (skip[d.Name()] || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(b.contextDir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		for _, pattern := range patterns {
			if matchGlob(filepath.ToSlash(pattern), rel) {
				if keep(p) && !seen[p] {
					seen[p] = true
					entries = append(entries, p)
				}
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(entries)
	return entries, nil
}

// matchGlob reports whether the slash-separated name matches pattern.
func matchGlob(pattern, name string) bool {
	return matchSegments(strings.Split(strings.Trim(pattern, "/"), "/"), strings.Split(name, "/"))
}

func matchSegments(pattern, name []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			rest := pattern[1:]
			for i := 0; i <= len(name); i++ {
				if matchSegments(rest, name[i:]) {
					return true
				}
			}
			return false
		}
		if len(name) == 0 {
			return false
		}
		if ok, err := path.Match(pattern[0], name[0]); err != nil || !ok {
			return false
		}
		pattern, name = pattern[1:], name[1:]
	}
	return len(name) == 0
}
