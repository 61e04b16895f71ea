package artifact

// MapSuffix is appended to a primary artifact name to form its source map name.
const MapSuffix = ".map"

// Merge copies every nested artifact except primary and its source map into
// host, skipping names the host already holds. Existing host entries are
// never overwritten. It returns the number of artifacts inserted.
func Merge(host, nested *Set, primary string) int {
	if host == nil || nested == nil {
		return 0
	}

	inserted := 0
	nested.Range(func(name string, a Artifact) bool {
		if name == primary || name == primary+MapSuffix {
			return true
		}
		if host.SetIfAbsent(name, a) {
			inserted++
		}
		return true
	})
	return inserted
}
