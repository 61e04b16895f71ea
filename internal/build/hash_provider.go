package build

import (
	"fmt"
	"hash/crc32"
	"os"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/rescomp/internal/cache"
	"github.com/conneroisu/rescomp/internal/interfaces"
)

// hashConcurrency bounds parallel file reads in HashFiles.
const hashConcurrency = 8

// HashProvider computes CRC32-Castagnoli content hashes for files. Hashes
// are memoized by path, modification time and size so unchanged files are
// only stat'ed.
type HashProvider struct {
	memo     *cache.Store[string]
	crcTable *crc32.Table
}

// NewHashProvider creates a hash provider remembering up to maxEntries
// file hashes.
func NewHashProvider(maxEntries int) *HashProvider {
	return &HashProvider{
		memo:     cache.NewStore[string](maxEntries, 1),
		crcTable: crc32.MakeTable(crc32.Castagnoli),
	}
}

// FileHash returns the content hash of path.
func (hp *HashProvider) FileHash(path string) (string, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if stat.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}

	metadataKey := fmt.Sprintf("%s:%d:%d", path, stat.ModTime().UnixNano(), stat.Size())
	if hash, found := hp.memo.Get(metadataKey); found {
		return hash, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	hash := strconv.FormatUint(uint64(crc32.Checksum(content, hp.crcTable)), 16)
	hp.memo.Set(metadataKey, hash)
	return hash, nil
}

// HashFiles returns one hash covering the names and contents of paths.
// The result does not depend on the order of paths.
func (hp *HashProvider) HashFiles(paths []string) (string, error) {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	hashes := make([]string, len(sorted))
	var g errgroup.Group
	g.SetLimit(hashConcurrency)
	for i, path := range sorted {
		i, path := i, path
		g.Go(func() error {
			h, err := hp.FileHash(path)
			if err != nil {
				return err
			}
			hashes[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	var b strings.Builder
	for i, path := range sorted {
		b.WriteString(path)
		b.WriteByte(0)
		b.WriteString(hashes[i])
		b.WriteByte('\n')
	}
	return fmt.Sprintf("%08x", crc32.Checksum([]byte(b.String()), hp.crcTable)), nil
}

// Stats returns memo statistics.
func (hp *HashProvider) Stats() cache.Stats {
	return hp.memo.Stats()
}

var _ interfaces.HashProvider = (*HashProvider)(nil)
