package artifact

import (
	"fmt"
	"hash/crc32"
	"path"
	"strings"
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// ContentHash returns the 8 hex digit CRC32-Castagnoli checksum of data.
func ContentHash(data []byte) string {
	return fmt.Sprintf("%08x", crc32.Checksum(data, crcTable))
}

// HashedName derives a content-addressed asset name such as
// "assets/logo.1a2b3c4d.png" from a source file name.
func HashedName(dir, file string, data []byte) string {
	base := path.Base(strings.ReplaceAll(file, "\\", "/"))
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return path.Join(dir, fmt.Sprintf("%s.%s%s", stem, ContentHash(data), ext))
}
