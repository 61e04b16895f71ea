package build

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/conneroisu/rescomp/internal/loader"
)

const base64Digits = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

// sourceMap is the version 3 source map document.
type sourceMap struct {
	Version  int      `json:"version"`
	File     string   `json:"file"`
	Sources  []string `json:"sources"`
	Names    []string `json:"names"`
	Mappings string   `json:"mappings"`
}

// encodeVLQ appends the base64 VLQ encoding of v to b.
func encodeVLQ(b *strings.Builder, v int) {
	u := v << 1
	if v < 0 {
		u = (-v << 1) | 1
	}
	for {
		digit := u & 0x1f
		u >>= 5
		if u > 0 {
			digit |= 0x20
		}
		b.WriteByte(base64Digits[digit])
		if u == 0 {
			return
		}
	}
}

// mappingWriter accumulates the mappings field. Generated columns are
// relative within a line, every other field is relative to the previous
// mapping.
type mappingWriter struct {
	b          strings.Builder
	genCol     int
	lineHasMap bool
	prevSource int
	prevLine   int
	prevCol    int
}

func (w *mappingWriter) newLine() {
	w.b.WriteByte(';')
	w.genCol = 0
	w.lineHasMap = false
}

func (w *mappingWriter) add(genCol, source, line, col int) {
	if w.lineHasMap {
		w.b.WriteByte(',')
	}
	encodeVLQ(&w.b, genCol-w.genCol)
	encodeVLQ(&w.b, source-w.prevSource)
	encodeVLQ(&w.b, line-w.prevLine)
	encodeVLQ(&w.b, col-w.prevCol)
	w.genCol, w.prevSource, w.prevLine, w.prevCol = genCol, source, line, col
	w.lineHasMap = true
}

// buildSourceMap maps the compiled text described by segments back to its
// sources. Source paths are written relative to contextDir with forward
// slashes.
func buildSourceMap(file, contextDir string, segments []loader.Segment) ([]byte, error) {
	sm := sourceMap{Version: 3, File: file, Sources: []string{}, Names: []string{}}
	index := make(map[string]int)

	var w mappingWriter
	col := 0
	for _, seg := range segments {
		src, ok := index[seg.File]
		if !ok {
			src = len(sm.Sources)
			index[seg.File] = src
			sm.Sources = append(sm.Sources, relativeSource(contextDir, seg.File))
		}

		lines := strings.Split(seg.Text, "\n")
		for i, text := range lines {
			if i > 0 {
				w.newLine()
				col = 0
			}
			if text == "" {
				continue
			}
			srcCol := 0
			if i == 0 {
				srcCol = seg.Column
			}
			w.add(col, src, seg.Line+i, srcCol)
			col += len(text)
		}
	}

	sm.Mappings = w.b.String()
	return json.Marshal(sm)
}

// identitySegments describes text whose lines correspond one to one with
// the lines of file.
func identitySegments(file string, text []byte) []loader.Segment {
	return []loader.Segment{{File: file, Text: string(text)}}
}

func relativeSource(contextDir, file string) string {
	if rel, err := filepath.Rel(contextDir, file); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return filepath.ToSlash(file)
}
