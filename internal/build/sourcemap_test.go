package build

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/rescomp/internal/loader"
)

func TestEncodeVLQ(t *testing.T) {
	tests := map[int]string{
		0:    "A",
		1:    "C",
		-1:   "D",
		15:   "e",
		16:   "gB",
		-16:  "hB",
		1000: "w+B",
	}
	for v, want := range tests {
		var b strings.Builder
		encodeVLQ(&b, v)
		assert.Equal(t, want, b.String(), "value %d", v)
		assert.Equal(t, []int{v}, decodeVLQ(t, want))
	}
}

// decodeVLQ decodes a run of base64 VLQ values.
func decodeVLQ(t *testing.T, s string) []int {
	t.Helper()
	var out []int
	shift, value := 0, 0
	for _, c := range s {
		digit := strings.IndexRune(base64Digits, c)
		require.GreaterOrEqual(t, digit, 0, "invalid base64 digit %q", c)
		value |= (digit & 0x1f) << shift
		if digit&0x20 != 0 {
			shift += 5
			continue
		}
		if value&1 != 0 {
			out = append(out, -(value >> 1))
		} else {
			out = append(out, value>>1)
		}
		shift, value = 0, 0
	}
	return out
}

// decodeMappings expands a mappings field into absolute
// [generated column, source, line, column] segments per generated line.
func decodeMappings(t *testing.T, mappings string) [][][4]int {
	t.Helper()
	var lines [][][4]int
	var source, line, col int
	for _, group := range strings.Split(mappings, ";") {
		segs := [][4]int{}
		genCol := 0
		if group != "" {
			for _, raw := range strings.Split(group, ",") {
				fields := decodeVLQ(t, raw)
				require.Len(t, fields, 4, "segment %q", raw)
				genCol += fields[0]
				source += fields[1]
				line += fields[2]
				col += fields[3]
				segs = append(segs, [4]int{genCol, source, line, col})
			}
		}
		lines = append(lines, segs)
	}
	return lines
}

func TestDecodeMappings(t *testing.T) {
	lines := decodeMappings(t, "AAAA;ACGE;ADDF")
	assert.Equal(t, [][][4]int{
		{{0, 0, 0, 0}},
		{{0, 1, 3, 2}},
		{{0, 0, 2, 0}},
	}, lines)
	assert.Equal(t, [][][4]int{{}, {{4, 0, 0, 0}, {6, 0, 1, 0}}}, decodeMappings(t, ";IAAA,EACA"))
}

func TestBuildSourceMap(t *testing.T) {
	segments := []loader.Segment{
		{File: "/ctx/a.css", Line: 0, Column: 0, Text: "a {}\n"},
		{File: "/ctx/sub/b.css", Line: 3, Column: 2, Text: "b {}"},
		{File: "/ctx/a.css", Line: 1, Column: 0, Text: "\nc {}"},
	}

	data, err := buildSourceMap("a.css", "/ctx", segments)
	require.NoError(t, err)

	var sm sourceMap
	require.NoError(t, json.Unmarshal(data, &sm))
	assert.Equal(t, 3, sm.Version)
	assert.Equal(t, "a.css", sm.File)
	assert.Equal(t, []string{"a.css", "sub/b.css"}, sm.Sources)
	// a.css 0:0; b.css 3:2; a.css 2:0
	assert.Equal(t, "AAAA;ACGE;ADDF", sm.Mappings)
}

func TestBuildSourceMap_OutsideContextKeepsAbsolutePath(t *testing.T) {
	data, err := buildSourceMap("x.css", "/ctx", []loader.Segment{{File: "/elsewhere/x.css", Text: "x"}})
	require.NoError(t, err)

	var sm sourceMap
	require.NoError(t, json.Unmarshal(data, &sm))
	assert.Equal(t, []string{"/elsewhere/x.css"}, sm.Sources)
}
