package loader

import (
	"context"
	"sort"
	"strings"
)

// CSSLoader inlines relative @import rules, rewrites local url() references
// to emitted assets and checks the stylesheet's block structure.
type CSSLoader struct{}

// NewCSSLoader creates a CSS loader.
func NewCSSLoader() *CSSLoader { return &CSSLoader{} }

// Name implements Loader.
func (l *CSSLoader) Name() string { return "css" }

// Load implements Loader.
func (l *CSSLoader) Load(ctx context.Context, req *Request) (*Result, error) {
	src, err := req.ReadFile(req.Path)
	if err != nil {
		return nil, err
	}

	p := &cssProcessor{
		ctx:      ctx,
		req:      req,
		included: map[string]bool{req.Path: true},
	}
	p.process(req.Path, string(src))

	var content strings.Builder
	for _, seg := range p.segments {
		content.WriteString(seg.Text)
	}

	return &Result{
		Content:  []byte(content.String()),
		Segments: p.segments,
	}, nil
}

type cssProcessor struct {
	ctx      context.Context
	req      *Request
	included map[string]bool
	segments []Segment
}

// lineIndex converts byte offsets into zero-based line and column pairs.
type lineIndex []int

func newLineIndex(s string) lineIndex {
	idx := lineIndex{0}
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			idx = append(idx, i+1)
		}
	}
	return idx
}

func (li lineIndex) position(offset int) (int, int) {
	line := sort.Search(len(li), func(i int) bool { return li[i] > offset }) - 1
	return line, offset - li[line]
}

func (p *cssProcessor) emit(file string, li lineIndex, offset int, text string) {
	if text == "" {
		return
	}
	line, col := li.position(offset)
	p.segments = append(p.segments, Segment{File: file, Line: line, Column: col, Text: text})
}

func (p *cssProcessor) report(file string, li lineIndex, offset int, format string, args ...interface{}) {
	line, col := li.position(offset)
	p.req.Diagnostics.Addf(file, line+1, col+1, format, args...)
}

// process scans one stylesheet, emitting segments for its text and
// recursing into local imports.
func (p *cssProcessor) process(file, s string) {
	li := newLineIndex(s)
	depth := 0
	hasPrelude := false
	copied := 0

	for i := 0; i < len(s); {
		if p.ctx.Err() != nil {
			p.req.Diagnostics.AddError("stylesheet processing cancelled", p.ctx.Err())
			return
		}

		c := s[i]
		switch {
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				p.report(file, li, i, "unterminated comment")
				i = len(s)
				continue
			}
			i += end + 4

		case c == '"' || c == '\'':
			end, ok := scanString(s, i)
			if !ok {
				p.report(file, li, i, "unterminated string")
			}
			hasPrelude = true
			i = end

		case c == '{':
			if !hasPrelude {
				p.report(file, li, i, "rule is missing a selector")
			}
			depth++
			hasPrelude = false
			i++

		case c == '}':
			if depth == 0 {
				p.report(file, li, i, "unexpected '}'")
			} else {
				depth--
			}
			hasPrelude = false
			i++

		case c == ';':
			hasPrelude = false
			i++

		case c == '@' && depth == 0 && hasPrefixFold(s[i:], "@import") && !isIdentByte(at(s, i+7)):
			p.emit(file, li, copied, s[copied:i])
			i = p.importRule(file, s, li, i)
			copied = i
			hasPrelude = false

		case (c == 'u' || c == 'U') && hasPrefixFold(s[i:], "url(") && (i == 0 || !isIdentByte(s[i-1])):
			end, ref, quote, ok := scanURL(s, i)
			if !ok {
				p.report(file, li, i, "unterminated url()")
				i = len(s)
				continue
			}
			if replacement, changed := p.rewriteURL(file, li, i, ref); changed {
				p.emit(file, li, copied, s[copied:i])
				p.emit(file, li, i, "url("+quote+replacement+quote+")")
				copied = end
			}
			hasPrelude = true
			i = end

		default:
			if !isSpace(c) {
				hasPrelude = true
			}
			i++
		}
	}

	p.emit(file, li, copied, s[copied:])
	if depth > 0 {
		p.report(file, li, len(s), "unclosed block: %d '{' without matching '}'", depth)
	}
}

// importRule handles an @import starting at offset i and returns the offset
// just past the rule.
func (p *cssProcessor) importRule(file, s string, li lineIndex, i int) int {
	j := skipSpace(s, i+len("@import"))

	var ref string
	switch {
	case hasPrefixFold(s[j:], "url("):
		end, r, _, ok := scanURL(s, j)
		if !ok {
			p.report(file, li, i, "unterminated url() in @import")
			return len(s)
		}
		ref, j = r, end
	case at(s, j) == '"' || at(s, j) == '\'':
		end, ok := scanString(s, j)
		if !ok {
			p.report(file, li, j, "unterminated string")
			return len(s)
		}
		ref, j = s[j+1:end-1], end
	default:
		p.report(file, li, i, "malformed @import")
		return skipPast(s, i, ';')
	}

	semi := strings.IndexByte(s[j:], ';')
	end := len(s)
	media := strings.TrimSpace(s[j:])
	if semi >= 0 {
		media = strings.TrimSpace(s[j : j+semi])
		end = j + semi + 1
	} else {
		p.report(file, li, i, "@import is missing a terminating ';'")
	}

	if !IsLocalReference(ref) {
		p.emit(file, li, i, s[i:end])
		return end
	}

	target, _ := splitReference(ref)
	path := resolveFrom(file, target)
	if p.included[path] {
		return end
	}

	data, err := p.req.ReadFile(path)
	if err != nil {
		line, col := li.position(i)
		p.req.Diagnostics.Add(diagnostic(file, line+1, col+1, "cannot resolve import '"+ref+"'", err))
		return end
	}
	p.included[path] = true

	if media != "" {
		p.emit(file, li, i, "@media "+media+" {\n")
	}
	p.process(path, string(data))
	if media != "" {
		p.emit(file, li, i, "\n}")
	}
	return end
}

// rewriteURL emits the asset a local url() points at and returns the name
// to substitute.
func (p *cssProcessor) rewriteURL(file string, li lineIndex, offset int, ref string) (string, bool) {
	if !IsLocalReference(ref) {
		return "", false
	}

	target, suffix := splitReference(ref)
	name, err := p.req.EmitAsset(resolveFrom(file, target))
	if err != nil {
		line, col := li.position(offset)
		p.req.Diagnostics.Add(diagnostic(file, line+1, col+1, "cannot resolve url '"+ref+"'", err))
		return "", false
	}
	return name + suffix, true
}

// scanString returns the offset just past the string starting at i and
// whether it was terminated before a newline or end of input.
func scanString(s string, i int) (int, bool) {
	quote := s[i]
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\\':
			j++
		case quote:
			return j + 1, true
		case '\n':
			return j, false
		}
	}
	return len(s), false
}

// scanURL parses url(...) at i. It returns the offset past ')', the
// unquoted reference, the quote character used (if any) and success.
func scanURL(s string, i int) (int, string, string, bool) {
	j := skipSpace(s, i+len("url("))
	quote := ""
	var ref string

	if c := at(s, j); c == '"' || c == '\'' {
		end, ok := scanString(s, j)
		if !ok {
			return len(s), "", "", false
		}
		quote = string(c)
		ref = s[j+1 : end-1]
		j = skipSpace(s, end)
		if at(s, j) != ')' {
			return len(s), "", "", false
		}
		return j + 1, ref, quote, true
	}

	closing := strings.IndexByte(s[j:], ')')
	if closing < 0 {
		return len(s), "", "", false
	}
	ref = strings.TrimSpace(s[j : j+closing])
	return j + closing + 1, ref, quote, true
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func at(s string, i int) byte {
	if i < 0 || i >= len(s) {
		return 0
	}
	return s[i]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

func isIdentByte(c byte) bool {
	return c == '-' || c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func skipSpace(s string, i int) int {
	for i < len(s) && isSpace(s[i]) {
		i++
	}
	return i
}

func skipPast(s string, i int, c byte) int {
	if j := strings.IndexByte(s[i:], c); j >= 0 {
		return i + j + 1
	}
	return len(s)
}
