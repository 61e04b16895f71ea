package loader

import (
	"bytes"
	"context"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// referenceAttrs lists, per element, the attributes that may point at a
// local file.
var referenceAttrs = map[string][]string{
	"img":    {"src"},
	"source": {"src"},
	"link":   {"href"},
	"video":  {"src", "poster"},
	"audio":  {"src"},
}

// HTMLLoader streams a template through the x/net/html tokenizer and
// rewrites local asset references. Untouched tokens are copied verbatim.
type HTMLLoader struct{}

// NewHTMLLoader creates an HTML loader.
func NewHTMLLoader() *HTMLLoader { return &HTMLLoader{} }

// Name implements Loader.
func (l *HTMLLoader) Name() string { return "html" }

// Load implements Loader.
func (l *HTMLLoader) Load(ctx context.Context, req *Request) (*Result, error) {
	src, err := req.ReadFile(req.Path)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	out.Grow(len(src))
	z := html.NewTokenizer(bytes.NewReader(src))
	line := 1

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err() != io.EOF {
				req.Diagnostics.Add(diagnostic(req.Path, line, 1, "failed to tokenize template", z.Err()))
			}
			break
		}

		raw := string(z.Raw())
		text := raw
		if tt == html.StartTagToken || tt == html.SelfClosingTagToken {
			text = l.rewriteTag(req, z.Token(), raw, line)
		}

		out.WriteString(text)
		line += strings.Count(raw, "\n")
	}

	return &Result{Content: out.Bytes()}, nil
}

// rewriteTag substitutes emitted asset names for local references in a tag,
// editing the raw text in place so formatting is preserved.
func (l *HTMLLoader) rewriteTag(req *Request, tok html.Token, raw string, line int) string {
	attrs, ok := referenceAttrs[tok.Data]
	if !ok {
		return raw
	}

	rerender := false
	for i, attr := range tok.Attr {
		if attr.Namespace != "" || !containsString(attrs, attr.Key) || !IsLocalReference(attr.Val) {
			continue
		}

		target, suffix := splitReference(strings.TrimSpace(attr.Val))
		name, err := req.EmitAsset(resolveFrom(req.Path, target))
		if err != nil {
			req.Diagnostics.Add(diagnostic(req.Path, line, 1,
				"cannot resolve "+tok.Data+" "+attr.Key+" '"+attr.Val+"'", err))
			continue
		}

		replacement := name + suffix
		tok.Attr[i].Val = replacement
		if edited, ok := replaceAttrValue(raw, attr.Key, attr.Val, replacement); ok {
			raw = edited
		} else {
			rerender = true
		}
	}

	if rerender {
		// the raw value used character references
		return tok.String()
	}
	return raw
}

// replaceAttrValue rewrites the value of key in a raw tag when the raw text
// holds the value literally.
func replaceAttrValue(raw, key, oldVal, newVal string) (string, bool) {
	lower := strings.ToLower(raw)
	for from := 0; from < len(lower); {
		k := strings.Index(lower[from:], key)
		if k < 0 {
			return raw, false
		}
		k += from
		from = k + len(key)

		if k == 0 || !isSpace(lower[k-1]) {
			continue
		}
		j := skipSpace(raw, k+len(key))
		if at(raw, j) != '=' {
			continue
		}
		j = skipSpace(raw, j+1)

		quote := at(raw, j)
		if quote == '"' || quote == '\'' {
			j++
		} else {
			quote = 0
		}
		if !strings.HasPrefix(raw[j:], oldVal) {
			continue
		}
		end := j + len(oldVal)
		if quote != 0 && at(raw, end) != quote {
			continue
		}
		return raw[:j] + newVal + raw[end:], true
	}
	return raw, false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
