package template

import (
	"encoding/json"
	mathrand "math/rand/v2"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/getmockd/stubd/pkg/request"
)

// Context is the data a template is rendered against.
type Context struct {
	Request *request.Request

	// Rand seeds random helpers for deterministic output. Nil uses the global source.
	Rand *mathrand.Rand
}

// NewContext creates a context for req.
func NewContext(req *request.Request) *Context {
	return &Context{Request: req}
}

type token struct {
	key     string
	index   int
	isIndex bool
}

// splitPath tokenizes "body.items.[0].id" and "body.items[0].id" alike.
func splitPath(expr string) []token {
	var out []token
	for _, part := range strings.Split(expr, ".") {
		for part != "" {
			open := strings.IndexByte(part, '[')
			if open < 0 {
				out = append(out, token{key: part})
				break
			}
			if open > 0 {
				out = append(out, token{key: part[:open]})
			}
			end := strings.IndexByte(part[open:], ']')
			if end < 0 {
				out = append(out, token{key: part[open:]})
				break
			}
			inner := part[open+1 : open+end]
			if n, err := strconv.Atoi(strings.TrimSpace(inner)); err == nil {
				out = append(out, token{index: n, isIndex: true})
			} else {
				out = append(out, token{key: strings.Trim(inner, `"'`)})
			}
			part = part[open+end+1:]
		}
	}
	return out
}

// Lookup resolves a request reference such as "path.[1]" or
// "request.query.id". The "request." prefix is optional.
func (c *Context) Lookup(expr string) (string, bool) {
	if c == nil || c.Request == nil {
		return "", false
	}
	req := c.Request
	tokens := splitPath(strings.TrimPrefix(expr, "request."))
	if len(tokens) == 0 || tokens[0].isIndex {
		return "", false
	}
	root, rest := tokens[0].key, tokens[1:]

	switch root {
	case "path", "pathSegments":
		if len(rest) == 0 {
			if root == "path" {
				return req.Path, true
			}
			return strings.Join(req.Segments(), "/"), true
		}
		return indexed(req.Segments(), rest)
	case "url":
		return req.URL, len(rest) == 0
	case "method":
		return req.Method, len(rest) == 0
	case "query":
		if len(rest) == 0 || rest[0].isIndex {
			return "", false
		}
		vals, ok := req.QueryValues(rest[0].key)
		if !ok {
			return "", false
		}
		return indexedOrFirst(vals, rest[1:])
	case "headers", "header":
		if len(rest) == 0 || rest[0].isIndex {
			return "", false
		}
		vals, ok := req.HeaderValues(rest[0].key)
		if !ok {
			return "", false
		}
		return indexedOrFirst(vals, rest[1:])
	case "cookies":
		if len(rest) != 1 || rest[0].isIndex {
			return "", false
		}
		return req.Cookie(rest[0].key)
	case "pathParams":
		if len(rest) != 1 || rest[0].isIndex {
			return "", false
		}
		v, ok := req.PathParams[rest[0].key]
		return v, ok
	case "body":
		if len(rest) == 0 {
			return string(req.Body), true
		}
		if data, ok := req.JSON(); ok {
			return walkJSON(data, rest)
		}
		if doc, ok := req.XML(); ok {
			return walkXML(doc, rest)
		}
	}
	return "", false
}

func indexed(values []string, rest []token) (string, bool) {
	if len(rest) != 1 || !rest[0].isIndex {
		return "", false
	}
	i := rest[0].index
	if i < 0 || i >= len(values) {
		return "", false
	}
	return values[i], true
}

func indexedOrFirst(values []string, rest []token) (string, bool) {
	if len(rest) == 0 {
		if len(values) == 0 {
			return "", false
		}
		return values[0], true
	}
	return indexed(values, rest)
}

func walkJSON(data any, path []token) (string, bool) {
	cur := data
	for _, t := range path {
		switch v := cur.(type) {
		case map[string]any:
			if t.isIndex {
				return "", false
			}
			next, ok := v[t.key]
			if !ok {
				return "", false
			}
			cur = next
		case []any:
			if !t.isIndex || t.index < 0 || t.index >= len(v) {
				return "", false
			}
			cur = v[t.index]
		default:
			return "", false
		}
	}
	return formatValue(cur), true
}

// walkXML descends from the root element by child tag. The root tag may be
// named first or omitted; "[n]" picks the nth sibling and "@name" reads an attribute.
func walkXML(doc *etree.Document, path []token) (string, bool) {
	el := doc.Root()
	if el == nil {
		return "", false
	}
	if !path[0].isIndex && path[0].key == el.Tag {
		path = path[1:]
	}

	var siblings []*etree.Element
	for i, t := range path {
		switch {
		case t.isIndex:
			if t.index < 0 || t.index >= len(siblings) {
				return "", false
			}
			el = siblings[t.index]
		case strings.HasPrefix(t.key, "@"):
			if i != len(path)-1 {
				return "", false
			}
			attr := el.SelectAttr(t.key[1:])
			if attr == nil {
				return "", false
			}
			return attr.Value, true
		default:
			siblings = el.SelectElements(t.key)
			if len(siblings) == 0 {
				return "", false
			}
			el = siblings[0]
		}
	}
	return strings.TrimSpace(el.Text()), true
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(data)
	}
}
