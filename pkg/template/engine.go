package template

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Engine renders templates. It is safe for concurrent use; sequence state
// lives in its SequenceStore.
type Engine struct {
	sequences *SequenceStore
	now       func() time.Time
}

// New creates an engine with its own sequence store.
func New() *Engine {
	return NewWithSequences(NewSequenceStore())
}

// NewWithSequences creates an engine backed by store.
func NewWithSequences(store *SequenceStore) *Engine {
	return &Engine{sequences: store, now: time.Now}
}

// Sequences returns the engine's sequence store.
func (e *Engine) Sequences() *SequenceStore { return e.sequences }

var (
	placeholder = regexp.MustCompile(`\{\{\s*(.+?)\s*\}\}`)
	funcCall    = regexp.MustCompile(`^([A-Za-z_][\w.]*)\((.*)\)$`)
)

// Process renders every placeholder in tmpl. Unresolved placeholders become
// empty strings and are reported through a *ResolutionWarning; the returned
// string is complete either way.
func (e *Engine) Process(tmpl string, ctx *Context) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}
	var unresolved []string
	out := e.render(tmpl, ctx, &unresolved)
	if len(unresolved) > 0 {
		return out, &ResolutionWarning{Placeholders: unresolved}
	}
	return out, nil
}

// ProcessValue renders every string leaf of a decoded JSON value. Object
// keys are left alone. The input is not modified.
func (e *Engine) ProcessValue(v any, ctx *Context) (any, error) {
	var unresolved []string
	out := e.renderValue(v, ctx, &unresolved)
	if len(unresolved) > 0 {
		return out, &ResolutionWarning{Placeholders: unresolved}
	}
	return out, nil
}

func (e *Engine) renderValue(v any, ctx *Context, unresolved *[]string) any {
	switch t := v.(type) {
	case string:
		return e.render(t, ctx, unresolved)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = e.renderValue(val, ctx, unresolved)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = e.renderValue(val, ctx, unresolved)
		}
		return out
	default:
		return v
	}
}

func (e *Engine) render(tmpl string, ctx *Context, unresolved *[]string) string {
	return placeholder.ReplaceAllStringFunc(tmpl, func(match string) string {
		expr := strings.TrimSpace(placeholder.FindStringSubmatch(match)[1])
		v, ok := e.evaluate(expr, ctx)
		if !ok {
			*unresolved = append(*unresolved, expr)
			return ""
		}
		return v
	})
}

// evaluate resolves one placeholder expression.
func (e *Engine) evaluate(expr string, ctx *Context) (string, bool) {
	switch expr {
	case "now":
		return e.now().Format(time.RFC3339), true
	case "timestamp", "timestamp.unix":
		return strconv.FormatInt(e.now().Unix(), 10), true
	case "timestamp.unix_ms":
		return strconv.FormatInt(e.now().UnixMilli(), 10), true
	case "timestamp.iso":
		return e.now().UTC().Format(time.RFC3339Nano), true
	case "uuid":
		return uuid.NewString(), true
	case "random.int":
		return randomInt(ctx, 0, 100), true
	case "random.string":
		return randomString(ctx, 10), true
	}

	if m := funcCall.FindStringSubmatch(expr); m != nil {
		return e.call(m[1], splitArgs(m[2]), ctx)
	}

	if fields := strings.Fields(expr); len(fields) > 1 && isFunction(fields[0]) {
		return e.call(fields[0], fields[1:], ctx)
	}

	return ctx.Lookup(expr)
}

// resolve evaluates a function argument: quoted strings are literals,
// anything else is an expression.
func (e *Engine) resolve(arg string, ctx *Context) (string, bool) {
	arg = strings.TrimSpace(arg)
	if s, ok := unquote(arg); ok {
		return s, true
	}
	return e.evaluate(arg, ctx)
}

func unquote(s string) (string, bool) {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1], true
	}
	return "", false
}

// splitArgs splits on commas outside quotes and parentheses.
func splitArgs(s string) []string {
	var (
		args  []string
		cur   strings.Builder
		quote byte
		depth int
	)
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '"' || ch == '\'':
			quote = ch
		case ch == '(':
			depth++
		case ch == ')':
			depth--
		case ch == ',' && depth == 0:
			args = append(args, strings.TrimSpace(cur.String()))
			cur.Reset()
			continue
		}
		cur.WriteByte(ch)
	}
	if rest := strings.TrimSpace(cur.String()); rest != "" || len(args) > 0 {
		args = append(args, rest)
	}
	return args
}
