package template

import (
	mathrand "math/rand/v2"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/ohler55/ojg/jp"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var functions = map[string]bool{
	"upper": true, "lower": true, "title": true, "default": true,
	"jsonPath": true, "xPath": true, "sequence": true, "now": true,
	"random.int": true, "random.string": true,
}

func isFunction(name string) bool { return functions[name] }

func (e *Engine) call(name string, args []string, ctx *Context) (string, bool) {
	switch name {
	case "upper", "lower", "title":
		if len(args) != 1 {
			return "", false
		}
		v, ok := e.resolve(args[0], ctx)
		if !ok {
			return "", false
		}
		switch name {
		case "upper":
			return strings.ToUpper(v), true
		case "lower":
			return strings.ToLower(v), true
		default:
			// A Caser keeps state between calls, so each call gets its own.
			return cases.Title(language.Und).String(v), true
		}

	case "default":
		if len(args) < 2 {
			return "", false
		}
		if v, ok := e.resolve(args[0], ctx); ok && v != "" {
			return v, true
		}
		return e.resolve(strings.Join(args[1:], " "), ctx)

	case "now":
		if len(args) != 1 {
			return "", false
		}
		layout, ok := unquote(strings.TrimSpace(args[0]))
		if !ok {
			return "", false
		}
		return e.now().Format(layout), true

	case "jsonPath":
		if len(args) != 1 {
			return "", false
		}
		return jsonPathValue(args[0], ctx)

	case "xPath":
		if len(args) != 1 {
			return "", false
		}
		return xPathValue(args[0], ctx)

	case "sequence":
		if len(args) < 1 || len(args) > 2 || e.sequences == nil {
			return "", false
		}
		seq, ok := unquote(strings.TrimSpace(args[0]))
		if !ok {
			return "", false
		}
		start := int64(1)
		if len(args) == 2 {
			n, err := strconv.ParseInt(strings.TrimSpace(args[1]), 10, 64)
			if err != nil {
				return "", false
			}
			start = n
		}
		return strconv.FormatInt(e.sequences.Next(seq, start), 10), true

	case "random.int":
		if len(args) != 2 {
			return "", false
		}
		lo, err1 := strconv.Atoi(strings.TrimSpace(args[0]))
		hi, err2 := strconv.Atoi(strings.TrimSpace(args[1]))
		if err1 != nil || err2 != nil {
			return "", false
		}
		return randomInt(ctx, lo, hi), true

	case "random.string":
		if len(args) != 1 {
			return "", false
		}
		n, err := strconv.Atoi(strings.TrimSpace(args[0]))
		if err != nil || n <= 0 {
			return "", false
		}
		return randomString(ctx, n), true
	}
	return "", false
}

func jsonPathValue(arg string, ctx *Context) (string, bool) {
	if ctx == nil || ctx.Request == nil {
		return "", false
	}
	src, ok := unquote(strings.TrimSpace(arg))
	if !ok {
		return "", false
	}
	x, err := jp.ParseString(src)
	if err != nil {
		return "", false
	}
	data, ok := ctx.Request.JSON()
	if !ok {
		return "", false
	}
	results := x.Get(data)
	if len(results) == 0 {
		return "", false
	}
	return formatValue(results[0]), true
}

func xPathValue(arg string, ctx *Context) (string, bool) {
	if ctx == nil || ctx.Request == nil {
		return "", false
	}
	src, ok := unquote(strings.TrimSpace(arg))
	if !ok {
		return "", false
	}
	path, err := etree.CompilePath(src)
	if err != nil {
		return "", false
	}
	doc, ok := ctx.Request.XML()
	if !ok {
		return "", false
	}
	el := doc.FindElementPath(path)
	if el == nil {
		return "", false
	}
	return strings.TrimSpace(el.Text()), true
}

func rng(ctx *Context) *mathrand.Rand {
	if ctx == nil {
		return nil
	}
	return ctx.Rand
}

func intN(r *mathrand.Rand, n int) int {
	if n <= 0 {
		return 0
	}
	if r != nil {
		return r.IntN(n)
	}
	return mathrand.IntN(n)
}

// randomInt returns an integer in [lo, hi].
func randomInt(ctx *Context, lo, hi int) string {
	if hi < lo {
		lo, hi = hi, lo
	}
	return strconv.Itoa(lo + intN(rng(ctx), hi-lo+1))
}

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomString(ctx *Context, n int) string {
	r := rng(ctx)
	b := make([]byte, n)
	for i := range b {
		b[i] = alphanumeric[intN(r, len(alphanumeric))]
	}
	return string(b)
}
