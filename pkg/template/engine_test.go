package template

import (
	mathrand "math/rand/v2"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/stubd/pkg/request"
)

func newCtx(method, url, contentType, body string, headers ...string) *Context {
	h := http.Header{}
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		h.Add(headers[i], headers[i+1])
	}
	return NewContext(request.New(method, url, h, []byte(body)))
}

func TestEngine_PathSegmentTemplate(t *testing.T) {
	e := New()
	out, err := e.Process(`{ "name": "{{path.[1]}}" }`, newCtx("GET", "/templating/Joe", "", ""))
	require.NoError(t, err)
	assert.Equal(t, `{ "name": "Joe" }`, out)

	out, err = e.Process(`{ "name": "{{request.path.[1]}}" }`, newCtx("GET", "/templating/Joe", "", ""))
	require.NoError(t, err)
	assert.Equal(t, `{ "name": "Joe" }`, out)
}

func TestEngine_Process(t *testing.T) {
	jsonBody := `{"user":{"name":"ann lee","tags":["a","b"]},"items":[{"id":7}],"ok":true,"n":2.5}`
	xmlBody := `<order id="42"><status>paid</status><line>one</line><line>two</line></order>`

	tests := []struct {
		name string
		tmpl string
		ctx  *Context
		want string
	}{
		{name: "literal", tmpl: "plain", ctx: newCtx("GET", "/", "", ""), want: "plain"},
		{name: "path", tmpl: "{{path}}", ctx: newCtx("GET", "/a/b", "", ""), want: "/a/b"},
		{name: "path segment out of range", tmpl: "[{{path.[5]}}]", ctx: newCtx("GET", "/a", "", ""), want: "[]"},
		{name: "url and method", tmpl: "{{method}} {{request.url}}", ctx: newCtx("POST", "/a?x=1", "", ""), want: "POST /a?x=1"},
		{name: "query", tmpl: "{{query.id}}", ctx: newCtx("GET", "/?id=5&id=6", "", ""), want: "5"},
		{name: "query index", tmpl: "{{query.id.[1]}}", ctx: newCtx("GET", "/?id=5&id=6", "", ""), want: "6"},
		{name: "header case-insensitive", tmpl: "{{headers.x-trace}}", ctx: newCtx("GET", "/", "", "", "X-Trace", "t1"), want: "t1"},
		{name: "header alias", tmpl: "{{request.header.X-Trace}}", ctx: newCtx("GET", "/", "", "", "X-Trace", "t1"), want: "t1"},
		{name: "cookie", tmpl: "{{cookies.sid}}", ctx: newCtx("GET", "/", "", "", "Cookie", "sid=abc"), want: "abc"},
		{name: "raw body", tmpl: "{{body}}", ctx: newCtx("POST", "/", "text/plain", "hi"), want: "hi"},
		{name: "json field", tmpl: "{{body.user.name}}", ctx: newCtx("POST", "/", "application/json", jsonBody), want: "ann lee"},
		{name: "json array dotted index", tmpl: "{{body.user.tags.[1]}}", ctx: newCtx("POST", "/", "application/json", jsonBody), want: "b"},
		{name: "json array bracket index", tmpl: "{{body.items[0].id}}", ctx: newCtx("POST", "/", "application/json", jsonBody), want: "7"},
		{name: "json non-scalar", tmpl: "{{body.user.tags}}", ctx: newCtx("POST", "/", "application/json", jsonBody), want: `["a","b"]`},
		{name: "json bool and float", tmpl: "{{body.ok}}/{{body.n}}", ctx: newCtx("POST", "/", "application/json", jsonBody), want: "true/2.5"},
		{name: "xml element", tmpl: "{{body.order.status}}", ctx: newCtx("POST", "/", "application/xml", xmlBody), want: "paid"},
		{name: "xml root omitted", tmpl: "{{body.line.[1]}}", ctx: newCtx("POST", "/", "application/xml", xmlBody), want: "two"},
		{name: "xml attribute", tmpl: "{{body.@id}}", ctx: newCtx("POST", "/", "application/xml", xmlBody), want: "42"},
		{name: "upper", tmpl: "{{upper(body.user.name)}}", ctx: newCtx("POST", "/", "application/json", jsonBody), want: "ANN LEE"},
		{name: "title", tmpl: "{{title(body.user.name)}}", ctx: newCtx("POST", "/", "application/json", jsonBody), want: "Ann Lee"},
		{name: "lower space syntax", tmpl: "{{lower query.q}}", ctx: newCtx("GET", "/?q=ABC", "", ""), want: "abc"},
		{name: "default used", tmpl: `{{default(query.name, "anonymous")}}`, ctx: newCtx("GET", "/", "", ""), want: "anonymous"},
		{name: "default skipped", tmpl: `{{default(query.name, "anonymous")}}`, ctx: newCtx("GET", "/?name=bo", "", ""), want: "bo"},
		{name: "jsonPath", tmpl: `{{jsonPath("$.items[0].id")}}`, ctx: newCtx("POST", "/", "application/json", jsonBody), want: "7"},
		{name: "xPath", tmpl: `{{xPath("/order/status")}}`, ctx: newCtx("POST", "/", "application/xml", xmlBody), want: "paid"},
	}

	e := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _ := e.Process(tt.tmpl, tt.ctx)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestEngine_UnresolvedPlaceholders(t *testing.T) {
	e := New()
	out, err := e.Process(`a={{query.missing}} b={{nonsense}} c={{path}}`, newCtx("GET", "/x", "", ""))

	assert.Equal(t, "a= b= c=/x", out)
	require.Error(t, err)
	assert.True(t, IsResolutionWarning(err))

	var w *ResolutionWarning
	require.ErrorAs(t, err, &w)
	assert.Equal(t, []string{"query.missing", "nonsense"}, w.Placeholders)

	out, err = e.Process("{{path}}", nil)
	assert.Empty(t, out)
	assert.Error(t, err)
}

func TestEngine_ProcessValue(t *testing.T) {
	e := New()
	in := map[string]any{
		"name":  "{{path.[1]}}",
		"list":  []any{"{{method}}", 3.0},
		"{{k}}": true,
	}

	out, err := e.ProcessValue(in, newCtx("PUT", "/templating/Joe", "", ""))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"name":  "Joe",
		"list":  []any{"PUT", 3.0},
		"{{k}}": true,
	}, out)
	assert.Equal(t, "{{path.[1]}}", in["name"])
}

func TestEngine_Helpers(t *testing.T) {
	e := New()
	fixed := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	e.now = func() time.Time { return fixed }
	ctx := newCtx("GET", "/", "", "")

	out, err := e.Process(`{{now}}|{{now("2006-01-02")}}|{{timestamp}}`, ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-06T07:08:09Z|2024-05-06|1714979289", out)

	out, err = e.Process(`{{uuid}}`, ctx)
	require.NoError(t, err)
	assert.Len(t, out, 36)

	out, err = e.Process(`{{sequence("orders")}},{{sequence("orders")}},{{sequence("other", 100)}}`, ctx)
	require.NoError(t, err)
	assert.Equal(t, "1,2,100", out)

	e.Sequences().Reset()
	out, _ = e.Process(`{{sequence("orders")}}`, ctx)
	assert.Equal(t, "1", out)
}

func TestEngine_RandomIsSeedable(t *testing.T) {
	e := New()
	render := func() string {
		ctx := newCtx("GET", "/", "", "")
		ctx.Rand = mathrand.New(mathrand.NewPCG(1, 2))
		out, err := e.Process(`{{random.int(1, 6)}}-{{random.string(8)}}`, ctx)
		require.NoError(t, err)
		return out
	}
	assert.Equal(t, render(), render())
}

func TestSplitPath(t *testing.T) {
	assert.Equal(t, []token{{key: "body"}, {key: "a"}, {index: 0, isIndex: true}, {key: "b"}}, splitPath("body.a.[0].b"))
	assert.Equal(t, []token{{key: "body"}, {key: "a"}, {index: 2, isIndex: true}}, splitPath("body.a[2]"))
	assert.Equal(t, []token{{key: "headers"}, {key: "X-Id"}}, splitPath(`headers["X-Id"]`))
}

func TestEngine_ConcurrentTitle(t *testing.T) {
	e := New()
	names := []string{"joe", "ann lee", "élodie"}
	want := []string{"Joe", "Ann Lee", "Élodie"}

	var wg sync.WaitGroup
	errs := make(chan string, 16*200)
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				n := (g + i) % len(names)
				out, err := e.Process("{{title(query.name)}}", newCtx("GET", "/p?name="+url.QueryEscape(names[n]), "", ""))
				if err != nil || out != want[n] {
					errs <- names[n] + " -> " + out
				}
			}
		}(g)
	}
	wg.Wait()
	close(errs)

	for msg := range errs {
		t.Error(msg)
	}
}
