package stubdtest

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/stubd/pkg/mapping"
	"github.com/getmockd/stubd/pkg/scenario"
)

// failRecorder captures Errorf calls instead of failing the real test.
type failRecorder struct {
	testing.TB
	failed bool
}

func (f *failRecorder) Helper() {}

func (f *failRecorder) Errorf(string, ...any) { f.failed = true }

func get(t *testing.T, srv *Server, path string) (int, string) {
	t.Helper()
	resp, err := srv.Client().Get(srv.URL() + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_Reply(t *testing.T) {
	srv := New(t)
	id := srv.Given("GET", "/hello").
		WithStatus(201).
		WithHeader("X-Stub", "yes").
		WithBody("hi").
		Reply()
	assert.NotEmpty(t, id)

	resp, err := srv.Client().Get(srv.URL() + "/hello")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, 201, resp.StatusCode)
	assert.Equal(t, "yes", resp.Header.Get("X-Stub"))
	assert.Equal(t, "hi", string(body))
}

func TestServer_PathParamsTemplate(t *testing.T) {
	srv := New(t)
	srv.Given("GET", "/users/{id}").
		WithJSON(map[string]string{"id": "{{request.pathParams.id}}"}).
		WithTemplate().
		Reply()

	status, body := get(t, srv, "/users/42")
	assert.Equal(t, 200, status)
	assert.JSONEq(t, `{"id":"42"}`, body)

	status, _ = get(t, srv, "/users/42/orders")
	assert.Equal(t, 404, status)
}

func TestServer_RequestMatchers(t *testing.T) {
	srv := New(t)
	srv.Given("POST", "/orders").
		WithQueryParam("dry", "true").
		WithRequestHeader("X-Tenant", "acme").
		WithBodyContains("widget").
		WithBody("matched").
		Reply()

	req, err := http.NewRequest(http.MethodPost, srv.URL()+"/orders?dry=true", strings.NewReader(`{"item":"widget"}`))
	require.NoError(t, err)
	req.Header.Set("X-Tenant", "acme")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)

	resp, err = srv.Client().Post(srv.URL()+"/orders?dry=true", "application/json", strings.NewReader(`{"item":"widget"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 404, resp.StatusCode)

	assert.Len(t, srv.Unmatched(), 1)
}

func TestServer_JSONBodyPartial(t *testing.T) {
	srv := New(t)
	srv.Given("POST", "/search").
		WithJSONBodyPartial(map[string]any{"kind": "book"}).
		WithBody("books").
		Reply()

	resp, err := srv.Client().Post(srv.URL()+"/search", "application/json", strings.NewReader(`{"kind":"book","q":"go"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
}

func TestServer_Scenario(t *testing.T) {
	srv := New(t)
	srv.Given("GET", "/todo").InScenario("todo", scenario.Started, "Done").WithBody("first").Reply()
	srv.Given("GET", "/todo").InScenario("todo", "Done", "").WithBody("second").Reply()

	_, body := get(t, srv, "/todo")
	assert.Equal(t, "first", body)
	_, body = get(t, srv, "/todo")
	assert.Equal(t, "second", body)
}

func TestServer_Delay(t *testing.T) {
	srv := New(t)
	srv.Given("GET", "/slow").WithDelay(50 * time.Millisecond).Reply()

	start := time.Now()
	status, _ := get(t, srv, "/slow")
	assert.Equal(t, 200, status)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestServer_Assertions(t *testing.T) {
	srv := New(t)
	srv.Given("GET", "/items/{id}").WithBody("item").Reply()

	get(t, srv, "/items/1")
	get(t, srv, "/items/2")

	srv.AssertCalled(t, "GET", "/items/{id}")
	srv.AssertCalledTimes(t, "GET", "/items/{id}", 2)
	srv.AssertCalledTimes(t, "GET", "/items/1", 1)
	srv.AssertNotCalled(t, "POST", "/items/{id}")
	srv.AssertNotCalled(t, "GET", "/other")

	entries := srv.Requests()
	require.Len(t, entries, 2)
	assert.Equal(t, "/items/2", entries[0].Path)
	assert.True(t, entries[0].Matched())
}

func TestServer_AssertionFailures(t *testing.T) {
	srv := New(t)
	get(t, srv, "/x")

	rec := &failRecorder{TB: t}
	srv.AssertCalled(rec, "GET", "/y")
	assert.True(t, rec.failed)

	rec = &failRecorder{TB: t}
	srv.AssertNotCalled(rec, "GET", "/x")
	assert.True(t, rec.failed)

	rec = &failRecorder{TB: t}
	srv.AssertCalledTimes(rec, "GET", "/x", 2)
	assert.True(t, rec.failed)

	rec = &failRecorder{TB: t}
	srv.AssertCalledTimes(rec, "GET", "/x", 1)
	assert.False(t, rec.failed)
}

func TestServer_Reset(t *testing.T) {
	srv := New(t)
	srv.Given("GET", "/a").Reply()
	get(t, srv, "/a")

	srv.Reset()

	assert.Empty(t, srv.Requests())
	status, _ := get(t, srv, "/a")
	assert.Equal(t, 404, status)
}

func TestServer_AdminMounted(t *testing.T) {
	srv := New(t)
	srv.Given("GET", "/a").ID("fixed").Reply()

	status, body := get(t, srv, "/__admin/mappings/fixed")
	assert.Equal(t, 200, status)
	assert.Contains(t, body, `"id":"fixed"`)
}

func TestPathMatcher(t *testing.T) {
	tests := []struct {
		path string
		want mapping.Matcher
	}{
		{"/a/b", mapping.Matcher{Kind: mapping.KindPath, Type: mapping.TypeExact, Pattern: "/a/b"}},
		{"/a/*", mapping.Matcher{Kind: mapping.KindPath, Type: mapping.TypeWildcard, Pattern: "/a/*"}},
		{"/v1/{id}", mapping.Matcher{Kind: mapping.KindPath, Type: mapping.TypeWildcard, Pattern: "/v1/{id}"}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, pathMatcher(tt.path))
		})
	}
}

func TestMatchesPath(t *testing.T) {
	assert.True(t, matchesPath("/a/1", "/a/{id}"))
	assert.True(t, matchesPath("/a", "/a"))
	assert.False(t, matchesPath("/a/1/b", "/a/{id}"))
	assert.False(t, matchesPath("/b/1", "/a/{id}"))
}

func TestBuilder_WithJSONError(t *testing.T) {
	srv := New(t)
	b := srv.Given("GET", "/x").WithJSON(func() {})
	assert.Error(t, b.Err())
}
