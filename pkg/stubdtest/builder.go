package stubdtest

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/getmockd/stubd/pkg/mapping"
)

// Builder assembles a mapping fluently. Nothing is registered until Reply.
type Builder struct {
	server *Server
	m      *mapping.Mapping
	err    error
}

// Given starts a mapping for method and path. Paths containing *, ? or
// {name} segments are wildcards; a {name} segment is exposed to templates
// as pathParams.name. An empty method matches any.
func (s *Server) Given(method, path string) *Builder {
	matchers := []mapping.Matcher{pathMatcher(path)}
	if method != "" {
		matchers = append(matchers, mapping.Matcher{Kind: mapping.KindMethod, Type: mapping.TypeExact, Pattern: method})
	}
	return &Builder{
		server: s,
		m: &mapping.Mapping{
			Request:  &mapping.Request{Matchers: matchers},
			Response: &mapping.Response{},
		},
	}
}

func pathMatcher(path string) mapping.Matcher {
	if strings.ContainsAny(path, "*?{") {
		return mapping.Matcher{Kind: mapping.KindPath, Type: mapping.TypeWildcard, Pattern: path}
	}
	return mapping.Matcher{Kind: mapping.KindPath, Type: mapping.TypeExact, Pattern: path}
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *Builder) match(m mapping.Matcher) *Builder {
	b.m.Request.Matchers = append(b.m.Request.Matchers, m)
	return b
}

// ID names the mapping.
func (b *Builder) ID(id string) *Builder {
	b.m.ID = id
	return b
}

// WithPriority sets the priority; lower wins ties.
func (b *Builder) WithPriority(p int) *Builder {
	b.m.Priority = p
	return b
}

// WithQueryParam requires query parameter name to equal value.
func (b *Builder) WithQueryParam(name, value string) *Builder {
	return b.match(mapping.Matcher{Kind: mapping.KindQuery, Type: mapping.TypeExact, Name: name, Pattern: value})
}

// WithRequestHeader requires header name to equal value.
func (b *Builder) WithRequestHeader(name, value string) *Builder {
	return b.match(mapping.Matcher{Kind: mapping.KindHeader, Type: mapping.TypeExact, Name: name, Pattern: value})
}

// WithBodyContains requires the body to contain s.
func (b *Builder) WithBodyContains(s string) *Builder {
	return b.match(mapping.Matcher{Kind: mapping.KindBody, Type: mapping.TypeContains, Pattern: s})
}

// WithJSONBodyPartial requires the JSON body to contain v.
func (b *Builder) WithJSONBodyPartial(v any) *Builder {
	return b.match(mapping.Matcher{Kind: mapping.KindBody, Type: mapping.TypeJSONPartial, Value: v})
}

// InScenario binds the mapping to a scenario. required and next may be empty.
func (b *Builder) InScenario(name, required, next string) *Builder {
	b.m.ScenarioName = name
	b.m.RequiredState = required
	b.m.NewState = next
	return b
}

// WithStatus sets the response status.
func (b *Builder) WithStatus(status int) *Builder {
	b.m.Response.Status = status
	return b
}

// WithHeader adds a response header line.
func (b *Builder) WithHeader(name, value string) *Builder {
	b.m.Response.Headers = append(b.m.Response.Headers, mapping.Header{Name: name, Value: value})
	return b
}

// WithBody sets a literal body.
func (b *Builder) WithBody(body string) *Builder {
	b.m.Response.Body = body
	b.m.Response.JSONBody = nil
	return b
}

// WithJSON sets a JSON body. v is normalized through encoding/json.
func (b *Builder) WithJSON(v any) *Builder {
	data, err := json.Marshal(v)
	if err != nil {
		b.fail(fmt.Errorf("WithJSON: %w", err))
		return b
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		b.fail(fmt.Errorf("WithJSON: %w", err))
		return b
	}
	b.m.Response.Body = ""
	b.m.Response.JSONBody = doc
	return b
}

// WithTemplate renders the body through the template engine.
func (b *Builder) WithTemplate() *Builder {
	b.m.Response.Template = true
	return b
}

// WithDelay delays the response.
func (b *Builder) WithDelay(d time.Duration) *Builder {
	b.m.Response.DelayMs = int(d / time.Millisecond)
	return b
}

// Mapping returns the mapping built so far.
func (b *Builder) Mapping() *mapping.Mapping {
	return b.m
}

// Err returns the first builder error.
func (b *Builder) Err() error {
	return b.err
}

// Reply registers the mapping and returns its id. Invalid mappings fail
// the test.
func (b *Builder) Reply() string {
	t := b.server.t
	t.Helper()
	if b.err != nil {
		t.Fatalf("stubdtest: %v", b.err)
		return ""
	}
	id, _, err := b.server.store.Upsert(b.m)
	if err != nil {
		t.Fatalf("stubdtest: registering mapping: %v", err)
		return ""
	}
	return id
}
