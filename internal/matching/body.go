package matching

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/ohler55/ojg/jp"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/getmockd/stubd/pkg/request"
)

// bodyScorer scores the request body as a structured document.
type bodyScorer interface {
	scoreBody(req *request.Request) float64
}

// normalizeJSON converts decoded YAML or Go values to the shapes
// encoding/json produces, so numbers compare as float64.
func normalizeJSON(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// expectedDocuments returns the structured patterns of a json-* matcher:
// Value first, then every textual pattern parsed as JSON.
func expectedDocuments(value any, patterns []string) ([]any, error) {
	var docs []any
	if value != nil {
		v, err := normalizeJSON(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value: %w", err)
		}
		docs = append(docs, v)
	}
	for _, p := range patterns {
		var v any
		if err := json.Unmarshal([]byte(p), &v); err != nil {
			return nil, fmt.Errorf("pattern is not valid JSON: %w", err)
		}
		docs = append(docs, v)
	}
	return docs, nil
}

type jsonExactScorer struct {
	want       any
	ignoreCase bool
}

func (s jsonExactScorer) scoreBody(req *request.Request) float64 {
	got, ok := req.JSON()
	if !ok {
		return ScoreNone
	}
	if jsonEqual(s.want, got, s.ignoreCase) {
		return ScoreExact
	}
	return ScoreNone
}

type jsonPartialScorer struct {
	want       any
	ignoreCase bool
}

func (s jsonPartialScorer) scoreBody(req *request.Request) float64 {
	got, ok := req.JSON()
	if !ok {
		return ScoreNone
	}
	if jsonContains(s.want, got, s.ignoreCase) {
		return ScoreStructural
	}
	return ScoreNone
}

func jsonEqual(want, got any, ignoreCase bool) bool {
	if !ignoreCase {
		return reflect.DeepEqual(want, got)
	}
	switch w := want.(type) {
	case map[string]any:
		g, ok := got.(map[string]any)
		if !ok || len(g) != len(w) {
			return false
		}
		for k, wv := range w {
			gv, ok := g[k]
			if !ok || !jsonEqual(wv, gv, true) {
				return false
			}
		}
		return true
	case []any:
		g, ok := got.([]any)
		if !ok || len(g) != len(w) {
			return false
		}
		for i := range w {
			if !jsonEqual(w[i], g[i], true) {
				return false
			}
		}
		return true
	case string:
		g, ok := got.(string)
		return ok && fold(g) == fold(w)
	default:
		return reflect.DeepEqual(want, got)
	}
}

// jsonContains reports whether every member of want is present in got.
// Objects match by key subset, arrays by each wanted element appearing in
// some element of got, scalars by equality.
func jsonContains(want, got any, ignoreCase bool) bool {
	switch w := want.(type) {
	case map[string]any:
		g, ok := got.(map[string]any)
		if !ok {
			return false
		}
		for k, wv := range w {
			gv, ok := g[k]
			if !ok || !jsonContains(wv, gv, ignoreCase) {
				return false
			}
		}
		return true
	case []any:
		g, ok := got.([]any)
		if !ok {
			return false
		}
		for _, wv := range w {
			found := false
			for _, gv := range g {
				if jsonContains(wv, gv, ignoreCase) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	default:
		return jsonEqual(want, got, ignoreCase)
	}
}

type jsonPathScorer struct {
	path jp.Expr
	want any
	has  bool
}

func newJSONPathScorer(pattern string, value any) (*jsonPathScorer, error) {
	x, err := jp.ParseString(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid JSONPath %q: %w", pattern, err)
	}
	s := &jsonPathScorer{path: x}
	if value != nil {
		want, err := normalizeJSON(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value: %w", err)
		}
		s.want, s.has = want, true
	}
	return s, nil
}

func (s *jsonPathScorer) scoreBody(req *request.Request) float64 {
	data, ok := req.JSON()
	if !ok {
		return ScoreNone
	}
	results := s.path.Get(data)
	if len(results) == 0 {
		return ScoreNone
	}
	if !s.has {
		return ScoreStructural
	}
	for _, r := range results {
		if jsonEqual(s.want, r, false) {
			return ScoreStructural
		}
	}
	return ScoreNone
}

type jsonSchemaScorer struct {
	schema *jsonschema.Schema
}

func newJSONSchemaScorer(doc any) (*jsonSchemaScorer, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(string(raw))); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return &jsonSchemaScorer{schema: schema}, nil
}

func (s *jsonSchemaScorer) scoreBody(req *request.Request) float64 {
	data, ok := req.JSON()
	if !ok {
		return ScoreNone
	}
	if err := s.schema.Validate(data); err != nil {
		return ScoreNone
	}
	return ScoreStructural
}

// expressionScorer evaluates a boolean expr program over the variables
// method, path, url, query, headers, cookies, body and rawBody. Header
// names are lower-cased; body is the decoded JSON document or nil.
type expressionScorer struct {
	program *vm.Program
}

func newExpressionScorer(source string) (*expressionScorer, error) {
	program, err := expr.Compile(source, expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", source, err)
	}
	return &expressionScorer{program: program}, nil
}

func (s *expressionScorer) scoreBody(req *request.Request) float64 {
	out, err := expr.Run(s.program, exprEnv(req))
	if err != nil {
		return ScoreNone
	}
	if ok, _ := out.(bool); ok {
		return ScoreStructural
	}
	return ScoreNone
}

func exprEnv(req *request.Request) map[string]any {
	query := make(map[string]any, len(req.Query))
	for k, v := range req.Query {
		if len(v) > 0 {
			query[k] = v[0]
		}
	}
	headers := make(map[string]any, len(req.Header))
	for k, v := range req.Header {
		if len(v) > 0 {
			headers[strings.ToLower(k)] = v[0]
		}
	}
	cookies := make(map[string]any, len(req.Cookies))
	for k, v := range req.Cookies {
		cookies[k] = v
	}
	var body any
	if v, ok := req.JSON(); ok {
		body = v
	}
	return map[string]any{
		"method":  req.Method,
		"path":    req.Path,
		"url":     req.URL,
		"query":   query,
		"headers": headers,
		"cookies": cookies,
		"body":    body,
		"rawBody": string(req.Body),
	}
}
