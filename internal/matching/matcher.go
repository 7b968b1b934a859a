package matching

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/getmockd/stubd/pkg/mapping"
	"github.com/getmockd/stubd/pkg/request"
)

// Result is the outcome of one matcher against one request.
type Result struct {
	Score    float64
	Captures map[string]string
}

// Matcher is a compiled member of a request composite.
type Matcher struct {
	spec    mapping.Matcher
	scorers []stringScorer
	bodies  []bodyScorer
}

// Compile prepares spec for scoring. Pattern syntax errors are returned here.
func Compile(spec mapping.Matcher) (*Matcher, error) {
	m := &Matcher{spec: spec}
	if spec.Absent {
		return m, nil
	}

	patterns := spec.AllPatterns()
	if spec.Kind == mapping.KindMethod && spec.Type != mapping.TypeRegex {
		for i, p := range patterns {
			patterns[i] = strings.ToUpper(p)
		}
	}

	switch spec.Type {
	case mapping.TypeExact:
		for _, p := range patterns {
			m.scorers = append(m.scorers, newExactScorer(p, spec.IgnoreCase))
		}
	case mapping.TypeContains:
		for _, p := range patterns {
			m.scorers = append(m.scorers, containsScorer{want: p, ignoreCase: spec.IgnoreCase})
		}
	case mapping.TypeRegex:
		for _, p := range patterns {
			s, err := newRegexScorer(p, spec.IgnoreCase)
			if err != nil {
				return nil, err
			}
			m.scorers = append(m.scorers, s)
		}
	case mapping.TypeWildcard:
		for _, p := range patterns {
			s, err := newWildcard(spec.Kind, p, spec.IgnoreCase)
			if err != nil {
				return nil, err
			}
			m.scorers = append(m.scorers, s)
		}
	case mapping.TypeJSONExact, mapping.TypeJSONPartial, mapping.TypeJSONSchema:
		docs, err := expectedDocuments(spec.Value, patterns)
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			switch spec.Type {
			case mapping.TypeJSONExact:
				m.bodies = append(m.bodies, jsonExactScorer{want: doc, ignoreCase: spec.IgnoreCase})
			case mapping.TypeJSONPartial:
				m.bodies = append(m.bodies, jsonPartialScorer{want: doc, ignoreCase: spec.IgnoreCase})
			default:
				s, err := newJSONSchemaScorer(doc)
				if err != nil {
					return nil, err
				}
				m.bodies = append(m.bodies, s)
			}
		}
	case mapping.TypeJSONPath:
		for _, p := range patterns {
			s, err := newJSONPathScorer(p, spec.Value)
			if err != nil {
				return nil, err
			}
			m.bodies = append(m.bodies, s)
		}
	case mapping.TypeXPath:
		for _, p := range patterns {
			s, err := newXPathScorer(p, spec.Value)
			if err != nil {
				return nil, err
			}
			m.bodies = append(m.bodies, s)
		}
	case mapping.TypeExpression:
		for _, p := range patterns {
			s, err := newExpressionScorer(p)
			if err != nil {
				return nil, err
			}
			m.bodies = append(m.bodies, s)
		}
	default:
		return nil, fmt.Errorf("unsupported matcher type %q", spec.Type)
	}

	if len(m.scorers) == 0 && len(m.bodies) == 0 {
		return nil, fmt.Errorf("%s matcher has no pattern", spec.Kind)
	}
	return m, nil
}

func newWildcard(kind mapping.Kind, pattern string, ignoreCase bool) (stringScorer, error) {
	if kind != mapping.KindPath {
		return newWildcardScorer(pattern, ignoreCase)
	}
	if hasNamedSegments(pattern) {
		return newNamedPathScorer(pattern, ignoreCase)
	}
	return newGlobScorer(pattern, ignoreCase)
}

// Spec returns the definition the matcher was compiled from.
func (m *Matcher) Spec() mapping.Matcher { return m.spec }

// Field names the request facet, e.g. "path" or "header:Accept".
func (m *Matcher) Field() string {
	if m.spec.Name != "" {
		return string(m.spec.Kind) + ":" + m.spec.Name
	}
	return string(m.spec.Kind)
}

// Score evaluates the matcher against req.
func (m *Matcher) Score(req *request.Request) Result {
	res := m.score(req)
	if !m.spec.Reject {
		return res
	}
	if res.Score > ScoreNone {
		return Result{Score: ScoreNone}
	}
	return Result{Score: ScoreExact}
}

func (m *Matcher) score(req *request.Request) Result {
	if len(m.bodies) > 0 {
		best := ScoreNone
		for _, b := range m.bodies {
			if s := b.scoreBody(req); s > best {
				best = s
			}
		}
		return Result{Score: best}
	}

	values, present := m.values(req)
	if m.spec.Absent {
		if present {
			return Result{Score: ScoreNone}
		}
		return Result{Score: ScoreExact}
	}
	if !present {
		return Result{Score: ScoreNone}
	}

	var best Result
	for _, v := range values {
		for _, s := range m.scorers {
			score, captures := s.score(v)
			if score > best.Score {
				best = Result{Score: score, Captures: captures}
			}
		}
	}
	return best
}

// values extracts the field the matcher inspects and whether it is present.
func (m *Matcher) values(req *request.Request) ([]string, bool) {
	switch m.spec.Kind {
	case mapping.KindPath:
		return []string{req.Path}, true
	case mapping.KindMethod:
		if m.spec.Type == mapping.TypeRegex {
			return []string{req.Method}, true
		}
		return []string{strings.ToUpper(req.Method)}, true
	case mapping.KindHeader:
		return req.HeaderValues(m.spec.Name)
	case mapping.KindQuery:
		return req.QueryValues(m.spec.Name)
	case mapping.KindCookie:
		v, ok := req.Cookie(m.spec.Name)
		if !ok {
			return nil, false
		}
		return []string{v}, true
	case mapping.KindBody:
		return []string{string(req.Body)}, true
	}
	return nil, false
}

const maxActualLen = 256

// actual describes the inspected field for near-miss reports.
func (m *Matcher) actual(req *request.Request) string {
	values, present := m.values(req)
	if !present {
		return ""
	}
	return truncate(strings.Join(values, ", "), maxActualLen)
}

// truncate cuts s to at most n bytes on a rune boundary and marks the cut.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
