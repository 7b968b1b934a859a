package matching

import (
	"fmt"
	"strings"

	"github.com/getmockd/stubd/pkg/mapping"
	"github.com/getmockd/stubd/pkg/request"
)

// Aggregation combines member scores into a composite score.
type Aggregation string

// Aggregations.
const (
	AggregateMean Aggregation = "mean"
	AggregateMin  Aggregation = "min"
)

// ParseAggregation accepts "mean" (also the empty string) and "min".
func ParseAggregation(s string) (Aggregation, error) {
	switch Aggregation(strings.ToLower(strings.TrimSpace(s))) {
	case "", AggregateMean:
		return AggregateMean, nil
	case AggregateMin:
		return AggregateMin, nil
	}
	return "", fmt.Errorf("unknown aggregation %q (want mean or min)", s)
}

// FieldResult is one row of a composite breakdown.
type FieldResult struct {
	Field    string            `json:"field"`
	Type     mapping.MatchType `json:"type"`
	Expected string            `json:"expected,omitempty"`
	Actual   string            `json:"actual,omitempty"`
	Score    float64           `json:"score"`
	Matched  bool              `json:"matched"`
}

// Evaluation is the outcome of a composite against one request.
type Evaluation struct {
	// Score is the aggregated member score, computed even when a member scored 0.
	Score float64

	// Complete is false when any member scored 0.
	Complete bool

	Fields   []FieldResult
	Captures map[string]string
}

// Effective applies the partial-mapping rule: an incomplete evaluation
// scores 0 unless partial is set.
func (e Evaluation) Effective(partial bool) float64 {
	if e.Complete || partial {
		return e.Score
	}
	return ScoreNone
}

// Composite is a compiled conjunction of matchers.
type Composite struct {
	matchers []*Matcher
}

// CompileRequest compiles every matcher of req. Failures are reported as
// *mapping.ValidationError naming the offending matcher.
func CompileRequest(req *mapping.Request) (*Composite, error) {
	if req == nil {
		return nil, &mapping.ValidationError{Field: "request", Message: "is required"}
	}
	c := &Composite{matchers: make([]*Matcher, 0, len(req.Matchers))}
	for i, spec := range req.Matchers {
		m, err := Compile(spec)
		if err != nil {
			return nil, &mapping.ValidationError{
				Field:   fmt.Sprintf("request.matchers[%d].pattern", i),
				Message: err.Error(),
			}
		}
		c.matchers = append(c.matchers, m)
	}
	return c, nil
}

// Len returns the number of member matchers.
func (c *Composite) Len() int { return len(c.matchers) }

// Evaluate scores every member against req without short-circuiting.
// A composite without members is a catch-all scoring ScoreCatchAll.
func (c *Composite) Evaluate(req *request.Request, agg Aggregation) Evaluation {
	if len(c.matchers) == 0 {
		return Evaluation{Score: ScoreCatchAll, Complete: true}
	}

	ev := Evaluation{Complete: true, Fields: make([]FieldResult, 0, len(c.matchers))}
	sum, lowest := 0.0, ScoreExact
	for _, m := range c.matchers {
		res := m.Score(req)
		sum += res.Score
		if res.Score < lowest {
			lowest = res.Score
		}
		if res.Score == ScoreNone {
			ev.Complete = false
		}
		for k, v := range res.Captures {
			if ev.Captures == nil {
				ev.Captures = make(map[string]string)
			}
			ev.Captures[k] = v
		}
		ev.Fields = append(ev.Fields, FieldResult{
			Field:    m.Field(),
			Type:     m.spec.Type,
			Expected: expected(m.spec),
			Actual:   m.actual(req),
			Score:    res.Score,
			Matched:  res.Score > ScoreNone,
		})
	}

	switch agg {
	case AggregateMin:
		ev.Score = lowest
	default:
		ev.Score = sum / float64(len(c.matchers))
	}
	return ev
}

func expected(spec mapping.Matcher) string {
	var prefix string
	switch {
	case spec.Absent:
		return "absent"
	case spec.Reject:
		prefix = "not "
	}
	if p := spec.AllPatterns(); len(p) > 0 {
		return prefix + strings.Join(p, " | ")
	}
	if spec.Value != nil {
		return prefix + fmt.Sprint(spec.Value)
	}
	return ""
}
