package engine

import (
	"sort"

	"github.com/getmockd/stubd/internal/matching"
	"github.com/getmockd/stubd/pkg/mapping"
	"github.com/getmockd/stubd/pkg/request"
	"github.com/getmockd/stubd/pkg/scenario"
	"github.com/getmockd/stubd/pkg/store"
)

// MatchResult is the outcome of a successful selection.
type MatchResult struct {
	Mapping *mapping.Mapping

	// Score is the composite score the mapping was selected with.
	Score float64

	// Complete is false when the mapping was accepted as a partial match.
	Complete bool

	Revision uint64

	// Request carries the path captures of the selected mapping.
	Request *request.Request
}

// NearMiss describes a mapping that came close to matching.
type NearMiss struct {
	ID     string                 `json:"id"`
	Title  string                 `json:"title,omitempty"`
	Score  float64                `json:"score"`
	Fields []matching.FieldResult `json:"fields,omitempty"`
}

type candidate struct {
	entry *store.Entry
	eval  matching.Evaluation
}

// better orders candidates by score, then lower priority value, then the
// most recent write.
func better(a, b candidate) bool {
	if a.eval.Score != b.eval.Score {
		return a.eval.Score > b.eval.Score
	}
	if a.entry.Mapping.Priority != b.entry.Mapping.Priority {
		return a.entry.Mapping.Priority < b.entry.Mapping.Priority
	}
	return a.entry.Revision > b.entry.Revision
}

// Eligible reports whether m may be selected given the scenario states.
// Scenarios absent from states are in scenario.Started.
func Eligible(m *mapping.Mapping, states map[string]string) bool {
	if m.ScenarioName == "" || m.RequiredState == "" {
		return true
	}
	current, ok := states[m.ScenarioName]
	if !ok {
		current = scenario.Started
	}
	return current == m.RequiredState
}

// Select picks the best mapping for req. It reads snap and states and
// mutates nothing. The second result is false when no mapping is acceptable.
func Select(snap *store.Snapshot, req *request.Request, states map[string]string, opts Options) (*MatchResult, bool) {
	opts = opts.withDefaults()

	var best, bestPartial *candidate
	for _, e := range snap.Entries() {
		if !Eligible(e.Mapping, states) {
			continue
		}
		c := candidate{entry: e, eval: e.Matcher.Evaluate(req, opts.Aggregation)}

		switch {
		case c.eval.Complete:
			if c.eval.Score > opts.MinScore && (best == nil || better(c, *best)) {
				best = &c
			}
		case opts.AllowPartial:
			if c.eval.Score > 0 && c.eval.Score >= opts.MinScore && (bestPartial == nil || better(c, *bestPartial)) {
				bestPartial = &c
			}
		}
	}

	if best == nil {
		best = bestPartial
	}
	if best == nil {
		return nil, false
	}
	return &MatchResult{
		Mapping:  best.entry.Mapping,
		Score:    best.eval.Score,
		Complete: best.eval.Complete,
		Revision: best.entry.Revision,
		Request:  req.WithPathParams(best.eval.Captures),
	}, true
}

// Closest returns up to n mappings with the highest raw composite scores
// for req, ignoring scenario eligibility. Mappings scoring 0 are omitted.
func Closest(snap *store.Snapshot, req *request.Request, agg matching.Aggregation, n int) []NearMiss {
	if n <= 0 {
		return nil
	}
	var cands []candidate
	for _, e := range snap.Entries() {
		ev := e.Matcher.Evaluate(req, agg)
		if ev.Score > 0 && e.Matcher.Len() > 0 {
			cands = append(cands, candidate{entry: e, eval: ev})
		}
	}
	sort.SliceStable(cands, func(i, j int) bool { return better(cands[i], cands[j]) })
	if len(cands) > n {
		cands = cands[:n]
	}

	out := make([]NearMiss, len(cands))
	for i, c := range cands {
		out[i] = NearMiss{
			ID:     c.entry.Mapping.ID,
			Title:  c.entry.Mapping.Title,
			Score:  c.eval.Score,
			Fields: c.eval.Fields,
		}
	}
	return out
}
