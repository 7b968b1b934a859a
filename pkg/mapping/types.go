package mapping

import (
	"encoding/json"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPriority is assigned to documents that omit priority. Lower values win.
const DefaultPriority = 5

// Kind names the request facet a matcher inspects.
type Kind string

// Matcher kinds.
const (
	KindPath   Kind = "path"
	KindMethod Kind = "method"
	KindHeader Kind = "header"
	KindQuery  Kind = "query"
	KindCookie Kind = "cookie"
	KindBody   Kind = "body"
)

// MatchType names the comparison a matcher performs.
type MatchType string

// Match types.
const (
	TypeExact       MatchType = "exact"
	TypeWildcard    MatchType = "wildcard"
	TypeRegex       MatchType = "regex"
	TypeContains    MatchType = "contains"
	TypeJSONExact   MatchType = "json-exact"
	TypeJSONPartial MatchType = "json-partial"
	TypeJSONPath    MatchType = "json-path"
	TypeXPath       MatchType = "xpath"
	TypeJSONSchema  MatchType = "json-schema"
	TypeExpression  MatchType = "expression"
)

// Mapping is one registered expectation.
type Mapping struct {
	ID          string `json:"id,omitempty" yaml:"id,omitempty"`
	Title       string `json:"title,omitempty" yaml:"title,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Priority orders mappings with equal scores. Lower values win.
	Priority int `json:"priority" yaml:"priority"`

	Request  *Request  `json:"request" yaml:"request" validate:"required"`
	Response *Response `json:"response" yaml:"response" validate:"required"`

	ScenarioName  string `json:"scenarioName,omitempty" yaml:"scenarioName,omitempty"`
	RequiredState string `json:"requiredScenarioState,omitempty" yaml:"requiredScenarioState,omitempty"`
	NewState      string `json:"newScenarioState,omitempty" yaml:"newScenarioState,omitempty"`

	// Persistent mappings survive a store reset with keepPersistent set.
	Persistent bool `json:"persistent,omitempty" yaml:"persistent,omitempty"`

	CreatedAt time.Time `json:"createdAt,omitzero" yaml:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitzero" yaml:"updatedAt,omitempty"`
}

// Request is the conjunction of matchers a request must satisfy.
// An empty matcher list matches every request with a minimal score.
type Request struct {
	Matchers []Matcher `json:"matchers" yaml:"matchers" validate:"dive"`
}

// Matcher is one member of a request composite. It is a closed variant
// selected by Kind and Type.
type Matcher struct {
	Kind Kind      `json:"kind" yaml:"kind" validate:"required,oneof=path method header query cookie body"`
	Type MatchType `json:"type" yaml:"type" validate:"required,oneof=exact wildcard regex contains json-exact json-partial json-path xpath json-schema expression"`

	// Name selects the header, query parameter or cookie.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Pattern and Patterns are alternatives; the best-scoring one counts.
	Pattern  string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Patterns []string `json:"patterns,omitempty" yaml:"patterns,omitempty"`

	// Value is a structured pattern for json-exact, json-partial and
	// json-schema, or the expected selection for json-path and xpath.
	Value any `json:"value,omitempty" yaml:"value,omitempty"`

	IgnoreCase bool `json:"ignoreCase,omitempty" yaml:"ignoreCase,omitempty"`

	// Absent matches only when the named field is missing.
	Absent bool `json:"absent,omitempty" yaml:"absent,omitempty"`

	// Reject inverts the matcher: a match scores 0 and a miss scores 1.
	Reject bool `json:"reject,omitempty" yaml:"reject,omitempty"`
}

// AllPatterns returns Pattern followed by Patterns, skipping an empty Pattern.
func (m Matcher) AllPatterns() []string {
	out := make([]string, 0, len(m.Patterns)+1)
	if m.Pattern != "" {
		out = append(out, m.Pattern)
	}
	return append(out, m.Patterns...)
}

// Response is the template a matched request is answered from.
// At most one of Body, JSONBody and Base64Body may be set.
type Response struct {
	// Status defaults to 200 when zero.
	Status  int     `json:"status,omitempty" yaml:"status,omitempty" validate:"omitempty,min=100,max=599"`
	Headers Headers `json:"headers,omitempty" yaml:"headers,omitempty" validate:"dive"`

	Body       string `json:"body,omitempty" yaml:"body,omitempty"`
	JSONBody   any    `json:"jsonBody,omitempty" yaml:"jsonBody,omitempty"`
	Base64Body string `json:"base64Body,omitempty" yaml:"base64Body,omitempty" validate:"omitempty,base64"`

	// Template renders Body, or every string leaf of JSONBody, through the template engine.
	Template bool `json:"template,omitempty" yaml:"template,omitempty"`

	DelayMs int `json:"delayMs,omitempty" yaml:"delayMs,omitempty" validate:"min=0"`
}

// StatusOrDefault returns Status, or 200 when unset.
func (r *Response) StatusOrDefault() int {
	if r.Status == 0 {
		return 200
	}
	return r.Status
}

type mappingAlias Mapping

// UnmarshalJSON applies DefaultPriority when the document omits priority.
func (m *Mapping) UnmarshalJSON(data []byte) error {
	alias := mappingAlias{Priority: DefaultPriority}
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*m = Mapping(alias)
	return nil
}

// UnmarshalYAML applies DefaultPriority when the document omits priority.
func (m *Mapping) UnmarshalYAML(value *yaml.Node) error {
	alias := mappingAlias{Priority: DefaultPriority}
	if err := value.Decode(&alias); err != nil {
		return err
	}
	*m = Mapping(alias)
	return nil
}
