package matching

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/text/cases"
)

// stringScorer scores one string field value.
type stringScorer interface {
	score(v string) (float64, map[string]string)
}

var folder = cases.Fold()

func fold(s string) string { return folder.String(s) }

type exactScorer struct {
	want       string
	folded     string
	ignoreCase bool
}

func newExactScorer(pattern string, ignoreCase bool) exactScorer {
	return exactScorer{want: pattern, folded: fold(pattern), ignoreCase: ignoreCase}
}

func (s exactScorer) score(v string) (float64, map[string]string) {
	if v == s.want {
		return ScoreExact, nil
	}
	if s.ignoreCase && fold(v) == s.folded {
		return ScoreExactFolded, nil
	}
	return ScoreNone, nil
}

type regexScorer struct {
	re   *regexp.Regexp
	base float64
}

func newRegexScorer(pattern string, ignoreCase bool) (*regexScorer, error) {
	if ignoreCase && !strings.HasPrefix(pattern, "(?i)") {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex %q: %w", pattern, err)
	}
	return &regexScorer{re: re, base: ScoreRegex}, nil
}

func (s *regexScorer) score(v string) (float64, map[string]string) {
	m := s.re.FindStringSubmatch(v)
	if m == nil {
		return ScoreNone, nil
	}
	return s.base, namedCaptures(s.re, m)
}

func namedCaptures(re *regexp.Regexp, m []string) map[string]string {
	var out map[string]string
	for i, name := range re.SubexpNames() {
		if i == 0 || name == "" || i >= len(m) {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[name] = m[i]
	}
	return out
}

type containsScorer struct {
	want       string
	ignoreCase bool
}

func (s containsScorer) score(v string) (float64, map[string]string) {
	if s.ignoreCase {
		if strings.Contains(fold(v), fold(s.want)) {
			return ScoreContains, nil
		}
		return ScoreNone, nil
	}
	if strings.Contains(v, s.want) {
		return ScoreContains, nil
	}
	return ScoreNone, nil
}

// globScorer matches path patterns with doublestar semantics:
// "*" and "?" stay within a segment, "**" spans segments, "{a,b}" alternates.
type globScorer struct {
	pattern    string
	ignoreCase bool
}

func newGlobScorer(pattern string, ignoreCase bool) (*globScorer, error) {
	if ignoreCase {
		pattern = strings.ToLower(pattern)
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid wildcard pattern %q", pattern)
	}
	return &globScorer{pattern: pattern, ignoreCase: ignoreCase}, nil
}

func (s *globScorer) score(v string) (float64, map[string]string) {
	if s.ignoreCase {
		v = strings.ToLower(v)
	}
	ok, err := doublestar.Match(s.pattern, v)
	if err != nil || !ok {
		return ScoreNone, nil
	}
	return ScoreWildcard, nil
}

var namedSegment = regexp.MustCompile(`^\{([A-Za-z_][A-Za-z0-9_]*)\}$`)

// hasNamedSegments reports whether a path pattern has "{name}" segments.
func hasNamedSegments(pattern string) bool {
	for _, seg := range strings.Split(pattern, "/") {
		if namedSegment.MatchString(seg) {
			return true
		}
	}
	return false
}

// newNamedPathScorer turns "/users/{id}/**" into an anchored regex that
// captures id. Glob characters in the other segments keep their path meaning.
func newNamedPathScorer(pattern string, ignoreCase bool) (*regexScorer, error) {
	segs := strings.Split(pattern, "/")
	for i, seg := range segs {
		if m := namedSegment.FindStringSubmatch(seg); m != nil {
			segs[i] = "(?P<" + m[1] + ">[^/]+)"
			continue
		}
		segs[i] = globToRegexp(seg, "[^/]")
	}
	re := "^" + strings.Join(segs, "/") + "$"
	if ignoreCase {
		re = "(?i)" + re
	}
	compiled, err := regexp.Compile(re)
	if err != nil {
		return nil, fmt.Errorf("invalid path pattern %q: %w", pattern, err)
	}
	return &regexScorer{re: compiled, base: ScoreNamedParams}, nil
}

// newWildcardScorer handles "*" and "?" in non-path values, where "*"
// spans any run of characters.
func newWildcardScorer(pattern string, ignoreCase bool) (*regexScorer, error) {
	re := "^" + globToRegexp(pattern, ".") + "$"
	if ignoreCase {
		re = "(?i)" + re
	}
	compiled, err := regexp.Compile(re)
	if err != nil {
		return nil, fmt.Errorf("invalid wildcard %q: %w", pattern, err)
	}
	return &regexScorer{re: compiled, base: ScoreWildcard}, nil
}

// globToRegexp translates "**", "*" and "?" into regex, using class as the
// single-character class for "*" and "?". Everything else is literal.
func globToRegexp(glob, class string) string {
	var b strings.Builder
	for i := 0; i < len(glob); i++ {
		switch {
		case strings.HasPrefix(glob[i:], "**"):
			b.WriteString(".*")
			i++
		case glob[i] == '*':
			b.WriteString(class + "*")
		case glob[i] == '?':
			b.WriteString(class)
		default:
			b.WriteString(regexp.QuoteMeta(glob[i : i+1]))
		}
	}
	return b.String()
}
