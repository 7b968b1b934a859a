package matching

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/getmockd/stubd/pkg/request"
)

// etree paths cover the XPath subset used for selection; count() comparisons
// are evaluated here, both as predicates ("/list[count(item) = 3]") and as
// whole expressions ("count(/list/item) > 1").
var (
	countPredicate  = regexp.MustCompile(`\[\s*count\(\s*([^)]+?)\s*\)\s*(=|!=|>=|<=|>|<)\s*(\d+)\s*\]`)
	countExpression = regexp.MustCompile(`^\s*count\(\s*(.+?)\s*\)\s*(=|!=|>=|<=|>|<)\s*(\d+)\s*$`)
)

type countCheck struct {
	path etree.Path
	op   string
	n    int
}

func (c countCheck) holds(el *etree.Element) bool {
	got := len(el.FindElementsPath(c.path))
	switch c.op {
	case "=":
		return got == c.n
	case "!=":
		return got != c.n
	case ">":
		return got > c.n
	case ">=":
		return got >= c.n
	case "<":
		return got < c.n
	case "<=":
		return got <= c.n
	}
	return false
}

type xpathStep struct {
	path  etree.Path
	count *countCheck
}

type xpathScorer struct {
	steps []xpathStep
	whole *countCheck
	want  string
	has   bool
}

func newXPathScorer(source string, value any) (*xpathScorer, error) {
	s := &xpathScorer{}
	if value != nil {
		s.want, s.has = fmt.Sprint(value), true
	}

	if m := countExpression.FindStringSubmatch(source); m != nil {
		check, err := newCountCheck(m[1], m[2], m[3])
		if err != nil {
			return nil, err
		}
		s.whole = check
		return s, nil
	}

	rest := source
	first := true
	for rest != "" {
		loc := countPredicate.FindStringSubmatchIndex(rest)
		seg := rest
		if loc != nil {
			seg = rest[:loc[0]]
		}
		if !first {
			seg = "." + seg
		}
		p, err := etree.CompilePath(seg)
		if err != nil {
			return nil, fmt.Errorf("invalid XPath %q: %w", source, err)
		}
		step := xpathStep{path: p}
		if loc == nil {
			rest = ""
		} else {
			check, err := newCountCheck(rest[loc[2]:loc[3]], rest[loc[4]:loc[5]], rest[loc[6]:loc[7]])
			if err != nil {
				return nil, err
			}
			step.count = check
			rest = rest[loc[1]:]
		}
		s.steps = append(s.steps, step)
		first = false
	}
	if len(s.steps) == 0 {
		return nil, errors.New("empty XPath")
	}
	return s, nil
}

func newCountCheck(path, op, n string) (*countCheck, error) {
	p, err := etree.CompilePath(strings.TrimSpace(path))
	if err != nil {
		return nil, fmt.Errorf("invalid XPath in count(%s): %w", path, err)
	}
	num, err := strconv.Atoi(n)
	if err != nil {
		return nil, fmt.Errorf("invalid count %q: %w", n, err)
	}
	return &countCheck{path: p, op: op, n: num}, nil
}

func (s *xpathScorer) scoreBody(req *request.Request) float64 {
	doc, ok := req.XML()
	if !ok {
		return ScoreNone
	}
	if s.whole != nil {
		if s.whole.holds(&doc.Element) {
			return ScoreStructural
		}
		return ScoreNone
	}

	current := []*etree.Element{&doc.Element}
	for _, step := range s.steps {
		var next []*etree.Element
		for _, el := range current {
			for _, found := range el.FindElementsPath(step.path) {
				if step.count == nil || step.count.holds(found) {
					next = append(next, found)
				}
			}
		}
		if len(next) == 0 {
			return ScoreNone
		}
		current = next
	}

	if !s.has {
		return ScoreStructural
	}
	for _, el := range current {
		if strings.TrimSpace(el.Text()) == s.want {
			return ScoreStructural
		}
	}
	return ScoreNone
}
