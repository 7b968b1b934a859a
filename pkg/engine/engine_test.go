package engine

import (
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/stubd/pkg/mapping"
	"github.com/getmockd/stubd/pkg/request"
	"github.com/getmockd/stubd/pkg/scenario"
	"github.com/getmockd/stubd/pkg/store"
)

func pathMapping(id string, typ mapping.MatchType, path string, priority int) *mapping.Mapping {
	return &mapping.Mapping{
		ID:       id,
		Priority: priority,
		Request: &mapping.Request{Matchers: []mapping.Matcher{
			{Kind: mapping.KindPath, Type: typ, Pattern: path},
		}},
		Response: &mapping.Response{Body: id},
	}
}

func withMethod(m *mapping.Mapping, method string) *mapping.Mapping {
	m.Request.Matchers = append(m.Request.Matchers, mapping.Matcher{
		Kind: mapping.KindMethod, Type: mapping.TypeExact, Pattern: method,
	})
	return m
}

func newTestEngine(t testing.TB, opts Options, mappings ...*mapping.Mapping) *Engine {
	t.Helper()
	st := store.New()
	for _, m := range mappings {
		_, _, err := st.Upsert(m)
		require.NoError(t, err)
	}
	return New(st, scenario.NewTracker(), WithOptions(opts))
}

func get(path string) *request.Request {
	return request.New(http.MethodGet, path, nil, nil)
}

func matchedID(t *testing.T, e *Engine, req *request.Request) string {
	t.Helper()
	res, err := e.Match(req)
	if err != nil {
		return ""
	}
	return res.Mapping.ID
}

func TestSelect_Deterministic(t *testing.T) {
	e := newTestEngine(t, DefaultOptions(),
		pathMapping("a", mapping.TypeWildcard, "/users/*", 5),
		pathMapping("b", mapping.TypeRegex, "^/users/[0-9]+$", 5),
		pathMapping("c", mapping.TypeWildcard, "/**", 5),
	)
	snap := e.Store().Snapshot()

	first, ok := Select(snap, get("/users/42"), nil, e.Options())
	require.True(t, ok)
	assert.Equal(t, "b", first.Mapping.ID)
	for range 50 {
		res, ok := Select(snap, get("/users/42"), nil, e.Options())
		require.True(t, ok)
		assert.Equal(t, first.Mapping.ID, res.Mapping.ID)
	}
}

func TestSelect_HigherScoreWinsAndDeleteReverts(t *testing.T) {
	e := newTestEngine(t, DefaultOptions(), pathMapping("wild", mapping.TypeWildcard, "/users/*", 5))
	assert.Equal(t, "wild", matchedID(t, e, get("/users/1")))

	_, _, err := e.Store().Upsert(pathMapping("exact", mapping.TypeExact, "/users/1", 5))
	require.NoError(t, err)
	assert.Equal(t, "exact", matchedID(t, e, get("/users/1")))

	require.True(t, e.Store().Delete("exact"))
	assert.Equal(t, "wild", matchedID(t, e, get("/users/1")))
}

func TestSelect_TieBreaks(t *testing.T) {
	t.Run("lower priority value wins", func(t *testing.T) {
		e := newTestEngine(t, DefaultOptions(),
			pathMapping("low", mapping.TypeExact, "/x", 1),
			pathMapping("high", mapping.TypeExact, "/x", 9),
		)
		assert.Equal(t, "low", matchedID(t, e, get("/x")))
	})

	t.Run("priority beats registration order", func(t *testing.T) {
		e := newTestEngine(t, DefaultOptions(),
			pathMapping("first", mapping.TypeExact, "/x", 1),
			pathMapping("second", mapping.TypeExact, "/x", 2),
		)
		assert.Equal(t, "first", matchedID(t, e, get("/x")))
	})

	t.Run("last write wins on equal priority", func(t *testing.T) {
		e := newTestEngine(t, DefaultOptions(),
			pathMapping("old", mapping.TypeExact, "/x", 5),
			pathMapping("new", mapping.TypeExact, "/x", 5),
		)
		assert.Equal(t, "new", matchedID(t, e, get("/x")))

		_, _, err := e.Store().Upsert(pathMapping("old", mapping.TypeExact, "/x", 5))
		require.NoError(t, err)
		assert.Equal(t, "old", matchedID(t, e, get("/x")))
	})

	t.Run("score beats priority", func(t *testing.T) {
		e := newTestEngine(t, DefaultOptions(),
			pathMapping("wild", mapping.TypeWildcard, "/x*", 1),
			pathMapping("exact", mapping.TypeExact, "/x", 9),
		)
		assert.Equal(t, "exact", matchedID(t, e, get("/x")))
	})
}

func TestSelect_PartialMode(t *testing.T) {
	m := pathMapping("p", mapping.TypeExact, "/orders", 5)
	m.Request.Matchers = append(m.Request.Matchers, mapping.Matcher{
		Kind: mapping.KindBody, Type: mapping.TypeContains, Pattern: "abc",
	})
	req := request.New(http.MethodPost, "/orders", nil, []byte("xyz"))

	t.Run("disabled", func(t *testing.T) {
		e := newTestEngine(t, DefaultOptions(), m.Clone())
		_, err := e.Match(req)
		assert.ErrorIs(t, err, ErrNoMappingMatched)
	})

	t.Run("enabled", func(t *testing.T) {
		opts := DefaultOptions()
		opts.AllowPartial = true
		e := newTestEngine(t, opts, m.Clone())
		res, err := e.Match(req)
		require.NoError(t, err)
		assert.Equal(t, "p", res.Mapping.ID)
		assert.False(t, res.Complete)
		assert.InDelta(t, 0.5, res.Score, 1e-9)
	})

	t.Run("complete match preferred over better partial", func(t *testing.T) {
		opts := DefaultOptions()
		opts.AllowPartial = true
		e := newTestEngine(t, opts, m.Clone(), pathMapping("any", mapping.TypeWildcard, "/**", 9))
		res, err := e.Match(req)
		require.NoError(t, err)
		assert.Equal(t, "any", res.Mapping.ID)
		assert.True(t, res.Complete)
	})

	t.Run("threshold applies to partial candidates", func(t *testing.T) {
		opts := DefaultOptions()
		opts.AllowPartial = true
		opts.MinScore = 0.6
		e := newTestEngine(t, opts, m.Clone())
		_, err := e.Match(req)
		assert.ErrorIs(t, err, ErrNoMappingMatched)
	})

	t.Run("nothing matched at all", func(t *testing.T) {
		opts := DefaultOptions()
		opts.AllowPartial = true
		e := newTestEngine(t, opts, m.Clone())
		_, err := e.Match(request.New(http.MethodPost, "/other", nil, []byte("xyz")))
		assert.ErrorIs(t, err, ErrNoMappingMatched)
	})
}

func TestSelect_MinScore(t *testing.T) {
	opts := DefaultOptions()
	opts.MinScore = 0.85
	e := newTestEngine(t, opts, pathMapping("wild", mapping.TypeWildcard, "/a/*", 5))
	_, err := e.Match(get("/a/b"))
	assert.ErrorIs(t, err, ErrNoMappingMatched)

	_, _, err = e.Store().Upsert(pathMapping("exact", mapping.TypeExact, "/a/b", 5))
	require.NoError(t, err)
	assert.Equal(t, "exact", matchedID(t, e, get("/a/b")))
}

func TestSelect_CatchAll(t *testing.T) {
	catchAll := &mapping.Mapping{
		ID:       "fallback",
		Priority: 100,
		Request:  &mapping.Request{},
		Response: &mapping.Response{Status: 503},
	}
	e := newTestEngine(t, DefaultOptions(), catchAll, pathMapping("x", mapping.TypeExact, "/x", 5))

	assert.Equal(t, "x", matchedID(t, e, get("/x")))
	assert.Equal(t, "fallback", matchedID(t, e, get("/anything")))
}

func TestSelect_PathCaptures(t *testing.T) {
	e := newTestEngine(t, DefaultOptions(), pathMapping("u", mapping.TypeWildcard, "/users/{id}/orders/{order}", 5))
	res, err := e.Match(get("/users/7/orders/9"))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"id": "7", "order": "9"}, res.Request.PathParams)
}

func TestSelect_IsPure(t *testing.T) {
	m := pathMapping("a", mapping.TypeExact, "/x", 5)
	m.ScenarioName, m.NewState = "flow", "Next"
	e := newTestEngine(t, DefaultOptions(), m)

	for range 3 {
		_, ok := Select(e.Store().Snapshot(), get("/x"), e.Tracker().States(), e.Options())
		require.True(t, ok)
	}
	assert.Equal(t, scenario.Started, e.Tracker().CurrentState("flow"))
	assert.Zero(t, e.Tracker().Visits("flow"))
}

func TestEngine_ScenarioFlow(t *testing.T) {
	list := pathMapping("list", mapping.TypeExact, "/todo/items", 5)
	list = withMethod(list, http.MethodGet)
	list.ScenarioName, list.RequiredState = "todo", "TodoItemAdded"

	add := pathMapping("add", mapping.TypeExact, "/todo/items", 5)
	add = withMethod(add, http.MethodPost)
	add.ScenarioName, add.NewState = "todo", "TodoItemAdded"

	e := newTestEngine(t, DefaultOptions(), list, add)
	getItems := get("/todo/items")

	_, err := e.Match(getItems)
	require.ErrorIs(t, err, ErrNoMappingMatched)
	assert.Equal(t, scenario.Started, e.Tracker().CurrentState("todo"))

	assert.Equal(t, "add", matchedID(t, e, request.New(http.MethodPost, "/todo/items", nil, nil)))
	assert.Equal(t, "TodoItemAdded", e.Tracker().CurrentState("todo"))

	assert.Equal(t, "list", matchedID(t, e, getItems))
	assert.Equal(t, "list", matchedID(t, e, getItems))
	assert.Equal(t, int64(3), e.Tracker().Visits("todo"))

	e.Tracker().Reset("todo")
	_, err = e.Match(getItems)
	assert.ErrorIs(t, err, ErrNoMappingMatched)
}

func TestEngine_ScenarioTransitionsAreSerialized(t *testing.T) {
	once := pathMapping("once", mapping.TypeExact, "/s", 5)
	once.ScenarioName, once.RequiredState, once.NewState = "s", scenario.Started, "Done"
	after := pathMapping("after", mapping.TypeExact, "/s", 5)
	after.ScenarioName, after.RequiredState = "s", "Done"

	e := newTestEngine(t, DefaultOptions(), once, after)

	const n = 32
	var onceHits, afterHits atomic.Int32
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch matchedID(t, e, get("/s")) {
			case "once":
				onceHits.Add(1)
			case "after":
				afterHits.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), onceHits.Load())
	assert.Equal(t, int32(n-1), afterHits.Load())
	assert.Equal(t, int64(n), e.Tracker().Visits("s"))
}

func TestEngine_HeadFallsBackToGet(t *testing.T) {
	e := newTestEngine(t, DefaultOptions(), withMethod(pathMapping("g", mapping.TypeExact, "/x", 5), http.MethodGet))

	res, err := e.Match(request.New(http.MethodHead, "/x", nil, nil))
	require.NoError(t, err)
	assert.Equal(t, "g", res.Mapping.ID)

	_, err = e.Match(request.New(http.MethodDelete, "/x", nil, nil))
	assert.ErrorIs(t, err, ErrNoMappingMatched)
}

func TestEngine_ConcurrentDeleteAndMatch(t *testing.T) {
	e := newTestEngine(t, DefaultOptions(), pathMapping("base", mapping.TypeWildcard, "/items/*", 9))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for w := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; ; i++ {
				select {
				case <-stop:
					return
				default:
				}
				id := "m" + string(rune('a'+w))
				_, _, err := e.Store().Upsert(pathMapping(id, mapping.TypeExact, "/items/1", 5))
				assert.NoError(t, err)
				e.Store().Delete(id)
			}
		}()
	}

	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 500 {
				res, err := e.Match(get("/items/1"))
				if assert.NoError(t, err) {
					assert.NotNil(t, res.Mapping.Response)
					assert.Contains(t, []string{"base", "ma", "mb", "mc", "md"}, res.Mapping.ID)
				}
			}
		}()
	}

	go func() {
		defer close(stop)
		for range 200 {
			_, _ = e.Match(get("/items/2"))
		}
	}()
	wg.Wait()
}

func TestClosest(t *testing.T) {
	a := withMethod(pathMapping("a", mapping.TypeExact, "/orders", 5), http.MethodPost)
	b := pathMapping("b", mapping.TypeExact, "/other", 5)
	c := withMethod(pathMapping("c", mapping.TypeExact, "/nothing", 6), http.MethodGet)
	e := newTestEngine(t, DefaultOptions(), a, b, c)

	misses := e.NearMisses(get("/orders"))
	require.Len(t, misses, 2)
	assert.Equal(t, "a", misses[0].ID)
	assert.InDelta(t, 0.5, misses[0].Score, 1e-9)
	assert.Equal(t, "c", misses[1].ID)
	require.Len(t, misses[0].Fields, 2)
	assert.True(t, misses[0].Fields[0].Matched)
	assert.False(t, misses[0].Fields[1].Matched)
}
