package scenario

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_InitialState(t *testing.T) {
	tr := NewTracker()
	assert.Equal(t, Started, tr.CurrentState("todo"))
	assert.Zero(t, tr.Visits("todo"))
	assert.Equal(t, State{Name: "todo", State: Started}, tr.Get("todo"))
	assert.Empty(t, tr.List())
}

func TestTracker_Transition(t *testing.T) {
	tests := []struct {
		name       string
		current    string
		required   string
		newState   string
		wantOK     bool
		wantState  string
		wantVisits int64
	}{
		{name: "no requirement no change", wantOK: true, wantState: Started, wantVisits: 1},
		{name: "no requirement advance", newState: "Added", wantOK: true, wantState: "Added", wantVisits: 1},
		{name: "requirement met", required: Started, newState: "Added", wantOK: true, wantState: "Added", wantVisits: 1},
		{name: "requirement unmet", current: "Added", required: Started, newState: "Other", wantOK: false, wantState: "Added"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker()
			if tt.current != "" {
				tr.Advance("s", tt.current)
			}

			ok := tr.Transition("s", tt.required, tt.newState)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantState, tr.CurrentState("s"))
			assert.Equal(t, tt.wantVisits, tr.Visits("s"))
		})
	}
}

func TestTracker_Reset(t *testing.T) {
	tr := NewTracker()
	tr.Set("a", "One")
	tr.Set("b", "Two")

	assert.True(t, tr.Reset("a"))
	assert.False(t, tr.Reset("a"))
	assert.Equal(t, Started, tr.CurrentState("a"))
	assert.Equal(t, "Two", tr.CurrentState("b"))

	tr.ResetAll()
	assert.Empty(t, tr.States())
}

func TestTracker_List(t *testing.T) {
	tr := NewTracker()
	tr.Set("b", "X")
	require.True(t, tr.Transition("a", "", "Y"))

	assert.Equal(t, []State{
		{Name: "a", State: "Y", Visits: 1},
		{Name: "b", State: "X"},
	}, tr.List())
	assert.Equal(t, map[string]string{"a": "Y", "b": "X"}, tr.States())
}

func TestTracker_TransitionIsExclusive(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tr.Transition("race", Started, "Taken") {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, int64(1), tr.Visits("race"))
}
