package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/stubd/pkg/store"
)

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	st := store.New()

	syncs := make(chan *LoadReport, 16)
	w := NewWatcher(dir, st,
		WithDebounce(20*time.Millisecond),
		WithSyncHook(func(r *LoadReport, err error) {
			assert.NoError(t, err)
			select {
			case syncs <- r:
			default:
			}
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		assert.NoError(t, <-done)
	}()

	// Give the watcher a moment to register before writing.
	require.Eventually(t, func() bool {
		if err := os.WriteFile(filepath.Join(dir, "hello.json"), []byte(helloDoc), 0o644); err != nil {
			return false
		}
		select {
		case <-syncs:
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		_, err := st.Get("hello")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(dir, "hello.json")))
	require.Eventually(t, func() bool { return st.Count() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestWatcher_MissingDir(t *testing.T) {
	w := NewWatcher(filepath.Join(t.TempDir(), "missing"), store.New())
	assert.Error(t, w.Run(context.Background()))
}

func TestIsMappingFile(t *testing.T) {
	assert.True(t, IsMappingFile("/a/b.json"))
	assert.True(t, IsMappingFile("b.yml"))
	assert.False(t, IsMappingFile("b.json.tmp"))
	assert.False(t, IsMappingFile("b.txt"))
}
