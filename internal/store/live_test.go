package store

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLiveSwap(t *testing.T) {
	first, err := NewMemory(0, testEntities()[:1])
	require.NoError(t, err)
	second, err := NewMemory(0, testEntities())
	require.NoError(t, err)

	live := NewLive(first)
	pinned := live.Snapshot()
	assert.Equal(t, uint64(1), live.Version())

	assert.Equal(t, uint64(2), live.Swap(second))
	assert.Equal(t, 4, live.Snapshot().Len())
	assert.Equal(t, 1, pinned.Len(), "a pinned snapshot is unaffected by swaps")
}

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hdql.db")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	first, err := NewMemory(0, testEntities()[:1])
	require.NoError(t, err)
	live := NewLive(first)

	var loads atomic.Int32
	load := func() (*Memory, error) {
		loads.Add(1)
		return NewMemory(0, testEntities())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, live, load, nil) }()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))

	require.Eventually(t, func() bool { return live.Snapshot().Len() == 4 }, 5*time.Second, 20*time.Millisecond)
	assert.GreaterOrEqual(t, loads.Load(), int32(1))

	cancel()
	require.NoError(t, <-done)
}
