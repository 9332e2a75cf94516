package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/mockfleet/pkg/definition"
)

func runWatcher(t *testing.T, w *Watcher) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	return func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("watcher did not stop")
		}
	}
}

func TestWatcher_NotifyDebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	w := New(dir, func(context.Context) error {
		calls.Add(1)
		return nil
	}, WithDebounce(150*time.Millisecond))

	stop := runWatcher(t, w)
	defer stop()
	time.Sleep(100 * time.Millisecond)

	for i := range 5 {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "svc.yaml"), []byte{byte('a' + i)}, 0o644))
		time.Sleep(20 * time.Millisecond)
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 20*time.Millisecond)

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load(), "one reload per burst")
}

func TestWatcher_NotifyIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	w := New(dir, func(context.Context) error {
		calls.Add(1)
		return nil
	}, WithDebounce(50*time.Millisecond))

	stop := runWatcher(t, w)
	defer stop()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestWatcher_NotifyWatchesNewSubdirectories(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	w := New(dir, func(context.Context) error {
		calls.Add(1)
		return nil
	}, WithDebounce(50*time.Millisecond))

	stop := runWatcher(t, w)
	defer stop()
	time.Sleep(100 * time.Millisecond)

	sub := filepath.Join(dir, "team")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 20*time.Millisecond)
	before := calls.Load()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "svc.yml"), []byte("x"), 0o644))
	require.Eventually(t, func() bool { return calls.Load() > before }, 2*time.Second, 20*time.Millisecond)
}

func TestWatcher_Polling(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "svc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))

	var calls atomic.Int32
	w := New(dir, func(context.Context) error {
		calls.Add(1)
		return errors.New("reload errors are not fatal")
	}, WithPollInterval(30*time.Millisecond))

	stop := runWatcher(t, w)
	defer stop()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load(), "no change, no reload")

	later := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, later, later))
	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(path))
	require.Eventually(t, func() bool { return calls.Load() == 2 }, 2*time.Second, 20*time.Millisecond)
}

func TestWatcher_PollingStartsFromStoreSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "svc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))

	store := definition.NewStore(dir)
	_, err := store.Load()
	require.NoError(t, err)

	// Changed after the load but before the watcher runs.
	later := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, later, later))

	var calls atomic.Int32
	w := New(dir, func(context.Context) error {
		calls.Add(1)
		return nil
	}, WithPollInterval(30*time.Millisecond), WithStore(store))

	stop := runWatcher(t, w)
	defer stop()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 20*time.Millisecond)
}

func TestWatcher_MissingDirectory(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "missing"), func(context.Context) error { return nil })
	assert.Error(t, w.Run(context.Background()))

	w = New(filepath.Join(t.TempDir(), "missing"), func(context.Context) error { return nil }, WithPollInterval(time.Second))
	assert.Error(t, w.Run(context.Background()))
}
