package kv

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) all() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func TestFacadeServesRemoteWhileUp(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	remote, mr := newRemote(t)
	local := NewLocalStore(LocalConfig{})
	f := NewFacade(local, remote, FacadeConfig{HealthcheckInterval: 20 * time.Millisecond})
	t.Cleanup(func() { _ = f.Close() })

	require.NoError(t, f.Put(ctx, "a", map[string]string{"x": "1"}, time.Minute))
	require.Equal(t, "1", mr.HGet("a", "x"))

	hashes, _ := local.Len()
	require.Zero(t, hashes)
	require.Equal(t, StateUp, f.State())
}

func TestFacadeFailoverAndResync(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	remote, mr := newRemote(t)
	local := NewLocalStore(LocalConfig{})
	rec := &stateRecorder{}
	var fallbacks int
	var fbMu sync.Mutex
	f := NewFacade(local, remote, FacadeConfig{
		HealthcheckInterval: 20 * time.Millisecond,
		OnStateChange:       rec.record,
		OnFallback: func(string) {
			fbMu.Lock()
			fallbacks++
			fbMu.Unlock()
		},
	})
	t.Cleanup(func() { _ = f.Close() })

	require.NoError(t, f.Put(ctx, "before", map[string]string{"x": "1"}, 0))

	mr.Close()

	// The failing write lands locally and flips the state.
	require.NoError(t, f.Put(ctx, "during", map[string]string{"y": "2"}, time.Minute))
	require.Equal(t, StateDown, f.State())

	v, ok, err := f.GetField(ctx, "during", "y")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "2", v)

	created, err := f.SetIfAbsent(ctx, "lock", "owner", time.Minute)
	require.NoError(t, err)
	require.True(t, created)

	require.NoError(t, mr.Restart())

	require.Eventually(t, func() bool {
		return f.State() == StateUp
	}, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, "2", mr.HGet("during", "y"))
	require.Equal(t, time.Minute, mr.TTL("during"))
	lock, err := mr.Get("lock")
	require.NoError(t, err)
	require.Equal(t, "owner", lock)

	hashes, uniques := local.Len()
	require.Zero(t, hashes)
	require.Zero(t, uniques)

	got, ok, err := f.Get(ctx, "before")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, map[string]string{"x": "1"}, got)

	require.Equal(t, []State{StateDown, StateSyncing, StateUp}, rec.all())

	fbMu.Lock()
	require.GreaterOrEqual(t, fallbacks, 3)
	fbMu.Unlock()
}

func TestFacadeResyncMergesIntoExistingTopic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	remote, mr := newRemote(t)
	local := NewLocalStore(LocalConfig{})
	f := NewFacade(local, remote, FacadeConfig{HealthcheckInterval: 20 * time.Millisecond})
	t.Cleanup(func() { _ = f.Close() })

	require.NoError(t, f.Put(ctx, "t", map[string]string{"a": "1", "b": "2"}, time.Minute))

	mr.Close()
	require.NoError(t, f.Merge(ctx, "t", map[string]string{"c": "3"}))
	require.Equal(t, StateDown, f.State())

	require.NoError(t, mr.Restart())
	require.Eventually(t, func() bool {
		return f.State() == StateUp
	}, 2*time.Second, 10*time.Millisecond)

	got, ok, err := f.Get(ctx, "t")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, map[string]string{"a": "1", "b": "2", "c": "3"}, got)
	require.Equal(t, time.Minute, mr.TTL("t"))
}

func TestFacadeStaysDownWhileRemoteUnreachable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	remote, mr := newRemote(t)
	local := NewLocalStore(LocalConfig{})
	f := NewFacade(local, remote, FacadeConfig{HealthcheckInterval: 10 * time.Millisecond})
	t.Cleanup(func() { _ = f.Close() })

	mr.Close()
	require.NoError(t, f.Put(ctx, "a", map[string]string{"x": "1"}, 0))

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, StateDown, f.State())

	got, ok, err := f.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, map[string]string{"x": "1"}, got)
}

func TestFacadePropagatesServerErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	remote, mr := newRemote(t)
	local := NewLocalStore(LocalConfig{})
	f := NewFacade(local, remote, FacadeConfig{})
	t.Cleanup(func() { _ = f.Close() })

	require.NoError(t, mr.Set("plain", "value"))

	_, _, err := f.Get(ctx, "plain")
	require.Error(t, err)
	require.Equal(t, StateUp, f.State())
}

func TestFacadeCloseStopsHealthcheck(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	remote, mr := newRemote(t)
	local := NewLocalStore(LocalConfig{})
	f := NewFacade(local, remote, FacadeConfig{HealthcheckInterval: time.Hour})

	mr.Close()
	require.NoError(t, f.Put(ctx, "a", map[string]string{"x": "1"}, 0))
	require.Equal(t, StateDown, f.State())

	done := make(chan struct{})
	go func() {
		_ = f.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("close did not return")
	}
}

func TestFacadeClosed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	remote, _ := newRemote(t)
	f := NewFacade(NewLocalStore(LocalConfig{}), remote, FacadeConfig{})
	require.NoError(t, f.Put(ctx, "a", map[string]string{"x": "1"}, 0))
	require.NoError(t, f.Close())

	require.ErrorIs(t, f.Put(ctx, "a", map[string]string{"x": "2"}, 0), ErrClosed)
	require.ErrorIs(t, f.Merge(ctx, "a", map[string]string{"y": "2"}), ErrClosed)
	require.ErrorIs(t, f.Remove(ctx, "a", "x"), ErrClosed)

	_, _, err := f.Get(ctx, "a")
	require.ErrorIs(t, err, ErrClosed)
	_, _, err = f.GetField(ctx, "a", "x")
	require.ErrorIs(t, err, ErrClosed)
	_, _, err = f.GetFields(ctx, "a", "x")
	require.ErrorIs(t, err, ErrClosed)
	_, err = f.SetIfAbsent(ctx, "lock", "owner", 0)
	require.ErrorIs(t, err, ErrClosed)
	_, err = f.CompareAndSwapField(ctx, "a", "x", "1", "2")
	require.ErrorIs(t, err, ErrClosed)
}

func TestStateString(t *testing.T) {
	t.Parallel()
	require.Equal(t, "up", StateUp.String())
	require.Equal(t, "down", StateDown.String())
	require.Equal(t, "syncing", StateSyncing.String())
	require.Equal(t, "unknown", State(42).String())
}
