package cachemanager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type loader struct {
	calls int
	err   error
}

func (l *loader) load(_ context.Context, path string) ([]string, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	return []string{path + "/a.ts"}, nil
}

func newReadThrough(l *loader, skip bool) *ReadThroughCache[string, []string, string] {
	cache := NewInMemoryCacheManager[string, []string]("test", DefaultExpiration, DefaultCleanupInterval)
	return NewReadThroughCache[string, []string, string](cache, l.load, skip)
}

func TestReadThroughCache_LoadsOnce(t *testing.T) {
	l := &loader{}
	r := newReadThrough(l, false)

	for range 3 {
		got, err := r.Get(context.Background(), "k", "/ws", time.Minute)
		require.NoError(t, err)
		require.Equal(t, []string{"/ws/a.ts"}, got)
	}
	require.Equal(t, 1, l.calls)
}

func TestReadThroughCache_SkipCache(t *testing.T) {
	l := &loader{}
	r := newReadThrough(l, true)

	_, _ = r.Get(context.Background(), "k", "/ws", time.Minute)
	_, _ = r.GetWithRefresh(context.Background(), "k", "/ws", time.Minute)
	require.Equal(t, 2, l.calls)
}

func TestReadThroughCache_ErrorNotCached(t *testing.T) {
	l := &loader{err: errors.New("missing")}
	r := newReadThrough(l, false)

	_, err := r.Get(context.Background(), "k", "/ws", time.Minute)
	require.Error(t, err)

	l.err = nil
	got, err := r.GetWithRefresh(context.Background(), "k", "/ws", time.Minute)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, 2, l.calls)
}

func TestReadThroughCache_PutAndInvalidate(t *testing.T) {
	l := &loader{}
	r := newReadThrough(l, false)
	ctx := context.Background()

	r.Put(ctx, "k", []string{"seeded"}, time.Minute)
	got, err := r.Get(ctx, "k", "/ws", time.Minute)
	require.NoError(t, err)
	require.Equal(t, []string{"seeded"}, got)
	require.Zero(t, l.calls)

	r.Invalidate(ctx, "k")
	got, err = r.Get(ctx, "k", "/ws", time.Minute)
	require.NoError(t, err)
	require.Equal(t, []string{"/ws/a.ts"}, got)
	require.Equal(t, 1, l.calls)
}

func TestReadThroughCache_Refresh(t *testing.T) {
	l := &loader{}
	r := newReadThrough(l, false)
	ctx := context.Background()

	for range 2 {
		got, err := r.Refresh(ctx, "k", "/ws", time.Minute)
		require.NoError(t, err)
		require.Equal(t, []string{"/ws/a.ts"}, got)
	}
	require.Equal(t, 2, l.calls, "every refresh loads")

	r.Put(ctx, "k", []string{"/ws/b.ts"}, time.Minute)
	got, err := r.Refresh(ctx, "k", "/other", time.Minute)
	require.NoError(t, err)
	require.Equal(t, []string{"/other/a.ts"}, got, "a successful load replaces the cached value")

	l.err = errors.New("missing")
	got, err = r.Refresh(ctx, "k", "/ws", time.Minute)
	require.NoError(t, err)
	require.Equal(t, []string{"/other/a.ts"}, got, "failed loads fall back to the cache")

	_, err = r.Refresh(ctx, "absent", "/ws", time.Minute)
	require.Error(t, err)
}
