package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/cinerank/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestGetOrLoadCachesWithinTTL(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := New[int]("test", 10, time.Hour, WithClock[int](clock.Now))

	var calls atomic.Int32
	load := func(context.Context) (int, bool, error) {
		calls.Add(1)
		return 42, true, nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.GetOrLoad(context.Background(), "k", load)
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	}
	assert.Equal(t, int32(1), calls.Load())

	clock.Advance(2 * time.Hour)
	_, err := c.GetOrLoad(context.Background(), "k", load)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetOrLoadSkipsUncacheable(t *testing.T) {
	c := New[string]("test", 10, time.Hour)
	var calls atomic.Int32
	load := func(context.Context) (string, bool, error) {
		calls.Add(1)
		return "", false, nil
	}
	_, _ = c.GetOrLoad(context.Background(), "k", load)
	_, _ = c.GetOrLoad(context.Background(), "k", load)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetOrLoadPropagatesError(t *testing.T) {
	c := New[string]("test", 10, time.Hour)
	boom := errors.New("boom")
	_, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (string, bool, error) {
		return "", true, boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())
}

func TestGetOrLoadCollapsesConcurrentMisses(t *testing.T) {
	c := New[int]("test", 10, time.Hour)
	var calls atomic.Int32
	release := make(chan struct{})
	load := func(context.Context) (int, bool, error) {
		calls.Add(1)
		<-release
		return 7, true, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOrLoad(context.Background(), "same", load)
			assert.NoError(t, err)
			assert.Equal(t, 7, v)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetOrLoadCancelledCallerDoesNotFailOthers(t *testing.T) {
	c := New[int]("test", 10, time.Hour)
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	var loadErr atomic.Value
	load := func(ctx context.Context) (int, bool, error) {
		calls.Add(1)
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			loadErr.Store(err)
		}
		return 42, true, nil
	}

	first, cancel := context.WithCancel(context.Background())
	firstDone := make(chan error, 1)
	go func() {
		_, err := c.GetOrLoad(first, "k", load)
		firstDone <- err
	}()
	<-started

	type result struct {
		v   int
		err error
	}
	second := make(chan result, 1)
	go func() {
		v, err := c.GetOrLoad(context.Background(), "k", load)
		second <- result{v, err}
	}()

	cancel()
	select {
	case err := <-firstDone:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(release)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, 42, got.v)
	assert.Nil(t, loadErr.Load())
	assert.Equal(t, int32(1), calls.Load())

	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestGetOrLoadAppliesLoadTimeout(t *testing.T) {
	c := New[int]("test", 10, time.Hour, WithLoadTimeout[int](10*time.Millisecond))
	_, err := c.GetOrLoad(context.Background(), "k", func(ctx context.Context) (int, bool, error) {
		<-ctx.Done()
		return 0, false, ctx.Err()
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCleanupIntervalDropsExpired(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := New[int]("test", 10, time.Minute,
		WithClock[int](clock.Now), WithCleanupInterval[int](5*time.Millisecond))
	defer c.Close()

	c.Set("a", 1, 0)
	c.Set("b", 2, time.Hour)
	clock.Advance(2 * time.Minute)

	assert.Eventually(t, func() bool { return c.Len() == 1 }, time.Second, 5*time.Millisecond)
	_, ok := c.Get("b")
	assert.True(t, ok)
	c.Close()
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := New[int]("test", 2, time.Hour, WithClock[int](clock.Now))

	c.Set("a", 1, 0)
	clock.Advance(time.Second)
	c.Set("b", 2, 0)
	clock.Advance(time.Second)
	_, _ = c.Get("a")
	clock.Advance(time.Second)
	c.Set("c", 3, 0)

	_, okA := c.Get("a")
	_, okB := c.Get("b")
	assert.True(t, okA)
	assert.False(t, okB)
	assert.Equal(t, 2, c.Len())
}

func TestSecondLevelStoreIsShared(t *testing.T) {
	l2 := store.NewMemoryStore()
	defer l2.Close()

	first := New[[]string]("shared", 10, time.Hour, WithStore[[]string](l2))
	_, err := first.GetOrLoad(context.Background(), "k", func(context.Context) ([]string, bool, error) {
		return []string{"Netflix"}, true, nil
	})
	require.NoError(t, err)

	second := New[[]string]("shared", 10, time.Hour, WithStore[[]string](l2))
	v, err := second.GetOrLoad(context.Background(), "k", func(context.Context) ([]string, bool, error) {
		t.Fatal("loader must not run on l2 hit")
		return nil, false, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Netflix"}, v)
}
