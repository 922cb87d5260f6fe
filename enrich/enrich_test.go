package enrich

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/cinerank/core"
	"github.com/rushteam/cinerank/filter"
	"github.com/rushteam/cinerank/rank"
)

// fakeAvailability 按 ID 返回预设结果；blockFor 中的 ID 会等待 release 关闭。
type fakeAvailability struct {
	byID     map[core.ExternalID]core.Outcome[core.Availability]
	blockFor core.IDSet
	release  chan struct{}
	jitter   bool

	inFlight atomic.Int32
	peak     atomic.Int32
	calls    atomic.Int32
}

func (f *fakeAvailability) Resolve(ctx context.Context, id core.ExternalID, _ core.ContentType) core.Outcome[core.Availability] {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.blockFor.Has(id) {
		<-f.release
	}
	if f.jitter {
		time.Sleep(time.Duration(rand.IntN(3)) * time.Millisecond)
	}
	if out, ok := f.byID[id]; ok {
		return out
	}
	return core.Unavailable[core.Availability](errors.New("no data"))
}

type fakeLinks struct{ fail bool }

func (f fakeLinks) Resolve(_ context.Context, id core.ExternalID, ct core.ContentType) core.Outcome[core.Links] {
	page := core.Links{DeepLinkURL: core.TMDBPageURL(ct, id)}
	if f.fail {
		o := core.TransportError[core.Links](errors.New("timeout"))
		o.Value = page
		return o
	}
	page.TrailerURL = "https://www.youtube.com/watch?v=x"
	return core.OK(page)
}

func flatrate(names ...string) core.Outcome[core.Availability] {
	return core.OK(core.Availability{Flatrate: core.NewServiceSet(names...), Rent: core.NewServiceSet()})
}

func rent(names ...string) core.Outcome[core.Availability] {
	return core.OK(core.Availability{Flatrate: core.NewServiceSet(), Rent: core.NewServiceSet(names...)})
}

func pool(n int) []core.Candidate {
	out := make([]core.Candidate, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, core.Candidate{
			ID:          core.ExternalID(i),
			Title:       "t",
			Similarity:  float64(i) / float64(n+1),
			VoteAverage: 7,
			Popularity:  100,
		})
	}
	return out
}

func movieRequest(services ...string) Request {
	return Request{ContentType: core.ContentMovie, Services: core.NewServiceFilter(services...), TieBreaker: rank.NoTieBreak{}}
}

func TestWorkerServiceFilterScenario(t *testing.T) {
	avail := &fakeAvailability{byID: map[core.ExternalID]core.Outcome[core.Availability]{
		1: flatrate("Max"),
		2: rent("Google Play"),
		3: flatrate("Netflix"),
	}}
	w := NewWorker(avail, fakeLinks{}, nil)
	req := movieRequest("Netflix")

	_, ok := w.Enrich(context.Background(), core.Candidate{ID: 1}, req)
	assert.False(t, ok)

	it, ok := w.Enrich(context.Background(), core.Candidate{ID: 2}, req)
	require.True(t, ok)
	assert.True(t, it.Rent.Has("Google Play"))
	assert.Equal(t, "rent", it.Labels["availability"].Value)

	it, ok = w.Enrich(context.Background(), core.Candidate{ID: 3, Similarity: 0.5}, req)
	require.True(t, ok)
	assert.True(t, it.Flatrate.Has("Netflix"))
	assert.Equal(t, "https://www.youtube.com/watch?v=x", it.TrailerURL)
	assert.Equal(t, "https://www.themoviedb.org/movie/3", it.DeepLinkURL)
	assert.InDelta(t, 0.35, it.HybridScore, 1e-9)

	_, ok = w.Enrich(context.Background(), core.Candidate{ID: 99}, req)
	assert.False(t, ok)
}

func TestWorkerDoesNotShareResolverState(t *testing.T) {
	shared := flatrate("Netflix")
	avail := &fakeAvailability{byID: map[core.ExternalID]core.Outcome[core.Availability]{1: shared}}
	w := NewWorker(avail, nil, nil)

	it, ok := w.Enrich(context.Background(), core.Candidate{ID: 1}, movieRequest())
	require.True(t, ok)
	it.Flatrate["Max"] = struct{}{}
	assert.False(t, shared.Value.Flatrate.Has("Max"))
}

func TestWorkerPrefersRegionLinkAndToleratesLinkFailure(t *testing.T) {
	out := flatrate("Netflix")
	out.Value.Link = "https://www.themoviedb.org/movie/1/watch?locale=BR"
	avail := &fakeAvailability{byID: map[core.ExternalID]core.Outcome[core.Availability]{1: out, 2: flatrate("Netflix")}}
	w := NewWorker(avail, fakeLinks{fail: true}, nil)

	it, ok := w.Enrich(context.Background(), core.Candidate{ID: 1}, movieRequest())
	require.True(t, ok)
	assert.Equal(t, out.Value.Link, it.DeepLinkURL)
	assert.Empty(t, it.TrailerURL)

	it, ok = w.Enrich(context.Background(), core.Candidate{ID: 2}, movieRequest())
	require.True(t, ok)
	assert.Equal(t, "https://www.themoviedb.org/movie/2", it.DeepLinkURL)
}

func TestWorkerRelaxedMode(t *testing.T) {
	avail := &fakeAvailability{}
	w := NewWorker(avail, nil, nil)
	w.Relaxed = true

	it, ok := w.Enrich(context.Background(), core.Candidate{ID: 1}, movieRequest())
	require.True(t, ok)
	assert.False(t, it.Watchable())
	assert.Equal(t, "unknown", it.Labels["availability"].Value)

	// 有订阅过滤时宽松模式不生效
	_, ok = w.Enrich(context.Background(), core.Candidate{ID: 1}, movieRequest("Netflix"))
	assert.False(t, ok)
}

func TestBatchTenCandidatesThreeUnavailable(t *testing.T) {
	byID := map[core.ExternalID]core.Outcome[core.Availability]{}
	for i := 1; i <= 10; i++ {
		if i == 2 || i == 5 || i == 9 {
			continue
		}
		byID[core.ExternalID(i)] = flatrate("Netflix")
	}
	b := NewBatch(NewWorker(&fakeAvailability{byID: byID}, nil, nil), 4, nil)

	all, err := b.Run(context.Background(), pool(10), movieRequest(), 0, Exhaustive)
	require.NoError(t, err)
	assert.Len(t, all, 7)

	for _, policy := range []Policy{Exhaustive, EarlyStop} {
		got, err := b.Run(context.Background(), pool(10), movieRequest(), 5, policy)
		require.NoError(t, err)
		require.Len(t, got, 5, policy.String())
		for i := 1; i < len(got); i++ {
			assert.GreaterOrEqual(t, got[i-1].HybridScore, got[i].HybridScore)
		}
	}

	// 穷尽策略取到的是分数最高的 5 个
	got, _ := b.Run(context.Background(), pool(10), movieRequest(), 5, Exhaustive)
	assert.Equal(t, []core.ExternalID{10, 8, 7, 6, 4}, core.IDs(got))
}

func TestBatchEarlyStopDoesNotWaitForSlowWorkers(t *testing.T) {
	byID := map[core.ExternalID]core.Outcome[core.Availability]{}
	for i := 1; i <= 20; i++ {
		byID[core.ExternalID(i)] = flatrate("Netflix")
	}
	avail := &fakeAvailability{
		byID:     byID,
		blockFor: core.NewIDSet(3, 4, 5, 6),
		release:  make(chan struct{}),
	}
	t.Cleanup(func() { close(avail.release) })
	b := NewBatch(NewWorker(avail, nil, nil), 4, nil)

	done := make(chan []*core.Item, 1)
	go func() {
		got, err := b.Run(context.Background(), pool(20), movieRequest(), 2, EarlyStop)
		assert.NoError(t, err)
		done <- got
	}()

	select {
	case got := <-done:
		require.Len(t, got, 2)
		assert.ElementsMatch(t, []core.ExternalID{1, 2}, core.IDs(got))
	case <-time.After(2 * time.Second):
		t.Fatal("early stop blocked on outstanding workers")
	}
	assert.LessOrEqual(t, avail.calls.Load(), int32(6))
}

func TestBatchEarlyStopNeverExceedsLimit(t *testing.T) {
	byID := map[core.ExternalID]core.Outcome[core.Availability]{}
	for i := 1; i <= 50; i++ {
		byID[core.ExternalID(i)] = flatrate("Netflix")
	}
	b := NewBatch(NewWorker(&fakeAvailability{byID: byID, jitter: true}, nil, nil), 8, nil)
	for limit := 1; limit <= 10; limit++ {
		got, err := b.Run(context.Background(), pool(50), movieRequest(), limit, EarlyStop)
		require.NoError(t, err)
		assert.Len(t, got, limit)
	}
}

func TestBatchExhaustiveIsDeterministic(t *testing.T) {
	byID := map[core.ExternalID]core.Outcome[core.Availability]{}
	for i := 1; i <= 30; i++ {
		switch i % 3 {
		case 0:
			byID[core.ExternalID(i)] = flatrate("Max")
		case 1:
			byID[core.ExternalID(i)] = flatrate("Netflix")
		}
	}
	b := NewBatch(NewWorker(&fakeAvailability{byID: byID, jitter: true}, nil, nil), 6, nil)
	req := movieRequest("Netflix")
	req.TieBreaker = rank.NewSeededTieBreaker(99)

	first, err := b.Run(context.Background(), pool(30), req, 0, Exhaustive)
	require.NoError(t, err)
	second, err := b.Run(context.Background(), pool(30), req, 0, Exhaustive)
	require.NoError(t, err)
	assert.Len(t, first, 10)
	assert.Equal(t, core.IDs(first), core.IDs(second))
}

func TestBatchRespectsConcurrency(t *testing.T) {
	byID := map[core.ExternalID]core.Outcome[core.Availability]{}
	avail := &fakeAvailability{byID: byID, jitter: true}
	b := NewBatch(NewWorker(avail, nil, nil), 3, nil)

	got, err := b.Run(context.Background(), pool(40), movieRequest(), 5, Exhaustive)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
	assert.LessOrEqual(t, avail.peak.Load(), int32(3))
	assert.Equal(t, int32(40), avail.calls.Load())
}

func TestBatchEmptyPool(t *testing.T) {
	b := NewBatch(NewWorker(&fakeAvailability{}, nil, nil), 0, nil)
	got, err := b.Run(context.Background(), nil, movieRequest(), 5, EarlyStop)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBatchFiltersDoNotCountTowardLimit(t *testing.T) {
	byID := map[core.ExternalID]core.Outcome[core.Availability]{}
	for i := 1; i <= 10; i++ {
		byID[core.ExternalID(i)] = flatrate("Netflix")
	}
	rctx := core.NewRequestContext("u1", core.ContentMovie)
	rctx.Exclusions = core.NewIDSet(1, 2, 3)
	req := movieRequest()
	req.Filters = []filter.Filter{filter.NewExclusionFilter()}
	req.RequestContext = rctx

	b := NewBatch(NewWorker(&fakeAvailability{byID: byID}, nil, nil), 1, nil)
	got, err := b.Run(context.Background(), pool(10), req, 3, EarlyStop)
	require.NoError(t, err)
	assert.ElementsMatch(t, []core.ExternalID{4, 5, 6}, core.IDs(got))
}

func TestBatchNodeReadsPool(t *testing.T) {
	byID := map[core.ExternalID]core.Outcome[core.Availability]{}
	for i := 1; i <= 6; i++ {
		byID[core.ExternalID(i)] = flatrate("Netflix")
	}
	build := NodeBuilder(NewWorker(&fakeAvailability{byID: byID}, nil, nil), nil)
	node, err := build(map[string]any{"policy": "exhaustive", "concurrency": 2, "rule": "item.id != 6"})
	require.NoError(t, err)

	rctx := core.NewRequestContext("u1", core.ContentMovie)
	rctx.Pool = pool(6)
	rctx.Exclusions = core.NewIDSet(5)
	rctx.Profile = &core.TasteProfile{Watched: core.NewIDSet(4)}
	rctx.Seed = 7

	out, err := node.Process(context.Background(), rctx, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []core.ExternalID{1, 2, 3}, core.IDs(out))
	assert.Equal(t, "exhaustive", rctx.Labels["enrich_policy"].Value)
}

func TestBatchNodeWithoutSeedStillBreaksTies(t *testing.T) {
	byID := map[core.ExternalID]core.Outcome[core.Availability]{}
	for i := 1; i <= 4; i++ {
		byID[core.ExternalID(i)] = flatrate("Netflix")
	}
	build := NodeBuilder(NewWorker(&fakeAvailability{byID: byID}, nil, nil), nil)
	node, err := build(map[string]any{"policy": "exhaustive"})
	require.NoError(t, err)

	rctx := core.NewRequestContext("", core.ContentMovie)
	rctx.Pool = pool(4)

	out, err := node.Process(context.Background(), rctx, nil)
	require.NoError(t, err)
	require.Len(t, out, 4)
	for _, it := range out {
		_, ok := it.Labels["score_tiebreak"]
		assert.True(t, ok)
		assert.LessOrEqual(t, it.HybridScore, 1.0)
	}
}

func TestBatchReturnsCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := NewBatch(NewWorker(&fakeAvailability{}, nil, nil), 2, nil)
	_, err := b.Run(ctx, pool(5), movieRequest(), 0, Exhaustive)
	require.ErrorIs(t, err, context.Canceled)
}
