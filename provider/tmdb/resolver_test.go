package tmdb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/cinerank/core"
	"github.com/rushteam/cinerank/store"
	"github.com/rushteam/cinerank/transport"
)

const providersBody = `{
  "id": 603,
  "results": {
    "BR": {
      "link": "https://www.themoviedb.org/movie/603-the-matrix/watch?locale=BR",
      "flatrate": [{"provider_id": 8, "provider_name": "Netflix"}],
      "rent": [{"provider_id": 2, "provider_name": "Apple TV"}]
    },
    "US": {
      "link": "https://www.themoviedb.org/movie/603-the-matrix/watch?locale=US",
      "buy": [{"provider_id": 3, "provider_name": "Google Play Movies"}]
    }
  }
}`

type fakeTMDB struct {
	srv   *httptest.Server
	hits  atomic.Int32
	route func(w http.ResponseWriter, r *http.Request)
}

func newFakeTMDB(t *testing.T, route func(w http.ResponseWriter, r *http.Request)) *fakeTMDB {
	t.Helper()
	f := &fakeTMDB{route: route}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		f.route(w, r)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func newClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	hc := transport.New(transport.Config{Name: "tmdb", MaxAttempts: 2},
		transport.WithSleeper(func(context.Context, time.Duration) error { return nil }))
	c, err := New(Config{APIKey: "k", BaseURL: baseURL}, hc)
	require.NoError(t, err)
	return c
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(Config{}, transport.New(transport.Config{}))
	require.Error(t, err)
}

func TestAvailabilityResolveOK(t *testing.T) {
	f := newFakeTMDB(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/movie/603/watch/providers", r.URL.Path)
		assert.Equal(t, "k", r.URL.Query().Get("api_key"))
		_, _ = w.Write([]byte(providersBody))
	})
	res := NewAvailabilityResolver(newClient(t, f.srv.URL), "br")

	out := res.Resolve(context.Background(), 603, core.ContentMovie)
	require.True(t, out.OK())
	assert.Equal(t, []string{"Netflix"}, out.Value.Flatrate.Names())
	assert.Equal(t, []string{"Apple TV"}, out.Value.Rent.Names())
	assert.Contains(t, out.Value.Link, "locale=BR")
	assert.Equal(t, "BR", res.Region())
}

func TestAvailabilityResolveIsCached(t *testing.T) {
	f := newFakeTMDB(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(providersBody))
	})
	res := NewAvailabilityResolver(newClient(t, f.srv.URL), "BR")

	first := res.Resolve(context.Background(), 603, core.ContentMovie)
	second := res.Resolve(context.Background(), 603, core.ContentMovie)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), f.hits.Load())

	// 类型是缓存键的一部分
	res.Resolve(context.Background(), 603, core.ContentTV)
	assert.Equal(t, int32(2), f.hits.Load())
}

func TestAvailabilityRegionMissingIsUnavailable(t *testing.T) {
	f := newFakeTMDB(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(providersBody))
	})
	res := NewAvailabilityResolver(newClient(t, f.srv.URL), "DE")

	out := res.Resolve(context.Background(), 603, core.ContentMovie)
	assert.Equal(t, core.OutcomeUnavailable, out.Status)
	assert.True(t, out.Value.Empty())

	// 无数据的结论同样缓存
	res.Resolve(context.Background(), 603, core.ContentMovie)
	assert.Equal(t, int32(1), f.hits.Load())
}

func TestAvailabilityNotFoundIsUnavailable(t *testing.T) {
	f := newFakeTMDB(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	res := NewAvailabilityResolver(newClient(t, f.srv.URL), "BR")

	out := res.Resolve(context.Background(), 1, core.ContentMovie)
	assert.Equal(t, core.OutcomeUnavailable, out.Status)
	assert.Equal(t, int32(1), f.hits.Load())
}

func TestAvailabilityRateLimitIsUnavailableButNotCached(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusUnauthorized} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			var fail atomic.Bool
			fail.Store(true)
			f := newFakeTMDB(t, func(w http.ResponseWriter, r *http.Request) {
				if fail.Load() {
					w.WriteHeader(status)
					return
				}
				_, _ = w.Write([]byte(providersBody))
			})
			res := NewAvailabilityResolver(newClient(t, f.srv.URL), "BR")

			out := res.Resolve(context.Background(), 603, core.ContentMovie)
			assert.Equal(t, core.OutcomeUnavailable, out.Status)
			// 4xx 不重试
			assert.Equal(t, int32(1), f.hits.Load())

			fail.Store(false)
			out = res.Resolve(context.Background(), 603, core.ContentMovie)
			require.True(t, out.OK())
			assert.True(t, out.Value.Flatrate.Has("Netflix"))
			assert.Equal(t, int32(2), f.hits.Load())
		})
	}
}

func TestLinkRateLimitIsNotCached(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	f := newFakeTMDB(t, func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"id":5,"results":[{"key":"t","site":"YouTube","type":"Trailer"}]}`))
	})
	res := NewLinkResolver(newClient(t, f.srv.URL))

	out := res.Resolve(context.Background(), 5, core.ContentMovie)
	assert.Empty(t, out.Value.TrailerURL)

	fail.Store(false)
	out = res.Resolve(context.Background(), 5, core.ContentMovie)
	assert.Equal(t, "https://www.youtube.com/watch?v=t", out.Value.TrailerURL)
	assert.Equal(t, int32(2), f.hits.Load())
}

func TestAPIErrorCacheable(t *testing.T) {
	assert.True(t, (&APIError{StatusCode: http.StatusNotFound}).Cacheable())
	assert.True(t, (&APIError{StatusCode: http.StatusUnprocessableEntity}).Cacheable())
	assert.False(t, (&APIError{StatusCode: http.StatusTooManyRequests}).Cacheable())
	assert.False(t, (&APIError{StatusCode: http.StatusForbidden}).Cacheable())
}

func TestAvailabilityMalformedIsUnavailable(t *testing.T) {
	f := newFakeTMDB(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results": [`))
	})
	res := NewAvailabilityResolver(newClient(t, f.srv.URL), "BR")

	out := res.Resolve(context.Background(), 1, core.ContentMovie)
	assert.Equal(t, core.OutcomeUnavailable, out.Status)
}

func TestAvailabilityServerErrorIsTransportAndNotCached(t *testing.T) {
	f := newFakeTMDB(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	res := NewAvailabilityResolver(newClient(t, f.srv.URL), "BR")

	out := res.Resolve(context.Background(), 1, core.ContentMovie)
	assert.Equal(t, core.OutcomeTransportError, out.Status)
	require.Error(t, out.Err)
	assert.Equal(t, int32(2), f.hits.Load())

	res.Resolve(context.Background(), 1, core.ContentMovie)
	assert.Equal(t, int32(4), f.hits.Load())
}

func TestAvailabilitySharedStore(t *testing.T) {
	f := newFakeTMDB(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(providersBody))
	})
	l2 := store.NewMemoryStore()
	defer l2.Close()

	a := NewAvailabilityResolver(newClient(t, f.srv.URL), "BR", WithSharedStore(l2))
	b := NewAvailabilityResolver(newClient(t, f.srv.URL), "BR", WithSharedStore(l2))
	require.True(t, a.Resolve(context.Background(), 603, core.ContentMovie).OK())
	out := b.Resolve(context.Background(), 603, core.ContentMovie)
	require.True(t, out.OK())
	assert.True(t, out.Value.Flatrate.Has("Netflix"))
	assert.Equal(t, int32(1), f.hits.Load())
}

func TestResolversWithCleanupClose(t *testing.T) {
	f := newFakeTMDB(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(providersBody))
	})
	c := newClient(t, f.srv.URL)
	avail := NewAvailabilityResolver(c, "BR", WithCleanupInterval(time.Millisecond))
	links := NewLinkResolver(c, WithCleanupInterval(time.Millisecond))

	require.True(t, avail.Resolve(context.Background(), 603, core.ContentMovie).OK())
	require.NoError(t, avail.Close())
	require.NoError(t, links.Close())
	// 重复关闭是安全的
	require.NoError(t, avail.Close())
}

func TestLinkResolvePrefersOfficialTrailer(t *testing.T) {
	f := newFakeTMDB(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tv/1399/videos", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":1399,"results":[
			{"key":"teaser1","site":"YouTube","type":"Teaser","official":true},
			{"key":"fan","site":"YouTube","type":"Trailer","official":false},
			{"key":"vimeo","site":"Vimeo","type":"Trailer","official":true},
			{"key":"official","site":"YouTube","type":"Trailer","official":true}
		]}`))
	})
	res := NewLinkResolver(newClient(t, f.srv.URL))

	out := res.Resolve(context.Background(), 1399, core.ContentTV)
	require.True(t, out.OK())
	assert.Equal(t, "https://www.youtube.com/watch?v=official", out.Value.TrailerURL)
	assert.Equal(t, "https://www.themoviedb.org/tv/1399", out.Value.DeepLinkURL)

	res.Resolve(context.Background(), 1399, core.ContentTV)
	assert.Equal(t, int32(1), f.hits.Load())
}

func TestLinkResolveWithoutTrailer(t *testing.T) {
	f := newFakeTMDB(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":5,"results":[{"key":"x","site":"YouTube","type":"Clip"}]}`))
	})
	out := NewLinkResolver(newClient(t, f.srv.URL)).Resolve(context.Background(), 5, core.ContentMovie)
	require.True(t, out.OK())
	assert.Empty(t, out.Value.TrailerURL)
	assert.Equal(t, "https://www.themoviedb.org/movie/5", out.Value.DeepLinkURL)
}

func TestLinkResolveTransportErrorKeepsPageURL(t *testing.T) {
	f := newFakeTMDB(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	out := NewLinkResolver(newClient(t, f.srv.URL)).Resolve(context.Background(), 5, core.ContentMovie)
	assert.Equal(t, core.OutcomeTransportError, out.Status)
	assert.Empty(t, out.Value.TrailerURL)
	assert.True(t, strings.HasSuffix(out.Value.DeepLinkURL, "/movie/5"))
}

func TestBearerTokenAuth(t *testing.T) {
	f := newFakeTMDB(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer eyJtoken", r.Header.Get("Authorization"))
		assert.Empty(t, r.URL.Query().Get("api_key"))
		_, _ = w.Write([]byte(`{"id":1,"results":{}}`))
	})
	hc := transport.New(transport.Config{Name: "tmdb"})
	c, err := New(Config{APIKey: "eyJtoken", BaseURL: f.srv.URL}, hc)
	require.NoError(t, err)
	_, err = c.WatchProviders(context.Background(), core.ContentMovie, 1)
	require.NoError(t, err)
}
