package trakt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/cinerank/core"
	"github.com/rushteam/cinerank/transport"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{ClientID: "cid", BaseURL: srv.URL}, transport.New(transport.Config{Name: "trakt"}))
	require.NoError(t, err)
	return c
}

func TestWatchedSendsHeadersAndSkipsMissingIDs(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/neo/watched/movies", r.URL.Path)
		assert.Equal(t, "2", r.Header.Get("trakt-api-version"))
		assert.Equal(t, "cid", r.Header.Get("trakt-api-key"))
		_, _ = w.Write([]byte(`[
			{"plays": 3, "movie": {"title": "The Matrix", "ids": {"trakt": 1, "tmdb": 603}}},
			{"plays": 1, "movie": {"title": "Obscure", "ids": {"trakt": 2}}}
		]`))
	})
	got, err := c.Watched(context.Background(), "neo", core.ContentMovie)
	require.NoError(t, err)
	assert.Equal(t, []core.ExternalID{603}, got)
}

func TestRatingsForShows(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/neo/ratings/shows", r.URL.Path)
		_, _ = w.Write([]byte(`[
			{"rating": 10, "type": "show", "show": {"title": "Dark", "ids": {"tmdb": 70523}}},
			{"rating": 4, "type": "show", "show": {"title": "", "ids": {"tmdb": 1}}}
		]`))
	})
	got, err := c.Ratings(context.Background(), "neo", core.ContentTV)
	require.NoError(t, err)
	assert.Equal(t, []core.RatedTitle{{Title: "Dark", Rating: 10, ID: 70523}}, got)
}

func TestPrivateProfileIsAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	_, err := c.Ratings(context.Background(), "neo", core.ContentMovie)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}
