package taste

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/cinerank/core"
)

type fakeHistory struct {
	watched    []core.ExternalID
	ratings    []core.RatedTitle
	watchedErr error
}

func (f *fakeHistory) Watched(context.Context, string, core.ContentType) ([]core.ExternalID, error) {
	return f.watched, f.watchedErr
}

func (f *fakeHistory) Ratings(context.Context, string, core.ContentType) ([]core.RatedTitle, error) {
	return f.ratings, nil
}

func rated(title string, rating int) core.RatedTitle {
	return core.RatedTitle{Title: title, Rating: rating}
}

func TestPartitionThresholds(t *testing.T) {
	liked, disliked := Partition([]core.RatedTitle{
		rated("liked-a", 7),
		rated("loved-a", 10),
		rated("meh", 6),
		rated("hated-a", 5),
		rated("liked-b", 8),
		rated("loved-b", 9),
		rated("hated-b", 1),
		rated("unrated", 0),
	}, DefaultLimits())

	titles := func(ts []core.RatedTitle) []string {
		out := make([]string, 0, len(ts))
		for _, t := range ts {
			out = append(out, t.Title)
		}
		return out
	}
	assert.Equal(t, []string{"loved-a", "loved-b", "liked-a", "liked-b"}, titles(liked))
	assert.Equal(t, []string{"hated-a", "hated-b"}, titles(disliked))
}

func TestPartitionTrimsEachBucket(t *testing.T) {
	var ratings []core.RatedTitle
	for i := 0; i < 20; i++ {
		ratings = append(ratings, rated(fmt.Sprintf("loved-%d", i), 10), rated(fmt.Sprintf("hated-%d", i), 2))
	}
	liked, disliked := Partition(ratings, Limits{Loved: 3, Liked: 3, Hated: 2})
	require.Len(t, liked, 3)
	require.Len(t, disliked, 2)
	assert.Equal(t, "loved-0", liked[0].Title)
	assert.Equal(t, "hated-1", disliked[1].Title)
}

func TestBuild(t *testing.T) {
	now := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	b := NewBuilder(&fakeHistory{
		watched: []core.ExternalID{603, 550},
		ratings: []core.RatedTitle{rated("The Matrix", 10), rated("Cats", 2)},
	}, nil)
	b.Now = func() time.Time { return now }

	p, err := b.Build(context.Background(), "neo", core.ContentMovie)
	require.NoError(t, err)
	assert.Equal(t, core.NewIDSet(603, 550), p.Watched)
	assert.Equal(t, "Liked: The Matrix. Disliked: Cats.", p.Text())
	assert.Equal(t, now, p.SyncedAt)
}

func TestBuildPropagatesSourceError(t *testing.T) {
	b := NewBuilder(&fakeHistory{watchedErr: errors.New("trakt down")}, nil)
	_, err := b.Build(context.Background(), "neo", core.ContentMovie)
	require.ErrorContains(t, err, "trakt down")
}

func TestBuildRequiresUsername(t *testing.T) {
	_, err := NewBuilder(&fakeHistory{}, nil).Build(context.Background(), "", core.ContentMovie)
	require.ErrorIs(t, err, core.ErrInvalidRequest)
}
