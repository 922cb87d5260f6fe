package rank

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/cinerank/core"
)

func TestSimilarityDominatesRating(t *testing.T) {
	s := NewHybridScorer(DefaultWeights(), nil)
	a := core.Candidate{ID: 1, Similarity: 0.9, VoteAverage: 5, Popularity: 10}
	b := core.Candidate{ID: 2, Similarity: 0.6, VoteAverage: 9.5, Popularity: 900}

	sa, sb := s.Score(a), s.Score(b)
	assert.InDelta(t, 0.6805, sa, 1e-4)
	assert.InDelta(t, 0.6455, sb, 1e-4)
	assert.Greater(t, sa, sb)
}

func TestMissingSignalsCountAsZero(t *testing.T) {
	s := NewHybridScorer(DefaultWeights(), nil)
	got := s.Score(core.Candidate{ID: 1, Similarity: 0.5, VoteAverage: math.NaN(), Popularity: -3})
	assert.InDelta(t, 0.35, got, 1e-9)
}

func TestScoreWithinBounds(t *testing.T) {
	w := DefaultWeights()
	s := NewHybridScorer(w, NewSeededTieBreaker(42))
	inputs := []core.Candidate{
		{ID: 1},
		{ID: 2, Similarity: 1, VoteAverage: 10, Popularity: 1e9},
		{ID: 3, Similarity: 7, VoteAverage: 42, Popularity: math.Inf(1)},
		{ID: 4, Similarity: -1, VoteAverage: -5, Popularity: math.NaN()},
	}
	for _, c := range inputs {
		got := s.Score(c)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, 1+w.Epsilon)
	}
}

func TestScoreMonotonicInSimilarity(t *testing.T) {
	s := NewHybridScorer(DefaultWeights(), NewSeededTieBreaker(7))
	prev := -1.0
	for i := 0; i <= 20; i++ {
		c := core.Candidate{ID: 99, Similarity: float64(i) / 20, VoteAverage: 7.1, Popularity: 120}
		got := s.Score(c)
		assert.GreaterOrEqual(t, got, prev)
		prev = got
	}
}

func TestTieBreakIsBoundedAndStable(t *testing.T) {
	tb := NewSeededTieBreaker(1234)
	for id := core.ExternalID(1); id < 500; id++ {
		j := tb.Jitter(id)
		require.GreaterOrEqual(t, j, 0.0)
		require.Less(t, j, 1.0)
		assert.Equal(t, j, tb.Jitter(id))
	}
	assert.Equal(t, NewSeededTieBreaker(1234).Jitter(603), tb.Jitter(603))
	assert.NotEqual(t, NewSeededTieBreaker(4321).Jitter(603), tb.Jitter(603))
}

func TestRandomTieBreakerIsBoundedAndStablePerInstance(t *testing.T) {
	tb := NewRandomTieBreaker()
	for id := core.ExternalID(1); id < 100; id++ {
		j := tb.Jitter(id)
		require.GreaterOrEqual(t, j, 0.0)
		require.Less(t, j, 1.0)
		assert.Equal(t, j, tb.Jitter(id))
	}
}

func TestScoreItemWritesBreakdown(t *testing.T) {
	s := NewHybridScorer(DefaultWeights(), nil)
	it := core.NewItem(core.Candidate{ID: 1, Similarity: 0.9, VoteAverage: 5, Popularity: 10})
	s.ScoreItem(it)

	assert.InDelta(t, 0.6805, it.HybridScore, 1e-4)
	assert.Equal(t, "0.6300", it.Labels["score_similarity"].Value)
	assert.Equal(t, "0.0500", it.Labels["score_rating"].Value)
	assert.Equal(t, "0.0000", it.Labels["score_tiebreak"].Value)
}
