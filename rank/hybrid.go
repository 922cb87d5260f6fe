// Package rank 提供混合打分：语义相似度、公开评分、热度与有界的打散项。
package rank

import (
	"encoding/binary"
	"math"
	"math/rand/v2"

	"github.com/cespare/xxhash/v2"

	"github.com/rushteam/cinerank/core"
	"github.com/rushteam/cinerank/pkg/utils"
)

// Weights 是混合打分的权重。Epsilon 是打散项的上界。
type Weights struct {
	Similarity float64 `yaml:"similarity"`
	Rating     float64 `yaml:"rating"`
	Popularity float64 `yaml:"popularity"`
	Epsilon    float64 `yaml:"epsilon"`
}

// DefaultWeights 返回默认权重：相似度主导，评分次之，热度只做轻微修正。
func DefaultWeights() Weights {
	return Weights{Similarity: 0.70, Rating: 0.20, Popularity: 0.05, Epsilon: 0.05}
}

// popularitySaturation 之上的热度不再加分
const popularitySaturation = 1000.0

// TieBreaker 为每个候选给出 [0,1) 的打散值。
// 同一实例对同一 ID 必须返回相同值，与调度顺序无关。
type TieBreaker interface {
	Jitter(id core.ExternalID) float64
}

// SeededTieBreaker 基于种子与 ID 的哈希生成打散值，固定种子即可复现排序。
type SeededTieBreaker struct {
	seed [8]byte
}

// NewSeededTieBreaker 以固定种子创建打散器，相同种子对同一 ID 总给出相同的值。
func NewSeededTieBreaker(seed uint64) *SeededTieBreaker {
	tb := &SeededTieBreaker{}
	binary.LittleEndian.PutUint64(tb.seed[:], seed)
	return tb
}

// NewRandomTieBreaker 使用随机种子，用于调用方没有给出种子的请求。
func NewRandomTieBreaker() *SeededTieBreaker {
	return NewSeededTieBreaker(rand.Uint64())
}

func (t *SeededTieBreaker) Jitter(id core.ExternalID) float64 {
	var buf [16]byte
	copy(buf[:8], t.seed[:])
	binary.LittleEndian.PutUint64(buf[8:], uint64(id))
	// 取高 53 位映射到 [0,1)
	return float64(xxhash.Sum64(buf[:])>>11) / (1 << 53)
}

// NoTieBreak 关闭打散。
type NoTieBreak struct{}

func (NoTieBreak) Jitter(core.ExternalID) float64 { return 0 }

// Breakdown 是一次打分的分项，写入 Label 用于解释。
type Breakdown struct {
	Similarity float64
	Rating     float64
	Popularity float64
	TieBreak   float64
	Total      float64
}

// HybridScorer 是纯函数式的打分器，可被多个 worker 并发使用。
type HybridScorer struct {
	Weights    Weights
	TieBreaker TieBreaker
}

// NewHybridScorer 创建打分器；tb 为 nil 时不打散。
func NewHybridScorer(w Weights, tb TieBreaker) *HybridScorer {
	if tb == nil {
		tb = NoTieBreak{}
	}
	return &HybridScorer{Weights: w, TieBreaker: tb}
}

// Score 返回候选的混合分。缺失或非法的评分/热度按 0 处理，不返回错误。
func (s *HybridScorer) Score(c core.Candidate) float64 {
	return s.Breakdown(c).Total
}

// Breakdown 返回分项与总分。
//
//	rating     = (voteAverage/10)^2
//	popularity = min(popularity/1000, 1)
//	total      = wSim*similarity + wRating*rating + wPop*popularity + ε*jitter
func (s *HybridScorer) Breakdown(c core.Candidate) Breakdown {
	sim := clamp(c.Similarity, 0, 1)
	vote := clamp(c.VoteAverage, 0, 10) / 10
	pop := math.Min(clamp(c.Popularity, 0, math.MaxFloat64)/popularitySaturation, 1)

	b := Breakdown{
		Similarity: s.Weights.Similarity * sim,
		Rating:     s.Weights.Rating * vote * vote,
		Popularity: s.Weights.Popularity * pop,
	}
	if s.TieBreaker != nil && s.Weights.Epsilon > 0 {
		b.TieBreak = s.Weights.Epsilon * clamp(s.TieBreaker.Jitter(c.ID), 0, 1)
	}
	b.Total = b.Similarity + b.Rating + b.Popularity + b.TieBreak
	return b
}

// ScoreItem 计算并写入 Item 的 HybridScore 与分项 Label。
func (s *HybridScorer) ScoreItem(it *core.Item) {
	b := s.Breakdown(it.Candidate)
	it.HybridScore = b.Total
	it.PutLabel("score_similarity", utils.FloatLabel(b.Similarity, "rank"))
	it.PutLabel("score_rating", utils.FloatLabel(b.Rating, "rank"))
	it.PutLabel("score_popularity", utils.FloatLabel(b.Popularity, "rank"))
	it.PutLabel("score_tiebreak", utils.FloatLabel(b.TieBreak, "rank"))
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(lo, math.Min(hi, v))
}
