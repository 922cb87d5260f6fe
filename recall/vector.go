package recall

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rushteam/cinerank/core"
	"github.com/rushteam/cinerank/pkg/logger"
)

// 默认检索参数
const (
	DefaultThreshold = 0.40
	DefaultOverFetch = 8
	minPoolSize      = 20

	// ParamQueryVector 是 rctx.Params 中查询向量（[]float32）的键
	ParamQueryVector = "query_vector"
)

// QueryVector 是默认的向量提取方式：读取 rctx.Params[ParamQueryVector]。
func QueryVector(rctx *core.RequestContext) []float32 {
	if rctx == nil {
		return nil
	}
	v, _ := rctx.Params[ParamQueryVector].([]float32)
	return v
}

// VectorRecall 是向量检索召回源：按请求的查询向量检索，过量拉取以抵消可用性过滤的损耗，
// 并把排除集合交给上游预过滤。
type VectorRecall struct {
	Searcher  core.CandidateSearcher
	Threshold float64
	// OverFetch 是检索数量相对 Limit 的倍数
	OverFetch int
	Logger    *zap.Logger

	// VectorExtractor 从请求中提取查询向量，为空时使用 QueryVector
	VectorExtractor func(rctx *core.RequestContext) []float32
}

var _ Source = (*VectorRecall)(nil)

func (r *VectorRecall) Name() string { return "recall.vector" }

// PoolSize 返回给定 limit 下的检索数量。
func (r *VectorRecall) PoolSize(limit int) int {
	over := r.OverFetch
	if over <= 0 {
		over = DefaultOverFetch
	}
	return max(limit*over, minPoolSize)
}

// Recall 执行检索；没有查询向量时返回 core.ErrInvalidRequest。
// 返回的候选已剔除排除集合中的 ID（上游未生效时兜底）。
func (r *VectorRecall) Recall(ctx context.Context, rctx *core.RequestContext) ([]core.Candidate, error) {
	if r.Searcher == nil {
		return nil, fmt.Errorf("recall.vector: searcher not configured")
	}
	extract := r.VectorExtractor
	if extract == nil {
		extract = QueryVector
	}
	vec := extract(rctx)
	if len(vec) == 0 {
		return nil, core.ErrInvalidRequest.Wrap(fmt.Errorf("query vector required"))
	}

	threshold := r.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	q := core.SearchQuery{
		ContentType: rctx.ContentType,
		Vector:      vec,
		Threshold:   threshold,
		MaxResults:  r.PoolSize(rctx.Limit),
		ExcludeIDs:  rctx.Exclusions,
	}
	found, err := r.Searcher.Search(ctx, q)
	if err != nil {
		return nil, err
	}

	out := make([]core.Candidate, 0, len(found))
	seen := make(core.IDSet, len(found))
	dropped := 0
	for _, c := range found {
		if rctx.Excluded(c.ID) || seen.Has(c.ID) {
			dropped++
			continue
		}
		seen.Add(c.ID)
		out = append(out, c)
	}
	logger.OrNop(r.Logger).Debug("vector recall",
		zap.String("request_id", rctx.RequestID),
		zap.Int("requested", q.MaxResults),
		zap.Int("returned", len(found)),
		zap.Int("dropped", dropped))
	return out, nil
}
