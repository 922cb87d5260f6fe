// Package engine 串起一次推荐请求：合并排除集合 → 向量检索 → 富化流水线 → Top-K。
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/rushteam/cinerank/core"
	"github.com/rushteam/cinerank/exclusion"
	"github.com/rushteam/cinerank/pipeline"
	"github.com/rushteam/cinerank/pkg/logger"
	"github.com/rushteam/cinerank/pkg/metrics"
	"github.com/rushteam/cinerank/recall"
)

// Request 是检索侧的输入；用户、类型、订阅过滤与 limit 在 RequestContext 中。
//
// 查询向量的来源依次为：Vector、Query 经 Embedder、画像文本经 Embedder。
type Request struct {
	Vector []float32
	Query  string

	// Session 提供会话内忽略与已看列表；为空时只读取持久化的拉黑列表
	Session *exclusion.Session
}

// Result 是一次推荐的结果。
type Result struct {
	RequestID string
	Items     []*core.Item
	// Requested 是请求的数量，PoolSize 是检索返回（剔除排除项后）的候选数
	Requested int
	PoolSize  int
	Policy    string
}

// Shortfall 返回结果比请求少的数量；不足不是错误。
func (r *Result) Shortfall() int {
	if r == nil {
		return 0
	}
	return max(r.Requested-len(r.Items), 0)
}

// Engine 是推荐入口。Pipeline 负责检索之后的阶段（富化、过滤、Top-K）。
type Engine struct {
	Recall     *recall.VectorRecall
	Pipeline   *pipeline.Pipeline
	Exclusions *exclusion.Manager
	Embedder   core.Embedder
	Config     core.RecommendConfig
	Logger     *zap.Logger

	// Seed 为每个请求生成打散种子；为空时使用随机种子
	Seed func() uint64
}

// New 创建 Engine。
func New(r *recall.VectorRecall, p *pipeline.Pipeline, ex *exclusion.Manager, l *zap.Logger) *Engine {
	return &Engine{
		Recall:     r,
		Pipeline:   p,
		Exclusions: ex,
		Config:     &core.DefaultRecommendConfig{},
		Logger:     l,
	}
}

// Recommend 执行一次推荐。
//
// 错误：
//   - core.ErrInvalidRequest：缺少内容类型或查询向量
//   - core.ErrSearchUnavailable：上游检索失败，提示稍后重试
//   - core.ErrNoCandidates：检索没有返回任何候选，提示放宽条件
//
// 检索有候选但全部被过滤时返回空结果与 nil 错误。
func (e *Engine) Recommend(ctx context.Context, rctx *core.RequestContext, req Request) (*Result, error) {
	log := logger.OrNop(e.Logger)
	start := time.Now()

	res, err := e.recommend(ctx, rctx, req)
	result := "ok"
	switch {
	case errors.Is(err, core.ErrNoCandidates):
		result = "no_candidates"
	case errors.Is(err, core.ErrSearchUnavailable):
		result = "search_unavailable"
	case errors.Is(err, core.ErrInvalidRequest):
		result = "invalid"
	case err != nil:
		result = "error"
	case res.Shortfall() > 0:
		result = "shortfall"
	}
	metrics.Requests.WithLabelValues(result).Inc()

	if err != nil {
		log.Warn("recommend failed", zap.String("result", result), zap.Error(err))
		return nil, err
	}
	log.Info("recommend done",
		zap.String("request_id", res.RequestID),
		zap.String("user_id", rctx.UserID),
		zap.String("type", string(rctx.ContentType)),
		zap.Int("requested", res.Requested),
		zap.Int("pool", res.PoolSize),
		zap.Int("returned", len(res.Items)),
		zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

func (e *Engine) recommend(ctx context.Context, rctx *core.RequestContext, req Request) (*Result, error) {
	if rctx == nil || !rctx.ContentType.Valid() {
		return nil, core.ErrInvalidRequest.Wrap(errors.New("content type must be movie or tv"))
	}
	if e.Recall == nil || e.Pipeline == nil {
		return nil, errors.New("engine: recall and pipeline required")
	}
	cfg := e.Config
	if cfg == nil {
		cfg = &core.DefaultRecommendConfig{}
	}
	if rctx.Limit <= 0 {
		rctx.Limit = cfg.DefaultLimit()
	}
	if rctx.Seed == 0 {
		rctx.Seed = e.seed()
	}

	excluded, err := e.exclusions(ctx, rctx, req)
	if err != nil {
		return nil, err
	}
	rctx.Exclusions = excluded

	vec, err := e.queryVector(ctx, rctx, req)
	if err != nil {
		return nil, err
	}
	if rctx.Params == nil {
		rctx.Params = make(map[string]any)
	}
	rctx.Params[recall.ParamQueryVector] = vec

	pool, err := e.Recall.Recall(ctx, rctx)
	if err != nil {
		if errors.Is(err, core.ErrInvalidRequest) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, core.ErrSearchUnavailable.Wrap(err)
	}
	if len(pool) == 0 {
		return nil, core.ErrNoCandidates
	}
	rctx.Pool = pool

	items, err := e.Pipeline.Run(ctx, rctx, nil)
	if err != nil {
		return nil, err
	}
	// 结果与排除集合不相交
	out := items[:0]
	for _, it := range items {
		if it != nil && !rctx.Excluded(it.ID) {
			out = append(out, it)
		}
	}
	if len(out) > rctx.Limit {
		out = out[:rctx.Limit]
	}

	res := &Result{
		RequestID: rctx.RequestID,
		Items:     out,
		Requested: rctx.Limit,
		PoolSize:  len(pool),
	}
	if lbl, ok := rctx.Labels["enrich_policy"]; ok {
		res.Policy = lbl.Value
	}
	return res, nil
}

// exclusions 返回 (拉黑 ∪ 已看) ∪ 会话忽略 ∪ 调用方已给出的排除项。
func (e *Engine) exclusions(ctx context.Context, rctx *core.RequestContext, req Request) (core.IDSet, error) {
	permanent := core.NewIDSet()
	switch {
	case req.Session != nil:
		s, err := req.Session.Exclusions(ctx, rctx.ContentType)
		if err != nil {
			return nil, core.ErrSearchUnavailable.Wrap(err)
		}
		permanent = s
	case e.Exclusions != nil && rctx.UserID != "":
		s, err := e.Exclusions.Permanent(ctx, rctx.UserID, rctx.ContentType)
		if err != nil {
			return nil, core.ErrSearchUnavailable.Wrap(err)
		}
		permanent = s
	}
	if rctx.Profile != nil {
		permanent = exclusion.Merge(permanent, rctx.Profile.Watched)
	}
	return exclusion.Merge(permanent, rctx.Exclusions), nil
}

func (e *Engine) queryVector(ctx context.Context, rctx *core.RequestContext, req Request) ([]float32, error) {
	if len(req.Vector) > 0 {
		return req.Vector, nil
	}
	text := req.Query
	if text == "" && !rctx.Profile.Empty() {
		text = rctx.Profile.Text()
	}
	if text == "" || e.Embedder == nil {
		return nil, core.ErrInvalidRequest.Wrap(errors.New("query vector or text required"))
	}
	vec, err := e.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, core.ErrSearchUnavailable.Wrap(fmt.Errorf("embed query: %w", err))
	}
	return vec, nil
}

func (e *Engine) seed() uint64 {
	if e.Seed != nil {
		return e.Seed()
	}
	return rand.Uint64()
}
