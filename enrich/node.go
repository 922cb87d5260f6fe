package enrich

import (
	"context"

	"go.uber.org/zap"

	"github.com/rushteam/cinerank/core"
	"github.com/rushteam/cinerank/filter"
	"github.com/rushteam/cinerank/pipeline"
	"github.com/rushteam/cinerank/pkg/conv"
	"github.com/rushteam/cinerank/pkg/utils"
	"github.com/rushteam/cinerank/rank"
)

// BatchNode 是富化阶段的 Node：读取 rctx.Pool，输出排序后的 Item。
//
// Exhaustive 策略下不截断，交给后续的 rerank.TopNNode；
// EarlyStop 策略下以 rctx.Limit 作为提前停止的阈值。
// Filters 在 worker 内执行，被过滤的候选不计入 limit。
type BatchNode struct {
	Batch   *Batch
	Policy  Policy
	Filters []filter.Filter
}

func (n *BatchNode) Name() string        { return "enrich.batch" }
func (n *BatchNode) Kind() pipeline.Kind { return pipeline.KindEnrich }

func (n *BatchNode) Process(
	ctx context.Context,
	rctx *core.RequestContext,
	_ []*core.Item,
) ([]*core.Item, error) {
	if rctx == nil {
		return nil, core.ErrInvalidRequest
	}
	var tb rank.TieBreaker = rank.NewRandomTieBreaker()
	if rctx.Seed != 0 {
		tb = rank.NewSeededTieBreaker(rctx.Seed)
	}
	req := Request{
		ContentType:    rctx.ContentType,
		Services:       rctx.Services,
		TieBreaker:     tb,
		Filters:        filter.BindAll(ctx, rctx, n.Filters, n.Batch.Logger),
		RequestContext: rctx,
	}
	limit := 0
	if n.Policy == EarlyStop {
		limit = rctx.Limit
	}
	items, err := n.Batch.Run(ctx, rctx.Pool, req, limit, n.Policy)
	if err != nil {
		return nil, err
	}
	rctx.PutLabel("enrich_policy", utils.NewLabel(n.Policy.String(), "enrich"))
	return items, nil
}

// NodeBuilder 返回 "enrich.batch" 的构建器；worker 由调用方注入。
//
//	- type: enrich.batch
//	  config:
//	    policy: early_stop   # exhaustive | early_stop
//	    concurrency: 8
//	    relaxed: false
//	    rule: "item.vote_average >= 6.0"
func NodeBuilder(w *Worker, l *zap.Logger) pipeline.NodeBuilder {
	return func(cfg map[string]any) (pipeline.Node, error) {
		worker := *w
		worker.Relaxed = conv.ConfigGet[bool](cfg, "relaxed", w.Relaxed)
		node := &BatchNode{
			Batch:   NewBatch(&worker, int(conv.ConfigGetInt64(cfg, "concurrency", DefaultConcurrency)), l),
			Policy:  ParsePolicy(conv.ConfigGet[string](cfg, "policy", "exhaustive")),
			Filters: []filter.Filter{filter.NewExclusionFilter(), filter.WatchedFilter{}},
		}
		if rule := conv.ConfigGet[string](cfg, "rule", ""); rule != "" {
			f, err := filter.NewExprFilter(rule)
			if err != nil {
				return nil, err
			}
			node.Filters = append(node.Filters, f)
		}
		return node, nil
	}
}
