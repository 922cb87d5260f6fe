package rerank

import (
	"context"
	"slices"

	"github.com/rushteam/cinerank/core"
	"github.com/rushteam/cinerank/pipeline"
)

// Select 按 HybridScore 降序稳定排序并截断到 k。
// 同分时保持输入顺序；k <= 0 表示不截断；不足 k 个时全部返回。
// 返回新切片，不修改入参。
func Select(items []*core.Item, k int) []*core.Item {
	out := make([]*core.Item, 0, len(items))
	for _, it := range items {
		if it != nil {
			out = append(out, it)
		}
	}
	slices.SortStableFunc(out, func(a, b *core.Item) int {
		switch {
		case a.HybridScore > b.HybridScore:
			return -1
		case a.HybridScore < b.HybridScore:
			return 1
		default:
			return 0
		}
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

// TopNNode 是 Top-N 节点：排序后截取前 N 个。
// N <= 0 时使用 rctx.Limit；两者都未设置时只排序不截断。
//
// 示例：
//
//	p := &pipeline.Pipeline{
//	    Nodes: []pipeline.Node{
//	        &enrich.BatchNode{Batch: batch, Policy: enrich.Exhaustive},
//	        &rerank.Diversity{By: "service", MaxPerGroup: 3},
//	        &rerank.TopNNode{},
//	    },
//	}
type TopNNode struct {
	N int
}

func (n *TopNNode) Name() string {
	return "rerank.topn"
}

func (n *TopNNode) Kind() pipeline.Kind {
	return pipeline.KindReRank
}

func (n *TopNNode) Process(
	_ context.Context,
	rctx *core.RequestContext,
	items []*core.Item,
) ([]*core.Item, error) {
	k := n.N
	if k <= 0 && rctx != nil {
		k = rctx.Limit
	}
	return Select(items, k), nil
}
