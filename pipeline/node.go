package pipeline

import (
	"context"

	"github.com/rushteam/cinerank/core"
)

// Kind 用于标记 Node 所处的阶段，便于按阶段打点与编排。
type Kind string

const (
	KindRecall Kind = "recall" // 检索：生成候选池
	KindEnrich Kind = "enrich" // 富化：可用性、链接、打分
	KindFilter Kind = "filter" // 过滤：剔除不满足约束的候选
	KindReRank Kind = "rerank" // 重排：排序与截断
)

// Node 是 Pipeline 的最小可扩展单元，统一为“输入 items -> 输出 items”。
// 检索后的候选池通过 rctx.Pool 传入，富化 Node 负责把它变成 Item。
type Node interface {
	Name() string
	Kind() Kind

	Process(
		ctx context.Context,
		rctx *core.RequestContext,
		items []*core.Item,
	) ([]*core.Item, error)
}
