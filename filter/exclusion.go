package filter

import (
	"context"

	"github.com/rushteam/cinerank/core"
)

// ExclusionFilter 过滤本次请求排除集合中的作品，以及静态配置的 ID。
// 排除集合已在检索前传给上游，这里再兜底一次，保证结果与排除集合无交集。
type ExclusionFilter struct {
	IDs core.IDSet
}

// NewExclusionFilter 创建排除过滤器；ids 为额外的静态黑名单。
func NewExclusionFilter(ids ...core.ExternalID) *ExclusionFilter {
	return &ExclusionFilter{IDs: core.NewIDSet(ids...)}
}

func (f *ExclusionFilter) Name() string {
	return "filter.exclusion"
}

func (f *ExclusionFilter) ShouldFilter(_ context.Context, rctx *core.RequestContext, item *core.Item) (bool, error) {
	if item == nil {
		return true, nil
	}
	return f.IDs.Has(item.ID) || rctx.Excluded(item.ID), nil
}
