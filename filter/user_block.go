package filter

import (
	"context"

	"github.com/rushteam/cinerank/core"
)

// UserBlockFilter 直接读取持久化的拉黑列表过滤。
// 用于没有经过 exclusion.Session 的调用方（如离线批量生成清单）。
type UserBlockFilter struct {
	Store core.BlockStore
}

// NewUserBlockFilter 创建一个用户拉黑过滤器。
func NewUserBlockFilter(store core.BlockStore) *UserBlockFilter {
	return &UserBlockFilter{Store: store}
}

func (f *UserBlockFilter) Name() string {
	return "filter.user_block"
}

// Bind 预取本次请求用户的拉黑集合。
func (f *UserBlockFilter) Bind(ctx context.Context, rctx *core.RequestContext) (Filter, error) {
	if f.Store == nil || rctx == nil || rctx.UserID == "" {
		return &boundBlocks{}, nil
	}
	blocked, err := f.Store.Blocked(ctx, rctx.UserID, rctx.ContentType)
	if err != nil {
		return nil, err
	}
	return &boundBlocks{blocked: blocked}, nil
}

// ShouldFilter 未经 Bind 时逐条查询存储。
func (f *UserBlockFilter) ShouldFilter(ctx context.Context, rctx *core.RequestContext, item *core.Item) (bool, error) {
	b, err := f.Bind(ctx, rctx)
	if err != nil {
		return false, err
	}
	return b.ShouldFilter(ctx, rctx, item)
}

type boundBlocks struct {
	blocked core.IDSet
}

func (b *boundBlocks) Name() string { return "filter.user_block" }

func (b *boundBlocks) ShouldFilter(_ context.Context, _ *core.RequestContext, item *core.Item) (bool, error) {
	return item != nil && b.blocked.Has(item.ID), nil
}
