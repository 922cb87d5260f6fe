package filter

import (
	"context"

	"github.com/rushteam/cinerank/core"
)

// WatchedFilter 过滤口味画像中已看过的作品。
type WatchedFilter struct{}

func (WatchedFilter) Name() string {
	return "filter.watched"
}

func (WatchedFilter) ShouldFilter(_ context.Context, rctx *core.RequestContext, item *core.Item) (bool, error) {
	if item == nil || rctx == nil || rctx.Profile == nil {
		return false, nil
	}
	return rctx.Profile.Watched.Has(item.ID), nil
}
