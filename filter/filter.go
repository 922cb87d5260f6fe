package filter

import (
	"context"

	"github.com/rushteam/cinerank/core"
)

// Filter 判断一个富化后的 Item 是否应该被过滤掉。
// 返回 true 表示应该过滤（移除），false 表示保留。
type Filter interface {
	// Name 返回过滤器名称
	Name() string

	// ShouldFilter 判断 item 是否应该被过滤
	ShouldFilter(ctx context.Context, rctx *core.RequestContext, item *core.Item) (bool, error)
}

// RequestBinder 由需要按请求预取数据的过滤器实现。
// FilterNode 在遍历前调用一次 Bind，用返回的过滤器处理本次请求的全部 Item。
type RequestBinder interface {
	Bind(ctx context.Context, rctx *core.RequestContext) (Filter, error)
}
