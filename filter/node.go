package filter

import (
	"context"

	"go.uber.org/zap"

	"github.com/rushteam/cinerank/core"
	"github.com/rushteam/cinerank/pipeline"
	"github.com/rushteam/cinerank/pkg/logger"
	"github.com/rushteam/cinerank/pkg/utils"
)

// FilterNode 组合多个过滤器；任何一个过滤器返回 true，该 Item 即被移除。
type FilterNode struct {
	Filters []Filter
	Logger  *zap.Logger
}

func (n *FilterNode) Name() string {
	return "filter.node"
}

func (n *FilterNode) Kind() pipeline.Kind {
	return pipeline.KindFilter
}

func (n *FilterNode) Process(
	ctx context.Context,
	rctx *core.RequestContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(n.Filters) == 0 || len(items) == 0 {
		return items, nil
	}
	log := logger.OrNop(n.Logger)

	filters := BindAll(ctx, rctx, n.Filters, log)
	out := make([]*core.Item, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}

		if reason := Check(ctx, rctx, filters, item, log); reason != "" {
			item.PutLabel("filtered", utils.NewLabel("true", reason))
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

// BindAll 为本次请求绑定需要预取数据的过滤器；预取失败的过滤器被跳过，不中断请求。
func BindAll(ctx context.Context, rctx *core.RequestContext, filters []Filter, log *zap.Logger) []Filter {
	log = logger.OrNop(log)
	out := make([]Filter, 0, len(filters))
	for _, f := range filters {
		if b, ok := f.(RequestBinder); ok {
			bound, err := b.Bind(ctx, rctx)
			if err != nil {
				log.Warn("filter bind failed", zap.String("filter", f.Name()), zap.Error(err))
				continue
			}
			f = bound
		}
		out = append(out, f)
	}
	return out
}

// Check 依次执行过滤器，返回第一个命中的过滤器名称；都未命中返回空串。
// 单个过滤器出错时视为未命中。
func Check(ctx context.Context, rctx *core.RequestContext, filters []Filter, item *core.Item, log *zap.Logger) string {
	for _, f := range filters {
		hit, err := f.ShouldFilter(ctx, rctx, item)
		if err != nil {
			logger.OrNop(log).Debug("filter error",
				zap.String("filter", f.Name()), zap.Int64("id", int64(item.ID)), zap.Error(err))
			continue
		}
		if hit {
			return f.Name()
		}
	}
	return ""
}
