package filter

import (
	"context"

	"github.com/rushteam/cinerank/core"
)

// AcceptAvailability 是可用性过滤策略。
//   - 订阅过滤非空：订阅渠道与过滤集合有交集，或存在任意租赁渠道（租赁不按订阅名过滤）
//   - 订阅过滤为空：存在任意订阅或租赁渠道
func AcceptAvailability(services core.ServiceFilter, a core.Availability) bool {
	if !services.Empty() {
		return services.Matches(a.Flatrate) || len(a.Rent) > 0
	}
	return !a.Empty()
}

// AvailabilityFilter 对已富化的 Item 再应用一次可用性策略。
// 在宽松模式的富化之后使用，可把无渠道的候选重新收紧。
type AvailabilityFilter struct{}

func (AvailabilityFilter) Name() string {
	return "filter.availability"
}

func (AvailabilityFilter) ShouldFilter(_ context.Context, rctx *core.RequestContext, item *core.Item) (bool, error) {
	if item == nil {
		return true, nil
	}
	var services core.ServiceFilter
	if rctx != nil {
		services = rctx.Services
	}
	return !AcceptAvailability(services, core.Availability{Flatrate: item.Flatrate, Rent: item.Rent}), nil
}
