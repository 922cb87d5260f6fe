// Package enrich 把检索得到的候选富化为可展示、可排序的 Item：
// 查询可用性并按订阅过滤，解析预告片与深链，计算混合分。
package enrich

import (
	"context"

	"go.uber.org/zap"

	"github.com/rushteam/cinerank/core"
	"github.com/rushteam/cinerank/filter"
	"github.com/rushteam/cinerank/pkg/logger"
	"github.com/rushteam/cinerank/pkg/metrics"
	"github.com/rushteam/cinerank/pkg/utils"
	"github.com/rushteam/cinerank/rank"
)

// AvailabilitySource 解析单个作品的可用渠道（如 tmdb.AvailabilityResolver）。
type AvailabilitySource interface {
	Resolve(ctx context.Context, id core.ExternalID, ct core.ContentType) core.Outcome[core.Availability]
}

// LinkSource 解析预告片与深链（如 tmdb.LinkResolver）。
type LinkSource interface {
	Resolve(ctx context.Context, id core.ExternalID, ct core.ContentType) core.Outcome[core.Links]
}

// Request 是一次批量富化共享的只读参数。
type Request struct {
	ContentType core.ContentType
	Services    core.ServiceFilter
	TieBreaker  rank.TieBreaker

	// Filters 在富化后、计入 limit 前执行，须已按请求绑定
	Filters []filter.Filter
	// RequestContext 透传给 Filters
	RequestContext *core.RequestContext
}

// Worker 处理单个候选，可被多个 goroutine 并发调用。
// Worker 只读取候选并创建新的 Item，不修改任何共享对象。
type Worker struct {
	Availability AvailabilitySource
	Links        LinkSource
	Weights      rank.Weights

	// Relaxed 宽松模式：订阅过滤为空且可用性查询没有结果时，仍接受候选（渠道为空）。
	// Availability 为空时等同于宽松模式。
	Relaxed bool

	Logger *zap.Logger
}

// NewWorker 使用默认权重创建 Worker。
func NewWorker(avail AvailabilitySource, links LinkSource, l *zap.Logger) *Worker {
	return &Worker{
		Availability: avail,
		Links:        links,
		Weights:      rank.DefaultWeights(),
		Logger:       l,
	}
}

// Enrich 富化单个候选。返回 false 表示候选被拒绝，这是正常结果而非错误。
func (w *Worker) Enrich(ctx context.Context, c core.Candidate, req Request) (*core.Item, bool) {
	log := logger.OrNop(w.Logger)
	it := core.NewItem(c)
	deepLink := ""

	if w.Availability != nil {
		out := w.Availability.Resolve(ctx, c.ID, req.ContentType)
		switch {
		case out.OK() && filter.AcceptAvailability(req.Services, out.Value):
			it.Flatrate = out.Value.Flatrate.Clone()
			it.Rent = out.Value.Rent.Clone()
			deepLink = out.Value.Link
			it.PutLabel("availability", utils.NewLabel(availabilityKind(it), "enrich"))
		case !out.OK() && w.Relaxed && req.Services.Empty():
			it.PutLabel("availability", utils.NewLabel("unknown", "enrich"))
		default:
			result := "rejected"
			if !out.OK() {
				result = out.Status.String()
				log.Debug("availability absent",
					zap.Int64("id", int64(c.ID)),
					zap.String("status", result),
					zap.Error(out.Err))
			}
			metrics.EnrichOutcomes.WithLabelValues(result).Inc()
			return nil, false
		}
	} else {
		it.PutLabel("availability", utils.NewLabel("unknown", "enrich"))
	}

	if w.Links != nil {
		// 链接是尽力而为：失败时 Value 仍可能带有兜底深链
		links := w.Links.Resolve(ctx, c.ID, req.ContentType)
		it.TrailerURL = links.Value.TrailerURL
		if deepLink == "" {
			deepLink = links.Value.DeepLinkURL
		}
	}
	if deepLink == "" {
		deepLink = core.TMDBPageURL(req.ContentType, c.ID)
	}
	it.DeepLinkURL = deepLink

	rank.NewHybridScorer(w.Weights, req.TieBreaker).ScoreItem(it)

	if reason := filter.Check(ctx, req.RequestContext, req.Filters, it, log); reason != "" {
		metrics.EnrichOutcomes.WithLabelValues("filtered").Inc()
		return nil, false
	}

	metrics.EnrichOutcomes.WithLabelValues("accepted").Inc()
	return it, true
}

func availabilityKind(it *core.Item) string {
	switch {
	case len(it.Flatrate) > 0 && len(it.Rent) > 0:
		return "flatrate,rent"
	case len(it.Flatrate) > 0:
		return "flatrate"
	case len(it.Rent) > 0:
		return "rent"
	default:
		return "none"
	}
}
