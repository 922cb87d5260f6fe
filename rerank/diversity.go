package rerank

import (
	"context"
	"strconv"
	"strings"

	"github.com/rushteam/cinerank/core"
	"github.com/rushteam/cinerank/pipeline"
)

// Diversity 限制同一分组的作品数量，保留先出现（分数更高）的作品。
// 分组方式：
//   - "service": 首个订阅渠道（按名称排序），没有订阅渠道的不分组
//   - "decade":  上映年代，如 "1990s"
//   - "label:<key>": Item 上 Label 的值
//
// 放在 TopNNode 之前，被挤出的位置由后续作品补上。
type Diversity struct {
	By          string
	MaxPerGroup int // <= 0 时为 1
}

func (n *Diversity) Name() string {
	return "rerank.diversity"
}

func (n *Diversity) Kind() pipeline.Kind {
	return pipeline.KindReRank
}

func (n *Diversity) Process(
	_ context.Context,
	_ *core.RequestContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(items) == 0 {
		return items, nil
	}
	limit := n.MaxPerGroup
	if limit <= 0 {
		limit = 1
	}

	ordered := Select(items, 0)
	seen := make(map[string]int, 16)
	out := make([]*core.Item, 0, len(ordered))
	for _, it := range ordered {
		group := n.groupOf(it)
		if group == "" {
			out = append(out, it)
			continue
		}
		if seen[group] >= limit {
			continue
		}
		seen[group]++
		out = append(out, it)
	}
	return out, nil
}

func (n *Diversity) groupOf(it *core.Item) string {
	switch by := n.By; {
	case by == "" || by == "service":
		names := it.Flatrate.Names()
		if len(names) == 0 {
			return ""
		}
		return strings.ToLower(names[0])
	case by == "decade":
		if it.ReleaseYear <= 0 {
			return ""
		}
		return strconv.Itoa(it.ReleaseYear/10*10) + "s"
	case strings.HasPrefix(by, "label:"):
		return it.Labels[strings.TrimPrefix(by, "label:")].Value
	default:
		return ""
	}
}
