package config

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/rushteam/cinerank/core"
	"github.com/rushteam/cinerank/enrich"
	"github.com/rushteam/cinerank/filter"
	"github.com/rushteam/cinerank/pipeline"
	"github.com/rushteam/cinerank/pkg/conv"
	"github.com/rushteam/cinerank/pkg/logger"
	"github.com/rushteam/cinerank/rerank"
)

// DefaultPipelineYAML 是内置的富化流水线：
// 富化打分 → 按评分规则过滤 → Top-N。
const DefaultPipelineYAML = `
pipeline:
  name: cinerank.default
  nodes:
    - type: enrich.batch
    - type: filter
      config:
        filters:
          - type: user_block
    - type: rerank.topn
`

// Deps 是内置 Node 的外部依赖。
type Deps struct {
	Worker     *enrich.Worker
	BlockStore core.BlockStore
	Logger     *zap.Logger

	// EnrichDefaults 是 enrich.batch 的默认配置，流水线中的同名项优先
	EnrichDefaults map[string]any
}

// EnrichDefaults 把应用配置中的推荐参数转为 enrich.batch 的默认配置。
func EnrichDefaults(r RecommendSection) map[string]any {
	out := map[string]any{
		"policy":      r.Policy,
		"concurrency": r.Concurrency,
		"relaxed":     r.Relaxed,
	}
	if r.Rule != "" {
		out["rule"] = r.Rule
	}
	return out
}

// NewFactory 返回包含内置 Node 与 Register 注册的扩展 Node 的工厂。
func NewFactory(deps Deps) *pipeline.NodeFactory {
	log := logger.OrNop(deps.Logger)
	f := pipeline.NewNodeFactory()

	if deps.Worker != nil {
		build := enrich.NodeBuilder(deps.Worker, log)
		f.Register("enrich.batch", func(cfg map[string]any) (pipeline.Node, error) {
			return build(withDefaults(cfg, deps.EnrichDefaults))
		})
	}
	f.Register("filter", func(cfg map[string]any) (pipeline.Node, error) {
		return buildFilterNode(cfg, deps.BlockStore, log)
	})
	f.Register("rerank.topn", buildTopNNode)
	f.Register("rerank.diversity", buildDiversityNode)

	registerExtras(f)
	return f
}

// LoadPipeline 读取 path 指定的流水线配置，path 为空时使用 DefaultPipelineYAML。
func LoadPipeline(path string, f *pipeline.NodeFactory) (*pipeline.Pipeline, error) {
	var (
		pc  *pipeline.Config
		err error
	)
	if path == "" {
		pc, err = pipeline.ParseYAML([]byte(DefaultPipelineYAML))
	} else {
		var data []byte
		if data, err = os.ReadFile(path); err == nil {
			pc, err = pipeline.ParseYAML([]byte(os.ExpandEnv(string(data))))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("load pipeline: %w", err)
	}
	if err := ValidatePipelineConfig(f, pc); err != nil {
		return nil, err
	}
	return pc.BuildPipeline(f)
}

func buildFilterNode(cfg map[string]any, blocks core.BlockStore, log *zap.Logger) (pipeline.Node, error) {
	raw, ok := cfg["filters"].([]any)
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("filters not found or invalid")
	}
	filters := make([]filter.Filter, 0, len(raw))
	for _, fc := range raw {
		fm, ok := fc.(map[string]any)
		if !ok {
			continue
		}
		switch typ := conv.ConfigGet(fm, "type", ""); typ {
		case "exclusion":
			ids := conv.ConvertSlice(conv.ConfigGetInt64s(fm, "ids"), func(n int64) (core.ExternalID, bool) {
				return core.ExternalID(n), n > 0
			})
			filters = append(filters, filter.NewExclusionFilter(ids...))
		case "watched":
			filters = append(filters, filter.WatchedFilter{})
		case "availability":
			filters = append(filters, filter.AvailabilityFilter{})
		case "expr":
			f, err := filter.NewExprFilter(conv.ConfigGet(fm, "rule", ""))
			if err != nil {
				return nil, fmt.Errorf("expr filter: %w", err)
			}
			filters = append(filters, f)
		case "user_block":
			// 未配置存储时跳过，不影响其余过滤器
			if blocks == nil {
				log.Warn("user_block filter configured without a block store")
				continue
			}
			filters = append(filters, filter.NewUserBlockFilter(blocks))
		default:
			return nil, fmt.Errorf("unknown filter type: %s", typ)
		}
	}
	return &filter.FilterNode{Filters: filters, Logger: log}, nil
}

func buildTopNNode(cfg map[string]any) (pipeline.Node, error) {
	n := conv.ConfigGetInt64(cfg, "n", 0)
	if n < 0 {
		return nil, fmt.Errorf("rerank.topn: n must be >= 0, got %d", n)
	}
	return &rerank.TopNNode{N: int(n)}, nil
}

func withDefaults(cfg, defaults map[string]any) map[string]any {
	if len(defaults) == 0 {
		return cfg
	}
	out := make(map[string]any, len(cfg)+len(defaults))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range cfg {
		out[k] = v
	}
	return out
}

func buildDiversityNode(cfg map[string]any) (pipeline.Node, error) {
	by := conv.ConfigGet(cfg, "by", "service")
	switch {
	case by == "service", by == "decade", strings.HasPrefix(by, "label:"):
	default:
		return nil, fmt.Errorf("rerank.diversity: unknown grouping %q", by)
	}
	return &rerank.Diversity{By: by, MaxPerGroup: int(conv.ConfigGetInt64(cfg, "max_per_group", 1))}, nil
}
