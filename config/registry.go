package config

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rushteam/cinerank/pipeline"
)

// NodeBuilder 与 pipeline.NodeBuilder 一致：根据 config 构建 Node。
type NodeBuilder = pipeline.NodeBuilder

var (
	extraBuilders   = make(map[string]NodeBuilder)
	extraBuildersMu sync.RWMutex
)

// Register 注册额外的 Node 类型，之后通过 NewFactory 创建的工厂都会包含它。
// 与内置类型同名时覆盖内置实现。
//
//	func init() { config.Register("rerank.shuffle", buildShuffleNode) }
func Register(typeName string, builder NodeBuilder) {
	if typeName == "" || builder == nil {
		return
	}
	extraBuildersMu.Lock()
	defer extraBuildersMu.Unlock()
	extraBuilders[typeName] = builder
}

// RegisteredTypes 返回通过 Register 注册的类型（排序）。
func RegisteredTypes() []string {
	extraBuildersMu.RLock()
	defer extraBuildersMu.RUnlock()
	types := make([]string, 0, len(extraBuilders))
	for t := range extraBuilders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func registerExtras(f *pipeline.NodeFactory) {
	extraBuildersMu.RLock()
	defer extraBuildersMu.RUnlock()
	for typeName, builder := range extraBuilders {
		f.Register(typeName, builder)
	}
}

// ValidatePipelineConfig 校验配置中的 node 类型均已在 factory 注册，
// 有未支持类型时返回包含已支持列表的错误。
func ValidatePipelineConfig(f *pipeline.NodeFactory, cfg *pipeline.Config) error {
	if cfg == nil {
		return nil
	}
	supported := f.Types()
	for _, nc := range cfg.Pipeline.Nodes {
		if nc.Type == "" {
			return fmt.Errorf("node without type in pipeline %q", cfg.Pipeline.Name)
		}
		i := sort.SearchStrings(supported, nc.Type)
		if i >= len(supported) || supported[i] != nc.Type {
			return fmt.Errorf("unsupported node type %q (supported: %v)", nc.Type, supported)
		}
	}
	return nil
}
