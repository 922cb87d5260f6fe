package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rushteam/cinerank/core"
	"github.com/rushteam/cinerank/pkg/logger"
)

// Pipeline 把推荐后半段（富化 → 过滤 → 重排）拆成可组合的 Node 链。
type Pipeline struct {
	Nodes  []Node
	Logger *zap.Logger
}

// Run 依次执行各 Node；任一 Node 返回错误即终止并带上 Node 名称。
func (p *Pipeline) Run(
	ctx context.Context,
	rctx *core.RequestContext,
	items []*core.Item,
) ([]*core.Item, error) {
	log := logger.OrNop(p.Logger)
	cur := items
	for _, node := range p.Nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		next, err := node.Process(ctx, rctx, cur)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", node.Name(), err)
		}
		log.Debug("node done",
			zap.String("node", node.Name()),
			zap.String("kind", string(node.Kind())),
			zap.Int("in", len(cur)),
			zap.Int("out", len(next)),
			zap.Duration("elapsed", time.Since(start)))
		cur = next
	}
	return cur, nil
}
