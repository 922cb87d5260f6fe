package enrich

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/cinerank/core"
	"github.com/rushteam/cinerank/pkg/logger"
	"github.com/rushteam/cinerank/pkg/metrics"
	"github.com/rushteam/cinerank/rerank"
)

// Policy 是批量富化的终止策略，由调用方按场景显式选择。
type Policy int

const (
	// Exhaustive 等待全部候选完成后排序截断；候选与过滤条件相同时结果集合确定。
	Exhaustive Policy = iota
	// EarlyStop 一旦接受的候选达到 limit 立即返回，放弃未完成的工作。
	// 用完整性与确定性换延迟：网络时序不同，入选的同等候选可能不同。
	EarlyStop
)

func (p Policy) String() string {
	if p == EarlyStop {
		return "early_stop"
	}
	return "exhaustive"
}

// ParsePolicy 解析配置中的策略名，未知值返回 Exhaustive。
func ParsePolicy(s string) Policy {
	if s == "early_stop" || s == "earlystop" {
		return EarlyStop
	}
	return Exhaustive
}

// DefaultConcurrency 是默认的并发富化数，受第三方限流约束。
const DefaultConcurrency = 8

// Batch 把候选池分发到有界的 worker 池。
// 这是推荐链路中唯一引入并发的地方。
type Batch struct {
	Worker      *Worker
	Concurrency int
	Logger      *zap.Logger
}

// NewBatch 创建 Batch；concurrency <= 0 时使用默认值。
func NewBatch(w *Worker, concurrency int, l *zap.Logger) *Batch {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Batch{Worker: w, Concurrency: concurrency, Logger: l}
}

// Run 富化候选池，返回按 HybridScore 降序、长度不超过 limit 的结果（limit <= 0 不截断）。
// 被拒绝的候选不计入 limit，也不作为错误返回。
// 只有调用方的 ctx 结束时才返回错误，此时仍返回已接受的部分结果。
func (b *Batch) Run(ctx context.Context, candidates []core.Candidate, req Request, limit int, policy Policy) ([]*core.Item, error) {
	start := time.Now()
	defer func() {
		metrics.BatchDuration.WithLabelValues(policy.String()).Observe(time.Since(start).Seconds())
	}()
	if len(candidates) == 0 {
		return []*core.Item{}, nil
	}

	concurrency := b.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		stopped atomic.Bool
		g       errgroup.Group
		// 容量等于候选数：被放弃的 worker 写入结果时永远不会阻塞
		results = make(chan *core.Item, len(candidates))
	)
	g.SetLimit(concurrency)

	go func() {
		defer close(results)
		for _, c := range candidates {
			if stopped.Load() || runCtx.Err() != nil {
				break
			}
			g.Go(func() error {
				if stopped.Load() || runCtx.Err() != nil {
					metrics.EnrichOutcomes.WithLabelValues("abandoned").Inc()
					return nil
				}
				if it, ok := b.Worker.Enrich(runCtx, c, req); ok {
					results <- it
				}
				return nil
			})
		}
		_ = g.Wait()
	}()

	earlyStop := policy == EarlyStop && limit > 0
	accepted := make([]*core.Item, 0, min(len(candidates), max(limit, 0)+1))
	for it := range results {
		accepted = append(accepted, it)
		if earlyStop && len(accepted) >= limit {
			// 不再等待未完成的 worker，它们的结果写入缓冲通道后被丢弃
			stopped.Store(true)
			cancel()
			break
		}
	}

	out := rerank.Select(accepted, limit)
	logger.OrNop(b.Logger).Debug("batch done",
		zap.String("policy", policy.String()),
		zap.Int("candidates", len(candidates)),
		zap.Int("accepted", len(accepted)),
		zap.Int("returned", len(out)),
		zap.Duration("elapsed", time.Since(start)))
	return out, ctx.Err()
}
