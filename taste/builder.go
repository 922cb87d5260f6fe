// Package taste 把观影历史（已看列表 + 评分）转换为口味画像。
package taste

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/cinerank/core"
	"github.com/rushteam/cinerank/pkg/logger"
)

// 评分分桶阈值（1-10 分）
const (
	LovedMin = 9 // >= 9 挚爱
	LikedMin = 7 // 7-8 喜欢
	HatedMax = 5 // <= 5 讨厌
)

// HistorySource 是观影历史的外部来源（如 Trakt）。
type HistorySource interface {
	Watched(ctx context.Context, username string, ct core.ContentType) ([]core.ExternalID, error)
	Ratings(ctx context.Context, username string, ct core.ContentType) ([]core.RatedTitle, error)
}

// Limits 是每个分桶保留的最大条数。
type Limits struct {
	Loved int `yaml:"loved"`
	Liked int `yaml:"liked"`
	Hated int `yaml:"hated"`
}

// DefaultLimits 返回默认分桶上限。
func DefaultLimits() Limits {
	return Limits{Loved: 10, Liked: 10, Hated: 5}
}

// Builder 构建口味画像。
type Builder struct {
	Source HistorySource
	Limits Limits
	Logger *zap.Logger
	Now    func() time.Time
}

// NewBuilder 使用默认上限创建 Builder。
func NewBuilder(src HistorySource, l *zap.Logger) *Builder {
	return &Builder{Source: src, Limits: DefaultLimits(), Logger: l, Now: time.Now}
}

// Build 并发拉取已看列表与评分，构建新的画像。
// 每次同步整体重建，不与旧画像合并。
func (b *Builder) Build(ctx context.Context, username string, ct core.ContentType) (*core.TasteProfile, error) {
	if username == "" {
		return nil, core.ErrInvalidRequest.Wrap(fmt.Errorf("username required"))
	}

	var (
		watched []core.ExternalID
		ratings []core.RatedTitle
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		watched, err = b.Source.Watched(gctx, username, ct)
		if err != nil {
			return fmt.Errorf("load watched: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		ratings, err = b.Source.Ratings(gctx, username, ct)
		if err != nil {
			return fmt.Errorf("load ratings: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	liked, disliked := Partition(ratings, b.Limits)
	p := &core.TasteProfile{
		Liked:    liked,
		Disliked: disliked,
		Watched:  core.NewIDSet(watched...),
		SyncedAt: b.now(),
	}
	logger.OrNop(b.Logger).Info("taste profile built",
		zap.String("user", username),
		zap.String("type", string(ct)),
		zap.Int("liked", len(p.Liked)),
		zap.Int("disliked", len(p.Disliked)),
		zap.Int("watched", len(p.Watched)))
	return p, nil
}

func (b *Builder) now() time.Time {
	if b.Now == nil {
		return time.Now()
	}
	return b.Now()
}

// Partition 按阈值把评分分桶并截断，保持来源顺序。
// Liked 是挚爱在前、喜欢在后；6 分既不算喜欢也不算讨厌。
func Partition(ratings []core.RatedTitle, limits Limits) (liked, disliked []core.RatedTitle) {
	var loved, fine, hated []core.RatedTitle
	for _, r := range ratings {
		switch {
		case r.Rating >= LovedMin:
			loved = appendBounded(loved, r, limits.Loved)
		case r.Rating >= LikedMin:
			fine = appendBounded(fine, r, limits.Liked)
		case r.Rating > 0 && r.Rating <= HatedMax:
			hated = appendBounded(hated, r, limits.Hated)
		}
	}
	liked = append(loved, fine...)
	return liked, hated
}

func appendBounded(s []core.RatedTitle, r core.RatedTitle, max int) []core.RatedTitle {
	if max > 0 && len(s) >= max {
		return s
	}
	return append(s, r)
}
