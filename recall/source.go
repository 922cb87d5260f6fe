package recall

import (
	"context"

	"github.com/rushteam/cinerank/core"
)

// Source 是一个候选检索源，返回的候选按相似度降序。
type Source interface {
	Name() string
	Recall(ctx context.Context, rctx *core.RequestContext) ([]core.Candidate, error)
}
