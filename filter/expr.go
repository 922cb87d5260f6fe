package filter

import (
	"context"

	"github.com/rushteam/cinerank/core"
	"github.com/rushteam/cinerank/pkg/dsl"
)

// ExprFilter 使用 CEL 表达式过滤：表达式为 true 的 Item 保留。
//
//	item.vote_average >= 6.0 && item.release_year >= 1990
type ExprFilter struct {
	program *dsl.Program
}

// NewExprFilter 编译表达式。
func NewExprFilter(expr string) (*ExprFilter, error) {
	p, err := dsl.Compile(expr)
	if err != nil {
		return nil, err
	}
	return &ExprFilter{program: p}, nil
}

func (f *ExprFilter) Name() string {
	return "filter.expr"
}

func (f *ExprFilter) ShouldFilter(_ context.Context, rctx *core.RequestContext, item *core.Item) (bool, error) {
	if item == nil {
		return true, nil
	}
	keep, err := f.program.Eval(item, rctx)
	if err != nil {
		return false, err
	}
	return !keep, nil
}
