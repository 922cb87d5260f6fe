package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rushteam/cinerank/core"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once
)

func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("item", cel.DynType),
			cel.Variable("label", cel.DynType),
			cel.Variable("rctx", cel.DynType),
		)
	})
	return celEnv, celEnvErr
}

// Program 是编译后的 Label DSL 表达式，使用 CEL (Common Expression Language) 实现。
// 编译一次，可被多个 goroutine 并发求值。
//
// 可用变量：
//   - item.id / item.title / item.similarity / item.vote_average / item.popularity
//   - item.release_year / item.score / item.flatrate / item.rent / item.has_trailer
//   - label.<key>：Label 的 Value（不存在时为 null）
//   - rctx.user_id / rctx.content_type / rctx.services / rctx.limit / rctx.params
//
// 示例：
//   - `item.vote_average >= 6.0 && item.release_year >= 1990`
//   - `"Netflix" in item.flatrate || size(item.rent) > 0`
//   - `label.availability != null`
type Program struct {
	expr string
	prg  cel.Program
}

// Compile 编译表达式；表达式必须返回布尔值。
func Compile(expr string) (*Program, error) {
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	if t := ast.OutputType(); t != cel.BoolType && t != cel.DynType {
		return nil, fmt.Errorf("expression must return boolean, got %s", t)
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program error: %w", err)
	}
	return &Program{expr: expr, prg: prg}, nil
}

// String 返回原始表达式。
func (p *Program) String() string { return p.expr }

// Eval 对单个 Item 求值。
func (p *Program) Eval(item *core.Item, rctx *core.RequestContext) (bool, error) {
	out, _, err := p.prg.Eval(buildInput(item, rctx))
	if err != nil {
		// 访问不存在的 key 会报错，应使用 label.key != null 判断存在性
		return false, fmt.Errorf("eval error: %w", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression must return boolean, got %T", out.Value())
	}
	return result, nil
}

// Evaluate 编译并求值，便于一次性调用；表达式为空时返回 true。
func Evaluate(expr string, item *core.Item, rctx *core.RequestContext) (bool, error) {
	if expr == "" {
		return true, nil
	}
	p, err := Compile(expr)
	if err != nil {
		return false, err
	}
	return p.Eval(item, rctx)
}

func buildInput(it *core.Item, rctx *core.RequestContext) map[string]any {
	labels := make(map[string]any, len(it.Labels))
	for k, v := range it.Labels {
		labels[k] = v.Value
	}

	item := map[string]any{
		"id":           int64(it.ID),
		"title":        it.Title,
		"similarity":   it.Similarity,
		"vote_average": it.VoteAverage,
		"popularity":   it.Popularity,
		"release_year": int64(it.ReleaseYear),
		"score":        it.HybridScore,
		"flatrate":     it.Flatrate.Names(),
		"rent":         it.Rent.Names(),
		"has_trailer":  it.TrailerURL != "",
	}

	req := map[string]any{}
	if rctx != nil {
		services := make([]string, 0, len(rctx.Services))
		for s := range rctx.Services {
			services = append(services, s)
		}
		params := rctx.Params
		if params == nil {
			params = map[string]any{}
		}
		req = map[string]any{
			"user_id":      rctx.UserID,
			"content_type": string(rctx.ContentType),
			"services":     services,
			"limit":        int64(rctx.Limit),
			"params":       params,
		}
	}

	return map[string]any{
		"item":  item,
		"label": labels,
		"rctx":  req,
	}
}
