package filter

import (
	"context"

	"github.com/rushteam/embedrec/core"
	"github.com/rushteam/embedrec/pkg/dsl"
)

// ExprFilter 只保留满足 CEL 表达式的候选（keep 语义：表达式为 false 时剔除）。
// 一般放在排序之后，可以引用 item.score 与 item.features。
type ExprFilter struct {
	program *dsl.Program
}

// NewExprFilter 编译表达式；表达式非法时返回错误。
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

func (f *ExprFilter) Expr() string {
	return f.program.String()
}

func (f *ExprFilter) ShouldFilter(_ context.Context, rctx *core.RecommendContext, item *core.Item) (bool, error) {
	keep, err := f.program.Match(item, rctx)
	if err != nil {
		return false, err
	}
	return !keep, nil
}
