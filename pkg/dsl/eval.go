// Package dsl 提供基于 CEL (Common Expression Language) 的候选过滤表达式。
package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rushteam/embedrec/core"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once

	// programs 缓存已编译的表达式，key 为表达式原文
	programs sync.Map
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

// Program 是编译后的表达式，可被多个 goroutine 并发执行。
type Program struct {
	expr string
	prg  cel.Program
}

// Compile 编译表达式并缓存，相同表达式只编译一次。
//
// 可用变量：
//   - item.id / item.name / item.score / item.category_ids
//   - item.features.similarity / item.features.category_boost
//   - label.<key>：标签值（字符串）
//   - rctx.user_id / rctx.page_size / rctx.preferred / rctx.params
//
// 示例：
//   - `item.features.similarity > 0.2`
//   - `size(item.category_ids) > 0 && item.score >= 0.5`
//   - `item.id != 42`
func Compile(expr string) (*Program, error) {
	if cached, ok := programs.Load(expr); ok {
		return cached.(*Program), nil
	}

	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program error: %w", err)
	}

	p := &Program{expr: expr, prg: prg}
	actual, _ := programs.LoadOrStore(expr, p)
	return actual.(*Program), nil
}

func (p *Program) String() string { return p.expr }

// Match 对单个候选求值，表达式必须返回布尔值。
func (p *Program) Match(item *core.Item, rctx *core.RecommendContext) (bool, error) {
	out, _, err := p.prg.Eval(buildInput(item, rctx))
	if err != nil {
		// 访问不存在的 label key 会报错，应先用 "key" in label 判断
		return false, fmt.Errorf("eval error: %w", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression must return boolean, got %T", out.Value())
	}
	return result, nil
}

// Eval 绑定单个候选与请求上下文，便于对同一候选执行多个表达式。
type Eval struct {
	item *core.Item
	rctx *core.RecommendContext
}

func NewEval(item *core.Item, rctx *core.RecommendContext) *Eval {
	return &Eval{item: item, rctx: rctx}
}

// Evaluate 编译（命中缓存时跳过）并执行表达式。空表达式恒为 true。
func (e *Eval) Evaluate(expr string) (bool, error) {
	if expr == "" {
		return true, nil
	}
	p, err := Compile(expr)
	if err != nil {
		return false, err
	}
	return p.Match(e.item, e.rctx)
}

func buildInput(it *core.Item, rctx *core.RecommendContext) map[string]any {
	labels := make(map[string]any, len(it.Labels))
	for k, v := range it.Labels {
		labels[k] = v.Value
	}

	features := make(map[string]float64, len(it.Features))
	for k, v := range it.Features {
		features[k] = v
	}

	categoryIDs := it.CategoryIDs()
	if categoryIDs == nil {
		categoryIDs = []int64{}
	}
	name := ""
	if it.Catalog != nil {
		name = it.Catalog.Name
	}

	item := map[string]any{
		"id":           it.ID,
		"name":         name,
		"score":        it.Score,
		"features":     features,
		"category_ids": categoryIDs,
	}

	r := map[string]any{
		"user_id":   int64(0),
		"page_size": int64(0),
		"preferred": []int64{},
		"params":    map[string]any{},
	}
	if rctx != nil {
		r["user_id"] = rctx.UserID
		r["page_size"] = int64(rctx.PageSize)
		preferred := make([]int64, 0, len(rctx.Preferred))
		for id := range rctx.Preferred {
			preferred = append(preferred, id)
		}
		r["preferred"] = preferred
		if rctx.Params != nil {
			r["params"] = rctx.Params
		}
	}

	return map[string]any{
		"item":  item,
		"label": labels,
		"rctx":  r,
	}
}
