// internal/service/ledger/infrastructure/cel_policy.go
package infrastructure

import (
	"fmt"
	"strings"

	"chowfast/internal/service/ledger/domain"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
)

// CELTransitionPolicy 用一条 CEL 表达式约束管理员的状态流转。
// 表达式可以使用 current、next 两个整数变量，以及 Pending..Cancelled 常量，例如：
//
//	next > current || next == Cancelled
//
// 空表达式表示不做限制。
type CELTransitionPolicy struct {
	expr string
	prg  cel.Program
}

func NewCELTransitionPolicy(expr string) (*CELTransitionPolicy, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return &CELTransitionPolicy{}, nil
	}

	opts := []cel.EnvOption{
		cel.Variable("current", cel.IntType),
		cel.Variable("next", cel.IntType),
	}
	for _, s := range []domain.OrderStatus{
		domain.StatusPending, domain.StatusPaid, domain.StatusConfirmed,
		domain.StatusCompleted, domain.StatusCancelled,
	} {
		opts = append(opts, cel.Constant(s.String(), cel.IntType, types.Int(s)))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile status policy %q: %w", expr, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("status policy %q must evaluate to bool, got %s", expr, ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build status policy program: %w", err)
	}
	return &CELTransitionPolicy{expr: expr, prg: prg}, nil
}

func (p *CELTransitionPolicy) Allow(from, to domain.OrderStatus) (bool, error) {
	if p.prg == nil {
		return true, nil
	}
	out, _, err := p.prg.Eval(map[string]any{
		"current": int64(from),
		"next":    int64(to),
	})
	if err != nil {
		return false, fmt.Errorf("evaluate status policy %q: %w", p.expr, err)
	}
	allowed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("status policy %q returned %T", p.expr, out.Value())
	}
	return allowed, nil
}
