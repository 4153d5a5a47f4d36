package runtime

import (
	"context"
	"fmt"

	"github.com/hatdsl/hat/internal/lang"
	"github.com/hatdsl/hat/internal/value"
)

// Evaluate walks an expression tree. The left operand of a binary operation
// is fully evaluated before the right one, and both always evaluate: and/or
// do not short-circuit. The first failure aborts the evaluation.
func Evaluate(ctx context.Context, ec *EvalContext, expr lang.Expression) (value.Value, error) {
	switch e := expr.(type) {
	case lang.Constant:
		return e.Value, nil

	case lang.FunctionCall:
		return evaluateCall(ctx, ec, e)

	case lang.BinaryOperation:
		lhs, err := Evaluate(ctx, ec, e.LHS)
		if err != nil {
			return value.Null(), err
		}
		rhs, err := Evaluate(ctx, ec, e.RHS)
		if err != nil {
			return value.Null(), err
		}
		return applyOperation(e.Op, lhs, rhs)

	default:
		return value.Null(), fmt.Errorf("unknown expression node %T", expr)
	}
}

func evaluateCall(ctx context.Context, ec *EvalContext, call lang.FunctionCall) (value.Value, error) {
	args := make([]value.Value, 0, len(call.Args))
	for i, argExpr := range call.Args {
		arg, err := Evaluate(ctx, ec, argExpr)
		if err != nil {
			return value.Null(), fmt.Errorf("argument %d of %s: %w", i+1, call.Name, err)
		}
		args = append(args, arg)
	}

	fn, ok := ec.LookupFunction(call.Name)
	if !ok {
		return value.Null(), fmt.Errorf("function %s not found", call.Name)
	}
	return fn(ctx, ec, args)
}

func applyOperation(op lang.Operation, lhs, rhs value.Value) (value.Value, error) {
	switch op {
	case lang.OpAdd:
		return lhs.Add(rhs)
	case lang.OpSub:
		return lhs.Sub(rhs)
	case lang.OpMul:
		return lhs.Mul(rhs)
	case lang.OpDiv:
		return lhs.Div(rhs)
	case lang.OpEq:
		return value.Bool(lhs.Equal(rhs)), nil
	case lang.OpNotEq:
		return value.Bool(!lhs.Equal(rhs)), nil
	case lang.OpAnd:
		return value.Bool(lhs.Truthy() && rhs.Truthy()), nil
	case lang.OpOr:
		return value.Bool(lhs.Truthy() || rhs.Truthy()), nil
	case lang.OpGt, lang.OpGe, lang.OpLt, lang.OpLe:
		cmp, err := lhs.Compare(rhs)
		if err != nil {
			return value.Null(), err
		}
		switch op {
		case lang.OpGt:
			return value.Bool(cmp > 0), nil
		case lang.OpGe:
			return value.Bool(cmp >= 0), nil
		case lang.OpLt:
			return value.Bool(cmp < 0), nil
		default:
			return value.Bool(cmp <= 0), nil
		}
	default:
		return value.Null(), fmt.Errorf("unknown operation %v", op)
	}
}
