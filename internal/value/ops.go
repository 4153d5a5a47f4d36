package value

import "fmt"

// Add applies the + operator. Strings concatenate with the stringified right
// operand (and anything concatenates onto a string); numbers and booleans
// add numerically with booleans as 0/1; null on the left yields the right
// operand, and null on the right leaves a number or boolean unchanged; times
// add component-wise and fail when a component leaves the clock domain.
// A time plus null fails.
func (v Value) Add(rhs Value) (Value, error) {
	switch v.kind {
	case KindString:
		return String(v.str + rhs.String()), nil
	case KindBoolean:
		switch rhs.kind {
		case KindString:
			return String(v.String() + rhs.str), nil
		case KindBoolean:
			return Number(boolToFloat(v.b) + boolToFloat(rhs.b)), nil
		case KindNumber:
			return Number(boolToFloat(v.b) + rhs.num), nil
		case KindNull:
			return v, nil
		}
	case KindNumber:
		switch rhs.kind {
		case KindString:
			return String(v.String() + rhs.str), nil
		case KindBoolean:
			return Number(v.num + boolToFloat(rhs.b)), nil
		case KindNumber:
			return Number(v.num + rhs.num), nil
		case KindNull:
			return v, nil
		}
	case KindNull:
		return rhs, nil
	case KindTime:
		switch rhs.kind {
		case KindString:
			return String(v.String() + rhs.str), nil
		case KindTime:
			sum, err := NewTime(v.t.hour+rhs.t.hour, v.t.minute+rhs.t.minute, v.t.second+rhs.t.second)
			if err != nil {
				return Null(), fmt.Errorf("time addition left the clock: %w", err)
			}
			return TimeValue(sum), nil
		}
	}
	return Null(), opError("add", v, rhs)
}

// Sub applies the - operator: numbers and booleans-as-numbers subtract,
// null on the right is the identity, and times subtract component-wise
// (negative components fail; there is no borrow).
func (v Value) Sub(rhs Value) (Value, error) {
	switch v.kind {
	case KindBoolean:
		switch rhs.kind {
		case KindBoolean:
			return Number(boolToFloat(v.b) - boolToFloat(rhs.b)), nil
		case KindNumber:
			return Number(boolToFloat(v.b) - rhs.num), nil
		case KindNull:
			return v, nil
		}
	case KindNumber:
		switch rhs.kind {
		case KindBoolean:
			return Number(v.num - boolToFloat(rhs.b)), nil
		case KindNumber:
			return Number(v.num - rhs.num), nil
		case KindNull:
			return v, nil
		}
	case KindNull:
		if rhs.kind == KindNull {
			return Null(), nil
		}
	case KindTime:
		if rhs.kind == KindTime {
			diff, err := NewTime(v.t.hour-rhs.t.hour, v.t.minute-rhs.t.minute, v.t.second-rhs.t.second)
			if err != nil {
				return Null(), fmt.Errorf("time subtraction left the clock: %w", err)
			}
			return TimeValue(diff), nil
		}
	}
	return Null(), opError("subtract", v, rhs)
}

// Mul applies the * operator: numbers and booleans-as-numbers multiply, and
// a time scaled by a number multiplies each component.
func (v Value) Mul(rhs Value) (Value, error) {
	switch v.kind {
	case KindBoolean:
		switch rhs.kind {
		case KindBoolean:
			return Number(boolToFloat(v.b) * boolToFloat(rhs.b)), nil
		case KindNumber:
			return Number(boolToFloat(v.b) * rhs.num), nil
		}
	case KindNumber:
		switch rhs.kind {
		case KindBoolean:
			return Number(v.num * boolToFloat(rhs.b)), nil
		case KindNumber:
			return Number(v.num * rhs.num), nil
		case KindTime:
			return scaleTime(rhs.t, v.num, func(c int, n float64) int { return int(float64(c) * n) })
		}
	case KindNull:
		if rhs.kind == KindNull {
			return Null(), nil
		}
	case KindTime:
		if rhs.kind == KindNumber {
			return scaleTime(v.t, rhs.num, func(c int, n float64) int { return int(float64(c) * n) })
		}
	}
	return Null(), opError("multiply", v, rhs)
}

// Div applies the / operator. Dividing numbers by zero yields the IEEE
// result (inf or NaN), not an error. Dividing a time by a number divides
// each component.
func (v Value) Div(rhs Value) (Value, error) {
	switch v.kind {
	case KindBoolean:
		switch rhs.kind {
		case KindBoolean:
			return Number(boolToFloat(v.b) / boolToFloat(rhs.b)), nil
		case KindNumber:
			return Number(boolToFloat(v.b) / rhs.num), nil
		}
	case KindNumber:
		switch rhs.kind {
		case KindBoolean:
			return Number(v.num / boolToFloat(rhs.b)), nil
		case KindNumber:
			return Number(v.num / rhs.num), nil
		}
	case KindNull:
		if rhs.kind == KindNull {
			return Null(), nil
		}
	case KindTime:
		if rhs.kind == KindNumber {
			return scaleTime(v.t, rhs.num, func(c int, n float64) int { return int(float64(c) / n) })
		}
	}
	return Null(), opError("divide", v, rhs)
}

func scaleTime(t Time, n float64, apply func(int, float64) int) (Value, error) {
	scaled, err := NewTime(apply(t.hour, n), apply(t.minute, n), apply(t.second, n))
	if err != nil {
		return Null(), fmt.Errorf("time scaling left the clock: %w", err)
	}
	return TimeValue(scaled), nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func opError(op string, lhs, rhs Value) error {
	return fmt.Errorf("cannot %s %s and %s", op, lhs.kind, rhs.kind)
}
