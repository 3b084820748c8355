package expr

import (
	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/litledger/internal/errs"
	"github.com/roach88/litledger/internal/num"
)

// maxExponent bounds ** and pow so a single formula cannot pin the CPU.
var maxExponent = num.FromInt(100)

// function is a whitelisted callable. Arity is checked by the function.
type function func(args []*apd.Decimal) (*apd.Decimal, error)

var functions = map[string]function{
	"abs":   fnAbs,
	"max":   fnMax,
	"min":   fnMin,
	"int":   fnInt,
	"round": fnRound,
	"pow":   fnPow,
}

func (n *numberNode) eval(map[string]*apd.Decimal) (*apd.Decimal, error) {
	return n.value, nil
}

func (n *identNode) eval(env map[string]*apd.Decimal) (*apd.Decimal, error) {
	v, ok := env[n.name]
	if !ok || v == nil {
		return nil, errs.New(errs.CodeMissingDependency, "name %q is not defined", n.name).
			WithDetail("missing", n.name)
	}
	return v, nil
}

func (n *unaryNode) eval(env map[string]*apd.Decimal) (*apd.Decimal, error) {
	v, err := n.operand.eval(env)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case "-":
		return new(apd.Decimal).Neg(v), nil
	case "not":
		return boolean(v.IsZero()), nil
	default:
		return v, nil
	}
}

func (n *binaryNode) eval(env map[string]*apd.Decimal) (*apd.Decimal, error) {
	x, err := n.left.eval(env)
	if err != nil {
		return nil, err
	}
	y, err := n.right.eval(env)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case "+":
		return num.Add(x, y)
	case "-":
		return num.Sub(x, y)
	case "*":
		return num.Mul(x, y)
	case "/":
		return num.Quo(x, y)
	case "//":
		return num.QuoInteger(x, y)
	case "%":
		return rem(x, y)
	case "**":
		return power(x, y)
	}
	return nil, errs.New(errs.CodeEvaluation, "unsupported operator %q", n.op)
}

func (n *compareNode) eval(env map[string]*apd.Decimal) (*apd.Decimal, error) {
	left, err := n.operands[0].eval(env)
	if err != nil {
		return nil, err
	}
	for i, op := range n.ops {
		right, err := n.operands[i+1].eval(env)
		if err != nil {
			return nil, err
		}
		if !compare(op, left.Cmp(right)) {
			return boolean(false), nil
		}
		left = right
	}
	return boolean(true), nil
}

func compare(op string, c int) bool {
	switch op {
	case "==":
		return c == 0
	case "!=":
		return c != 0
	case "<":
		return c < 0
	case "<=":
		return c <= 0
	case ">":
		return c > 0
	default:
		return c >= 0
	}
}

// eval returns the deciding operand, as Python's and/or do.
func (n *boolNode) eval(env map[string]*apd.Decimal) (*apd.Decimal, error) {
	var v *apd.Decimal
	for _, operand := range n.operands {
		var err error
		v, err = operand.eval(env)
		if err != nil {
			return nil, err
		}
		truthy := !v.IsZero()
		if (n.op == "or" && truthy) || (n.op == "and" && !truthy) {
			return v, nil
		}
	}
	return v, nil
}

func (n *condNode) eval(env map[string]*apd.Decimal) (*apd.Decimal, error) {
	c, err := n.cond.eval(env)
	if err != nil {
		return nil, err
	}
	if !c.IsZero() {
		return n.then.eval(env)
	}
	return n.otherwise.eval(env)
}

func (n *callNode) eval(env map[string]*apd.Decimal) (*apd.Decimal, error) {
	args := make([]*apd.Decimal, len(n.args))
	for i, a := range n.args {
		v, err := a.eval(env)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return functions[n.fn](args)
}

func boolean(b bool) *apd.Decimal {
	if b {
		return num.FromInt(1)
	}
	return num.Zero()
}

func rem(x, y *apd.Decimal) (*apd.Decimal, error) {
	if y.IsZero() {
		return nil, errs.New(errs.CodeDivisionByZero, "division by zero (%s %% 0)", num.String(x))
	}
	d := new(apd.Decimal)
	if _, err := num.Context.Rem(d, x, y); err != nil {
		return nil, errs.Wrap(errs.CodeEvaluation, err, "modulo %s %% %s", num.String(x), num.String(y))
	}
	return d, nil
}

func power(x, y *apd.Decimal) (*apd.Decimal, error) {
	if y.Cmp(maxExponent) > 0 {
		return nil, errs.New(errs.CodeExponentLimit, "exponent %s exceeds safety limit (%s)",
			num.String(y), num.String(maxExponent))
	}
	if x.IsZero() && y.Sign() < 0 {
		return nil, errs.New(errs.CodeDivisionByZero, "zero raised to negative power %s", num.String(y))
	}
	d := new(apd.Decimal)
	if _, err := num.Context.Pow(d, x, y); err != nil {
		return nil, errs.Wrap(errs.CodeEvaluation, err, "power %s ** %s", num.String(x), num.String(y))
	}
	return d, nil
}

func arity(name string, args []*apd.Decimal, lo, hi int) error {
	if len(args) < lo || len(args) > hi {
		if lo == hi {
			return errs.New(errs.CodeEvaluation, "%s() takes %d argument(s), got %d", name, lo, len(args))
		}
		return errs.New(errs.CodeEvaluation, "%s() takes %d to %d arguments, got %d", name, lo, hi, len(args))
	}
	return nil
}

func fnAbs(args []*apd.Decimal) (*apd.Decimal, error) {
	if err := arity("abs", args, 1, 1); err != nil {
		return nil, err
	}
	return new(apd.Decimal).Abs(args[0]), nil
}

func fnMax(args []*apd.Decimal) (*apd.Decimal, error) {
	return extreme("max", args, 1)
}

func fnMin(args []*apd.Decimal) (*apd.Decimal, error) {
	return extreme("min", args, -1)
}

func extreme(name string, args []*apd.Decimal, sign int) (*apd.Decimal, error) {
	if len(args) == 0 {
		return nil, errs.New(errs.CodeEvaluation, "%s() expects at least 1 argument", name)
	}
	best := args[0]
	for _, a := range args[1:] {
		if a.Cmp(best) == sign {
			best = a
		}
	}
	return best, nil
}

func fnInt(args []*apd.Decimal) (*apd.Decimal, error) {
	if err := arity("int", args, 1, 1); err != nil {
		return nil, err
	}
	return num.Truncate(args[0])
}

// fnRound quantizes to n fractional digits with banker's rounding.
func fnRound(args []*apd.Decimal) (*apd.Decimal, error) {
	if err := arity("round", args, 1, 2); err != nil {
		return nil, err
	}
	places := int64(0)
	if len(args) == 2 {
		n, err := num.Truncate(args[1])
		if err != nil {
			return nil, err
		}
		places, err = n.Int64()
		if err != nil || places < -num.Precision || places > num.Precision {
			return nil, errs.New(errs.CodeEvaluation, "round() digits %s out of range", num.String(args[1]))
		}
	}
	c := *num.Context
	c.Rounding = apd.RoundHalfEven
	d := new(apd.Decimal)
	if _, err := c.Quantize(d, args[0], int32(-places)); err != nil {
		return nil, errs.Wrap(errs.CodeEvaluation, err, "round %s to %d places", num.String(args[0]), places)
	}
	return d, nil
}

func fnPow(args []*apd.Decimal) (*apd.Decimal, error) {
	if err := arity("pow", args, 2, 2); err != nil {
		return nil, err
	}
	return power(args[0], args[1])
}
