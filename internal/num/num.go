// Package num wraps cockroachdb/apd with the decimal conventions used across
// litledger: a fixed 50-digit context, strict finite parsing, and the
// clean-number sanitizer applied to untrusted numeric strings.
//
// Every quantity in the ledger (balances, quantities, stats, rates, formula
// results) is an *apd.Decimal. Floating point never enters arithmetic.
package num

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/litledger/internal/errs"
)

// Precision is the number of significant digits carried by Context.
const Precision = 50

// Context is the shared arithmetic context. It is read-only after init; apd
// contexts are safe for concurrent use.
var Context = apd.BaseContext.WithPrecision(Precision)

// numberToken matches the first signed integer or decimal in a string.
var numberToken = regexp.MustCompile(`-?\d+(\.\d+)?`)

// Parse converts s to a finite decimal. Surrounding whitespace is ignored.
func Parse(s string) (*apd.Decimal, error) {
	trimmed := strings.TrimSpace(s)
	d, _, err := apd.NewFromString(trimmed)
	if err != nil {
		return nil, errs.Wrap(errs.CodeConversion, err, "cannot convert %q to decimal", s)
	}
	if d.Form != apd.Finite {
		return nil, errs.New(errs.CodeConversion, "cannot convert %q to decimal: value is not finite", s)
	}
	return d, nil
}

// MustParse is Parse for literals known to be valid. It panics otherwise.
func MustParse(s string) *apd.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// FromInt returns i as a decimal.
func FromInt(i int64) *apd.Decimal {
	return apd.New(i, 0)
}

// Zero returns a fresh zero.
func Zero() *apd.Decimal {
	return apd.New(0, 0)
}

// Clone returns a copy of d that shares no storage with it.
func Clone(d *apd.Decimal) *apd.Decimal {
	if d == nil {
		return Zero()
	}
	return new(apd.Decimal).Set(d)
}

// Coerce converts a loosely typed value to a decimal. Accepted inputs are
// decimals, strings, every Go integer kind, float64 (via its shortest
// round-trip text) and fmt.Stringer values.
func Coerce(v any) (*apd.Decimal, error) {
	switch x := v.(type) {
	case *apd.Decimal:
		if x == nil {
			return nil, errs.New(errs.CodeConversion, "cannot convert nil decimal")
		}
		return Clone(x), nil
	case apd.Decimal:
		return new(apd.Decimal).Set(&x), nil
	case string:
		return Parse(x)
	case int:
		return FromInt(int64(x)), nil
	case int32:
		return FromInt(int64(x)), nil
	case int64:
		return FromInt(x), nil
	case uint:
		return Parse(strconv.FormatUint(uint64(x), 10))
	case uint64:
		return Parse(strconv.FormatUint(x, 10))
	case float64:
		return Parse(strconv.FormatFloat(x, 'f', -1, 64))
	case fmt.Stringer:
		return Parse(x.String())
	case nil:
		return nil, errs.New(errs.CodeConversion, "cannot convert null to decimal")
	default:
		return nil, errs.New(errs.CodeConversion, "cannot convert %v (%T) to decimal", v, v)
	}
}

// String renders d in plain notation with trailing fractional zeros removed.
func String(d *apd.Decimal) string {
	if d == nil {
		return "0"
	}
	var r apd.Decimal
	r.Reduce(d)
	if r.IsZero() {
		return "0"
	}
	return r.Text('f')
}

// Clean sanitizes an untrusted numeric string. Thousands separators and
// percent signs are stripped, then the first signed integer-or-decimal token
// is returned. "0" is returned when no token exists or the token is not a
// finite decimal. The raw input is never returned as a fallback.
func Clean(raw string) string {
	tok, _ := CleanOK(raw)
	return tok
}

// CleanOK is Clean that also reports whether a numeric token was found.
func CleanOK(raw string) (string, bool) {
	s := strings.ReplaceAll(raw, ",", "")
	s = strings.ReplaceAll(s, "%", "")
	tok := numberToken.FindString(s)
	if tok == "" {
		return "0", false
	}
	if _, err := Parse(tok); err != nil {
		return "0", false
	}
	return tok, true
}

// CleanDecimal is Clean followed by Parse. It never fails.
func CleanDecimal(raw string) *apd.Decimal {
	d, err := Parse(Clean(raw))
	if err != nil {
		return Zero()
	}
	return d
}

// IsIndeterminate reports whether raw is one of the "value unknown" sentinels
// an extractor emits: the empty string or TBD.
func IsIndeterminate(raw string) bool {
	switch strings.TrimSpace(raw) {
	case "", "TBD", "tbd":
		return true
	}
	return false
}

// Add returns x+y.
func Add(x, y *apd.Decimal) (*apd.Decimal, error) {
	d := new(apd.Decimal)
	if _, err := Context.Add(d, x, y); err != nil {
		return nil, errs.Wrap(errs.CodeEvaluation, err, "add %s + %s", String(x), String(y))
	}
	return d, nil
}

// Sub returns x-y.
func Sub(x, y *apd.Decimal) (*apd.Decimal, error) {
	d := new(apd.Decimal)
	if _, err := Context.Sub(d, x, y); err != nil {
		return nil, errs.Wrap(errs.CodeEvaluation, err, "subtract %s - %s", String(x), String(y))
	}
	return d, nil
}

// Mul returns x*y.
func Mul(x, y *apd.Decimal) (*apd.Decimal, error) {
	d := new(apd.Decimal)
	if _, err := Context.Mul(d, x, y); err != nil {
		return nil, errs.Wrap(errs.CodeEvaluation, err, "multiply %s * %s", String(x), String(y))
	}
	return d, nil
}

// Quo returns x/y. A zero divisor is a DIVISION_BY_ZERO error.
func Quo(x, y *apd.Decimal) (*apd.Decimal, error) {
	if y.IsZero() {
		return nil, errs.New(errs.CodeDivisionByZero, "division by zero (%s / 0)", String(x))
	}
	d := new(apd.Decimal)
	if _, err := Context.Quo(d, x, y); err != nil {
		return nil, errs.Wrap(errs.CodeEvaluation, err, "divide %s / %s", String(x), String(y))
	}
	return d, nil
}

// QuoInteger returns the integer part of x/y, truncated toward zero.
func QuoInteger(x, y *apd.Decimal) (*apd.Decimal, error) {
	if y.IsZero() {
		return nil, errs.New(errs.CodeDivisionByZero, "division by zero (%s // 0)", String(x))
	}
	d := new(apd.Decimal)
	if _, err := Context.QuoInteger(d, x, y); err != nil {
		return nil, errs.Wrap(errs.CodeEvaluation, err, "integer divide %s // %s", String(x), String(y))
	}
	return d, nil
}

// Less reports x < y.
func Less(x, y *apd.Decimal) bool {
	return x.Cmp(y) < 0
}

// Negative reports d < 0.
func Negative(d *apd.Decimal) bool {
	return d.Sign() < 0
}

// Truncate returns d with its fractional part dropped.
func Truncate(d *apd.Decimal) (*apd.Decimal, error) {
	c := *Context
	c.Rounding = apd.RoundDown
	out := new(apd.Decimal)
	if _, err := c.RoundToIntegralValue(out, d); err != nil {
		return nil, errs.Wrap(errs.CodeEvaluation, err, "truncate %s", String(d))
	}
	return out, nil
}

// Float64 converts d for display-only formatting.
func Float64(d *apd.Decimal) float64 {
	f, err := d.Float64()
	if err != nil {
		return 0
	}
	return f
}
