// Package expr is a sandboxed arithmetic evaluator over exact decimals.
//
// Expressions use a small Python-like grammar:
//
//	Strength * 2 + Level
//	max(Strength * 10, Level * 50)
//	Agility - (chapter - 3) if chapter > 3 else Agility
//
// Every literal, operand and result is an *apd.Decimal computed in the
// shared 50-digit context. Name resolution is limited to the supplied
// variable map and the whitelisted functions abs, max, min, int, round and
// pow. There is no access to anything else.
//
// Failure categories:
//   - EVALUATION: syntax errors, unknown functions, bad arity
//   - MISSING_DEPENDENCY: an identifier absent from the variable map
//   - DIVISION_BY_ZERO: /, // or % with a zero divisor
//   - EXPONENT_LIMIT: ** or pow with an exponent above 100
package expr

import (
	"sort"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/litledger/internal/errs"
	"github.com/roach88/litledger/internal/num"
)

// Expr is a parsed expression. It is immutable and safe for concurrent use.
type Expr struct {
	src  string
	root node
}

// Parse compiles src into an Expr.
func Parse(src string) (*Expr, error) {
	root, err := parse(src)
	if err != nil {
		return nil, err
	}
	return &Expr{src: src, root: root}, nil
}

// String returns the source text.
func (e *Expr) String() string {
	return e.src
}

// Eval evaluates the expression against vars. A non-finite result is an
// EVALUATION error; it is never returned.
func (e *Expr) Eval(vars map[string]*apd.Decimal) (*apd.Decimal, error) {
	v, err := e.root.eval(vars)
	if err != nil {
		return nil, err
	}
	if v.Form != apd.Finite {
		return nil, errs.New(errs.CodeEvaluation, "expression %q produced a non-finite result", e.src)
	}
	return num.Clone(v), nil
}

// Eval parses and evaluates src in one step.
func Eval(src string, vars map[string]*apd.Decimal) (*apd.Decimal, error) {
	e, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return e.Eval(vars)
}

// reserved names are never reported as free variables.
var reserved = map[string]bool{
	"abs": true, "max": true, "min": true, "int": true, "round": true, "pow": true,
	"True": true, "False": true, "None": true,
	"if": true, "else": true, "and": true, "or": true, "not": true, "in": true, "is": true,
}

// Identifiers returns the sorted, de-duplicated free variable names in src.
// It scans identifier tokens only, so it works on sources that fail to
// parse. A source that fails to lex yields nil.
func Identifiers(src string) []string {
	toks, err := lex(src)
	if err != nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, t := range toks {
		if t.kind != tokIdent || reserved[t.text] || seen[t.text] {
			continue
		}
		seen[t.text] = true
		out = append(out, t.text)
	}
	sort.Strings(out)
	return out
}
