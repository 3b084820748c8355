// Package formula maintains computed stats: named expressions over base
// stats and other formulas.
//
// Registration extracts each formula's free variables as its dependency set
// and rejects any formula that would close a cycle in the formula graph.
// Dirty flags track which formulas need recomputation after a base stat
// changes.
package formula

import (
	"fmt"
	"slices"
	"strings"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/litledger/internal/errs"
	"github.com/roach88/litledger/internal/expr"
	"github.com/roach88/litledger/internal/num"
)

// Formula is a registered computed stat.
type Formula struct {
	Name         string   `json:"name" yaml:"name"`
	Expression   string   `json:"expression" yaml:"expression"`
	Dependencies []string `json:"dependencies,omitempty" yaml:"-"`
}

type entry struct {
	Formula
	compiled *expr.Expr
	dirty    bool
}

// Engine holds formulas in registration order. It is not safe for
// concurrent use; the owning ledger serializes access.
type Engine struct {
	entries map[string]*entry
	order   []string
}

// New returns an empty engine.
func New() *Engine {
	return &Engine{entries: make(map[string]*entry)}
}

// Register adds or replaces the formula name. A syntax error is an
// EVALUATION error. A registration that would introduce a cycle fails with
// CIRCULAR_DEPENDENCY naming the path, and leaves the engine exactly as it
// was before the call.
func (e *Engine) Register(name, expression string) error {
	if strings.TrimSpace(name) == "" {
		return errs.New(errs.CodeValidation, "formula name cannot be empty")
	}
	compiled, err := expr.Parse(expression)
	if err != nil {
		return fmt.Errorf("formula %s: %w", name, err)
	}

	prev, existed := e.entries[name]
	e.entries[name] = &entry{
		Formula: Formula{
			Name:         name,
			Expression:   expression,
			Dependencies: expr.Identifiers(expression),
		},
		compiled: compiled,
		dirty:    true,
	}

	if path := e.findCycle(name); path != nil {
		if existed {
			e.entries[name] = prev
		} else {
			delete(e.entries, name)
		}
		joined := strings.Join(path, " → ")
		return errs.New(errs.CodeCircularDependency, "circular dependency detected: %s", joined).
			WithDetail("path", joined)
	}
	if !existed {
		e.order = append(e.order, name)
	}
	return nil
}

// findCycle walks the formula graph depth-first from start and returns the
// first path that revisits a node on the current path, or nil.
func (e *Engine) findCycle(start string) []string {
	var path []string
	onPath := make(map[string]bool)
	done := make(map[string]bool)

	var visit func(name string) []string
	visit = func(name string) []string {
		if onPath[name] {
			i := slices.Index(path, name)
			return append(slices.Clone(path[i:]), name)
		}
		ent, ok := e.entries[name]
		if !ok || done[name] {
			return nil
		}
		onPath[name] = true
		path = append(path, name)
		for _, dep := range ent.Dependencies {
			if cycle := visit(dep); cycle != nil {
				return cycle
			}
		}
		path = path[:len(path)-1]
		onPath[name] = false
		done[name] = true
		return nil
	}
	return visit(start)
}

// MarkDirty flags every formula that depends on field.
func (e *Engine) MarkDirty(field string) {
	for _, ent := range e.entries {
		if slices.Contains(ent.Dependencies, field) {
			ent.dirty = true
		}
	}
}

// IsDirty reports whether name needs recomputation. Unknown names report
// false.
func (e *Engine) IsDirty(name string) bool {
	ent, ok := e.entries[name]
	return ok && ent.dirty
}

// Recalculate evaluates name against ctx and clears its dirty flag.
//
// Every context value is coerced to a decimal first; a value that cannot
// be is a CONVERSION error naming the key. Dependencies absent from ctx are
// reported together as one MISSING_DEPENDENCY error.
func (e *Engine) Recalculate(name string, ctx map[string]any) (*apd.Decimal, error) {
	vars, err := coerceContext(ctx)
	if err != nil {
		return nil, err
	}
	return e.recalculate(name, vars)
}

func (e *Engine) recalculate(name string, vars map[string]*apd.Decimal) (*apd.Decimal, error) {
	ent, ok := e.entries[name]
	if !ok {
		return nil, errs.New(errs.CodeNotFound, "unknown formula %q (registered: %s)", name, errs.JoinSorted(e.order))
	}
	var missing []string
	for _, dep := range ent.Dependencies {
		if _, ok := vars[dep]; !ok {
			missing = append(missing, dep)
		}
	}
	if len(missing) > 0 {
		return nil, errs.New(errs.CodeMissingDependency, "missing required stats for %s: %s", name, errs.JoinSorted(missing)).
			WithDetail("missing", errs.JoinSorted(missing))
	}
	v, err := ent.compiled.Eval(vars)
	if err != nil {
		return nil, fmt.Errorf("evaluate formula '%s = %s': %w", name, ent.Expression, err)
	}
	ent.dirty = false
	return v, nil
}

// RecalculateAllDirty evaluates only the dirty formulas. It stops at the
// first failure.
func (e *Engine) RecalculateAllDirty(ctx map[string]any) (map[string]*apd.Decimal, error) {
	return e.evaluate(ctx, true)
}

// All evaluates every formula. Formulas run in dependency order and each
// result is visible to the formulas after it, so one formula may reference
// another without the caller supplying its value. It stops at the first
// failure.
func (e *Engine) All(ctx map[string]any) (map[string]*apd.Decimal, error) {
	return e.evaluate(ctx, false)
}

func (e *Engine) evaluate(ctx map[string]any, dirtyOnly bool) (map[string]*apd.Decimal, error) {
	vars, err := coerceContext(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*apd.Decimal)
	for _, name := range e.dependencyOrder() {
		if dirtyOnly && !e.entries[name].dirty {
			continue
		}
		v, err := e.recalculate(name, vars)
		if err != nil {
			return nil, err
		}
		out[name] = v
		vars[name] = v
	}
	return out, nil
}

// dependencyOrder sorts formulas so that every formula follows the
// formulas it references. Registration order breaks ties.
func (e *Engine) dependencyOrder() []string {
	indegree := make(map[string]int, len(e.order))
	dependents := make(map[string][]string)
	for _, name := range e.order {
		for _, dep := range e.entries[name].Dependencies {
			if _, isFormula := e.entries[dep]; isFormula && dep != name {
				indegree[name]++
				dependents[dep] = append(dependents[dep], name)
			}
		}
	}

	out := make([]string, 0, len(e.order))
	emitted := make(map[string]bool, len(e.order))
	for len(out) < len(e.order) {
		progressed := false
		for _, name := range e.order {
			if emitted[name] || indegree[name] > 0 {
				continue
			}
			emitted[name] = true
			out = append(out, name)
			for _, d := range dependents[name] {
				indegree[d]--
			}
			progressed = true
			break
		}
		if !progressed {
			// Unreachable while Register rejects cycles.
			for _, name := range e.order {
				if !emitted[name] {
					out = append(out, name)
				}
			}
			break
		}
	}
	return out
}

// Formulas lists registered formulas in registration order.
func (e *Engine) Formulas() []Formula {
	out := make([]Formula, 0, len(e.order))
	for _, name := range e.order {
		f := e.entries[name].Formula
		f.Dependencies = slices.Clone(f.Dependencies)
		out = append(out, f)
	}
	return out
}

// Len reports how many formulas are registered.
func (e *Engine) Len() int {
	return len(e.order)
}

// Clear removes every formula.
func (e *Engine) Clear() {
	e.entries = make(map[string]*entry)
	e.order = nil
}

// Clone returns an independent copy, dirty flags included.
func (e *Engine) Clone() *Engine {
	c := New()
	for _, name := range e.order {
		ent := *e.entries[name]
		ent.Dependencies = slices.Clone(ent.Dependencies)
		c.entries[name] = &ent
		c.order = append(c.order, name)
	}
	return c
}

func coerceContext(ctx map[string]any) (map[string]*apd.Decimal, error) {
	vars := make(map[string]*apd.Decimal, len(ctx))
	for key, value := range ctx {
		d, err := num.Coerce(value)
		if err != nil {
			return nil, errs.Wrap(errs.CodeConversion, err, "cannot convert %s=%v to decimal", key, value).
				WithDetail("key", key)
		}
		vars[key] = d
	}
	return vars, nil
}
