// Package rules applies global modifiers to events before they are
// committed: "halve all gold gains", "+10 to every stat change".
//
// Rules run once, at commit time, and leave an audit entry on each event
// they change. Replay never re-applies them; the stored event already
// carries the modified value.
package rules

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/litledger/internal/errs"
	"github.com/roach88/litledger/internal/event"
	"github.com/roach88/litledger/internal/num"
)

// TargetAny matches every event type.
const TargetAny = "any"

// Operation is how a rule changes a value.
type Operation string

const (
	OpMultiply Operation = "multiply"
	OpAdd      Operation = "add"
	OpSet      Operation = "set"
)

// Operations lists the valid operations.
var Operations = []Operation{OpMultiply, OpAdd, OpSet}

// Targets lists the valid target types.
var Targets = []string{string(event.TypeGold), string(event.TypeItem), string(event.TypeStat), string(event.TypeBuff), TargetAny}

// Rule is a registered modifier. A non-empty Condition is stored but not
// evaluated; rules carrying one are skipped by Apply.
type Rule struct {
	ID          string       `json:"id"`
	TargetType  string       `json:"target_type"`
	Operation   Operation    `json:"operation"`
	Modifier    *apd.Decimal `json:"-"`
	Condition   string       `json:"condition,omitempty"`
	Description string       `json:"description"`
}

// Spec is the configuration form of a rule, as it appears in the campaign
// file.
type Spec struct {
	Target      string `yaml:"target" json:"target_type"`
	Operation   string `yaml:"operation" json:"operation"`
	Modifier    string `yaml:"modifier" json:"modifier"`
	Condition   string `yaml:"condition,omitempty" json:"condition,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Engine holds rules in registration order. It is not safe for concurrent
// use.
type Engine struct {
	rules   []*Rule
	counter int
}

// New returns an empty engine.
func New() *Engine {
	return &Engine{}
}

// AddRule registers a rule and returns its id (rule_001, ...). An unknown
// target or operation, or a non-decimal modifier, is a VALIDATION error.
func (e *Engine) AddRule(target string, op Operation, modifier, condition, description string) (string, error) {
	if !slices.Contains(Targets, target) {
		return "", errs.New(errs.CodeValidation, "invalid rule target %q (expected one of %s)", target, strings.Join(Targets, ", "))
	}
	if !slices.Contains(Operations, op) {
		return "", errs.New(errs.CodeValidation, "invalid rule operation %q (expected multiply, add or set)", op)
	}
	mod, err := num.Parse(modifier)
	if err != nil {
		return "", errs.Wrap(errs.CodeValidation, err, "invalid rule modifier %q", modifier)
	}
	e.counter++
	r := &Rule{
		ID:          fmt.Sprintf("rule_%03d", e.counter),
		TargetType:  target,
		Operation:   op,
		Modifier:    mod,
		Condition:   condition,
		Description: description,
	}
	e.rules = append(e.rules, r)
	return r.ID, nil
}

// Add registers a rule from its configuration form.
func (e *Engine) Add(s Spec) (string, error) {
	return e.AddRule(s.Target, Operation(s.Operation), s.Modifier, s.Condition, s.Description)
}

// Apply returns a transformed deep copy of ev. Matching rules (same type
// or "any") change the value field of gold and stat events in registration
// order, each one operating on the previous result and appending an
// applied_rules entry. Events without a determinate value pass through
// unchanged.
func (e *Engine) Apply(ev *event.Event) *event.Event {
	out := ev.Clone()
	for _, r := range e.rules {
		if r.TargetType != TargetAny && r.TargetType != string(out.Type()) {
			continue
		}
		if r.Condition != "" {
			continue
		}
		value, ok := out.Value()
		if !ok || value.IsZero() || value.IsIndeterminate() {
			continue
		}
		before := value.Decimal()
		after, err := r.apply(before)
		if err != nil {
			continue
		}
		out.SetValue(value.With(after))
		out.AppliedRules = append(out.AppliedRules, event.AppliedRule{
			RuleID:        r.ID,
			Description:   r.Description,
			OriginalValue: num.String(before),
			ModifiedValue: num.String(after),
		})
	}
	return out
}

func (r *Rule) apply(v *apd.Decimal) (*apd.Decimal, error) {
	switch r.Operation {
	case OpMultiply:
		return num.Mul(v, r.Modifier)
	case OpAdd:
		return num.Add(v, r.Modifier)
	default:
		return num.Clone(r.Modifier), nil
	}
}

// Remove deletes a rule. It reports whether the id existed.
func (e *Engine) Remove(id string) bool {
	for i, r := range e.rules {
		if r.ID == id {
			e.rules = slices.Delete(e.rules, i, i+1)
			return true
		}
	}
	return false
}

// Clear removes every rule and resets the id counter.
func (e *Engine) Clear() {
	e.rules = nil
	e.counter = 0
}

// List returns copies of the rules in registration order.
func (e *Engine) List() []Rule {
	out := make([]Rule, len(e.rules))
	for i, r := range e.rules {
		out[i] = *r
		out[i].Modifier = num.Clone(r.Modifier)
	}
	return out
}

// Len reports the number of rules.
func (e *Engine) Len() int {
	return len(e.rules)
}

// Clone returns an independent copy.
func (e *Engine) Clone() *Engine {
	c := &Engine{counter: e.counter}
	for _, r := range e.List() {
		c.rules = append(c.rules, &r)
	}
	return c
}

// MarshalJSON writes the rules as a list with modifiers as strings.
func (r Rule) MarshalJSON() ([]byte, error) {
	type plain Rule
	return json.Marshal(struct {
		plain
		Modifier string `json:"modifier"`
	}{plain(r), num.String(r.Modifier)})
}

// UnmarshalJSON reads a rule written by MarshalJSON.
func (r *Rule) UnmarshalJSON(data []byte) error {
	type plain Rule
	var aux struct {
		plain
		Modifier string `json:"modifier"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return errs.Wrap(errs.CodeValidation, err, "decode rule")
	}
	mod, err := num.Parse(aux.Modifier)
	if err != nil {
		return fmt.Errorf("rule %s modifier: %w", aux.ID, err)
	}
	*r = Rule(aux.plain)
	r.Modifier = mod
	return nil
}

// MarshalJSON writes the rule list.
func (e *Engine) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.List())
}

// UnmarshalJSON replaces the rule list. The id counter advances past the
// highest restored rule_NNN id.
func (e *Engine) UnmarshalJSON(data []byte) error {
	var list []Rule
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	e.Clear()
	for i := range list {
		r := list[i]
		e.rules = append(e.rules, &r)
		if n, ok := strings.CutPrefix(r.ID, "rule_"); ok {
			if id, err := strconv.Atoi(n); err == nil && id > e.counter {
				e.counter = id
			}
		}
	}
	return nil
}
