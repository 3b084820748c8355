package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/litledger/internal/formula"
	"github.com/roach88/litledger/internal/rules"
	"github.com/roach88/litledger/internal/schema"
)

// Scenario is a ledger conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Strict runs the ledger in strict mode.
	Strict bool `yaml:"strict,omitempty"`

	// Schema is a preset name; empty selects the default preset.
	Schema string `yaml:"schema,omitempty"`

	Formulas []formula.Formula `yaml:"formulas,omitempty"`
	Rules    []rules.Spec      `yaml:"rules,omitempty"`

	// Setup establishes initial state. Setup steps must succeed.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow is the sequence under test.
	Flow []Step `yaml:"flow"`

	Assertions []Assertion `yaml:"assertions"`
}

// Step is one ledger operation. Exactly one operation field is set.
type Step struct {
	Add     map[string]any   `yaml:"add,omitempty"`
	Batch   []map[string]any `yaml:"batch,omitempty"`
	Modify  *ModifyStep      `yaml:"modify,omitempty"`
	Delete  []int64          `yaml:"delete,omitempty"`
	Formula *formula.Formula `yaml:"formula,omitempty"`

	// Expect is checked against the step's outcome. Nil means "ok".
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ModifyStep patches a committed event.
type ModifyStep struct {
	ID    int64          `yaml:"id"`
	Patch map[string]any `yaml:"patch"`
}

// ExpectClause specifies a step's expected outcome.
type ExpectClause struct {
	// Case is "ok" or an error code.
	Case string `yaml:"case"`

	// Logs, when set, must equal the step's logs.
	Logs []string `yaml:"logs,omitempty"`

	// Message, when set, must appear in the rejection text.
	Message string `yaml:"message,omitempty"`
}

// Step operations.
const (
	OpAdd     = "add"
	OpBatch   = "batch"
	OpModify  = "modify"
	OpDelete  = "delete"
	OpFormula = "formula"
)

// Ops returns the operations set on s.
func (s Step) Ops() []string {
	var ops []string
	if s.Add != nil {
		ops = append(ops, OpAdd)
	}
	if s.Batch != nil {
		ops = append(ops, OpBatch)
	}
	if s.Modify != nil {
		ops = append(ops, OpModify)
	}
	if s.Delete != nil {
		ops = append(ops, OpDelete)
	}
	if s.Formula != nil {
		ops = append(ops, OpFormula)
	}
	return ops
}

// Op returns the step's single operation, or "" when it has none or several.
func (s Step) Op() string {
	ops := s.Ops()
	if len(ops) != 1 {
		return ""
	}
	return ops[0]
}

// Assertion type constants.
const (
	AssertBalance       = "balance"
	AssertDisplay       = "display"
	AssertInventory     = "inventory"
	AssertStat          = "stat"
	AssertBaseStat      = "base_stat"
	AssertBuffActive    = "buff_active"
	AssertAlertContains = "alert_contains"
	AssertEventCount    = "event_count"
	AssertEvent         = "event"
	AssertTraceContains = "trace_contains"
	AssertTraceCount    = "trace_count"
)

// Assertion validates the final state or the trace.
type Assertion struct {
	Type string `yaml:"type"`

	// Name selects an inventory item, stat or buff.
	Name string `yaml:"name,omitempty"`

	// Value is the expected decimal or display string.
	Value string `yaml:"value,omitempty"`

	// Absent inverts inventory, stat and buff_active assertions.
	Absent bool `yaml:"absent,omitempty"`

	// Text is the alert substring (alert_contains).
	Text string `yaml:"text,omitempty"`

	// Count is the expected number of events or trace steps.
	Count int `yaml:"count,omitempty"`

	// ID and Fields select and match one stored event (event).
	ID     int64          `yaml:"id,omitempty"`
	Fields map[string]any `yaml:"fields,omitempty"`

	// Op and Case select trace steps (trace_contains, trace_count).
	Op   string `yaml:"op,omitempty"`
	Case string `yaml:"case,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Schema != "" && !slices.Contains(schema.PresetNames(), s.Schema) {
		return fmt.Errorf("unknown schema preset %q", s.Schema)
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		if step.Expect != nil {
			return fmt.Errorf("setup[%d]: setup steps cannot carry expect", i)
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
		if step.Expect != nil && step.Expect.Case == "" {
			return fmt.Errorf("flow[%d].expect: case is required", i)
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(step Step) error {
	ops := step.Ops()
	switch {
	case len(ops) == 0:
		return fmt.Errorf("one of add, batch, modify, delete or formula is required")
	case len(ops) > 1:
		return fmt.Errorf("only one operation per step (got %v)", ops)
	}
	if step.Modify != nil && step.Modify.Patch == nil {
		return fmt.Errorf("modify: patch is required")
	}
	if step.Formula != nil && (step.Formula.Name == "" || step.Formula.Expression == "") {
		return fmt.Errorf("formula: name and expression are required")
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertBalance, AssertDisplay:
		if a.Value == "" {
			return fmt.Errorf("assertions[%d]: value is required for %s", index, a.Type)
		}
	case AssertInventory, AssertStat, AssertBaseStat:
		if a.Name == "" {
			return fmt.Errorf("assertions[%d]: name is required for %s", index, a.Type)
		}
		if a.Value == "" && !a.Absent {
			return fmt.Errorf("assertions[%d]: value or absent is required for %s", index, a.Type)
		}
	case AssertBuffActive:
		if a.Name == "" {
			return fmt.Errorf("assertions[%d]: name is required for buff_active", index)
		}
	case AssertAlertContains:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for alert_contains", index)
		}
	case AssertEventCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	case AssertEvent:
		if a.ID <= 0 {
			return fmt.Errorf("assertions[%d]: id is required for event", index)
		}
		if len(a.Fields) == 0 {
			return fmt.Errorf("assertions[%d]: fields is required for event", index)
		}
	case AssertTraceContains:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_contains", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
