package harness

import (
	"github.com/roach88/litledger/internal/event"
	"github.com/roach88/litledger/internal/ledger"
)

// CaseOK is the outcome of a step the ledger accepted.
const CaseOK = "ok"

// TraceEvent is the outcome of one scenario step.
type TraceEvent struct {
	Seq      int64    `json:"seq"`
	Op       string   `json:"op"`
	Case     string   `json:"case"` // "ok" or an error code
	BatchID  string   `json:"batch_id,omitempty"`
	EventIDs []int64  `json:"event_ids,omitempty"`
	Logs     []string `json:"logs,omitempty"`

	// Message is the rejection text. It is left out of golden snapshots.
	Message string `json:"-"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`

	// Final ledger contents, for assertions and golden snapshots.
	State   *ledger.State  `json:"state,omitempty"`
	Display string         `json:"display,omitempty"`
	Buffs   []string       `json:"active_buffs,omitempty"`
	Events  []*event.Event `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step outcome.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
