package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/litledger/internal/errs"
	"github.com/roach88/litledger/internal/event"
	"github.com/roach88/litledger/internal/ledger"
	"github.com/roach88/litledger/internal/schema"
	"github.com/roach88/litledger/internal/testutil"
)

// Harness is the scenario execution engine. Each run gets its own
// memory-only ledger with deterministic batch ids.
type Harness struct {
	ledger *ledger.Ledger
	logger *slog.Logger
	seq    int64
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Create a memory-only ledger from the scenario's mode, schema,
//     formulas and rules
//  2. Execute setup steps (each must succeed)
//  3. Execute flow steps, checking expect clauses
//  4. Replay the final log and check the buff set is reproduced
//  5. Evaluate assertions against the final state and trace
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	sch := schema.Default()
	if scenario.Schema != "" {
		var err error
		if sch, err = schema.Preset(scenario.Schema); err != nil {
			return nil, err
		}
	}
	l, err := ledger.New(
		ledger.WithSchema(sch),
		ledger.WithStrict(scenario.Strict),
		ledger.WithFormulas(scenario.Formulas),
		ledger.WithRules(scenario.Rules),
		ledger.WithIDGenerator(testutil.NewFixedIDs("batch")),
		ledger.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger: %w", err)
	}

	h := &Harness{ledger: l, logger: logger}
	result := NewResult()

	for i, step := range scenario.Setup {
		ev := h.execute(ctx, step)
		result.AddTrace(ev)
		if ev.Case != CaseOK {
			return nil, fmt.Errorf("setup step %d (%s) failed: %s", i, ev.Op, ev.Message)
		}
	}

	for i, step := range scenario.Flow {
		ev := h.execute(ctx, step)
		result.AddTrace(ev)
		if msg := checkExpect(step.Expect, ev); msg != "" {
			result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, ev.Op, msg))
		}
	}

	if err := h.collect(ctx, result); err != nil {
		return nil, err
	}

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}
	return result, nil
}

func (h *Harness) next() int64 {
	h.seq++
	return h.seq
}

// execute runs one step. Rejections are recorded in the trace, not
// returned.
func (h *Harness) execute(ctx context.Context, step Step) TraceEvent {
	ev := TraceEvent{Seq: h.next(), Op: step.Op(), Case: CaseOK}

	var err error
	switch ev.Op {
	case OpAdd:
		var in, out *event.Event
		if in, err = toEvent(step.Add); err == nil {
			out, err = h.ledger.AddEvent(ctx, in)
		}
		if out != nil {
			ev.BatchID, ev.EventIDs, ev.Logs = out.BatchID, []int64{out.ID}, out.Logs
		}
	case OpBatch:
		var res *ledger.BatchResult
		txs := make([]*event.Event, 0, len(step.Batch))
		for _, m := range step.Batch {
			var tx *event.Event
			if tx, err = toEvent(m); err != nil {
				break
			}
			txs = append(txs, tx)
		}
		if err == nil {
			res, err = h.ledger.ProcessBatch(ctx, txs)
		}
		if res != nil {
			ev.BatchID, ev.Logs = res.BatchID, res.Logs
			for _, c := range res.Events {
				ev.EventIDs = append(ev.EventIDs, c.ID)
			}
		}
	case OpModify:
		var patch map[string]any
		var out *event.Event
		if patch, err = toGeneric(step.Modify.Patch); err == nil {
			out, err = h.ledger.ModifyEvent(ctx, step.Modify.ID, patch)
		}
		if out != nil {
			ev.EventIDs, ev.Logs = []int64{out.ID}, out.Logs
		}
	case OpDelete:
		var res *ledger.DeleteResult
		if res, err = h.ledger.DeleteEvents(ctx, step.Delete); res != nil {
			ev.Logs = []string{res.Message}
		}
	case OpFormula:
		if err = h.ledger.RegisterFormula(step.Formula.Name, step.Formula.Expression); err == nil {
			_, err = h.ledger.State(ctx)
		}
	}

	if err != nil {
		ev.Case = string(errs.CodeOf(err))
		if ev.Case == "" {
			ev.Case = "ERROR"
		}
		ev.Message = err.Error()
		h.logger.Debug("step rejected", "seq", ev.Seq, "op", ev.Op, "error", err)
	}
	return ev
}

// collect records the final ledger contents on result. A final replay of
// the committed log must reproduce the buff set.
func (h *Harness) collect(ctx context.Context, result *Result) error {
	st, err := h.ledger.State(ctx)
	if err != nil {
		return fmt.Errorf("final state: %w", err)
	}
	display, err := h.ledger.FormatBalance(ctx)
	if err != nil {
		return fmt.Errorf("final display: %w", err)
	}
	buffs, err := h.ledger.ActiveBuffs(ctx)
	if err != nil {
		return fmt.Errorf("final buffs: %w", err)
	}
	result.State, result.Display, result.Events = st, display, h.ledger.Events()
	result.Buffs = make([]string, 0, len(buffs))
	for _, b := range buffs {
		result.Buffs = append(result.Buffs, b.Name)
	}

	snap, err := h.ledger.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	report, err := h.ledger.VerifyReplay(ctx, snap)
	if err != nil {
		return fmt.Errorf("verify replay: %w", err)
	}
	if !report.Match {
		result.AddError(fmt.Sprintf("replay mismatch: persisted buffs %v, replayed %v", report.Persisted, report.Replayed))
	}
	return nil
}

// checkExpect compares a step outcome with its expect clause and returns a
// failure message, or "".
func checkExpect(expect *ExpectClause, ev TraceEvent) string {
	want := CaseOK
	if expect != nil {
		want = expect.Case
	}
	if ev.Case != want {
		if ev.Message != "" {
			return fmt.Sprintf("expected case %s, got %s (%s)", want, ev.Case, ev.Message)
		}
		return fmt.Sprintf("expected case %s, got %s", want, ev.Case)
	}
	if expect == nil {
		return ""
	}
	if expect.Logs != nil && !slices.Equal(expect.Logs, ev.Logs) {
		return fmt.Sprintf("expected logs %q, got %q", expect.Logs, ev.Logs)
	}
	if expect.Message != "" && !strings.Contains(ev.Message, expect.Message) {
		return fmt.Sprintf("expected message containing %q, got %q", expect.Message, ev.Message)
	}
	return ""
}

// toGeneric normalizes YAML-decoded values to what a JSON decoder with
// UseNumber produces.
func toGeneric(m map[string]any) (map[string]any, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, errs.Wrap(errs.CodeValidation, err, "encode step")
	}
	v, err := event.DecodeGeneric(data)
	if err != nil {
		return nil, err
	}
	out, ok := v.(map[string]any)
	if !ok {
		return nil, errs.New(errs.CodeValidation, "expected an object")
	}
	return out, nil
}

func toEvent(m map[string]any) (*event.Event, error) {
	generic, err := toGeneric(m)
	if err != nil {
		return nil, err
	}
	return event.DecodeCandidate(generic)
}
