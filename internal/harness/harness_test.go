package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/litledger/internal/num"
)

func TestRun_TraceAndState(t *testing.T) {
	s := mustParse(t, `
name: run
description: gains, a rejected spend and a formula
strict: true
formulas:
  - { name: Attack, expression: Strength * 2 }
setup:
  - add: { type: stat, action: gain, name: Strength, value: 4 }
flow:
  - add: { type: gold, action: gain, value: 2, unit: GP }
  - add: { type: gold, action: lose, value: 5, unit: GP }
    expect: { case: INSUFFICIENT_BALANCE, message: "insufficient Gold" }
  - delete: [99]
    expect: { case: ok, logs: ["No events deleted (IDs not found)"] }
assertions:
  - { type: balance, value: "200" }
  - { type: stat, name: Attack, value: "8" }
`)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 4)
	assert.Equal(t, int64(1), result.Trace[0].Seq)
	assert.Equal(t, OpAdd, result.Trace[0].Op)
	assert.Equal(t, CaseOK, result.Trace[0].Case)
	assert.Equal(t, "batch-0001", result.Trace[0].BatchID)
	assert.Equal(t, []int64{1}, result.Trace[0].EventIDs)
	assert.Equal(t, "batch-0002", result.Trace[1].BatchID)
	assert.Equal(t, "INSUFFICIENT_BALANCE", result.Trace[2].Case)
	assert.Empty(t, result.Trace[2].EventIDs)
	assert.NotEmpty(t, result.Trace[2].Message)

	assert.Equal(t, "2 GP", result.Display)
	assert.Equal(t, "200", num.String(result.State.CurrencyBalance))
	assert.Len(t, result.Events, 2)
}

func TestRun_ExpectMismatch(t *testing.T) {
	s := mustParse(t, `
name: mismatch
description: expectations that do not hold
flow:
  - add: { type: gold, action: gain, value: 1 }
    expect: { case: VALIDATION }
  - batch:
      - { type: gold, action: gain, value: 1, reason: "cheat code" }
  - add: { type: gold, action: gain, value: 1 }
    expect: { case: ok, logs: ["something else"] }
assertions:
  - { type: event_count, count: 2 }
`)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "expected case VALIDATION, got ok")
	assert.Contains(t, result.Errors[1], "expected case ok, got SECURITY_REJECTION")
	assert.Contains(t, result.Errors[2], "expected logs")
}

func TestRun_SetupFailure(t *testing.T) {
	s := mustParse(t, `
name: setup_failure
description: setup steps must succeed
strict: true
setup:
  - add: { type: gold, action: lose, value: 1 }
flow:
  - add: { type: chapter_start }
assertions:
  - { type: event_count, count: 1 }
`)
	_, err := Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup step 0 (add) failed")
}

func TestRun_UnknownPreset(t *testing.T) {
	_, err := Run(context.Background(), &Scenario{Name: "x", Schema: "nope"})
	require.Error(t, err)
}

func TestRun_InvalidCandidate(t *testing.T) {
	s := mustParse(t, `
name: invalid_candidate
description: events failing candidate validation are rejected before the ledger
flow:
  - add: { type: item, action: gain }
    expect: { case: VALIDATION }
  - batch:
      - { type: gold, action: gain, value: 1 }
      - { type: stat, action: gain }
    expect: { case: VALIDATION }
assertions:
  - { type: event_count, count: 0 }
`)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_FormulaStep(t *testing.T) {
	s := mustParse(t, `
name: formula_step
description: formula steps register and are rejected on cycles
formulas:
  - { name: A, expression: B + 1 }
flow:
  - formula: { name: B, expression: A + 1 }
    expect: { case: CIRCULAR_DEPENDENCY }
  - formula: { name: B, expression: "2" }
assertions:
  - { type: stat, name: A, value: "3" }
`)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}
