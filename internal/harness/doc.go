// Package harness runs ledger scenarios: YAML files that drive a fresh
// in-memory ledger through a flow of commits and retcons, then assert on the
// derived state and on the trace of step outcomes.
//
// # Scenario Format
//
//	name: merchant_batch
//	description: "A batch commits atomically and a blocked batch changes nothing"
//	strict: false
//	schema: classic_fantasy
//	formulas:
//	  - name: Attack
//	    expression: Strength * 2
//	rules:
//	  - target: gold
//	    operation: multiply
//	    modifier: "1.5"
//	setup:
//	  - add: { type: gold, action: gain, value: 10, unit: GP }
//	flow:
//	  - batch:
//	      - { type: item, action: gain, name: Rope, qty: 2 }
//	    expect:
//	      case: ok
//	      logs: ["GAIN Rope x2"]
//	  - modify: { id: 9, patch: { value: 1 } }
//	    expect: { case: NOT_FOUND }
//	  - delete: [2]
//	  - formula: { name: Defense, expression: "10 + Agility" }
//	assertions:
//	  - type: balance
//	    value: "1000"
//	  - type: inventory
//	    name: Rope
//	    absent: true
//	  - type: trace_count
//	    op: batch
//	    count: 1
//
// Every step holds exactly one operation. A step without expect must
// succeed; expect.case is "ok" or an error code such as SECURITY_REJECTION.
// Setup steps must succeed.
//
// # Assertion Types
//
//   - balance, display: currency in base units, or as displayed
//   - inventory, stat, base_stat: one entry by name (value, or absent)
//   - buff_active: an active buff by name (or absent)
//   - alert_contains: an alert containing text
//   - event_count: number of committed events
//   - event: subset match of one stored event's fields, by id
//   - trace_contains, trace_count: step outcomes by op and case
//
// # Deterministic Runs
//
// Batch ids come from a fixed generator (batch-0001, ...), the ledger never
// touches the filesystem, and step sequence numbers start at 1. After the
// flow the harness replays the final log once more and fails the scenario if
// the replayed buff set differs. RunWithGolden compares the canonical JSON of
// the trace and final state against testdata/golden/<name>.golden.
package harness
