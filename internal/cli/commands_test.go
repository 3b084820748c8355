package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gainTenGold = `{"type":"gold","action":"gain","value":"10","unit":"GP"}`

// inTempDir runs the test from an empty directory, so the default save
// file, archive and campaign config all land there.
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, args...)
	require.NoError(t, err, "litledger %v: %s", args, out)
	return out
}

func stateOf(t *testing.T, args ...string) map[string]any {
	t.Helper()
	data, cliErr, err := executeJSON(t, append([]string{"state"}, args...)...)
	require.NoError(t, err)
	require.Nil(t, cliErr)
	return data
}

func balance(t *testing.T, args ...string) string {
	t.Helper()
	st := stateOf(t, args...)["state"].(map[string]any)
	return st["currency_balance"].(string)
}

func TestAddAndState(t *testing.T) {
	inTempDir(t)

	mustRun(t, "add", gainTenGold)
	mustRun(t, "add", `{"type":"item","action":"gain","name":"Rope","qty":2}`)

	view := stateOf(t)
	assert.Equal(t, "10 GP", view["display"])
	st := view["state"].(map[string]any)
	assert.Equal(t, "1000", st["currency_balance"])
	assert.Equal(t, map[string]any{"Rope": "2"}, st["inventory"])

	text := mustRun(t, "state")
	assert.Contains(t, text, "Balance: 10 GP (1000 base)")
	assert.Contains(t, text, "Rope x2")

	_, err := os.Stat("litledger_events.json")
	assert.NoError(t, err)
}

func TestAdd_FromFile(t *testing.T) {
	dir := inTempDir(t)
	path := filepath.Join(dir, "event.json")
	require.NoError(t, os.WriteFile(path, []byte(gainTenGold), 0o644))

	mustRun(t, "add", "@"+path)
	assert.Equal(t, "1000", balance(t))

	_, err := execute(t, "add", "@missing.json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestAdd_InvalidEvent(t *testing.T) {
	inTempDir(t)

	_, cliErr, err := executeJSON(t, "add", `{"type":"teleport","action":"gain"}`)
	require.Error(t, err)
	require.NotNil(t, cliErr)
	assert.Equal(t, "VALIDATION", cliErr.Code)
}

func TestBatch(t *testing.T) {
	inTempDir(t)

	out := mustRun(t, "batch", `[
		{"type":"gold","action":"gain","value":"3","unit":"GP"},
		{"type":"item","action":"gain","name":"Lantern","qty":1},
		{"type":"buff","action":"gain","name":"Haste","effects":{"Speed":"2"},"expiry_type":"permanent"}
	]`)
	assert.Contains(t, out, "GAIN 3 GP")
	assert.Contains(t, out, "GAIN Lantern x1")
	assert.Contains(t, out, "Buff Applied: Haste")

	view := stateOf(t)
	buffs := view["active_buffs"].([]any)
	require.Len(t, buffs, 1)
	assert.Equal(t, "buff_001", buffs[0].(map[string]any)["id"])
}

func TestBatch_RejectedLeavesLogUntouched(t *testing.T) {
	inTempDir(t)
	mustRun(t, "add", gainTenGold)

	_, cliErr, err := executeJSON(t, "batch", `[
		{"type":"gold","action":"gain","value":"1","unit":"GP"},
		{"type":"gold","action":"gain","value":"1","reason":"cheat code"}
	]`)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	require.NotNil(t, cliErr)
	assert.Equal(t, "SECURITY_REJECTION", cliErr.Code)

	data, _, err := executeJSON(t, "events")
	require.NoError(t, err)
	assert.Len(t, data["events"], 1)
	assert.Equal(t, "1000", balance(t))
}

func TestBatch_StrictUnderflow(t *testing.T) {
	inTempDir(t)

	_, cliErr, err := executeJSON(t, "--strict", "batch", `[{"type":"gold","action":"lose","value":"1","unit":"GP"}]`)
	require.Error(t, err)
	require.NotNil(t, cliErr)
	assert.Equal(t, "INSUFFICIENT_BALANCE", cliErr.Code)

	mustRun(t, "batch", `[{"type":"gold","action":"lose","value":"1","unit":"GP"}]`)
	assert.Equal(t, "-100", balance(t))
}

func TestEvents_Limit(t *testing.T) {
	inTempDir(t)
	for range 3 {
		mustRun(t, "add", gainTenGold)
	}

	data, _, err := executeJSON(t, "events", "--limit", "2")
	require.NoError(t, err)
	events := data["events"].([]any)
	require.Len(t, events, 2)
	assert.Equal(t, float64(2), events[0].(map[string]any)["event_id"])

	assert.Contains(t, mustRun(t, "events"), "#3 gold")
}

func TestModifyAndDelete(t *testing.T) {
	inTempDir(t)
	mustRun(t, "add", gainTenGold)
	mustRun(t, "add", `{"type":"item","action":"gain","name":"Rope"}`)

	mustRun(t, "modify", "1", `{"value":"20"}`)
	assert.Equal(t, "2000", balance(t))

	out := mustRun(t, "delete", "2", "99")
	assert.NotEmpty(t, out)
	st := stateOf(t)["state"].(map[string]any)
	assert.Empty(t, st["inventory"])

	next := mustRun(t, "--format", "json", "add", gainTenGold)
	var resp struct {
		Data EventListJSON `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(next), &resp))
	require.Len(t, resp.Data.Events, 1)
	assert.Equal(t, int64(3), resp.Data.Events[0].ID, "ids are never reused")
}

// EventListJSON decodes only the ids of an events payload.
type EventListJSON struct {
	Events []struct {
		ID int64 `json:"event_id"`
	} `json:"events"`
}

func TestModify_StrictRetconRejected(t *testing.T) {
	inTempDir(t)
	mustRun(t, "add", gainTenGold)
	mustRun(t, "add", `{"type":"gold","action":"lose","value":"8","unit":"GP"}`)

	_, cliErr, err := executeJSON(t, "--strict", "modify", "1", `{"value":"5"}`)
	require.Error(t, err)
	require.NotNil(t, cliErr)
	assert.Equal(t, "INSUFFICIENT_BALANCE", cliErr.Code)
	assert.Equal(t, "200", balance(t))
}

func TestModify_BadID(t *testing.T) {
	inTempDir(t)

	_, err := execute(t, "modify", "first", `{"value":"1"}`)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "modify", "7", `{"value":"1"}`)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestFormula_Persist(t *testing.T) {
	inTempDir(t)
	mustRun(t, "add", `{"type":"stat","action":"gain","name":"Strength","value":5}`)

	out := mustRun(t, "formula", "add", "Attack", "Strength * 2", "--persist")
	assert.Contains(t, out, "Attack = Strength * 2  -> 10")

	_, err := os.Stat("litledger.yaml")
	require.NoError(t, err)

	data, _, err := executeJSON(t, "formula", "list")
	require.NoError(t, err)
	formulas := data["formulas"].([]any)
	require.Len(t, formulas, 1)
	assert.Equal(t, "Attack", formulas[0].(map[string]any)["name"])
	assert.Equal(t, map[string]any{"Attack": "10"}, data["computed_stats"])
}

func TestFormula_CycleRejected(t *testing.T) {
	inTempDir(t)
	mustRun(t, "add", `{"type":"stat","action":"gain","name":"Strength","value":5}`)
	mustRun(t, "formula", "add", "A", "Strength + 1", "--persist")
	mustRun(t, "formula", "add", "B", "A + 1", "--persist")

	_, cliErr, err := executeJSON(t, "formula", "add", "A", "B + 1")
	require.Error(t, err)
	require.NotNil(t, cliErr)
	assert.Equal(t, "CIRCULAR_DEPENDENCY", cliErr.Code)
}

func TestRule_Persist(t *testing.T) {
	inTempDir(t)

	mustRun(t, "rule", "add", "--target", "gold", "--op", "multiply", "--modifier", "2", "--description", "guild bonus", "--persist")

	data, _, err := executeJSON(t, "rule", "list")
	require.NoError(t, err)
	rules := data["rules"].([]any)
	require.Len(t, rules, 1)
	assert.Equal(t, "rule_001", rules[0].(map[string]any)["id"])

	mustRun(t, "batch", `[{"type":"gold","action":"gain","value":"1","unit":"GP"}]`)
	assert.Equal(t, "200", balance(t))
}

func TestRule_InvalidOperation(t *testing.T) {
	inTempDir(t)

	_, cliErr, err := executeJSON(t, "rule", "add", "--target", "gold", "--op", "divide", "--modifier", "2")
	require.Error(t, err)
	require.NotNil(t, cliErr)
	assert.Equal(t, "VALIDATION", cliErr.Code)
}

func TestSchemaCommands(t *testing.T) {
	dir := inTempDir(t)

	assert.Contains(t, mustRun(t, "schema", "presets"), "xianxia")

	data, _, err := executeJSON(t, "schema", "show")
	require.NoError(t, err)
	assert.Equal(t, "CP", data["schema"].(map[string]any)["base_unit"])

	world := filepath.Join(dir, "world.json")
	mustRun(t, "schema", "preset", "modern", "--out", world)
	data, _, err = executeJSON(t, "schema", "validate", world)
	require.NoError(t, err)
	assert.Equal(t, "Dollars", data["schema"].(map[string]any)["currency_name"])

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"currency_name":"","base_unit":"X","conversions":{"X":1}}`), 0o644))
	_, err = execute(t, "schema", "validate", bad)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "schema", "preset", "steampunk")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSlot_ExportImport(t *testing.T) {
	dir := inTempDir(t)
	mustRun(t, "add", gainTenGold)

	path := filepath.Join(dir, "backups", "ch1.json.zst")
	assert.Contains(t, mustRun(t, "slot", "export", path), "Exported 1 events")

	mustRun(t, "delete", "1")
	assert.Equal(t, "0", balance(t))

	mustRun(t, "slot", "import", path)
	assert.Equal(t, "1000", balance(t))
}

func TestSlot_Archive(t *testing.T) {
	inTempDir(t)
	mustRun(t, "add", gainTenGold)
	mustRun(t, "slot", "save", "chapter-1")
	mustRun(t, "add", gainTenGold)
	assert.Equal(t, "2000", balance(t))

	data, _, err := executeJSON(t, "slot", "list")
	require.NoError(t, err)
	slots := data["slots"].([]any)
	require.Len(t, slots, 1)
	assert.Equal(t, "chapter-1", slots[0].(map[string]any)["name"])
	assert.Equal(t, float64(1), slots[0].(map[string]any)["events"])

	mustRun(t, "slot", "load", "chapter-1")
	assert.Equal(t, "1000", balance(t))

	mustRun(t, "slot", "delete", "chapter-1")
	_, cliErr, err := executeJSON(t, "slot", "load", "chapter-1")
	require.Error(t, err)
	require.NotNil(t, cliErr)
	assert.Equal(t, "NOT_FOUND", cliErr.Code)
}

func TestReplay(t *testing.T) {
	dir := inTempDir(t)
	mustRun(t, "add", gainTenGold)
	mustRun(t, "add", `{"type":"buff","action":"gain","name":"Ward","effects":{"Defense":"2"},"expiry_type":"permanent"}`)

	out := mustRun(t, "replay")
	assert.Contains(t, out, "deterministic: true")
	assert.Contains(t, out, "buffs match:   true")

	raw, err := os.ReadFile("litledger_events.json")
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	doc["active_buffs"] = []any{}
	tampered, err := json.Marshal(doc)
	require.NoError(t, err)
	path := filepath.Join(dir, "tampered.json")
	require.NoError(t, os.WriteFile(path, tampered, 0o644))

	data, _, err := executeJSON(t, "replay", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, false, data["match"])
	assert.Equal(t, []any{"buff_001"}, data["replayed_buffs"])
}

func TestIngest(t *testing.T) {
	dir := inTempDir(t)
	chapter := filepath.Join(dir, "ch1.txt")
	response := filepath.Join(dir, "ch1.model.json")
	require.NoError(t, os.WriteFile(chapter, []byte("She found twelve coins."), 0o644))
	require.NoError(t, os.WriteFile(response, []byte("```json\n"+`[
		{"type":"gold","action":"gain","value":12},
		{"type":"spell","action":"gain"}
	]`+"\n```"), 0o644))

	data, _, err := executeJSON(t, "ingest", chapter, "--response", response)
	require.NoError(t, err)
	assert.Len(t, data["events"], 1)
	assert.Nil(t, data["batch"])
	assert.Equal(t, "0", balance(t))

	data, _, err = executeJSON(t, "ingest", chapter, "--response", response, "--commit")
	require.NoError(t, err)
	require.NotNil(t, data["batch"])
	assert.Equal(t, "12", balance(t))

	totals, _, err := executeJSON(t, "usage")
	require.NoError(t, err)
	assert.NotZero(t, totals["total_tokens"])
	assert.Equal(t, "0", totals["saved_usd"])
}

func TestTestCommand(t *testing.T) {
	scenarios, err := filepath.Abs(filepath.Join("..", "harness", "testdata", "scenarios"))
	require.NoError(t, err)
	inTempDir(t)

	out := mustRun(t, "test", scenarios)
	assert.Contains(t, out, "Test Summary: 7 passed, 0 failed, 7 total")
	assert.Contains(t, out, "All scenarios passed")

	data, cliErr, err := executeJSON(t, "test", scenarios, "--filter", "merchant")
	require.NoError(t, err)
	require.Nil(t, cliErr)
	assert.EqualValues(t, 1, data["passed"])
	assert.EqualValues(t, 6, data["skipped"])
}

func TestTestCommand_Failures(t *testing.T) {
	dir := inTempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong.yaml"), []byte(`
name: wrong
description: asserts the wrong balance
flow:
  - add: { type: gold, action: gain, value: 1, unit: GP }
assertions:
  - { type: balance, value: "5" }
`), 0o644))

	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong")
	assert.Contains(t, out, "1 failed")

	_, err = execute(t, "test", filepath.Join(dir, "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
