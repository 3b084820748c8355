package ledger

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/litledger/internal/errs"
	"github.com/roach88/litledger/internal/event"
	"github.com/roach88/litledger/internal/formula"
	"github.com/roach88/litledger/internal/num"
	"github.com/roach88/litledger/internal/rules"
	"github.com/roach88/litledger/internal/schema"
	"github.com/roach88/litledger/internal/testutil"
)

func newLedger(t *testing.T, opts ...Option) *Ledger {
	t.Helper()
	base := []Option{
		WithIDGenerator(testutil.NewFixedIDs("b")),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	l, err := New(append(base, opts...)...)
	require.NoError(t, err)
	return l
}

func ev(t *testing.T, js string) *event.Event {
	t.Helper()
	e, err := event.Decode([]byte(js))
	require.NoError(t, err)
	return e
}

func add(t *testing.T, l *Ledger, js string) *event.Event {
	t.Helper()
	out, err := l.AddEvent(context.Background(), ev(t, js))
	require.NoError(t, err)
	return out
}

func state(t *testing.T, l *Ledger) *State {
	t.Helper()
	st, err := l.State(context.Background())
	require.NoError(t, err)
	return st
}

func TestAddEvent_GoldConversion(t *testing.T) {
	l := newLedger(t)
	add(t, l, `{"type":"gold","action":"gain","value":"10","unit":"GP"}`)
	add(t, l, `{"type":"gold","action":"gain","value":"5","unit":"SP"}`)
	add(t, l, `{"type":"gold","action":"lose","value":"25"}`)

	st := state(t, l)
	assert.Equal(t, "1025", num.String(st.CurrencyBalance))

	balance, err := l.FormatBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "10 GP, 2 SP, 5 CP", balance)
}

func TestAddEvent_AssignsIDsAndBatchIDs(t *testing.T) {
	l := newLedger(t)
	first := add(t, l, `{"type":"gold","action":"gain","value":"1"}`)
	second := add(t, l, `{"type":"gold","action":"gain","value":"1"}`)

	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)
	assert.Equal(t, "b-0001", first.BatchID)
	assert.Equal(t, "b-0002", second.BatchID)
	assert.Equal(t, int64(2), l.LastEventID())
}

func TestAddEvent_GoldSetOverwrites(t *testing.T) {
	l := newLedger(t)
	add(t, l, `{"type":"gold","action":"gain","value":"10","unit":"GP"}`)
	add(t, l, `{"type":"gold","action":"set","value":"3","unit":"SP"}`)

	assert.Equal(t, "30", num.String(state(t, l).CurrencyBalance))
}

func TestUnderflow_StrictRejects(t *testing.T) {
	l := newLedger(t, WithStrict(true))

	_, err := l.AddEvent(context.Background(), ev(t, `{"type":"gold","action":"lose","value":"10","unit":"GP"}`))
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeInsufficientBalance))
	assert.Contains(t, err.Error(), "need 10 GP (1000 CP), have 0 CP (0 CP)")
	assert.Equal(t, 0, l.Len())
	assert.Equal(t, int64(0), l.LastEventID())

	_, err = l.AddEvent(context.Background(), ev(t, `{"type":"item","action":"lose","name":"Rope"}`))
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeInsufficientBalance))
	assert.Contains(t, err.Error(), "insufficient Rope: need 1, have 0")
	assert.Equal(t, 0, l.Len())
}

func TestUnderflow_DraftAllowsAndFlags(t *testing.T) {
	l := newLedger(t)

	out := add(t, l, `{"type":"gold","action":"lose","value":"10","unit":"GP"}`)
	assert.True(t, out.IsImplicit)
	assert.Equal(t, []string{"Warning: Gold underflow allowed in Draft Mode"}, out.Logs)

	item := add(t, l, `{"type":"item","action":"lose","name":"Rope","qty":2}`)
	assert.True(t, item.IsImplicit)
	assert.Equal(t, []string{"Warning: Item Rope underflow allowed"}, item.Logs)

	st := state(t, l)
	assert.Equal(t, "-1000", num.String(st.CurrencyBalance))
	assert.Equal(t, "-2", num.String(st.Inventory["Rope"]))

	// Replaying again does not duplicate annotations.
	_, err := l.Reduce(context.Background(), l.events)
	require.NoError(t, err)
	assert.Len(t, l.Events()[0].Logs, 1)
}

func TestStrict_NegativeStatRejected(t *testing.T) {
	l := newLedger(t, WithStrict(true))
	add(t, l, `{"type":"stat","action":"set","name":"Strength","value":3}`)

	_, err := l.AddEvent(context.Background(), ev(t, `{"type":"stat","action":"lose","name":"Strength","value":5}`))
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeValidation))
	assert.Equal(t, 1, l.Len())
}

func TestStrict_NonPositiveQuantity(t *testing.T) {
	l := newLedger(t, WithStrict(true))
	_, err := l.AddEvent(context.Background(), ev(t, `{"type":"item","action":"gain","name":"Rope","qty":0}`))
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeValidation))
}

func TestIndeterminateValues(t *testing.T) {
	l := newLedger(t)
	gold := add(t, l, `{"type":"gold","action":"gain","value":"TBD","unit":"GP"}`)
	item := add(t, l, `{"type":"item","action":"gain","name":"Gem","qty":null}`)
	stat := add(t, l, `{"type":"stat","action":"gain","name":"Luck","value":""}`)

	assert.True(t, gold.RequiresManualFix)
	assert.True(t, item.RequiresManualFix)
	assert.True(t, stat.RequiresManualFix)

	st := state(t, l)
	assert.True(t, st.CurrencyBalance.IsZero())
	assert.Empty(t, st.Inventory)
	assert.Empty(t, st.BaseStats)
}

func TestSanitizedValues(t *testing.T) {
	l := newLedger(t)
	add(t, l, `{"type":"gold","action":"gain","value":"1,250 coins","unit":"CP"}`)
	add(t, l, `{"type":"gold","action":"gain","value":"lots"}`)

	assert.Equal(t, "1250", num.String(state(t, l).CurrencyBalance))
}

func TestFuzzyMatchingAnnotatesEvents(t *testing.T) {
	l := newLedger(t)
	add(t, l, `{"type":"item","action":"gain","name":"Rotten Core"}`)
	matched := add(t, l, `{"type":"item","action":"gain","name":"Rottn Core"}`)
	add(t, l, `{"type":"item","action":"gain","name":"Item 1"}`)
	add(t, l, `{"type":"item","action":"gain","name":"Item 2"}`)

	assert.Equal(t, "Rotten Core", matched.Name())
	assert.Equal(t, "Rottn Core", matched.OriginalName)
	assert.Equal(t, []string{"Fuzzy Matched: Rottn Core -> Rotten Core"}, matched.Logs)

	st := state(t, l)
	assert.Equal(t, []string{"Item 1", "Item 2", "Rotten Core"}, st.InventoryNames())
	assert.Equal(t, "2", num.String(st.Inventory["Rotten Core"]))
}

func TestFuzzyMatchingAmbiguous(t *testing.T) {
	l := newLedger(t)
	add(t, l, `{"type":"item","action":"gain","name":"Healing Potion 1"}`)
	add(t, l, `{"type":"item","action":"gain","name":"Healing Potion 2"}`)
	out := add(t, l, `{"type":"item","action":"gain","name":"Healing Potin 1"}`)

	assert.True(t, out.RequiresManualFix)
	assert.Equal(t, "Healing Potin 1", out.Name())
	assert.Equal(t, []string{"Ambiguous match for 'Healing Potin 1' - please verify."}, out.Logs)
	assert.Len(t, state(t, l).Inventory, 3)
}

func TestItemSet(t *testing.T) {
	l := newLedger(t)
	add(t, l, `{"type":"item","action":"gain","name":"Arrow","qty":20}`)
	add(t, l, `{"type":"item","action":"set","name":"Arrow","qty":"7"}`)
	assert.Equal(t, "7", num.String(state(t, l).Inventory["Arrow"]))
}

func TestBuffExpiryAndFormulas(t *testing.T) {
	l := newLedger(t, WithFormulas([]formula.Formula{{Name: "Attack", Expression: "Strength * 2"}}))
	add(t, l, `{"type":"stat","action":"set","name":"Strength","value":10}`)
	buff := add(t, l, `{"type":"buff","action":"gain","name":"Rage","effects":{"Strength":"+5","Mood":"furious"},"expiry_type":"chapter","expiry_value":2}`)

	assert.Equal(t, []string{"Dropped non-numeric effect 'Mood'"}, buff.Logs)

	st := state(t, l)
	assert.Equal(t, []string{"buff_001"}, st.ActiveBuffIDs)
	assert.Equal(t, "30", num.String(st.ComputedStats["Attack"]))
	assert.Equal(t, "10", num.String(st.BaseStats["Strength"]))

	add(t, l, `{"type":"chapter_start","action":"gain"}`)
	st = state(t, l)
	assert.Equal(t, []string{"buff_001"}, st.ActiveBuffIDs)

	add(t, l, `{"type":"chapter_start","action":"gain"}`)
	st = state(t, l)
	assert.Empty(t, st.ActiveBuffIDs)
	assert.Equal(t, "20", num.String(st.ComputedStats["Attack"]))
	assert.Equal(t, int64(2), st.Chapter)
}

func TestBuffExpiresBeforeEventApplies(t *testing.T) {
	l := newLedger(t)
	add(t, l, `{"type":"buff","action":"gain","name":"Haste","effects":{"Speed":5},"expiry_type":"word_count","expiry_value":1000}`)
	add(t, l, `{"type":"word_count_delta","action":"gain","word_count_delta":999}`)
	assert.Len(t, state(t, l).ActiveBuffIDs, 1)

	// Reaching the threshold expires the buff before the event applies.
	add(t, l, `{"type":"word_count_delta","action":"gain","word_count_delta":1}`)
	add(t, l, `{"type":"buff","action":"gain","name":"Slow","effects":{"Speed":-5},"expiry_type":"permanent"}`)

	buffs, err := l.ActiveBuffs(context.Background())
	require.NoError(t, err)
	require.Len(t, buffs, 1)
	assert.Equal(t, "Slow", buffs[0].Name)
	assert.Equal(t, "buff_002", buffs[0].ID)
	assert.Equal(t, int64(1000), state(t, l).WordCount)
}

func TestBuffDefaults(t *testing.T) {
	l := newLedger(t)
	out := add(t, l, `{"type":"buff","action":"gain","effects":{"Luck":1}}`)

	p := out.Payload.(*event.Buff)
	assert.Equal(t, event.ExpiryChapter, p.ExpiryType)
	assert.Equal(t, "1", p.ExpiryValue.Raw())

	buffs, err := l.ActiveBuffs(context.Background())
	require.NoError(t, err)
	require.Len(t, buffs, 1)
	assert.Equal(t, "Unknown Buff", buffs[0].Name)
}

func TestReplayIsolatesBuffs(t *testing.T) {
	l := newLedger(t)
	add(t, l, `{"type":"buff","action":"gain","name":"Ward","effects":{"Defense":2},"expiry_type":"permanent"}`)

	for range 3 {
		st, err := l.Reduce(context.Background(), l.Events())
		require.NoError(t, err)
		assert.Equal(t, []string{"buff_001"}, st.ActiveBuffIDs)
	}
}

func TestTemporalVariablesInFormulas(t *testing.T) {
	l := newLedger(t)
	require.NoError(t, l.RegisterFormula("Progress", "chapter * 1000 + word_count"))
	add(t, l, `{"type":"chapter_start","action":"gain"}`)
	add(t, l, `{"type":"chapter_start","action":"gain"}`)
	add(t, l, `{"type":"word_count_delta","action":"gain","word_count_delta":500}`)

	assert.Equal(t, "2500", num.String(state(t, l).ComputedStats["Progress"]))
}

func TestFormulaErrorsPropagate(t *testing.T) {
	l := newLedger(t)
	require.NoError(t, l.RegisterFormula("Attack", "Strength * 2"))

	_, err := l.State(context.Background())
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeMissingDependency))

	err = l.RegisterFormula("Loop", "Loop + 1")
	assert.True(t, errs.Is(err, errs.CodeCircularDependency))
}

func TestAlerts(t *testing.T) {
	l := newLedger(t)
	add(t, l, `{"type":"stat","action":"set","name":"Mana","value":"-3"}`)
	add(t, l, `{"type":"stat","action":"set","name":"HP","value":"-5"}`)
	add(t, l, `{"type":"stat","action":"set","name":"Strength","value":"-1"}`)

	assert.Equal(t, []string{
		"CRITICAL: HP is negative (-5)",
		"CRITICAL: Mana is negative (-3)",
	}, state(t, l).Alerts)

	add(t, l, `{"type":"stat","action":"gain","name":"HP","value":"10"}`)
	assert.Equal(t, []string{"CRITICAL: Mana is negative (-3)"}, state(t, l).Alerts)
}

func TestRulesTransformAtCommit(t *testing.T) {
	l := newLedger(t, WithRules([]rules.Spec{{Target: "gold", Operation: "multiply", Modifier: "2", Description: "double loot"}}))
	out := add(t, l, `{"type":"gold","action":"gain","value":"10","unit":"GP"}`)

	v, _ := out.Value()
	assert.Equal(t, "20", v.Raw())
	require.Len(t, out.AppliedRules, 1)
	assert.Equal(t, "double loot", out.AppliedRules[0].Description)
	assert.Equal(t, "2000", num.String(state(t, l).CurrencyBalance))

	// Rules added later leave stored events alone.
	_, err := l.AddRule(rules.Spec{Target: "any", Operation: "set", Modifier: "0"})
	require.NoError(t, err)
	assert.Equal(t, "2000", num.String(state(t, l).CurrencyBalance))
}

func TestProcessBatch_SuccessLogs(t *testing.T) {
	l := newLedger(t)
	res, err := l.ProcessBatch(context.Background(), []*event.Event{
		ev(t, `{"type":"gold","action":"gain","value":"10","unit":"GP"}`),
		ev(t, `{"type":"item","action":"gain","name":"Sword"}`),
		ev(t, `{"type":"stat","action":"gain","name":"Strength","value":2}`),
		ev(t, `{"type":"buff","action":"gain","name":"Haste","effects":{"Speed":"+10%"}}`),
		ev(t, `{"type":"chapter_start","action":"gain"}`),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"GAIN 10 GP", "GAIN Sword x1", "GAIN Strength +2", "Buff Applied: Haste"}, res.Logs)
	assert.Equal(t, "b-0001", res.BatchID)
	require.Len(t, res.Events, 5)
	for i, e := range res.Events {
		assert.Equal(t, int64(i+1), e.ID)
		assert.Equal(t, "b-0001", e.BatchID)
	}
	assert.Equal(t, 5, l.Len())
}

func TestProcessBatch_SecurityRejectsWholeBatch(t *testing.T) {
	l := newLedger(t)
	add(t, l, `{"type":"gold","action":"gain","value":"1"}`)

	_, err := l.ProcessBatch(context.Background(), []*event.Event{
		ev(t, `{"type":"gold","action":"gain","value":"10","unit":"GP"}`),
		ev(t, `{"type":"item","action":"gain","name":"Sword"}`),
		ev(t, `{"type":"stat","action":"gain","name":"Strength","value":2}`),
		ev(t, `{"type":"stat","action":"gain","name":"Strength","value":2,"reason":"developer override"}`),
	})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeSecurityRejection))
	assert.Contains(t, err.Error(), "Transaction Blocked: Security Alert: Blocked suspicious keyword 'developeroverride'")

	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "3", e.Details["index"])

	assert.Equal(t, 1, l.Len())
	assert.Equal(t, int64(1), l.LastEventID())
}

func TestProcessBatch_StrictReplayFailureCommitsNothing(t *testing.T) {
	l := newLedger(t, WithStrict(true))
	_, err := l.ProcessBatch(context.Background(), []*event.Event{
		ev(t, `{"type":"gold","action":"gain","value":"5","unit":"GP"}`),
		ev(t, `{"type":"gold","action":"lose","value":"6","unit":"GP"}`),
	})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeInsufficientBalance))
	assert.Equal(t, 0, l.Len())

	res, err := l.ProcessBatch(context.Background(), []*event.Event{
		ev(t, `{"type":"gold","action":"gain","value":"5","unit":"GP"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Events[0].ID)
}

func TestProcessBatch_Empty(t *testing.T) {
	l := newLedger(t)
	res, err := l.ProcessBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Events)
	assert.Equal(t, 0, l.Len())
}

func TestStateCache(t *testing.T) {
	l := newLedger(t)
	add(t, l, `{"type":"gold","action":"gain","value":"1"}`)

	state(t, l)
	n := l.Replays()
	state(t, l)
	state(t, l)
	assert.Equal(t, n, l.Replays())

	add(t, l, `{"type":"gold","action":"gain","value":"1"}`)
	assert.Equal(t, n+1, l.Replays(), "commit replays once")
	state(t, l)
	assert.Equal(t, n+1, l.Replays(), "committed state is cached")

	require.NoError(t, l.RegisterFormula("Double", "chapter * 2"))
	state(t, l)
	assert.Equal(t, n+2, l.Replays(), "formula registration invalidates")
}

func TestStateIsACopy(t *testing.T) {
	l := newLedger(t)
	add(t, l, `{"type":"item","action":"gain","name":"Sword"}`)

	st := state(t, l)
	st.Inventory["Sword"] = num.FromInt(99)
	assert.Equal(t, "1", num.String(state(t, l).Inventory["Sword"]))

	evs := l.Events()
	evs[0].Reason = "tampered"
	assert.Empty(t, l.Events()[0].Reason)
}

func TestModifyEvent(t *testing.T) {
	l := newLedger(t, WithStrict(true))
	add(t, l, `{"type":"gold","action":"gain","value":"10","unit":"GP"}`)
	add(t, l, `{"type":"gold","action":"lose","value":"5","unit":"GP"}`)

	out, err := l.ModifyEvent(context.Background(), 2, map[string]any{"value": "3"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), out.ID)
	assert.Equal(t, "700", num.String(state(t, l).CurrencyBalance))

	// Shrinking the first gain below the later loss is rolled back.
	_, err = l.ModifyEvent(context.Background(), 1, map[string]any{"value": "1"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeInsufficientBalance))
	v, _ := l.Events()[0].Value()
	assert.Equal(t, "10", v.Raw())
	assert.Equal(t, "700", num.String(state(t, l).CurrencyBalance))

	_, err = l.ModifyEvent(context.Background(), 99, map[string]any{"value": "1"})
	assert.True(t, errs.Is(err, errs.CodeNotFound))
}

func TestDeleteEvents(t *testing.T) {
	l := newLedger(t, WithStrict(true))
	add(t, l, `{"type":"gold","action":"gain","value":"10","unit":"GP"}`)
	add(t, l, `{"type":"gold","action":"lose","value":"5","unit":"GP"}`)
	add(t, l, `{"type":"item","action":"gain","name":"Torch"}`)

	// Deleting the gain would overdraw the later loss.
	err := l.DeleteEvent(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeInsufficientBalance))
	assert.Equal(t, 3, l.Len())

	err = l.DeleteEvent(context.Background(), 99)
	assert.True(t, errs.Is(err, errs.CodeNotFound))

	res, err := l.DeleteEvents(context.Background(), []int64{98, 99})
	require.NoError(t, err)
	assert.Equal(t, "No events deleted (IDs not found)", res.Message)

	res, err = l.DeleteEvents(context.Background(), []int64{2, 3})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Deleted)
	assert.Equal(t, "Successfully deleted 2 events", res.Message)
	assert.Equal(t, "1000", num.String(state(t, l).CurrencyBalance))

	// Ids keep counting after a delete.
	out := add(t, l, `{"type":"gold","action":"gain","value":"1"}`)
	assert.Equal(t, int64(4), out.ID)
}

func TestSwitchSchema(t *testing.T) {
	l := newLedger(t)
	add(t, l, `{"type":"gold","action":"gain","value":"2","unit":"USD"}`)

	// USD is unknown to the fantasy preset and passes through 1:1.
	assert.Equal(t, "2", num.String(state(t, l).CurrencyBalance))

	require.NoError(t, l.SwitchSchema(schema.Modern()))
	assert.Equal(t, "200", num.String(state(t, l).CurrencyBalance))
	balance, err := l.FormatBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "$2.00", balance)

	assert.True(t, errs.Is(l.SwitchSchema(nil), errs.CodeConfiguration))
}

func TestStateJSON(t *testing.T) {
	l := newLedger(t)
	add(t, l, `{"type":"gold","action":"gain","value":"1.5"}`)
	add(t, l, `{"type":"stat","action":"set","name":"Luck","value":3}`)

	data, err := json.Marshal(state(t, l))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "1.5", raw["currency_balance"])
	assert.Equal(t, map[string]any{"Luck": "3"}, raw["base_stats"])

	var back State
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, "1.5", num.String(back.CurrencyBalance))
}

func TestReduceIsDeterministic(t *testing.T) {
	l := newLedger(t)
	add(t, l, `{"type":"gold","action":"gain","value":"10","unit":"GP"}`)
	add(t, l, `{"type":"item","action":"gain","name":"Rope","qty":2}`)
	add(t, l, `{"type":"buff","action":"gain","name":"Ward","effects":{"Defense":2}}`)

	a, err := l.Reduce(context.Background(), l.Events())
	require.NoError(t, err)
	b, err := l.Reduce(context.Background(), l.Events())
	require.NoError(t, err)

	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	assert.JSONEq(t, string(ja), string(jb))
}
