package rules

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/litledger/internal/errs"
	"github.com/roach88/litledger/internal/event"
)

func goldEvent(value event.Amount) *event.Event {
	return &event.Event{
		Envelope: event.Envelope{Action: event.ActionGain},
		Payload:  &event.Gold{Value: value, Unit: "GP"},
	}
}

func TestAddRule_IDsAndValidation(t *testing.T) {
	e := New()
	id, err := e.AddRule("gold", OpMultiply, "0.5", "", "inflation")
	require.NoError(t, err)
	assert.Equal(t, "rule_001", id)

	id, err = e.AddRule(TargetAny, OpAdd, "1", "", "")
	require.NoError(t, err)
	assert.Equal(t, "rule_002", id)

	_, err = e.AddRule("weather", OpAdd, "1", "", "")
	assert.True(t, errs.Is(err, errs.CodeValidation))
	_, err = e.AddRule("gold", "divide", "2", "", "")
	assert.True(t, errs.Is(err, errs.CodeValidation))
	_, err = e.AddRule("gold", OpAdd, "half", "", "")
	assert.True(t, errs.Is(err, errs.CodeValidation))
	assert.Equal(t, 2, e.Len())
}

func TestApply_ComposesInOrder(t *testing.T) {
	e := New()
	_, err := e.AddRule("gold", OpMultiply, "0.5", "", "inflation")
	require.NoError(t, err)
	_, err = e.AddRule(TargetAny, OpAdd, "10", "", "bonus")
	require.NoError(t, err)

	in := goldEvent(event.Text("100"))
	out := e.Apply(in)

	v, _ := out.Value()
	assert.Equal(t, "60", v.Raw())
	require.Len(t, out.AppliedRules, 2)
	assert.Equal(t, event.AppliedRule{RuleID: "rule_001", Description: "inflation", OriginalValue: "100", ModifiedValue: "50"}, out.AppliedRules[0])
	assert.Equal(t, event.AppliedRule{RuleID: "rule_002", Description: "bonus", OriginalValue: "50", ModifiedValue: "60"}, out.AppliedRules[1])

	orig, _ := in.Value()
	assert.Equal(t, "100", orig.Raw(), "input is not modified")
	assert.Empty(t, in.AppliedRules)
}

func TestApply_KeepsJSONKind(t *testing.T) {
	e := New()
	_, err := e.AddRule("stat", OpSet, "7", "", "")
	require.NoError(t, err)

	ev := &event.Event{Envelope: event.Envelope{Action: event.ActionSet}, Payload: &event.Stat{Name: "STR", Value: event.Int(3)}}
	data, err := json.Marshal(e.Apply(ev))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"value":7`)
}

func TestApply_Skips(t *testing.T) {
	e := New()
	_, err := e.AddRule("gold", OpMultiply, "2", "chapter > 3", "conditional")
	require.NoError(t, err)
	_, err = e.AddRule("stat", OpAdd, "1", "", "stat only")
	require.NoError(t, err)

	out := e.Apply(goldEvent(event.Text("10")))
	assert.Empty(t, out.AppliedRules, "conditional rule skipped, stat rule does not match gold")

	out = e.Apply(goldEvent(event.Text("TBD")))
	assert.Empty(t, out.AppliedRules)

	e2 := New()
	_, err = e2.AddRule(TargetAny, OpAdd, "1", "", "")
	require.NoError(t, err)
	item := &event.Event{Envelope: event.Envelope{Action: event.ActionGain}, Payload: &event.Item{Name: "Sword"}}
	assert.Empty(t, e2.Apply(item).AppliedRules, "items have no value field")
	assert.Empty(t, e2.Apply(goldEvent(event.Amount{})).AppliedRules, "absent value")
}

func TestRemoveClearList(t *testing.T) {
	e := New()
	id, err := e.AddRule("gold", OpAdd, "1", "", "")
	require.NoError(t, err)
	assert.True(t, e.Remove(id))
	assert.False(t, e.Remove(id))

	_, err = e.AddRule("gold", OpAdd, "1", "", "")
	require.NoError(t, err)
	list := e.List()
	require.Len(t, list, 1)
	assert.Equal(t, "rule_002", list[0].ID)

	e.Clear()
	id, err = e.AddRule("gold", OpAdd, "1", "", "")
	require.NoError(t, err)
	assert.Equal(t, "rule_001", id)
}

func TestJSON_RoundTrip(t *testing.T) {
	e := New()
	_, err := e.Add(Spec{Target: "gold", Operation: "multiply", Modifier: "0.25", Description: "tax"})
	require.NoError(t, err)
	_, err = e.Add(Spec{Target: "stat", Operation: "set", Modifier: "5", Condition: "chapter > 2"})
	require.NoError(t, err)

	data, err := json.Marshal(e)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"modifier":"0.25"`)

	restored := New()
	require.NoError(t, json.Unmarshal(data, restored))
	list := restored.List()
	require.Len(t, list, 2)
	assert.Equal(t, "tax", list[0].Description)
	assert.Equal(t, "chapter > 2", list[1].Condition)
	assert.Zero(t, list[0].Modifier.Cmp(e.List()[0].Modifier))

	id, err := restored.AddRule("gold", OpAdd, "1", "", "")
	require.NoError(t, err)
	assert.Equal(t, "rule_003", id)
}
