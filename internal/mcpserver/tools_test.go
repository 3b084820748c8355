package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sort"
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/litledger/internal/errs"
	"github.com/roach88/litledger/internal/ledger"
	"github.com/roach88/litledger/internal/testutil"
)

func newServer(t *testing.T) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l, err := ledger.New(ledger.WithIDGenerator(testutil.NewFixedIDs("b")), ledger.WithLogger(logger))
	require.NoError(t, err)
	return New(l, "test", logger)
}

func TestProcessBatchAndState(t *testing.T) {
	ctx := context.Background()
	s := newServer(t)

	_, batch, err := s.handleProcessBatch(ctx, nil, ProcessBatchInput{Events: []map[string]any{
		{"type": "gold", "action": "gain", "value": "3", "unit": "GP"},
		{"type": "item", "action": "gain", "name": "Lantern", "qty": float64(1)},
		{"type": "buff", "action": "gain", "name": "Haste", "effects": map[string]any{"Speed": "2"}, "expiry_type": "permanent"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "b-0001", batch.BatchID)
	assert.Equal(t, []string{"GAIN 3 GP", "GAIN Lantern x1", "Buff Applied: Haste"}, batch.Logs)
	require.Len(t, batch.Events, 3)

	_, st, err := s.handleGetState(ctx, nil, GetStateInput{})
	require.NoError(t, err)
	assert.Equal(t, "300", st.CurrencyBalance)
	assert.Equal(t, "3 GP", st.Display)
	assert.Equal(t, map[string]string{"Lantern": "1"}, st.Inventory)
	require.Len(t, st.ActiveBuffs, 1)
	assert.Equal(t, "buff_001", st.ActiveBuffs[0].ID)
	assert.Equal(t, map[string]string{"Speed": "2"}, st.ActiveBuffs[0].Effects)
}

func TestProcessBatch_Rejections(t *testing.T) {
	ctx := context.Background()
	s := newServer(t)

	_, _, err := s.handleProcessBatch(ctx, nil, ProcessBatchInput{Events: []map[string]any{
		{"type": "gold", "action": "gain", "value": "1", "reason": "cheat code"},
	}})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeSecurityRejection))

	_, _, err = s.handleProcessBatch(ctx, nil, ProcessBatchInput{Events: []map[string]any{
		{"type": "teleport"},
	}})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeValidation))

	_, out, err := s.handleListEvents(ctx, nil, ListEventsInput{})
	require.NoError(t, err)
	assert.Empty(t, out.Events)
}

func TestAddModifyDelete(t *testing.T) {
	ctx := context.Background()
	s := newServer(t)

	_, added, err := s.handleAddEvent(ctx, nil, AddEventInput{Event: map[string]any{
		"type": "stat", "action": "gain", "name": "Strength", "value": "5",
	}})
	require.NoError(t, err)
	assert.Equal(t, json.Number("1"), added.Event["event_id"])

	_, modified, err := s.handleModifyEvent(ctx, nil, ModifyEventInput{EventID: 1, Patch: map[string]any{"value": "7"}})
	require.NoError(t, err)
	assert.Equal(t, "7", modified.Event["value"])

	_, _, err = s.handleModifyEvent(ctx, nil, ModifyEventInput{EventID: 99, Patch: map[string]any{"value": "1"}})
	assert.True(t, errs.Is(err, errs.CodeNotFound))

	_, del, err := s.handleDeleteEvents(ctx, nil, DeleteEventsInput{EventIDs: []int64{1, 42}})
	require.NoError(t, err)
	assert.Equal(t, 1, del.Deleted)
	assert.Equal(t, "Successfully deleted 1 events", del.Message)

	_, _, err = s.handleAddEvent(ctx, nil, AddEventInput{})
	assert.True(t, errs.Is(err, errs.CodeValidation))
}

func TestRegisterFormulaAndFormat(t *testing.T) {
	ctx := context.Background()
	s := newServer(t)

	_, out, err := s.handleRegisterFormula(ctx, nil, RegisterFormulaInput{Name: "Attack", Expression: "Strength * 2"})
	require.NoError(t, err)
	require.Len(t, out.Formulas, 1)
	assert.Equal(t, []string{"Strength"}, out.Formulas[0].Dependencies)

	_, _, err = s.handleRegisterFormula(ctx, nil, RegisterFormulaInput{Name: "Strength", Expression: "Attack + 1"})
	assert.True(t, errs.Is(err, errs.CodeCircularDependency))

	_, f, err := s.handleFormatValue(ctx, nil, FormatValueInput{Value: "1,025"})
	require.NoError(t, err)
	assert.Equal(t, "10 GP, 2 SP, 5 CP", f.Formatted)
}

func TestTools_Listed(t *testing.T) {
	ctx := context.Background()
	s := newServer(t)

	clientTransport, serverTransport := sdk.NewInMemoryTransports()
	serverSession, err := s.mcp.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	defer serverSession.Close()

	client := sdk.NewClient(&sdk.Implementation{Name: "test-client", Version: "test"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer session.Close()

	res, err := session.ListTools(ctx, nil)
	require.NoError(t, err)
	names := make([]string, 0, len(res.Tools))
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{
		"add_event", "delete_events", "format_value", "get_state",
		"list_events", "modify_event", "process_batch", "register_formula",
	}, names)
}
