package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/roach88/litledger/internal/errs"
	"github.com/roach88/litledger/internal/event"
	"github.com/roach88/litledger/internal/formula"
	"github.com/roach88/litledger/internal/num"
)

type GetStateInput struct{}

type ListEventsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"return only the last N events"`
}

type ProcessBatchInput struct {
	Events []map[string]any `json:"events" jsonschema:"candidate events, committed all-or-nothing"`
}

type AddEventInput struct {
	Event map[string]any `json:"event" jsonschema:"one candidate event"`
}

type ModifyEventInput struct {
	EventID int64          `json:"event_id" jsonschema:"id of the event to edit"`
	Patch   map[string]any `json:"patch" jsonschema:"fields to overwrite; null removes a field"`
}

type DeleteEventsInput struct {
	EventIDs []int64 `json:"event_ids" jsonschema:"ids to delete"`
}

type RegisterFormulaInput struct {
	Name       string `json:"name" jsonschema:"computed stat name"`
	Expression string `json:"expression" jsonschema:"arithmetic over stats, chapter and word_count"`
}

type FormatValueInput struct {
	Value string `json:"value" jsonschema:"amount in the base unit"`
	Unit  string `json:"unit,omitempty" jsonschema:"target unit; empty uses the display format"`
}

type BuffOutput struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Effects     map[string]string `json:"effects"`
	ExpiryType  string            `json:"expiry_type"`
	ExpiryValue string            `json:"expiry_value"`
}

type StateOutput struct {
	CurrencyBalance string            `json:"currency_balance"`
	Display         string            `json:"display"`
	Inventory       map[string]string `json:"inventory"`
	BaseStats       map[string]string `json:"base_stats"`
	ComputedStats   map[string]string `json:"computed_stats"`
	ActiveBuffs     []BuffOutput      `json:"active_buffs"`
	Alerts          []string          `json:"alerts"`
	Chapter         int64             `json:"chapter"`
	WordCount       int64             `json:"word_count"`
}

type EventsOutput struct {
	Events []map[string]any `json:"events"`
}

type EventOutput struct {
	Event map[string]any `json:"event"`
}

type BatchOutput struct {
	BatchID string           `json:"batch_id"`
	Events  []map[string]any `json:"events"`
	Logs    []string         `json:"logs"`
}

type DeleteOutput struct {
	Deleted int    `json:"deleted"`
	Message string `json:"message"`
}

type FormulasOutput struct {
	Formulas []formula.Formula `json:"formulas"`
}

type FormatValueOutput struct {
	Formatted string `json:"formatted"`
}

func (s *Server) registerTools() {
	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_state",
		Description: "Return the state derived from the event log",
	}, s.handleGetState)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "list_events",
		Description: "List committed events in log order",
	}, s.handleListEvents)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "process_batch",
		Description: "Screen and commit a batch of events atomically",
	}, s.handleProcessBatch)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "add_event",
		Description: "Commit a single event",
	}, s.handleAddEvent)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "modify_event",
		Description: "Edit a past event; rejected if the edited history is invalid",
	}, s.handleModifyEvent)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "delete_events",
		Description: "Delete past events; rejected if the remaining history is invalid",
	}, s.handleDeleteEvents)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "register_formula",
		Description: "Add or replace a computed stat",
	}, s.handleRegisterFormula)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "format_value",
		Description: "Render a base-unit amount for display",
	}, s.handleFormatValue)
}

func (s *Server) handleGetState(ctx context.Context, req *sdk.CallToolRequest, input GetStateInput) (*sdk.CallToolResult, StateOutput, error) {
	st, err := s.ledger.State(ctx)
	if err != nil {
		return nil, StateOutput{}, err
	}
	display, err := s.ledger.FormatBalance(ctx)
	if err != nil {
		return nil, StateOutput{}, err
	}
	buffs, err := s.ledger.ActiveBuffs(ctx)
	if err != nil {
		return nil, StateOutput{}, err
	}

	var out StateOutput
	data, err := json.Marshal(st)
	if err != nil {
		return nil, StateOutput{}, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, StateOutput{}, err
	}
	out.Display = display
	out.ActiveBuffs = make([]BuffOutput, 0, len(buffs))
	for _, b := range buffs {
		effects := make(map[string]string, len(b.Effects))
		for stat, v := range b.Effects {
			effects[stat] = num.String(v)
		}
		out.ActiveBuffs = append(out.ActiveBuffs, BuffOutput{
			ID:          b.ID,
			Name:        b.Name,
			Effects:     effects,
			ExpiryType:  b.ExpiryType,
			ExpiryValue: b.ExpiryValue.String(),
		})
	}
	return nil, out, nil
}

func (s *Server) handleListEvents(ctx context.Context, req *sdk.CallToolRequest, input ListEventsInput) (*sdk.CallToolResult, EventsOutput, error) {
	events := s.ledger.Events()
	if input.Limit > 0 && input.Limit < len(events) {
		events = events[len(events)-input.Limit:]
	}
	maps, err := toMaps(events)
	if err != nil {
		return nil, EventsOutput{}, err
	}
	return nil, EventsOutput{Events: maps}, nil
}

func (s *Server) handleProcessBatch(ctx context.Context, req *sdk.CallToolRequest, input ProcessBatchInput) (*sdk.CallToolResult, BatchOutput, error) {
	txs := make([]*event.Event, 0, len(input.Events))
	for i, m := range input.Events {
		ev, err := event.DecodeCandidate(m)
		if err != nil {
			return nil, BatchOutput{}, fmt.Errorf("event %d: %w", i, err)
		}
		txs = append(txs, ev)
	}
	res, err := s.ledger.ProcessBatch(ctx, txs)
	if res == nil {
		return nil, BatchOutput{}, err
	}
	if err != nil {
		// The batch is committed; only the file write failed.
		s.logger.Warn("batch committed but not persisted", "batch_id", res.BatchID, "error", err)
	}
	maps, merr := toMaps(res.Events)
	if merr != nil {
		return nil, BatchOutput{}, merr
	}
	return nil, BatchOutput{BatchID: res.BatchID, Events: maps, Logs: res.Logs}, nil
}

func (s *Server) handleAddEvent(ctx context.Context, req *sdk.CallToolRequest, input AddEventInput) (*sdk.CallToolResult, EventOutput, error) {
	if input.Event == nil {
		return nil, EventOutput{}, errs.New(errs.CodeValidation, "event is required")
	}
	ev, err := event.DecodeCandidate(input.Event)
	if err != nil {
		return nil, EventOutput{}, err
	}
	committed, err := s.ledger.AddEvent(ctx, ev)
	return s.eventResult(committed, err)
}

func (s *Server) handleModifyEvent(ctx context.Context, req *sdk.CallToolRequest, input ModifyEventInput) (*sdk.CallToolResult, EventOutput, error) {
	modified, err := s.ledger.ModifyEvent(ctx, input.EventID, input.Patch)
	return s.eventResult(modified, err)
}

func (s *Server) eventResult(ev *event.Event, err error) (*sdk.CallToolResult, EventOutput, error) {
	if ev == nil {
		return nil, EventOutput{}, err
	}
	if err != nil {
		s.logger.Warn("event committed but not persisted", "event_id", ev.ID, "error", err)
	}
	m, merr := ev.ToMap()
	if merr != nil {
		return nil, EventOutput{}, merr
	}
	return nil, EventOutput{Event: m}, nil
}

func (s *Server) handleDeleteEvents(ctx context.Context, req *sdk.CallToolRequest, input DeleteEventsInput) (*sdk.CallToolResult, DeleteOutput, error) {
	res, err := s.ledger.DeleteEvents(ctx, input.EventIDs)
	if res == nil {
		return nil, DeleteOutput{}, err
	}
	if err != nil {
		s.logger.Warn("delete committed but not persisted", "error", err)
	}
	return nil, DeleteOutput{Deleted: res.Deleted, Message: res.Message}, nil
}

func (s *Server) handleRegisterFormula(ctx context.Context, req *sdk.CallToolRequest, input RegisterFormulaInput) (*sdk.CallToolResult, FormulasOutput, error) {
	if input.Name == "" || input.Expression == "" {
		return nil, FormulasOutput{}, errs.New(errs.CodeValidation, "name and expression are required")
	}
	if err := s.ledger.RegisterFormula(input.Name, input.Expression); err != nil {
		return nil, FormulasOutput{}, err
	}
	return nil, FormulasOutput{Formulas: s.ledger.Formulas()}, nil
}

func (s *Server) handleFormatValue(ctx context.Context, req *sdk.CallToolRequest, input FormatValueInput) (*sdk.CallToolResult, FormatValueOutput, error) {
	v, err := num.Parse(num.Clean(input.Value))
	if err != nil {
		return nil, FormatValueOutput{}, err
	}
	return nil, FormatValueOutput{Formatted: s.ledger.FormatValue(v, input.Unit)}, nil
}

func toMaps(events []*event.Event) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(events))
	for _, ev := range events {
		m, err := ev.ToMap()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
