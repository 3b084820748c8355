package ledger

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/roach88/litledger/internal/errs"
	"github.com/roach88/litledger/internal/event"
	"github.com/roach88/litledger/internal/num"
	"github.com/roach88/litledger/internal/telemetry"
	"github.com/roach88/litledger/internal/temporal"
)

// BatchResult is a committed batch.
type BatchResult struct {
	// BatchID is stamped on every event of the batch.
	BatchID string `json:"batch_id"`

	// Events are the committed records, as stored.
	Events []*event.Event `json:"events"`

	// Logs holds one success line per gold, item, stat or buff event.
	Logs []string `json:"logs"`
}

// DeleteResult reports a bulk delete.
type DeleteResult struct {
	Deleted int    `json:"deleted"`
	Message string `json:"message"`
}

// tentative is a replayed candidate log that passed validation.
type tentative struct {
	events []*event.Event
	state  *State
	buffs  *temporal.Manager
}

// AddEvent commits a single event. The event gets the next id and a batch
// id, and passes through the rule engine before a tentative replay. A
// replay failure or a strict-mode violation rejects it and leaves the log
// untouched.
//
// Security screening is not applied here; it belongs to ProcessBatch,
// which is the path untrusted input takes.
//
// A persistence failure is returned alongside the committed event as a
// PERSISTENCE error; the commit itself stands.
func (l *Ledger) AddEvent(ctx context.Context, ev *event.Event) (_ *event.Event, err error) {
	ctx, span := l.inst.Start(ctx, "add_event", attribute.String("event.type", string(ev.Type())))
	defer func() { telemetry.End(span, err) }()

	l.mu.Lock()
	defer l.mu.Unlock()

	candidate := ev.Clone()
	candidate.ID = l.lastID + 1
	candidate.BatchID = l.ids.Generate()
	candidate = l.rules.Apply(candidate)

	scratch := append(event.CloneAll(l.events), candidate)
	t, err := l.tryReplay(ctx, scratch)
	if err != nil {
		l.reject(ctx, "add_event", err)
		return nil, fmt.Errorf("event rejected: %w", err)
	}
	l.commit(t, candidate.ID)
	l.inst.Committed(ctx, "add_event", 1)

	out := t.events[len(t.events)-1].Clone()
	return out, l.persist()
}

// ProcessBatch commits transactions all-or-nothing. Every transaction is
// security-screened first; one failure rejects the whole batch. The
// survivors get consecutive ids and one shared batch id, pass through the
// rule engine, and are replayed on top of the log once. Nothing is
// committed unless the replay and the strict-mode check both pass.
func (l *Ledger) ProcessBatch(ctx context.Context, txs []*event.Event) (_ *BatchResult, err error) {
	ctx, span := l.inst.Start(ctx, "process_batch", attribute.Int("batch.size", len(txs)))
	defer func() { telemetry.End(span, err) }()

	l.mu.Lock()
	defer l.mu.Unlock()

	for i, tx := range txs {
		if err := ValidateSecurity(tx); err != nil {
			blocked := blockedError(i, err)
			l.reject(ctx, "process_batch", blocked)
			return nil, blocked
		}
	}
	if len(txs) == 0 {
		return &BatchResult{Events: []*event.Event{}, Logs: []string{}}, nil
	}

	batchID := l.ids.Generate()
	candidates := make([]*event.Event, len(txs))
	for i, tx := range txs {
		c := tx.Clone()
		c.ID = l.lastID + int64(i) + 1
		c.BatchID = batchID
		candidates[i] = l.rules.Apply(c)
	}

	scratch := append(event.CloneAll(l.events), candidates...)
	t, err := l.tryReplay(ctx, scratch)
	if err != nil {
		l.reject(ctx, "process_batch", err)
		return nil, fmt.Errorf("batch rejected: %w", err)
	}
	l.commit(t, candidates[len(candidates)-1].ID)
	l.inst.Committed(ctx, "process_batch", len(candidates))

	committed := event.CloneAll(t.events[len(t.events)-len(candidates):])
	res := &BatchResult{BatchID: batchID, Events: committed, Logs: make([]string, 0, len(committed))}
	for _, ev := range committed {
		if line, ok := l.successLine(ev); ok {
			res.Logs = append(res.Logs, line)
		}
	}
	return res, l.persist()
}

// ModifyEvent overlays patch onto the event with the given id and replays
// the whole log. A failed replay or strict-mode violation leaves the log
// exactly as it was.
func (l *Ledger) ModifyEvent(ctx context.Context, id int64, patch map[string]any) (_ *event.Event, err error) {
	ctx, span := l.inst.Start(ctx, "modify_event", attribute.Int64("event.id", id))
	defer func() { telemetry.End(span, err) }()

	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.indexOf(id)
	if idx < 0 {
		return nil, errs.New(errs.CodeNotFound, "event #%d not found", id).WithDetail("event_id", fmt.Sprint(id))
	}
	working := event.CloneAll(l.events)
	patched, err := event.Patch(working[idx], patch)
	if err != nil {
		return nil, err
	}
	working[idx] = patched

	t, err := l.tryReplay(ctx, working)
	if err != nil {
		l.reject(ctx, "modify_event", err)
		return nil, fmt.Errorf("modify event #%d: %w", id, err)
	}
	l.commit(t, l.lastID)
	return t.events[idx].Clone(), l.persist()
}

// DeleteEvent removes one event and replays. An unknown id is NOT_FOUND.
func (l *Ledger) DeleteEvent(ctx context.Context, id int64) error {
	res, err := l.DeleteEvents(ctx, []int64{id})
	if err != nil {
		return err
	}
	if res.Deleted == 0 {
		return errs.New(errs.CodeNotFound, "event #%d not found", id).WithDetail("event_id", fmt.Sprint(id))
	}
	return nil
}

// DeleteEvents removes every event whose id is listed and replays once.
// Unknown ids are ignored; if none match, nothing changes and the result
// says so. Ids are never reused after a delete.
func (l *Ledger) DeleteEvents(ctx context.Context, ids []int64) (_ *DeleteResult, err error) {
	ctx, span := l.inst.Start(ctx, "delete_events", attribute.Int("ids", len(ids)))
	defer func() { telemetry.End(span, err) }()

	l.mu.Lock()
	defer l.mu.Unlock()

	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	working := make([]*event.Event, 0, len(l.events))
	for _, ev := range l.events {
		if !drop[ev.ID] {
			working = append(working, ev.Clone())
		}
	}
	count := len(l.events) - len(working)
	if count == 0 {
		return &DeleteResult{Message: "No events deleted (IDs not found)"}, nil
	}

	t, err := l.tryReplay(ctx, working)
	if err != nil {
		l.reject(ctx, "delete_events", err)
		return nil, fmt.Errorf("batch delete failed: %w", err)
	}
	l.commit(t, l.lastID)
	res := &DeleteResult{Deleted: count, Message: fmt.Sprintf("Successfully deleted %d events", count)}
	return res, l.persist()
}

// tryReplay replays a candidate log and applies the strict-mode check.
func (l *Ledger) tryReplay(ctx context.Context, events []*event.Event) (*tentative, error) {
	st, buffs, err := l.reduce(ctx, events)
	if err != nil {
		return nil, err
	}
	if err := l.checkStrict(st); err != nil {
		return nil, err
	}
	return &tentative{events: events, state: st, buffs: buffs}, nil
}

// commit installs a validated log. The tentative state becomes the cache,
// so the next State call does not replay.
func (l *Ledger) commit(t *tentative, lastID int64) {
	l.events = t.events
	l.lastID = max(l.lastID, lastID)
	l.invalidate()
	l.cached, l.cachedVersion, l.buffs = t.state, l.version, t.buffs
}

func (l *Ledger) indexOf(id int64) int {
	return slices.IndexFunc(l.events, func(e *event.Event) bool { return e.ID == id })
}

// checkStrict rejects a negative balance, item quantity or base stat in
// strict mode.
func (l *Ledger) checkStrict(st *State) error {
	if !l.strict {
		return nil
	}
	if num.Negative(st.CurrencyBalance) {
		return errs.New(errs.CodeInsufficientBalance, "insufficient %s (would result in %s)",
			l.registry.Schema().CurrencyName, l.registry.FormatDisplay(st.CurrencyBalance)).
			WithDetail("balance", num.String(st.CurrencyBalance))
	}
	for _, name := range st.InventoryNames() {
		if qty := st.Inventory[name]; num.Negative(qty) {
			return errs.New(errs.CodeInsufficientBalance, "insufficient %s (would result in %s)", name, num.String(qty)).
				WithDetail("item", name)
		}
	}
	for _, name := range slices.Sorted(maps.Keys(st.BaseStats)) {
		if v := st.BaseStats[name]; num.Negative(v) {
			return errs.New(errs.CodeValidation, "stat %s cannot be negative (would result in %s)", name, num.String(v)).
				WithDetail("stat", name)
		}
	}
	return nil
}

func (l *Ledger) reject(ctx context.Context, op string, err error) {
	code := string(errs.CodeOf(err))
	if code == "" {
		code = "UNKNOWN"
	}
	l.inst.Rejected(ctx, op, code)
	l.logger.Info("commit rejected", "operation", op, "code", code, "error", err)
}

// blockedError reframes a security rejection as a batch-level block.
func blockedError(index int, err error) error {
	msg := err.Error()
	var se *errs.Error
	if errors.As(err, &se) {
		msg = se.Message
	}
	out := errs.New(errs.CodeSecurityRejection, "Transaction Blocked: %s", msg).
		WithDetail("index", fmt.Sprint(index))
	if se != nil {
		for k, v := range se.Details {
			out.WithDetail(k, v)
		}
	}
	return out
}

// successLine renders the human-readable line for a committed event.
func (l *Ledger) successLine(ev *event.Event) (string, bool) {
	action := strings.ToUpper(string(ev.Action))
	switch p := ev.Payload.(type) {
	case *event.Gold:
		unit := p.Unit
		if unit == "" {
			unit = l.registry.BaseUnit()
		}
		return fmt.Sprintf("%s %s %s", action, p.Value.Or(event.Number("0")), unit), true
	case *event.Item:
		return fmt.Sprintf("%s %s x%s", action, p.Name, p.Qty.Or(event.Int(1))), true
	case *event.Stat:
		return fmt.Sprintf("%s %s +%s", action, p.Name, p.Value.Or(event.Int(0))), true
	case *event.Buff:
		return fmt.Sprintf("Buff Applied: %s", p.Name), true
	}
	return "", false
}
