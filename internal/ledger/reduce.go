package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/litledger/internal/errs"
	"github.com/roach88/litledger/internal/event"
	"github.com/roach88/litledger/internal/num"
	"github.com/roach88/litledger/internal/temporal"
)

// criticalStats are the stat names (upper-cased) that raise an alert when
// negative.
var criticalStats = map[string]bool{
	"HP": true, "HEALTH": true, "LIFE": true,
	"MP": true, "MANA": true,
	"STAMINA": true, "ENERGY": true,
}

// replayContext is the temporal position during a replay.
type replayContext struct {
	chapter   int64
	wordCount int64
	timestamp string
}

// replay is one pass over an event list. It owns a fresh buff manager so
// passes never observe each other's buffs.
type replay struct {
	l        *Ledger
	state    *State
	buffs    *temporal.Manager
	position replayContext
}

// Reduce replays events from an empty state and returns the result.
// Annotations (fuzzy matches, manual-fix flags, underflow warnings, buff
// defaults) are written onto the events passed in.
func (l *Ledger) Reduce(ctx context.Context, events []*event.Event) (*State, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, _, err := l.reduce(ctx, events)
	return st, err
}

// reduce is Reduce without locking. It also returns the buff manager left
// at the end of the pass, which is what persistence snapshots.
func (l *Ledger) reduce(ctx context.Context, events []*event.Event) (*State, *temporal.Manager, error) {
	start := time.Now()
	l.replays++
	r := &replay{l: l, state: newState(), buffs: temporal.New()}

	for _, ev := range events {
		r.advance(ev)
		for _, id := range r.buffs.CheckExpiry(r.position.chapter, r.position.wordCount, r.position.timestamp) {
			r.state.ActiveBuffIDs = slices.DeleteFunc(r.state.ActiveBuffIDs, func(s string) bool { return s == id })
		}
		if err := r.apply(ev); err != nil {
			return nil, nil, fmt.Errorf("replay event %d: %w", ev.ID, err)
		}
	}
	if err := r.finish(); err != nil {
		return nil, nil, err
	}
	l.inst.Replayed(ctx, start, len(events))
	return r.state, r.buffs, nil
}

func (r *replay) advance(ev *event.Event) {
	switch p := ev.Payload.(type) {
	case *event.ChapterStart:
		r.position.chapter++
	case *event.WordCount:
		r.position.wordCount += p.Delta
	}
	if ev.Timestamp != "" {
		r.position.timestamp = ev.Timestamp
	}
}

func (r *replay) apply(ev *event.Event) error {
	switch p := ev.Payload.(type) {
	case *event.Gold:
		return r.applyGold(ev, p)
	case *event.Item:
		return r.applyItem(ev, p)
	case *event.Stat:
		return r.applyStat(ev, p)
	case *event.Buff:
		return r.applyBuff(ev, p)
	}
	return nil
}

func (r *replay) applyGold(ev *event.Event, p *event.Gold) error {
	raw := p.Value.Or(event.Number("0"))
	if raw.IsIndeterminate() {
		ev.RequiresManualFix = true
		return nil
	}
	reg := r.l.registry
	unit := p.Unit
	if unit == "" {
		unit = reg.BaseUnit()
	}
	value, err := reg.ToBaseDecimal(raw.Decimal(), unit)
	if err != nil {
		return err
	}
	balance := r.state.CurrencyBalance
	switch ev.Action {
	case event.ActionGain:
		r.state.CurrencyBalance, err = num.Add(balance, value)
	case event.ActionLose:
		if balance.Cmp(value) < 0 {
			if r.l.strict {
				name := reg.Schema().CurrencyName
				return errs.New(errs.CodeInsufficientBalance, "insufficient %s: need %s (%s %s), have %s (%s %s)",
					name,
					reg.FormatDisplay(value), num.String(value), reg.BaseUnit(),
					reg.FormatDisplay(balance), num.String(balance), reg.BaseUnit()).
					WithDetail("need", num.String(value)).
					WithDetail("have", num.String(balance))
			}
			ev.IsImplicit = true
			ev.AddLog(fmt.Sprintf("Warning: %s underflow allowed in Draft Mode", reg.Schema().CurrencyName))
		}
		r.state.CurrencyBalance, err = num.Sub(balance, value)
	case event.ActionSet:
		r.state.CurrencyBalance = value
	}
	return err
}

func (r *replay) applyItem(ev *event.Event, p *event.Item) error {
	raw := p.Name
	name, ambiguous := NormalizeEntityName(raw, r.state.InventoryNames())
	switch {
	case ambiguous:
		ev.RequiresManualFix = true
		ev.AddLog(fmt.Sprintf("Ambiguous match for '%s' - please verify.", raw))
		name = raw
	case name != raw:
		ev.OriginalName = raw
		p.Name = name
		ev.AddLog(fmt.Sprintf("Fuzzy Matched: %s -> %s", raw, name))
	}

	rawQty := p.Qty.Or(event.Int(1))
	if rawQty.IsIndeterminate() {
		ev.RequiresManualFix = true
		return nil
	}
	qty := rawQty.Decimal()
	if qty.Sign() <= 0 && r.l.strict {
		return errs.New(errs.CodeValidation, "invalid quantity: %s. Must be positive.", num.String(qty)).
			WithDetail("item", name)
	}

	current, ok := r.state.Inventory[name]
	if !ok {
		current = num.Zero()
	}
	var err error
	switch ev.Action {
	case event.ActionGain:
		r.state.Inventory[name], err = num.Add(current, qty)
	case event.ActionLose:
		if current.Cmp(qty) < 0 {
			if r.l.strict {
				return errs.New(errs.CodeInsufficientBalance, "insufficient %s: need %s, have %s",
					name, num.String(qty), num.String(current)).
					WithDetail("need", num.String(qty)).
					WithDetail("have", num.String(current))
			}
			ev.IsImplicit = true
			ev.AddLog(fmt.Sprintf("Warning: Item %s underflow allowed", name))
		}
		r.state.Inventory[name], err = num.Sub(current, qty)
	case event.ActionSet:
		r.state.Inventory[name] = qty
	}
	return err
}

func (r *replay) applyStat(ev *event.Event, p *event.Stat) error {
	raw := p.Value.Or(event.Int(0))
	if raw.IsIndeterminate() {
		ev.RequiresManualFix = true
		return nil
	}
	value := raw.Decimal()
	current, ok := r.state.BaseStats[p.Name]
	if !ok {
		current = num.Zero()
	}
	var err error
	switch ev.Action {
	case event.ActionGain:
		r.state.BaseStats[p.Name], err = num.Add(current, value)
	case event.ActionLose:
		r.state.BaseStats[p.Name], err = num.Sub(current, value)
	case event.ActionSet:
		r.state.BaseStats[p.Name] = value
	}
	if err != nil {
		return err
	}
	r.l.formulas.MarkDirty(p.Name)
	return nil
}

func (r *replay) applyBuff(ev *event.Event, p *event.Buff) error {
	if ev.Action != event.ActionGain {
		return nil
	}
	if p.ExpiryType == "" {
		p.ExpiryType = event.ExpiryChapter
	}
	if unset(p.ExpiryValue) && p.ExpiryType != event.ExpiryPermanent {
		p.ExpiryValue = event.Int(1)
	}

	effects := make(map[string]*apd.Decimal, len(p.Effects))
	for _, stat := range slices.Sorted(maps.Keys(p.Effects)) {
		v := p.Effects[stat]
		tok, ok := num.CleanOK(v.Raw())
		if !ok || v.IsIndeterminate() {
			ev.AddLog(fmt.Sprintf("Dropped non-numeric effect '%s'", stat))
			r.l.logger.Warn("dropped non-numeric buff effect",
				slog.Int64("event_id", ev.ID), slog.String("stat", stat), slog.String("value", v.Raw()))
			continue
		}
		effects[stat] = num.MustParse(tok)
	}

	name := p.Name
	if name == "" {
		name = "Unknown Buff"
	}
	id, err := r.buffs.AddBuff(name, effects, p.ExpiryType, p.ExpiryValue, p.Description)
	if err != nil {
		return err
	}
	if !slices.Contains(r.state.ActiveBuffIDs, id) {
		r.state.ActiveBuffIDs = append(r.state.ActiveBuffIDs, id)
	}
	return nil
}

// unset reports whether a buff expiry value is missing, null, blank or
// zero; any of these takes the default.
func unset(a event.Amount) bool {
	if a.IsZero() || a.IsNull() || strings.TrimSpace(a.Raw()) == "" {
		return true
	}
	d, err := num.Parse(a.Raw())
	return err == nil && d.IsZero()
}

// finish folds buff effects into the base stats, evaluates every formula
// and derives alerts.
func (r *replay) finish() error {
	combined := make(map[string]any, len(r.state.BaseStats)+2)
	for k, v := range r.state.BaseStats {
		combined[k] = v
	}
	for stat, delta := range r.buffs.ActiveEffects() {
		current := num.Zero()
		if v, ok := combined[stat]; ok {
			current = v.(*apd.Decimal)
		}
		sum, err := num.Add(current, delta)
		if err != nil {
			return err
		}
		combined[stat] = sum
	}
	combined["chapter"] = num.FromInt(r.position.chapter)
	combined["word_count"] = num.FromInt(r.position.wordCount)

	computed, err := r.l.formulas.All(combined)
	if err != nil {
		return err
	}
	r.state.ComputedStats = computed
	r.state.Chapter = r.position.chapter
	r.state.WordCount = r.position.wordCount

	all := maps.Clone(r.state.BaseStats)
	maps.Copy(all, computed)
	for _, k := range slices.Sorted(maps.Keys(all)) {
		if criticalStats[strings.ToUpper(k)] && all[k].Sign() < 0 {
			r.state.Alerts = append(r.state.Alerts, fmt.Sprintf("CRITICAL: %s is negative (%s)", k, num.String(all[k])))
		}
	}
	return nil
}
