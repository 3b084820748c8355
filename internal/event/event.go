// Package event defines the ledger's event record: a shared envelope plus a
// payload variant selected by the event type.
//
// Events are stored flat. Envelope fields and payload fields are siblings in
// one JSON object, and "type" selects the payload on decode:
//
//	{"event_id": 3, "type": "gold", "action": "gain", "value": "10", "unit": "GP"}
//
// Annotations (requires_manual_fix, is_implicit, logs, original_name,
// applied_rules) are part of the stored record. They are written by the rule
// engine at commit and by replay, and every write is idempotent so repeated
// replays leave a record unchanged after the first pass.
package event

import (
	"maps"
	"slices"
)

// Type discriminates the payload.
type Type string

const (
	TypeGold         Type = "gold"
	TypeItem         Type = "item"
	TypeStat         Type = "stat"
	TypeBuff         Type = "buff"
	TypeChapterStart Type = "chapter_start"
	TypeWordCount    Type = "word_count_delta"
)

// Types lists every known type in declaration order.
var Types = []Type{TypeGold, TypeItem, TypeStat, TypeBuff, TypeChapterStart, TypeWordCount}

// Action is the verb applied to the payload.
type Action string

const (
	ActionGain Action = "gain"
	ActionLose Action = "lose"
	ActionSet  Action = "set"
)

// Buff expiry kinds.
const (
	ExpiryChapter   = "chapter"
	ExpiryWordCount = "word_count"
	ExpiryTime      = "time"
	ExpiryPermanent = "permanent"
)

// AppliedRule is the audit entry a rule leaves on an event it transformed.
type AppliedRule struct {
	RuleID        string `json:"rule_id"`
	Description   string `json:"description"`
	OriginalValue string `json:"original_value"`
	ModifiedValue string `json:"modified_value"`
}

// Envelope holds the fields shared by every event type.
type Envelope struct {
	ID        int64  `json:"event_id,omitempty"`
	Action    Action `json:"action,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`

	// BatchID groups events committed by one call.
	BatchID string `json:"batch_id,omitempty"`

	// Extraction metadata. Not used by replay.
	Confidence *float64 `json:"confidence,omitempty"`
	IsFuzzy    *bool    `json:"is_fuzzy,omitempty"`

	RequiresManualFix bool          `json:"requires_manual_fix,omitempty"`
	IsImplicit        bool          `json:"is_implicit,omitempty"`
	Logs              []string      `json:"logs,omitempty"`
	OriginalName      string        `json:"original_name,omitempty"`
	AppliedRules      []AppliedRule `json:"applied_rules,omitempty"`
}

// Payload is the type-specific part of an event. The set of implementations
// is closed.
type Payload interface {
	Type() Type
	clone() Payload
}

// Gold is a currency movement. Value is in Unit; an absent unit means the
// schema's base unit.
type Gold struct {
	Value Amount `json:"value,omitzero"`
	Unit  string `json:"unit,omitempty"`
}

// Item is an inventory movement. An absent Qty means 1.
type Item struct {
	Name string `json:"name"`
	Qty  Amount `json:"qty,omitzero"`
}

// Stat is a base attribute change.
type Stat struct {
	Name  string `json:"name"`
	Value Amount `json:"value,omitzero"`
}

// Buff registers a timed modifier. Only the gain action has an effect.
type Buff struct {
	Name        string            `json:"name,omitempty"`
	Effects     map[string]Amount `json:"effects,omitempty"`
	ExpiryType  string            `json:"expiry_type,omitempty"`
	ExpiryValue Amount            `json:"expiry_value,omitzero"`
	Description string            `json:"description,omitempty"`
}

// ChapterStart advances the chapter counter.
type ChapterStart struct{}

// WordCount advances the cumulative word count.
type WordCount struct {
	Delta int64 `json:"word_count_delta"`
}

func (Gold) Type() Type         { return TypeGold }
func (Item) Type() Type         { return TypeItem }
func (Stat) Type() Type         { return TypeStat }
func (Buff) Type() Type         { return TypeBuff }
func (ChapterStart) Type() Type { return TypeChapterStart }
func (WordCount) Type() Type    { return TypeWordCount }

func (p *Gold) clone() Payload         { c := *p; return &c }
func (p *Item) clone() Payload         { c := *p; return &c }
func (p *Stat) clone() Payload         { c := *p; return &c }
func (p *ChapterStart) clone() Payload { return &ChapterStart{} }
func (p *WordCount) clone() Payload    { c := *p; return &c }

func (p *Buff) clone() Payload {
	c := *p
	c.Effects = maps.Clone(p.Effects)
	return &c
}

// Event is one ledger record.
type Event struct {
	Envelope
	Payload Payload
}

// Type returns the payload type, or "" for an event without a payload.
func (e *Event) Type() Type {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.Type()
}

// Clone returns a deep copy.
func (e *Event) Clone() *Event {
	c := &Event{Envelope: e.Envelope}
	c.Logs = slices.Clone(e.Logs)
	c.AppliedRules = slices.Clone(e.AppliedRules)
	if e.Confidence != nil {
		v := *e.Confidence
		c.Confidence = &v
	}
	if e.IsFuzzy != nil {
		v := *e.IsFuzzy
		c.IsFuzzy = &v
	}
	if e.Payload != nil {
		c.Payload = e.Payload.clone()
	}
	return c
}

// CloneAll deep-copies a slice of events.
func CloneAll(events []*Event) []*Event {
	out := make([]*Event, len(events))
	for i, e := range events {
		out[i] = e.Clone()
	}
	return out
}

// AddLog appends line unless the event already carries it.
func (e *Event) AddLog(line string) {
	if !slices.Contains(e.Logs, line) {
		e.Logs = append(e.Logs, line)
	}
}

// Value returns the "value" field of gold and stat events. ok is false for
// other types.
func (e *Event) Value() (a Amount, ok bool) {
	switch p := e.Payload.(type) {
	case *Gold:
		return p.Value, true
	case *Stat:
		return p.Value, true
	}
	return Amount{}, false
}

// SetValue replaces the "value" field. It is a no-op for types without one.
func (e *Event) SetValue(a Amount) {
	switch p := e.Payload.(type) {
	case *Gold:
		p.Value = a
	case *Stat:
		p.Value = a
	}
}

// Name returns the item, stat or buff name.
func (e *Event) Name() string {
	switch p := e.Payload.(type) {
	case *Item:
		return p.Name
	case *Stat:
		return p.Name
	case *Buff:
		return p.Name
	}
	return ""
}
