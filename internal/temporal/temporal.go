// Package temporal tracks active buffs and expires them as story time
// advances.
//
// Story time has three clocks: the chapter counter, the cumulative word
// count, and wall-clock timestamps carried on events. Replay calls
// CheckExpiry once per event, before the event is applied, so a buff
// expires exactly at the event boundary where its threshold is reached.
package temporal

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/litledger/internal/errs"
	"github.com/roach88/litledger/internal/event"
	"github.com/roach88/litledger/internal/num"
)

// ExpiryTypes lists the recognized expiry kinds.
var ExpiryTypes = []string{event.ExpiryChapter, event.ExpiryWordCount, event.ExpiryTime, event.ExpiryPermanent}

// Buff is an active modifier.
type Buff struct {
	ID          string
	Name        string
	Effects     map[string]*apd.Decimal
	ExpiryType  string
	ExpiryValue event.Amount
	Description string
}

// Clone returns a deep copy.
func (b *Buff) Clone() *Buff {
	c := *b
	c.Effects = make(map[string]*apd.Decimal, len(b.Effects))
	for stat, v := range b.Effects {
		c.Effects[stat] = num.Clone(v)
	}
	return &c
}

// expired reports whether b has reached its threshold. Thresholds that do
// not parse never expire.
func (b *Buff) expired(chapter, wordCount int64, timestamp string) bool {
	switch b.ExpiryType {
	case event.ExpiryChapter:
		return reached(chapter, b.ExpiryValue)
	case event.ExpiryWordCount:
		return reached(wordCount, b.ExpiryValue)
	case event.ExpiryTime:
		if timestamp == "" {
			return false
		}
		now, ok := parseTime(timestamp)
		if !ok {
			return false
		}
		at, ok := parseTime(b.ExpiryValue.Raw())
		if !ok {
			return false
		}
		return !now.Before(at)
	}
	return false
}

func reached(current int64, threshold event.Amount) bool {
	t, err := num.Parse(threshold.Raw())
	if err != nil {
		return false
	}
	return num.FromInt(current).Cmp(t) >= 0
}

// timeLayouts are the ISO-8601 forms accepted for time thresholds.
// Layouts without a zone are read as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Manager owns the active buff set. It is not safe for concurrent use.
type Manager struct {
	active  []*Buff
	counter int
}

// New returns an empty manager.
func New() *Manager {
	return &Manager{}
}

// AddBuff registers a buff and returns its id (buff_001, buff_002, ...).
// Every expiry type other than permanent needs a threshold; an absent or
// null expiryValue is a VALIDATION error.
func (m *Manager) AddBuff(name string, effects map[string]*apd.Decimal, expiryType string, expiryValue event.Amount, description string) (string, error) {
	if !slices.Contains(ExpiryTypes, expiryType) {
		return "", errs.New(errs.CodeValidation, "unknown expiry_type %q (expected one of %s)",
			expiryType, strings.Join(ExpiryTypes, ", "))
	}
	if expiryType != event.ExpiryPermanent && (expiryValue.IsZero() || expiryValue.IsNull()) {
		return "", errs.New(errs.CodeValidation, "expiry_value required for expiry_type=%q", expiryType)
	}
	m.counter++
	b := &Buff{
		ID:          fmt.Sprintf("buff_%03d", m.counter),
		Name:        name,
		Effects:     make(map[string]*apd.Decimal, len(effects)),
		ExpiryType:  expiryType,
		ExpiryValue: expiryValue,
		Description: description,
	}
	for stat, v := range effects {
		b.Effects[stat] = num.Clone(v)
	}
	m.active = append(m.active, b)
	return b.ID, nil
}

// CheckExpiry removes every buff whose threshold has been reached and
// returns their ids in activation order.
//
//   - chapter: expired when chapter >= threshold
//   - word_count: expired when wordCount >= threshold
//   - time: expired when timestamp >= threshold; an empty or unparsable
//     timestamp never expires anything
//   - permanent: never expires
func (m *Manager) CheckExpiry(chapter, wordCount int64, timestamp string) []string {
	var expired []string
	kept := m.active[:0]
	for _, b := range m.active {
		if b.expired(chapter, wordCount, timestamp) {
			expired = append(expired, b.ID)
			continue
		}
		kept = append(kept, b)
	}
	clear(m.active[len(kept):])
	m.active = kept
	return expired
}

// ActiveEffects sums effects per stat across all active buffs.
func (m *Manager) ActiveEffects() map[string]*apd.Decimal {
	out := make(map[string]*apd.Decimal)
	for _, b := range m.active {
		for stat, v := range b.Effects {
			cur, ok := out[stat]
			if !ok {
				out[stat] = num.Clone(v)
				continue
			}
			sum, err := num.Add(cur, v)
			if err != nil {
				continue
			}
			out[stat] = sum
		}
	}
	return out
}

// IDs returns the active buff ids in activation order.
func (m *Manager) IDs() []string {
	out := make([]string, len(m.active))
	for i, b := range m.active {
		out[i] = b.ID
	}
	return out
}

// Active returns copies of the active buffs in activation order.
func (m *Manager) Active() []*Buff {
	out := make([]*Buff, len(m.active))
	for i, b := range m.active {
		out[i] = b.Clone()
	}
	return out
}

// Len reports the number of active buffs.
func (m *Manager) Len() int {
	return len(m.active)
}

// Get returns a copy of the buff with the given id.
func (m *Manager) Get(id string) (*Buff, bool) {
	for _, b := range m.active {
		if b.ID == id {
			return b.Clone(), true
		}
	}
	return nil, false
}

// ByStat returns copies of the buffs that modify stat.
func (m *Manager) ByStat(stat string) []*Buff {
	var out []*Buff
	for _, b := range m.active {
		if _, ok := b.Effects[stat]; ok {
			out = append(out, b.Clone())
		}
	}
	return out
}

// Remove deletes a buff. It reports whether the id was active.
func (m *Manager) Remove(id string) bool {
	for i, b := range m.active {
		if b.ID == id {
			m.active = slices.Delete(m.active, i, i+1)
			return true
		}
	}
	return false
}

// Clone returns an independent copy, id counter included.
func (m *Manager) Clone() *Manager {
	return &Manager{active: m.Active(), counter: m.counter}
}

// Clear removes every buff and resets the id counter.
func (m *Manager) Clear() {
	m.active = nil
	m.counter = 0
}

// record is the persisted form of a buff.
type record struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Effects     map[string]string `json:"effects"`
	ExpiryType  string            `json:"expiry_type"`
	ExpiryValue event.Amount      `json:"expiry_value"`
	Description string            `json:"description"`
}

// MarshalJSON writes the active buffs as a list, effects as decimal
// strings.
func (m *Manager) MarshalJSON() ([]byte, error) {
	out := make([]record, len(m.active))
	for i, b := range m.active {
		r := record{
			ID:          b.ID,
			Name:        b.Name,
			Effects:     make(map[string]string, len(b.Effects)),
			ExpiryType:  b.ExpiryType,
			ExpiryValue: b.ExpiryValue,
			Description: b.Description,
		}
		for stat, v := range b.Effects {
			r.Effects[stat] = num.String(v)
		}
		out[i] = r
	}
	return json.Marshal(out)
}

// UnmarshalJSON replaces the active set with a persisted list. The id
// counter advances past the highest restored buff_NNN id so new buffs
// never collide with restored ones.
func (m *Manager) UnmarshalJSON(data []byte) error {
	var recs []record
	if err := json.Unmarshal(data, &recs); err != nil {
		return errs.Wrap(errs.CodeValidation, err, "decode active buffs")
	}
	active := make([]*Buff, 0, len(recs))
	counter := 0
	for _, r := range recs {
		b := &Buff{
			ID:          r.ID,
			Name:        r.Name,
			Effects:     make(map[string]*apd.Decimal, len(r.Effects)),
			ExpiryType:  r.ExpiryType,
			ExpiryValue: r.ExpiryValue,
			Description: r.Description,
		}
		for stat, raw := range r.Effects {
			v, err := num.Parse(raw)
			if err != nil {
				return fmt.Errorf("buff %s effect %s: %w", r.ID, stat, err)
			}
			b.Effects[stat] = v
		}
		if n, ok := strings.CutPrefix(r.ID, "buff_"); ok {
			if i, err := strconv.Atoi(n); err == nil && i > counter {
				counter = i
			}
		}
		active = append(active, b)
	}
	m.active = active
	m.counter = max(m.counter, counter)
	return nil
}
