package ledger

import (
	"encoding/json"
	"maps"
	"slices"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/litledger/internal/num"
)

// State is derived from the event log by Reduce. It is never stored.
type State struct {
	// CurrencyBalance is in the schema's base unit.
	CurrencyBalance *apd.Decimal
	Inventory       map[string]*apd.Decimal
	BaseStats       map[string]*apd.Decimal
	ComputedStats   map[string]*apd.Decimal
	ActiveBuffIDs   []string
	Alerts          []string
	Chapter         int64
	WordCount       int64
}

func newState() *State {
	return &State{
		CurrencyBalance: num.Zero(),
		Inventory:       make(map[string]*apd.Decimal),
		BaseStats:       make(map[string]*apd.Decimal),
		ComputedStats:   make(map[string]*apd.Decimal),
		ActiveBuffIDs:   []string{},
		Alerts:          []string{},
	}
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	return &State{
		CurrencyBalance: num.Clone(s.CurrencyBalance),
		Inventory:       cloneDecimals(s.Inventory),
		BaseStats:       cloneDecimals(s.BaseStats),
		ComputedStats:   cloneDecimals(s.ComputedStats),
		ActiveBuffIDs:   slices.Clone(s.ActiveBuffIDs),
		Alerts:          slices.Clone(s.Alerts),
		Chapter:         s.Chapter,
		WordCount:       s.WordCount,
	}
}

// Stat returns the computed value of name if a formula defines it, else the
// base value.
func (s *State) Stat(name string) (*apd.Decimal, bool) {
	if v, ok := s.ComputedStats[name]; ok {
		return v, true
	}
	v, ok := s.BaseStats[name]
	return v, ok
}

// InventoryNames returns the inventory keys in sorted order.
func (s *State) InventoryNames() []string {
	return slices.Sorted(maps.Keys(s.Inventory))
}

type stateJSON struct {
	CurrencyBalance string            `json:"currency_balance"`
	Inventory       map[string]string `json:"inventory"`
	BaseStats       map[string]string `json:"base_stats"`
	ComputedStats   map[string]string `json:"computed_stats"`
	ActiveBuffIDs   []string          `json:"active_buff_ids"`
	Alerts          []string          `json:"alerts"`
	Chapter         int64             `json:"chapter"`
	WordCount       int64             `json:"word_count"`
}

// MarshalJSON writes every decimal as a string.
func (s *State) MarshalJSON() ([]byte, error) {
	return json.Marshal(stateJSON{
		CurrencyBalance: num.String(s.CurrencyBalance),
		Inventory:       decimalStrings(s.Inventory),
		BaseStats:       decimalStrings(s.BaseStats),
		ComputedStats:   decimalStrings(s.ComputedStats),
		ActiveBuffIDs:   s.ActiveBuffIDs,
		Alerts:          s.Alerts,
		Chapter:         s.Chapter,
		WordCount:       s.WordCount,
	})
}

// UnmarshalJSON reads the form written by MarshalJSON.
func (s *State) UnmarshalJSON(data []byte) error {
	var raw stateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := newState()
	var err error
	if out.CurrencyBalance, err = num.Parse(raw.CurrencyBalance); err != nil {
		return err
	}
	for _, pair := range []struct {
		src map[string]string
		dst map[string]*apd.Decimal
	}{
		{raw.Inventory, out.Inventory},
		{raw.BaseStats, out.BaseStats},
		{raw.ComputedStats, out.ComputedStats},
	} {
		for k, v := range pair.src {
			d, err := num.Parse(v)
			if err != nil {
				return err
			}
			pair.dst[k] = d
		}
	}
	if raw.ActiveBuffIDs != nil {
		out.ActiveBuffIDs = raw.ActiveBuffIDs
	}
	if raw.Alerts != nil {
		out.Alerts = raw.Alerts
	}
	out.Chapter = raw.Chapter
	out.WordCount = raw.WordCount
	*s = *out
	return nil
}

func cloneDecimals(m map[string]*apd.Decimal) map[string]*apd.Decimal {
	out := make(map[string]*apd.Decimal, len(m))
	for k, v := range m {
		out[k] = num.Clone(v)
	}
	return out
}

func decimalStrings(m map[string]*apd.Decimal) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = num.String(v)
	}
	return out
}
