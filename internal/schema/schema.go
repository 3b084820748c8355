// Package schema describes a world's currency system: the unit names, their
// conversion rates to a base unit, and how balances are displayed.
//
// A Schema is a plain value. Validate enforces the invariants (base unit
// present with rate exactly 1, every rate positive, a known display
// format); the registry in package units is the only caller that mutates
// one, through RegisterUnit.
package schema

import (
	"maps"
	"slices"
	"strings"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/litledger/internal/errs"
	"github.com/roach88/litledger/internal/num"
)

// Format selects the display strategy.
type Format string

const (
	FormatStandard   Format = "standard"
	FormatScientific Format = "scientific"
	FormatTimeMixed  Format = "time_mixed"
	FormatDecimal    Format = "decimal"
)

// Formats lists the recognized display formats.
var Formats = []Format{FormatStandard, FormatScientific, FormatTimeMixed, FormatDecimal}

// Schema is a world's unit system.
type Schema struct {
	CurrencyName  string
	BaseUnit      string
	Conversions   map[string]*apd.Decimal
	DisplayFormat Format
}

// Validate reports the first broken invariant as a CONFIGURATION error.
func (s *Schema) Validate() error {
	if strings.TrimSpace(s.CurrencyName) == "" {
		return errs.New(errs.CodeConfiguration, "currency_name cannot be empty")
	}
	if strings.TrimSpace(s.BaseUnit) == "" {
		return errs.New(errs.CodeConfiguration, "base_unit cannot be empty")
	}
	if len(s.Conversions) == 0 {
		return errs.New(errs.CodeConfiguration, "conversions cannot be empty")
	}
	base, ok := s.Conversions[s.BaseUnit]
	if !ok {
		return errs.New(errs.CodeConfiguration, "base unit %q must be in conversions", s.BaseUnit)
	}
	if base == nil || base.Cmp(num.FromInt(1)) != 0 {
		return errs.New(errs.CodeConfiguration, "base unit %q must have conversion rate of 1, got %s",
			s.BaseUnit, num.String(base))
	}
	for _, unit := range slices.Sorted(maps.Keys(s.Conversions)) {
		rate := s.Conversions[unit]
		if rate == nil || rate.Sign() <= 0 {
			return errs.New(errs.CodeConfiguration, "conversion rate for %q must be positive, got %s",
				unit, num.String(rate))
		}
	}
	if !slices.Contains(Formats, s.DisplayFormat) {
		return errs.New(errs.CodeConfiguration, "display_format must be one of %v, got %q", Formats, s.DisplayFormat)
	}
	return nil
}

// Clone returns a deep copy.
func (s *Schema) Clone() *Schema {
	c := *s
	c.Conversions = make(map[string]*apd.Decimal, len(s.Conversions))
	for unit, rate := range s.Conversions {
		c.Conversions[unit] = num.Clone(rate)
	}
	return &c
}

// Rate returns the conversion rate for unit.
func (s *Schema) Rate(unit string) (*apd.Decimal, bool) {
	r, ok := s.Conversions[unit]
	return r, ok
}

// UnitsByRate returns unit names ordered by rate, largest first. Units
// sharing a rate are ordered with the base unit first, then by name.
func (s *Schema) UnitsByRate() []string {
	units := slices.Collect(maps.Keys(s.Conversions))
	slices.SortFunc(units, func(a, b string) int {
		if c := s.Conversions[b].Cmp(s.Conversions[a]); c != 0 {
			return c
		}
		switch {
		case a == s.BaseUnit:
			return -1
		case b == s.BaseUnit:
			return 1
		}
		return strings.Compare(a, b)
	})
	return units
}

// String is a one-line summary for logs.
func (s *Schema) String() string {
	return "WorldSchema(currency=" + s.CurrencyName + ", base=" + s.BaseUnit +
		", units=[" + strings.Join(s.UnitsByRate(), " ") + "], format=" + string(s.DisplayFormat) + ")"
}

// Custom builds a schema from string rates. It validates the result.
func Custom(name, base string, units map[string]string, format Format) (*Schema, error) {
	if format == "" {
		format = FormatStandard
	}
	s := &Schema{
		CurrencyName:  name,
		BaseUnit:      base,
		Conversions:   make(map[string]*apd.Decimal, len(units)),
		DisplayFormat: format,
	}
	for unit, raw := range units {
		rate, err := num.Parse(raw)
		if err != nil {
			return nil, errs.Wrap(errs.CodeConfiguration, err, "conversion rate for %q", unit)
		}
		s.Conversions[unit] = rate
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func mustCustom(name, base string, units map[string]string, format Format) *Schema {
	s, err := Custom(name, base, units, format)
	if err != nil {
		panic(err)
	}
	return s
}
