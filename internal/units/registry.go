// Package units converts amounts between a world's named units and its base
// unit, and renders base-unit balances for display.
//
// Conversion is linear: value_in_base = value * rate. Unknown units are not
// rejected; they convert 1:1 and a warning is logged, so a transaction that
// names an unheard-of currency still lands.
package units

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/litledger/internal/errs"
	"github.com/roach88/litledger/internal/num"
	"github.com/roach88/litledger/internal/schema"
)

// Registry converts and formats amounts under one world schema.
type Registry struct {
	schema *schema.Schema
	logger *slog.Logger
}

// Part is one denomination of a breakdown.
type Part struct {
	Unit  string
	Count *apd.Decimal
}

// New returns a registry for s. A nil schema selects the default preset. A
// nil logger selects slog.Default().
func New(s *schema.Schema, logger *slog.Logger) (*Registry, error) {
	if s == nil {
		s = schema.Default()
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{schema: s, logger: logger}, nil
}

// Schema returns the registry's schema. Callers must not mutate it except
// through RegisterUnit.
func (r *Registry) Schema() *schema.Schema {
	return r.schema
}

// BaseUnit is shorthand for Schema().BaseUnit.
func (r *Registry) BaseUnit() string {
	return r.schema.BaseUnit
}

// RegisterUnit adds or replaces unit in the schema's conversion table.
func (r *Registry) RegisterUnit(unit, rate string) error {
	if strings.TrimSpace(unit) == "" {
		return errs.New(errs.CodeValidation, "unit name cannot be empty")
	}
	d, err := num.Parse(strings.ReplaceAll(rate, ",", ""))
	if err != nil {
		return err
	}
	if d.Sign() <= 0 {
		return errs.New(errs.CodeValidation, "conversion rate for %q must be positive, got %s", unit, num.String(d))
	}
	if unit == r.schema.BaseUnit && d.Cmp(num.FromInt(1)) != 0 {
		return errs.New(errs.CodeValidation, "base unit %q must keep rate 1", unit)
	}
	r.schema.Conversions[unit] = d
	return nil
}

// ToBase parses value (thousands separators allowed) and converts it from
// unit to the base unit.
func (r *Registry) ToBase(value, unit string) (*apd.Decimal, error) {
	d, err := num.Parse(strings.ReplaceAll(value, ",", ""))
	if err != nil {
		return nil, err
	}
	return r.ToBaseDecimal(d, unit)
}

// ToBaseDecimal converts an already parsed amount.
func (r *Registry) ToBaseDecimal(d *apd.Decimal, unit string) (*apd.Decimal, error) {
	rate, ok := r.schema.Rate(unit)
	if !ok {
		r.logger.Warn("unknown unit, treating as base", "unit", unit, "base_unit", r.schema.BaseUnit)
		return num.Clone(d), nil
	}
	return num.Mul(d, rate)
}

// FromBase converts a base-unit amount to unit. Unknown units convert 1:1.
func (r *Registry) FromBase(value *apd.Decimal, unit string) (*apd.Decimal, error) {
	rate, ok := r.schema.Rate(unit)
	if !ok {
		return num.Clone(value), nil
	}
	return num.Quo(value, rate)
}

// Breakdown decomposes a base-unit amount into denominations, largest
// first. Units sharing an already used rate are skipped unless they are the
// base unit, and non-base units with rate 1 are skipped, so aliases such as
// "$" and "USD" never double count. The base unit takes the remainder,
// which may be fractional. Zero counts are omitted; a negative amount
// yields negative counts. The counts times their rates sum to value.
func (r *Registry) Breakdown(value *apd.Decimal) []Part {
	remaining := new(apd.Decimal).Abs(value)
	negative := value.Sign() < 0
	one := num.FromInt(1)
	seen := make(map[string]bool)

	var parts []Part
	for _, unit := range r.schema.UnitsByRate() {
		rate := r.schema.Conversions[unit]
		key := num.String(rate)
		if unit == r.schema.BaseUnit {
			if !remaining.IsZero() {
				parts = append(parts, Part{Unit: unit, Count: remaining})
			}
			remaining = num.Zero()
			seen[key] = true
			continue
		}
		if seen[key] || rate.Cmp(one) == 0 {
			continue
		}
		count, err := num.QuoInteger(remaining, rate)
		if err != nil || count.Sign() <= 0 {
			continue
		}
		used, err := num.Mul(count, rate)
		if err != nil {
			continue
		}
		if remaining, err = num.Sub(remaining, used); err != nil {
			continue
		}
		parts = append(parts, Part{Unit: unit, Count: count})
		seen[key] = true
	}
	if negative {
		for i := range parts {
			parts[i].Count = new(apd.Decimal).Neg(parts[i].Count)
		}
	}
	return parts
}

// mixedPair matches "<number> <unit>" inside free text such as
// "2 GP 15 SP 3 CP".
var mixedPair = regexp.MustCompile(`(-?\d[\d,]*(?:\.\d+)?)\s*([^\d\s,.-][^\d\s,]*)`)

// ParseMixed sums every value/unit pair in s, in base units. It fails with
// CONVERSION when s holds no pair.
func (r *Registry) ParseMixed(s string) (*apd.Decimal, error) {
	matches := mixedPair.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return nil, errs.New(errs.CodeConversion, "no amounts found in %q", s)
	}
	total := num.Zero()
	for _, m := range matches {
		base, err := r.ToBase(m[1], m[2])
		if err != nil {
			return nil, err
		}
		if total, err = num.Add(total, base); err != nil {
			return nil, err
		}
	}
	return total, nil
}
