package units

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/apd/v3"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/roach88/litledger/internal/num"
	"github.com/roach88/litledger/internal/schema"
)

// timeMixedParts caps how many denominations time_mixed shows.
const timeMixedParts = 3

var (
	thousand = num.FromInt(1000)
	million  = num.FromInt(1000000)
)

// FormatDisplay renders a base-unit amount using the schema's display
// format.
func (r *Registry) FormatDisplay(value *apd.Decimal) string {
	switch r.schema.DisplayFormat {
	case schema.FormatScientific:
		return r.formatScientific(value)
	case schema.FormatTimeMixed:
		return r.formatBreakdown(value, timeMixedParts)
	case schema.FormatDecimal:
		return r.formatDecimal(value)
	default:
		return r.formatBreakdown(value, 0)
	}
}

// FormatValue renders value in a single unit as "N U", truncating toward
// zero. An empty unit falls back to FormatDisplay.
func (r *Registry) FormatValue(value *apd.Decimal, unit string) string {
	if unit == "" {
		return r.FormatDisplay(value)
	}
	converted, err := r.FromBase(value, unit)
	if err != nil {
		return num.String(value) + " " + unit
	}
	return integer(converted) + " " + unit
}

// formatBreakdown joins the non-zero denominations ("11 GP, 5 CP"). A
// positive limit keeps only that many of the largest.
func (r *Registry) formatBreakdown(value *apd.Decimal, limit int) string {
	abs := new(apd.Decimal).Abs(value)
	parts := r.Breakdown(abs)
	if limit > 0 && len(parts) > limit {
		parts = parts[:limit]
	}
	if len(parts) == 0 {
		return "0 " + r.schema.BaseUnit
	}
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = integer(p.Count) + " " + p.Unit
	}
	s := strings.Join(out, ", ")
	if value.Sign() < 0 {
		return "-" + s
	}
	return s
}

// formatScientific renders large magnitudes as 1.50E+06 or 12.3K. Floats
// are used for the rendering only.
func (r *Registry) formatScientific(value *apd.Decimal) string {
	abs := new(apd.Decimal).Abs(value)
	var s string
	switch {
	case abs.Cmp(million) >= 0:
		s = fmt.Sprintf("%.2E", num.Float64(value))
	case abs.Cmp(thousand) >= 0:
		s = fmt.Sprintf("%.1fK", num.Float64(value)/1000)
	default:
		s = integer(value)
	}
	return s + " " + r.schema.BaseUnit
}

// formatDecimal renders the amount in the largest unit with two decimals
// and thousands grouping. A single-character unit at the top rate is used
// as a prefix symbol ("$1,234.50"); otherwise the unit follows
// ("1,234.50 USD").
func (r *Registry) formatDecimal(value *apd.Decimal) string {
	major := r.majorUnit()
	converted, err := r.FromBase(value, major)
	if err != nil {
		converted = value
	}
	amount := grouped(converted)
	if utf8.RuneCountInString(major) == 1 {
		if strings.HasPrefix(amount, "-") {
			return "-" + major + amount[1:]
		}
		return major + amount
	}
	return amount + " " + major
}

// majorUnit picks the unit with the largest rate, preferring a
// single-character symbol among ties.
func (r *Registry) majorUnit() string {
	units := r.schema.UnitsByRate()
	top := r.schema.Conversions[units[0]]
	for _, u := range units {
		if r.schema.Conversions[u].Cmp(top) != 0 {
			break
		}
		if utf8.RuneCountInString(u) == 1 {
			return u
		}
	}
	return units[0]
}

var printer = message.NewPrinter(language.English)

// grouped rounds d half-even to two places and groups the integer digits.
// Values whose integer part exceeds int64 are printed ungrouped.
func grouped(d *apd.Decimal) string {
	var q apd.Decimal
	c := *num.Context
	c.Rounding = apd.RoundHalfEven
	if _, err := c.Quantize(&q, d, -2); err != nil {
		return num.String(d)
	}
	if q.IsZero() {
		q.Negative = false
	}
	text := q.Text('f')
	sign := ""
	if strings.HasPrefix(text, "-") {
		sign, text = "-", text[1:]
	}
	intText, frac, _ := strings.Cut(text, ".")
	var whole apd.Decimal
	if _, _, err := whole.SetString(intText); err != nil {
		return sign + text
	}
	i, err := whole.Int64()
	if err != nil {
		return sign + text
	}
	return sign + printer.Sprint(number.Decimal(i)) + "." + frac
}

// integer renders d truncated toward zero.
func integer(d *apd.Decimal) string {
	t, err := num.Truncate(d)
	if err != nil {
		return num.String(d)
	}
	return num.String(t)
}
