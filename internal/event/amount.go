package event

import (
	"bytes"
	"encoding/json"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/litledger/internal/num"
)

type amountKind uint8

const (
	amountAbsent amountKind = iota
	amountNull
	amountString
	amountNumber
)

// Amount is a numeric field as the caller supplied it. The zero value means
// the field was absent, which lets per-type defaults apply. A JSON null, an
// empty string or "TBD" is indeterminate. Anything else is kept verbatim and
// re-emitted in its original JSON kind, so a stored event reads back exactly
// as it was written.
type Amount struct {
	kind amountKind
	raw  string
}

// Number returns an Amount that marshals as a bare JSON number. s must be a
// valid JSON number literal.
func Number(s string) Amount {
	return Amount{kind: amountNumber, raw: s}
}

// Text returns an Amount that marshals as a JSON string.
func Text(s string) Amount {
	return Amount{kind: amountString, raw: s}
}

// Null returns an explicitly null Amount.
func Null() Amount {
	return Amount{kind: amountNull}
}

// Dec returns d as a number Amount.
func Dec(d *apd.Decimal) Amount {
	return Number(num.String(d))
}

// Int returns i as a number Amount.
func Int(i int64) Amount {
	return Dec(num.FromInt(i))
}

// IsZero reports whether the field was absent. It makes `omitzero` drop
// absent amounts when marshaling.
func (a Amount) IsZero() bool {
	return a.kind == amountAbsent
}

// IsNull reports whether the field was an explicit JSON null.
func (a Amount) IsNull() bool {
	return a.kind == amountNull
}

// IsIndeterminate reports whether the value is a "not yet known" sentinel.
func (a Amount) IsIndeterminate() bool {
	switch a.kind {
	case amountNull:
		return true
	case amountString:
		return num.IsIndeterminate(a.raw)
	}
	return false
}

// Raw returns the supplied text. Absent and null amounts return "".
func (a Amount) Raw() string {
	return a.raw
}

// Decimal sanitizes the raw text with num.Clean. It never fails; garbage
// reads as zero.
func (a Amount) Decimal() *apd.Decimal {
	return num.CleanDecimal(a.raw)
}

// With returns d in a's JSON kind: a string amount stays a string, anything
// else becomes a number.
func (a Amount) With(d *apd.Decimal) Amount {
	if a.kind == amountString {
		return Text(num.String(d))
	}
	return Dec(d)
}

// Or returns a, or def when a is absent.
func (a Amount) Or(def Amount) Amount {
	if a.IsZero() {
		return def
	}
	return a
}

// String renders the amount for log lines.
func (a Amount) String() string {
	switch a.kind {
	case amountAbsent:
		return ""
	case amountNull:
		return "None"
	}
	return a.raw
}

// MarshalJSON implements json.Marshaler.
func (a Amount) MarshalJSON() ([]byte, error) {
	switch a.kind {
	case amountNumber:
		return []byte(a.raw), nil
	case amountString:
		return json.Marshal(a.raw)
	}
	return []byte("null"), nil
}

// UnmarshalJSON implements json.Unmarshaler. Booleans, arrays and objects
// are kept as their JSON text so sanitization reads them as zero.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*a = Null()
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Text(s)
	case len(data) > 0 && (data[0] == '-' || (data[0] >= '0' && data[0] <= '9')):
		*a = Number(string(data))
	default:
		*a = Text(string(data))
	}
	return nil
}
