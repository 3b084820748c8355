package schema

import (
	"maps"
	"slices"

	"github.com/roach88/litledger/internal/errs"
)

// Preset names.
const (
	PresetClassicFantasy = "classic_fantasy"
	PresetTimeBased      = "time_based"
	PresetXianxia        = "xianxia"
	PresetModern         = "modern"
	PresetSciFiCredits   = "scifi_credits"
)

var presets = map[string]func() *Schema{
	PresetClassicFantasy: ClassicFantasy,
	PresetTimeBased:      TimeBased,
	PresetXianxia:        Xianxia,
	PresetModern:         Modern,
	PresetSciFiCredits:   SciFiCredits,
}

// ClassicFantasy is gold, silver and copper: 1 GP = 10 SP = 100 CP.
func ClassicFantasy() *Schema {
	return mustCustom("Gold", "CP", map[string]string{
		"GP": "100",
		"SP": "10",
		"CP": "1",
	}, FormatStandard)
}

// TimeBased treats time as currency, stored in minutes. A month is the
// 30.4-day average.
func TimeBased() *Schema {
	return mustCustom("Time", "Minute", map[string]string{
		"Year":   "525600",
		"Month":  "43800",
		"Week":   "10080",
		"Day":    "1440",
		"Hour":   "60",
		"Minute": "1",
	}, FormatTimeMixed)
}

// Xianxia is a single linear power level.
func Xianxia() *Schema {
	return mustCustom("Combat Power", "Power", map[string]string{
		"Power": "1",
	}, FormatScientific)
}

// Modern is dollars and cents, with "$" and "c" aliases.
func Modern() *Schema {
	return mustCustom("Dollars", "Cent", map[string]string{
		"USD":  "100",
		"$":    "100",
		"Cent": "1",
		"c":    "1",
	}, FormatDecimal)
}

// SciFiCredits uses metric prefixes: 1 MCR = 1000 KCR = 1,000,000 CR.
func SciFiCredits() *Schema {
	return mustCustom("Credits", "CR", map[string]string{
		"MCR": "1000000",
		"KCR": "1000",
		"CR":  "1",
	}, FormatStandard)
}

// Default is the schema used when none is configured.
func Default() *Schema {
	return ClassicFantasy()
}

// Preset returns a fresh copy of the named preset.
func Preset(name string) (*Schema, error) {
	f, ok := presets[name]
	if !ok {
		return nil, errs.New(errs.CodeConfiguration, "unknown schema preset %q (known: %v)", name, PresetNames())
	}
	return f(), nil
}

// PresetNames lists preset names in sorted order.
func PresetNames() []string {
	return slices.Sorted(maps.Keys(presets))
}

// DetectPresetForUnit guesses which preset a unit string belongs to. It
// returns "" when no preset uses the unit.
func DetectPresetForUnit(unit string) string {
	switch unit {
	case "$", "USD", "Cent", "c":
		return PresetModern
	case "CR", "KCR", "MCR", "Credit", "Credits":
		return PresetSciFiCredits
	case "Year", "Month", "Week", "Day", "Hour", "Minute":
		return PresetTimeBased
	case "Power", "Combat Power":
		return PresetXianxia
	case "GP", "SP", "CP", "Gold", "Silver", "Copper":
		return PresetClassicFantasy
	}
	return ""
}
