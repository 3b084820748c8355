package ledger

import (
	"regexp"
	"slices"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

const (
	// fuzzyThreshold is the similarity a candidate must exceed to match.
	fuzzyThreshold = 0.9

	// ambiguityMargin is how close the runner-up may score before a match
	// is considered ambiguous.
	ambiguityMargin = 0.1
)

var digits = regexp.MustCompile(`\d+`)

type fuzzyCandidate struct {
	name  string
	ratio float64
}

// NormalizeEntityName resolves raw against existing inventory names.
//
// An exact match returns raw. Names that differ from raw only in their
// digits ("Potion 1" and "Potion 2") are distinct items and never match.
// Otherwise the most similar name scoring above 0.9 wins, unless the
// runner-up is within 0.1 of it, in which case raw is returned with
// ambiguous set.
func NormalizeEntityName(raw string, existing []string) (name string, ambiguous bool) {
	if raw == "" || len(existing) == 0 || slices.Contains(existing, raw) {
		return raw, false
	}
	skeleton := digits.ReplaceAllString(raw, "")
	lowered := strings.ToLower(raw)

	var candidates []fuzzyCandidate
	for _, name := range slices.Sorted(slices.Values(existing)) {
		if digits.ReplaceAllString(name, "") == skeleton {
			continue
		}
		if r := similarity(lowered, strings.ToLower(name)); r > fuzzyThreshold {
			candidates = append(candidates, fuzzyCandidate{name: name, ratio: r})
		}
	}
	if len(candidates) == 0 {
		return raw, false
	}
	slices.SortStableFunc(candidates, func(a, b fuzzyCandidate) int {
		switch {
		case a.ratio > b.ratio:
			return -1
		case a.ratio < b.ratio:
			return 1
		}
		return 0
	})
	if len(candidates) > 1 && candidates[0].ratio-candidates[1].ratio < ambiguityMargin {
		return raw, true
	}
	return candidates[0].name, false
}

// similarity is the Ratcliff/Obershelp ratio over characters.
func similarity(a, b string) float64 {
	return difflib.NewMatcher(chars(a), chars(b)).Ratio()
}

func chars(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
