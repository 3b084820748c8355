// Package extract turns free prose into candidate ledger events. The
// extraction model itself is a black box behind Extractor; this package owns
// the boundary: cleaning model output, validating candidates against the
// event schema, defaulting fields, and memoizing calls.
package extract

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"github.com/roach88/litledger/internal/event"
	"github.com/roach88/litledger/internal/usage"
)

// DefaultConfidence is assigned to candidates that omit confidence.
const DefaultConfidence = "0.8"

// Extractor converts text to candidate events. An empty or whitespace-only
// text yields no events and no usage.
type Extractor interface {
	Extract(ctx context.Context, text, defaultUnit, language string) ([]*event.Event, usage.Metadata, error)
}

var (
	fenceOpen  = regexp.MustCompile("^```(?:json)?\\s*")
	fenceClose = regexp.MustCompile("\\s*```$")
	firstList  = regexp.MustCompile(`(?s)\[.*\]`)
)

// CleanResponse strips markdown fences and returns the outermost [...]
// block, or the trimmed text when there is none.
func CleanResponse(raw string) string {
	text := fenceOpen.ReplaceAllString(strings.TrimSpace(raw), "")
	text = fenceClose.ReplaceAllString(strings.TrimSpace(text), "")
	if m := firstList.FindString(text); m != "" {
		return m
	}
	return text
}

// ParseResponse decodes model output into events. Output that is not a
// JSON list yields no events. Entries that fail candidate validation are
// dropped with a warning; the rest get a default confidence, is_fuzzy=false,
// and, for gold without a unit, defaultUnit.
func ParseResponse(raw, defaultUnit string, logger *slog.Logger) []*event.Event {
	if logger == nil {
		logger = slog.Default()
	}
	v, err := event.DecodeGeneric([]byte(CleanResponse(raw)))
	if err != nil {
		logger.Warn("extraction output is not JSON", "error", err)
		return []*event.Event{}
	}
	list, ok := v.([]any)
	if !ok {
		return []*event.Event{}
	}

	out := make([]*event.Event, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			logger.Warn("dropped extraction candidate", "index", i, "error", "not an object")
			continue
		}
		applyDefaults(m, defaultUnit)
		ev, err := event.DecodeCandidate(m)
		if err != nil {
			logger.Warn("dropped extraction candidate", "index", i, "error", err)
			continue
		}
		out = append(out, ev)
	}
	return out
}

func applyDefaults(m map[string]any, defaultUnit string) {
	if _, ok := m["confidence"]; !ok {
		m["confidence"] = json.Number(DefaultConfidence)
	}
	if _, ok := m["is_fuzzy"]; !ok {
		m["is_fuzzy"] = false
	}
	if m["type"] == string(event.TypeGold) && defaultUnit != "" {
		if unit, _ := m["unit"].(string); strings.TrimSpace(unit) == "" {
			m["unit"] = defaultUnit
		}
	}
}
