package extract

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/roach88/litledger/internal/errs"
	"github.com/roach88/litledger/internal/event"
	"github.com/roach88/litledger/internal/usage"
)

// FileExtractor replays model output recorded in a file. It stands in for a
// live model in offline runs and tests.
type FileExtractor struct {
	Path   string
	Model  string
	Logger *slog.Logger
}

// Extract ignores text beyond the empty check and parses the recorded
// output. Usage is estimated at four characters per token.
func (f *FileExtractor) Extract(_ context.Context, text, defaultUnit, _ string) ([]*event.Event, usage.Metadata, error) {
	if strings.TrimSpace(text) == "" {
		return []*event.Event{}, usage.Metadata{}, nil
	}
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, usage.Metadata{}, errs.Wrap(errs.CodeNotFound, err, "recorded extraction %s", f.Path)
	}
	model := f.Model
	if model == "" {
		model = usage.DefaultModel
	}
	meta := usage.Metadata{
		InputTokens:  estimateTokens(text),
		OutputTokens: estimateTokens(string(raw)),
		Model:        model,
	}
	return ParseResponse(string(raw), defaultUnit, f.Logger), meta, nil
}

func estimateTokens(s string) int64 {
	n := utf8.RuneCountInString(s)
	return int64((n + 3) / 4)
}
