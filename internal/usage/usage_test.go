package usage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/litledger/internal/num"
)

type memSink struct {
	records []Record
	err     error
}

func (m *memSink) RecordUsage(_ context.Context, r Record) error {
	m.records = append(m.records, r)
	return m.err
}

func TestMetadata_Cost(t *testing.T) {
	tests := []struct {
		name string
		m    Metadata
		want string
	}{
		{"flash", Metadata{InputTokens: 1_000_000, OutputTokens: 1_000_000, Model: "gemini-2.5-flash"}, "0.375"},
		{"pro", Metadata{InputTokens: 2_000_000, OutputTokens: 100_000, Model: "gemini-1.5-pro"}, "8.05"},
		{"unknown model priced as flash", Metadata{InputTokens: 1000, OutputTokens: 500, Model: "gpt-x"}, "0.000225"},
		{"default model", Metadata{InputTokens: 10}, "0.00000075"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, num.String(tt.m.Cost()))
		})
	}
}

func TestTracker_Summary(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker()
	tr.Track(ctx, Metadata{InputTokens: 1_000_000, OutputTokens: 0, Model: "gemini-1.5-flash"})
	tr.Track(ctx, Metadata{InputTokens: 0, OutputTokens: 1_000_000, Model: "gemini-1.5-flash"})
	tr.TrackSaved(ctx, Metadata{InputTokens: 1_000_000, OutputTokens: 1_000_000, Model: "gemini-1.5-pro"})
	tr.Track(ctx, Metadata{})

	s := tr.Summary()
	assert.Equal(t, int64(2_000_000), s.TotalTokens)
	assert.Equal(t, "0.375", num.String(s.CostUSD))
	assert.Equal(t, "14", num.String(s.SavedUSD))
	assert.Equal(t, map[string]any{
		"total_tokens": int64(2_000_000),
		"cost_usd":     "0.375",
		"saved_usd":    "14",
	}, s.Map())
}

func TestTracker_Sink(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	sink := &memSink{}
	tr := NewTracker(WithSink(sink), WithClock(func() time.Time { return at }))

	tr.Track(context.Background(), Metadata{InputTokens: 10, OutputTokens: 5})
	tr.TrackSaved(context.Background(), Metadata{InputTokens: 10, OutputTokens: 5, Model: "gemini-1.5-pro"})

	require.Len(t, sink.records, 2)
	assert.Equal(t, DefaultModel, sink.records[0].Model)
	assert.False(t, sink.records[0].Saved)
	assert.Equal(t, at, sink.records[0].RecordedAt)
	assert.True(t, sink.records[1].Saved)
	assert.Equal(t, "gemini-1.5-pro", sink.records[1].Model)
}

func TestTracker_SinkFailureKeepsTotals(t *testing.T) {
	sink := &memSink{err: errors.New("disk full")}
	tr := NewTracker(WithSink(sink), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	tr.Track(context.Background(), Metadata{InputTokens: 4, OutputTokens: 6})
	assert.Equal(t, int64(10), tr.Summary().TotalTokens)
}
