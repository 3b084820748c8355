// Package usage accounts for extraction token usage and its estimated cost.
package usage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/litledger/internal/num"
)

// DefaultModel prices calls that name no model, and any unknown model.
const DefaultModel = "gemini-2.5-flash"

// Price is the USD cost per one million tokens.
type Price struct {
	Input  *apd.Decimal
	Output *apd.Decimal
}

var pricing = map[string]Price{
	"gemini-2.5-flash": {Input: num.MustParse("0.075"), Output: num.MustParse("0.30")},
	"gemini-1.5-flash": {Input: num.MustParse("0.075"), Output: num.MustParse("0.30")},
	"gemini-1.5-pro":   {Input: num.MustParse("3.50"), Output: num.MustParse("10.50")},
}

var perMillion = num.FromInt(1_000_000)

// PriceFor returns the pricing row for model, falling back to DefaultModel.
func PriceFor(model string) Price {
	if p, ok := pricing[model]; ok {
		return p
	}
	return pricing[DefaultModel]
}

// Metadata is what an extractor reports about one call. The zero value
// means nothing was reported.
type Metadata struct {
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	Model        string `json:"model"`
}

// Empty reports whether m carries no usage.
func (m Metadata) Empty() bool {
	return m == Metadata{}
}

// Cost prices m.
func (m Metadata) Cost() *apd.Decimal {
	p := PriceFor(m.Model)
	in := mustMul(mustQuo(num.FromInt(m.InputTokens), perMillion), p.Input)
	out := mustMul(mustQuo(num.FromInt(m.OutputTokens), perMillion), p.Output)
	total, err := num.Add(in, out)
	if err != nil {
		panic(err)
	}
	return total
}

// Record is one tracked call, as handed to a Sink.
type Record struct {
	Model        string
	InputTokens  int64
	OutputTokens int64
	CostUSD      *apd.Decimal
	// Saved marks a cache hit: the cost was avoided, not spent.
	Saved      bool
	RecordedAt time.Time
}

// Sink persists records. The archive store implements it.
type Sink interface {
	RecordUsage(ctx context.Context, r Record) error
}

// Summary is the running total.
type Summary struct {
	TotalTokens int64        `json:"total_tokens"`
	CostUSD     *apd.Decimal `json:"-"`
	SavedUSD    *apd.Decimal `json:"-"`
}

// Tracker accumulates usage. It is safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	input   int64
	output  int64
	cost    *apd.Decimal
	saved   *apd.Decimal
	sink    Sink
	logger  *slog.Logger
	nowFunc func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithSink persists every tracked record.
func WithSink(s Sink) Option {
	return func(t *Tracker) { t.sink = s }
}

// WithLogger sets the logger used for sink failures.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// WithClock sets the record timestamp source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.nowFunc = now }
}

// NewTracker returns an empty tracker.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		cost:    num.Zero(),
		saved:   num.Zero(),
		logger:  slog.Default(),
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track records a billed call. Empty metadata is ignored.
func (t *Tracker) Track(ctx context.Context, m Metadata) {
	if m.Empty() {
		return
	}
	cost := m.Cost()
	t.mu.Lock()
	t.input += m.InputTokens
	t.output += m.OutputTokens
	t.cost = mustAdd(t.cost, cost)
	t.mu.Unlock()
	t.emit(ctx, m, cost, false)
}

// TrackSaved records the projected cost of a call a cache answered. Tokens
// are not added to the total.
func (t *Tracker) TrackSaved(ctx context.Context, m Metadata) {
	if m.Empty() {
		return
	}
	cost := m.Cost()
	t.mu.Lock()
	t.saved = mustAdd(t.saved, cost)
	t.mu.Unlock()
	t.emit(ctx, m, cost, true)
}

func (t *Tracker) emit(ctx context.Context, m Metadata, cost *apd.Decimal, saved bool) {
	if t.sink == nil {
		return
	}
	model := m.Model
	if model == "" {
		model = DefaultModel
	}
	r := Record{
		Model:        model,
		InputTokens:  m.InputTokens,
		OutputTokens: m.OutputTokens,
		CostUSD:      cost,
		Saved:        saved,
		RecordedAt:   t.nowFunc().UTC(),
	}
	if err := t.sink.RecordUsage(ctx, r); err != nil {
		t.logger.Warn("usage record not persisted", "model", model, "error", err)
	}
}

// Summary returns the totals so far.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Summary{
		TotalTokens: t.input + t.output,
		CostUSD:     num.Clone(t.cost),
		SavedUSD:    num.Clone(t.saved),
	}
}

// Map renders s with decimal strings, the form the CLI and MCP tools print.
func (s Summary) Map() map[string]any {
	return map[string]any{
		"total_tokens": s.TotalTokens,
		"cost_usd":     num.String(s.CostUSD),
		"saved_usd":    num.String(s.SavedUSD),
	}
}

func mustAdd(x, y *apd.Decimal) *apd.Decimal {
	d, err := num.Add(x, y)
	if err != nil {
		panic(err)
	}
	return d
}

func mustMul(x, y *apd.Decimal) *apd.Decimal {
	d, err := num.Mul(x, y)
	if err != nil {
		panic(err)
	}
	return d
}

func mustQuo(x, y *apd.Decimal) *apd.Decimal {
	d, err := num.Quo(x, y)
	if err != nil {
		panic(err)
	}
	return d
}
