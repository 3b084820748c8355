// Package ledger is the event-sourced core: an append-only event log,
// deterministic replay into a State, pre-commit security screening, atomic
// batch commits, retroactive edits with rollback, and crash-safe
// persistence of the log to a JSON file.
//
// A Ledger is safe for concurrent use. Every operation holds one mutex, so
// mutations are serialized and State never observes a half-applied commit.
package ledger

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/litledger/internal/errs"
	"github.com/roach88/litledger/internal/event"
	"github.com/roach88/litledger/internal/formula"
	"github.com/roach88/litledger/internal/rules"
	"github.com/roach88/litledger/internal/schema"
	"github.com/roach88/litledger/internal/telemetry"
	"github.com/roach88/litledger/internal/temporal"
	"github.com/roach88/litledger/internal/units"
)

// Ledger owns an event log and every engine that replay drives.
type Ledger struct {
	mu sync.Mutex

	path   string
	strict bool
	logger *slog.Logger
	ids    IDGenerator
	inst   *telemetry.Instruments

	registry *units.Registry
	formulas *formula.Engine
	rules    *rules.Engine

	events []*event.Event
	lastID int64

	// buffs is the buff set left by the last replay of the committed log.
	buffs *temporal.Manager

	// version is bumped by every mutation; cached is valid while
	// cachedVersion equals it.
	version       uint64
	cachedVersion uint64
	cached        *State

	replays int
}

// Option configures a Ledger.
type Option func(*config)

type config struct {
	path     string
	schema   *schema.Schema
	strict   bool
	logger   *slog.Logger
	ids      IDGenerator
	inst     *telemetry.Instruments
	formulas []formula.Formula
	rules    []rules.Spec
}

// WithPath sets the event-log file. An empty path keeps the ledger in memory.
func WithPath(path string) Option {
	return func(c *config) { c.path = path }
}

// WithSchema sets the world schema. The default is the classic fantasy preset.
func WithSchema(s *schema.Schema) Option {
	return func(c *config) { c.schema = s }
}

// WithStrict selects strict mode, in which underflows and negative results
// reject the commit. The default is draft mode.
func WithStrict(strict bool) Option {
	return func(c *config) { c.strict = strict }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithIDGenerator sets the batch id source.
func WithIDGenerator(g IDGenerator) Option {
	return func(c *config) { c.ids = g }
}

// WithInstruments sets the telemetry instruments.
func WithInstruments(in *telemetry.Instruments) Option {
	return func(c *config) { c.inst = in }
}

// WithFormulas registers formulas in order at construction.
func WithFormulas(fs []formula.Formula) Option {
	return func(c *config) { c.formulas = append(c.formulas, fs...) }
}

// WithRules registers rules in order at construction.
func WithRules(rs []rules.Spec) Option {
	return func(c *config) { c.rules = append(c.rules, rs...) }
}

// New builds a ledger and loads the event log at the configured path, if
// one exists.
func New(opts ...Option) (*Ledger, error) {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.ids == nil {
		cfg.ids = UUIDv7Generator{}
	}
	if cfg.inst == nil {
		cfg.inst = telemetry.Noop()
	}
	var s *schema.Schema
	if cfg.schema != nil {
		s = cfg.schema.Clone()
	}
	reg, err := units.New(s, cfg.logger)
	if err != nil {
		return nil, err
	}

	l := &Ledger{
		path:     cfg.path,
		strict:   cfg.strict,
		logger:   cfg.logger,
		ids:      cfg.ids,
		inst:     cfg.inst,
		registry: reg,
		formulas: formula.New(),
		rules:    rules.New(),
		buffs:    temporal.New(),
		version:  1,
	}
	for _, f := range cfg.formulas {
		if err := l.formulas.Register(f.Name, f.Expression); err != nil {
			return nil, err
		}
	}
	for _, r := range cfg.rules {
		if _, err := l.rules.Add(r); err != nil {
			return nil, err
		}
	}
	if err := l.Load(); err != nil {
		return nil, err
	}
	return l, nil
}

// Path returns the event-log file, or "" for an in-memory ledger.
func (l *Ledger) Path() string {
	return l.path
}

// Strict reports whether strict mode is on.
func (l *Ledger) Strict() bool {
	return l.strict
}

// State returns the state derived from the committed log. It replays only
// when the log changed since the last call.
func (l *Ledger) State(ctx context.Context) (*State, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, err := l.state(ctx)
	if err != nil {
		return nil, err
	}
	return st.Clone(), nil
}

func (l *Ledger) state(ctx context.Context) (*State, error) {
	if l.cached != nil && l.cachedVersion == l.version {
		return l.cached, nil
	}
	st, buffs, err := l.reduce(ctx, l.events)
	if err != nil {
		return nil, err
	}
	l.cached, l.cachedVersion, l.buffs = st, l.version, buffs
	return st, nil
}

// invalidate marks the cached state stale.
func (l *Ledger) invalidate() {
	l.version++
}

// Replays returns how many full replays this ledger has run.
func (l *Ledger) Replays() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.replays
}

// Events returns a deep copy of the committed log.
func (l *Ledger) Events() []*event.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return event.CloneAll(l.events)
}

// Len returns the number of committed events.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// LastEventID returns the highest id ever assigned.
func (l *Ledger) LastEventID() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastID
}

// ActiveBuffs returns the buffs active after the committed log.
func (l *Ledger) ActiveBuffs(ctx context.Context) ([]*temporal.Buff, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.state(ctx); err != nil {
		return nil, err
	}
	return l.buffs.Active(), nil
}

// RegisterFormula adds or replaces a computed stat.
func (l *Ledger) RegisterFormula(name, expression string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.formulas.Register(name, expression); err != nil {
		return err
	}
	l.invalidate()
	return nil
}

// Formulas lists the registered formulas.
func (l *Ledger) Formulas() []formula.Formula {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.formulas.Formulas()
}

// AddRule registers a rule. Rules apply to events committed afterwards;
// stored events keep the values they were committed with.
func (l *Ledger) AddRule(s rules.Spec) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rules.Add(s)
}

// Rules lists the registered rules.
func (l *Ledger) Rules() []rules.Rule {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rules.List()
}

// Schema returns a copy of the world schema.
func (l *Ledger) Schema() *schema.Schema {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.registry.Schema().Clone()
}

// SwitchSchema replaces the world schema. Stored amounts are not rewritten,
// so the balance is re-derived under the new rates.
func (l *Ledger) SwitchSchema(s *schema.Schema) error {
	if s == nil {
		return errs.New(errs.CodeConfiguration, "world schema is required")
	}
	reg, err := units.New(s.Clone(), l.logger)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.registry = reg
	l.invalidate()
	return nil
}

// FormatBalance renders the current balance in the schema's display format.
func (l *Ledger) FormatBalance(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, err := l.state(ctx)
	if err != nil {
		return "", err
	}
	return l.registry.FormatDisplay(st.CurrencyBalance), nil
}

// FormatValue renders a base-unit amount. An empty unit uses the display
// format; otherwise the amount is converted to unit.
func (l *Ledger) FormatValue(value *apd.Decimal, unit string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.registry.FormatValue(value, unit)
}
