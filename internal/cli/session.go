package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/litledger/internal/config"
	"github.com/roach88/litledger/internal/ledger"
	"github.com/roach88/litledger/internal/store"
	"github.com/roach88/litledger/internal/telemetry"
)

// session is what one command invocation works with: the resolved config,
// a logger, an output formatter, and lazily opened ledger and archive.
type session struct {
	cfg    *config.Config
	logger *slog.Logger
	out    *OutputFormatter

	ledger   *ledger.Ledger
	archive  *store.Store
	shutdown telemetry.Shutdown
}

// newFormatter binds an output formatter to the command's writers.
func newFormatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// newSession loads the configuration and applies the global flag
// overrides. Failures are reported through the formatter.
func newSession(cmd *cobra.Command, opts *RootOptions) (*session, error) {
	out := newFormatter(cmd, opts)
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, out.Fail("load config", err)
	}
	if opts.SavePath != "" {
		cfg.SavePath = opts.SavePath
	}
	if cmd.Flags().Changed("strict") {
		cfg.Strict = opts.Strict
	}

	level := cfg.SlogLevel()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return &session{cfg: cfg, logger: logger, out: out}, nil
}

// withLedger adapts a command body that needs the ledger into a cobra RunE.
func withLedger(opts *RootOptions, run func(cmd *cobra.Command, s *session, l *ledger.Ledger, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd, opts)
		if err != nil {
			return err
		}
		defer s.Close()
		l, err := s.openLedger(cmd.Context())
		if err != nil {
			return err
		}
		return run(cmd, s, l, args)
	}
}

// openLedger starts telemetry (a no-op without an endpoint) and loads the
// event log.
func (s *session) openLedger(ctx context.Context) (*ledger.Ledger, error) {
	if s.ledger != nil {
		return s.ledger, nil
	}
	shutdown, err := telemetry.Init(ctx, s.cfg.TelemetryConfig(Version))
	if err != nil {
		return nil, s.out.Fail("start telemetry", err)
	}
	s.shutdown = shutdown

	ledgerOpts, err := s.cfg.LedgerOptions(s.logger)
	if err != nil {
		return nil, s.out.Fail("configure ledger", err)
	}
	if s.cfg.Telemetry.Endpoint != "" {
		inst, err := telemetry.NewInstruments()
		if err != nil {
			return nil, s.out.Fail("create instruments", err)
		}
		ledgerOpts = append(ledgerOpts, ledger.WithInstruments(inst))
	}
	l, err := ledger.New(ledgerOpts...)
	if err != nil {
		return nil, s.out.Fail("open ledger", err)
	}
	s.logger.Debug("ledger ready", "path", l.Path(), "events", l.Len(), "strict", l.Strict())
	s.ledger = l
	return l, nil
}

// openArchive opens the SQLite archive named in the config.
func (s *session) openArchive() (*store.Store, error) {
	if s.archive != nil {
		return s.archive, nil
	}
	st, err := store.Open(s.cfg.ArchivePath)
	if err != nil {
		return nil, s.out.Fail("open archive", err)
	}
	s.archive = st
	return st, nil
}

// Close releases the archive and flushes telemetry.
func (s *session) Close() {
	if s.archive != nil {
		if err := s.archive.Close(); err != nil {
			s.logger.Error("error closing archive", "error", err)
		}
	}
	if s.shutdown != nil {
		if err := s.shutdown(context.Background()); err != nil {
			s.logger.Error("error flushing telemetry", "error", err)
		}
	}
}

// warnUnsaved logs the PERSISTENCE error that can accompany a successful
// commit: the change stands in memory but did not reach the file.
func (s *session) warnUnsaved(err error) {
	if err != nil {
		s.logger.Warn("committed in memory but not written to disk", "error", err)
	}
}
