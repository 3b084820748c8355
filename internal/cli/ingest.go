package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/litledger/internal/errs"
	"github.com/roach88/litledger/internal/event"
	"github.com/roach88/litledger/internal/extract"
	"github.com/roach88/litledger/internal/ledger"
	"github.com/roach88/litledger/internal/usage"
)

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	*RootOptions
	Response string
	Unit     string
	Language string
	Model    string
	Commit   bool
}

// IngestResult is the ingest command's result.
type IngestResult struct {
	Source string              `json:"source"`
	Events []*event.Event      `json:"events"`
	Batch  *ledger.BatchResult `json:"batch,omitempty"`
	Usage  map[string]any      `json:"usage"`
}

// Text lists the extracted candidates and, when committed, the batch logs.
func (r IngestResult) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Extracted %d events from %s\n", len(r.Events), r.Source)
	for _, ev := range r.Events {
		b.WriteString("  " + describeEvent(ev) + "\n")
	}
	if r.Batch != nil {
		fmt.Fprintf(&b, "Committed batch %s\n", r.Batch.BatchID)
		for _, line := range r.Batch.Logs {
			b.WriteString("  " + line + "\n")
		}
	}
	fmt.Fprintf(&b, "Usage: %v tokens, $%v", r.Usage["total_tokens"], r.Usage["cost_usd"])
	return b.String()
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ingest <chapter.txt>",
		Short: "Turn recorded model output for a chapter into events",
		Long: `Run extraction for a chapter. The model's raw response is read from
--response, cleaned of code fences, and validated entry by entry; invalid
entries are dropped. Token usage is estimated and recorded in the archive.

Without --commit the candidates are only printed. With --commit they go
through the same screened, all-or-nothing path as the batch command.

Examples:
  litledger ingest ch12.txt --response ch12.model.json
  litledger ingest ch12.txt --response ch12.model.json --unit GP --commit`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withLedger(rootOpts, func(cmd *cobra.Command, s *session, l *ledger.Ledger, args []string) error {
			return runIngest(cmd, s, l, opts, args[0])
		}),
	}

	cmd.Flags().StringVar(&opts.Response, "response", "", "file holding the model's raw response (required)")
	cmd.Flags().StringVar(&opts.Unit, "unit", "", "unit for gold amounts without one (default: config, then schema base unit)")
	cmd.Flags().StringVar(&opts.Language, "language", "", "chapter language (default: config)")
	cmd.Flags().StringVar(&opts.Model, "model", "", "model name used for pricing (default: config)")
	cmd.Flags().BoolVar(&opts.Commit, "commit", false, "commit the extracted events as one batch")
	_ = cmd.MarkFlagRequired("response")

	return cmd
}

func runIngest(cmd *cobra.Command, s *session, l *ledger.Ledger, opts *IngestOptions, path string) error {
	ctx := cmd.Context()
	text, err := os.ReadFile(path)
	if err != nil {
		return s.out.Fail("ingest", errs.Wrap(errs.CodeNotFound, err, "read chapter %s", path))
	}

	unit := firstNonEmpty(opts.Unit, s.cfg.DefaultUnit, l.Schema().BaseUnit)
	language := firstNonEmpty(opts.Language, s.cfg.Language)
	model := firstNonEmpty(opts.Model, s.cfg.Model)

	archive, err := s.openArchive()
	if err != nil {
		return err
	}
	tracker := usage.NewTracker(usage.WithSink(archive), usage.WithLogger(s.logger))

	extractor := extract.NewCaching(&extract.FileExtractor{Path: opts.Response, Model: model, Logger: s.logger}, tracker)
	events, _, err := extractor.Extract(ctx, string(text), unit, language)
	if err != nil {
		return s.out.Fail("ingest", err)
	}
	s.logger.Debug("extracted", "chapter", path, "events", len(events))

	res := IngestResult{Source: path, Events: events}
	if opts.Commit && len(events) > 0 {
		batch, err := l.ProcessBatch(ctx, events)
		if batch == nil {
			return s.out.Fail("", err)
		}
		s.warnUnsaved(err)
		res.Batch = batch
	}
	res.Usage = tracker.Summary().Map()
	return s.out.Success(res)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
