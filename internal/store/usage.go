package store

import (
	"context"
	"time"

	"github.com/roach88/litledger/internal/errs"
	"github.com/roach88/litledger/internal/num"
	"github.com/roach88/litledger/internal/usage"
)

var _ usage.Sink = (*Store)(nil)

// RecordUsage appends one usage record. Costs are stored as decimal text.
func (s *Store) RecordUsage(ctx context.Context, r usage.Record) error {
	saved := 0
	if r.Saved {
		saved = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_records (model, input_tokens, output_tokens, cost_usd, saved, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.Model, r.InputTokens, r.OutputTokens, num.String(r.CostUSD), saved, r.RecordedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return errs.Wrap(errs.CodePersistence, err, "record usage")
	}
	return nil
}

// UsageTotals aggregates every record in the archive. Costs are summed as
// decimals in Go rather than in SQL, which would round through REAL.
func (s *Store) UsageTotals(ctx context.Context) (usage.Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT input_tokens, output_tokens, cost_usd, saved
		FROM usage_records
		ORDER BY id ASC
	`)
	if err != nil {
		return usage.Summary{}, errs.Wrap(errs.CodePersistence, err, "usage totals")
	}
	defer rows.Close()

	total := usage.Summary{CostUSD: num.Zero(), SavedUSD: num.Zero()}
	for rows.Next() {
		var in, out int64
		var cost string
		var saved bool
		if err := rows.Scan(&in, &out, &cost, &saved); err != nil {
			return usage.Summary{}, errs.Wrap(errs.CodePersistence, err, "scan usage")
		}
		d, err := num.Parse(cost)
		if err != nil {
			return usage.Summary{}, err
		}
		if saved {
			total.SavedUSD, err = num.Add(total.SavedUSD, d)
		} else {
			total.TotalTokens += in + out
			total.CostUSD, err = num.Add(total.CostUSD, d)
		}
		if err != nil {
			return usage.Summary{}, err
		}
	}
	if err := rows.Err(); err != nil {
		return usage.Summary{}, errs.Wrap(errs.CodePersistence, err, "usage totals")
	}
	return total, nil
}
