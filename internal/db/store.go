package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/david/opportunity-finder/internal/discovery"
	"github.com/david/opportunity-finder/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// DefaultRecentRuns is the page size of RecentRuns when limit is not positive.
const DefaultRecentRuns = 20

// Store persists discovery runs.
type Store struct {
	conn DBTX
}

func NewStore(conn DBTX) *Store {
	return &Store{conn: conn}
}

const insertRunSQL = `INSERT INTO search_runs
	(id, keyword, opp_type, region, started_at, duration_ms, result_count, placeholder_count, render_used, results)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

const insertOutcomeSQL = `INSERT INTO source_outcomes
	(run_id, position, source_id, source_name, url, outcome, status_code, reason, record_count)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// RecordRun stores the run and its per-source outcomes in one transaction.
func (s *Store) RecordRun(ctx context.Context, r *discovery.Report) error {
	runID, err := uuid.Parse(r.RunID)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", r.RunID, err)
	}
	results, err := json.Marshal(r.Results)
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	placeholders := 0
	for _, rec := range r.Results {
		if rec.IsFallbackPlaceholder {
			placeholders++
		}
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx, insertRunSQL,
		runID,
		r.Query.Keyword,
		r.Query.Category,
		r.Query.Region,
		r.StartedAt,
		r.Duration.Milliseconds(),
		len(r.Results),
		placeholders,
		r.RenderUsed,
		results,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for i, so := range r.Outcomes {
		var status *int
		if so.Outcome.StatusCode != 0 {
			code := so.Outcome.StatusCode
			status = &code
		}
		if _, err := tx.Exec(ctx, insertOutcomeSQL,
			runID,
			i,
			so.Source.ID,
			so.Source.Name,
			so.Outcome.URL,
			so.Outcome.Kind.String(),
			status,
			so.Outcome.Reason,
			len(so.Outcome.Records),
		); err != nil {
			return fmt.Errorf("insert outcome for %s: %w", so.Source.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

const recentRunsSQL = `SELECT r.id, r.keyword, r.opp_type, r.region, r.started_at, r.duration_ms,
	r.result_count, r.placeholder_count, r.render_used,
	COUNT(o.run_id) FILTER (WHERE o.outcome = 'blocked'),
	COUNT(o.run_id) FILTER (WHERE o.outcome = 'timeout'),
	COUNT(o.run_id) FILTER (WHERE o.outcome = 'error')
	FROM search_runs r
	LEFT JOIN source_outcomes o ON o.run_id = r.id
	GROUP BY r.id
	ORDER BY r.started_at DESC
	LIMIT $1`

// RecentRuns lists the newest runs first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]models.SearchRun, error) {
	if limit <= 0 {
		limit = DefaultRecentRuns
	}
	rows, err := s.conn.Query(ctx, recentRunsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent runs: %w", err)
	}
	defer rows.Close()

	runs := []models.SearchRun{}
	for rows.Next() {
		var run models.SearchRun
		if err := rows.Scan(
			&run.ID, &run.Keyword, &run.Type, &run.Region, &run.StartedAt, &run.DurationMS,
			&run.ResultCount, &run.PlaceholderCount, &run.RenderUsed,
			&run.Blocked, &run.Timeouts, &run.Errors,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

const runOutcomesSQL = `SELECT run_id, position, source_id, source_name, url, outcome, status_code, COALESCE(reason, ''), record_count
	FROM source_outcomes WHERE run_id = $1 ORDER BY position`

// RunOutcomes returns the per-source outcomes of one run in fetch order.
func (s *Store) RunOutcomes(ctx context.Context, runID uuid.UUID) ([]models.SourceOutcome, error) {
	rows, err := s.conn.Query(ctx, runOutcomesSQL, runID)
	if err != nil {
		return nil, fmt.Errorf("query run outcomes: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.SourceOutcome, error) {
		var o models.SourceOutcome
		err := row.Scan(&o.RunID, &o.Position, &o.SourceID, &o.SourceName, &o.URL,
			&o.Outcome, &o.StatusCode, &o.Reason, &o.RecordCount)
		return o, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan run outcomes: %w", err)
	}
	return out, nil
}
