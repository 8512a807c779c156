package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/featuresync/internal/core"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS reconcile_runs (
		id          UUID PRIMARY KEY,
		dataset     TEXT NOT NULL,
		file_name   TEXT NOT NULL DEFAULT '',
		phase       TEXT NOT NULL,
		dry_run     BOOLEAN NOT NULL DEFAULT FALSE,
		incoming    INTEGER NOT NULL DEFAULT 0,
		matched     INTEGER NOT NULL DEFAULT 0,
		submitted   INTEGER NOT NULL DEFAULT 0,
		applied     INTEGER NOT NULL DEFAULT 0,
		failed      INTEGER NOT NULL DEFAULT 0,
		error       TEXT,
		ip_address  TEXT,
		user_agent  TEXT,
		started_at  TIMESTAMPTZ NOT NULL,
		duration_ms BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS reconcile_runs_dataset_started_idx
		ON reconcile_runs (dataset, started_at DESC)`,
	`CREATE TABLE IF NOT EXISTS reconcile_run_failures (
		run_id     UUID NOT NULL REFERENCES reconcile_runs (id) ON DELETE CASCADE,
		item_index INTEGER NOT NULL,
		record_id  TEXT NOT NULL,
		error      TEXT NOT NULL
	)`,
}

// EnsureSchema creates the run history tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

const insertRunSQL = `INSERT INTO reconcile_runs
	(id, dataset, file_name, phase, dry_run, incoming, matched, submitted, applied, failed,
	 error, ip_address, user_agent, started_at, duration_ms)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

// RecordRun implements core.RunRecorder. The run row and its item failures
// are written in one transaction.
func (s *Store) RecordRun(ctx context.Context, rec core.RunRecord) error {
	r := rec.Report
	runID := core.ToPgUUID(r.RunID)
	if !runID.Valid {
		return fmt.Errorf("record run: invalid run id %q", r.RunID)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, insertRunSQL,
		runID,
		r.Dataset,
		r.FileName,
		string(r.Phase),
		r.DryRun,
		r.Incoming,
		r.Matched,
		r.Submitted,
		len(r.Applied),
		len(r.Failed),
		core.ToPgText(r.Error),
		core.ToPgText(rec.IPAddress),
		core.ToPgText(rec.UserAgent),
		r.StartedAt,
		r.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	if len(r.Failed) > 0 {
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"reconcile_run_failures"},
			[]string{"run_id", "item_index", "record_id", "error"},
			pgx.CopyFromSlice(len(r.Failed), func(i int) ([]any, error) {
				f := r.Failed[i]
				return []any{runID, int32(f.Index), f.ID.String(), f.Err.Error()}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("record run failures: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// ListRuns implements core.RunRecorder, newest first.
func (s *Store) ListRuns(ctx context.Context, dataset string, limit int) ([]core.RunSummary, error) {
	wb := NewWhereBuilder()
	wb.Add("dataset", dataset)
	where, args := wb.Build()

	query := `SELECT id, dataset, file_name, phase, dry_run, incoming, matched, submitted,
		applied, failed, error, ip_address, started_at, duration_ms
		FROM reconcile_runs` + where +
		fmt.Sprintf(" ORDER BY started_at DESC LIMIT $%d", wb.NextArgIndex())
	args = append(args, limit)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		if isUndefinedTable(err) {
			return []core.RunSummary{}, nil
		}
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]core.RunSummary, 0)
	for rows.Next() {
		var (
			sum       core.RunSummary
			id        pgtype.UUID
			phase     string
			errText   pgtype.Text
			ipAddress pgtype.Text
		)
		err := rows.Scan(&id, &sum.Dataset, &sum.FileName, &phase, &sum.DryRun,
			&sum.Incoming, &sum.Matched, &sum.Submitted, &sum.Applied, &sum.Failed,
			&errText, &ipAddress, &sum.StartedAt, &sum.DurationMs)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		sum.RunID = core.PgUUIDToString(id)
		sum.Phase = core.RunPhase(phase)
		sum.Error = errText.String
		sum.IPAddress = ipAddress.String
		runs = append(runs, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	return runs, nil
}
