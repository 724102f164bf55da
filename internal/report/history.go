package report

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/testrig/testrig/internal/runner"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS runs (
	id        TEXT PRIMARY KEY,
	started   INTEGER NOT NULL,
	finished  INTEGER NOT NULL,
	passed    INTEGER NOT NULL,
	failed    INTEGER NOT NULL,
	skipped   INTEGER NOT NULL,
	timed_out INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS results (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	suite      TEXT NOT NULL,
	name       TEXT NOT NULL,
	attempt    INTEGER NOT NULL,
	outcome    TEXT NOT NULL,
	error      TEXT,
	elapsed_ns INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS results_run ON results(run_id);
`

// History appends run outcomes to a SQLite file so regressions can be traced
// across runs.
type History struct {
	db *sql.DB
}

// OpenHistory opens (creating if needed) the history database at path.
func OpenHistory(path string) (*History, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history %s: %w", path, err)
	}
	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing history %s: %w", path, err)
	}
	return &History{db: db}, nil
}

// RecordRun stores the run summary and every result in one transaction.
func (h *History) RecordRun(run *runner.Run) error {
	tx, err := h.db.Begin()
	if err != nil {
		return fmt.Errorf("recording run %s: %w", run.ID, err)
	}
	defer tx.Rollback()

	counts := run.Counts()
	_, err = tx.Exec(
		`INSERT INTO runs (id, started, finished, passed, failed, skipped, timed_out)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Started.UnixNano(), run.Finished.UnixNano(),
		counts.Passed, counts.Failed, counts.Skipped, counts.TimedOut,
	)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", run.ID, err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO results (run_id, suite, name, attempt, outcome, error, elapsed_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", run.ID, err)
	}
	defer stmt.Close()

	for _, res := range run.Results {
		var errText any
		if res.Err != nil {
			errText = res.Err.Error()
		}
		if _, err := stmt.Exec(run.ID, res.Suite, res.Case, res.Attempt,
			res.Outcome.String(), errText, res.Elapsed.Nanoseconds()); err != nil {
			return fmt.Errorf("recording result %s: %w", res.Name(), err)
		}
	}
	return tx.Commit()
}

// RunSummary is one row of the runs table.
type RunSummary struct {
	ID       string
	Started  time.Time
	Finished time.Time
	Counts   runner.Counts
}

// RecentRuns returns up to limit run summaries, newest first.
func (h *History) RecentRuns(limit int) ([]RunSummary, error) {
	rows, err := h.db.Query(
		`SELECT id, started, finished, passed, failed, skipped, timed_out
		 FROM runs ORDER BY started DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var s RunSummary
		var started, finished int64
		if err := rows.Scan(&s.ID, &started, &finished,
			&s.Counts.Passed, &s.Counts.Failed, &s.Counts.Skipped, &s.Counts.TimedOut); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		s.Started = time.Unix(0, started)
		s.Finished = time.Unix(0, finished)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (h *History) Close() error {
	return h.db.Close()
}
