package db

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/majidrgold/openpolicing/internal/timeutil"
)

// AnalysisRun records one analysis invocation so results stay traceable
// to the command and parameters that produced them.
type AnalysisRun struct {
	RunID     string    `json:"run_id"`
	Command   string    `json:"command"` // summary, compare, regress, chart
	Params    string    `json:"params"`  // human-readable parameter summary
	CreatedAt time.Time `json:"created_at"`
}

// CreateAnalysisRun inserts a new run record, assigning its run ID and
// timestamp. The clock is injected so tests get deterministic times.
func (db *DB) CreateAnalysisRun(run *AnalysisRun, clock timeutil.Clock) error {
	run.RunID = uuid.NewString()
	run.CreatedAt = clock.Now().UTC()

	_, err := db.Exec(
		`INSERT INTO analysis_runs (run_id, command, params, created_at) VALUES (?, ?, ?, ?)`,
		run.RunID, run.Command, run.Params, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create analysis run: %w", err)
	}
	return nil
}

// RecentAnalysisRuns retrieves the most recent N run records.
func (db *DB) RecentAnalysisRuns(limit int) ([]AnalysisRun, error) {
	rows, err := db.Query(
		`SELECT run_id, command, params, created_at
		 FROM analysis_runs
		 ORDER BY created_at DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis runs: %w", err)
	}
	defer rows.Close()

	var runs []AnalysisRun
	for rows.Next() {
		var run AnalysisRun
		if err := rows.Scan(&run.RunID, &run.Command, &run.Params, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan analysis run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
