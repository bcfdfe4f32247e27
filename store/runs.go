package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrRunNotFound is returned for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusStopped   = "stopped"
	StatusFailed    = "failed"
)

// Run is one pass over a frame source with a splits file.
type Run struct {
	ID         string
	SplitsPath string
	Source     string
	SplitCount int
	StartedAt  time.Time
	FinishedAt *time.Time
	Frames     int64
	Status     string
}

// SplitResult is a score recorded for one split of a run.
type SplitResult struct {
	RunID         string
	SplitIndex    int
	Score         int64
	Confidence    float64
	FrameSequence uint64
	FrameOffset   time.Duration
	DetectedAt    time.Time
}

// timeLayout is fixed width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// CreateRun starts a new run record.
func (s *Store) CreateRun(ctx context.Context, splitsPath, source string, splitCount int) (Run, error) {
	run := Run{
		ID:         uuid.NewString(),
		SplitsPath: splitsPath,
		Source:     source,
		SplitCount: splitCount,
		StartedAt:  time.Now().UTC(),
		Status:     StatusRunning,
	}
	_, err := s.exec(ctx,
		`INSERT INTO runs (id, splits_path, source, split_count, started_at, status) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.SplitsPath, run.Source, run.SplitCount, run.StartedAt.Format(timeLayout), run.Status,
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// RecordResult stores the score of a split. Recording the same split twice
// for a run replaces the earlier result.
func (s *Store) RecordResult(ctx context.Context, r SplitResult) error {
	if r.RunID == "" {
		return errors.New("record result: empty run id")
	}
	if r.DetectedAt.IsZero() {
		r.DetectedAt = time.Now()
	}
	_, err := s.exec(ctx,
		`INSERT INTO split_results (run_id, split_index, score, confidence, frame_sequence, frame_offset_ms, detected_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, split_index) DO UPDATE SET
		   score = excluded.score,
		   confidence = excluded.confidence,
		   frame_sequence = excluded.frame_sequence,
		   frame_offset_ms = excluded.frame_offset_ms,
		   detected_at = excluded.detected_at`,
		r.RunID, r.SplitIndex, r.Score, r.Confidence, int64(r.FrameSequence), r.FrameOffset.Milliseconds(), r.DetectedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// FinishRun marks a run as done with the given status and frame count.
func (s *Store) FinishRun(ctx context.Context, id, status string, frames int64) error {
	res, err := s.exec(ctx,
		`UPDATE runs SET finished_at = ?, status = ?, frames = ? WHERE id = ?`,
		time.Now().UTC().Format(timeLayout), status, frames, id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// GetRun returns a single run.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, splits_path, source, split_count, started_at, finished_at, frames, status FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT id, splits_path, source, split_count, started_at, finished_at, frames, status FROM runs ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// ListResults returns the results of a run ordered by split index.
func (s *Store) ListResults(ctx context.Context, runID string) ([]SplitResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, split_index, score, confidence, frame_sequence, frame_offset_ms, detected_at
		 FROM split_results WHERE run_id = ? ORDER BY split_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()
	var out []SplitResult
	for rows.Next() {
		var (
			r        SplitResult
			seq      int64
			offsetMs int64
			detected string
		)
		if err := rows.Scan(&r.RunID, &r.SplitIndex, &r.Score, &r.Confidence, &seq, &offsetMs, &detected); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.FrameSequence = uint64(seq)
		r.FrameOffset = time.Duration(offsetMs) * time.Millisecond
		if r.DetectedAt, err = time.Parse(timeLayout, detected); err != nil {
			return nil, fmt.Errorf("parse detected_at: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run      Run
		started  string
		finished sql.NullString
	)
	if err := row.Scan(&run.ID, &run.SplitsPath, &run.Source, &run.SplitCount, &started, &finished, &run.Frames, &run.Status); err != nil {
		return Run{}, err
	}
	var err error
	if run.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return Run{}, fmt.Errorf("parse started_at: %w", err)
	}
	if finished.Valid {
		t, err := time.Parse(timeLayout, finished.String)
		if err != nil {
			return Run{}, fmt.Errorf("parse finished_at: %w", err)
		}
		run.FinishedAt = &t
	}
	return run, nil
}
