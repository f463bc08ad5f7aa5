package journal

import (
	"database/sql"
	"fmt"
	"time"
)

// Run statuses
const (
	StatusSuccess = "success"
	StatusPartial = "partial" // finished, but some entries could not be removed
	StatusFailed  = "failed"
)

// RunRecord summarizes one clean run
type RunRecord struct {
	ID                 int64
	RunID              string
	Target             string
	StartTime          time.Time
	EndTime            time.Time
	Status             string
	FilesRemoved       int
	DirectoriesRemoved int
	Failures           int
	Error              string
}

const runColumns = `id, run_id, target, start_time, end_time, status,
	files_removed, directories_removed, failures, error`

// SaveRun records a finished run
func (j *Journal) SaveRun(record RunRecord) error {
	switch record.Status {
	case StatusSuccess, StatusPartial, StatusFailed:
	default:
		return fmt.Errorf("invalid status: %s (must be 'success', 'partial' or 'failed')", record.Status)
	}

	_, err := j.db.Exec(`
		INSERT INTO runs (run_id, target, start_time, end_time, status,
			files_removed, directories_removed, failures, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.RunID,
		record.Target,
		record.StartTime,
		record.EndTime,
		record.Status,
		record.FilesRemoved,
		record.DirectoriesRemoved,
		record.Failures,
		record.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save run record: %w", err)
	}
	return nil
}

// History returns the latest runs on target, newest first
func (j *Journal) History(target string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	rows, err := j.db.Query(`SELECT `+runColumns+` FROM runs
		WHERE target = ? ORDER BY start_time DESC, id DESC LIMIT ?`, target, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		record, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return records, nil
}

// LastSuccess returns the latest successful run on target, or nil
func (j *Journal) LastSuccess(target string) (*RunRecord, error) {
	row := j.db.QueryRow(`SELECT `+runColumns+` FROM runs
		WHERE target = ? AND status = ? ORDER BY start_time DESC, id DESC LIMIT 1`, target, StatusSuccess)

	record, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last success: %w", err)
	}
	return record, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*RunRecord, error) {
	var (
		r      RunRecord
		errMsg sql.NullString
	)
	err := s.Scan(&r.ID, &r.RunID, &r.Target, &r.StartTime, &r.EndTime, &r.Status,
		&r.FilesRemoved, &r.DirectoriesRemoved, &r.Failures, &errMsg)
	if err != nil {
		return nil, err
	}
	r.Error = errMsg.String
	return &r, nil
}
