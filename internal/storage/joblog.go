package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// JobLogEntry is one terminal job outcome recorded by a worker.
type JobLogEntry struct {
	JobID       string
	Queue       string
	Method      string
	URL         string
	StatusCode  int
	LastError   *string
	ReceivedAt  time.Time
	CompletedAt time.Time
}

// JobLog appends worker job outcomes for observability.
type JobLog struct {
	db *sql.DB
}

// NewJobLog creates a job log over db.
func NewJobLog(db *sql.DB) *JobLog {
	return &JobLog{db: db}
}

// Append records one terminal outcome. Appends compose with an enclosing
// transaction when tx is non-nil.
func (l *JobLog) Append(ctx context.Context, tx *sql.Tx, e JobLogEntry) error {
	if e.JobID == "" {
		return fmt.Errorf("jobID is empty")
	}
	if e.Queue == "" {
		return fmt.Errorf("queue is empty")
	}

	return RunInTransaction(ctx, l.db, tx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO job_log(id, queue, method, url, status_code, last_error, received_at, completed_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?);
`,
			e.JobID, e.Queue, e.Method, e.URL, e.StatusCode, e.LastError,
			e.ReceivedAt.UTC().Format(time.RFC3339Nano),
			e.CompletedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("insert job_log: %w", err)
		}
		return nil
	})
}

// Recent returns up to n outcomes for a queue, newest first.
func (l *JobLog) Recent(ctx context.Context, queue string, n int) ([]JobLogEntry, error) {
	if n <= 0 {
		n = 50
	}
	rows, err := l.db.QueryContext(ctx, `
SELECT id, queue, method, url, status_code, last_error, received_at, completed_at
FROM job_log
WHERE queue = ?
ORDER BY completed_at DESC
LIMIT ?;
`, queue, n)
	if err != nil {
		return nil, fmt.Errorf("query job_log: %w", err)
	}
	defer rows.Close()

	var out []JobLogEntry
	for rows.Next() {
		var (
			e          JobLogEntry
			lastError  sql.NullString
			receivedS  string
			completedS string
		)
		if err := rows.Scan(&e.JobID, &e.Queue, &e.Method, &e.URL, &e.StatusCode, &lastError, &receivedS, &completedS); err != nil {
			return nil, fmt.Errorf("scan job_log: %w", err)
		}
		if lastError.Valid {
			e.LastError = &lastError.String
		}
		if t, err := time.Parse(time.RFC3339Nano, receivedS); err == nil {
			e.ReceivedAt = t
		}
		if t, err := time.Parse(time.RFC3339Nano, completedS); err == nil {
			e.CompletedAt = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
