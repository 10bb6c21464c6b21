package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/drivearc/drivearc/internal/journal"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

// InitDB opens the journal database and creates the attempts table if it
// doesn't exist.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS attempts (
		id INTEGER PRIMARY KEY,
		run_id TEXT,
		target_id TEXT,
		path TEXT,
		grp TEXT,
		status TEXT,
		reason TEXT,
		bytes INTEGER,
		duration_ms INTEGER,
		created_at DATETIME
	)`)

	if err != nil {
		return nil, err
	}

	return db, nil
}

type Journal struct {
	db *sql.DB
}

func NewJournal(dbConn *sql.DB) *Journal {
	return &Journal{db: dbConn}
}

// Append inserts one attempt record.
func (j *Journal) Append(ctx context.Context, rec journal.Record) error {
	if rec.At.IsZero() {
		rec.At = time.Now()
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO attempts (run_id, target_id, path, grp, status, reason, bytes, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.TargetID, rec.Path, rec.Group, rec.Status, rec.Reason,
		rec.Bytes, rec.Duration.Milliseconds(), rec.At.Format(time.RFC3339))

	return err
}

// Recent returns the newest attempts, most recent first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]journal.Record, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, target_id, path, grp, status, reason, bytes, duration_ms, created_at
		FROM attempts ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []journal.Record

	for rows.Next() {
		var rec journal.Record

		var durationMs int64

		var createdAt string

		if err := rows.Scan(&rec.RunID, &rec.TargetID, &rec.Path, &rec.Group,
			&rec.Status, &rec.Reason, &rec.Bytes, &durationMs, &createdAt); err != nil {
			return nil, err
		}

		rec.Duration = time.Duration(durationMs) * time.Millisecond
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			rec.At = t
		}

		records = append(records, rec)
	}

	return records, rows.Err()
}
