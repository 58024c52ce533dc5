// Package store persists scan jobs, findings and repair actions.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"sitemedic/internal/models"
)

const timeFormat = "2006-01-02 15:04:05"

// CreateScan enqueues a new scan job and returns its id.
func CreateScan(db *sql.DB, ticketID int64, sessionID, rootPath string) (int64, error) {
	res, err := db.Exec(`
		INSERT INTO scans (ticket_id, session_id, root_path, status, progress)
		VALUES (?, ?, ?, ?, 0)`,
		ticketID, sessionID, rootPath, models.ScanQueued)
	if err != nil {
		return 0, fmt.Errorf("create scan: %w", err)
	}
	return res.LastInsertId()
}

// ClaimScan atomically flips one specific queued scan to running. Exactly one
// of several racing workers observes a true return.
func ClaimScan(db *sql.DB, id int64) (bool, error) {
	res, err := db.Exec(`
		UPDATE scans SET status = ?, started_at = ?, progress = 1
		WHERE id = ? AND status = ?`,
		models.ScanRunning, time.Now().UTC().Format(timeFormat), id, models.ScanQueued)
	if err != nil {
		return false, fmt.Errorf("claim scan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim scan: rows affected: %w", err)
	}
	return n == 1, nil
}

// NextQueuedScan returns the oldest queued scan id, or 0 when none is queued.
func NextQueuedScan(db *sql.DB) (int64, error) {
	var id int64
	err := db.QueryRow(`
		SELECT id FROM scans WHERE status = ? ORDER BY id LIMIT 1`,
		models.ScanQueued).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("next queued scan: %w", err)
	}
	return id, nil
}

// UpdateScanProgress records progress and the current file. Progress never
// moves backward; the guard lives in the statement so racing writers cannot
// regress it.
func UpdateScanProgress(db *sql.DB, id int64, progress int, currentFile string) error {
	_, err := db.Exec(`
		UPDATE scans SET progress = MAX(progress, ?), current_file = ?
		WHERE id = ? AND status = ?`,
		progress, currentFile, id, models.ScanRunning)
	if err != nil {
		return fmt.Errorf("update scan progress: %w", err)
	}
	return nil
}

// FinishScan marks a running scan done at 100% with its summary.
func FinishScan(db *sql.DB, id int64, summary string) error {
	_, err := db.Exec(`
		UPDATE scans SET status = ?, progress = 100, current_file = '',
			summary = ?, finished_at = ?
		WHERE id = ? AND status = ?`,
		models.ScanDone, summary, time.Now().UTC().Format(timeFormat), id, models.ScanRunning)
	if err != nil {
		return fmt.Errorf("finish scan: %w", err)
	}
	return nil
}

// FailScan marks a scan as errored with truncated diagnostics.
func FailScan(db *sql.DB, id int64, summary string) error {
	_, err := db.Exec(`
		UPDATE scans SET status = ?, summary = ?, finished_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		models.ScanError, summary, time.Now().UTC().Format(timeFormat),
		id, models.ScanQueued, models.ScanRunning)
	if err != nil {
		return fmt.Errorf("fail scan: %w", err)
	}
	return nil
}

// GetScan retrieves one scan, or nil when the id is unknown.
func GetScan(db *sql.DB, id int64) (*models.ScanJob, error) {
	row := db.QueryRow(`
		SELECT id, ticket_id, root_path, status, progress, current_file,
		       summary, COALESCE(started_at,''), COALESCE(finished_at,''), created_at
		FROM scans WHERE id = ?`, id)

	var s models.ScanJob
	var startedAt, finishedAt, createdAt string
	err := row.Scan(&s.ID, &s.TicketID, &s.RootPath, &s.Status, &s.Progress,
		&s.CurrentFile, &s.Summary, &startedAt, &finishedAt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get scan: %w", err)
	}
	s.StartedAt = parseTime(startedAt)
	s.FinishedAt = parseTime(finishedAt)
	s.CreatedAt = parseTime(createdAt)
	return &s, nil
}

// GetScanSession returns the session id a scan was enqueued with.
func GetScanSession(db *sql.DB, id int64) (string, error) {
	var sid string
	err := db.QueryRow(`SELECT session_id FROM scans WHERE id = ?`, id).Scan(&sid)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get scan session: %w", err)
	}
	return sid, nil
}

// ListScans returns the latest scans, newest first.
func ListScans(db *sql.DB, limit int) ([]models.ScanJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, ticket_id, root_path, status, progress, current_file,
		       summary, COALESCE(started_at,''), COALESCE(finished_at,''), created_at
		FROM scans ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	var out []models.ScanJob
	for rows.Next() {
		var s models.ScanJob
		var startedAt, finishedAt, createdAt string
		if err := rows.Scan(&s.ID, &s.TicketID, &s.RootPath, &s.Status, &s.Progress,
			&s.CurrentFile, &s.Summary, &startedAt, &finishedAt, &createdAt); err != nil {
			return nil, fmt.Errorf("scan scan row: %w", err)
		}
		s.StartedAt = parseTime(startedAt)
		s.FinishedAt = parseTime(finishedAt)
		s.CreatedAt = parseTime(createdAt)
		out = append(out, s)
	}
	return out, rows.Err()
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeFormat, s)
	return t
}
