package store

import (
	"database/sql"
	"fmt"

	"sitemedic/internal/models"
)

// InsertFinding appends one immutable finding to a scan. Corrections are new
// findings, never edits.
func InsertFinding(db *sql.DB, f *models.Finding) (int64, error) {
	res, err := db.Exec(`
		INSERT INTO findings (scan_id, path, severity, kind, detail, sha256)
		VALUES (?, ?, ?, ?, ?, ?)`,
		f.ScanID, f.Path, f.Severity, f.Kind, f.Detail, f.SHA256)
	if err != nil {
		return 0, fmt.Errorf("insert finding: %w", err)
	}
	return res.LastInsertId()
}

// ListFindings returns all findings of a scan, most recent first.
func ListFindings(db *sql.DB, scanID int64) ([]models.Finding, error) {
	rows, err := db.Query(`
		SELECT id, scan_id, path, severity, kind, detail, sha256, created_at
		FROM findings WHERE scan_id = ? ORDER BY id DESC`, scanID)
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	defer rows.Close()

	var out []models.Finding
	for rows.Next() {
		var f models.Finding
		var createdAt string
		if err := rows.Scan(&f.ID, &f.ScanID, &f.Path, &f.Severity, &f.Kind,
			&f.Detail, &f.SHA256, &createdAt); err != nil {
			return nil, fmt.Errorf("scan finding row: %w", err)
		}
		f.CreatedAt = parseTime(createdAt)
		out = append(out, f)
	}
	return out, rows.Err()
}

// CountFindings returns the number of findings of a given kind on a scan.
func CountFindings(db *sql.DB, scanID int64, kind string) (int, error) {
	var n int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM findings WHERE scan_id = ? AND kind = ?`,
		scanID, kind).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count findings: %w", err)
	}
	return n, nil
}
