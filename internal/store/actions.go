package store

import (
	"database/sql"
	"fmt"

	"sitemedic/internal/models"
)

// InsertAction records one repair action. It is written exactly once per
// attempted mutation, after the outcome is known.
func InsertAction(db *sql.DB, a *models.RepairAction) (int64, error) {
	res, err := db.Exec(`
		INSERT INTO repair_actions
			(action_id, scan_id, session_id, kind, src_path, dst_path,
			 hash_before, hash_after, status, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ActionID, a.ScanID, a.SessionID, a.Kind, a.SrcPath,
		nullable(a.DstPath), nullable(a.HashBefore), nullable(a.HashAfter),
		a.Status, nullable(a.Reason))
	if err != nil {
		return 0, fmt.Errorf("insert repair action: %w", err)
	}
	return res.LastInsertId()
}

// ListActions returns the action log of a scan, most recent first.
func ListActions(db *sql.DB, scanID int64) ([]models.RepairAction, error) {
	rows, err := db.Query(`
		SELECT id, action_id, scan_id, session_id, kind, src_path,
		       COALESCE(dst_path,''), COALESCE(hash_before,''),
		       COALESCE(hash_after,''), status, COALESCE(reason,''), executed_at
		FROM repair_actions WHERE scan_id = ? ORDER BY id DESC`, scanID)
	if err != nil {
		return nil, fmt.Errorf("list repair actions: %w", err)
	}
	defer rows.Close()

	var out []models.RepairAction
	for rows.Next() {
		var a models.RepairAction
		var executedAt string
		if err := rows.Scan(&a.ID, &a.ActionID, &a.ScanID, &a.SessionID, &a.Kind,
			&a.SrcPath, &a.DstPath, &a.HashBefore, &a.HashAfter,
			&a.Status, &a.Reason, &executedAt); err != nil {
			return nil, fmt.Errorf("scan repair action row: %w", err)
		}
		a.ExecutedAt = parseTime(executedAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetActionByID looks up one action by its human-decodable action id.
func GetActionByID(db *sql.DB, actionID string) (*models.RepairAction, error) {
	row := db.QueryRow(`
		SELECT id, action_id, scan_id, session_id, kind, src_path,
		       COALESCE(dst_path,''), COALESCE(hash_before,''),
		       COALESCE(hash_after,''), status, COALESCE(reason,''), executed_at
		FROM repair_actions WHERE action_id = ?`, actionID)

	var a models.RepairAction
	var executedAt string
	err := row.Scan(&a.ID, &a.ActionID, &a.ScanID, &a.SessionID, &a.Kind,
		&a.SrcPath, &a.DstPath, &a.HashBefore, &a.HashAfter,
		&a.Status, &a.Reason, &executedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get repair action: %w", err)
	}
	a.ExecutedAt = parseTime(executedAt)
	return &a, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
