package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"sitemedic/internal/db"
	"sitemedic/internal/models"
	"sitemedic/internal/repair"
	"sitemedic/internal/session"
	"sitemedic/internal/store"
)

// repairItem is one explicit step in an execute request. Which fields apply
// depends on the kind: quarantine_file wants path, disable/enable want
// content_type + slug, restore wants action_id.
type repairItem struct {
	Kind        string `json:"kind"`
	Path        string `json:"path,omitempty"`
	Slug        string `json:"slug,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	ActionID    string `json:"action_id,omitempty"`
}

type executeRepairRequest struct {
	Items []repairItem `json:"items"`
}

// scanContext loads the scan and its live session, writing the HTTP error
// itself when either is unavailable.
func scanContext(w http.ResponseWriter, r *http.Request) (scanID int64, sessionID, wpRoot string, ok bool) {
	scanID, ok = parseID(w, r)
	if !ok {
		return 0, "", "", false
	}
	job, err := store.GetScan(db.DB, scanID)
	if err != nil {
		JSONError(w, "Failed to retrieve scan: "+err.Error(), http.StatusInternalServerError)
		return 0, "", "", false
	}
	if job == nil {
		JSONError(w, "Scan not found", http.StatusNotFound)
		return 0, "", "", false
	}
	sessionID, err = store.GetScanSession(db.DB, scanID)
	if err != nil || sessionID == "" {
		JSONError(w, "Scan has no session", http.StatusInternalServerError)
		return 0, "", "", false
	}
	if _, err := Sessions.Info(sessionID); errors.Is(err, session.ErrNoSession) {
		JSONError(w, "Session expired; open a new one and rescan", http.StatusConflict)
		return 0, "", "", false
	}
	return scanID, sessionID, job.RootPath, true
}

// GetRepairPlan previews remediation steps for a scan without mutating
// anything on the remote site.
func GetRepairPlan(w http.ResponseWriter, r *http.Request) {
	scanID, ok := parseID(w, r)
	if !ok {
		return
	}
	job, err := store.GetScan(db.DB, scanID)
	if err != nil || job == nil {
		JSONError(w, "Scan not found", http.StatusNotFound)
		return
	}
	findings, err := store.ListFindings(db.DB, scanID)
	if err != nil {
		JSONError(w, "Failed to list findings: "+err.Error(), http.StatusInternalServerError)
		return
	}
	plan := repair.BuildPlan(findings, job.RootPath)
	JSONResponse(w, map[string]interface{}{
		"scan_id": scanID,
		"plan":    plan,
		"count":   len(plan),
	})
}

// ExecuteRepair runs an explicit list of repair steps against the scan's
// session. Items execute independently; one failure never aborts the batch.
func ExecuteRepair(w http.ResponseWriter, r *http.Request) {
	scanID, sessionID, wpRoot, ok := scanContext(w, r)
	if !ok {
		return
	}

	var req executeRepairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if len(req.Items) == 0 {
		JSONError(w, "No repair items given", http.StatusBadRequest)
		return
	}

	batch := executeItems(scanID, sessionID, wpRoot, req.Items)
	JSONResponse(w, batch)
}

// RunRepair builds the plan for a scan and executes it in one call.
func RunRepair(w http.ResponseWriter, r *http.Request) {
	scanID, sessionID, wpRoot, ok := scanContext(w, r)
	if !ok {
		return
	}
	findings, err := store.ListFindings(db.DB, scanID)
	if err != nil {
		JSONError(w, "Failed to list findings: "+err.Error(), http.StatusInternalServerError)
		return
	}

	plan := repair.BuildPlan(findings, wpRoot)
	items := make([]repairItem, 0, len(plan))
	for _, p := range plan {
		items = append(items, repairItem{
			Kind:        p.Kind,
			Path:        p.Path,
			Slug:        p.Slug,
			ContentType: p.ContentType,
		})
	}

	batch := executeItems(scanID, sessionID, wpRoot, items)
	JSONResponse(w, map[string]interface{}{
		"plan":   plan,
		"result": batch,
	})
}

// ListRepairActions returns the audit log for a scan, newest first.
func ListRepairActions(w http.ResponseWriter, r *http.Request) {
	scanID, ok := parseID(w, r)
	if !ok {
		return
	}
	actions, err := store.ListActions(db.DB, scanID)
	if err != nil {
		JSONError(w, "Failed to list actions: "+err.Error(), http.StatusInternalServerError)
		return
	}
	JSONResponse(w, map[string]interface{}{
		"scan_id": scanID,
		"actions": actions,
		"count":   len(actions),
	})
}

func executeItems(scanID int64, sessionID, wpRoot string, items []repairItem) repair.BatchResult {
	var batch repair.BatchResult
	for _, item := range items {
		var res repair.ItemResult
		switch item.Kind {
		case repair.PlanQuarantineFile, models.ActionQuarantineDir:
			res = Engine.Quarantine(sessionID, scanID, wpRoot, item.Path)
		case models.ActionRestore:
			res = Engine.Restore(sessionID, scanID, item.ActionID)
		case models.ActionDisable:
			res = Engine.Disable(sessionID, scanID, wpRoot, item.ContentType, item.Slug)
		case models.ActionEnable:
			res = Engine.Enable(sessionID, scanID, wpRoot, item.ContentType, item.Slug)
		default:
			res = repair.ItemResult{
				Kind:   item.Kind,
				Status: repair.StatusError,
				Reason: "unknown repair kind",
			}
		}
		batch.Add(res)
	}
	return batch
}

// RegisterRepairRoutes wires up the remediation endpoints.
func RegisterRepairRoutes(mux *http.ServeMux, protect func(http.HandlerFunc) http.HandlerFunc) {
	mux.HandleFunc("GET /api/scans/{id}/repair/plan", protect(GetRepairPlan))
	mux.HandleFunc("POST /api/scans/{id}/repair/execute", protect(ExecuteRepair))
	mux.HandleFunc("POST /api/scans/{id}/repair/run", protect(RunRepair))
	mux.HandleFunc("GET /api/scans/{id}/repair/actions", protect(ListRepairActions))
}
