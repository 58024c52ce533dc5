package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"sitemedic/internal/db"
	"sitemedic/internal/events"
	"sitemedic/internal/models"
	"sitemedic/internal/session"
	"sitemedic/internal/store"
)

type createScanRequest struct {
	TicketID  int64  `json:"ticket_id"`
	SessionID string `json:"session_id"`
	RootPath  string `json:"root_path"`
}

// scanResponse is ScanJob with the summary string decoded for the client.
type scanResponse struct {
	models.ScanJob
	SummaryData *models.ScanSummary `json:"summary_data,omitempty"`
}

func toScanResponse(job models.ScanJob) scanResponse {
	resp := scanResponse{ScanJob: job}
	if job.Summary != "" {
		var s models.ScanSummary
		if err := json.Unmarshal([]byte(job.Summary), &s); err == nil {
			resp.SummaryData = &s
		}
	}
	return resp
}

// CreateScan enqueues a scan of a remote tree and returns 202 immediately.
// The worker pool picks the job up; progress is polled via GetScan.
func CreateScan(w http.ResponseWriter, r *http.Request) {
	var req createScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" || req.RootPath == "" {
		JSONError(w, "Missing session_id or root_path", http.StatusBadRequest)
		return
	}
	if _, err := Sessions.Info(req.SessionID); errors.Is(err, session.ErrNoSession) {
		JSONError(w, "Session not found or expired", http.StatusNotFound)
		return
	}

	id, err := store.CreateScan(db.DB, req.TicketID, req.SessionID, req.RootPath)
	if err != nil {
		JSONError(w, "Failed to enqueue scan: "+err.Error(), http.StatusInternalServerError)
		return
	}

	if Bus != nil {
		Bus.Publish(events.Event{
			Type:      events.ScanQueued,
			ScanID:    id,
			SessionID: req.SessionID,
			Path:      req.RootPath,
			Timestamp: time.Now(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"scan_id": id,
		"status":  models.ScanQueued,
	})
}

// GetScan returns one scan job with its progress and decoded summary.
func GetScan(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	job, err := store.GetScan(db.DB, id)
	if err != nil {
		JSONError(w, "Failed to retrieve scan: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if job == nil {
		JSONError(w, "Scan not found", http.StatusNotFound)
		return
	}
	JSONResponse(w, toScanResponse(*job))
}

// ListScans returns recent scans, newest first.
func ListScans(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	jobs, err := store.ListScans(db.DB, limit)
	if err != nil {
		JSONError(w, "Failed to list scans: "+err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]scanResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toScanResponse(j))
	}
	JSONResponse(w, map[string]interface{}{
		"scans": out,
		"count": len(out),
	})
}

// ListFindings returns every finding recorded for a scan.
func ListFindings(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if job, err := store.GetScan(db.DB, id); err != nil || job == nil {
		JSONError(w, "Scan not found", http.StatusNotFound)
		return
	}
	findings, err := store.ListFindings(db.DB, id)
	if err != nil {
		JSONError(w, "Failed to list findings: "+err.Error(), http.StatusInternalServerError)
		return
	}
	JSONResponse(w, map[string]interface{}{
		"scan_id":  id,
		"findings": findings,
		"count":    len(findings),
	})
}

// RegisterScanRoutes wires up the scan job endpoints.
func RegisterScanRoutes(mux *http.ServeMux, protect func(http.HandlerFunc) http.HandlerFunc) {
	mux.HandleFunc("POST /api/scans", protect(CreateScan))
	mux.HandleFunc("GET /api/scans", protect(ListScans))
	mux.HandleFunc("GET /api/scans/{id}", protect(GetScan))
	mux.HandleFunc("GET /api/scans/{id}/findings", protect(ListFindings))
}
