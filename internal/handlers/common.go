package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"sitemedic/internal/events"
	"sitemedic/internal/repair"
	"sitemedic/internal/session"
)

// Collaborators are wired in from main before the server starts.
var (
	Sessions *session.Manager
	Engine   *repair.Engine
	Bus      *events.Bus
)

// JSONResponse sends a JSON response
func JSONResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("⚠️  Failed to encode JSON response: %v", err)
	}
}

// JSONError sends a JSON error response
func JSONError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// parseID extracts a numeric {id} path value, or writes a 400 and returns false.
func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		JSONError(w, "Invalid scan id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
