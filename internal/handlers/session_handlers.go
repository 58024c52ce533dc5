package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"sitemedic/internal/session"
	"sitemedic/internal/transport"
)

type openSessionRequest struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// OpenSession connects to a remote host over SFTP and returns a session id.
func OpenSession(w http.ResponseWriter, r *http.Request) {
	var req openSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Host == "" || req.Username == "" || req.Password == "" {
		JSONError(w, "Missing host, username or password", http.StatusBadRequest)
		return
	}
	if req.Port == 0 {
		req.Port = 22
	}

	id, err := Sessions.Open(req.Host, req.Port, req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, transport.ErrAuth):
			JSONError(w, "Authentication failed", http.StatusUnauthorized)
		case errors.Is(err, transport.ErrTimeout):
			JSONError(w, "Connection timed out", http.StatusGatewayTimeout)
		default:
			JSONError(w, "Connection failed: "+err.Error(), http.StatusBadGateway)
		}
		return
	}

	info, err := Sessions.Info(id)
	if err != nil {
		JSONError(w, "Session lookup failed", http.StatusInternalServerError)
		return
	}
	JSONResponse(w, map[string]interface{}{
		"session_id": id,
		"session":    info,
	})
}

// ListSessions returns every live session, newest first.
func ListSessions(w http.ResponseWriter, r *http.Request) {
	JSONResponse(w, map[string]interface{}{
		"sessions": Sessions.List(),
	})
}

// ListDir lists one remote directory through an open session.
func ListDir(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("sid")
	path := r.URL.Query().Get("path")
	if path == "" {
		path = "."
	}

	entries, err := Sessions.ListDir(sid, path)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNoSession):
			JSONError(w, "Session not found or expired", http.StatusNotFound)
		case errors.Is(err, transport.ErrNotFound):
			JSONError(w, "Path not found: "+path, http.StatusNotFound)
		case errors.Is(err, transport.ErrPermission):
			JSONError(w, "Permission denied: "+path, http.StatusForbidden)
		default:
			JSONError(w, "List failed: "+err.Error(), http.StatusBadGateway)
		}
		return
	}
	JSONResponse(w, map[string]interface{}{
		"path":    path,
		"entries": entries,
		"count":   len(entries),
	})
}

// previewLimit caps how much of a remote file the preview endpoint returns.
const previewLimit = 256 * 1024

// ReadFile returns the head of a remote file for manual inspection, for
// example before deciding to quarantine it.
func ReadFile(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("sid")
	path := r.URL.Query().Get("path")
	if path == "" {
		JSONError(w, "Missing path", http.StatusBadRequest)
		return
	}

	entry, err := Sessions.Stat(sid, path)
	if err == nil && entry.IsDir() {
		JSONError(w, "Path is a directory", http.StatusBadRequest)
		return
	}

	buf, err := Sessions.Read(sid, path, previewLimit)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNoSession):
			JSONError(w, "Session not found or expired", http.StatusNotFound)
		case errors.Is(err, transport.ErrNotFound):
			JSONError(w, "File not found: "+path, http.StatusNotFound)
		case errors.Is(err, transport.ErrPermission):
			JSONError(w, "Permission denied: "+path, http.StatusForbidden)
		default:
			JSONError(w, "Read failed: "+err.Error(), http.StatusBadGateway)
		}
		return
	}
	JSONResponse(w, map[string]interface{}{
		"path":      path,
		"size":      entry.Size,
		"truncated": entry.Size > int64(len(buf)),
		"content":   string(buf),
	})
}

// CloseSession disconnects and forgets a session. Closing an unknown session
// is not an error.
func CloseSession(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("sid")
	Sessions.Close(sid)
	JSONResponse(w, map[string]string{"status": "closed", "session_id": sid})
}

// RegisterSessionRoutes wires up the SFTP session endpoints.
func RegisterSessionRoutes(mux *http.ServeMux, protect func(http.HandlerFunc) http.HandlerFunc) {
	mux.HandleFunc("POST /api/sftp/session", protect(OpenSession))
	mux.HandleFunc("GET /api/sftp/sessions", protect(ListSessions))
	mux.HandleFunc("GET /api/sftp/{sid}/list", protect(ListDir))
	mux.HandleFunc("GET /api/sftp/{sid}/file", protect(ReadFile))
	mux.HandleFunc("DELETE /api/sftp/{sid}", protect(CloseSession))
}
