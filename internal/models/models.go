package models

import "time"

// Scan status values. Transitions are queued → running → {done, error},
// never backward.
const (
	ScanQueued  = "queued"
	ScanRunning = "running"
	ScanDone    = "done"
	ScanError   = "error"
)

// Finding severities.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Finding kinds produced by the classifier and the scan runner.
const (
	KindDangerousFunctions = "dangerous_functions"
	KindObfuscation        = "obfuscation"
	KindHighEntropy        = "high_entropy"
	KindSignatureMatch     = "signature_match"
	KindReadError          = "read_error"
)

// Repair action kinds.
const (
	ActionQuarantineFile = "quarantine_file"
	ActionQuarantineDir  = "quarantine_dir"
	ActionRestore        = "restore"
	ActionDisable        = "disable"
	ActionEnable         = "enable"
)

// ScanJob is one durable scan of a remote tree.
type ScanJob struct {
	ID          int64     `json:"id"`
	TicketID    int64     `json:"ticket_id"`
	RootPath    string    `json:"root_path"`
	Status      string    `json:"status"`
	Progress    int       `json:"progress"`
	CurrentFile string    `json:"current_file"`
	Summary     string    `json:"summary"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Finding is one classified signal about a single remote file.
// Findings are immutable once written.
type Finding struct {
	ID        int64     `json:"id"`
	ScanID    int64     `json:"scan_id"`
	Path      string    `json:"path"`
	Severity  string    `json:"severity"`
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail"`
	SHA256    string    `json:"sha256"`
	CreatedAt time.Time `json:"created_at"`
}

// RepairAction is the audit record of one reversible filesystem mutation.
// Exactly one row is written per attempted mutation, after the outcome is
// known. Rows are never deleted.
type RepairAction struct {
	ID         int64     `json:"id"`
	ActionID   string    `json:"action_id"`
	ScanID     int64     `json:"scan_id"`
	SessionID  string    `json:"session_id"`
	Kind       string    `json:"kind"`
	SrcPath    string    `json:"src_path"`
	DstPath    string    `json:"dst_path,omitempty"`
	HashBefore string    `json:"hash_before,omitempty"`
	HashAfter  string    `json:"hash_after,omitempty"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	ExecutedAt time.Time `json:"executed_at"`
}

// SessionInfo is the externally visible view of a live SFTP session.
// The transport handle itself never leaves the session manager.
type SessionInfo struct {
	ID         string    `json:"id"`
	Host       string    `json:"host"`
	Port       int       `json:"port"`
	Username   string    `json:"username"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

// ScanSummary is the structured result payload stored on a finished scan.
type ScanSummary struct {
	Total      int    `json:"total"`
	Scanned    int    `json:"scanned"`
	Bytes      int64  `json:"bytes"`
	Clean      int    `json:"clean"`
	Low        int    `json:"low"`
	Medium     int    `json:"medium"`
	High       int    `json:"high"`
	ReadErrors int    `json:"read_errors"`
	WPVersion  string `json:"wp_version,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Config holds server configuration.
type Config struct {
	Port          string
	DBPath        string
	RulesPath     string
	ScanWorkers   int
	ScanPollSec   int
	SessionTTL    time.Duration
	SweepInterval time.Duration
	MaxReadBytes  int64
	ReadsPerSec   float64
}
