package scanner

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"runtime/debug"
	"strings"

	"golang.org/x/time/rate"

	"sitemedic/internal/events"
	"sitemedic/internal/models"
	"sitemedic/internal/session"
	"sitemedic/internal/store"
	"sitemedic/internal/transport"
)

// DefaultMaxReadBytes caps how much of a single remote file is read.
// Larger files are truncated to this prefix for heuristic purposes only.
const DefaultMaxReadBytes = 5 * 1024 * 1024

var wpVersionRe = regexp.MustCompile(`\$wp_version\s*=\s*'([^']+)'`)

// Runner drives one scan job end to end: claim, enumerate, classify,
// persist, finish.
type Runner struct {
	DB           *sql.DB
	Sessions     *session.Manager
	Classifier   *Classifier
	Bus          *events.Bus
	MaxReadBytes int64
	Limiter      *rate.Limiter // paces remote reads; nil means unpaced
}

// sessionView routes every remote operation through the session manager, so
// each listing and read extends the session's last-activity under the
// manager lock and carries the manager's chrooted-path retry. The runner
// never holds a raw transport handle across the job; a long scan therefore
// never looks idle to the TTL sweep.
type sessionView struct {
	mgr *session.Manager
	id  string
}

func (v sessionView) List(path string) ([]transport.Entry, error) {
	return v.mgr.ListDir(v.id, path)
}

func (v sessionView) Read(path string, maxBytes int64) ([]byte, error) {
	return v.mgr.Read(v.id, path, maxBytes)
}

// Run claims the scan and processes it. A false claim (someone else won the
// race, or the job is no longer queued) returns without error.
func (r *Runner) Run(ctx context.Context, scanID int64) error {
	claimed, err := store.ClaimScan(r.DB, scanID)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	scan, err := store.GetScan(r.DB, scanID)
	if err != nil || scan == nil {
		return r.fail(scanID, fmt.Errorf("load scan %d: %w", scanID, err))
	}
	sessionID, err := store.GetScanSession(r.DB, scanID)
	if err != nil {
		return r.fail(scanID, err)
	}

	r.publish(events.ScanStarted, scanID, "", "root="+scan.RootPath)

	if _, err := r.Sessions.Info(sessionID); err != nil {
		return r.fail(scanID, fmt.Errorf("session %s: %w", sessionID, err))
	}
	remote := sessionView{mgr: r.Sessions, id: sessionID}

	root := normalizeRoot(scan.RootPath)
	if _, err := remote.List(root); err != nil {
		return r.fail(scanID, fmt.Errorf("root unreachable: %w", err))
	}

	summary := models.ScanSummary{
		WPVersion: detectWPVersion(remote, root),
	}

	// Full pre-enumeration buys exact progress percentages at the cost of
	// a second pass over the tree.
	files := Enumerate(remote, root)
	summary.Total = len(files)
	log.Printf("[Scan %d] %d files under %s", scanID, summary.Total, root)

	maxRead := r.MaxReadBytes
	if maxRead <= 0 {
		maxRead = DefaultMaxReadBytes
	}

	done := 0
	lastPct := 0
	for _, f := range files {
		if r.Limiter != nil {
			if err := r.Limiter.Wait(ctx); err != nil {
				return r.fail(scanID, fmt.Errorf("scan interrupted: %w", err))
			}
		}

		buf, err := remote.Read(f.Path, maxRead)
		if err != nil {
			// A closed or evicted session is a scan failure, not a
			// per-file read error. Folding it in would finish the job
			// "done" over a dead transport.
			if errors.Is(err, session.ErrNoSession) || errors.Is(err, transport.ErrClosed) {
				return r.fail(scanID, fmt.Errorf("session lost mid-scan: %w", err))
			}
			summary.ReadErrors++
			r.record(scanID, &models.Finding{
				ScanID:   scanID,
				Path:     f.Path,
				Severity: models.SeverityLow,
				Kind:     models.KindReadError,
				Detail:   truncate(err.Error(), 300),
			})
		} else {
			summary.Bytes += int64(len(buf))
			hash, matches := r.Classifier.Classify(buf, f.Path)
			if len(matches) == 0 {
				summary.Clean++
			}
			for _, m := range matches {
				switch m.Severity {
				case models.SeverityHigh:
					summary.High++
				case models.SeverityMedium:
					summary.Medium++
				default:
					summary.Low++
				}
				r.record(scanID, &models.Finding{
					ScanID:   scanID,
					Path:     f.Path,
					Severity: m.Severity,
					Kind:     m.Kind,
					Detail:   m.Detail,
					SHA256:   hash,
				})
			}
		}

		done++
		summary.Scanned = done
		pct := done * 100 / summary.Total
		if pct != lastPct || done%25 == 0 {
			lastPct = pct
			if err := store.UpdateScanProgress(r.DB, scanID, pct, f.Path); err != nil {
				log.Printf("⚠️  Scan %d progress: %v", scanID, err)
			}
		}
	}

	payload, _ := json.Marshal(summary)
	if err := store.FinishScan(r.DB, scanID, string(payload)); err != nil {
		return err
	}
	r.publish(events.ScanFinished, scanID, "",
		fmt.Sprintf("scanned=%d high=%d medium=%d read_errors=%d",
			summary.Scanned, summary.High, summary.Medium, summary.ReadErrors))
	return nil
}

// fail transitions the job to error with truncated diagnostics. A failed
// scan is never retried; re-scanning requires a new job.
func (r *Runner) fail(scanID int64, cause error) error {
	summary := models.ScanSummary{
		Error: truncate(cause.Error(), 500) + "\n" + truncate(string(debug.Stack()), 1500),
	}
	payload, _ := json.Marshal(summary)
	if err := store.FailScan(r.DB, scanID, string(payload)); err != nil {
		log.Printf("❌ Scan %d: could not record failure: %v", scanID, err)
	}
	r.publish(events.ScanFailed, scanID, "", truncate(cause.Error(), 200))
	return cause
}

func (r *Runner) record(scanID int64, f *models.Finding) {
	if _, err := store.InsertFinding(r.DB, f); err != nil {
		log.Printf("⚠️  Scan %d: insert finding for %s: %v", scanID, f.Path, err)
		return
	}
	r.publish(events.FindingCreated, scanID, f.Path, f.Kind+"/"+f.Severity)
}

func (r *Runner) publish(t events.EventType, scanID int64, path, msg string) {
	if r.Bus != nil {
		r.Bus.Publish(events.Event{Type: t, ScanID: scanID, Path: path, Message: msg})
	}
}

// detectWPVersion reads wp-includes/version.php under the site root.
// Best-effort: any failure just leaves the version empty.
func detectWPVersion(remote sessionView, root string) string {
	wpRoot := strings.TrimSuffix(strings.TrimRight(root, "/"), "/wp-content")
	if wpRoot == "" {
		wpRoot = "/"
	}
	buf, err := remote.Read(transport.Join(wpRoot, "wp-includes/version.php"), 64*1024)
	if err != nil {
		return ""
	}
	if m := wpVersionRe.FindSubmatch(buf); m != nil {
		return string(m[1])
	}
	return ""
}

func normalizeRoot(root string) string {
	r := strings.TrimRight(root, "/")
	if r == "" {
		return "/"
	}
	return r
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
