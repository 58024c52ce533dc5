package repair

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"

	"sitemedic/internal/events"
	"sitemedic/internal/models"
	"sitemedic/internal/session"
	"sitemedic/internal/store"
	"sitemedic/internal/transport"
)

// Item outcome states. An expected miss (source gone, destination taken) is
// a skip with a reason, not an error.
const (
	StatusDone    = "done"
	StatusSkipped = "skipped"
	StatusError   = "error"
)

// Skip reasons.
const (
	ReasonSrcMissing = "src_missing"
	ReasonDstExists  = "dst_exists"
)

const hashReadLimit = 5 * 1024 * 1024

// ItemResult is the outcome of one repair primitive.
type ItemResult struct {
	ActionID string `json:"action_id"`
	Kind     string `json:"kind"`
	Src      string `json:"src"`
	Dst      string `json:"dst,omitempty"`
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
}

// BatchResult aggregates a batch of independent items. A batch is not
// transactional: each item succeeds, skips or fails on its own.
type BatchResult struct {
	Done    int          `json:"done"`
	Skipped int          `json:"skipped"`
	Errors  int          `json:"errors"`
	Items   []ItemResult `json:"items"`
}

// Add folds one item result into the batch counters.
func (b *BatchResult) Add(item ItemResult) {
	switch item.Status {
	case StatusDone:
		b.Done++
	case StatusSkipped:
		b.Skipped++
	default:
		b.Errors++
	}
	b.Items = append(b.Items, item)
}

// Engine executes reversible mutations through the session manager and logs
// every attempt to the action log.
type Engine struct {
	DB       *sql.DB
	Sessions *session.Manager
	Bus      *events.Bus
}

// Quarantine moves a live object into the quarantine directory. The object
// kind (file or directory) is resolved by stat so callers do not have to
// know it up front.
func (e *Engine) Quarantine(sessionID string, scanID int64, wpRoot, srcPath string) ItemResult {
	client, err := e.Sessions.Acquire(sessionID)
	if err != nil {
		return ItemResult{Kind: models.ActionQuarantineFile, Src: srcPath, Status: StatusError, Reason: err.Error()}
	}

	entry, err := client.Stat(srcPath)
	if errors.Is(err, transport.ErrNotFound) {
		res := ItemResult{
			ActionID: NewActionID("quarantine"),
			Kind:     models.ActionQuarantineFile,
			Src:      srcPath,
			Status:   StatusSkipped,
			Reason:   ReasonSrcMissing,
		}
		e.logAction(scanID, sessionID, res, "", "")
		return res
	}
	if err != nil {
		res := ItemResult{
			ActionID: NewActionID("quarantine"),
			Kind:     models.ActionQuarantineFile,
			Src:      srcPath,
			Status:   StatusError,
			Reason:   err.Error(),
		}
		e.logAction(scanID, sessionID, res, "", "")
		return res
	}

	objKind, actionKind := KindFile, models.ActionQuarantineFile
	if entry.IsDir() {
		objKind, actionKind = KindDir, models.ActionQuarantineDir
	}

	var hashBefore string
	if objKind == KindFile {
		if buf, err := client.Read(srcPath, hashReadLimit); err == nil {
			sum := sha256.Sum256(buf)
			hashBefore = hex.EncodeToString(sum[:])
		}
	}

	actionID := NewActionID("quarantine")
	qroot := QuarantineRoot(wpRoot)
	client.Mkdir(qroot) // best-effort, may already exist
	dst := transport.Join(qroot, QuarantineName(actionID, objKind, srcPath, wpRoot))

	res := ItemResult{ActionID: actionID, Kind: actionKind, Src: srcPath, Dst: dst}
	if err := client.Rename(srcPath, dst); err != nil {
		res.Status = StatusError
		res.Reason = err.Error()
	} else {
		res.Status = StatusDone
	}
	e.logAction(scanID, sessionID, res, hashBefore, hashBefore)
	return res
}

// Restore moves a quarantined object back to its recorded live path. The
// original location comes from the quarantine action's log row. An existing
// destination is a skip, never an overwrite.
func (e *Engine) Restore(sessionID string, scanID int64, quarantineActionID string) ItemResult {
	prev, err := store.GetActionByID(e.DB, quarantineActionID)
	if err != nil {
		return ItemResult{Kind: models.ActionRestore, Status: StatusError, Reason: err.Error()}
	}
	if prev == nil || prev.DstPath == "" ||
		(prev.Kind != models.ActionQuarantineFile && prev.Kind != models.ActionQuarantineDir) {
		return ItemResult{
			Kind:   models.ActionRestore,
			Status: StatusError,
			Reason: fmt.Sprintf("no quarantine action %q", quarantineActionID),
		}
	}

	// Inverse move: quarantine location back to the original path.
	return e.rename(sessionID, scanID, models.ActionRestore, prev.DstPath, prev.SrcPath, prev.HashBefore)
}

// Disable renames wp-content/<contentType>/<slug> to <slug>.disabled.
func (e *Engine) Disable(sessionID string, scanID int64, wpRoot, contentType, slug string) ItemResult {
	dir := contentDir(wpRoot, contentType)
	src := transport.Join(dir, slug)
	return e.rename(sessionID, scanID, models.ActionDisable, src, src+".disabled", "")
}

// Enable undoes Disable: <slug>.disabled back to <slug>.
func (e *Engine) Enable(sessionID string, scanID int64, wpRoot, contentType, slug string) ItemResult {
	dir := contentDir(wpRoot, contentType)
	dst := transport.Join(dir, slug)
	return e.rename(sessionID, scanID, models.ActionEnable, dst+".disabled", dst, "")
}

// rename is the shared primitive: one atomic rename at the transport level,
// skip-with-reason on expected misses, and exactly one log row written after
// the outcome is known.
func (e *Engine) rename(sessionID string, scanID int64, kind, src, dst, hashBefore string) ItemResult {
	res := ItemResult{ActionID: NewActionID(kind), Kind: kind, Src: src, Dst: dst}

	client, err := e.Sessions.Acquire(sessionID)
	if err != nil {
		res.Status = StatusError
		res.Reason = err.Error()
		return res
	}

	if _, err := client.Stat(src); err != nil {
		if errors.Is(err, transport.ErrNotFound) {
			res.Status = StatusSkipped
			res.Reason = ReasonSrcMissing
		} else {
			res.Status = StatusError
			res.Reason = err.Error()
		}
		e.logAction(scanID, sessionID, res, hashBefore, "")
		return res
	}

	// Never silently overwrite what lives at the destination.
	if _, err := client.Stat(dst); err == nil {
		res.Status = StatusSkipped
		res.Reason = ReasonDstExists
		e.logAction(scanID, sessionID, res, hashBefore, "")
		return res
	} else if !errors.Is(err, transport.ErrNotFound) {
		res.Status = StatusError
		res.Reason = fmt.Sprintf("stat destination: %v", err)
		e.logAction(scanID, sessionID, res, hashBefore, "")
		return res
	}

	if err := client.Rename(src, dst); err != nil {
		res.Status = StatusError
		res.Reason = err.Error()
		e.logAction(scanID, sessionID, res, hashBefore, "")
		return res
	}
	res.Status = StatusDone

	var hashAfter string
	if buf, err := client.Read(dst, hashReadLimit); err == nil {
		sum := sha256.Sum256(buf)
		hashAfter = hex.EncodeToString(sum[:])
	}
	e.logAction(scanID, sessionID, res, hashBefore, hashAfter)
	return res
}

// QuarantineBatch quarantines several paths independently.
func (e *Engine) QuarantineBatch(sessionID string, scanID int64, wpRoot string, paths []string) BatchResult {
	var batch BatchResult
	for _, p := range dedupe(paths) {
		batch.Add(e.Quarantine(sessionID, scanID, wpRoot, p))
	}
	return batch
}

// DisableBatch disables several plugin/theme slugs independently.
func (e *Engine) DisableBatch(sessionID string, scanID int64, wpRoot, contentType string, slugs []string) BatchResult {
	var batch BatchResult
	for _, s := range dedupe(slugs) {
		batch.Add(e.Disable(sessionID, scanID, wpRoot, contentType, s))
	}
	return batch
}

// EnableBatch re-enables several slugs independently.
func (e *Engine) EnableBatch(sessionID string, scanID int64, wpRoot, contentType string, slugs []string) BatchResult {
	var batch BatchResult
	for _, s := range dedupe(slugs) {
		batch.Add(e.Enable(sessionID, scanID, wpRoot, contentType, s))
	}
	return batch
}

func (e *Engine) logAction(scanID int64, sessionID string, res ItemResult, hashBefore, hashAfter string) {
	row := &models.RepairAction{
		ActionID:   res.ActionID,
		ScanID:     scanID,
		SessionID:  sessionID,
		Kind:       res.Kind,
		SrcPath:    res.Src,
		DstPath:    res.Dst,
		HashBefore: hashBefore,
		HashAfter:  hashAfter,
		Status:     res.Status,
		Reason:     res.Reason,
	}
	if _, err := store.InsertAction(e.DB, row); err != nil {
		log.Printf("❌ Action log %s (%s %s): %v", res.ActionID, res.Kind, res.Src, err)
	}
	if e.Bus != nil {
		e.Bus.Publish(events.Event{
			Type:      events.RepairExecuted,
			ScanID:    scanID,
			SessionID: sessionID,
			Path:      res.Src,
			Message:   fmt.Sprintf("%s %s (%s)", res.Kind, res.Status, res.ActionID),
		})
	}
}

func contentDir(wpRoot, contentType string) string {
	return transport.Join(strings.TrimRight(wpRoot, "/"), "wp-content/"+contentType)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
