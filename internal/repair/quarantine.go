// Package repair executes reversible remote filesystem mutations and keeps
// the append-only action log that makes them auditable and undoable.
package repair

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"sitemedic/internal/transport"
)

// Object kinds encoded into quarantine names.
const (
	KindFile = "FILE"
	KindDir  = "DIR"
)

// QuarantineDirName is the isolation directory under the site root. The
// walker excludes it, so quarantined objects are never re-scanned.
const QuarantineDirName = ".quarantine"

// QuarantineRoot returns the quarantine directory for a site root.
func QuarantineRoot(wpRoot string) string {
	return transport.Join(strings.TrimRight(wpRoot, "/"), QuarantineDirName)
}

// NewActionID builds a unique, human-decodable action id:
// timestamp, what was done, and a short random token.
func NewActionID(kind string) string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("%s_%s_%s", time.Now().Format("20060102_150405"), kind, token)
}

// RelPath returns path relative to the site root, or the path itself
// (without leading slash) when it lies outside the root.
func RelPath(path, wpRoot string) string {
	p := strings.TrimRight(path, "/")
	root := strings.TrimRight(wpRoot, "/")
	if root != "" && strings.HasPrefix(p, root+"/") {
		return p[len(root)+1:]
	}
	if p == root {
		return "."
	}
	return strings.TrimPrefix(p, "/")
}

// shortKey hashes a relative path so same-named files from different
// directories cannot collide inside the flat quarantine directory.
func shortKey(rel string) string {
	sum := sha1.Sum([]byte(rel))
	return hex.EncodeToString(sum[:])[:10]
}

// QuarantineName encodes {action id, object kind, short relative-path hash,
// original basename} into the quarantined object's filename, so every
// quarantined object is traceable to its pre-move location even without the
// action log.
func QuarantineName(actionID, kind, path, wpRoot string) string {
	rel := RelPath(path, wpRoot)
	base := transport.Base(path)
	return fmt.Sprintf("%s__%s__%s__%s", actionID, kind, shortKey(rel), base)
}

// ParseQuarantineName inverts QuarantineName.
func ParseQuarantineName(name string) (actionID, kind, key, base string, ok bool) {
	parts := strings.SplitN(name, "__", 4)
	if len(parts) != 4 {
		return "", "", "", "", false
	}
	if parts[1] != KindFile && parts[1] != KindDir {
		return "", "", "", "", false
	}
	return parts[0], parts[1], parts[2], parts[3], true
}
