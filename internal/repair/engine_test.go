package repair

import (
	"database/sql"
	"strings"
	"testing"
	"time"

	"sitemedic/internal/db"
	"sitemedic/internal/models"
	"sitemedic/internal/session"
	"sitemedic/internal/store"
	"sitemedic/internal/transport"
)

type engineFixture struct {
	db      *sql.DB
	mem     *transport.Memory
	engine  *Engine
	session string
	scanID  int64
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	conn, err := db.InitTest()
	if err != nil {
		t.Fatalf("init test db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	mem := transport.NewMemory()
	dial := func(host string, port int, username, password string, timeout time.Duration) (transport.Client, error) {
		return mem, nil
	}
	mgr := session.NewManager(dial, time.Minute, time.Minute)
	sid, err := mgr.Open("host", 22, "user", "pw")
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	scanID, err := store.CreateScan(conn, 1, sid, "/site")
	if err != nil {
		t.Fatalf("create scan: %v", err)
	}

	return &engineFixture{
		db:      conn,
		mem:     mem,
		engine:  &Engine{DB: conn, Sessions: mgr},
		session: sid,
		scanID:  scanID,
	}
}

func TestQuarantineRestoreRoundTrip(t *testing.T) {
	fx := newEngineFixture(t)
	payload := []byte(`<?php eval($_POST['x']);`)
	fx.mem.Put("/site/wp-content/uploads/shell.php", payload)

	q := fx.engine.Quarantine(fx.session, fx.scanID, "/site", "/site/wp-content/uploads/shell.php")
	if q.Status != StatusDone {
		t.Fatalf("quarantine = %+v", q)
	}
	if fx.mem.Exists("/site/wp-content/uploads/shell.php") {
		t.Fatal("source still present after quarantine")
	}
	if !strings.HasPrefix(q.Dst, "/site/.quarantine/") {
		t.Fatalf("dst = %s", q.Dst)
	}
	if string(fx.mem.Bytes(q.Dst)) != string(payload) {
		t.Fatal("quarantined content differs")
	}

	// The quarantine name must decode back to its parts.
	actionID, kind, _, base, ok := ParseQuarantineName(transport.Base(q.Dst))
	if !ok || actionID != q.ActionID || kind != KindFile || base != "shell.php" {
		t.Fatalf("quarantine name %s did not parse: %s %s %s", q.Dst, actionID, kind, base)
	}

	r := fx.engine.Restore(fx.session, fx.scanID, q.ActionID)
	if r.Status != StatusDone {
		t.Fatalf("restore = %+v", r)
	}
	if string(fx.mem.Bytes("/site/wp-content/uploads/shell.php")) != string(payload) {
		t.Fatal("restored content differs")
	}
	if fx.mem.Exists(q.Dst) {
		t.Fatal("quarantine copy left behind")
	}

	// Hash recorded before the move matches the hash after restore.
	qRow, err := store.GetActionByID(fx.db, q.ActionID)
	if err != nil || qRow == nil {
		t.Fatalf("quarantine row: %v", err)
	}
	rRow, err := store.GetActionByID(fx.db, r.ActionID)
	if err != nil || rRow == nil {
		t.Fatalf("restore row: %v", err)
	}
	if qRow.HashBefore == "" || qRow.HashBefore != rRow.HashAfter {
		t.Fatalf("hash mismatch: before=%s after=%s", qRow.HashBefore, rRow.HashAfter)
	}
}

func TestQuarantineDirectory(t *testing.T) {
	fx := newEngineFixture(t)
	fx.mem.Put("/site/wp-content/plugins/evil/evil.php", []byte("x"))
	fx.mem.Put("/site/wp-content/plugins/evil/inc/a.php", []byte("y"))

	q := fx.engine.Quarantine(fx.session, fx.scanID, "/site", "/site/wp-content/plugins/evil")
	if q.Status != StatusDone || q.Kind != models.ActionQuarantineDir {
		t.Fatalf("quarantine dir = %+v", q)
	}
	if fx.mem.Exists("/site/wp-content/plugins/evil") {
		t.Fatal("source dir still present")
	}
	if !fx.mem.Exists(q.Dst + "/evil.php") {
		t.Fatal("children not moved into quarantine")
	}

	r := fx.engine.Restore(fx.session, fx.scanID, q.ActionID)
	if r.Status != StatusDone {
		t.Fatalf("restore dir = %+v", r)
	}
	if !fx.mem.Exists("/site/wp-content/plugins/evil/inc/a.php") {
		t.Fatal("children not restored")
	}
}

func TestQuarantineMissingSourceSkips(t *testing.T) {
	fx := newEngineFixture(t)

	q := fx.engine.Quarantine(fx.session, fx.scanID, "/site", "/site/gone.php")
	if q.Status != StatusSkipped || q.Reason != ReasonSrcMissing {
		t.Fatalf("quarantine = %+v", q)
	}

	// The skip is still audited.
	row, err := store.GetActionByID(fx.db, q.ActionID)
	if err != nil || row == nil || row.Status != StatusSkipped {
		t.Fatalf("skip not logged: %+v, %v", row, err)
	}
}

func TestRestoreSkipsWhenDestinationExists(t *testing.T) {
	fx := newEngineFixture(t)
	fx.mem.Put("/site/a.php", []byte("old"))

	q := fx.engine.Quarantine(fx.session, fx.scanID, "/site", "/site/a.php")
	if q.Status != StatusDone {
		t.Fatalf("quarantine = %+v", q)
	}

	// Someone re-uploads the file while it sits in quarantine.
	fx.mem.Put("/site/a.php", []byte("new"))

	r := fx.engine.Restore(fx.session, fx.scanID, q.ActionID)
	if r.Status != StatusSkipped || r.Reason != ReasonDstExists {
		t.Fatalf("restore = %+v", r)
	}
	if string(fx.mem.Bytes("/site/a.php")) != "new" {
		t.Fatal("restore overwrote the live file")
	}
	if string(fx.mem.Bytes(q.Dst)) != "old" {
		t.Fatal("quarantined copy disturbed by skipped restore")
	}
}

func TestRestoreUnknownAction(t *testing.T) {
	fx := newEngineFixture(t)
	r := fx.engine.Restore(fx.session, fx.scanID, "20250901_000000_quarantine_zzzzzz")
	if r.Status != StatusError {
		t.Fatalf("restore = %+v", r)
	}
}

func TestDisableEnableCycle(t *testing.T) {
	fx := newEngineFixture(t)
	fx.mem.Put("/site/wp-content/plugins/evil/evil.php", []byte("x"))

	d := fx.engine.Disable(fx.session, fx.scanID, "/site", "plugins", "evil")
	if d.Status != StatusDone {
		t.Fatalf("disable = %+v", d)
	}
	if fx.mem.Exists("/site/wp-content/plugins/evil") {
		t.Fatal("plugin dir still active")
	}
	if !fx.mem.Exists("/site/wp-content/plugins/evil.disabled/evil.php") {
		t.Fatal("plugin not renamed to .disabled")
	}

	// Disabling again: the source is gone, so it skips.
	d2 := fx.engine.Disable(fx.session, fx.scanID, "/site", "plugins", "evil")
	if d2.Status != StatusSkipped || d2.Reason != ReasonSrcMissing {
		t.Fatalf("second disable = %+v", d2)
	}

	e := fx.engine.Enable(fx.session, fx.scanID, "/site", "plugins", "evil")
	if e.Status != StatusDone {
		t.Fatalf("enable = %+v", e)
	}
	if !fx.mem.Exists("/site/wp-content/plugins/evil/evil.php") {
		t.Fatal("plugin not restored by enable")
	}

	e2 := fx.engine.Enable(fx.session, fx.scanID, "/site", "plugins", "evil")
	if e2.Status != StatusSkipped || e2.Reason != ReasonSrcMissing {
		t.Fatalf("second enable = %+v", e2)
	}
}

func TestEnableSkipsWhenSlugReinstalled(t *testing.T) {
	fx := newEngineFixture(t)
	fx.mem.Put("/site/wp-content/themes/old/style.css", []byte("a"))

	if d := fx.engine.Disable(fx.session, fx.scanID, "/site", "themes", "old"); d.Status != StatusDone {
		t.Fatalf("disable = %+v", d)
	}
	// A fresh copy of the theme appears at the original path.
	fx.mem.Put("/site/wp-content/themes/old/style.css", []byte("fresh"))

	e := fx.engine.Enable(fx.session, fx.scanID, "/site", "themes", "old")
	if e.Status != StatusSkipped || e.Reason != ReasonDstExists {
		t.Fatalf("enable = %+v", e)
	}
	if string(fx.mem.Bytes("/site/wp-content/themes/old/style.css")) != "fresh" {
		t.Fatal("enable clobbered the reinstalled theme")
	}
}

func TestDisableBatchCounts(t *testing.T) {
	fx := newEngineFixture(t)
	fx.mem.Put("/site/wp-content/plugins/one/one.php", []byte("a"))
	fx.mem.Put("/site/wp-content/plugins/two/two.php", []byte("b"))

	batch := fx.engine.DisableBatch(fx.session, fx.scanID, "/site", "plugins",
		[]string{"one", "two", "two", "missing", ""})

	if batch.Done != 2 || batch.Skipped != 1 || batch.Errors != 0 {
		t.Fatalf("batch = %+v", batch)
	}
	if len(batch.Items) != 3 {
		t.Fatalf("expected 3 deduped items, got %d", len(batch.Items))
	}

	actions, err := store.ListActions(fx.db, fx.scanID)
	if err != nil || len(actions) != 3 {
		t.Fatalf("actions = %d, %v", len(actions), err)
	}
}

func TestEveryAttemptWritesOneActionRow(t *testing.T) {
	fx := newEngineFixture(t)
	fx.mem.Put("/site/a.php", []byte("x"))

	fx.engine.Quarantine(fx.session, fx.scanID, "/site", "/site/a.php")
	fx.engine.Quarantine(fx.session, fx.scanID, "/site", "/site/a.php") // now missing
	fx.engine.Disable(fx.session, fx.scanID, "/site", "plugins", "nope")

	actions, err := store.ListActions(fx.db, fx.scanID)
	if err != nil {
		t.Fatalf("list actions: %v", err)
	}
	if len(actions) != 3 {
		t.Fatalf("expected 3 action rows, got %d", len(actions))
	}
	for _, a := range actions {
		if a.ActionID == "" || a.Status == "" {
			t.Fatalf("incomplete row: %+v", a)
		}
	}
}
