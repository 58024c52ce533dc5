package session

import (
	"errors"
	"testing"
	"time"

	"sitemedic/internal/transport"
)

func newTestManager(t *testing.T) (*Manager, *transport.Memory) {
	t.Helper()
	mem := transport.NewMemory()
	dial := func(host string, port int, username, password string, timeout time.Duration) (transport.Client, error) {
		return mem, nil
	}
	return NewManager(dial, time.Minute, time.Minute), mem
}

func open(t *testing.T, m *Manager) string {
	t.Helper()
	id, err := m.Open("host", 22, "user", "pw")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return id
}

func TestOpenAndInfo(t *testing.T) {
	m, _ := newTestManager(t)
	id := open(t, m)

	info, err := m.Info(id)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Host != "host" || info.Port != 22 || info.Username != "user" {
		t.Fatalf("unexpected info: %+v", info)
	}
	if _, err := m.Info("unknown"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestOpenPropagatesDialError(t *testing.T) {
	dial := func(host string, port int, username, password string, timeout time.Duration) (transport.Client, error) {
		return nil, transport.ErrAuth
	}
	m := NewManager(dial, time.Minute, time.Minute)
	if _, err := m.Open("host", 22, "user", "bad"); !errors.Is(err, transport.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
	if len(m.List()) != 0 {
		t.Fatal("failed open left a session behind")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	m, mem := newTestManager(t)
	id := open(t, m)

	if err := m.Close(id); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := m.Close(id); !errors.Is(err, ErrNoSession) {
		t.Fatalf("second close = %v", err)
	}
	if mem.CloseCount != 1 {
		t.Fatalf("transport closed %d times", mem.CloseCount)
	}
	if _, err := m.Acquire(id); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Acquire after close = %v", err)
	}
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	m, mem := newTestManager(t)
	id := open(t, m)

	m.mu.Lock()
	m.sessions[id].info.LastActive = time.Now().Add(-2 * time.Minute)
	m.mu.Unlock()

	m.sweep()

	if _, err := m.Acquire(id); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expired session still acquirable: %v", err)
	}
	if mem.CloseCount != 1 {
		t.Fatalf("transport closed %d times", mem.CloseCount)
	}

	// A second sweep or explicit close must not close the transport again.
	m.sweep()
	m.Close(id)
	if mem.CloseCount != 1 {
		t.Fatalf("transport closed %d times after repeat", mem.CloseCount)
	}
}

func TestAcquireTouchesSession(t *testing.T) {
	m, _ := newTestManager(t)
	id := open(t, m)

	m.mu.Lock()
	m.sessions[id].info.LastActive = time.Now().Add(-30 * time.Second)
	m.mu.Unlock()

	if _, err := m.Acquire(id); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	info, _ := m.Info(id)
	if time.Since(info.LastActive) > 5*time.Second {
		t.Fatal("Acquire did not refresh LastActive")
	}
}

func TestListDirOrdersDirsFirst(t *testing.T) {
	m, mem := newTestManager(t)
	id := open(t, m)

	mem.Put("/site/zeta.php", []byte("a"))
	mem.Put("/site/Alpha.php", []byte("b"))
	mem.MkdirAll("/site/wp-content")
	mem.MkdirAll("/site/Backup")

	entries, err := m.ListDir(id, "/site")
	if err != nil {
		t.Fatalf("ListDir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	want := []string{"Backup", "wp-content", "Alpha.php", "zeta.php"}
	if len(names) != len(want) {
		t.Fatalf("got %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("order = %v, want %v", names, want)
		}
	}
}

// chrooted wraps Memory so absolute paths fail, the way an SFTP subsystem
// chrooted to the login directory resolves them.
type chrooted struct {
	*transport.Memory
}

func (c chrooted) fail(path string) error {
	return transport.ErrNotFound
}

func (c chrooted) List(path string) ([]transport.Entry, error) {
	if len(path) > 1 && path[0] == '/' {
		return nil, c.fail(path)
	}
	return c.Memory.List("/" + path)
}

func (c chrooted) Read(path string, maxBytes int64) ([]byte, error) {
	if len(path) > 1 && path[0] == '/' {
		return nil, c.fail(path)
	}
	return c.Memory.Read("/"+path, maxBytes)
}

func (c chrooted) Stat(path string) (transport.Entry, error) {
	if len(path) > 1 && path[0] == '/' {
		return transport.Entry{}, c.fail(path)
	}
	return c.Memory.Stat("/" + path)
}

func TestLeadingSlashRetry(t *testing.T) {
	mem := transport.NewMemory()
	mem.Put("/site/index.php", []byte("<?php"))
	dial := func(host string, port int, username, password string, timeout time.Duration) (transport.Client, error) {
		return chrooted{mem}, nil
	}
	m := NewManager(dial, time.Minute, time.Minute)
	id := open(t, m)

	entries, err := m.ListDir(id, "/site")
	if err != nil {
		t.Fatalf("ListDir with absolute path: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "index.php" {
		t.Fatalf("entries = %v", entries)
	}

	buf, err := m.Read(id, "/site/index.php", 0)
	if err != nil || string(buf) != "<?php" {
		t.Fatalf("Read via retry = %q, %v", buf, err)
	}
}
