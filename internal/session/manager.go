// Package session owns live SFTP transports keyed by opaque session ids.
// The transport handle never leaves the manager; components act through the
// pass-through operations or Acquire.
package session

import (
	"errors"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"sitemedic/internal/models"
	"sitemedic/internal/transport"
)

// ErrNoSession is returned when a session id is unknown or already expired.
var ErrNoSession = errors.New("session not found")

// ConnectTimeout bounds dial plus SSH handshake per open.
const ConnectTimeout = 20 * time.Second

type session struct {
	info   models.SessionInfo
	client transport.Client
	closed bool
}

// Manager is an explicit session store: constructed at process start and
// injected into the components that need it. No module-level registry.
type Manager struct {
	dial     transport.Dialer
	ttl      time.Duration
	interval time.Duration

	mu       sync.Mutex
	sessions map[string]*session
	running  bool
	stop     chan struct{}
}

// NewManager creates a manager that opens transports with dial and evicts
// sessions idle longer than ttl.
func NewManager(dial transport.Dialer, ttl, sweepInterval time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	return &Manager{
		dial:     dial,
		ttl:      ttl,
		interval: sweepInterval,
		sessions: make(map[string]*session),
		stop:     make(chan struct{}),
	}
}

// Open connects to the remote host and registers a new session.
// Authentication failures surface as transport.ErrAuth, anything else
// network-level as transport.ErrConnect or transport.ErrTimeout.
func (m *Manager) Open(host string, port int, username, password string) (string, error) {
	if port <= 0 {
		port = 22
	}
	client, err := m.dial(host, port, username, password, ConnectTimeout)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	now := time.Now()
	m.mu.Lock()
	m.sessions[id] = &session{
		info: models.SessionInfo{
			ID:         id,
			Host:       host,
			Port:       port,
			Username:   username,
			CreatedAt:  now,
			LastActive: now,
		},
		client: client,
	}
	m.mu.Unlock()

	log.Printf("✓ Session %s opened (%s@%s:%d)", shortID(id), username, host, port)
	return id, nil
}

// Info returns the metadata of a live session.
func (m *Manager) Info(id string) (models.SessionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return models.SessionInfo{}, ErrNoSession
	}
	return s.info, nil
}

// List returns all live sessions, newest first.
func (m *Manager) List() []models.SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Acquire touches the session and returns its transport. The lock is held
// only for the touch, not for the remote I/O the caller performs.
func (m *Manager) Acquire(id string) (transport.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.closed {
		return nil, ErrNoSession
	}
	s.info.LastActive = time.Now()
	return s.client, nil
}

// Close releases the session's transport. Idempotent: closing an unknown or
// already-closed session reports ErrNoSession without side effects.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return ErrNoSession
	}
	m.closeSession(s, "closed")
	return nil
}

// CloseAll releases every session; called on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.sessions = make(map[string]*session)
	m.mu.Unlock()
	for _, s := range all {
		m.closeSession(s, "shutdown")
	}
}

func (m *Manager) closeSession(s *session, why string) {
	if s.closed {
		return
	}
	s.closed = true
	if err := s.client.Close(); err != nil {
		log.Printf("⚠️  Session %s close: %v", shortID(s.info.ID), err)
	}
	log.Printf("[Sweep] Session %s %s", shortID(s.info.ID), why)
}

// ─── TTL sweep ───────────────────────────────────────────────────────────

// Start begins the periodic idle-session sweep.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	go m.loop()
	log.Printf("[Sweep] Session GC started (ttl=%s, interval=%s)", m.ttl, m.interval)
}

// Stop halts the sweep loop.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()
	close(m.stop)
}

func (m *Manager) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stop:
			return
		}
	}
}

func (m *Manager) sweep() {
	cutoff := time.Now().Add(-m.ttl)
	m.mu.Lock()
	var expired []*session
	for id, s := range m.sessions {
		if s.info.LastActive.Before(cutoff) {
			delete(m.sessions, id)
			expired = append(expired, s)
		}
	}
	m.mu.Unlock()
	for _, s := range expired {
		m.closeSession(s, "expired")
	}
}

// ─── Pass-through operations ─────────────────────────────────────────────

// ListDir lists a remote directory: directories sorted before files,
// case-insensitive name order.
func (m *Manager) ListDir(id, path string) ([]transport.Entry, error) {
	client, err := m.Acquire(id)
	if err != nil {
		return nil, err
	}
	if path == "" {
		path = "/"
	}
	entries, err := listRetry(client, path)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		di, dj := entries[i].IsDir(), entries[j].IsDir()
		if di != dj {
			return di
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
	return entries, nil
}

// Stat stats a remote path through the session.
func (m *Manager) Stat(id, path string) (transport.Entry, error) {
	client, err := m.Acquire(id)
	if err != nil {
		return transport.Entry{}, err
	}
	e, err := client.Stat(path)
	if retriable(err, path) {
		return client.Stat(relative(path))
	}
	return e, err
}

// Read reads at most maxBytes of a remote file through the session.
func (m *Manager) Read(id, path string, maxBytes int64) ([]byte, error) {
	client, err := m.Acquire(id)
	if err != nil {
		return nil, err
	}
	buf, err := client.Read(path, maxBytes)
	if retriable(err, path) {
		return client.Read(relative(path), maxBytes)
	}
	return buf, err
}

// Rename renames a remote path through the session.
func (m *Manager) Rename(id, src, dst string) error {
	client, err := m.Acquire(id)
	if err != nil {
		return err
	}
	err = client.Rename(src, dst)
	if retriable(err, src) {
		return client.Rename(relative(src), relative(dst))
	}
	return err
}

// Some servers chroot the SFTP subsystem so "/site" only resolves as
// "site" relative to the login directory. A single retry with the leading
// slash stripped papers over the ambiguity.
func retriable(err error, path string) bool {
	return err != nil && errors.Is(err, transport.ErrNotFound) && strings.HasPrefix(path, "/")
}

func relative(path string) string {
	return strings.TrimPrefix(path, "/")
}

func listRetry(client transport.Client, path string) ([]transport.Entry, error) {
	entries, err := client.List(path)
	if retriable(err, path) {
		return client.List(relative(path))
	}
	return entries, err
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
