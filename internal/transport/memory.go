package transport

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-memory Client used by tests. Directories exist implicitly
// for every file parent; explicit empty directories can be added with
// MkdirAll. Individual paths can be poisoned to exercise error handling.
type Memory struct {
	mu       sync.Mutex
	files    map[string][]byte
	dirs     map[string]bool
	links    map[string]bool
	failList map[string]error
	failRead map[string]error
	mtime    map[string]int64

	closed     bool
	CloseCount int
}

// NewMemory creates an empty in-memory transport with a root directory.
func NewMemory() *Memory {
	return &Memory{
		files:    make(map[string][]byte),
		dirs:     map[string]bool{"/": true},
		links:    make(map[string]bool),
		failList: make(map[string]error),
		failRead: make(map[string]error),
		mtime:    make(map[string]int64),
	}
}

// Put writes a file, creating parent directories.
func (m *Memory) Put(path string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[norm(path)] = data
	m.mkParents(norm(path))
	m.mtime[norm(path)] = time.Now().Unix()
}

// MkdirAll creates a directory and its parents.
func (m *Memory) MkdirAll(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := norm(path)
	m.dirs[p] = true
	m.mkParents(p)
}

// Symlink marks path as a symbolic link entry.
func (m *Memory) Symlink(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := norm(path)
	m.links[p] = true
	m.mkParents(p)
}

// FailList makes List on path return err.
func (m *Memory) FailList(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failList[norm(path)] = err
}

// FailRead makes Read on path return err. The file still appears in listings.
func (m *Memory) FailRead(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failRead[norm(path)] = err
	m.mkParents(norm(path))
	if _, ok := m.files[norm(path)]; !ok {
		m.files[norm(path)] = nil
	}
}

// Bytes returns the current content of path, or nil.
func (m *Memory) Bytes(path string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.files[norm(path)]
}

// Exists reports whether path is a file, directory or link.
func (m *Memory) Exists(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := norm(path)
	_, f := m.files[p]
	return f || m.dirs[p] || m.links[p]
}

func (m *Memory) mkParents(path string) {
	d := Dir(path)
	for d != "/" {
		m.dirs[d] = true
		d = Dir(d)
	}
}

func norm(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if path != "/" {
		path = strings.TrimRight(path, "/")
	}
	return path
}

func (m *Memory) List(path string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	p := norm(path)
	if err, ok := m.failList[p]; ok {
		return nil, err
	}
	if !m.dirs[p] {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	seen := make(map[string]Entry)
	collect := func(full, typ string, size int64) {
		if Dir(full) != p {
			return
		}
		name := Base(full)
		seen[name] = Entry{
			Name:        name,
			Path:        full,
			Type:        typ,
			Size:        size,
			Mtime:       m.mtime[full],
			Permissions: "rw-r--r--",
		}
	}
	for f, data := range m.files {
		collect(f, "file", int64(len(data)))
	}
	for d := range m.dirs {
		if d != "/" {
			collect(d, "dir", 0)
		}
	}
	for l := range m.links {
		collect(l, "link", 0)
	}

	entries := make([]Entry, 0, len(seen))
	for _, e := range seen {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (m *Memory) Stat(path string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Entry{}, ErrClosed
	}
	p := norm(path)
	if m.links[p] {
		return Entry{Name: Base(p), Path: p, Type: "link"}, nil
	}
	if m.dirs[p] {
		return Entry{Name: Base(p), Path: p, Type: "dir"}, nil
	}
	if data, ok := m.files[p]; ok {
		return Entry{Name: Base(p), Path: p, Type: "file", Size: int64(len(data)), Mtime: m.mtime[p]}, nil
	}
	return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, path)
}

func (m *Memory) Read(path string, maxBytes int64) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	p := norm(path)
	if err, ok := m.failRead[p]; ok {
		return nil, err
	}
	data, ok := m.files[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		data = data[:maxBytes]
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *Memory) Rename(src, dst string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	s, d := norm(src), norm(dst)

	if data, ok := m.files[s]; ok {
		delete(m.files, s)
		m.files[d] = data
		m.mtime[d] = m.mtime[s]
		m.mkParents(d)
		return nil
	}
	if m.dirs[s] {
		delete(m.dirs, s)
		m.dirs[d] = true
		prefix := s + "/"
		for f, data := range m.files {
			if strings.HasPrefix(f, prefix) {
				delete(m.files, f)
				m.files[d+"/"+f[len(prefix):]] = data
			}
		}
		for sub := range m.dirs {
			if strings.HasPrefix(sub, prefix) {
				delete(m.dirs, sub)
				m.dirs[d+"/"+sub[len(prefix):]] = true
			}
		}
		m.mkParents(d)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNotFound, src)
}

func (m *Memory) Mkdir(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	p := norm(path)
	m.dirs[p] = true
	m.mkParents(p)
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.CloseCount++
	return nil
}
