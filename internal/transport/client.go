// Package transport abstracts the remote file transport used to reach a
// customer webspace. The SFTP implementation is the only production one;
// Memory backs tests.
package transport

import (
	"errors"
	"strings"
	"time"
)

// Error taxonomy. Callers branch with errors.Is.
var (
	ErrAuth       = errors.New("authentication failed")
	ErrConnect    = errors.New("connect failed")
	ErrNotFound   = errors.New("not found")
	ErrPermission = errors.New("permission denied")
	ErrTimeout    = errors.New("operation timed out")
	ErrClosed     = errors.New("transport closed")
)

// Entry describes one remote directory entry.
type Entry struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Type        string `json:"type"` // "dir", "file" or "link"
	Size        int64  `json:"size"`
	Mtime       int64  `json:"mtime"`
	Permissions string `json:"permissions"`
}

// IsDir reports whether the entry is a real directory. Symlinks are never
// directories here, even when they point at one.
func (e Entry) IsDir() bool { return e.Type == "dir" }

// Client is the fixed capability set every session exposes.
// No introspection, no unwrapping: list, stat, read, rename, mkdir, close.
type Client interface {
	List(path string) ([]Entry, error)
	Stat(path string) (Entry, error)
	// Read returns at most maxBytes bytes of the file. Larger files are
	// truncated, never loaded whole.
	Read(path string, maxBytes int64) ([]byte, error)
	Rename(src, dst string) error
	Mkdir(path string) error
	Close() error
}

// Join joins remote (posix) path segments without doubling slashes.
func Join(parent, name string) string {
	if parent == "" || parent == "/" {
		return "/" + strings.TrimPrefix(name, "/")
	}
	return strings.TrimRight(parent, "/") + "/" + strings.TrimPrefix(name, "/")
}

// Base returns the last segment of a remote path.
func Base(path string) string {
	p := strings.TrimRight(path, "/")
	if p == "" {
		return "/"
	}
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}

// Dir returns the parent of a remote path.
func Dir(path string) string {
	p := strings.TrimRight(path, "/")
	i := strings.LastIndex(p, "/")
	if i <= 0 {
		return "/"
	}
	return p[:i]
}

// Dialer opens a transport connection. Wired in main so the session
// manager can be tested against Memory.
type Dialer func(host string, port int, username, password string, timeout time.Duration) (Client, error)
