package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// SFTP is the production Client backed by an SSH connection.
type SFTP struct {
	conn   *ssh.Client
	client *sftp.Client
}

// Dial opens an SSH connection and an SFTP subsystem over it. The timeout
// bounds the TCP connect and the SSH handshake; per-operation deadlines are
// the caller's concern (the session manager runs the TTL sweep).
func Dial(host string, port int, username, password string, timeout time.Duration) (Client, error) {
	cfg := &ssh.ClientConfig{
		User:            username,
		Auth:            []ssh.AuthMethod{ssh.Password(password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	conn, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		if strings.Contains(err.Error(), "unable to authenticate") ||
			strings.Contains(err.Error(), "permission denied") {
			return nil, fmt.Errorf("%w: %s@%s", ErrAuth, username, host)
		}
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: dial %s: %v", ErrTimeout, addr, err)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrConnect, addr, err)
	}

	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: sftp subsystem: %v", ErrConnect, err)
	}
	return &SFTP{conn: conn, client: client}, nil
}

func (s *SFTP) List(path string) ([]Entry, error) {
	infos, err := s.client.ReadDir(path)
	if err != nil {
		return nil, mapError(err, path)
	}
	entries := make([]Entry, 0, len(infos))
	for _, fi := range infos {
		entries = append(entries, entryFromInfo(path, fi))
	}
	return entries, nil
}

func (s *SFTP) Stat(path string) (Entry, error) {
	// Lstat so a symlink is reported as a link, not its target
	fi, err := s.client.Lstat(path)
	if err != nil {
		return Entry{}, mapError(err, path)
	}
	return entryFromInfo(Dir(path), fi), nil
}

func (s *SFTP) Read(path string, maxBytes int64) ([]byte, error) {
	f, err := s.client.Open(path)
	if err != nil {
		return nil, mapError(err, path)
	}
	defer f.Close()

	if maxBytes <= 0 {
		maxBytes = 5 * 1024 * 1024
	}
	buf, err := io.ReadAll(io.LimitReader(f, maxBytes))
	if err != nil {
		return nil, mapError(err, path)
	}
	return buf, nil
}

func (s *SFTP) Rename(src, dst string) error {
	// POSIX rename is atomic where the server supports it
	if err := s.client.PosixRename(src, dst); err == nil {
		return nil
	}
	if err := s.client.Rename(src, dst); err != nil {
		return mapError(err, src)
	}
	return nil
}

func (s *SFTP) Mkdir(path string) error {
	if err := s.client.Mkdir(path); err != nil {
		return mapError(err, path)
	}
	return nil
}

func (s *SFTP) Close() error {
	s.client.Close()
	return s.conn.Close()
}

func entryFromInfo(parent string, fi os.FileInfo) Entry {
	typ := "file"
	if fi.Mode()&os.ModeSymlink != 0 {
		typ = "link"
	} else if fi.IsDir() {
		typ = "dir"
	}
	return Entry{
		Name:        fi.Name(),
		Path:        Join(parent, fi.Name()),
		Type:        typ,
		Size:        fi.Size(),
		Mtime:       fi.ModTime().Unix(),
		Permissions: fi.Mode().Perm().String(),
	}
}

func mapError(err error, path string) error {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	case errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%w: %s", ErrPermission, path)
	case isTimeout(err):
		return fmt.Errorf("%w: %s", ErrTimeout, path)
	default:
		return fmt.Errorf("%s: %w", path, err)
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
