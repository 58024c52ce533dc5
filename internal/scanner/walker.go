package scanner

import (
	"sitemedic/internal/transport"
)

// ExcludedDirs are directory names never descended into: VCS metadata,
// dependency caches and our own quarantine area.
var ExcludedDirs = map[string]bool{
	".git":         true,
	".svn":         true,
	"node_modules": true,
	"vendor":       true,
	".cache":       true,
	"cache":        true,
	".well-known":  true,
	".quarantine":  true,
}

// WalkFunc receives one file entry. Returning false stops the walk.
type WalkFunc func(transport.Entry) bool

// Lister lists one remote directory. Satisfied by transport.Client and by
// the session-bound view the runner walks with.
type Lister interface {
	List(path string) ([]transport.Entry, error)
}

// Walk traverses the remote tree under root depth-first and calls fn for
// every file. Directories in ExcludedDirs are skipped, symlinks are yielded
// as plain entries but never followed, and a failed directory listing is
// skipped rather than aborting the walk.
func Walk(fs Lister, root string, fn WalkFunc) {
	stack := []string{root}
	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := fs.List(dir)
		if err != nil {
			// permission denied or transient I/O on one branch:
			// completeness over correctness of that branch
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				if ExcludedDirs[e.Name] {
					continue
				}
				stack = append(stack, e.Path)
				continue
			}
			if !fn(e) {
				return
			}
		}
	}
}

// Enumerate materializes the full file list under root. The scan runner
// pre-counts to report exact progress percentages.
func Enumerate(fs Lister, root string) []transport.Entry {
	var files []transport.Entry
	Walk(fs, root, func(e transport.Entry) bool {
		files = append(files, e)
		return true
	})
	return files
}
