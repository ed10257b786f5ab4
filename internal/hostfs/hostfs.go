package hostfs

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"
)

// DefaultRoot is the host filesystem root used when none is configured.
const DefaultRoot = "/"

var ErrInvalidPath = errors.New("invalid host path")

var (
	rootMu sync.RWMutex
	root   = DefaultRoot
)

// SetRoot moves the host root, e.g. to /host inside a container.
func SetRoot(r string) error {
	if r == "" || !strings.HasPrefix(r, "/") {
		return ErrInvalidPath
	}
	rootMu.Lock()
	defer rootMu.Unlock()
	root = filepath.Clean(r)
	return nil
}

func Root() string {
	rootMu.RLock()
	defer rootMu.RUnlock()
	return root
}

// Path joins the root with a relative path (no leading slash).
// Example: Path("etc/passwd") -> /host/etc/passwd with root /host.
func Path(rel string) (string, error) {
	rel = strings.TrimPrefix(rel, "/")
	clean := filepath.Clean(rel)
	if clean == "." || clean == "" {
		return "", ErrInvalidPath
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", ErrInvalidPath
	}
	return filepath.Join(Root(), clean), nil
}

// Abs maps an absolute host path (e.g. /home/alice) to its location under the
// root (e.g. /host/home/alice).
func Abs(abs string) (string, error) {
	if abs == "" || !strings.HasPrefix(abs, "/") {
		return "", ErrInvalidPath
	}
	clean := filepath.Clean(abs)
	return filepath.Join(Root(), strings.TrimPrefix(clean, "/")), nil
}
