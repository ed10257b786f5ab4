package hostfs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/hnrobert/acctdb/internal/lasterr"
	"github.com/hnrobert/acctdb/internal/logger"
)

// rename is swapped out in tests to reach the in-place fallback.
var rename = os.Rename

var globalMu sync.Mutex
var fileMu = map[string]*sync.Mutex{}

func muFor(path string) *sync.Mutex {
	globalMu.Lock()
	defer globalMu.Unlock()
	if m := fileMu[path]; m != nil {
		return m
	}
	m := &sync.Mutex{}
	fileMu[path] = m
	return m
}

func ReadFile(path string) ([]byte, error) {
	m := muFor(path)
	m.Lock()
	defer m.Unlock()
	return os.ReadFile(path)
}

// CheckFunc inspects the fully written temp file before it replaces the target.
type CheckFunc func(tmpPath string) error

// Rewrite replaces path with what fill writes. fill receives the temp file as
// its sink; nothing becomes visible at path unless fill, check and the flush
// all succeed. check may be nil.
func Rewrite(path string, perm os.FileMode, fill func(w io.Writer) error, check CheckFunc) error {
	m := muFor(path)
	m.Lock()
	defer m.Unlock()

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".acctdb-*")
	if err != nil {
		return lasterr.Wrap("create temp", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := fill(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := lasterr.Call("chmod "+tmpName, func() error { return tmp.Chmod(perm) }); err != nil {
		_ = tmp.Close()
		return err
	}
	copyOwner(tmp, path)
	if err := lasterr.Call("fsync "+tmpName, tmp.Sync); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := lasterr.Call("close "+tmpName, tmp.Close); err != nil {
		return err
	}
	if check != nil {
		if err := check(tmpName); err != nil {
			return fmt.Errorf("check %s: %w", path, err)
		}
	}

	if err := rename(tmpName, path); err != nil {
		// If the target path is a bind-mounted file, replacing it via rename
		// fails with errors like EBUSY/EXDEV. Fall back to an in-place rewrite.
		if errors.Is(err, syscall.EBUSY) || errors.Is(err, syscall.EXDEV) || errors.Is(err, syscall.EPERM) {
			logger.Warn("rename over %s failed (%v); falling back to in-place rewrite", path, err)
			return rewriteInPlace(tmpName, path, perm)
		}
		return lasterr.Wrap("rename "+path, err)
	}
	syncDir(dir)
	return nil
}

func rewriteInPlace(tmpName, path string, perm os.FileMode) error {
	data, err := os.ReadFile(tmpName)
	if err != nil {
		return lasterr.Wrap("read "+tmpName, err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, perm)
	if err != nil {
		return lasterr.Wrap("open "+path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return lasterr.Wrap("write "+path, err)
	}
	if err := lasterr.Call("fsync "+path, f.Sync); err != nil {
		_ = f.Close()
		return err
	}
	return lasterr.Call("close "+path, f.Close)
}

// copyOwner keeps the target's owner on the replacement (shadow is
// root:shadow on Debian). Best effort: unprivileged runs keep their own uid.
func copyOwner(tmp *os.File, path string) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return
	}
	_ = tmp.Chown(int(st.Uid), int(st.Gid))
}

func syncDir(dir string) {
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
}

func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	return Rewrite(path, perm, func(w io.Writer) error {
		_, err := w.Write(data)
		return lasterr.Wrap("write "+path, err)
	}, nil)
}
