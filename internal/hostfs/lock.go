package hostfs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/hnrobert/acctdb/internal/lasterr"
)

var ErrLockTimeout = errors.New("timed out waiting for account database lock")

const lockRetryInterval = 100 * time.Millisecond

// fcntl locks belong to the process, so writers inside one process queue on a
// per-path semaphore first.
var (
	semMu sync.Mutex
	sems  = map[string]chan struct{}{}
)

func semFor(path string) chan struct{} {
	semMu.Lock()
	defer semMu.Unlock()
	if s := sems[path]; s != nil {
		return s
	}
	s := make(chan struct{}, 1)
	sems[path] = s
	return s
}

// DBLock is the exclusive write lock over the account databases in one
// directory. Only the holder may rewrite passwd, shadow or group.
type DBLock struct {
	path string
	f    *os.File
	sem  chan struct{}
}

// Lock takes the write lock on dir/.pwd.lock, the same lock lckpwdf(3) and
// shadow-utils use, retrying until ctx is done.
func Lock(ctx context.Context, dir string) (*DBLock, error) {
	path := filepath.Join(dir, LockFileName)
	sem := semFor(path)
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s", ErrLockTimeout, path)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o600)
	if err != nil {
		<-sem
		return nil, lasterr.Wrap("open "+path, err)
	}

	lk := unix.Flock_t{Type: unix.F_WRLCK, Whence: 0}
	for {
		err := lasterr.Call("fcntl "+path, func() error {
			return unix.FcntlFlock(f.Fd(), unix.F_SETLK, &lk)
		})
		if err == nil {
			return &DBLock{path: path, f: f, sem: sem}, nil
		}
		if !errors.Is(err, unix.EAGAIN) && !errors.Is(err, unix.EACCES) {
			_ = f.Close()
			<-sem
			return nil, err
		}
		select {
		case <-ctx.Done():
			_ = f.Close()
			<-sem
			return nil, fmt.Errorf("%w: %s: %w", ErrLockTimeout, path, err)
		case <-time.After(lockRetryInterval):
		}
	}
}

// LockTimeout is Lock with a plain timeout.
func LockTimeout(dir string, d time.Duration) (*DBLock, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return Lock(ctx, dir)
}

func (l *DBLock) Path() string { return l.path }

// Unlock releases the lock. Closing the descriptor drops the fcntl lock.
func (l *DBLock) Unlock() error {
	if l == nil || l.f == nil {
		return nil
	}
	lk := unix.Flock_t{Type: unix.F_UNLCK, Whence: 0}
	err := lasterr.Call("fcntl "+l.path, func() error {
		return unix.FcntlFlock(l.f.Fd(), unix.F_SETLK, &lk)
	})
	cerr := lasterr.Call("close "+l.path, l.f.Close)
	l.f = nil
	<-l.sem
	if err != nil {
		return err
	}
	return cerr
}
