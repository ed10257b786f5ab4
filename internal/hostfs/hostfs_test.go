package hostfs

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestPath(t *testing.T) {
	t.Cleanup(func() { _ = SetRoot(DefaultRoot) })
	require.NoError(t, SetRoot("/host/"))
	assert.Equal(t, "/host", Root())

	p, err := Path("etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, "/host/etc/passwd", p)

	p, err = Path("/etc/group")
	require.NoError(t, err)
	assert.Equal(t, "/host/etc/group", p)

	for _, bad := range []string{"", ".", "..", "../etc/passwd", "etc/../../x"} {
		_, err := Path(bad)
		assert.ErrorIs(t, err, ErrInvalidPath, bad)
	}

	a, err := Abs("/home/alice/../bob")
	require.NoError(t, err)
	assert.Equal(t, "/host/home/bob", a)

	_, err = Abs("home/alice")
	assert.ErrorIs(t, err, ErrInvalidPath)

	assert.ErrorIs(t, SetRoot("relative"), ErrInvalidPath)
}

func TestRewrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "group")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o644))

	t.Run("success", func(t *testing.T) {
		err := Rewrite(path, 0o640, func(w io.Writer) error {
			_, err := io.WriteString(w, "new\n")
			return err
		}, nil)
		require.NoError(t, err)

		b, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "new\n", string(b))
		st, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o640), st.Mode().Perm())
	})

	t.Run("fill failure keeps original", func(t *testing.T) {
		boom := errors.New("boom")
		err := Rewrite(path, 0o644, func(w io.Writer) error {
			_, _ = io.WriteString(w, "partial")
			return boom
		}, nil)
		assert.ErrorIs(t, err, boom)

		b, _ := os.ReadFile(path)
		assert.Equal(t, "new\n", string(b))
	})

	t.Run("check sees the temp file", func(t *testing.T) {
		var checked string
		reject := errors.New("rejected")
		err := Rewrite(path, 0o644, func(w io.Writer) error {
			_, err := io.WriteString(w, "candidate\n")
			return err
		}, func(tmp string) error {
			b, err := os.ReadFile(tmp)
			require.NoError(t, err)
			checked = string(b)
			return reject
		})
		assert.ErrorIs(t, err, reject)
		assert.Equal(t, "candidate\n", checked)

		b, _ := os.ReadFile(path)
		assert.Equal(t, "new\n", string(b))
	})

	matches, err := filepath.Glob(filepath.Join(dir, ".acctdb-*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestWriteFileAtomicCreates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acctdb.yaml")
	require.NoError(t, WriteFileAtomic(path, []byte("root: /\n"), 0o600))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "root: /\n", string(b))
}

func TestRewriteMissingDir(t *testing.T) {
	err := Rewrite(filepath.Join(t.TempDir(), "nope", "group"), 0o644, func(io.Writer) error { return nil }, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, unix.ENOENT)
}

func TestLock(t *testing.T) {
	dir := t.TempDir()

	l, err := LockTimeout(dir, time.Second)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, LockFileName), l.Path())

	_, err = LockTimeout(dir, 150*time.Millisecond)
	assert.ErrorIs(t, err, ErrLockTimeout)

	acquired := make(chan error, 1)
	go func() {
		l2, err := Lock(context.Background(), dir)
		if err == nil {
			err = l2.Unlock()
		}
		acquired <- err
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, l.Unlock())
	select {
	case err := <-acquired:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never acquired the lock")
	}

	assert.NoError(t, l.Unlock())
}

func TestLockMissingDir(t *testing.T) {
	_, err := LockTimeout(filepath.Join(t.TempDir(), "missing"), time.Second)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLockTimeout)
	assert.ErrorIs(t, err, unix.ENOENT)
}

func TestRewriteInPlaceFallback(t *testing.T) {
	orig := rename
	t.Cleanup(func() { rename = orig })

	for _, errno := range []unix.Errno{unix.EBUSY, unix.EXDEV, unix.EPERM} {
		t.Run(errno.Error(), func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "passwd")
			require.NoError(t, os.WriteFile(path, []byte("a much longer original line\n"), 0o644))

			rename = func(string, string) error {
				return &os.LinkError{Op: "rename", Err: errno}
			}
			err := Rewrite(path, 0o644, func(w io.Writer) error {
				_, err := io.WriteString(w, "short\n")
				return err
			}, nil)
			require.NoError(t, err)

			b, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, "short\n", string(b))

			matches, _ := filepath.Glob(filepath.Join(dir, ".acctdb-*"))
			assert.Empty(t, matches)
		})
	}

	t.Run("other rename errors fail", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "passwd")
		require.NoError(t, os.WriteFile(path, []byte("keep\n"), 0o644))

		rename = func(string, string) error {
			return &os.LinkError{Op: "rename", Err: unix.EIO}
		}
		err := Rewrite(path, 0o644, func(w io.Writer) error {
			_, err := io.WriteString(w, "lost\n")
			return err
		}, nil)
		assert.ErrorIs(t, err, unix.EIO)

		b, _ := os.ReadFile(path)
		assert.Equal(t, "keep\n", string(b))
	})
}
