// Package syscheck runs the shadow-utils consistency checkers against a
// rewritten database file before it is renamed into place.
package syscheck

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/hnrobert/acctdb/internal/usermgr"
)

// ErrToolMissing means the checker binary is not installed. It matches
// usermgr.ErrCheckSkipped, so the manager writes the file unchecked.
var ErrToolMissing = fmt.Errorf("%w: tool not installed", usermgr.ErrCheckSkipped)

var ErrCheckFailed = errors.New("system check failed")

type Runner struct {
	// Root is the account root the databases live under. grpck and pwck
	// resolve members and groups through the running host, so under any
	// other root every check is skipped.
	Root    string
	Timeout time.Duration
	// Grpck and Pwck name the checker binaries; looked up in PATH.
	Grpck string
	Pwck  string
}

var _ usermgr.Checker = (*Runner)(nil)

func New(root string) *Runner {
	return &Runner{Root: root, Timeout: 10 * time.Second, Grpck: "grpck", Pwck: "pwck"}
}

func (r *Runner) hostRoot() bool {
	return r.Root == "" || filepath.Clean(r.Root) == "/"
}

// Check runs the read-only checker for db against path. The shadow database
// is only checked together with passwd by pwck, so on its own it is skipped.
func (r *Runner) Check(ctx context.Context, db, path string) error {
	if !r.hostRoot() && (db == "group" || db == "passwd") {
		return fmt.Errorf("%w: %s check reads the host databases, not %s", usermgr.ErrCheckSkipped, db, r.Root)
	}
	switch db {
	case "group":
		return r.run(ctx, r.Grpck, "-r", path)
	case "passwd":
		return r.run(ctx, r.Pwck, "-r", path)
	case "shadow":
		return fmt.Errorf("%w: no standalone shadow check", usermgr.ErrCheckSkipped)
	}
	return fmt.Errorf("syscheck: unknown database %q", db)
}

func (r *Runner) run(ctx context.Context, name string, args ...string) error {
	bin, err := exec.LookPath(name)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrToolMissing, name)
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %s timed out", ErrCheckFailed, name)
		}
		s := strings.TrimSpace(out.String())
		if s == "" {
			return fmt.Errorf("%w: %s %v: %v", ErrCheckFailed, name, args, err)
		}
		return fmt.Errorf("%w: %s %v: %s", ErrCheckFailed, name, args, s)
	}
	return nil
}
