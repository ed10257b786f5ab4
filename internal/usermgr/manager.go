package usermgr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hnrobert/acctdb/internal/config"
	"github.com/hnrobert/acctdb/internal/hostfs"
	"github.com/hnrobert/acctdb/internal/logger"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUserExists    = errors.New("user already exists")
	ErrGroupNotFound = errors.New("group not found")
	ErrGroupExists   = errors.New("group already exists")
	ErrGIDExists     = errors.New("gid already in use")
	ErrInvalidShell  = errors.New("invalid shell")
	ErrUserBusy      = errors.New("user has running processes")
)

// ErrCheckSkipped is returned by a Checker that cannot run its tool. The
// rewrite proceeds unchecked.
var ErrCheckSkipped = errors.New("check skipped")

// Checker proves a freshly written database file is readable by system
// tooling before it replaces the live one. db is "passwd", "shadow" or "group".
type Checker interface {
	Check(ctx context.Context, db, path string) error
}

// ProcessLister reports the live processes of a UID.
type ProcessLister interface {
	PIDsOf(uid int) ([]int, error)
}

const defaultLockTimeout = 15 * time.Second

type Manager struct {
	PasswdPath string
	ShadowPath string
	GroupPath  string
	// LockDir holds .pwd.lock; defaults to the directory of PasswdPath.
	LockDir     string
	LockTimeout time.Duration
	MinGID      int
	Checker     Checker
	// Procs, when set, makes RemoveUser refuse users that still run
	// processes unless forced.
	Procs ProcessLister
}

// NewManager points a Manager at the databases under cfg.Root. Checker is
// left nil; the caller wires one in when cfg.VerifyWithSystemTools is set.
func NewManager(cfg *config.Config) *Manager {
	etc := func(rel string) string { return filepath.Join(cfg.Root, rel) }
	return &Manager{
		PasswdPath:  etc(hostfs.EtcPasswdRel),
		ShadowPath:  etc(hostfs.EtcShadowRel),
		GroupPath:   etc(hostfs.EtcGroupRel),
		LockDir:     etc(hostfs.EtcDirRel),
		LockTimeout: cfg.LockTimeout,
		MinGID:      cfg.MinGID,
	}
}

type dbMask uint8

const (
	dbPasswd dbMask = 1 << iota
	dbShadow
	dbGroup
)

// snapshot is the state a transaction works on. Mutators mark what they
// changed; only marked files are rewritten.
type snapshot struct {
	passwd *PasswdFile
	shadow *ShadowFile
	group  *GroupFile
	dirty  dbMask
}

func (s *snapshot) touch(m dbMask) { s.dirty |= m }

func (m *Manager) lockDir() string {
	if m.LockDir != "" {
		return m.LockDir
	}
	return filepath.Dir(m.PasswdPath)
}

func (m *Manager) lockTimeout() time.Duration {
	if m.LockTimeout > 0 {
		return m.LockTimeout
	}
	return defaultLockTimeout
}

// update runs fn under the database lock against a fresh snapshot of the files
// in load, then rewrites whatever fn marked dirty. A missing shadow file is
// tolerated: fn sees a nil shadow.
func (m *Manager) update(ctx context.Context, load dbMask, fn func(s *snapshot) error) error {
	lockCtx, cancel := context.WithTimeout(ctx, m.lockTimeout())
	lk, err := hostfs.Lock(lockCtx, m.lockDir())
	cancel()
	if err != nil {
		return err
	}
	defer func() {
		if err := lk.Unlock(); err != nil {
			logger.Warn("unlock %s: %v", lk.Path(), err)
		}
	}()

	s := &snapshot{}
	if load&dbPasswd != 0 {
		if s.passwd, err = LoadPasswd(m.PasswdPath); err != nil {
			return err
		}
	}
	if load&dbShadow != 0 {
		s.shadow, err = LoadShadow(m.ShadowPath)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	if load&dbGroup != 0 {
		if s.group, err = LoadGroup(m.GroupPath); err != nil {
			return err
		}
	}

	if err := fn(s); err != nil {
		return err
	}

	// group first so a removed user is never left as a dangling member.
	if s.dirty&dbGroup != 0 {
		if err := m.rewrite(ctx, "group", m.GroupPath, 0o644, s.group.Encode); err != nil {
			return err
		}
	}
	if s.dirty&dbShadow != 0 && s.shadow != nil {
		if err := m.rewrite(ctx, "shadow", m.ShadowPath, 0o640, s.shadow.Encode); err != nil {
			return err
		}
	}
	if s.dirty&dbPasswd != 0 {
		if err := m.rewrite(ctx, "passwd", m.PasswdPath, 0o644, s.passwd.Encode); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) rewrite(ctx context.Context, db, path string, perm os.FileMode, fill func(io.Writer) error) error {
	if st, err := os.Stat(path); err == nil {
		perm = st.Mode().Perm()
	}
	var check hostfs.CheckFunc
	if m.Checker != nil {
		check = func(tmp string) error {
			err := m.Checker.Check(ctx, db, tmp)
			if errors.Is(err, ErrCheckSkipped) {
				logger.Debug("%s check skipped: %v", db, err)
				return nil
			}
			return err
		}
	}
	if err := hostfs.Rewrite(path, perm, fill, check); err != nil {
		return fmt.Errorf("rewrite %s: %w", db, err)
	}
	logger.Debug("rewrote %s", path)
	return nil
}

// AddGroup creates a group. A negative gid picks the next free one at or
// above MinGID. It returns the entry as written.
func (m *Manager) AddGroup(ctx context.Context, name string, gid int, members []string) (GroupEntry, error) {
	if !validUsername(name) {
		return GroupEntry{}, fieldErr("group", "name", -1, name, "not a valid account name")
	}
	var added GroupEntry
	err := m.update(ctx, dbGroup, func(s *snapshot) error {
		if gid < 0 {
			gid = s.group.NextGID(m.MinGID)
		}
		added = GroupEntry{Name: name, Passwd: "x", GID: gid}.WithMembers(members)
		if err := s.group.Add(added); err != nil {
			return err
		}
		s.touch(dbGroup)
		return nil
	})
	if err != nil {
		return GroupEntry{}, err
	}
	logger.Info("group %s added (gid %d)", name, added.GID)
	return added, nil
}

// DeleteGroup removes a group. A group that is some user's primary group is
// kept.
func (m *Manager) DeleteGroup(ctx context.Context, name string) error {
	err := m.update(ctx, dbPasswd|dbGroup, func(s *snapshot) error {
		g, ok := s.group.Find(name)
		if !ok {
			return fmt.Errorf("%w: %s", ErrGroupNotFound, name)
		}
		for _, u := range s.passwd.List() {
			if u.GID == g.GID {
				return fmt.Errorf("group %s is the primary group of %s", name, u.Name)
			}
		}
		s.group.Delete(name)
		s.touch(dbGroup)
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info("group %s deleted", name)
	return nil
}

// AddMember adds user to group. The user must exist in passwd.
func (m *Manager) AddMember(ctx context.Context, group, user string) error {
	err := m.update(ctx, dbPasswd|dbGroup, func(s *snapshot) error {
		if _, ok := s.passwd.Find(user); !ok {
			return fmt.Errorf("%w: %s", ErrUserNotFound, user)
		}
		g, ok := s.group.Find(group)
		if !ok {
			return fmt.Errorf("%w: %s", ErrGroupNotFound, group)
		}
		if g.HasMember(user) {
			return nil
		}
		if err := s.group.AddMember(group, user); err != nil {
			return err
		}
		s.touch(dbGroup)
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info("%s added to %s", user, group)
	return nil
}

func (m *Manager) RemoveMember(ctx context.Context, group, user string) error {
	err := m.update(ctx, dbGroup, func(s *snapshot) error {
		g, ok := s.group.Find(group)
		if !ok {
			return fmt.Errorf("%w: %s", ErrGroupNotFound, group)
		}
		if !g.HasMember(user) {
			return nil
		}
		if err := s.group.RemoveMember(group, user); err != nil {
			return err
		}
		s.touch(dbGroup)
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info("%s removed from %s", user, group)
	return nil
}

// SetMembers replaces the member list of group as given, duplicates included.
func (m *Manager) SetMembers(ctx context.Context, group string, members []string) error {
	return m.update(ctx, dbGroup, func(s *snapshot) error {
		if err := s.group.SetMembers(group, members); err != nil {
			return err
		}
		s.touch(dbGroup)
		return nil
	})
}

// RemoveUser deletes the passwd and shadow entries of user, drops it from
// every group and removes the same-named group when that is its primary group,
// has no members and is no other user's primary group. Without force a user with live processes is kept.
func (m *Manager) RemoveUser(ctx context.Context, user string, force bool) error {
	var groups []string
	err := m.update(ctx, dbPasswd|dbShadow|dbGroup, func(s *snapshot) error {
		pe, ok := s.passwd.Find(user)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUserNotFound, user)
		}
		if m.Procs != nil && !force {
			pids, err := m.Procs.PIDsOf(pe.UID)
			if err != nil {
				return fmt.Errorf("list processes of %s: %w", user, err)
			}
			if len(pids) > 0 {
				return fmt.Errorf("%w: %s (pid %d)", ErrUserBusy, user, pids[0])
			}
		}
		s.passwd.Delete(user)
		s.touch(dbPasswd)
		if s.shadow != nil && s.shadow.Delete(user) {
			s.touch(dbShadow)
		}
		groups = s.group.RemoveMemberEverywhere(user)
		if len(groups) > 0 {
			s.touch(dbGroup)
		}
		if g, ok := s.group.Find(user); ok && g.GID == pe.GID && len(g.Members) == 0 && !isPrimaryGID(s.passwd, g.GID) {
			s.group.Delete(user)
			s.touch(dbGroup)
		}
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info("user %s removed (was in %d groups)", user, len(groups))
	return nil
}

func isPrimaryGID(pw *PasswdFile, gid int) bool {
	for _, u := range pw.List() {
		if u.GID == gid {
			return true
		}
	}
	return false
}

func (m *Manager) SetShell(ctx context.Context, user, shell string) error {
	if !strings.HasPrefix(shell, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidShell, shell)
	}
	return m.update(ctx, dbPasswd, func(s *snapshot) error {
		pe, ok := s.passwd.Find(user)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUserNotFound, user)
		}
		pe.Shell = shell
		if err := s.passwd.Replace(pe); err != nil {
			return err
		}
		s.touch(dbPasswd)
		return nil
	})
}

// ListGroups reads the group database without taking the lock.
func (m *Manager) ListGroups() ([]GroupEntry, error) {
	gr, err := LoadGroup(m.GroupPath)
	if err != nil {
		return nil, err
	}
	return gr.List(), nil
}

// GroupsOf returns the names of the groups listing user as a member.
func (m *Manager) GroupsOf(user string) ([]string, error) {
	gr, err := LoadGroup(m.GroupPath)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, g := range gr.List() {
		if g.HasMember(user) {
			out = append(out, g.Name)
		}
	}
	return out, nil
}

func (m *Manager) IsAdmin(username string) (bool, error) {
	gr, err := LoadGroup(m.GroupPath)
	if err != nil {
		return false, err
	}
	return isSudoGroupMember(gr, username), nil
}

func isSudoGroupMember(gr *GroupFile, username string) bool {
	for _, gname := range []string{"sudo", "wheel"} {
		if g, ok := gr.Find(gname); ok && g.HasMember(username) {
			return true
		}
	}
	return false
}
