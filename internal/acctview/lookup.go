package acctview

import (
	"fmt"
	"strconv"

	"github.com/hnrobert/acctdb/internal/hostfs"
	"github.com/hnrobert/acctdb/internal/usermgr"
)

// Lookup finds account records by name or id. A missing record is reported
// as ErrNotFound with a nil handle.
type Lookup interface {
	UserByName(name string) (*Passwd, error)
	UserByID(uid uint32) (*Passwd, error)
	ShadowByName(name string) (*Shadow, error)
	GroupByName(name string) (*Group, error)
	GroupByID(gid uint32) (*Group, error)
}

var (
	_ Lookup = (*FileLookup)(nil)
	_ Lookup = NativeLookup{}
)

// FileLookup reads the database files under the host root on every call.
type FileLookup struct {
	PasswdPath string
	ShadowPath string
	GroupPath  string
}

// NewFileLookup resolves the well-known paths under the current host root.
func NewFileLookup() (*FileLookup, error) {
	passwd, err := hostfs.Path(hostfs.EtcPasswdRel)
	if err != nil {
		return nil, err
	}
	shadow, err := hostfs.Path(hostfs.EtcShadowRel)
	if err != nil {
		return nil, err
	}
	group, err := hostfs.Path(hostfs.EtcGroupRel)
	if err != nil {
		return nil, err
	}
	return &FileLookup{PasswdPath: passwd, ShadowPath: shadow, GroupPath: group}, nil
}

func (l *FileLookup) UserByName(name string) (*Passwd, error) {
	pw, err := usermgr.LoadPasswd(l.PasswdPath)
	if err != nil {
		return nil, err
	}
	e, ok := pw.Find(name)
	if !ok {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, name)
	}
	return passwdFromEntry(e)
}

func (l *FileLookup) UserByID(uid uint32) (*Passwd, error) {
	pw, err := usermgr.LoadPasswd(l.PasswdPath)
	if err != nil {
		return nil, err
	}
	e, ok := pw.FindByUID(int(uid))
	if !ok {
		return nil, fmt.Errorf("%w: uid %d", ErrNotFound, uid)
	}
	return passwdFromEntry(e)
}

func (l *FileLookup) ShadowByName(name string) (*Shadow, error) {
	sh, err := usermgr.LoadShadow(l.ShadowPath)
	if err != nil {
		return nil, err
	}
	e, ok := sh.Find(name)
	if !ok {
		return nil, fmt.Errorf("%w: shadow %s", ErrNotFound, name)
	}
	return shadowFromEntry(e)
}

func (l *FileLookup) GroupByName(name string) (*Group, error) {
	gr, err := usermgr.LoadGroup(l.GroupPath)
	if err != nil {
		return nil, err
	}
	e, ok := gr.Find(name)
	if !ok {
		return nil, fmt.Errorf("%w: group %s", ErrNotFound, name)
	}
	return groupFromEntry(e)
}

func (l *FileLookup) GroupByID(gid uint32) (*Group, error) {
	gr, err := usermgr.LoadGroup(l.GroupPath)
	if err != nil {
		return nil, err
	}
	e, ok := gr.FindByGID(int(gid))
	if !ok {
		return nil, fmt.Errorf("%w: gid %d", ErrNotFound, gid)
	}
	return groupFromEntry(e)
}

func passwdFromEntry(e usermgr.PasswdEntry) (*Passwd, error) {
	return NewPasswd(PasswdFields{
		Name:   e.Name,
		Passwd: e.Passwd,
		UID:    uint32(e.UID),
		GID:    uint32(e.GID),
		Gecos:  e.Gecos,
		Home:   e.Home,
		Shell:  e.Shell,
	})
}

func groupFromEntry(e usermgr.GroupEntry) (*Group, error) {
	return NewGroup(GroupFields{Name: e.Name, Passwd: e.Passwd, GID: uint32(e.GID), Members: e.Members})
}

func shadowFromEntry(e usermgr.ShadowEntry) (*Shadow, error) {
	f := ShadowFields{Name: e.Name, Hash: e.Hash}
	for _, d := range []struct {
		name string
		in   string
		out  *int64
	}{
		{"lastchg", e.LastChange, &f.LastChange},
		{"min", e.Min, &f.Min},
		{"max", e.Max, &f.Max},
		{"warn", e.Warn, &f.Warn},
		{"inactive", e.Inactive, &f.Inactive},
		{"expire", e.Expire, &f.Expire},
	} {
		n, err := agingField(d.in)
		if err != nil {
			return nil, fmt.Errorf("shadow %s: %s: %w", e.Name, d.name, err)
		}
		*d.out = n
	}
	return NewShadow(f)
}

// agingField maps an empty shadow field to -1, as getspnam(3) does.
func agingField(s string) (int64, error) {
	if s == "" {
		return -1, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
