// Package acctview exposes passwd, shadow and group records as owned,
// read-only values.
//
// A record is copied out field by field at lookup time, with every text field
// checked against a fixed bound, so nothing here points into storage a later
// lookup may reuse. Accessors take a possibly nil handle and report
// ErrNotFound for it instead of panicking.
package acctview

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	ErrNotFound     = errors.New("account record not found")
	ErrFieldTooLong = errors.New("field exceeds its length bound")
	ErrBadField     = errors.New("field contains a NUL byte")
	ErrUnsupported  = errors.New("native lookup not supported in this build")
)

// Field bounds, matching the Linux limits the native buffers are sized for.
const (
	MaxNameLen    = 256  // LOGIN_NAME_MAX
	MaxPathLen    = 4096 // PATH_MAX
	MaxGecosLen   = 1024
	MaxHashLen    = 512
	MaxMemberList = 65536
)

// copyText copies s out with a length bound.
func copyText(field, s string, max int) (string, error) {
	if len(s) > max {
		return "", fmt.Errorf("%w: %s is %d bytes, limit %d", ErrFieldTooLong, field, len(s), max)
	}
	if strings.IndexByte(s, 0) >= 0 {
		return "", fmt.Errorf("%w: %s", ErrBadField, field)
	}
	return strings.Clone(s), nil
}

// Passwd is an owned copy of one passwd record.
type Passwd struct {
	name   string
	passwd string
	uid    uint32
	gid    uint32
	gecos  string
	home   string
	shell  string
}

// PasswdFields is the raw input to NewPasswd.
type PasswdFields struct {
	Name, Passwd       string
	UID, GID           uint32
	Gecos, Home, Shell string
}

func NewPasswd(f PasswdFields) (*Passwd, error) {
	var p Passwd
	var err error
	if p.name, err = copyText("name", f.Name, MaxNameLen); err != nil {
		return nil, err
	}
	if p.passwd, err = copyText("passwd", f.Passwd, MaxHashLen); err != nil {
		return nil, err
	}
	if p.gecos, err = copyText("gecos", f.Gecos, MaxGecosLen); err != nil {
		return nil, err
	}
	if p.home, err = copyText("home", f.Home, MaxPathLen); err != nil {
		return nil, err
	}
	if p.shell, err = copyText("shell", f.Shell, MaxPathLen); err != nil {
		return nil, err
	}
	p.uid, p.gid = f.UID, f.GID
	return &p, nil
}

func (p *Passwd) Name() (string, error) {
	if p == nil {
		return "", ErrNotFound
	}
	return p.name, nil
}

func (p *Passwd) Passwd() (string, error) {
	if p == nil {
		return "", ErrNotFound
	}
	return p.passwd, nil
}

func (p *Passwd) UID() (uint32, error) {
	if p == nil {
		return 0, ErrNotFound
	}
	return p.uid, nil
}

func (p *Passwd) GID() (uint32, error) {
	if p == nil {
		return 0, ErrNotFound
	}
	return p.gid, nil
}

func (p *Passwd) Gecos() (string, error) {
	if p == nil {
		return "", ErrNotFound
	}
	return p.gecos, nil
}

func (p *Passwd) Home() (string, error) {
	if p == nil {
		return "", ErrNotFound
	}
	return p.home, nil
}

func (p *Passwd) Shell() (string, error) {
	if p == nil {
		return "", ErrNotFound
	}
	return p.shell, nil
}

// Shadow is an owned copy of one shadow record. Aging fields hold -1 where
// the database field is empty.
type Shadow struct {
	name       string
	hash       string
	lastChange int64
	min        int64
	max        int64
	warn       int64
	inactive   int64
	expire     int64
}

type ShadowFields struct {
	Name, Hash                                   string
	LastChange, Min, Max, Warn, Inactive, Expire int64
}

func NewShadow(f ShadowFields) (*Shadow, error) {
	var s Shadow
	var err error
	if s.name, err = copyText("name", f.Name, MaxNameLen); err != nil {
		return nil, err
	}
	if s.hash, err = copyText("hash", f.Hash, MaxHashLen); err != nil {
		return nil, err
	}
	s.lastChange, s.min, s.max = f.LastChange, f.Min, f.Max
	s.warn, s.inactive, s.expire = f.Warn, f.Inactive, f.Expire
	return &s, nil
}

func (s *Shadow) Name() (string, error) {
	if s == nil {
		return "", ErrNotFound
	}
	return s.name, nil
}

func (s *Shadow) Hash() (string, error) {
	if s == nil {
		return "", ErrNotFound
	}
	return s.hash, nil
}

// Locked reports a hash that cannot match any password.
func (s *Shadow) Locked() (bool, error) {
	if s == nil {
		return false, ErrNotFound
	}
	h := s.hash
	return h == "" || strings.HasPrefix(h, "!") || strings.HasPrefix(h, "*"), nil
}

// LastChange is days since 1970-01-01 the password was last changed.
func (s *Shadow) LastChange() (int64, error) {
	if s == nil {
		return 0, ErrNotFound
	}
	return s.lastChange, nil
}

func (s *Shadow) MinAge() (int64, error) {
	if s == nil {
		return 0, ErrNotFound
	}
	return s.min, nil
}

func (s *Shadow) MaxAge() (int64, error) {
	if s == nil {
		return 0, ErrNotFound
	}
	return s.max, nil
}

func (s *Shadow) WarnPeriod() (int64, error) {
	if s == nil {
		return 0, ErrNotFound
	}
	return s.warn, nil
}

func (s *Shadow) InactivityPeriod() (int64, error) {
	if s == nil {
		return 0, ErrNotFound
	}
	return s.inactive, nil
}

// Expire is the account expiry in days since 1970-01-01, -1 for never.
func (s *Shadow) Expire() (int64, error) {
	if s == nil {
		return 0, ErrNotFound
	}
	return s.expire, nil
}

// Group is an owned copy of one group record.
type Group struct {
	name    string
	passwd  string
	gid     uint32
	members []string
}

type GroupFields struct {
	Name, Passwd string
	GID          uint32
	Members      []string
}

func NewGroup(f GroupFields) (*Group, error) {
	var g Group
	var err error
	if g.name, err = copyText("name", f.Name, MaxNameLen); err != nil {
		return nil, err
	}
	if g.passwd, err = copyText("passwd", f.Passwd, MaxHashLen); err != nil {
		return nil, err
	}
	if len(f.Members) > MaxMemberList {
		return nil, fmt.Errorf("%w: %d members, limit %d", ErrFieldTooLong, len(f.Members), MaxMemberList)
	}
	g.members = make([]string, 0, len(f.Members))
	for _, m := range f.Members {
		c, err := copyText("member", m, MaxNameLen)
		if err != nil {
			return nil, err
		}
		g.members = append(g.members, c)
	}
	g.gid = f.GID
	return &g, nil
}

func (g *Group) Name() (string, error) {
	if g == nil {
		return "", ErrNotFound
	}
	return g.name, nil
}

func (g *Group) Passwd() (string, error) {
	if g == nil {
		return "", ErrNotFound
	}
	return g.passwd, nil
}

func (g *Group) GID() (uint32, error) {
	if g == nil {
		return 0, ErrNotFound
	}
	return g.gid, nil
}

// Members returns a copy of the member list.
func (g *Group) Members() ([]string, error) {
	if g == nil {
		return nil, ErrNotFound
	}
	return slices.Clone(g.members), nil
}

func (g *Group) HasMember(user string) (bool, error) {
	if g == nil {
		return false, ErrNotFound
	}
	return slices.Contains(g.members, user), nil
}
