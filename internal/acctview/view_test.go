package acctview

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilHandles(t *testing.T) {
	var p *Passwd
	var s *Shadow
	var g *Group

	_, err := p.Name()
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = p.UID()
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = p.Home()
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Hash()
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Locked()
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Expire()
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = g.Members()
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = g.GID()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBounds(t *testing.T) {
	t.Run("name too long", func(t *testing.T) {
		_, err := NewPasswd(PasswdFields{Name: strings.Repeat("a", MaxNameLen+1)})
		assert.ErrorIs(t, err, ErrFieldTooLong)
	})
	t.Run("name at limit", func(t *testing.T) {
		p, err := NewPasswd(PasswdFields{Name: strings.Repeat("a", MaxNameLen)})
		require.NoError(t, err)
		name, _ := p.Name()
		assert.Len(t, name, MaxNameLen)
	})
	t.Run("nul byte", func(t *testing.T) {
		_, err := NewGroup(GroupFields{Name: "wheel", Members: []string{"al\x00ice"}})
		assert.ErrorIs(t, err, ErrBadField)
	})
	t.Run("too many members", func(t *testing.T) {
		_, err := NewGroup(GroupFields{Name: "big", Members: make([]string, MaxMemberList+1)})
		assert.ErrorIs(t, err, ErrFieldTooLong)
	})
	t.Run("hash too long", func(t *testing.T) {
		_, err := NewShadow(ShadowFields{Name: "root", Hash: strings.Repeat("x", MaxHashLen+1)})
		assert.ErrorIs(t, err, ErrFieldTooLong)
	})
}

func TestGroupMembersAreCopies(t *testing.T) {
	in := []string{"alice", "bob"}
	g, err := NewGroup(GroupFields{Name: "dev", Passwd: "x", GID: 500, Members: in})
	require.NoError(t, err)

	in[0] = "mallory"
	got, err := g.Members()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, got)

	got[1] = "eve"
	again, _ := g.Members()
	assert.Equal(t, []string{"alice", "bob"}, again)

	ok, err := g.HasMember("bob")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestShadowLocked(t *testing.T) {
	for hash, want := range map[string]bool{
		"":            true,
		"!":           true,
		"!$6$abc$def": true,
		"*":           true,
		"$6$abc$def":  false,
	} {
		s, err := NewShadow(ShadowFields{Name: "u", Hash: hash})
		require.NoError(t, err)
		got, err := s.Locked()
		require.NoError(t, err)
		assert.Equal(t, want, got, "hash %q", hash)
	}
}

func setupLookup(t *testing.T) *FileLookup {
	t.Helper()
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
		return p
	}
	return &FileLookup{
		PasswdPath: write("passwd", "root:x:0:0:root:/root:/bin/bash\nalice:x:1000:1000:Alice,,,:/home/alice:/bin/zsh\n"),
		ShadowPath: write("shadow", "root:!:19000:0:99999:7:::\nalice:$6$salt$hash:19500::99999:7::20000:\n"),
		GroupPath:  write("group", "root:x:0:\n# comment\ndev:x:500:alice,bob\n"),
	}
}

func TestFileLookup(t *testing.T) {
	l := setupLookup(t)

	t.Run("user by name", func(t *testing.T) {
		p, err := l.UserByName("alice")
		require.NoError(t, err)
		uid, _ := p.UID()
		home, _ := p.Home()
		gecos, _ := p.Gecos()
		assert.Equal(t, uint32(1000), uid)
		assert.Equal(t, "/home/alice", home)
		assert.Equal(t, "Alice,,,", gecos)
	})

	t.Run("user by id", func(t *testing.T) {
		p, err := l.UserByID(0)
		require.NoError(t, err)
		name, _ := p.Name()
		assert.Equal(t, "root", name)
	})

	t.Run("missing user", func(t *testing.T) {
		p, err := l.UserByName("nobody")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Nil(t, p)
		_, err = p.Shell()
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("shadow aging", func(t *testing.T) {
		s, err := l.ShadowByName("alice")
		require.NoError(t, err)
		last, _ := s.LastChange()
		minAge, _ := s.MinAge()
		maxAge, _ := s.MaxAge()
		inactive, _ := s.InactivityPeriod()
		expire, _ := s.Expire()
		assert.Equal(t, int64(19500), last)
		assert.Equal(t, int64(-1), minAge)
		assert.Equal(t, int64(99999), maxAge)
		assert.Equal(t, int64(-1), inactive)
		assert.Equal(t, int64(20000), expire)

		locked, _ := s.Locked()
		assert.False(t, locked)
	})

	t.Run("group by id", func(t *testing.T) {
		g, err := l.GroupByID(500)
		require.NoError(t, err)
		name, _ := g.Name()
		members, _ := g.Members()
		assert.Equal(t, "dev", name)
		assert.Equal(t, []string{"alice", "bob"}, members)
	})

	t.Run("group without members", func(t *testing.T) {
		g, err := l.GroupByName("root")
		require.NoError(t, err)
		members, err := g.Members()
		require.NoError(t, err)
		assert.Empty(t, members)
	})

	t.Run("missing group", func(t *testing.T) {
		_, err := l.GroupByID(4242)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
