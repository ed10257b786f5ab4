//go:build cgo && linux

package acctview

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNativeLookup(t *testing.T) {
	l, err := NewNativeLookup()
	require.NoError(t, err)

	t.Run("root by id", func(t *testing.T) {
		p, err := l.UserByID(0)
		if errors.Is(err, ErrNotFound) {
			t.Skip("no uid 0 entry on this host")
		}
		require.NoError(t, err)
		uid, _ := p.UID()
		assert.Equal(t, uint32(0), uid)
		name, _ := p.Name()
		assert.NotEmpty(t, name)
	})

	t.Run("root group by id", func(t *testing.T) {
		g, err := l.GroupByID(0)
		if errors.Is(err, ErrNotFound) {
			t.Skip("no gid 0 entry on this host")
		}
		require.NoError(t, err)
		gid, _ := g.GID()
		assert.Equal(t, uint32(0), gid)
	})

	t.Run("missing user", func(t *testing.T) {
		p, err := l.UserByName("acctdb-no-such-user-7f3a")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Nil(t, p)
	})

	t.Run("missing group", func(t *testing.T) {
		_, err := l.GroupByName("acctdb-no-such-group-7f3a")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
