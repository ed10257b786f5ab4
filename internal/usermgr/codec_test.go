package usermgr

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/hnrobert/acctdb/internal/lasterr"
)

// recordingSink counts write requests and can fail or truncate them.
type recordingSink struct {
	writes [][]byte
	err    error
	short  int
}

func (s *recordingSink) Write(p []byte) (int, error) {
	s.writes = append(s.writes, append([]byte(nil), p...))
	if s.err != nil {
		return 0, s.err
	}
	if s.short > 0 && s.short < len(p) {
		return s.short, nil
	}
	return len(p), nil
}

func (s *recordingSink) bytesSeen() int {
	n := 0
	for _, w := range s.writes {
		n += len(w)
	}
	return n
}

func TestEncodeGroup(t *testing.T) {
	tests := []struct {
		name string
		in   GroupEntry
		want string
	}{
		{"no members", GroupEntry{Name: "wheel", Passwd: "x", GID: 10}, "wheel:x:10:\n"},
		{"two members", GroupEntry{Name: "dev", Passwd: "x", GID: 500, Members: []string{"alice", "bob"}}, "dev:x:500:alice,bob\n"},
		{"empty passwd", GroupEntry{Name: "users", GID: 100, Members: []string{"carol"}}, "users::100:carol\n"},
		{"duplicates kept", GroupEntry{Name: "dup", Passwd: "x", GID: 7, Members: []string{"a", "a"}}, "dup:x:7:a,a\n"},
		{"gid zero", GroupEntry{Name: "root", Passwd: "x", GID: 0}, "root:x:0:\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{}
			require.NoError(t, EncodeGroup(sink, tt.in))
			require.Len(t, sink.writes, 1)
			assert.Equal(t, tt.want, string(sink.writes[0]))
		})
	}
}

func TestEncodeGroupRejects(t *testing.T) {
	tests := []struct {
		name  string
		in    GroupEntry
		field string
		index int
	}{
		{"empty name", GroupEntry{Passwd: "x", GID: 1}, "name", -1},
		{"colon in name", GroupEntry{Name: "a:b", GID: 1}, "name", -1},
		{"newline in name", GroupEntry{Name: "a\nb", GID: 1}, "name", -1},
		{"colon in passwd", GroupEntry{Name: "g", Passwd: "x:y", GID: 1}, "passwd", -1},
		{"negative gid", GroupEntry{Name: "g", GID: -1}, "gid", -1},
		{"comma in member", GroupEntry{Name: "g", GID: 1, Members: []string{"ok", "a,b"}}, "member", 1},
		{"colon in member", GroupEntry{Name: "g", GID: 1, Members: []string{"a:b"}}, "member", 0},
		{"newline in member", GroupEntry{Name: "g", GID: 1, Members: []string{"x", "y", "a\n"}}, "member", 2},
		{"empty member", GroupEntry{Name: "g", GID: 1, Members: []string{""}}, "member", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{}
			err := EncodeGroup(sink, tt.in)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidField)
			assert.NotErrorIs(t, err, ErrWriteFailed)

			var fe *FieldError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, "group", fe.Record)
			assert.Equal(t, tt.field, fe.Field)
			assert.Equal(t, tt.index, fe.Index)

			assert.Empty(t, sink.writes, "sink must not be called for an invalid record")
		})
	}
}

func TestEncodeGroupSinkFailure(t *testing.T) {
	sink := &recordingSink{err: unix.ENOSPC}
	err := EncodeGroup(sink, GroupEntry{Name: "dev", Passwd: "x", GID: 500, Members: []string{"alice"}})
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrWriteFailed)
	assert.ErrorIs(t, err, unix.ENOSPC)
	assert.NotErrorIs(t, err, ErrInvalidField)

	var we *WriteError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, lasterr.Code(unix.ENOSPC), we.Code)
	assert.Equal(t, "group", we.Record)
	assert.Contains(t, err.Error(), "ENOSPC")

	// One request only; the failure is not retried.
	assert.Len(t, sink.writes, 1)
}

func TestEncodeGroupShortWrite(t *testing.T) {
	sink := &recordingSink{short: 3}
	err := EncodeGroup(sink, GroupEntry{Name: "dev", Passwd: "x", GID: 500})

	assert.ErrorIs(t, err, ErrWriteFailed)
	assert.ErrorIs(t, err, io.ErrShortWrite)
	var we *WriteError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, lasterr.None, we.Code)
	assert.Len(t, sink.writes, 1)
}

func TestGroupRoundTrip(t *testing.T) {
	entries := []GroupEntry{
		{Name: "wheel", Passwd: "x", GID: 10},
		{Name: "dev", Passwd: "x", GID: 500, Members: []string{"alice", "bob"}},
		{Name: "users", Passwd: "", GID: 100, Members: []string{"u1", "u1", "u2"}},
		{Name: "big", Passwd: "!", GID: 2147483647, Members: []string{"a-b_c", "d.e"}},
	}
	for _, e := range entries {
		t.Run(e.Name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, EncodeGroup(&buf, e))
			line := buf.String()
			require.True(t, len(line) > 0 && line[len(line)-1] == '\n')

			got, err := ParseGroupLine(line[:len(line)-1])
			require.NoError(t, err)
			assert.Equal(t, e, got)
		})
	}
}

func TestParseGroupLine(t *testing.T) {
	_, err := ParseGroupLine("too:few:fields")
	assert.ErrorIs(t, err, ErrMalformedLine)

	_, err = ParseGroupLine("a:b:c:d:e")
	assert.ErrorIs(t, err, ErrMalformedLine)

	_, err = ParseGroupLine("g:x:notanumber:")
	assert.ErrorIs(t, err, ErrMalformedLine)

	e, err := ParseGroupLine("wheel:x:10:")
	require.NoError(t, err)
	assert.Nil(t, e.Members)
}

func TestEncodePasswd(t *testing.T) {
	var buf bytes.Buffer
	e := PasswdEntry{Name: "alice", Passwd: "x", UID: 1000, GID: 1000, Gecos: "Alice,,,", Home: "/home/alice", Shell: "/bin/bash"}
	require.NoError(t, EncodePasswd(&buf, e))
	assert.Equal(t, "alice:x:1000:1000:Alice,,,:/home/alice:/bin/bash\n", buf.String())

	got, err := ParsePasswdLine("alice:x:1000:1000:Alice,,,:/home/alice:/bin/bash")
	require.NoError(t, err)
	assert.Equal(t, e, got)

	buf.Reset()
	err = EncodePasswd(&buf, PasswdEntry{Name: "bob", UID: 1, GID: 1, Home: "/home/b:ob"})
	assert.ErrorIs(t, err, ErrInvalidField)
	assert.Zero(t, buf.Len())

	err = EncodePasswd(&buf, PasswdEntry{Name: "bob", UID: -5})
	assert.ErrorIs(t, err, ErrInvalidField)
}

func TestEncodeShadow(t *testing.T) {
	var buf bytes.Buffer
	e := ShadowEntry{Name: "alice", Hash: "$6$salt$hash", LastChange: "19500", Min: "0", Max: "99999", Warn: "7"}
	require.NoError(t, EncodeShadow(&buf, e))
	assert.Equal(t, "alice:$6$salt$hash:19500:0:99999:7:::\n", buf.String())

	got, err := ParseShadowLine("alice:$6$salt$hash:19500:0:99999:7:::")
	require.NoError(t, err)
	assert.Equal(t, e, got)

	short, err := ParseShadowLine("bob:!")
	require.NoError(t, err)
	assert.Equal(t, ShadowEntry{Name: "bob", Hash: "!"}, short)

	err = EncodeShadow(&buf, ShadowEntry{Name: "x", Max: "forever"})
	assert.ErrorIs(t, err, ErrInvalidField)

	require.NoError(t, EncodeShadow(io.Discard, ShadowEntry{Name: "x", Expire: "-1"}))
}

func TestGroupEntryValueHelpers(t *testing.T) {
	orig := GroupEntry{Name: "dev", GID: 500, Members: []string{"alice", "bob", "alice"}}

	added := orig.WithMember("carol")
	assert.Equal(t, []string{"alice", "bob", "alice", "carol"}, added.Members)
	assert.Equal(t, []string{"alice", "bob", "alice"}, orig.Members)

	same := orig.WithMember("bob")
	assert.Equal(t, orig.Members, same.Members)

	removed := orig.WithoutMember("alice")
	assert.Equal(t, []string{"bob"}, removed.Members)
	assert.Equal(t, []string{"alice", "bob", "alice"}, orig.Members)

	cp := orig.WithMembers(orig.Members)
	cp.Members[0] = "mallory"
	assert.Equal(t, "alice", orig.Members[0])
}
