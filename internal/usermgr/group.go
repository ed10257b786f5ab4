package usermgr

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/hnrobert/acctdb/internal/hostfs"
)

// GroupFile is a snapshot of a group database. Entries are stored as values;
// every change replaces an entry with a new one.
type GroupFile struct {
	pf parsedFile[GroupEntry]
}

func LoadGroup(path string) (*GroupFile, error) {
	b, err := hostfs.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseGroup(bytes.NewReader(b))
}

func ParseGroup(r io.Reader) (*GroupFile, error) {
	pf, err := parseFile(r, ParseGroupLine, ValidateGroup)
	if err != nil {
		return nil, err
	}
	return &GroupFile{pf: pf}, nil
}

func (f *GroupFile) Find(name string) (GroupEntry, bool) {
	for _, e := range f.pf.entries() {
		if e.Name == name {
			return e.WithMembers(e.Members), true
		}
	}
	return GroupEntry{}, false
}

func (f *GroupFile) FindByGID(gid int) (GroupEntry, bool) {
	for _, e := range f.pf.entries() {
		if e.GID == gid {
			return e.WithMembers(e.Members), true
		}
	}
	return GroupEntry{}, false
}

func (f *GroupFile) List() []GroupEntry {
	out := make([]GroupEntry, 0)
	for _, e := range f.pf.entries() {
		out = append(out, e.WithMembers(e.Members))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].GID < out[j].GID })
	return out
}

// Add appends e after checking the name and GID are unused in this snapshot.
func (f *GroupFile) Add(e GroupEntry) error {
	if err := ValidateGroup(e); err != nil {
		return err
	}
	if _, ok := f.Find(e.Name); ok {
		return fmt.Errorf("%w: %s", ErrGroupExists, e.Name)
	}
	if _, ok := f.FindByGID(e.GID); ok {
		return fmt.Errorf("%w: %d", ErrGIDExists, e.GID)
	}
	e = e.WithMembers(e.Members)
	f.pf.lines = append(f.pf.lines, rawLine[GroupEntry]{entry: &e})
	return nil
}

// Replace swaps the entry named e.Name for e. The GID may change but must stay
// unique.
func (f *GroupFile) Replace(e GroupEntry) error {
	if err := ValidateGroup(e); err != nil {
		return err
	}
	if other, ok := f.FindByGID(e.GID); ok && other.Name != e.Name {
		return fmt.Errorf("%w: %d", ErrGIDExists, e.GID)
	}
	if !f.pf.replace(func(g *GroupEntry) bool { return g.Name == e.Name }, e.WithMembers(e.Members)) {
		return fmt.Errorf("%w: %s", ErrGroupNotFound, e.Name)
	}
	return nil
}

func (f *GroupFile) Delete(name string) bool {
	return f.pf.remove(func(e *GroupEntry) bool { return e.Name == name })
}

func (f *GroupFile) NextGID(min int) int {
	max := min - 1
	for _, e := range f.pf.entries() {
		if e.GID > max {
			max = e.GID
		}
	}
	return max + 1
}

// AddMember adds user to group. Adding an existing member is a no-op.
func (f *GroupFile) AddMember(group, user string) error {
	g, ok := f.Find(group)
	if !ok {
		return fmt.Errorf("%w: %s", ErrGroupNotFound, group)
	}
	if g.HasMember(user) {
		return nil
	}
	return f.Replace(g.WithMember(user))
}

func (f *GroupFile) RemoveMember(group, user string) error {
	g, ok := f.Find(group)
	if !ok {
		return fmt.Errorf("%w: %s", ErrGroupNotFound, group)
	}
	return f.Replace(g.WithoutMember(user))
}

func (f *GroupFile) SetMembers(group string, members []string) error {
	g, ok := f.Find(group)
	if !ok {
		return fmt.Errorf("%w: %s", ErrGroupNotFound, group)
	}
	return f.Replace(g.WithMembers(members))
}

// RemoveMemberEverywhere drops user from every group and returns the names of
// the groups that changed.
func (f *GroupFile) RemoveMemberEverywhere(user string) []string {
	var changed []string
	for i := range f.pf.lines {
		e := f.pf.lines[i].entry
		if e == nil || !e.HasMember(user) {
			continue
		}
		ne := e.WithoutMember(user)
		f.pf.lines[i].entry = &ne
		changed = append(changed, ne.Name)
	}
	return changed
}

// Encode streams the snapshot through the codec, one Write per line.
func (f *GroupFile) Encode(w io.Writer) error {
	return f.pf.writeTo(w, "group", EncodeGroup)
}

func (f *GroupFile) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := f.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
