package usermgr

import (
	"bytes"
	"fmt"
	"io"

	"github.com/hnrobert/acctdb/internal/hostfs"
)

type PasswdFile struct {
	pf parsedFile[PasswdEntry]
}

func LoadPasswd(path string) (*PasswdFile, error) {
	b, err := hostfs.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParsePasswd(bytes.NewReader(b))
}

func ParsePasswd(r io.Reader) (*PasswdFile, error) {
	pf, err := parseFile(r, ParsePasswdLine, ValidatePasswd)
	if err != nil {
		return nil, err
	}
	return &PasswdFile{pf: pf}, nil
}

func (f *PasswdFile) Find(name string) (PasswdEntry, bool) {
	for _, e := range f.pf.entries() {
		if e.Name == name {
			return *e, true
		}
	}
	return PasswdEntry{}, false
}

func (f *PasswdFile) FindByUID(uid int) (PasswdEntry, bool) {
	for _, e := range f.pf.entries() {
		if e.UID == uid {
			return *e, true
		}
	}
	return PasswdEntry{}, false
}

func (f *PasswdFile) List() []PasswdEntry {
	out := make([]PasswdEntry, 0)
	for _, e := range f.pf.entries() {
		out = append(out, *e)
	}
	return out
}

func (f *PasswdFile) Delete(name string) bool {
	return f.pf.remove(func(e *PasswdEntry) bool { return e.Name == name })
}

func (f *PasswdFile) Add(e PasswdEntry) error {
	if err := ValidatePasswd(e); err != nil {
		return err
	}
	if _, ok := f.Find(e.Name); ok {
		return fmt.Errorf("%w: %s", ErrUserExists, e.Name)
	}
	f.pf.lines = append(f.pf.lines, rawLine[PasswdEntry]{entry: &e})
	return nil
}

func (f *PasswdFile) Replace(e PasswdEntry) error {
	if err := ValidatePasswd(e); err != nil {
		return err
	}
	if !f.pf.replace(func(p *PasswdEntry) bool { return p.Name == e.Name }, e) {
		return fmt.Errorf("%w: %s", ErrUserNotFound, e.Name)
	}
	return nil
}

func (f *PasswdFile) NextUID(min int) int {
	max := min - 1
	for _, e := range f.pf.entries() {
		if e.UID > max {
			max = e.UID
		}
	}
	return max + 1
}

func (f *PasswdFile) Encode(w io.Writer) error {
	return f.pf.writeTo(w, "passwd", EncodePasswd)
}

func (f *PasswdFile) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := f.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
