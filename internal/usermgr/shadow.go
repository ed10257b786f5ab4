package usermgr

import (
	"bytes"
	"fmt"
	"io"

	"github.com/hnrobert/acctdb/internal/hostfs"
)

type ShadowFile struct {
	pf parsedFile[ShadowEntry]
}

func LoadShadow(path string) (*ShadowFile, error) {
	b, err := hostfs.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseShadow(bytes.NewReader(b))
}

func ParseShadow(r io.Reader) (*ShadowFile, error) {
	pf, err := parseFile(r, ParseShadowLine, ValidateShadow)
	if err != nil {
		return nil, err
	}
	return &ShadowFile{pf: pf}, nil
}

func (f *ShadowFile) Find(name string) (ShadowEntry, bool) {
	for _, e := range f.pf.entries() {
		if e.Name == name {
			return *e, true
		}
	}
	return ShadowEntry{}, false
}

func (f *ShadowFile) Add(e ShadowEntry) error {
	if err := ValidateShadow(e); err != nil {
		return err
	}
	if _, ok := f.Find(e.Name); ok {
		return fmt.Errorf("%w: shadow %s", ErrUserExists, e.Name)
	}
	f.pf.lines = append(f.pf.lines, rawLine[ShadowEntry]{entry: &e})
	return nil
}

func (f *ShadowFile) Delete(name string) bool {
	return f.pf.remove(func(e *ShadowEntry) bool { return e.Name == name })
}

func (f *ShadowFile) Encode(w io.Writer) error {
	return f.pf.writeTo(w, "shadow", EncodeShadow)
}

func (f *ShadowFile) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := f.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
