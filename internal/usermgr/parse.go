package usermgr

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

type rawLine[T any] struct {
	raw   string
	entry *T
}

type parsedFile[T any] struct {
	lines []rawLine[T]
}

func (pf *parsedFile[T]) entries() []*T {
	out := make([]*T, 0, len(pf.lines))
	for i := range pf.lines {
		if pf.lines[i].entry != nil {
			out = append(out, pf.lines[i].entry)
		}
	}
	return out
}

// replace swaps the first entry matching pred for e.
func (pf *parsedFile[T]) replace(pred func(*T) bool, e T) bool {
	for i := range pf.lines {
		if pf.lines[i].entry != nil && pred(pf.lines[i].entry) {
			pf.lines[i].entry = &e
			return true
		}
	}
	return false
}

// remove drops every entry matching pred, keeping raw lines in place.
func (pf *parsedFile[T]) remove(pred func(*T) bool) bool {
	var nl []rawLine[T]
	changed := false
	for _, ln := range pf.lines {
		if ln.entry != nil && pred(ln.entry) {
			changed = true
			continue
		}
		nl = append(nl, ln)
	}
	if changed {
		pf.lines = nl
	}
	return changed
}

func (pf *parsedFile[T]) writeTo(w io.Writer, record string, enc func(io.Writer, T) error) error {
	for _, ln := range pf.lines {
		if ln.entry != nil {
			if err := enc(w, *ln.entry); err != nil {
				return err
			}
			continue
		}
		if err := writeRaw(w, record, ln.raw); err != nil {
			return err
		}
	}
	return nil
}

// parseFile splits r into lines. Lines that parse rejects with
// ErrMalformedLine or that validate refuses are kept verbatim, like blanks and
// comments.
func parseFile[T any](r io.Reader, parse func(string) (T, error), validate func(T) error) (parsedFile[T], error) {
	var pf parsedFile[T]
	lines, err := readLines(r)
	if err != nil {
		return pf, err
	}
	for _, line := range lines {
		trim := strings.TrimSpace(line)
		if trim == "" || strings.HasPrefix(trim, "#") {
			pf.lines = append(pf.lines, rawLine[T]{raw: line})
			continue
		}
		e, err := parse(line)
		if errors.Is(err, ErrMalformedLine) {
			// Preserve unknown line as-is.
			pf.lines = append(pf.lines, rawLine[T]{raw: line})
			continue
		}
		if err != nil {
			return pf, err
		}
		if validate(e) != nil {
			pf.lines = append(pf.lines, rawLine[T]{raw: line})
			continue
		}
		pf.lines = append(pf.lines, rawLine[T]{entry: &e})
	}
	return pf, nil
}

// ErrMalformedLine is returned by the Parse*Line functions for a line with the
// wrong number of fields. File loading keeps such lines verbatim.
var ErrMalformedLine = errors.New("malformed line")

func parseColonLine(line string) []string {
	// Keep trailing empty fields.
	return strings.Split(line, ":")
}

func readLines(r io.Reader) ([]string, error) {
	s := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	s.Buffer(buf, 1024*1024)
	var lines []string
	for s.Scan() {
		lines = append(lines, s.Text())
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func atoi(field, ctx string) (int, error) {
	n, err := strconv.Atoi(field)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid int %q in %s: %w", ErrMalformedLine, field, ctx, err)
	}
	return n, nil
}

// ParseGroupLine parses one group line without its terminator. An empty member
// field yields a nil member list.
func ParseGroupLine(line string) (GroupEntry, error) {
	parts := parseColonLine(line)
	if len(parts) != 4 {
		return GroupEntry{}, ErrMalformedLine
	}
	gid, err := atoi(parts[2], "group.gid")
	if err != nil {
		return GroupEntry{}, err
	}
	var members []string
	if parts[3] != "" {
		members = strings.Split(parts[3], ",")
	}
	return GroupEntry{Name: parts[0], Passwd: parts[1], GID: gid, Members: members}, nil
}

func ParsePasswdLine(line string) (PasswdEntry, error) {
	parts := parseColonLine(line)
	if len(parts) != 7 {
		return PasswdEntry{}, ErrMalformedLine
	}
	uid, err := atoi(parts[2], "passwd.uid")
	if err != nil {
		return PasswdEntry{}, err
	}
	gid, err := atoi(parts[3], "passwd.gid")
	if err != nil {
		return PasswdEntry{}, err
	}
	return PasswdEntry{
		Name:   parts[0],
		Passwd: parts[1],
		UID:    uid,
		GID:    gid,
		Gecos:  parts[4],
		Home:   parts[5],
		Shell:  parts[6],
	}, nil
}

// ParseShadowLine accepts short lines and pads the missing aging fields.
func ParseShadowLine(line string) (ShadowEntry, error) {
	parts := parseColonLine(line)
	if len(parts) < 2 || len(parts) > 9 {
		return ShadowEntry{}, ErrMalformedLine
	}
	for len(parts) < 9 {
		parts = append(parts, "")
	}
	return ShadowEntry{
		Name:       parts[0],
		Hash:       parts[1],
		LastChange: parts[2],
		Min:        parts[3],
		Max:        parts[4],
		Warn:       parts[5],
		Inactive:   parts[6],
		Expire:     parts[7],
		Reserved:   parts[8],
	}, nil
}
