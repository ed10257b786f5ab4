package usermgr

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/hnrobert/acctdb/internal/lasterr"
)

var ErrWriteFailed = errors.New("write failed")

// WriteError reports a sink that did not accept a full encoded line. Code is
// the native cause captured at the failing write (None for a short write).
type WriteError struct {
	Record string
	Code   lasterr.Code
	Err    error
}

func (e *WriteError) Error() string {
	if e.Code == lasterr.None {
		return fmt.Sprintf("%s: write failed: %v", e.Record, e.Err)
	}
	return fmt.Sprintf("%s: write failed: %v (%s)", e.Record, e.Err, e.Code)
}

func (e *WriteError) Unwrap() error { return e.Err }

func (e *WriteError) Is(target error) bool { return target == ErrWriteFailed }

// writeLine hands line to w as a single write request. The caller has already
// validated every field, so w either gets the whole line or a failure is
// reported; it never sees a field-by-field prefix.
func writeLine(w io.Writer, record string, line []byte) error {
	err := lasterr.Call("write "+record, func() error {
		n, err := w.Write(line)
		if err != nil {
			return err
		}
		if n != len(line) {
			return io.ErrShortWrite
		}
		return nil
	})
	if err == nil {
		return nil
	}
	var f *lasterr.Failure
	if errors.As(err, &f) {
		return &WriteError{Record: record, Code: f.Code, Err: f.Err}
	}
	return &WriteError{Record: record, Err: err}
}

// AppendGroup appends the canonical line for e, newline included.
func AppendGroup(dst []byte, e GroupEntry) ([]byte, error) {
	if err := ValidateGroup(e); err != nil {
		return dst, err
	}
	dst = append(dst, e.Name...)
	dst = append(dst, ':')
	dst = append(dst, e.Passwd...)
	dst = append(dst, ':')
	dst = strconv.AppendInt(dst, int64(e.GID), 10)
	dst = append(dst, ':')
	for i, m := range e.Members {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = append(dst, m...)
	}
	return append(dst, '\n'), nil
}

// EncodeGroup writes e as "name:passwd:gid:m1,...,mN\n" with one Write call.
// Invalid records fail with a *FieldError before w sees any byte.
func EncodeGroup(w io.Writer, e GroupEntry) error {
	line, err := AppendGroup(nil, e)
	if err != nil {
		return err
	}
	return writeLine(w, "group", line)
}

func AppendPasswd(dst []byte, e PasswdEntry) ([]byte, error) {
	if err := ValidatePasswd(e); err != nil {
		return dst, err
	}
	dst = append(dst, e.Name...)
	dst = append(dst, ':')
	dst = append(dst, e.Passwd...)
	dst = append(dst, ':')
	dst = strconv.AppendInt(dst, int64(e.UID), 10)
	dst = append(dst, ':')
	dst = strconv.AppendInt(dst, int64(e.GID), 10)
	dst = append(dst, ':')
	dst = append(dst, e.Gecos...)
	dst = append(dst, ':')
	dst = append(dst, e.Home...)
	dst = append(dst, ':')
	dst = append(dst, e.Shell...)
	return append(dst, '\n'), nil
}

func EncodePasswd(w io.Writer, e PasswdEntry) error {
	line, err := AppendPasswd(nil, e)
	if err != nil {
		return err
	}
	return writeLine(w, "passwd", line)
}

func AppendShadow(dst []byte, e ShadowEntry) ([]byte, error) {
	if err := ValidateShadow(e); err != nil {
		return dst, err
	}
	for i, f := range []string{
		e.Name, e.Hash, e.LastChange, e.Min, e.Max, e.Warn, e.Inactive, e.Expire, e.Reserved,
	} {
		if i > 0 {
			dst = append(dst, ':')
		}
		dst = append(dst, f...)
	}
	return append(dst, '\n'), nil
}

func EncodeShadow(w io.Writer, e ShadowEntry) error {
	line, err := AppendShadow(nil, e)
	if err != nil {
		return err
	}
	return writeLine(w, "shadow", line)
}

// writeRaw copies a preserved line (comment, blank, unparsed) back out.
func writeRaw(w io.Writer, record, raw string) error {
	line := make([]byte, 0, len(raw)+1)
	line = append(line, raw...)
	line = append(line, '\n')
	return writeLine(w, record, line)
}
