package usermgr

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var ErrInvalidField = errors.New("invalid field")

// FieldError reports a record field that cannot be written to its database.
// Index is the member position for member fields and -1 otherwise.
type FieldError struct {
	Record string
	Field  string
	Index  int
	Value  string
	Reason string
}

func (e *FieldError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("%s: %s[%d] %q: %s", e.Record, e.Field, e.Index, e.Value, e.Reason)
	}
	return fmt.Sprintf("%s: %s %q: %s", e.Record, e.Field, e.Value, e.Reason)
}

func (e *FieldError) Is(target error) bool { return target == ErrInvalidField }

var usernameRe = regexp.MustCompile(`^[a-z_][a-z0-9_-]{0,31}$`)

func validUsername(u string) bool {
	return usernameRe.MatchString(u)
}

func fieldErr(record, field string, index int, value, reason string) *FieldError {
	return &FieldError{Record: record, Field: field, Index: index, Value: value, Reason: reason}
}

// checkText rejects the field delimiter and the line terminator.
func checkText(record, field, v string) error {
	switch {
	case strings.ContainsRune(v, ':'):
		return fieldErr(record, field, -1, v, "contains ':'")
	case strings.ContainsRune(v, '\n'):
		return fieldErr(record, field, -1, v, "contains newline")
	}
	return nil
}

func checkName(record, v string) error {
	if v == "" {
		return fieldErr(record, "name", -1, v, "empty")
	}
	return checkText(record, "name", v)
}

func checkID(record, field string, id int) error {
	if id < 0 {
		return fieldErr(record, field, -1, strconv.Itoa(id), "negative")
	}
	return nil
}

// ValidateGroup checks the structural rules a group line depends on. GID
// uniqueness is left to the caller; duplicate members are allowed.
func ValidateGroup(e GroupEntry) error {
	const rec = "group"
	if err := checkName(rec, e.Name); err != nil {
		return err
	}
	if err := checkText(rec, "passwd", e.Passwd); err != nil {
		return err
	}
	if err := checkID(rec, "gid", e.GID); err != nil {
		return err
	}
	for i, m := range e.Members {
		switch {
		case m == "":
			return fieldErr(rec, "member", i, m, "empty")
		case strings.ContainsRune(m, ':'):
			return fieldErr(rec, "member", i, m, "contains ':'")
		case strings.ContainsRune(m, ','):
			return fieldErr(rec, "member", i, m, "contains ','")
		case strings.ContainsRune(m, '\n'):
			return fieldErr(rec, "member", i, m, "contains newline")
		}
	}
	return nil
}

func ValidatePasswd(e PasswdEntry) error {
	const rec = "passwd"
	if err := checkName(rec, e.Name); err != nil {
		return err
	}
	if err := checkID(rec, "uid", e.UID); err != nil {
		return err
	}
	if err := checkID(rec, "gid", e.GID); err != nil {
		return err
	}
	for _, f := range []struct{ name, v string }{
		{"passwd", e.Passwd},
		{"gecos", e.Gecos},
		{"home", e.Home},
		{"shell", e.Shell},
	} {
		if err := checkText(rec, f.name, f.v); err != nil {
			return err
		}
	}
	return nil
}

func ValidateShadow(e ShadowEntry) error {
	const rec = "shadow"
	if err := checkName(rec, e.Name); err != nil {
		return err
	}
	if err := checkText(rec, "hash", e.Hash); err != nil {
		return err
	}
	for _, f := range []struct{ name, v string }{
		{"lastchg", e.LastChange},
		{"min", e.Min},
		{"max", e.Max},
		{"warn", e.Warn},
		{"inactive", e.Inactive},
		{"expire", e.Expire},
	} {
		if f.v == "" {
			continue
		}
		if _, err := strconv.ParseInt(f.v, 10, 64); err != nil {
			return fieldErr(rec, f.name, -1, f.v, "not a number")
		}
	}
	return checkText(rec, "reserved", e.Reserved)
}
