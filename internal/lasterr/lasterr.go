// Package lasterr turns the native per-call failure code (errno) into an
// explicit value.
//
// libc reports why a call failed through a thread-local register that the next
// call may overwrite. Go already hands errno back as a syscall.Errno inside the
// returned error; this package pulls it out at the call site and keeps it with
// the error so nothing later has to read ambient state.
package lasterr

import (
	"errors"
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// Code is a native failure code captured right after a failing platform call.
type Code uint32

// None means the failure carried no native cause.
const None Code = 0

// Errno returns the code as a unix.Errno.
func (c Code) Errno() unix.Errno {
	return unix.Errno(c)
}

func (c Code) String() string {
	if c == None {
		return "none"
	}
	if name := unix.ErrnoName(c.Errno()); name != "" {
		return name
	}
	return fmt.Sprintf("errno %d", uint32(c))
}

// Capture extracts the raw native code from err. It walks the wrap chain, so
// *os.PathError, *os.SyscallError and *Failure all work. It does not interpret
// the code and returns None when err carries no errno.
func Capture(err error) Code {
	if err == nil {
		return None
	}
	var f *Failure
	if errors.As(err, &f) {
		return f.Code
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return Code(errno)
	}
	return None
}

// Failure is a platform call error with its native code already captured.
type Failure struct {
	Op   string
	Code Code
	Err  error
}

func (f *Failure) Error() string {
	if f.Code == None {
		return fmt.Sprintf("%s: %v", f.Op, f.Err)
	}
	return fmt.Sprintf("%s: %v (%s)", f.Op, f.Err, f.Code)
}

func (f *Failure) Unwrap() error { return f.Err }

// Is matches a bare errno target against the captured code, so
// errors.Is(err, unix.ENOSPC) holds even when Err is a plain error.
func (f *Failure) Is(target error) bool {
	var errno syscall.Errno
	if errors.As(target, &errno) {
		return f.Code != None && syscall.Errno(f.Code) == errno
	}
	return false
}

// Wrap captures the code of err immediately and returns it as a *Failure.
// A nil err yields nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Failure{Op: op, Code: Capture(err), Err: err}
}

// Call runs fn on a fresh Frame and returns its failure with the code already
// captured, or nil. Nothing can run between fn and the capture.
func Call(op string, fn func() error) error {
	var f Frame
	if f.Invoke(fn) {
		return nil
	}
	return &Failure{Op: op, Code: f.Capture(), Err: f.err}
}
