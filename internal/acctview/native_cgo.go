//go:build cgo && linux

package acctview

/*
#include <grp.h>
#include <pwd.h>
#include <shadow.h>
#include <stdlib.h>
#include <string.h>
#include <sys/types.h>
#include <unistd.h>

static size_t pw_buf_size(void) {
	long n = sysconf(_SC_GETPW_R_SIZE_MAX);
	return n > 0 ? (size_t)n : 1024;
}

static size_t gr_buf_size(void) {
	long n = sysconf(_SC_GETGR_R_SIZE_MAX);
	return n > 0 ? (size_t)n : 1024;
}
*/
import "C"

import (
	"errors"
	"fmt"
	"syscall"
	"unsafe"

	"github.com/hnrobert/acctdb/internal/lasterr"
)

const maxNativeBuf = 1 << 20

// NativeLookup queries the C library (and so NSS) with the reentrant
// get*_r functions. Each result is copied into an owned value before the C
// buffer is freed.
type NativeLookup struct{}

func NewNativeLookup() (*NativeLookup, error) {
	return &NativeLookup{}, nil
}

// withBuffer calls fn with a C buffer, doubling it while fn reports ERANGE.
// fn must copy whatever it needs out of buf before returning.
func withBuffer(op string, initial C.size_t, fn func(buf *C.char, size C.size_t) C.int) error {
	size := initial
	for {
		buf := C.malloc(size)
		if buf == nil {
			return lasterr.Wrap(op, syscall.ENOMEM)
		}
		err := lasterr.Call(op, func() error {
			if rv := fn((*C.char)(buf), size); rv != 0 {
				return syscall.Errno(rv)
			}
			return nil
		})
		C.free(buf)
		if err == nil || !errors.Is(err, syscall.ERANGE) || size >= maxNativeBuf {
			return err
		}
		size *= 2
	}
}

// goString copies at most max+1 bytes so an oversize field is detected by the
// constructor without scanning unbounded memory.
func goString(p *C.char, max int) string {
	if p == nil {
		return ""
	}
	n := C.strnlen(p, C.size_t(max+1))
	return C.GoStringN(p, C.int(n))
}

func passwdFromC(pw *C.struct_passwd) (*Passwd, error) {
	return NewPasswd(PasswdFields{
		Name:   goString(pw.pw_name, MaxNameLen),
		Passwd: goString(pw.pw_passwd, MaxHashLen),
		UID:    uint32(pw.pw_uid),
		GID:    uint32(pw.pw_gid),
		Gecos:  goString(pw.pw_gecos, MaxGecosLen),
		Home:   goString(pw.pw_dir, MaxPathLen),
		Shell:  goString(pw.pw_shell, MaxPathLen),
	})
}

func groupFromC(gr *C.struct_group) (*Group, error) {
	var members []string
	if mem := gr.gr_mem; mem != nil {
		for i := 0; ; i++ {
			if i > MaxMemberList {
				return nil, fmt.Errorf("%w: member list", ErrFieldTooLong)
			}
			p := *(**C.char)(unsafe.Add(unsafe.Pointer(mem), uintptr(i)*unsafe.Sizeof(*mem)))
			if p == nil {
				break
			}
			members = append(members, goString(p, MaxNameLen))
		}
	}
	return NewGroup(GroupFields{
		Name:    goString(gr.gr_name, MaxNameLen),
		Passwd:  goString(gr.gr_passwd, MaxHashLen),
		GID:     uint32(gr.gr_gid),
		Members: members,
	})
}

func shadowFromC(sp *C.struct_spwd) (*Shadow, error) {
	return NewShadow(ShadowFields{
		Name:       goString(sp.sp_namp, MaxNameLen),
		Hash:       goString(sp.sp_pwdp, MaxHashLen),
		LastChange: int64(sp.sp_lstchg),
		Min:        int64(sp.sp_min),
		Max:        int64(sp.sp_max),
		Warn:       int64(sp.sp_warn),
		Inactive:   int64(sp.sp_inact),
		Expire:     int64(sp.sp_expire),
	})
}

// notFound folds the "no such entry" codes some NSS modules return into
// ErrNotFound.
func notFound(err error, what string) error {
	if errors.Is(err, syscall.ENOENT) || errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return err
}

func (NativeLookup) UserByName(name string) (*Passwd, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	var out *Passwd
	var cerr error
	err := withBuffer("getpwnam_r", C.pw_buf_size(), func(buf *C.char, size C.size_t) C.int {
		var pwd C.struct_passwd
		var result *C.struct_passwd
		rv := C.getpwnam_r(cname, &pwd, buf, size, &result)
		if rv == 0 && result != nil {
			out, cerr = passwdFromC(result)
		}
		return rv
	})
	if err != nil {
		return nil, notFound(err, "user "+name)
	}
	if cerr != nil {
		return nil, cerr
	}
	if out == nil {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, name)
	}
	return out, nil
}

func (NativeLookup) UserByID(uid uint32) (*Passwd, error) {
	var out *Passwd
	var cerr error
	err := withBuffer("getpwuid_r", C.pw_buf_size(), func(buf *C.char, size C.size_t) C.int {
		var pwd C.struct_passwd
		var result *C.struct_passwd
		rv := C.getpwuid_r(C.uid_t(uid), &pwd, buf, size, &result)
		if rv == 0 && result != nil {
			out, cerr = passwdFromC(result)
		}
		return rv
	})
	what := fmt.Sprintf("uid %d", uid)
	if err != nil {
		return nil, notFound(err, what)
	}
	if cerr != nil {
		return nil, cerr
	}
	if out == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return out, nil
}

func (NativeLookup) ShadowByName(name string) (*Shadow, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	var out *Shadow
	var cerr error
	err := withBuffer("getspnam_r", 1024, func(buf *C.char, size C.size_t) C.int {
		var spw C.struct_spwd
		var result *C.struct_spwd
		rv := C.getspnam_r(cname, &spw, buf, size, &result)
		if rv == 0 && result != nil {
			out, cerr = shadowFromC(result)
		}
		return rv
	})
	if err != nil {
		return nil, notFound(err, "shadow "+name)
	}
	if cerr != nil {
		return nil, cerr
	}
	if out == nil {
		return nil, fmt.Errorf("%w: shadow %s", ErrNotFound, name)
	}
	return out, nil
}

func (NativeLookup) GroupByName(name string) (*Group, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	var out *Group
	var cerr error
	err := withBuffer("getgrnam_r", C.gr_buf_size(), func(buf *C.char, size C.size_t) C.int {
		var grp C.struct_group
		var result *C.struct_group
		rv := C.getgrnam_r(cname, &grp, buf, size, &result)
		if rv == 0 && result != nil {
			out, cerr = groupFromC(result)
		}
		return rv
	})
	if err != nil {
		return nil, notFound(err, "group "+name)
	}
	if cerr != nil {
		return nil, cerr
	}
	if out == nil {
		return nil, fmt.Errorf("%w: group %s", ErrNotFound, name)
	}
	return out, nil
}

func (NativeLookup) GroupByID(gid uint32) (*Group, error) {
	var out *Group
	var cerr error
	err := withBuffer("getgrgid_r", C.gr_buf_size(), func(buf *C.char, size C.size_t) C.int {
		var grp C.struct_group
		var result *C.struct_group
		rv := C.getgrgid_r(C.gid_t(gid), &grp, buf, size, &result)
		if rv == 0 && result != nil {
			out, cerr = groupFromC(result)
		}
		return rv
	})
	what := fmt.Sprintf("gid %d", gid)
	if err != nil {
		return nil, notFound(err, what)
	}
	if cerr != nil {
		return nil, cerr
	}
	if out == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return out, nil
}
