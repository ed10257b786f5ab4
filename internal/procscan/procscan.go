// Package procscan finds the processes owned by a user by walking /proc.
package procscan

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/hnrobert/acctdb/internal/lasterr"
)

// Process is one live process as seen in /proc/<pid>/status.
type Process struct {
	PID  int
	UID  int
	Name string
	// RSS is the resident set size in bytes.
	RSS uint64
}

type Scanner struct {
	ProcRoot string
}

func New(procRoot string) *Scanner {
	if procRoot == "" {
		procRoot = "/proc"
	}
	return &Scanner{ProcRoot: procRoot}
}

// List returns every readable process, sorted by PID. Processes that exit
// while the scan runs are skipped.
func (s *Scanner) List() ([]Process, error) {
	ents, err := os.ReadDir(s.ProcRoot)
	if err != nil {
		return nil, lasterr.Wrap("read "+s.ProcRoot, err)
	}
	var out []Process
	for _, ent := range ents {
		if !ent.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(ent.Name())
		if err != nil {
			continue
		}
		b, err := os.ReadFile(filepath.Join(s.ProcRoot, ent.Name(), "status"))
		if err != nil {
			continue
		}
		p, ok := parseStatus(pid, string(b))
		if !ok {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out, nil
}

// OwnedBy returns the processes whose real UID is uid.
func (s *Scanner) OwnedBy(uid int) ([]Process, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	var out []Process
	for _, p := range all {
		if p.UID == uid {
			out = append(out, p)
		}
	}
	return out, nil
}

// PIDsOf is OwnedBy reduced to process IDs.
func (s *Scanner) PIDsOf(uid int) ([]int, error) {
	procs, err := s.OwnedBy(uid)
	if err != nil {
		return nil, err
	}
	pids := make([]int, 0, len(procs))
	for _, p := range procs {
		pids = append(pids, p.PID)
	}
	return pids, nil
}

func parseStatus(pid int, status string) (Process, bool) {
	p := Process{PID: pid, UID: -1}
	for _, ln := range strings.Split(status, "\n") {
		switch {
		case strings.HasPrefix(ln, "Name:"):
			p.Name = strings.TrimSpace(strings.TrimPrefix(ln, "Name:"))
		case strings.HasPrefix(ln, "Uid:"):
			f := strings.Fields(ln)
			if len(f) >= 2 {
				if uid, err := strconv.Atoi(f[1]); err == nil {
					p.UID = uid
				}
			}
		case strings.HasPrefix(ln, "VmRSS:"):
			f := strings.Fields(ln)
			if len(f) >= 2 {
				v, _ := strconv.ParseUint(f[1], 10, 64)
				p.RSS = v * 1024
			}
		}
	}
	return p, p.UID >= 0
}
