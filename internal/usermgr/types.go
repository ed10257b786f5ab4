package usermgr

import "slices"

type PasswdEntry struct {
	Name   string
	Passwd string
	UID    int
	GID    int
	Gecos  string
	Home   string
	Shell  string
}

type ShadowEntry struct {
	Name       string
	Hash       string
	LastChange string
	Min        string
	Max        string
	Warn       string
	Inactive   string
	Expire     string
	Reserved   string
}

// GroupEntry is one line of the group database. Treat it as a value: the
// helpers below return modified copies and never touch the receiver's slice.
type GroupEntry struct {
	Name    string
	Passwd  string
	GID     int
	Members []string
}

// WithMembers returns a copy of e with the member list replaced.
func (e GroupEntry) WithMembers(members []string) GroupEntry {
	e.Members = slices.Clone(members)
	return e
}

// WithMember returns a copy of e with user appended, unless already present.
func (e GroupEntry) WithMember(user string) GroupEntry {
	if e.HasMember(user) {
		return e.WithMembers(e.Members)
	}
	out := make([]string, 0, len(e.Members)+1)
	out = append(out, e.Members...)
	out = append(out, user)
	e.Members = out
	return e
}

// WithoutMember returns a copy of e with every occurrence of user dropped.
func (e GroupEntry) WithoutMember(user string) GroupEntry {
	var out []string
	for _, m := range e.Members {
		if m != user {
			out = append(out, m)
		}
	}
	e.Members = out
	return e
}

func (e GroupEntry) HasMember(user string) bool {
	return slices.Contains(e.Members, user)
}
