package hostfs

// Well-known host file locations.
const (
	EtcPasswdRel = "etc/passwd"
	EtcShadowRel = "etc/shadow"
	EtcGroupRel  = "etc/group"
	EtcDirRel    = "etc"

	// LockFileName is the lock file shared with shadow-utils (lckpwdf).
	LockFileName = ".pwd.lock"
)
