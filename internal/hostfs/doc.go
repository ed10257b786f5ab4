// Package hostfs provides safe access helpers for the account database files.
//
// Paths are resolved under a root that defaults to "/" and can be moved to a
// bind mount such as /host when running in a container:
//
//	/etc/passwd  -> <root>/etc/passwd
//	/etc/shadow  -> <root>/etc/shadow
//	/etc/group   -> <root>/etc/group
//
// Writers hold the lckpwdf(3)-style lock on <root>/etc/.pwd.lock and replace a
// file by writing a temp file next to it and renaming it into place.
package hostfs
