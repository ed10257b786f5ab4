// Package usermgr reads and rewrites the passwd, shadow and group databases.
//
// Each database is loaded into a snapshot that keeps comments, blank lines and
// lines it cannot parse exactly as they were. Entries go back out through the
// codec in codec.go: every field is validated before a byte is produced and
// each line reaches the sink as a single write, so a rejected or failed record
// never leaves half a line behind.
//
// Manager ties a snapshot to the files under the configured root and runs each
// change as one locked, atomic rewrite.
package usermgr
