// Package auth checks a password against the account databases.
//
// Hashes in the common crypt(3) formats are verified in process. Formats the
// crypt library cannot handle (yescrypt, bcrypt, scrypt) are handed to su(1)
// running under a pseudo-terminal, which only works against the live host
// databases, not an alternate root.
package auth
