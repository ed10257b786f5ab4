package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/GehirnInc/crypt"
	"github.com/GehirnInc/crypt/md5_crypt"
	"github.com/GehirnInc/crypt/sha256_crypt"
	"github.com/GehirnInc/crypt/sha512_crypt"

	"github.com/hnrobert/acctdb/internal/acctview"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserLocked         = errors.New("user is locked")
	ErrUnsupportedHash    = errors.New("unsupported password hash")
)

type Verifier struct {
	Lookup acctview.Lookup
	// NoSystemFallback disables the su(1) fallback for unsupported hashes.
	NoSystemFallback bool
	// SuPath is the su binary, looked up in PATH when bare. Default "su".
	SuPath    string
	SuTimeout time.Duration
}

func NewVerifier(l acctview.Lookup) *Verifier {
	return &Verifier{Lookup: l}
}

// Verify returns nil when password matches the stored hash of username.
func (v *Verifier) Verify(username, password string) error {
	sh, err := v.Lookup.ShadowByName(username)
	if errors.Is(err, acctview.ErrNotFound) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return err
	}
	locked, err := sh.Locked()
	if err != nil {
		return err
	}
	if locked {
		return ErrUserLocked
	}
	hash, err := sh.Hash()
	if err != nil {
		return err
	}

	ok, err := verifyCrypt(hash, password)
	if errors.Is(err, ErrUnsupportedHash) {
		if v.NoSystemFallback {
			return err
		}
		ok, err = v.verifyWithSu(username, password)
	}
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCredentials
	}
	return nil
}

func crypterFor(hash string) crypt.Crypter {
	switch {
	case strings.HasPrefix(hash, "$6$"):
		return sha512_crypt.New()
	case strings.HasPrefix(hash, "$5$"):
		return sha256_crypt.New()
	case strings.HasPrefix(hash, "$1$"):
		return md5_crypt.New()
	}
	return nil
}

func verifyCrypt(hash, password string) (bool, error) {
	if c := crypterFor(hash); c != nil {
		return c.Verify(hash, []byte(password)) == nil, nil
	}
	// Ubuntu and Debian default to yescrypt ($y$).
	if strings.HasPrefix(hash, "$y$") || strings.HasPrefix(hash, "$7$") || strings.HasPrefix(hash, "$2") {
		return false, ErrUnsupportedHash
	}
	return false, nil
}

func HumanAuthError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid username or password."
	case errors.Is(err, ErrUserLocked):
		return "This account is locked."
	case errors.Is(err, ErrUnsupportedHash):
		return "This host uses a password hash format that cannot be checked here."
	case errors.Is(err, ErrAuthBackend):
		return "System authentication is unavailable."
	default:
		return fmt.Sprintf("Authentication failed: %v", err)
	}
}
