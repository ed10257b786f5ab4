package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/creack/pty"

	"github.com/hnrobert/acctdb/internal/lasterr"
)

var ErrAuthBackend = errors.New("auth backend error")

const (
	defaultSuPath    = "su"
	defaultSuTimeout = 6 * time.Second
)

func (v *Verifier) suPath() string {
	if v.SuPath != "" {
		return v.SuPath
	}
	return defaultSuPath
}

func (v *Verifier) suTimeout() time.Duration {
	if v.SuTimeout > 0 {
		return v.SuTimeout
	}
	return defaultSuTimeout
}

// verifyWithSu asks su(1) to run `true` as username. su reads the password
// from its controlling terminal only, so it runs under a pty and the password
// is typed after the first prompt.
func (v *Verifier) verifyWithSu(username, password string) (bool, error) {
	if strings.TrimSpace(username) == "" {
		return false, ErrInvalidCredentials
	}
	bin := v.suPath()

	ctx, cancel := context.WithTimeout(context.Background(), v.suTimeout())
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, "-s", "/bin/sh", "-c", "true", username)
	tty, err := pty.Start(cmd)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrAuthBackend, lasterr.Wrap("start "+bin, err))
	}

	answered := make(chan struct{})
	go func() {
		defer close(answered)
		answerPrompt(tty, password)
	}()

	err = cmd.Wait()
	_ = tty.Close()
	<-answered

	var exit *exec.ExitError
	switch {
	case ctx.Err() != nil:
		return false, fmt.Errorf("%w: %s timed out", ErrAuthBackend, bin)
	case err == nil:
		return true, nil
	case errors.As(err, &exit):
		return false, nil
	}
	return false, fmt.Errorf("%w: %w", ErrAuthBackend, lasterr.Wrap("wait "+bin, err))
}

// answerPrompt reads the terminal until it closes and writes password once,
// after the first "password" prompt.
func answerPrompt(tty *os.File, password string) {
	var seen bytes.Buffer
	buf := make([]byte, 4096)
	prompted := false
	for {
		n, err := tty.Read(buf)
		if n > 0 && !prompted {
			seen.Write(buf[:n])
			if strings.Contains(strings.ToLower(seen.String()), "password") {
				prompted = true
				_, _ = io.WriteString(tty, password+"\n")
			}
		}
		if err != nil {
			return
		}
	}
}
