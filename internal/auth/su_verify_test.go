package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSu prompts like su(1) and succeeds only for the password "s3cret".
const fakeSu = `#!/bin/sh
printf 'Password: '
read pw
[ "$pw" = "s3cret" ]
`

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func TestVerifyFallsBackToSu(t *testing.T) {
	bin := t.TempDir()
	writeScript(t, bin, "su", fakeSu)
	t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))

	v := newTestVerifier(t)
	v.NoSystemFallback = false
	v.SuTimeout = 5 * time.Second

	assert.NoError(t, v.Verify("dave", "s3cret"))
	assert.ErrorIs(t, v.Verify("dave", "wrong"), ErrInvalidCredentials)
}

func TestVerifyWithSuBackendFailures(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing binary", func(t *testing.T) {
		v := &Verifier{SuPath: filepath.Join(dir, "no-such-su")}
		ok, err := v.verifyWithSu("dave", "s3cret")
		assert.False(t, ok)
		assert.ErrorIs(t, err, ErrAuthBackend)
	})

	t.Run("timeout", func(t *testing.T) {
		v := &Verifier{
			SuPath:    writeScript(t, dir, "slow-su", "#!/bin/sh\nexec sleep 5\n"),
			SuTimeout: 200 * time.Millisecond,
		}
		start := time.Now()
		ok, err := v.verifyWithSu("dave", "s3cret")
		assert.False(t, ok)
		assert.ErrorIs(t, err, ErrAuthBackend)
		assert.Less(t, time.Since(start), 4*time.Second)
	})

	t.Run("empty username", func(t *testing.T) {
		v := &Verifier{SuPath: writeScript(t, dir, "never-su", "#!/bin/sh\nexit 0\n")}
		ok, err := v.verifyWithSu(" ", "s3cret")
		assert.False(t, ok)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}
