package engine

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) GameConfig {
	t.Helper()

	return GameConfig{
		ExePath: filepath.Join(t.TempDir(), "hl2.exe"),
		GameDir: t.TempDir(),
	}
}

func TestNewGeneratesSessionArtifacts(t *testing.T) {
	cfg := testConfig(t)

	g, err := New(cfg)
	require.NoError(t, err)

	assert.NotEmpty(t, g.Token())
	assert.Equal(t, "srcexec-"+g.Token()+".log", g.LogName())
	assert.Equal(t, filepath.Join(cfg.GameDir, g.LogName()), g.LogFile().Path())
	assert.False(t, g.Hijacked())
	assert.Nil(t, g.Process())

	// Another controller gets its own token.
	other, err := New(cfg)
	require.NoError(t, err)
	assert.NotEqual(t, g.Token(), other.Token())
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(GameConfig{ExePath: "/games/hl2.exe"})
	assert.ErrorContains(t, err, "game_dir is required")
}

func TestNewCleansStaleLogs(t *testing.T) {
	cfg := testConfig(t)

	stale := filepath.Join(cfg.GameDir, "srcexec-deadbeef.log")
	unrelated := filepath.Join(cfg.GameDir, "console.log")
	require.NoError(t, os.WriteFile(stale, []byte("old session\n"), 0o644))
	require.NoError(t, os.WriteFile(unrelated, []byte("not ours\n"), 0o644))

	_, err := New(cfg)
	require.NoError(t, err)

	assert.NoFileExists(t, stale)
	assert.FileExists(t, unrelated)
}

func TestRunWithoutProcessFails(t *testing.T) {
	g, err := New(testConfig(t))
	require.NoError(t, err)

	_, err = g.Run(t.Context(), "status")
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestQuitIsIdempotent(t *testing.T) {
	g, err := New(testConfig(t))
	require.NoError(t, err)

	require.NoError(t, g.Quit(t.Context()))
	require.NoError(t, g.Quit(t.Context()))
}

func TestLaunchReusesRunningInstance(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on copying a unix sleep binary")
	}

	sleepBin, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("no sleep binary available")
	}

	dir := t.TempDir()

	// A uniquely named copy of sleep stands in for the game, so the
	// process-table lookup cannot collide with anything else.
	exeName := fmt.Sprintf("sxt%d", os.Getpid()%100000)
	exePath := filepath.Join(dir, exeName)

	data, err := os.ReadFile(sleepBin)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(exePath, data, 0o755))

	running := exec.Command(exePath, "60")
	require.NoError(t, running.Start())

	t.Cleanup(func() {
		_ = running.Process.Kill()
		_ = running.Wait()
	})

	g, err := New(GameConfig{ExePath: exePath, GameDir: dir})
	require.NoError(t, err)

	// An instance is already up: Launch must attach to it instead of
	// spawning a duplicate, and only re-assert the log redirection.
	require.NoError(t, g.Launch(t.Context()))

	assert.True(t, g.Hijacked())
	require.NotNil(t, g.Process())
	assert.Equal(t, int32(running.Process.Pid), g.Process().Pid)
}

func TestSessionTokenShape(t *testing.T) {
	token := sessionToken()

	assert.Len(t, token, 12)
	assert.NotContains(t, token, "-")
	assert.Equal(t, strings.ToLower(token), token)
}
