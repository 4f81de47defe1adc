package pidfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pid")
	require.NoError(t, Write(path, 4242))

	pid, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)
}

func TestReadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pid")
	require.NoError(t, os.WriteFile(path, []byte("not-a-pid\n"), 0o644))

	_, err := Read(path)
	assert.Error(t, err)
}

func TestIsRunningSelf(t *testing.T) {
	assert.True(t, IsRunning(os.Getpid()))
}

func TestIsRunningBogusPID(t *testing.T) {
	// PID 2^30 is well outside any plausible live range.
	assert.False(t, IsRunning(1 << 30))
}

func TestReadRunningMissingFile(t *testing.T) {
	pid, running := ReadRunning(filepath.Join(t.TempDir(), "missing"))
	assert.Equal(t, 0, pid)
	assert.False(t, running)
}

func TestRemoveMissingIsNotError(t *testing.T) {
	assert.NoError(t, Remove(filepath.Join(t.TempDir(), "missing")))
}
