package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFile_AcquireRelease(t *testing.T) {
	// Given: a fresh PID file
	path := filepath.Join(t.TempDir(), "daemon.pid")
	p := NewPIDFile(path)

	// When: acquired
	require.NoError(t, p.Acquire())

	// Then: it records this process and a second holder is refused
	pid, err := p.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
	assert.True(t, p.IsRunning())
	assert.ErrorIs(t, NewPIDFile(path).Acquire(), ErrAlreadyRunning)

	// When: released, the file is gone and the lock is free
	require.NoError(t, p.Release())
	assert.NoFileExists(t, path)

	other := NewPIDFile(path)
	require.NoError(t, other.Acquire())
	require.NoError(t, other.Release())
}

func TestPIDFile_ReadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := NewPIDFile(filepath.Join(dir, "missing.pid")).Read()
	assert.ErrorIs(t, err, ErrPIDFileNotFound)

	bad := filepath.Join(dir, "bad.pid")
	require.NoError(t, os.WriteFile(bad, []byte("not-a-pid"), 0o644))
	_, err = NewPIDFile(bad).Read()
	assert.Error(t, err)
	assert.False(t, NewPIDFile(bad).IsRunning())
}

func TestPIDFile_StaleIsRemoved(t *testing.T) {
	// Given: a PID file naming a process that does not exist
	path := filepath.Join(t.TempDir(), "daemon.pid")
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(2147483000)), 0o644))
	p := NewPIDFile(path)

	// Then: it is not running and the file is cleaned up
	assert.False(t, p.IsRunning())
	assert.NoFileExists(t, path)
}

func TestPIDFile_RemoveMissing(t *testing.T) {
	assert.NoError(t, NewPIDFile(filepath.Join(t.TempDir(), "x.pid")).Remove())
}
