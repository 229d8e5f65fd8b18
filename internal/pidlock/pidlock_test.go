package pidlock

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireReadRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trader.pid")

	require.NoError(t, Acquire(path))

	info, err := Read(path)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, os.Getpid(), info.PID)

	require.NoError(t, Release(path))

	info, err = Read(path)
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestAcquireRejectsWhileHeldByLiveProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trader.pid")

	require.NoError(t, Acquire(path))
	err := Acquire(path)
	assert.Error(t, err)
}

func TestReadMissingFileReturnsNilNil(t *testing.T) {
	info, err := Read(filepath.Join(t.TempDir(), "absent.pid"))
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestSignalWithNoRecordedProcessErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trader.pid")
	err := Signal(path, 0)
	assert.Error(t, err)
}
