package pidfile

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "bot.pid")

	f, err := Write(path)
	require.NoError(t, err)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid())+"\n", string(raw))

	require.NoError(t, f.Remove())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// second remove is a no-op
	require.NoError(t, f.Remove())
}

func TestRemoveLeavesForeignPid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.pid")
	f, err := Write(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("999999999\n"), 0o644))

	require.NoError(t, f.Remove())
	_, err = os.Stat(path)
	assert.NoError(t, err)
}
