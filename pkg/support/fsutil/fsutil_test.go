package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.png", "a.png", ".hidden", "c.tif"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	files, err := ListFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.png"),
		filepath.Join(dir, "b.png"),
		filepath.Join(dir, "c.tif"),
	}, files)

	_, err = ListFiles(filepath.Join(dir, "missing"))
	require.Error(t, err)
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	assert.True(t, MustFileExists(dir))
	assert.False(t, MustFileExists(filepath.Join(dir, "nope")))
}

func TestReplaceTildeInDir(t *testing.T) {
	got, err := ReplaceTildeInDir("/abs/path")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path", got)

	got, err = ReplaceTildeInDir("~/data")
	require.NoError(t, err)
	assert.NotContains(t, got, "~")
	assert.Equal(t, got, MustReplaceTildeInDir("~/data"))
	assert.Panics(t, func() { MustReplaceTildeInDir("~no_such_user_xyz/data") })
}

func TestStem(t *testing.T) {
	assert.Equal(t, "austin1", Stem("/data/inria/images/austin1.tif"))
	assert.Equal(t, "noext", Stem("noext"))
}
