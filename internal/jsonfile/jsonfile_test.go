package jsonfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rec struct {
	ID     string `json:"id"`
	Values []int  `json:"values"`
}

func TestWriteRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "a.json")

	require.NoError(t, Write(path, rec{ID: "a", Values: []int{1, 2}}))
	require.NoError(t, Write(path, rec{ID: "a", Values: []int{3}}))

	var got rec
	require.NoError(t, Read(path, &got))
	assert.Equal(t, rec{ID: "a", Values: []int{3}}, got)

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestGlob(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.json", "a.json", "_skip.json", "a.json.tmp", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.json"), 0o755))

	got, err := Glob(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.json"), filepath.Join(dir, "b.json")}, got)

	got, err = Glob(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, got)
}
