package userconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectedEnvironment_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvConfigDir, dir)

	name, err := GetSelectedEnvironment()
	require.NoError(t, err)
	assert.Empty(t, name)

	require.NoError(t, SetSelectedEnvironment("staging"))

	name, err = GetSelectedEnvironment()
	require.NoError(t, err)
	assert.Equal(t, "staging", name)

	info, err := os.Stat(filepath.Join(dir, configFileName))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestLoad_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvConfigDir, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte("{"), 0600))

	_, err := Load()
	assert.ErrorContains(t, err, "failed to parse user config file")
}
