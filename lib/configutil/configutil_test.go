package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestReadConfigMergesLocalOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.json5"), []byte(`{name: "base", count: 1}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.local.json5"), []byte(`{count: 2}`), 0o644))

	config, err := ReadConfig[testConfig](filepath.Join(dir, "app.json5"))
	require.NoError(t, err)
	require.Equal(t, "base", config.Name)
	require.Equal(t, 2, config.Count)
}

// callers distinguish a missing config from a broken one with
// os.IsNotExist, an optional config must report the plain sentinel
func TestReadConfigMissingReportsNotExist(t *testing.T) {
	_, err := ReadConfig[testConfig](filepath.Join(t.TempDir(), "app.json5"))
	require.True(t, os.IsNotExist(err))
}
