package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseYAMLOverDefaults(t *testing.T) {
	cfg, err := ParseYAML([]byte(`
kernelAffinity:
  - documentType: "notebook.*"
    provider: cellbook.builtin
languages: [python]
defaultCellHeight: 80
logEnabled: true
`))
	require.NoError(t, err)

	require.Len(t, cfg.KernelAffinity, 1)
	assert.Equal(t, "notebook.*", cfg.KernelAffinity[0].DocumentType)
	assert.Equal(t, "cellbook.builtin", cfg.KernelAffinity[0].Provider)
	assert.Equal(t, []string{"python"}, cfg.Languages)
	assert.Equal(t, 80, cfg.DefaultCellHeight)
	assert.Equal(t, 2, cfg.Overscan, "unset fields keep their defaults")
	assert.True(t, cfg.LogEnabled)
	assert.False(t, cfg.LogVerbose)
}

func TestParseYAMLClampsInvalidValues(t *testing.T) {
	cfg, err := ParseYAML([]byte("defaultCellHeight: -5\noverscan: -1\n"))
	require.NoError(t, err)
	assert.Equal(t, Default().DefaultCellHeight, cfg.DefaultCellHeight)
	assert.Equal(t, Default().Overscan, cfg.Overscan)
}

func TestParseYAMLRejectsGarbage(t *testing.T) {
	_, err := ParseYAML([]byte("languages: [unterminated"))
	assert.Error(t, err)
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cellbook.yaml")
	require.NoError(t, os.WriteFile(path, []byte("languages: [sh]\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"sh"}, cfg.Languages)
}
