package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"), nil)
	require.NoError(t, err)

	assert.False(t, cfg.IgnoreMtime)
	assert.False(t, cfg.UseChecksum)
	assert.False(t, cfg.SimulateOnly)
	assert.Equal(t, "adler32", cfg.ChecksumAlgorithm)
	assert.Equal(t, WalkerSequential, cfg.Walker)
	assert.Empty(t, cfg.Exclude)

	expr, err := cfg.FilterExpression()
	require.NoError(t, err)
	assert.Nil(t, expr)
}

func TestLoad_Layers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
use_checksum: true
checksum_algorithm: blake3
walker: fast
workers: 8
exclude:
  - '/\.git$'
  - '\.part$'
filter: Size > 0
link_rate: 100
`), 0o600))

	t.Setenv("HARDUP_WORKERS", "2")
	t.Setenv("HARDUP_IGNORE_MTIME", "true")

	cfg, err := Load(path, map[string]interface{}{
		"simulate_only": true,
		"link_rate":     5,
	})
	require.NoError(t, err)

	assert.True(t, cfg.UseChecksum)
	assert.Equal(t, "blake3", cfg.ChecksumAlgorithm)
	assert.Equal(t, WalkerFast, cfg.Walker)
	assert.Equal(t, 2, cfg.Workers)
	assert.True(t, cfg.IgnoreMtime)
	assert.True(t, cfg.SimulateOnly)
	assert.Equal(t, 5, cfg.LinkRate)
	assert.Equal(t, []string{`/\.git$`, `\.part$`}, cfg.Exclude)

	h, err := cfg.Hasher()
	require.NoError(t, err)
	assert.Equal(t, "blake3", h.Name())

	patterns, err := cfg.ExcludePatterns()
	require.NoError(t, err)
	assert.Len(t, patterns, 2)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]interface{}
	}{
		{"algorithm", map[string]interface{}{"checksum_algorithm": "md5"}},
		{"walker", map[string]interface{}{"walker": "random"}},
		{"workers", map[string]interface{}{"workers": -1}},
		{"link rate", map[string]interface{}{"link_rate": -3}},
		{"exclude", map[string]interface{}{"exclude": []string{"("}}},
		{"filter", map[string]interface{}{"filter": "Size >"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load("", tt.overrides)
			assert.Error(t, err)
		})
	}
}

func TestLoad_BrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("walker: [unterminated"), 0o600))

	_, err := Load(path, nil)
	assert.Error(t, err)
}
