package configs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanfind/internal/config"
)

func TestConfigTemplate_LoadsAsDefaults(t *testing.T) {
	// Given: the template written as a config file
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(ConfigTemplate), 0o644))

	// When: it is loaded
	cfg, err := config.Load(path)

	// Then: it parses, validates and matches the built-in defaults
	require.NoError(t, err)
	assert.Equal(t, config.SourceFile, cfg.Source)

	def := config.NewConfig()
	assert.Equal(t, def.Embeddings.Provider, cfg.Embeddings.Provider)
	assert.Equal(t, def.Chunking, cfg.Chunking)
	assert.Equal(t, def.Index.ExcludePatterns, cfg.Index.ExcludePatterns)
	assert.Equal(t, def.Search.RRFK, cfg.Search.RRFK)
	assert.Equal(t, def.Search.Telemetry, cfg.Search.Telemetry)
	assert.Equal(t, def.DataDir, cfg.DataDir)
	assert.Equal(t, config.DefaultContainer, cfg.ActiveContainer)
}
