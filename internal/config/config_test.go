package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad_DefaultsApplyWhenUnset(t *testing.T) {
	cfg := Load()
	assert.Equal(t, 500, cfg.Chunk.ChunkSize)
	assert.Equal(t, 50, cfg.Chunk.ChunkOverlap)
	assert.Equal(t, 5, cfg.Search.DefaultLimit)
	assert.Equal(t, 20, cfg.Search.MaxLimit)
	assert.Equal(t, 0.30, cfg.Search.MinSearchScore)
	assert.Equal(t, 0.7, cfg.Chat.DefaultTemperature)
	assert.Equal(t, 3, cfg.Query.MaxQueries)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	os.Setenv("CHUNK_SIZE", "800")
	os.Setenv("MIN_SEARCH_SCORE", "0.5")
	os.Setenv("QUERY_EXPANSION_ENABLED", "false")
	t.Cleanup(func() {
		os.Unsetenv("CHUNK_SIZE")
		os.Unsetenv("MIN_SEARCH_SCORE")
		os.Unsetenv("QUERY_EXPANSION_ENABLED")
	})

	cfg := Load()
	assert.Equal(t, 800, cfg.Chunk.ChunkSize)
	assert.Equal(t, 0.5, cfg.Search.MinSearchScore)
	assert.False(t, cfg.Query.ExpansionEnabled)
}
