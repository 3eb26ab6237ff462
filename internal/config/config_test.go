package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LISTEN_ADDR", "CACHE_DIR", "MAX_SIZE", "ENTRY_MAX_SIZE",
		"ENTRY_TTL", "ENABLE_LOGGING", "SCHEMA_VERSION",
	} {
		old, had := os.LookupEnv(key)
		os.Unsetenv(key)
		t.Cleanup(func() {
			if had {
				os.Setenv(key, old)
			}
		})
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8090", cfg.ListenAddr)
	assert.Equal(t, "cache", cfg.CacheDir)
	assert.EqualValues(t, 10<<30, cfg.MaxSize)
	assert.EqualValues(t, 1, cfg.SchemaVersion)
}

func TestLoadRejectsEmptyCacheDir(t *testing.T) {
	clearEnv(t)
	t.Setenv("CACHE_DIR", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsZeroSchemaVersion(t *testing.T) {
	clearEnv(t)
	t.Setenv("SCHEMA_VERSION", "0")

	_, err := Load()
	assert.Error(t, err)
}

func TestByteSizeUnmarshalText(t *testing.T) {
	var b ByteSize
	require.NoError(t, b.UnmarshalText([]byte("2MB")))
	assert.EqualValues(t, 2<<20, b)
}
