package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fhirq/cli/internal/errors"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"FHIRQ_PAGE_SIZE", "FHIRQ_PROJECT", "FHIRQ_CACHE_BACKEND", "FHIRQ_TIMEOUT", "FHIRQ_LOG_LEVEL", "FHIRQ_ACCOUNT"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	c, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultLogLevel, c.LogLevel)
	assert.Equal(t, DefaultPageSize, c.PageSize)
	assert.Equal(t, DefaultTimeout, c.Timeout)
	assert.Equal(t, "file", c.Cache.Backend)
	assert.Empty(t, c.Project)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	in := Config{
		Environment: "dev",
		Account:     "acme",
		Project:     "p-1",
		LogLevel:    "debug",
		PageSize:    500,
		Timeout:     45 * time.Second,
		Cache:       CacheConfig{Backend: "sqlite", Dir: "/tmp/fhirq"},
	}
	require.NoError(t, Save(path, in))

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())

	out, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("project: from-file\npage_size: 200\n"), 0o600))
	t.Setenv("FHIRQ_PROJECT", "from-env")
	t.Setenv("FHIRQ_CACHE_BACKEND", "none")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", c.Project)
	assert.Equal(t, 200, c.PageSize)
	assert.Equal(t, "none", c.Cache.Backend)
}

func TestLoadRejectsInvalid(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("page_size: 0\n"), 0o600))
	_, err := Load(path)
	assert.True(t, errors.IsKind(err, errors.Config))
}

func TestSetAndGet(t *testing.T) {
	c := Config{LogLevel: "info", PageSize: 10, Timeout: time.Second, Cache: CacheConfig{Backend: "file"}}

	tests := []struct {
		key     string
		value   string
		want    string
		wantErr bool
	}{
		{key: "project", value: " p2 ", want: "p2"},
		{key: "page_size", value: "250", want: "250"},
		{key: "page_size", value: "abc", wantErr: true},
		{key: "page_size", value: "20000", wantErr: true},
		{key: "timeout", value: "1m", want: "1m0s"},
		{key: "log_level", value: "DEBUG", want: "debug"},
		{key: "log_level", value: "loud", wantErr: true},
		{key: "cache.backend", value: "sqlite", want: "sqlite"},
		{key: "cache.backend", value: "redis", wantErr: true},
		{key: "colour", value: "blue", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			cc := c
			err := cc.Set(tt.key, tt.value)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Set(%s, %s) succeeded, want error", tt.key, tt.value)
				}
				return
			}
			require.NoError(t, err)
			got, err := cc.Get(tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCacheDir(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	dir, err := Config{}.CacheDir()
	require.NoError(t, err)
	assert.Equal(t, "results", filepath.Base(dir))

	dir, err = Config{Cache: CacheConfig{Dir: "/x"}}.CacheDir()
	require.NoError(t, err)
	assert.Equal(t, "/x", dir)
}
