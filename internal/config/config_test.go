package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storm-platform/storm-go/internal/config"
)

func TestDefault(t *testing.T) {
	cfg := config.Default("https://storm.example.org/api")
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "https://storm.example.org/api", cfg.Service.URL)
	assert.Equal(t, time.Minute, cfg.Service.Timeout)
	assert.Equal(t, 4, cfg.Downloads.Concurrency)
	assert.True(t, cfg.Downloads.ValidateChecksum)
	assert.Zero(t, cfg.Search.CacheSize)
}

func TestFromYAMLValidates(t *testing.T) {
	cases := map[string]string{
		"missing url":  "service:\n  token: abc\n",
		"relative url": "service:\n  url: /api\n",
		"bad scheme":   "service:\n  url: ftp://storm.example.org\n",
		"negative":     "service:\n  url: https://storm.example.org\nsearch:\n  cache_size: -1\n",
		"invalid yaml": "service: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.FromYAML([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestWriteAndLoad(t *testing.T) {
	dir := t.TempDir()

	cfg, err := config.LoadOptional(dir)
	require.NoError(t, err)
	assert.Nil(t, cfg)
	_, err = config.Load(dir)
	require.Error(t, err)

	cfg = config.Default("http://localhost:5000/api")
	cfg.Service.Token = "secret"
	cfg.Project.ID = "p1"
	require.NoError(t, cfg.Write(dir))

	info, err := os.Stat(config.Path(dir))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "secret", loaded.Service.Token)
	assert.Equal(t, "p1", loaded.Project.ID)
	assert.Equal(t, time.Minute, loaded.Service.Timeout)
}
