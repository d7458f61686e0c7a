package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoadMergesAndSubstitutes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
db:
  host: localhost
  port: 5432
  password: ${DB_SECRET}
ai:
  api_key: ${API_KEY_MISTRAL}
  timeout: 30s
pipeline:
  chunk_size: 10
  chunk_pause: 1s
`)
	writeFile(t, dir, "test.yaml", `
db:
  host: db.internal
pipeline:
  chunk_size: 25
`)
	writeFile(t, dir, "secrets.env", "DB_SECRET=\"s3cret\"\nAPI_KEY_MISTRAL=mk-123\n")

	cfg, err := Load("test", dir)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.DB.Host)
	assert.Equal(t, 5432, cfg.DB.Port)
	assert.Equal(t, "s3cret", cfg.DB.Password)
	assert.Equal(t, "mk-123", cfg.AI.APIKey)
	assert.Equal(t, 30*time.Second, cfg.AI.Timeout)
	assert.Equal(t, 25, cfg.Pipeline.ChunkSize)
	assert.Equal(t, time.Second, cfg.Pipeline.ChunkPause)
	// yaml 中没有的字段保留默认值
	assert.Equal(t, 30000, cfg.Pipeline.TokenLimit)
	assert.Equal(t, 5000, cfg.Pipeline.BodyTokenLimit)
	assert.Equal(t, "open-mistral-7b", cfg.AI.Model)
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "db:\n  host: localhost\nstore:\n  driver: postgres\n")
	t.Setenv("DB_HOST", "from-env")
	t.Setenv("STORE_DRIVER", "sqlite")

	cfg, err := Load("local", dir)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.DB.Host)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "store:\n  driver: mongo\n")

	_, err := Load("", dir)
	assert.Error(t, err)
}

func TestLoadMissingBase(t *testing.T) {
	_, err := Load("local", t.TempDir())
	assert.Error(t, err)
}

func TestLoadTypedEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "db:\n  port: 5432\n")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("REDIS_ADDR", "cache:6379")

	cfg, err := Load("", dir)
	require.NoError(t, err)
	assert.Equal(t, 6543, cfg.DB.Port)
	assert.True(t, cfg.OTel.Enabled)
	// yaml 中没有 redis 段时也能覆盖
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
}

func TestLoadRejectsInvalidEnvOverride(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "db:\n  port: 5432\n")
	t.Setenv("DB_PORT", "not-a-port")

	_, err := Load("", dir)
	assert.ErrorContains(t, err, "DB_PORT")
}

func TestLoadConfigSecretsPrecedence(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
jwt:
  secret: ${JWT_KEY}
tags:
  - ${REGION}-a
  - plain
`)
	writeFile(t, dir, "secrets.env", "JWT_KEY=from-file\n")
	t.Setenv("JWT_KEY", "from-process")
	t.Setenv("REGION", "eu")

	m, err := LoadConfig("missing-env", dir)
	require.NoError(t, err)
	assert.Equal(t, "from-file", m["jwt"].(map[string]any)["secret"])
	assert.Equal(t, []any{"eu-a", "plain"}, m["tags"])
}

func TestMergeMapsKeepsSiblings(t *testing.T) {
	base := map[string]any{"db": map[string]any{"host": "a", "port": 1}, "log": "x"}
	over := map[string]any{"db": map[string]any{"host": "b"}}

	got := mergeMaps(base, over)
	assert.Equal(t, map[string]any{"db": map[string]any{"host": "b", "port": 1}, "log": "x"}, got)
	// 输入不被修改
	assert.Equal(t, "a", base["db"].(map[string]any)["host"])
}
