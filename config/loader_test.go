// 配置加载器与默认配置测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- 默认配置测试 ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// 验证服务器默认值
	assert.Equal(t, 5005, cfg.Server.HTTPPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.True(t, cfg.Server.MetricsEnabled)

	// 验证数据库默认值
	assert.Equal(t, "benchduo.db", cfg.Database.Path)
	assert.Equal(t, 4, cfg.Database.MaxOpenConns)

	// 验证连接器默认值
	assert.Equal(t, 2*time.Minute, cfg.Connector.Timeout)
	assert.Equal(t, 3*time.Second, cfg.Connector.DetectTimeout)

	// 验证 Log 默认值
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	// 不指定配置文件，应该返回默认值
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 5005, cfg.Server.HTTPPort)
	assert.Equal(t, "benchduo.db", cfg.Database.Path)
}

func TestLoader_LoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  http_port: 6006
  metrics_enabled: false
database:
  path: "/tmp/test.db"
connector:
  timeout: 45s
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 6006, cfg.Server.HTTPPort)
	assert.False(t, cfg.Server.MetricsEnabled)
	assert.Equal(t, "/tmp/test.db", cfg.Database.Path)
	assert.Equal(t, 45*time.Second, cfg.Connector.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	// 未覆盖的字段保留默认值
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 5005, cfg.Server.HTTPPort)
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Setenv("BENCHDUO_SERVER_HTTP_PORT", "7007")
	t.Setenv("BENCHDUO_DATABASE_PATH", ":memory:")
	t.Setenv("BENCHDUO_CONNECTOR_TIMEOUT", "90s")
	t.Setenv("BENCHDUO_LOG_OUTPUT_PATHS", "stdout, stderr")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7007, cfg.Server.HTTPPort)
	assert.Equal(t, ":memory:", cfg.Database.Path)
	assert.Equal(t, 90*time.Second, cfg.Connector.Timeout)
	assert.Equal(t, []string{"stdout", "stderr"}, cfg.Log.OutputPaths)
}

func TestLoader_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  http_port: 6006\n"), 0o644))

	t.Setenv("BENCHDUO_SERVER_HTTP_PORT", "7007")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 7007, cfg.Server.HTTPPort)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("BENCHDUO_SERVER_HTTP_PORT", "not-a-number")

	_, err := NewLoader().Load()
	assert.Error(t, err)
}

func TestLoader_CustomPrefix(t *testing.T) {
	t.Setenv("BD_SERVER_HTTP_PORT", "8008")

	cfg, err := NewLoader().WithEnvPrefix("BD").Load()
	require.NoError(t, err)
	assert.Equal(t, 8008, cfg.Server.HTTPPort)
}

func TestLoader_Validator(t *testing.T) {
	_, err := NewLoader().
		WithValidator(func(c *Config) error { return assert.AnError }).
		Load()
	assert.Error(t, err)
}

// --- Validate 测试 ---

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())

	cfg.Server.HTTPPort = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Database.Path = ""
	assert.Error(t, cfg.Validate())
}
