package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	viper.Reset()
	t.Chdir(t.TempDir())

	used, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, used)

	wd, _ := os.Getwd()
	assert.Equal(t, filepath.Join(wd, ".lv", "objects"), viper.GetString("storage.path"))
	assert.Equal(t, "sha1", viper.GetString("storage.hash"))
	assert.Equal(t, "sqlite", viper.GetString("catalog.driver"))
	assert.Equal(t, 4096, viper.GetInt("cache.headers"))
}

func TestLoad_FileAndEnv(t *testing.T) {
	viper.Reset()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("storage:\n  hash: sha256\n  verify: true\nlog:\n  level: debug\n"), 0o644))

	t.Setenv("LV_CATALOG_DRIVER", "none")

	used, err := Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, cfgPath, used)

	assert.Equal(t, "sha256", viper.GetString("storage.hash"))
	assert.True(t, viper.GetBool("storage.verify"))
	assert.Equal(t, "debug", viper.GetString("log.level"))
	assert.Equal(t, "none", viper.GetString("catalog.driver"), "环境变量覆盖默认值")
}

func TestLoad_BadFile(t *testing.T) {
	viper.Reset()
	cfgPath := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("storage: [unclosed"), 0o644))

	_, err := Load(cfgPath)
	assert.Error(t, err)
}
