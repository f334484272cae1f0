package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"PORT", "FOLDER_PATH", "REDIS_HOST", "REDIS_PORT", "DB_HOST", "DB_PORT", "DB_DATABASE"} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.BasicConfig.ServerAddress)
	assert.Equal(t, "sqlite3", cfg.BasicConfig.DBType)
	assert.Equal(t, 24, cfg.BasicConfig.SessionTTLHours)
	assert.True(t, cfg.BasicConfig.EmbeddedWorkers)
	assert.Equal(t, 1, cfg.BasicConfig.MinWorkers)
	assert.Equal(t, 4, cfg.BasicConfig.MaxWorkers)
	assert.Equal(t, "files_manager.db", cfg.Databases["sqlite3"].DSN)
	assert.Equal(t, "127.0.0.1", cfg.Redis.Host)
	assert.Equal(t, 6379, cfg.Redis.Port)
	assert.Equal(t, "fs", cfg.Storage.Backend)
	assert.Equal(t, "/tmp/files_manager", cfg.Storage.FolderPath)
}

func TestLoadFileResolvesSqlitePath(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `{
		"basic_config": {"server_address": ":9000", "max_workers": 8},
		"databases": {"sqlite3": {"dsn": "data/files.db"}},
		"storage": {"folder_path": "/srv/blobs"}
	}`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.BasicConfig.ServerAddress)
	assert.Equal(t, 8, cfg.BasicConfig.MaxWorkers)
	assert.Equal(t, 1, cfg.BasicConfig.MinWorkers, "defaults fill missing keys")
	assert.Equal(t, filepath.Join(filepath.Dir(path), "data/files.db"), cfg.Databases["sqlite3"].DSN)
	assert.Equal(t, "/srv/blobs", cfg.Storage.FolderPath)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("FOLDER_PATH", "/data/files")
	t.Setenv("PORT", "8080")
	t.Setenv("REDIS_HOST", "cache.internal")
	t.Setenv("FILES_MANAGER_BASIC_CONFIG_MAX_WORKERS", "12")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/data/files", cfg.Storage.FolderPath)
	assert.Equal(t, ":8080", cfg.BasicConfig.ServerAddress)
	assert.Equal(t, "cache.internal", cfg.Redis.Host)
	assert.Equal(t, 12, cfg.BasicConfig.MaxWorkers)
}

func TestLoadLegacyDatabaseEnv(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `{
		"basic_config": {"db_type": "mysql"},
		"databases": {"mysql": {"host": "localhost", "port": 3306, "db_name": "files"}}
	}`)
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_DATABASE", "files_manager")

	cfg, err := Load(path)
	require.NoError(t, err)
	mysql := cfg.Databases["mysql"]
	assert.Equal(t, "db.internal", mysql.Host)
	assert.Equal(t, 3306, mysql.Port)
	assert.Equal(t, "files_manager", mysql.DBName)
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err, "an explicit path must exist")

	_, err = Load(writeConfig(t, `{not json`))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, `{"storage": {"backend": "s3"}}`))
	assert.Error(t, err, "s3 needs a bucket")
}
