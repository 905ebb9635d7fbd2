package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	missing := filepath.Join(t.TempDir(), "missing.env")
	cfg, err := Load(missing)
	require.NoError(t, err)
	assert.Equal(t, missing, cfg.MissingEnvFile)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, StoreSQLite, cfg.StoreDriver)
	assert.Equal(t, "dados.db", cfg.StoreDSN)
	assert.Equal(t, DriverNone, cfg.RemoteDriver)
	assert.Equal(t, "main", cfg.Remote.Branch)
	assert.Equal(t, "admin", cfg.Admin.Username)
	assert.Equal(t, 12*time.Hour, cfg.SessionTTL)
}

func TestLoadSecretsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secrets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
github:
  token: tok
  repo: acme/data
  branch: prod
  file_path: data/dados.csv
admin:
  username: ops
  password_hash: $2a$10$abc
`), 0o600))

	clearEnv(t)
	t.Setenv("SECRETS_FILE", path)
	t.Setenv("GITHUB_BRANCH", "")
	t.Setenv("GITHUB_FILE_PATH_DRONES", "data/drones.csv")
	t.Setenv("SESSION_TTL", "30m")

	cfg, err := Load(filepath.Join(dir, "none.env"))
	require.NoError(t, err)

	assert.Equal(t, DriverGitHub, cfg.RemoteDriver)
	assert.Equal(t, "tok", cfg.Remote.Token)
	assert.Equal(t, "acme/data", cfg.Remote.Repo)
	assert.Equal(t, "prod", cfg.Remote.Branch)
	assert.Equal(t, map[string]string{
		"file_path":        "data/dados.csv",
		"file_path_drones": "data/drones.csv",
	}, cfg.Remote.Paths)
	assert.Equal(t, "ops", cfg.Admin.Username)
	assert.Equal(t, "$2a$10$abc", cfg.Admin.PasswordHash)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("HTTP_ADDR=:9090\n"), 0o600))
	os.Unsetenv("HTTP_ADDR")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.MissingEnvFile)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
}

func TestLoadRejectsUnknownDrivers(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_DRIVER", "mysql")
	_, err := Load(filepath.Join(t.TempDir(), "x.env"))
	assert.Error(t, err)

	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("STORE_DSN", "")
	_, err = Load(filepath.Join(t.TempDir(), "x.env"))
	assert.Error(t, err)

	t.Setenv("STORE_DRIVER", "")
	t.Setenv("REMOTE_DRIVER", "ftp")
	_, err = Load(filepath.Join(t.TempDir(), "x.env"))
	assert.Error(t, err)
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SECRETS_FILE", "STORE_DRIVER", "STORE_DSN", "REMOTE_DRIVER", "HTTP_ADDR",
		"GITHUB_TOKEN", "GITHUB_REPO", "GITHUB_BRANCH", "GITHUB_FILE_PATH", "GITHUB_FILE_PATH_DRONES",
		"S3_BUCKET", "ADMIN_USERNAME", "SESSION_TTL",
	} {
		t.Setenv(k, "")
	}
}
