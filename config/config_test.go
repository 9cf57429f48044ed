package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("JWT_SECRET", "  s3cret  ")
	t.Setenv("JWT_TTL", "2h")
	t.Setenv("DB_DRIVER", "SQLITE")
	t.Setenv("SQLITE_PATH", "/tmp/r.db")
	t.Setenv("STORAGE_BACKEND", "minio")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("STORAGE_PREFIX", "uploads")
	t.Setenv("MQ_BACKEND", "rabbitmq")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.ServerPort)
	require.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	require.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	require.Equal(t, DriverSQLite, cfg.Database.Driver)
	require.Equal(t, "/tmp/r.db", cfg.Database.SQLitePath)
	require.Equal(t, StorageMinio, cfg.Storage.Backend)
	require.True(t, cfg.Storage.Minio.UseSSL)
	require.Equal(t, "uploads", cfg.Storage.Prefix)
	require.Equal(t, MQRabbitMQ, cfg.MQ.Backend)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recipebox.yaml")
	content := `
server_port: 7000
auth:
  jwt_secret: from-file
  token_ttl: 30m
database:
  driver: mongo
  mongo_database: cookbook
storage:
  local_dir: /srv/images
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SERVER_PORT", "7001")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, 7001, cfg.ServerPort)
	require.Equal(t, "from-file", cfg.Auth.JWTSecret)
	require.Equal(t, 30*time.Minute, cfg.Auth.TokenTTL)
	require.Equal(t, DriverMongo, cfg.Database.Driver)
	require.Equal(t, "cookbook", cfg.Database.MongoDatabase)
	require.Equal(t, "/srv/images", cfg.Storage.LocalDir)
	require.Equal(t, int64(10<<20), cfg.Storage.MaxUploadBytes)
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.ErrorContains(t, cfg.Validate(), "JWT_SECRET is required")

	cfg.Auth.JWTSecret = "secret"
	require.NoError(t, cfg.Validate())

	cfg.Database.Driver = "oracle"
	cfg.MQ.Backend = "kafka"
	err := cfg.Validate()
	require.ErrorContains(t, err, `unknown DB_DRIVER "oracle"`)
	require.ErrorContains(t, err, `unknown MQ_BACKEND "kafka"`)
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("X_INT", "abc")
	require.Equal(t, 5, getEnvInt("X_INT", 5))

	t.Setenv("X_BOOL", "maybe")
	require.True(t, getEnvBool("X_BOOL", true))
	t.Setenv("X_BOOL", "off")
	require.False(t, getEnvBool("X_BOOL", true))

	t.Setenv("X_DUR", "soon")
	require.Equal(t, time.Minute, getEnvDuration("X_DUR", time.Minute))
}
