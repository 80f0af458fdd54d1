package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, "finance_planner.db", cfg.DB.Path)
	assert.Equal(t, 10, cfg.DB.MaxOpenConns)
	assert.Equal(t, 2, cfg.DB.MaxIdleConns)
	assert.Equal(t, 10*time.Minute, cfg.DB.ConnMaxIdleTime)
	assert.Equal(t, 30*time.Minute, cfg.DB.ConnMaxLifetime)
	assert.Equal(t, 30*time.Second, cfg.DB.AcquireTimeout)
	assert.Equal(t, 12, cfg.BcryptCost)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestParse_Overrides(t *testing.T) {
	t.Setenv("DB_PATH", "/tmp/other.db")
	t.Setenv("DB_MAX_OPEN_CONNS", "3")
	t.Setenv("DB_ACQUIRE_TIMEOUT", "5s")
	t.Setenv("BCRYPT_COST", "4")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/other.db", cfg.DB.Path)
	assert.Equal(t, 3, cfg.DB.MaxOpenConns)
	assert.Equal(t, 5*time.Second, cfg.DB.AcquireTimeout)
	assert.Equal(t, 4, cfg.BcryptCost)
}

func TestParse_InvalidValue(t *testing.T) {
	t.Setenv("DB_MAX_OPEN_CONNS", "lots")

	_, err := Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse environment")
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DB_PATH=from-dotenv.db\n"), 0o600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	// godotenv never overrides variables that are already set, so make sure
	// DB_PATH is unset for this test and restored afterwards.
	t.Setenv("DB_PATH", "")
	require.NoError(t, os.Unsetenv("DB_PATH"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv.db", cfg.DB.Path)
}

func TestLoad_NoDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	_, err = Load()
	assert.NoError(t, err)
}

func TestConfigureLogging(t *testing.T) {
	t.Cleanup(func() {
		logrus.SetLevel(logrus.InfoLevel)
		logrus.SetFormatter(&logrus.TextFormatter{})
		logrus.SetOutput(os.Stderr)
	})

	buf := new(bytes.Buffer)
	cfg := Config{LogLevel: "debug", LogFormat: "json"}
	require.NoError(t, cfg.ConfigureLogging(buf))

	logrus.WithField("user_id", 7).Debug("hello")
	assert.Contains(t, buf.String(), `"user_id":7`)
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	assert.Error(t, Config{LogLevel: "loud"}.ConfigureLogging(buf))
	assert.Error(t, Config{LogLevel: "info", LogFormat: "xml"}.ConfigureLogging(buf))
}
