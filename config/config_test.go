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
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Prompt.Count)
	assert.Equal(t, time.UTC.String(), cfg.Location().String())
	assert.Equal(t, 5*time.Second, cfg.Moderation.Timeout)
	assert.Equal(t, int64(2<<20), cfg.Storage.MaxImageBytes)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: "9000"
  timezone: Europe/Berlin
prompt:
  count: 2
  pool: ["🌞", "🌧", "🌈"]
moderation:
  api_key: key
  timeout: 2s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "Europe/Berlin", cfg.Location().String())
	assert.Equal(t, 2, cfg.Prompt.Count)
	assert.Len(t, cfg.Prompt.Pool, 3)
	assert.Equal(t, "key", cfg.Moderation.APIKey)
	assert.Equal(t, 2*time.Second, cfg.Moderation.Timeout)
	assert.Equal(t, "sqlite:app.db", cfg.Database.URL, "unset keys keep defaults")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Server.Timezone = "Mars/Olympus"
	cfg.Prompt.Count = 0
	cfg.Database.URL = "mysql://root@localhost/db"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid timezone")
	assert.Contains(t, err.Error(), "prompt.count")
	assert.Contains(t, err.Error(), "unsupported database url")
}

func TestValidatePoolTooSmall(t *testing.T) {
	cfg := Default()
	cfg.Prompt.Pool = []string{"🐱", "🐶"}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsRepeatedEmoji(t *testing.T) {
	cfg := Default()
	cfg.Prompt.Pool = []string{"🐶", "🐶", " 🐶 ", ""}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 distinct emoji")

	cfg = Default()
	cfg.Prompt.Pool = []string{"🐶", "🐱", "🐶", "🦊"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"🐶", "🐱", "🦊"}, cfg.Prompt.Pool)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"PORT":        "7070",
		"SECRET_KEY":  "s3cret",
		"DB_HOST":     "db",
		"DB_USER":     "app",
		"DB_PASSWORD": "pw",
		"DB_NAME":     "stories",
	}
	cfg := Default()
	cfg.applyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, "s3cret", cfg.Session.Secret)
	assert.False(t, cfg.UsesDefaultSecret())
	assert.Equal(t, "host=db user=app password=pw dbname=stories sslmode=disable", cfg.Database.URL)
	assert.Equal(t, []byte("s3cret"), cfg.JWTKey())
}

func TestParseDatabaseURL(t *testing.T) {
	cases := []struct {
		in     string
		driver string
		dsn    string
	}{
		{"postgres://u:p@localhost/db", DriverPostgres, "postgres://u:p@localhost/db"},
		{"host=db user=u", DriverPostgres, "host=db user=u"},
		{"sqlite:app.db", DriverSQLite, "app.db?_foreign_keys=on"},
		{"sqlite:///tmp/app.db?cache=shared", DriverSQLite, "/tmp/app.db?cache=shared&_foreign_keys=on"},
		{"sqlite:x.db?_foreign_keys=off", DriverSQLite, "x.db?_foreign_keys=off"},
	}
	for _, tc := range cases {
		driver, dsn, err := ParseDatabaseURL(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.driver, driver, tc.in)
		assert.Equal(t, tc.dsn, dsn, tc.in)
	}

	for _, bad := range []string{"", "sqlite:", "mongodb://x"} {
		_, _, err := ParseDatabaseURL(bad)
		assert.Error(t, err, bad)
	}
}

func TestInitDBMigratesSQLite(t *testing.T) {
	url := "sqlite:" + filepath.Join(t.TempDir(), "test.db")
	db, err := InitDB(url, nil)
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	for _, table := range []string{"users", "daily_emojis", "stories", "comments", "notifications", "google_accounts"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
}
