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

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 1000, cfg.Query.MaxRows)
	assert.Equal(t, 20, cfg.Schema.MaxTables)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: postgres
  host: db.internal
  name: sales
  user: reporter
  password: hunter2
llm:
  provider: openai
  model: gpt-4o
server:
  port: 9090
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Untouched keys keep their defaults.
	assert.Equal(t, 1000, cfg.Query.MaxRows)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("BIFLOW_DATABASE_DRIVER", "mysql")
	t.Setenv("BIFLOW_LLM_API_KEY", "sk-test")
	t.Setenv("BIFLOW_QUERY_MAX_ROWS", "50")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 50, cfg.Query.MaxRows)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Database: DatabaseConfig{Driver: "sqlite", Path: "test.db"},
			LLM:      LLMConfig{Provider: "anthropic", APIKey: "sk-test"},
		}
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})

	t.Run("missing api key", func(t *testing.T) {
		cfg := base()
		cfg.LLM.APIKey = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("mock provider needs no key", func(t *testing.T) {
		cfg := base()
		cfg.LLM = LLMConfig{Provider: "mock"}
		assert.NoError(t, cfg.Validate())
	})

	t.Run("unsupported driver", func(t *testing.T) {
		cfg := base()
		cfg.Database.Driver = "oracle"
		assert.Error(t, cfg.Validate())
	})

	t.Run("postgres requires credentials", func(t *testing.T) {
		cfg := base()
		cfg.Database = DatabaseConfig{Driver: "postgres", Host: "db", Name: "sales"}
		assert.Error(t, cfg.Validate())
	})

	t.Run("sqlite requires a path", func(t *testing.T) {
		cfg := base()
		cfg.Database.Path = ""
		assert.Error(t, cfg.Validate())
	})
}

func TestDSN(t *testing.T) {
	t.Run("sqlite", func(t *testing.T) {
		c := DatabaseConfig{Driver: "sqlite", Path: "/var/lib/biflow.db"}
		dsn, err := c.DSN()
		require.NoError(t, err)
		assert.Equal(t, "/var/lib/biflow.db", dsn)
	})

	t.Run("mysql", func(t *testing.T) {
		c := DatabaseConfig{Driver: "mysql", Host: "db", Name: "sales", User: "reporter", Password: "hunter2"}
		dsn, err := c.DSN()
		require.NoError(t, err)
		assert.Equal(t, "reporter:hunter2@tcp(db:3306)/sales?parseTime=true", dsn)
	})

	t.Run("postgres", func(t *testing.T) {
		c := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5433, Name: "sales", User: "reporter", Password: "hunter2"}
		dsn, err := c.DSN()
		require.NoError(t, err)
		assert.Equal(t, "host=db port=5433 dbname=sales user=reporter password=hunter2 sslmode=verify-full", dsn)
	})

	t.Run("postgres trusting server certificate", func(t *testing.T) {
		c := DatabaseConfig{Driver: "postgres", Host: "db", Name: "sales", User: "reporter", TrustServerCertificate: true}
		dsn, err := c.DSN()
		require.NoError(t, err)
		assert.Contains(t, dsn, "sslmode=require")
		assert.Contains(t, dsn, "port=5432")
	})

	t.Run("unsupported", func(t *testing.T) {
		c := DatabaseConfig{Driver: "oracle"}
		_, err := c.DSN()
		assert.Error(t, err)
	})
}
