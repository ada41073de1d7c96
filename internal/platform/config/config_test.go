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
	t.Setenv("AUTH_SKIP_AUTH", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "be-proc-approvals", cfg.Service.Name)
	assert.Equal(t, 8086, cfg.Server.Port)
	assert.Equal(t, 9086, cfg.Server.GRPCPort)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, int32(10), cfg.Database.MaxConns)
	assert.Equal(t, 48*time.Hour, cfg.Reminder.PendingAfter)
	assert.Equal(t, "notifications.procurement", cfg.NATS.SubjectPrefix)
	assert.True(t, cfg.Auth.SkipAuth)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "s3cret")
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("DATABASE_DRIVER", "memory")
	t.Setenv("REMINDER_SCHEDULE", "@hourly")
	t.Setenv("REMINDER_PENDING_AFTER", "2h")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, "@hourly", cfg.Reminder.Schedule)
	assert.Equal(t, 2*time.Hour, cfg.Reminder.PendingAfter)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
auth:
  jwt_secret: from-file
database:
  driver: memory
log:
  level: debug
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Auth.JWTSecret)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadRequiresSecret(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.jwt_secret")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: 8086, GRPCPort: 9086},
			Database: DatabaseConfig{Driver: "memory"},
			Auth:     AuthConfig{JWTSecret: "x"},
		}
	}

	tests := []struct {
		name          string
		mutate        func(c *Config)
		errorContains string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"same ports", func(c *Config) { c.Server.GRPCPort = 8086 }, "must differ"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "unsupported database.driver"},
		{"postgres without host", func(c *Config) { c.Database.Driver = "postgres" }, "database.host"},
		{"pool bounds", func(c *Config) {
			c.Database = DatabaseConfig{Driver: "postgres", Host: "db", Database: "p", MinConns: 5, MaxConns: 2}
		}, "min_conns"},
		{"reminder threshold", func(c *Config) { c.Reminder.Schedule = "@daily" }, "pending_after"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.errorContains == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorContains)
		})
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{User: "app", Password: "p@ss", Host: "db", Port: 5432, Database: "procurement", SSLMode: "disable"}
	assert.Equal(t, "postgres://app:p%40ss@db:5432/procurement?sslmode=disable", d.DSN())
}
