package am

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDigest = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

func TestLoad_Defaults(t *testing.T) {
	// Isolated viper instance, no user or system config
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "autonomy.db", cfg.Database.Path)
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.CompletionDelay())
	assert.Equal(t, 100, cfg.Pulse.MaxRunning)
	assert.Equal(t, time.Second, cfg.TickerInterval())
	assert.Equal(t, 20, cfg.Pulse.HistoryDefaultLimit)
	assert.Equal(t, 100, cfg.Pulse.HistoryMaxLimit)
	assert.False(t, cfg.Auth.Enabled)
	assert.Empty(t, cfg.Auth.APIKeys)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		v := viper.New()
		SetDefaults(v)
		cfg, err := LoadWithViper(v)
		require.NoError(t, err)
		return *cfg
	}
	key := APIKeyConfig{ID: "ops", KeySHA256: testDigest, Permissions: []string{"jobs:read"}}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"memory driver", func(c *Config) { c.Database.Driver = DriverMemory }, ""},
		{"unknown driver", func(c *Config) { c.Database.Driver = "postgres" }, "database.driver"},
		{"negative port", func(c *Config) { c.Server.Port = -1 }, "server.port"},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"zero delay is valid", func(c *Config) { c.Pulse.CompletionDelayMs = 0 }, ""},
		{"negative delay", func(c *Config) { c.Pulse.CompletionDelayMs = -5 }, "completion_delay_ms"},
		{"zero max running is unbounded", func(c *Config) { c.Pulse.MaxRunning = 0 }, ""},
		{"negative max running", func(c *Config) { c.Pulse.MaxRunning = -1 }, "max_running"},
		{"zero ticker interval disables ticker", func(c *Config) { c.Pulse.TickerIntervalSeconds = 0 }, ""},
		{"negative ticker interval", func(c *Config) { c.Pulse.TickerIntervalSeconds = -1 }, "ticker_interval_seconds"},
		{"default above max", func(c *Config) { c.Pulse.HistoryDefaultLimit = 500 }, "history_default_limit"},
		{"negative rate limit", func(c *Config) { c.Server.RateLimitPerMinute = -1 }, "rate_limit_per_minute"},
		{"auth without keys", func(c *Config) { c.Auth.Enabled = true }, "auth.enabled"},
		{"auth with key", func(c *Config) {
			c.Auth.Enabled = true
			c.Auth.APIKeys = []APIKeyConfig{key}
		}, ""},
		{"key without id", func(c *Config) {
			k := key
			k.ID = ""
			c.Auth.APIKeys = []APIKeyConfig{k}
		}, ".id cannot be empty"},
		{"duplicate key id", func(c *Config) { c.Auth.APIKeys = []APIKeyConfig{key, key} }, "duplicated"},
		{"bad digest", func(c *Config) {
			k := key
			k.KeySHA256 = "not-hex"
			c.Auth.APIKeys = []APIKeyConfig{k}
		}, "key_sha256"},
		{"key without permissions", func(c *Config) {
			k := key
			k.Permissions = nil
			c.Auth.APIKeys = []APIKeyConfig{k}
		}, "no permissions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromFile_APIKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")
	content := `
[database]
driver = "memory"

[pulse]
completion_delay_ms = 250

[auth]
enabled = true

[[auth.api_keys]]
id = "scheduler"
key_sha256 = "` + testDigest + `"
permissions = ["schedules:write", "schedules:read"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), DefaultFilePermissions))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, 250*time.Millisecond, cfg.CompletionDelay())
	assert.Equal(t, 100, cfg.Pulse.MaxRunning, "unset keys keep defaults")
	require.Len(t, cfg.Auth.APIKeys, 1)
	assert.Equal(t, "scheduler", cfg.Auth.APIKeys[0].ID)
	assert.Equal(t, []string{"schedules:write", "schedules:read"}, cfg.Auth.APIKeys[0].Permissions)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile_Missing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoad_Cascade(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	home := t.TempDir()
	userDir := filepath.Join(home, ".autonomy")
	require.NoError(t, os.MkdirAll(userDir, DefaultDirPermissions))
	require.NoError(t, os.WriteFile(filepath.Join(userDir, "am.toml"), []byte(`
[database]
path = "user.db"

[server]
port = 9000
`), DefaultFilePermissions))

	project := t.TempDir()
	projectConfig := filepath.Join(project, "am.toml")
	require.NoError(t, os.WriteFile(projectConfig, []byte(`
[database]
path = "project.db"

[pulse]
max_running = 50
`), DefaultFilePermissions))

	t.Setenv("HOME", home)
	t.Setenv("AUTONOMY_PULSE_COMPLETION_DELAY_MS", "1500")
	t.Chdir(project)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "project.db", cfg.Database.Path, "project file wins over user file")
	assert.Equal(t, 9000, cfg.Server.Port, "user keys not overridden by the project survive")
	assert.Equal(t, 50, cfg.Pulse.MaxRunning)
	assert.Equal(t, 1500, cfg.Pulse.CompletionDelayMs, "environment wins over files")

	assert.Equal(t, projectConfig, ActiveConfigFile())

	sources := map[string]SettingInfo{}
	for _, s := range GetConfigIntrospection().Settings {
		sources[s.Key] = s
	}
	assert.Equal(t, SourceProject, sources["database.path"].Source)
	assert.Equal(t, SourceUser, sources["server.port"].Source)
	assert.Equal(t, SourceEnvironment, sources["pulse.completion_delay_ms"].Source)
	assert.Equal(t, SourceDefault, sources["log.json"].Source)

	again, err := Load()
	require.NoError(t, err)
	assert.Same(t, cfg, again, "Load caches until Reset")
}

func TestConfigString(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{Driver: DriverMemory}}
	s := cfg.String()
	assert.True(t, strings.HasPrefix(s, "Config{"))
	assert.Contains(t, s, "memory")
	assert.Equal(t, "autonomy.db", cfg.GetDatabasePath())
	assert.Equal(t, DefaultServerPort, cfg.GetServerPort())
	assert.NotEmpty(t, cfg.GetServerAllowedOrigins())
}
