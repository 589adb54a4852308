package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFrom(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestLoad_Defaults(t *testing.T) {
	settings, err := LoadWithEnv("", envFrom(nil))
	require.NoError(t, err)

	assert.Equal(t, Default(), settings)
	assert.Equal(t, ":80", settings.ListenAddr())
	assert.Equal(t, time.Minute, settings.SyncInterval())
	assert.Equal(t, 10*time.Minute, settings.SyncExpire())
	assert.Empty(t, settings.Validate())
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lip-index.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_port = 8080
log_level = 0
repo_host = "git.example.com"

[github_bot]
topic = "custom-topic"
workers = 8
interval = 120
`), 0600))

	settings, err := LoadWithEnv(path, envFrom(map[string]string{
		"LISTEN_PORT":      "9090",
		"GITHUB_BOT_TOKEN": "secret",
		"DATABASE_PATH":    ":memory:",
	}))
	require.NoError(t, err)

	assert.Equal(t, 9090, settings.ListenPort, "environment overrides the file")
	assert.Equal(t, 0, settings.LogLevel, "zero log level from the file is kept")
	assert.Equal(t, "git.example.com", settings.RepoHost)
	assert.Equal(t, "custom-topic", settings.GitHubBot.Topic)
	assert.Equal(t, 8, settings.GitHubBot.Workers)
	assert.Equal(t, 120, settings.GitHubBot.Interval)
	assert.Equal(t, DefaultBotExpire, settings.GitHubBot.Expire)
	assert.Equal(t, "secret", settings.GitHubBot.Token)
	assert.Equal(t, ":memory:", settings.DatabasePath)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	settings, err := LoadWithEnv("", envFrom(map[string]string{
		"LOG_LEVEL":           "5",
		"REPO_HOST":           "gitea.example.org",
		"CORS_ALLOW_ORIGIN":   "https://lip.example.org",
		"GITHUB_BOT_INTERVAL": "30",
		"GITHUB_BOT_EXPIRE":   "0",
		"GITHUB_BOT_TOPIC":    "t",
		"GITHUB_BOT_WORKERS":  "2",
		"GITHUB_BOT_BASE_URL": "https://api.example.org/",

		"GITHUB_BOT_REQUESTS_PER_SECOND": "-1",
	}))
	require.NoError(t, err)

	assert.Equal(t, 5, settings.LogLevel)
	assert.Equal(t, "gitea.example.org", settings.RepoHost)
	assert.Equal(t, "https://lip.example.org", settings.CORSAllowOrigin)
	assert.Equal(t, 30, settings.GitHubBot.Interval)
	assert.Equal(t, 0, settings.GitHubBot.Expire)
	assert.Equal(t, "t", settings.GitHubBot.Topic)
	assert.Equal(t, 2, settings.GitHubBot.Workers)
	assert.Equal(t, "https://api.example.org/", settings.GitHubBot.BaseURL)
	assert.Equal(t, -1.0, settings.GitHubBot.RequestsPerSecond)
	assert.Empty(t, settings.Validate())
}

func TestLoad_Errors(t *testing.T) {
	t.Run("non-numeric environment value", func(t *testing.T) {
		_, err := LoadWithEnv("", envFrom(map[string]string{"LISTEN_PORT": "eighty"}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "LISTEN_PORT")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadWithEnv(filepath.Join(t.TempDir(), "missing.toml"), envFrom(nil))
		assert.Error(t, err)
	})

	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.toml")
		require.NoError(t, os.WriteFile(path, []byte("listen_port = ["), 0600))
		_, err := LoadWithEnv(path, envFrom(nil))
		assert.Error(t, err)
	})
}

func TestApplyDefaults(t *testing.T) {
	settings := &Settings{LogLevel: 0}
	settings.ApplyDefaults()

	assert.Equal(t, DefaultListenPort, settings.ListenPort)
	assert.Equal(t, 0, settings.LogLevel)
	assert.Equal(t, DefaultDatabasePath, settings.DatabasePath)
	assert.Equal(t, DefaultRepoHost, settings.RepoHost)
	assert.Equal(t, DefaultCORSAllowOrigin, settings.CORSAllowOrigin)
	assert.Equal(t, DefaultBotInterval, settings.GitHubBot.Interval)
	assert.Equal(t, DefaultBotTopic, settings.GitHubBot.Topic)
	assert.Equal(t, DefaultBotWorkers, settings.GitHubBot.Workers)
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	settings := Default()
	settings.ListenPort = 70000
	settings.LogLevel = -1
	settings.RepoHost = "github.com/acme"
	settings.GitHubBot.Interval = -5
	settings.GitHubBot.Expire = -1
	settings.GitHubBot.Topic = " "
	settings.GitHubBot.Workers = -2

	problems := settings.Validate()
	assert.Len(t, problems, 7)
	assert.Contains(t, problems, "github_bot.topic cannot be empty")
}

func TestStatePath(t *testing.T) {
	settings := Default()
	assert.Equal(t, filepath.Join("data", StateFileName), settings.StatePath())

	settings.DatabasePath = ":memory:"
	assert.Empty(t, settings.StatePath())
}
