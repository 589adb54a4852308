// Package config provides the service configuration.
// Settings are resolved from built-in defaults, then an optional TOML file, then
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Defaults, matching the environment variable defaults of the service.
const (
	DefaultListenPort      = 80
	DefaultLogLevel        = 3
	DefaultDatabasePath    = "./data/lip-index.db"
	DefaultRepoHost        = "github.com"
	DefaultBotInterval     = 60
	DefaultBotExpire       = 600
	DefaultBotTopic        = "lip-tooth"
	DefaultBotWorkers      = 4
	DefaultCORSAllowOrigin = "*"
)

// Settings contains every configuration option of the service.
type Settings struct {
	ListenPort      int         `toml:"listen_port"`
	LogLevel        int         `toml:"log_level"`         // 0 error, 1 warn, 2-3 info, 4 debug, 5+ trace
	DatabasePath    string      `toml:"database_path"`     // SQLite file, or ":memory:"
	RepoHost        string      `toml:"repo_host"`         // Host prefix of every repoPath
	CORSAllowOrigin string      `toml:"cors_allow_origin"` // Access-Control-Allow-Origin value
	GitHubBot       BotSettings `toml:"github_bot"`
}

// BotSettings configures the release synchronizer.
type BotSettings struct {
	Token    string `toml:"token"`
	Interval int    `toml:"interval"` // Seconds between sync rounds
	Expire   int    `toml:"expire"`   // Seconds a repository stays fresh after a refresh
	Topic    string `toml:"topic"`
	Workers  int    `toml:"workers"`
	BaseURL  string `toml:"base_url"` // API root override; empty means the public API

	// RequestsPerSecond throttles upstream calls; 0 keeps the client default and a
	// negative value disables throttling.
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// envBinding maps an environment variable onto a settings field.
type envBinding struct {
	name  string
	apply func(s *Settings, value string) error
}

var envBindings = []envBinding{
	{"LISTEN_PORT", intSetter(func(s *Settings) *int { return &s.ListenPort })},
	{"LOG_LEVEL", intSetter(func(s *Settings) *int { return &s.LogLevel })},
	{"DATABASE_PATH", stringSetter(func(s *Settings) *string { return &s.DatabasePath })},
	{"REPO_HOST", stringSetter(func(s *Settings) *string { return &s.RepoHost })},
	{"CORS_ALLOW_ORIGIN", stringSetter(func(s *Settings) *string { return &s.CORSAllowOrigin })},
	{"GITHUB_BOT_TOKEN", stringSetter(func(s *Settings) *string { return &s.GitHubBot.Token })},
	{"GITHUB_BOT_INTERVAL", intSetter(func(s *Settings) *int { return &s.GitHubBot.Interval })},
	{"GITHUB_BOT_EXPIRE", intSetter(func(s *Settings) *int { return &s.GitHubBot.Expire })},
	{"GITHUB_BOT_TOPIC", stringSetter(func(s *Settings) *string { return &s.GitHubBot.Topic })},
	{"GITHUB_BOT_WORKERS", intSetter(func(s *Settings) *int { return &s.GitHubBot.Workers })},
	{"GITHUB_BOT_BASE_URL", stringSetter(func(s *Settings) *string { return &s.GitHubBot.BaseURL })},
	{"GITHUB_BOT_REQUESTS_PER_SECOND", floatSetter(func(s *Settings) *float64 { return &s.GitHubBot.RequestsPerSecond })},
}

func intSetter(field func(*Settings) *int) func(*Settings, string) error {
	return func(s *Settings, value string) error {
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("must be an integer: %q", value)
		}
		*field(s) = n
		return nil
	}
}

func floatSetter(field func(*Settings) *float64) func(*Settings, string) error {
	return func(s *Settings, value string) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return fmt.Errorf("must be a number: %q", value)
		}
		*field(s) = f
		return nil
	}
}

func stringSetter(field func(*Settings) *string) func(*Settings, string) error {
	return func(s *Settings, value string) error {
		*field(s) = value
		return nil
	}
}

// Default returns the built-in settings.
func Default() *Settings {
	return &Settings{
		ListenPort:      DefaultListenPort,
		LogLevel:        DefaultLogLevel,
		DatabasePath:    DefaultDatabasePath,
		RepoHost:        DefaultRepoHost,
		CORSAllowOrigin: DefaultCORSAllowOrigin,
		GitHubBot: BotSettings{
			Interval: DefaultBotInterval,
			Expire:   DefaultBotExpire,
			Topic:    DefaultBotTopic,
			Workers:  DefaultBotWorkers,
		},
	}
}

// Load resolves settings from defaults, the TOML file at path (if path is not
// empty) and the process environment.
func Load(path string) (*Settings, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an explicit environment lookup.
func LoadWithEnv(path string, lookup func(string) (string, bool)) (*Settings, error) {
	settings := Default()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- path comes from the operator
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := toml.Unmarshal(data, settings); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	for _, binding := range envBindings {
		value, ok := lookup(binding.name)
		if !ok {
			continue
		}
		if err := binding.apply(settings, value); err != nil {
			return nil, fmt.Errorf("environment variable %s %w", binding.name, err)
		}
	}

	settings.ApplyDefaults()
	return settings, nil
}

// ApplyDefaults fills fields left empty with their defaults. LogLevel is left
// alone because zero is a valid level.
func (s *Settings) ApplyDefaults() {
	if s.ListenPort == 0 {
		s.ListenPort = DefaultListenPort
	}
	if s.DatabasePath == "" {
		s.DatabasePath = DefaultDatabasePath
	}
	if s.RepoHost == "" {
		s.RepoHost = DefaultRepoHost
	}
	if s.CORSAllowOrigin == "" {
		s.CORSAllowOrigin = DefaultCORSAllowOrigin
	}
	if s.GitHubBot.Interval == 0 {
		s.GitHubBot.Interval = DefaultBotInterval
	}
	if s.GitHubBot.Topic == "" {
		s.GitHubBot.Topic = DefaultBotTopic
	}
	if s.GitHubBot.Workers == 0 {
		s.GitHubBot.Workers = DefaultBotWorkers
	}
}

// Validate returns every problem found in the settings.
func (s *Settings) Validate() []string {
	var problems []string

	if s.ListenPort < 1 || s.ListenPort > 65535 {
		problems = append(problems, fmt.Sprintf("listen_port must be between 1 and 65535, got %d", s.ListenPort))
	}
	if s.LogLevel < 0 {
		problems = append(problems, fmt.Sprintf("log_level must not be negative, got %d", s.LogLevel))
	}
	if strings.TrimSpace(s.DatabasePath) == "" {
		problems = append(problems, "database_path cannot be empty")
	}
	if s.RepoHost == "" || strings.ContainsAny(s.RepoHost, "/ ") {
		problems = append(problems, fmt.Sprintf("repo_host must be a bare host name, got %q", s.RepoHost))
	}
	if s.GitHubBot.Interval < 1 {
		problems = append(problems, fmt.Sprintf("github_bot.interval must be positive, got %d", s.GitHubBot.Interval))
	}
	if s.GitHubBot.Expire < 0 {
		problems = append(problems, fmt.Sprintf("github_bot.expire must not be negative, got %d", s.GitHubBot.Expire))
	}
	if strings.TrimSpace(s.GitHubBot.Topic) == "" {
		problems = append(problems, "github_bot.topic cannot be empty")
	}
	if s.GitHubBot.Workers < 1 {
		problems = append(problems, fmt.Sprintf("github_bot.workers must be at least 1, got %d", s.GitHubBot.Workers))
	}

	return problems
}

// ListenAddr returns the HTTP listen address.
func (s *Settings) ListenAddr() string {
	return ":" + strconv.Itoa(s.ListenPort)
}

// StateFileName is the synchronizer state snapshot kept next to the database.
const StateFileName = "sync-state.gob"

// StatePath returns where the synchronizer keeps its refresh state, or "" when the
// database is in memory and the state should be too.
func (s *Settings) StatePath() string {
	if s.DatabasePath == ":memory:" {
		return ""
	}
	return filepath.Join(filepath.Dir(s.DatabasePath), StateFileName)
}

// SyncInterval returns the time between sync rounds.
func (s *Settings) SyncInterval() time.Duration {
	return time.Duration(s.GitHubBot.Interval) * time.Second
}

// SyncExpire returns how long a refreshed repository stays fresh.
func (s *Settings) SyncExpire() time.Duration {
	return time.Duration(s.GitHubBot.Expire) * time.Second
}
