package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/marcozac/go-jsonc"
)

var envTemplateRe = regexp.MustCompile(`\$\{\{\s*\.Env\.(\w+)\s*\}\}`)

// Load reads a JSONC config file, expands ${{ .Env.VAR }} templates,
// unmarshals it into Config, and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variable templates before stripping comments,
	// since templates live inside strings.
	expanded := expandEnvTemplates(string(data))

	var cfg Config
	if err := jsonc.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a config with every default applied, used when no config
// file exists yet.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// expandEnvTemplates replaces ${{ .Env.VAR }} with the env var value.
func expandEnvTemplates(s string) string {
	return envTemplateRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envTemplateRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		return os.Getenv(parts[1])
	})
}

// ApplyDefaults fills in zero-value fields with sensible defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = "127.0.0.1"
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 18530
	}
	if cfg.Events.BufferSize == 0 {
		cfg.Events.BufferSize = 1024
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = filepath.Join(VesperPath(), "vesper.db")
	}
	if cfg.Store.ContextTTL.Duration() == 0 {
		cfg.Store.ContextTTL = Duration(time.Hour)
	}
	if cfg.Store.PollInterval.Duration() == 0 {
		cfg.Store.PollInterval = Duration(2 * time.Second)
	}
	if cfg.Store.HandlerTimeout.Duration() == 0 {
		cfg.Store.HandlerTimeout = Duration(4 * time.Minute)
	}
	if cfg.Store.AnnounceEvery.Duration() == 0 {
		cfg.Store.AnnounceEvery = Duration(5 * time.Second)
	}
	if cfg.Workflows.Timeout.Duration() == 0 {
		cfg.Workflows.Timeout = Duration(30 * time.Second)
	}
	if cfg.Workflows.CalendarEndpoint == "" {
		cfg.Workflows.CalendarEndpoint = "read-calendar"
	}
	if cfg.Agent.Name == "" {
		cfg.Agent.Name = "Vesper"
	}
	if cfg.Speech.STT.Provider == "" {
		cfg.Speech.STT.Provider = "deepgram"
	}
	if cfg.Speech.STT.Model == "" && cfg.Speech.STT.Provider == "deepgram" {
		cfg.Speech.STT.Model = "nova-2"
	}
	if cfg.Speech.TTS.Provider == "" {
		cfg.Speech.TTS.Provider = "openai"
	}
	if cfg.Speech.TTS.Voice == "" {
		cfg.Speech.TTS.Voice = "alloy"
	}
}
