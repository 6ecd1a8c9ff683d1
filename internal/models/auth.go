package models

import (
	"fmt"
	"os"
	"strings"

	"github.com/vesper-agent/vesper/internal/config"
	"github.com/vesper-agent/vesper/internal/secrets"
)

// driverEnvVars maps drivers to their conventional API key environment variable.
var driverEnvVars = map[string]string{
	"openai": "OPENAI_API_KEY",
	"claude": "ANTHROPIC_API_KEY",
	"gemini": "GEMINI_API_KEY",
}

// ResolveAPIKey resolves the API key for a provider.
// Resolution order: configured api_key (decrypted if ENC[age:...]) → driver default env var.
func ResolveAPIKey(cfg config.ProviderConfig) (string, error) {
	if apiKey := strings.TrimSpace(cfg.Auth.APIKey); apiKey != "" {
		plain, err := secrets.Resolve(apiKey)
		if err != nil {
			return "", fmt.Errorf("decrypt api_key: %w", err)
		}
		return plain, nil
	}

	driver := strings.ToLower(cfg.Driver)
	envVar, ok := driverEnvVars[driver]
	if !ok {
		return "", fmt.Errorf("unknown driver %q: cannot resolve auth", cfg.Driver)
	}
	if key := os.Getenv(envVar); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("%s not set", envVar)
}
