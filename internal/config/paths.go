package config

import (
	"os"
	"path/filepath"
)

// VesperPath returns the root directory for Vesper data.
// It uses $VESPER_PATH if set, otherwise defaults to ~/.vesper.
func VesperPath() string {
	if v := os.Getenv("VESPER_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".vesper")
	}
	return filepath.Join(home, ".vesper")
}

// ConfigPath returns the path to the Vesper config file.
func ConfigPath() string {
	return filepath.Join(VesperPath(), "config.jsonc")
}

// DotenvPath returns the path to the Vesper .env file.
func DotenvPath() string {
	return filepath.Join(VesperPath(), ".env")
}

// HeartbeatPath returns the path to the serve-loop heartbeat file.
func HeartbeatPath() string {
	return filepath.Join(VesperPath(), "heartbeat.json")
}

// SchedulesPath returns the path to the persisted schedule entries file.
func SchedulesPath() string {
	return filepath.Join(VesperPath(), "schedules.yaml")
}
