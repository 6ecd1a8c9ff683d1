package config

import "time"

// Config is the root configuration for Vesper.
type Config struct {
	Gateway   GatewayConfig   `json:"gateway"`
	Models    ModelsConfig    `json:"models"`
	Speech    SpeechConfig    `json:"speech"`
	Store     StoreConfig     `json:"store"`
	Workflows WorkflowsConfig `json:"workflows"`
	Events    EventsConfig    `json:"events"`
	Agent     AgentConfig     `json:"agent"`
}

// GatewayConfig holds the gateway server settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// ModelsConfig holds LLM provider configuration.
type ModelsConfig struct {
	Default   string                    `json:"default"`
	Providers map[string]ProviderConfig `json:"providers"`
}

// ProviderConfig configures a single LLM provider.
type ProviderConfig struct {
	Driver    string         `json:"driver"` // "openai", "claude", "gemini", "ollama"
	Model     string         `json:"model"`
	BaseURL   string         `json:"base_url,omitempty"`
	Auth      AuthConfig     `json:"auth"`
	MaxTokens int            `json:"max_tokens,omitempty"`
	Timeout   Duration       `json:"timeout,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

// AuthConfig configures API key resolution. Values may be plain, a
// ${{ .Env.VAR }} template, or an ENC[age:...] ciphertext.
type AuthConfig struct {
	APIKey string `json:"api_key,omitempty"`
}

// SpeechConfig selects the speech pipeline providers. The pipeline itself
// lives behind the session transport; only the selection is configured here.
type SpeechConfig struct {
	STT STTConfig `json:"stt"`
	TTS TTSConfig `json:"tts"`
}

// STTConfig selects the speech-to-text provider.
type STTConfig struct {
	Provider string     `json:"provider"` // "deepgram", "openai", "google", "assemblyai"
	Model    string     `json:"model,omitempty"`
	Auth     AuthConfig `json:"auth"`
}

// TTSConfig selects the text-to-speech provider and voice.
type TTSConfig struct {
	Provider string     `json:"provider"` // "openai", "elevenlabs", "cartesia", "google"
	Voice    string     `json:"voice,omitempty"`
	Auth     AuthConfig `json:"auth"`
}

// StoreConfig holds the shared-state store and background loop settings.
type StoreConfig struct {
	Path           string   `json:"path"`            // default: $VESPER_PATH/vesper.db
	ContextTTL     Duration `json:"context_ttl"`     // default: 1h
	PollInterval   Duration `json:"poll_interval"`   // processor sweep, default: 2s
	HandlerTimeout Duration `json:"handler_timeout"` // per-task bound, default: 4m
	AnnounceEvery  Duration `json:"announce_every"`  // announcer sweep, default: 5s
}

// WorkflowsConfig configures the remote automation webhooks tools proxy to.
type WorkflowsConfig struct {
	BaseURL          string   `json:"base_url"`
	ExternalURL      string   `json:"external_url,omitempty"` // webhook-id endpoints
	APIKey           string   `json:"api_key,omitempty"`
	Timeout          Duration `json:"timeout,omitempty"`           // default: 30s
	CalendarEndpoint string   `json:"calendar_endpoint,omitempty"` // path or webhook id, default: read-calendar
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int `json:"buffer_size"`
}

// AgentConfig holds agent persona settings.
type AgentConfig struct {
	Name         string `json:"name,omitempty"` // spoken name, default "Vesper"
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// Duration wraps time.Duration for JSON unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}
