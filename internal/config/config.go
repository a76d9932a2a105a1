// Package config provides the configuration schema, loader, and provider
// registry for the Kokoro TTS bot.
package config

// LogLevel controls log verbosity for the bot.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for the bot.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Discord  DiscordConfig  `yaml:"discord"`
	TTS      TTSConfig      `yaml:"tts"`
	Settings SettingsConfig `yaml:"settings"`
	Queue    QueueConfig    `yaml:"queue"`
	Cache    CacheConfig    `yaml:"cache"`
}

// ServerConfig holds the observability endpoint and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the /metrics, /healthz and /readyz
	// endpoints listen on (e.g., ":8080"). Empty disables the HTTP server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// DiscordConfig holds gateway credentials and command permissions.
type DiscordConfig struct {
	// Token is the bot token used to authenticate with the Discord gateway.
	Token string `yaml:"token"`

	// AdminRole names the guild role allowed to change guild-level settings
	// and force the bot out of a channel. Empty falls back to the Discord
	// "Manage Server" permission.
	AdminRole string `yaml:"admin_role"`

	// GuildID limits slash-command registration to one guild. Empty
	// registers commands globally (slower to propagate).
	GuildID string `yaml:"guild_id"`
}

// ProviderEntry is the common configuration block shared by all TTS provider
// types. The Name field selects the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation
	// (e.g., "kokoro", "elevenlabs", "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint. For the kokoro
	// provider this is the local server address (e.g., "http://localhost:8880").
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `yaml:"options"`
}

// TTSConfig selects the synthesis backends and the failover behaviour.
type TTSConfig struct {
	// Primary is the preferred synthesis backend.
	Primary ProviderEntry `yaml:"primary"`

	// Fallbacks are tried in order when the primary fails or its circuit
	// breaker is open.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`

	// Breaker tunes the per-backend circuit breakers.
	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes the circuit breaker guarding each synthesis backend.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before the
	// breaker opens. Zero keeps the built-in default.
	FailureThreshold int `yaml:"failure_threshold"`

	// RecoveryTimeout is how long an open breaker waits before probing the
	// backend again. Zero keeps the built-in default.
	RecoveryTimeout Duration `yaml:"recovery_timeout"`
}

// SettingsConfig locates the persisted guild/user settings document.
type SettingsConfig struct {
	// Path is the YAML file guild and user overrides persist to. Empty keeps
	// settings in memory only.
	Path string `yaml:"path"`
}

// QueueConfig tunes the per-guild playback queues.
type QueueConfig struct {
	// MaxSize bounds each guild's queue. Zero keeps the built-in default.
	MaxSize int `yaml:"max_size"`

	// MessageTTL is how long a queued request stays playable. Zero keeps the
	// built-in default.
	MessageTTL Duration `yaml:"message_ttl"`
}

// CacheConfig tunes the synthesised-audio cache.
type CacheConfig struct {
	// MaxEntries bounds the cache. Zero keeps the built-in default.
	MaxEntries int `yaml:"max_entries"`

	// TTL is the cached clip lifetime. Zero keeps the built-in default.
	TTL Duration `yaml:"ttl"`
}
