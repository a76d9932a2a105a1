package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"tts":   {"kokoro", "elevenlabs", "openai"},
	"audio": {"discord"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Discord
	if cfg.Discord.Token == "" {
		errs = append(errs, errors.New("discord.token is required"))
	}

	// TTS providers
	if cfg.TTS.Primary.Name == "" {
		errs = append(errs, errors.New("tts.primary.name is required"))
	}
	validateProviderName("tts", cfg.TTS.Primary.Name)
	for i, fb := range cfg.TTS.Fallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("tts.fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("tts", fb.Name)
	}
	if len(cfg.TTS.Fallbacks) == 0 {
		slog.Warn("no TTS fallbacks configured; synthesis fails while the primary backend is down")
	}

	// Breaker
	if cfg.TTS.Breaker.FailureThreshold < 0 {
		errs = append(errs, fmt.Errorf("tts.breaker.failure_threshold must not be negative, got %d", cfg.TTS.Breaker.FailureThreshold))
	}
	if cfg.TTS.Breaker.RecoveryTimeout < 0 {
		errs = append(errs, errors.New("tts.breaker.recovery_timeout must not be negative"))
	}

	// Queue
	if cfg.Queue.MaxSize < 0 {
		errs = append(errs, fmt.Errorf("queue.max_size must not be negative, got %d", cfg.Queue.MaxSize))
	}
	if cfg.Queue.MessageTTL < 0 {
		errs = append(errs, errors.New("queue.message_ttl must not be negative"))
	}

	// Cache
	if cfg.Cache.MaxEntries < 0 {
		errs = append(errs, fmt.Errorf("cache.max_entries must not be negative, got %d", cfg.Cache.MaxEntries))
	}
	if cfg.Cache.TTL < 0 {
		errs = append(errs, errors.New("cache.ttl must not be negative"))
	}

	// Persistence
	if cfg.Settings.Path == "" {
		slog.Warn("settings.path is empty; guild and user overrides will not survive restarts")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
